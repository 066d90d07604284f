package deploy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"farm_sync/internal/adapters/observability"
	"farm_sync/internal/domain"
)

// Hook is the parameterless rebuild trigger: a bare POST to a build-hook URL.
type Hook struct {
	url string
	hc  *http.Client
}

func NewHook(url string) *Hook {
	return &Hook{url: url, hc: &http.Client{Timeout: 15 * time.Second}}
}

func (h *Hook) Trigger(ctx context.Context, _ domain.RebuildEvent) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, nil)
	if err != nil {
		return err
	}
	start := time.Now()
	resp, err := h.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	observability.ObserveExternal("deploy", "hook", resp.StatusCode, time.Since(start))

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("build hook %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

// Dispatch fires a repository-dispatch event carrying the rebuild payload,
// for setups where the build pipeline listens on the content repo.
type Dispatch struct {
	base      string // https://api.github.com
	repo      string // owner/name
	eventType string
	token     string
	hc        *http.Client
}

func NewDispatch(base, repo, eventType, token string) *Dispatch {
	if base == "" {
		base = "https://api.github.com"
	}
	if eventType == "" {
		eventType = "farm-updated"
	}
	return &Dispatch{
		base:      strings.TrimRight(base, "/"),
		repo:      repo,
		eventType: eventType,
		token:     token,
		hc:        &http.Client{Timeout: 15 * time.Second},
	}
}

func (d *Dispatch) Trigger(ctx context.Context, ev domain.RebuildEvent) error {
	body, err := json.Marshal(map[string]any{
		"event_type":     d.eventType,
		"client_payload": ev,
	})
	if err != nil {
		return err
	}
	u := fmt.Sprintf("%s/repos/%s/dispatches", d.base, d.repo)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "token "+d.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "farm-sync/1.0")

	start := time.Now()
	resp, err := d.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	observability.ObserveExternal("deploy", "dispatch", resp.StatusCode, time.Since(start))

	// 204 on success
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("repository dispatch %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}
