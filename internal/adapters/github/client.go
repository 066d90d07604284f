package github

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"farm_sync/internal/adapters/observability"
	"farm_sync/internal/domain"
)

// Client talks to the contents API of the site's content repository.
// The blob SHA is the revision token: reads return it, writes include it
// (optimistic concurrency; no SHA means create).
type Client struct {
	base   string // https://api.github.com
	repo   string // owner/name
	branch string
	token  string
	hc     *http.Client
	rl     *rate.Limiter
}

func New(base, repo, branch, token string, rps int) (*Client, error) {
	if repo == "" || token == "" {
		return nil, fmt.Errorf("github repo and token are required")
	}
	if base == "" {
		base = "https://api.github.com"
	}
	if rps <= 0 {
		rps = 5
	}
	return &Client{
		base:   strings.TrimRight(base, "/"),
		repo:   repo,
		branch: branch,
		token:  token,
		hc:     &http.Client{Timeout: 20 * time.Second},
		rl:     rate.NewLimiter(rate.Limit(rps), rps),
	}, nil
}

func (c *Client) contentsURL(path string) string {
	u := fmt.Sprintf("%s/repos/%s/contents/%s", c.base, c.repo, strings.TrimLeft(path, "/"))
	if c.branch != "" {
		u += "?ref=" + c.branch
	}
	return u
}

func (c *Client) do(ctx context.Context, req *http.Request, endpoint string) (*http.Response, error) {
	if err := c.rl.Wait(ctx); err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "token "+c.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", "farm-sync/1.0")

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	observability.ObserveExternal("github", endpoint, resp.StatusCode, time.Since(start))
	return resp, nil
}

// GetRevision returns the current blob SHA for path, or domain.ErrNotFound
// when the file does not exist yet.
func (c *Client) GetRevision(ctx context.Context, path string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.contentsURL(path), nil)
	if err != nil {
		return "", err
	}
	resp, err := c.do(ctx, req, "contents_get")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var body struct {
			SHA string `json:"sha"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return "", fmt.Errorf("decode contents response: %w", err)
		}
		return body.SHA, nil
	case http.StatusNotFound:
		return "", domain.ErrNotFound
	default:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("github contents get %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
}

// Put writes content at path conditioned on revision (blob SHA). Empty
// revision creates the file; a stale revision fails with 409, surfaced as
// an error for the dispatcher to report.
func (c *Client) Put(ctx context.Context, path, content, revision, message string) error {
	payload := map[string]any{
		"message": message,
		"content": base64.StdEncoding.EncodeToString([]byte(content)),
	}
	if revision != "" {
		payload["sha"] = revision
	}
	if c.branch != "" {
		payload["branch"] = c.branch
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	u := fmt.Sprintf("%s/repos/%s/contents/%s", c.base, c.repo, strings.TrimLeft(path, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(ctx, req, "contents_put")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("github contents put %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
}
