package zoho

import (
	"context"
	crand "crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"farm_sync/internal/adapters/observability"
	"farm_sync/internal/domain"
)

var (
	ErrAuthFailed = errors.New("zoho: auth failed")
)

// Client fetches CRM account records. Access tokens come from the OAuth
// refresh-token grant and are cached under a mutex until expiry, so the
// client is safe to share across concurrent deliveries.
type Client struct {
	accountsURL  string
	apiBase      string
	clientID     string
	clientSecret string
	refreshToken string
	hc           *http.Client
	rl           *rate.Limiter

	mu       sync.Mutex
	token    string
	tokenExp time.Time
}

func New(accountsURL, apiBase, clientID, clientSecret, refreshToken string, rps int) (*Client, error) {
	if clientID == "" || clientSecret == "" || refreshToken == "" {
		return nil, fmt.Errorf("zoho credentials are required")
	}
	if rps <= 0 {
		rps = 5
	}
	return &Client{
		accountsURL:  strings.TrimRight(accountsURL, "/"),
		apiBase:      strings.TrimRight(apiBase, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
		refreshToken: refreshToken,
		hc:           &http.Client{Timeout: 20 * time.Second},
		rl:           rate.NewLimiter(rate.Limit(rps), rps),
	}, nil
}

// GetRecord fetches one account and unwraps the CRM's data-list envelope.
func (c *Client) GetRecord(ctx context.Context, id string) (map[string]any, error) {
	var out struct {
		Data []map[string]any `json:"data"`
	}
	if err := c.get(ctx, fmt.Sprintf("%s/Accounts/%s", c.apiBase, url.PathEscape(id)), "accounts", &out); err != nil {
		return nil, err
	}
	if len(out.Data) == 0 {
		return nil, fmt.Errorf("account %s: %w", id, domain.ErrNotFound)
	}
	return out.Data[0], nil
}

// accessToken returns a cached token or runs the refresh grant.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && time.Now().Before(c.tokenExp) {
		return c.token, nil
	}

	form := url.Values{
		"refresh_token": {c.refreshToken},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"grant_type":    {"refresh_token"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.accountsURL+"/oauth/v2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	observability.ObserveExternal("zoho", "token", resp.StatusCode, time.Since(start))

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}
	if body.AccessToken == "" {
		return "", fmt.Errorf("%w: status %d, no access_token", ErrAuthFailed, resp.StatusCode)
	}
	if body.ExpiresIn <= 0 {
		body.ExpiresIn = 3600
	}
	c.token = body.AccessToken
	// renew a minute early so in-flight requests don't straddle expiry
	c.tokenExp = time.Now().Add(time.Duration(body.ExpiresIn-60) * time.Second)
	return c.token, nil
}

func (c *Client) dropToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

// get performs an authenticated GET with client-side rate limiting, retries
// on 429 and transient 5xx honoring Retry-After, and one re-auth on 401.
func (c *Client) get(ctx context.Context, u, endpoint string, out any) error {
	if err := c.rl.Wait(ctx); err != nil {
		return err
	}

	reauthed := false
	var lastErr error
	for i := 0; i < 4; i++ {
		tok, err := c.accessToken(ctx)
		if err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Zoho-oauthtoken "+tok)
		req.Header.Set("Accept", "application/json")

		start := time.Now()
		resp, err := c.hc.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			if i < 3 && sleepCtx(ctx, backoff(i)) {
				continue
			}
			return lastErr
		}
		observability.ObserveExternal("zoho", endpoint, resp.StatusCode, time.Since(start))

		switch resp.StatusCode {
		case http.StatusOK, http.StatusCreated, http.StatusAccepted:
			err := json.NewDecoder(resp.Body).Decode(out)
			resp.Body.Close()
			return err

		case http.StatusNoContent:
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			return fmt.Errorf("empty record: %w", domain.ErrNotFound)

		case http.StatusNotFound:
			resp.Body.Close()
			return domain.ErrNotFound

		case http.StatusUnauthorized:
			resp.Body.Close()
			if !reauthed {
				reauthed = true
				c.dropToken()
				continue
			}
			return ErrAuthFailed

		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			wait := retryAfter(resp)
			resp.Body.Close()
			if wait == 0 {
				wait = backoff(i)
			}
			lastErr = fmt.Errorf("zoho remote %d", resp.StatusCode)
			if i < 3 && sleepCtx(ctx, wait) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return lastErr

		default:
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return fmt.Errorf("zoho bad status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
		}
	}

	return lastErr
}

// sleepCtx waits for d or returns early if ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// retryAfter parses Retry-After (seconds or HTTP-date). Returns 0 if absent.
func retryAfter(resp *http.Response) time.Duration {
	h := resp.Header.Get("Retry-After")
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(h)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// backoff doubles each attempt (200ms, 400ms, 800ms...) with up to +50%
// concurrency-safe jitter.
func backoff(i int) time.Duration {
	base := time.Duration(1<<i) * 200 * time.Millisecond
	var b [1]byte
	if _, err := crand.Read(b[:]); err != nil {
		return base
	}
	f := float64(b[0]) / 255.0
	j := time.Duration(0.5 * f * float64(base))
	return base + j
}
