// Package client implements the ExtraShifty API client. It attaches the
// stored bearer token to every request, refreshes expired sessions
// transparently, and exposes the marketplace resources as sub-clients.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/pentedigital/extrashifty/credstore"
)

const maxResponseBody = 8 << 20

// Config configures the API client. Zero values select the documented
// defaults.
type Config struct {
	// BaseURL is the backend root, e.g. "https://api.extrashifty.com".
	BaseURL string
	// Store holds the credential pair. Defaults to an in-memory store.
	Store credstore.Store
	// HTTPClient overrides the transport. Defaults to a client with Timeout.
	HTTPClient *http.Client
	// Logger defaults to a nop logger.
	Logger *zap.Logger
	// Timeout is the per-request deadline applied when the caller's context
	// carries none. Defaults to 30s.
	Timeout time.Duration
	// RefreshBuffer triggers a proactive refresh when the access token
	// expires within this window. Defaults to 30s.
	RefreshBuffer time.Duration
	// RateLimit caps outbound requests per second. Zero disables limiting.
	RateLimit rate.Limit
	// RateBurst is the limiter burst size. Defaults to 1 when limiting.
	RateBurst int
	// CacheTTL is the query-cache entry lifetime. Defaults to 30s.
	CacheTTL time.Duration
	// CacheSize is the query-cache capacity. Defaults to 128 entries.
	CacheSize int
	// Resilience enables the retrying, circuit-breaking transport.
	Resilience *ResilienceConfig
	// OnSessionExpired runs after an unrecoverable auth failure, once per
	// expiry episode, after the credentials are cleared. The UI uses it to
	// route to the login screen.
	OnSessionExpired func()
}

// Client is the authenticated ExtraShifty API client.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	store         credstore.Store
	logger        *zap.Logger
	timeout       time.Duration
	refreshBuffer time.Duration
	limiter       *rate.Limiter
	cache         *queryCache

	refreshGroup     singleflight.Group
	onSessionExpired func()

	auth         *AuthAPI
	shifts       *ShiftsAPI
	applications *ApplicationsAPI
	wallet       *WalletAPI
	billing      *BillingAPI
}

// New creates a new API client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("base URL is required")
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RefreshBuffer == 0 {
		cfg.RefreshBuffer = 30 * time.Second
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 30 * time.Second
	}
	if cfg.CacheSize == 0 {
		cfg.CacheSize = 128
	}
	if cfg.Store == nil {
		cfg.Store = credstore.NewMemoryStore()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Resilience != nil && cfg.Resilience.Enabled {
		httpClient = wrapResilient(httpClient, *cfg.Resilience)
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst == 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(cfg.RateLimit, burst)
	}

	c := &Client{
		baseURL:          baseURL,
		httpClient:       httpClient,
		store:            cfg.Store,
		logger:           cfg.Logger,
		timeout:          cfg.Timeout,
		refreshBuffer:    cfg.RefreshBuffer,
		limiter:          limiter,
		cache:            newQueryCache(cfg.CacheSize, cfg.CacheTTL),
		onSessionExpired: cfg.OnSessionExpired,
	}

	c.auth = &AuthAPI{client: c}
	c.shifts = &ShiftsAPI{client: c}
	c.applications = &ApplicationsAPI{client: c}
	c.wallet = &WalletAPI{client: c}
	c.billing = &BillingAPI{client: c}

	return c, nil
}

// Auth returns the auth sub-client.
func (c *Client) Auth() *AuthAPI { return c.auth }

// Shifts returns the shifts sub-client.
func (c *Client) Shifts() *ShiftsAPI { return c.shifts }

// Applications returns the applications sub-client.
func (c *Client) Applications() *ApplicationsAPI { return c.applications }

// Wallet returns the wallet sub-client.
func (c *Client) Wallet() *WalletAPI { return c.wallet }

// Billing returns the billing sub-client.
func (c *Client) Billing() *BillingAPI { return c.billing }

// =============================================================================
// Request Core
// =============================================================================

// do issues an authenticated request and decodes the JSON response into out.
// A 401 triggers one transparent refresh-and-retry; the retried request is
// never retried again.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	return c.doRetry(ctx, method, path, body, out, true)
}

func (c *Client) doRetry(ctx context.Context, method, path string, body, out interface{}, retry bool) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	creds, err := c.store.Load()
	if err != nil && !errors.Is(err, credstore.ErrNoCredentials) {
		return fmt.Errorf("load credentials: %w", err)
	}

	// Refresh ahead of expiry when the access token says it is about to
	// lapse; the 401 path below stays as the authoritative fallback. A
	// failed refresh ends the call here: sending the stale token would only
	// bounce off a 401 and start a second refresh against a cleared store.
	if retry && creds.AccessToken != "" && creds.RefreshToken != "" &&
		c.tokenExpiringSoon(creds.AccessToken) {
		fresh, refreshErr := c.refresh(ctx)
		if refreshErr != nil {
			return fmt.Errorf("refresh session: %w", refreshErr)
		}
		creds = fresh
	}

	statusCode, respBody, err := c.send(ctx, method, path, body, creds.AccessToken)
	if err != nil {
		return err
	}

	// A 401 on an anonymous request is an ordinary API error. Any stored
	// token routes through refresh, which owns expiry handling: a pair with
	// no refresh token is an expired session, not a retryable 401.
	if statusCode == http.StatusUnauthorized && retry && !creds.Empty() {
		if _, err := c.refresh(ctx); err != nil {
			return fmt.Errorf("refresh session: %w", err)
		}
		// Retried exactly once; a second 401 surfaces as an error.
		return c.doRetry(ctx, method, path, body, out, false)
	}

	if statusCode == http.StatusNoContent {
		return nil
	}
	if statusCode < 200 || statusCode > 299 {
		return parseAPIError(statusCode, respBody)
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode %s %s response: %w", method, path, err)
		}
	}
	return nil
}

// send issues one HTTP request and reads the full response body.
func (c *Client) send(ctx context.Context, method, path string, body interface{}, accessToken string) (int, []byte, error) {
	var bodyReader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method == http.MethodPost {
		// Lets the backend deduplicate mutations replayed by the resilient
		// transport.
		req.Header.Set("Idempotency-Key", uuid.NewString())
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return 0, nil, fmt.Errorf("read %s %s response: %w", method, path, err)
	}

	observeRequest(method, resp.StatusCode, start)
	c.logger.Debug("api request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	return resp.StatusCode, data, nil
}

// getCached serves a GET from the query cache, falling back to the network
// and caching the raw body on success.
func (c *Client) getCached(ctx context.Context, path string, out interface{}) error {
	if cached, ok := c.cache.get(path); ok {
		if err := json.Unmarshal(cached, out); err == nil {
			return nil
		}
		c.cache.invalidate(path)
	}

	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode GET %s response: %w", path, err)
	}
	c.cache.put(path, raw)
	return nil
}

// =============================================================================
// Token Refresh
// =============================================================================

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// refresh exchanges the stored refresh token for a new credential pair.
// Concurrent callers share a single network call; every waiter observes the
// same refreshed pair or the same failure.
func (c *Client) refresh(ctx context.Context) (credstore.Credentials, error) {
	v, err, _ := c.refreshGroup.Do("refresh", func() (interface{}, error) {
		creds, err := c.store.Load()
		if err != nil || creds.RefreshToken == "" {
			c.expireSession()
			observeRefresh("failure")
			return nil, ErrSessionExpired
		}

		// Issued directly through send: the refresh call itself must never
		// recurse into the 401 handling.
		statusCode, body, err := c.send(ctx, http.MethodPost, "/auth/refresh",
			refreshRequest{RefreshToken: creds.RefreshToken}, "")
		if err != nil {
			c.expireSession()
			observeRefresh("failure")
			return nil, fmt.Errorf("%w: %v", ErrSessionExpired, err)
		}
		if statusCode != http.StatusOK {
			c.expireSession()
			observeRefresh("failure")
			return nil, fmt.Errorf("%w: refresh rejected with status %d", ErrSessionExpired, statusCode)
		}

		var fresh credstore.Credentials
		if err := json.Unmarshal(body, &fresh); err != nil || fresh.AccessToken == "" {
			c.expireSession()
			observeRefresh("failure")
			return nil, fmt.Errorf("%w: malformed refresh response", ErrSessionExpired)
		}
		if err := c.store.Save(fresh); err != nil {
			observeRefresh("failure")
			return nil, fmt.Errorf("persist refreshed credentials: %w", err)
		}

		observeRefresh("success")
		c.logger.Info("session refreshed")
		return fresh, nil
	})
	if err != nil {
		return credstore.Credentials{}, err
	}
	return v.(credstore.Credentials), nil
}

// expireSession clears the stored pair and notifies the application. Runs
// inside the single-flight refresh, so it fires once per expiry episode.
func (c *Client) expireSession() {
	if err := c.store.Clear(); err != nil {
		c.logger.Error("clear credentials", zap.Error(err))
	}
	c.logger.Warn("session expired, credentials cleared")
	if c.onSessionExpired != nil {
		c.onSessionExpired()
	}
}

// tokenExpiringSoon inspects the access token's exp claim without verifying
// the signature. Opaque tokens report false and rely on the 401 path.
func (c *Client) tokenExpiringSoon(accessToken string) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return time.Until(exp.Time) < c.refreshBuffer
}
