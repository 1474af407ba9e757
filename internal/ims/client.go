// Package ims provides a cached access token source for the Adobe Identity
// Management System (IMS) OAuth 2.0 client-credentials flow.
//
// One Client owns the token of exactly one credential set. Concurrent callers
// share the cached token, and a cold or stale cache triggers a single token
// request no matter how many callers are waiting for it.
package ims

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	// DefaultScope is the scope requested when none is configured.
	DefaultScope = "openid,AdobeID,firefly_api,firefly_enterprise,ff_apis,read_organizations"
	// DefaultTokenURL is the IMS v3 token endpoint.
	DefaultTokenURL = "https://ims-na1.adobelogin.com/ims/token/v3"
	// DefaultSafetyMargin is subtracted from a token's expiry when deciding
	// whether it can still be handed out.
	DefaultSafetyMargin = 60 * time.Second

	refreshKey = "token"
)

// Static errors for IMS client operations.
var (
	// ErrClientIDRequired is returned when the client ID is not provided.
	ErrClientIDRequired = errors.New("ims: client ID is required")
	// ErrClientSecretRequired is returned when the client secret is not provided.
	ErrClientSecretRequired = errors.New("ims: client secret is required")
	// ErrMissingAccessToken is returned when a 2xx token response has no access_token.
	ErrMissingAccessToken = errors.New("ims: token response missing access_token")
	// ErrInvalidLifetime is returned when expires_in is not usable.
	ErrInvalidLifetime = errors.New("ims: token lifetime does not exceed safety margin")
)

// Credentials is the immutable credential set a Client is bound to.
type Credentials struct {
	ClientID     string
	ClientSecret string
	Scope        string
	TokenURL     string
}

// tokenResponse is the JSON body returned by the token endpoint.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// cachedToken is replaced wholesale on every successful refresh.
type cachedToken struct {
	value     string
	expiresAt time.Time
}

// Client caches the bearer token of one credential set.
type Client struct {
	creds      Credentials
	httpClient *http.Client
	margin     time.Duration
	now        func() time.Time
	onRefresh  func(time.Duration, error)

	mu    sync.RWMutex
	token *cachedToken

	group singleflight.Group
}

// ClientOption is a function that configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client for token requests.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithSafetyMargin overrides DefaultSafetyMargin.
func WithSafetyMargin(d time.Duration) ClientOption {
	return func(c *Client) {
		c.margin = d
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) {
		c.now = now
	}
}

// WithRefreshHook registers a function called once per token request with its
// duration and outcome.
func WithRefreshHook(fn func(time.Duration, error)) ClientOption {
	return func(c *Client) {
		c.onRefresh = fn
	}
}

// NewClient creates a Client for the given credentials. Scope and TokenURL
// fall back to DefaultScope and DefaultTokenURL when empty.
func NewClient(creds Credentials, opts ...ClientOption) (*Client, error) {
	if creds.ClientID == "" {
		return nil, ErrClientIDRequired
	}
	if creds.ClientSecret == "" {
		return nil, ErrClientSecretRequired
	}
	if creds.Scope == "" {
		creds.Scope = DefaultScope
	}
	if creds.TokenURL == "" {
		creds.TokenURL = DefaultTokenURL
	}

	c := &Client{
		creds:      creds,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		margin:     DefaultSafetyMargin,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// ClientID returns the client identifier of the credential set.
func (c *Client) ClientID() string {
	return c.creds.ClientID
}

// AccessToken returns a bearer token that is valid for at least the safety
// margin. A fresh cached token is returned without any network call; otherwise
// the caller joins the single in-flight refresh.
//
// Cancelling ctx releases the caller but does not abort a refresh other
// callers may be waiting on.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	if tok, ok := c.cached(); ok {
		return tok, nil
	}

	ch := c.group.DoChan(refreshKey, func() (any, error) {
		// A flight that finished between our check and DoChan already
		// published a token.
		if tok, ok := c.cached(); ok {
			return tok, nil
		}
		return c.refresh(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("ims: wait for token: %w", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// AuthHeaders returns the headers every Adobe API call carries: the bearer
// token and the client ID as API key.
func (c *Client) AuthHeaders(ctx context.Context) (http.Header, error) {
	tok, err := c.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	h := make(http.Header, 2)
	h.Set("Authorization", "Bearer "+tok)
	h.Set("X-Api-Key", c.creds.ClientID)
	return h, nil
}

// Invalidate drops the cached token so the next call refreshes it.
func (c *Client) Invalidate() {
	c.mu.Lock()
	c.token = nil
	c.mu.Unlock()
}

// InvalidateIfCurrent drops the cached token only if it is still tok. A late
// rejection of an older token leaves a newer one in place. It reports whether
// the cache was cleared.
func (c *Client) InvalidateIfCurrent(tok string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token == nil || c.token.value != tok {
		return false
	}
	c.token = nil
	return true
}

// cached returns the cached token if it is outside the safety margin.
func (c *Client) cached() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.token == nil {
		return "", false
	}
	if !c.now().Before(c.token.expiresAt.Add(-c.margin)) {
		return "", false
	}
	return c.token.value, true
}

// refresh requests a new token and publishes it. Nothing is cached on error.
func (c *Client) refresh(ctx context.Context) (string, error) {
	start := c.now()
	resp, err := c.requestToken(ctx)
	if c.onRefresh != nil {
		c.onRefresh(c.now().Sub(start), err)
	}
	if err != nil {
		return "", err
	}

	// The lifetime is counted from before the request was sent, so the
	// stored expiry never overstates the server's.
	tok := &cachedToken{
		value:     resp.AccessToken,
		expiresAt: start.Add(time.Duration(resp.ExpiresIn) * time.Second),
	}
	if !c.now().Before(tok.expiresAt.Add(-c.margin)) {
		return "", &AuthenticationError{
			StatusCode: http.StatusOK,
			Err:        fmt.Errorf("%w: expires_in=%d", ErrInvalidLifetime, resp.ExpiresIn),
		}
	}

	c.mu.Lock()
	c.token = tok
	c.mu.Unlock()

	return tok.value, nil
}

// requestToken performs one client-credentials grant. It is never retried.
func (c *Client) requestToken(ctx context.Context) (*tokenResponse, error) {
	form := url.Values{}
	form.Set("client_id", c.creds.ClientID)
	form.Set("client_secret", c.creds.ClientSecret)
	form.Set("grant_type", "client_credentials")
	form.Set("scope", c.creds.Scope)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.creds.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &AuthenticationError{Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &AuthenticationError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &AuthenticationError{StatusCode: resp.StatusCode, Status: resp.Status, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &AuthenticationError{StatusCode: resp.StatusCode, Status: resp.Status, Body: string(body)}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, &AuthenticationError{StatusCode: resp.StatusCode, Status: resp.Status, Body: string(body), Err: fmt.Errorf("decode response: %w", err)}
	}
	if tr.AccessToken == "" {
		return nil, &AuthenticationError{StatusCode: resp.StatusCode, Status: resp.Status, Body: string(body), Err: ErrMissingAccessToken}
	}
	if tr.ExpiresIn <= 0 {
		return nil, &AuthenticationError{StatusCode: resp.StatusCode, Status: resp.Status, Body: string(body), Err: fmt.Errorf("%w: expires_in=%d", ErrInvalidLifetime, tr.ExpiresIn)}
	}

	return &tr, nil
}
