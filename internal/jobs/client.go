package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// TokenSource supplies the authentication headers attached to every call.
type TokenSource interface {
	AuthHeaders(ctx context.Context) (http.Header, error)
}

// invalidator is implemented by token sources that can drop a rejected token.
type invalidator interface {
	InvalidateIfCurrent(token string) bool
}

// Request describes one authenticated call to a provider endpoint.
type Request struct {
	// Method defaults to POST.
	Method string
	URL    string
	// Header holds family-specific headers such as x-model-version.
	Header http.Header
	// JSON is marshalled as an application/json body. Ignored when Body is set.
	JSON any
	// Body is sent unmodified with ContentType, for raw binary payloads.
	Body        []byte
	ContentType string
}

// Client performs authenticated provider calls: job submission, status
// fetches and cancellation. It never retries.
type Client struct {
	tokens     TokenSource
	httpClient *http.Client
}

// ClientOption is a function that configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a Client that authenticates with tokens.
func NewClient(tokens TokenSource, opts ...ClientOption) (*Client, error) {
	if tokens == nil {
		return nil, ErrTokenSourceRequired
	}

	c := &Client{
		tokens:     tokens,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Submit sends a job submission and decodes its Handle. A non-2xx answer is a
// *SubmissionError; a 2xx answer without a job identifier is a
// *MalformedResponseError.
func (c *Client) Submit(ctx context.Context, req Request, decode HandleDecoder) (Handle, error) {
	if decode == nil {
		decode = DecodeHandle(DefaultHandleFields)
	}

	resp, err := c.send(ctx, req)
	if err != nil {
		return Handle{}, err
	}
	if !resp.ok() {
		return Handle{}, &SubmissionError{
			URL:        req.URL,
			StatusCode: resp.code,
			Status:     resp.status,
			Body:       string(resp.body),
		}
	}

	return decode(resp.body)
}

// Do performs an authenticated call and returns the raw 2xx body. A non-2xx
// answer is a *RequestError.
func (c *Client) Do(ctx context.Context, req Request) ([]byte, error) {
	resp, err := c.send(ctx, req)
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, resp.requestError(req)
	}
	return resp.body, nil
}

// FetchStatus performs one GET against a status URL.
func (c *Client) FetchStatus(ctx context.Context, statusURL string) (json.RawMessage, error) {
	body, err := c.Do(ctx, Request{Method: http.MethodGet, URL: statusURL})
	if err != nil {
		return nil, err
	}
	return json.RawMessage(body), nil
}

// Cancel asks the provider to cancel a job. Any 2xx answer is success.
func (c *Client) Cancel(ctx context.Context, method, cancelURL string) error {
	if method == "" {
		method = http.MethodPut
	}
	_, err := c.Do(ctx, Request{Method: method, URL: cancelURL})
	return err
}

// response is a fully read HTTP response.
type response struct {
	code   int
	status string
	body   []byte
}

func (r *response) ok() bool {
	return r.code >= 200 && r.code < 300
}

func (r *response) requestError(req Request) *RequestError {
	return &RequestError{
		Method:     req.method(),
		URL:        req.URL,
		StatusCode: r.code,
		Status:     r.status,
		Body:       string(r.body),
	}
}

func (r Request) method() string {
	if r.Method == "" {
		return http.MethodPost
	}
	return r.Method
}

// send builds the request, merges auth and family headers and reads the body.
func (c *Client) send(ctx context.Context, req Request) (*response, error) {
	if req.URL == "" {
		return nil, ErrURLRequired
	}

	var (
		body        io.Reader
		contentType string
	)
	switch {
	case req.Body != nil:
		body = bytes.NewReader(req.Body)
		contentType = req.ContentType
	case req.JSON != nil:
		b, err := json.Marshal(req.JSON)
		if err != nil {
			return nil, fmt.Errorf("jobs: marshal request: %w", err)
		}
		body = bytes.NewReader(b)
		contentType = "application/json"
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method(), req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("jobs: create request: %w", err)
	}

	auth, err := c.tokens.AuthHeaders(ctx)
	if err != nil {
		return nil, err
	}
	for k, vs := range auth {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	for k, vs := range req.Header {
		httpReq.Header.Del(k)
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("jobs: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("jobs: read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		if inv, ok := c.tokens.(invalidator); ok {
			inv.InvalidateIfCurrent(bearerToken(auth))
		}
	}

	return &response{code: resp.StatusCode, status: resp.Status, body: respBody}, nil
}

// bearerToken extracts the token sent in the Authorization header.
func bearerToken(h http.Header) string {
	v := h.Get("Authorization")
	if len(v) > len("Bearer ") && strings.EqualFold(v[:len("Bearer ")], "Bearer ") {
		return v[len("Bearer "):]
	}
	return v
}
