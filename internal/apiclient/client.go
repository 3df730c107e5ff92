// Package apiclient talks to the GLI REST API. Every response is wrapped in a
// {data, meta, error, trace_id} envelope; callers only ever see data or *Error.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"greenlabel.or.id/admin/internal/ids"
	"greenlabel.or.id/admin/internal/obs"
)

const (
	headerAuthorization = "Authorization"
	headerContentType   = "Content-Type"
	headerRequestID     = "X-Request-ID"
	bearer              = "Bearer "

	maxBody = 16 << 20
)

// TokenSource yields the current bearer token, or "" when signed out.
type TokenSource interface {
	Token() string
}

// TokenFunc adapts a function to TokenSource.
type TokenFunc func() string

func (f TokenFunc) Token() string { return f() }

// Requester is what the session and stores need from a client.
type Requester interface {
	Fetch(ctx context.Context, path string, opts RequestOptions, out any) error
}

// Client is safe for concurrent use.
type Client struct {
	base      string
	http      *http.Client
	tokens    TokenSource
	limiter   *rate.Limiter
	metrics   *obs.ClientMetrics
	userAgent string
}

// Option configures Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTokenSource sets where bearer tokens come from.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// WithRateLimit throttles outbound calls. perSecond <= 0 disables throttling.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithMetrics records per-call metrics.
func WithMetrics(m *obs.ClientMetrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = strings.TrimSpace(ua) }
}

// New builds a client rooted at baseURL (e.g. http://localhost:8080/api).
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		base:      strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:      &http.Client{Timeout: 15 * time.Second},
		userAgent: "gli-admin",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetTokenSource swaps the token source after construction; the session is
// built on top of the client, so it is wired in afterwards.
func (c *Client) SetTokenSource(ts TokenSource) { c.tokens = ts }

// BaseURL returns the configured API root.
func (c *Client) BaseURL() string { return c.base }

// RequestOptions describes one call. The zero value is an authenticated GET.
type RequestOptions struct {
	Method   string
	Body     any
	SkipAuth bool
	Headers  http.Header
	Query    url.Values
}

// MultipartBody is a pre-encoded multipart form. It is sent as-is with its own
// content type.
type MultipartBody struct {
	ContentType string
	Data        []byte
}

// NewMultipartBody encodes a form using fill to write the parts.
func NewMultipartBody(fill func(w *multipart.Writer) error) (*MultipartBody, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := fill(w); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return &MultipartBody{ContentType: w.FormDataContentType(), Data: buf.Bytes()}, nil
}

type errorPayload struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Details json.RawMessage `json:"details,omitempty"`
}

type envelope struct {
	Data    json.RawMessage `json:"data"`
	Meta    json.RawMessage `json:"meta,omitempty"`
	Error   *errorPayload   `json:"error,omitempty"`
	TraceID string          `json:"trace_id,omitempty"`
}

// Do performs the call and decodes the envelope's data into T.
func Do[T any](ctx context.Context, c *Client, path string, opts RequestOptions) (T, error) {
	var out T
	err := c.Fetch(ctx, path, opts, &out)
	return out, err
}

// Fetch performs the call and decodes the envelope's data into out. A nil out
// or an empty payload leaves out untouched.
func (c *Client) Fetch(ctx context.Context, path string, opts RequestOptions, out any) error {
	raw, status, err := c.send(ctx, path, opts)
	if err != nil {
		return err
	}
	if out == nil || len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &Error{
			Status:  status,
			Code:    "decode_error",
			Message: fmt.Sprintf("decode %s response: %v", normalizePath(path), err),
			Err:     err,
		}
	}
	return nil
}

// Call performs the request and discards the payload.
func (c *Client) Call(ctx context.Context, path string, opts RequestOptions) error {
	return c.Fetch(ctx, path, opts, nil)
}

func (c *Client) send(ctx context.Context, path string, opts RequestOptions) (json.RawMessage, int, error) {
	method := strings.ToUpper(strings.TrimSpace(opts.Method))
	if method == "" {
		method = http.MethodGet
	}
	path = normalizePath(path)

	req, err := c.newRequest(ctx, method, path, opts)
	if err != nil {
		return nil, 0, &Error{Message: err.Error(), Err: err}
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, 0, &Error{Message: err.Error(), Err: err}
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.Observe(method, path, 0, time.Since(start))
		return nil, 0, &Error{Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()
	c.metrics.Observe(method, path, resp.StatusCode, time.Since(start))

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, resp.StatusCode, &Error{Status: resp.StatusCode, Message: err.Error(), Err: err}
	}

	var env envelope
	decodeErr := error(nil)
	if len(bytes.TrimSpace(body)) > 0 {
		decodeErr = json.Unmarshal(body, &env)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resp.StatusCode, failure(method, path, resp.StatusCode, env, decodeErr)
	}
	if decodeErr != nil {
		return nil, resp.StatusCode, &Error{
			Status:  resp.StatusCode,
			Code:    "decode_error",
			Message: fmt.Sprintf("decode %s envelope: %v", path, decodeErr),
			Err:     decodeErr,
		}
	}
	if env.Error != nil {
		return nil, resp.StatusCode, failure(method, path, resp.StatusCode, env, nil)
	}
	return env.Data, resp.StatusCode, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, opts RequestOptions) (*http.Request, error) {
	target := c.base + path
	if len(opts.Query) > 0 {
		target += "?" + opts.Query.Encode()
	}

	headers := http.Header{}
	for k, vals := range opts.Headers {
		for _, v := range vals {
			headers.Add(k, v)
		}
	}

	var body io.Reader
	switch b := opts.Body.(type) {
	case nil:
	case *MultipartBody:
		body = bytes.NewReader(b.Data)
		if b.ContentType != "" {
			headers.Set(headerContentType, b.ContentType)
		}
	default:
		payload, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(payload)
		if headers.Get(headerContentType) == "" {
			headers.Set(headerContentType, "application/json")
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	req.Header = headers
	req.Header.Set("Accept", "application/json")
	if req.Header.Get(headerRequestID) == "" {
		req.Header.Set(headerRequestID, ids.RequestID())
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if !opts.SkipAuth && c.tokens != nil {
		if token := c.tokens.Token(); token != "" {
			req.Header.Set(headerAuthorization, bearer+token)
		}
	}
	return req, nil
}

func failure(method, path string, status int, env envelope, decodeErr error) *Error {
	e := &Error{Status: status, TraceID: env.TraceID, Err: decodeErr}
	if env.Error != nil {
		e.Code = env.Error.Code
		e.Message = env.Error.Message
		e.Details = env.Error.Details
	}
	if e.Message == "" {
		e.Message = fmt.Sprintf("[%s] %s: %d %s", method, path, status, http.StatusText(status))
	}
	return e
}

func normalizePath(path string) string {
	path = strings.TrimSpace(path)
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}

// PathEscape escapes one path segment, mirroring encodeURIComponent.
func PathEscape(segment string) string {
	return url.PathEscape(segment)
}
