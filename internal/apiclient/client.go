package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"
)

const (
	// DefaultTimeout bounds every outbound call, the refresh call included.
	DefaultTimeout = 10 * time.Second

	// DefaultRefreshPath is the ERP endpoint exchanging refresh tokens.
	DefaultRefreshPath = "/auth/refresh-token"

	// RequestIDHeader correlates a request and its replay in server logs.
	RequestIDHeader = "X-Request-Id"

	tracerName = "github.com/florianilch/erpctl/internal/apiclient"
)

// Option configures a Client.
type Option func(*clientConfig)

// clientConfig holds configuration for New.
type clientConfig struct {
	baseURL     string
	timeout     time.Duration
	refreshPath string
	transport   http.RoundTripper
	expired     SessionExpiredHandler
	metrics     *Metrics
	tracer      trace.Tracer
}

// WithBaseURL sets the ERP API base URL that request paths are resolved against.
func WithBaseURL(baseURL string) Option {
	return func(c *clientConfig) {
		c.baseURL = baseURL
	}
}

// WithTimeout sets the per-call timeout. Defaults to DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(c *clientConfig) {
		c.timeout = d
	}
}

// WithRefreshPath sets the path of the refresh endpoint. A 401 from a request
// whose path ends with it is never retried.
func WithRefreshPath(path string) Option {
	return func(c *clientConfig) {
		c.refreshPath = path
	}
}

// WithTransport sets a custom base transport.
// If not provided, http.DefaultTransport is used.
func WithTransport(transport http.RoundTripper) Option {
	return func(c *clientConfig) {
		c.transport = transport
	}
}

// WithSessionExpiredHandler sets the handler notified when a session ends.
func WithSessionExpiredHandler(h SessionExpiredHandler) Option {
	return func(c *clientConfig) {
		c.expired = h
	}
}

// WithMetrics records refresh activity in m.
func WithMetrics(m *Metrics) Option {
	return func(c *clientConfig) {
		c.metrics = m
	}
}

// WithTracer overrides the tracer used for refresh spans.
func WithTracer(t trace.Tracer) Option {
	return func(c *clientConfig) {
		c.tracer = t
	}
}

// Client sends authenticated requests to the ERP API.
type Client struct {
	baseURL     *url.URL
	refreshPath string
	httpClient  *http.Client
	store       CredentialStore
	coordinator *Coordinator
	metrics     *Metrics
}

// New creates a Client reading credentials from store. Call SetRefresher
// before the first request that may need a refresh.
func New(store CredentialStore, opts ...Option) (*Client, error) {
	if store == nil {
		return nil, fmt.Errorf("missing credential store")
	}

	cfg := &clientConfig{
		timeout:     DefaultTimeout,
		refreshPath: DefaultRefreshPath,
		transport:   http.DefaultTransport,
		tracer:      otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	var base *url.URL
	if cfg.baseURL != "" {
		u, err := url.Parse(cfg.baseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid base URL: %w", err)
		}
		if u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("invalid base URL %q: scheme and host required", cfg.baseURL)
		}
		base = u
	}

	return &Client{
		baseURL:     base,
		refreshPath: cfg.refreshPath,
		httpClient: &http.Client{
			Timeout:   cfg.timeout,
			Transport: cfg.transport,
		},
		store:       store,
		coordinator: newCoordinator(store, cfg.expired, cfg.metrics, cfg.tracer),
		metrics:     cfg.metrics,
	}, nil
}

// SetRefresher installs the implementation used to refresh tokens. The auth
// service issues its own calls through this client, so it is bound after
// construction.
func (c *Client) SetRefresher(r Refresher) {
	c.coordinator.SetRefresher(r)
}

// Coordinator exposes the client's refresh coordinator.
func (c *Client) Coordinator() *Coordinator {
	return c.coordinator
}

// BaseURL returns a copy of the configured base URL, or nil.
func (c *Client) BaseURL() *url.URL {
	if c.baseURL == nil {
		return nil
	}
	u := *c.baseURL
	return &u
}

// Transport returns an http.RoundTripper sending requests through c,
// for use with httputil.ReverseProxy and similar consumers.
func (c *Client) Transport() http.RoundTripper {
	return roundTripperFunc(c.Do)
}

// NewRequest builds a request for path relative to the base URL. A non-nil
// body is encoded as JSON.
func (c *Client) NewRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	target, err := c.resolve(path)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// GetJSON issues a GET and decodes the response envelope into out.
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	return c.doJSON(ctx, http.MethodGet, path, nil, out)
}

// PostJSON issues a POST with in as JSON body and decodes the response
// envelope into out. Either may be nil.
func (c *Client) PostJSON(ctx context.Context, path string, in, out any) error {
	return c.doJSON(ctx, http.MethodPost, path, in, out)
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	req, err := c.NewRequest(ctx, method, path, in)
	if err != nil {
		return err
	}

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	return decodeResponse(req, resp, out)
}

// Do sends req with the current access token. Responses other than 401 and
// transport errors are returned unchanged. A 401 is recovered by refreshing
// and replaying req once; unrecoverable 401s return an error wrapping
// ErrSessionExpired and the causing *StatusError.
//
// req's body is buffered so the replay is byte-identical.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if err := rewindable(req); err != nil {
		return nil, err
	}

	ctx := req.Context()
	requestID := req.Header.Get(RequestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
	}

	creds, epoch := c.store.Snapshot()
	resp, err := c.send(req, creds.AccessToken, requestID)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}

	cause := newStatusError(req, resp)

	// A 401 from the refresh call means the refresh token itself is dead.
	if c.isRefreshCall(req) {
		c.coordinator.Expire(ctx, epoch, cause)
		return nil, sessionExpired(cause)
	}

	token, err := c.coordinator.Recover(ctx, creds.AccessToken, epoch, cause)
	if err != nil {
		return nil, err
	}

	_, replayEpoch := c.store.Snapshot()
	c.metrics.replay()
	resp, err = c.send(req, token, requestID)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}

	// The replay was the one retry this request gets.
	cause = newStatusError(req, resp)
	c.coordinator.Expire(ctx, replayEpoch, cause)
	return nil, sessionExpired(cause)
}

// send issues one attempt of req with accessToken as bearer credential.
// req itself is never modified.
func (c *Client) send(req *http.Request, accessToken, requestID string) (*http.Response, error) {
	out := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("rewinding request body: %w", err)
		}
		out.Body = body
	}

	// Server-side requests (e.g. from a reverse proxy) carry a RequestURI.
	out.RequestURI = ""
	out.Header.Set(RequestIDHeader, requestID)
	out.Header.Del("Authorization")
	if accessToken != "" {
		(&oauth2.Token{AccessToken: accessToken}).SetAuthHeader(out)
	}

	return c.httpClient.Do(out)
}

func (c *Client) isRefreshCall(req *http.Request) bool {
	if isRefreshCall(req.Context()) {
		return true
	}
	return c.refreshPath != "" && req.URL != nil && strings.HasSuffix(req.URL.Path, c.refreshPath)
}

// resolve joins path (which may carry a query) onto the base URL.
func (c *Client) resolve(path string) (string, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("invalid request path %q: %w", path, err)
	}
	if ref.IsAbs() || c.baseURL == nil {
		return ref.String(), nil
	}

	u := c.baseURL.JoinPath(ref.Path)
	u.RawQuery = ref.RawQuery
	return u.String(), nil
}

// rewindable makes req's body replayable by buffering it when no GetBody
// is available.
func rewindable(req *http.Request) error {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return nil
	}

	data, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return fmt.Errorf("buffering request body: %w", err)
	}

	req.Body = io.NopCloser(bytes.NewReader(data))
	req.ContentLength = int64(len(data))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	return nil
}

// roundTripperFunc adapts a function to http.RoundTripper.
type roundTripperFunc func(*http.Request) (*http.Response, error)

// Compile-time check that roundTripperFunc implements http.RoundTripper.
var _ http.RoundTripper = roundTripperFunc(nil)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}
