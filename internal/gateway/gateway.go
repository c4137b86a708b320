// Package gateway serves a local HTTP endpoint that forwards requests to the
// ERP API through the authenticated client. Local tools talk plain HTTP to
// the gateway and get bearer attachment and token refresh for free.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/florianilch/erpctl/internal/apiclient"
	"github.com/florianilch/erpctl/internal/observability/middleware"
	"github.com/florianilch/erpctl/internal/session"
)

// APIPrefix is stripped from incoming paths before forwarding.
const APIPrefix = "/api"

// Gateway is the local HTTP server.
type Gateway struct {
	mux     *http.ServeMux
	handler http.Handler
	server  *http.Server
	store   *session.Store
}

// Compile-time check that Gateway implements http.Handler
var _ http.Handler = (*Gateway)(nil)

// Option configures a Gateway.
type Option func(*gatewayConfig)

type gatewayConfig struct {
	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

// WithGatherer serves metrics from g at /metrics.
// If not provided, /metrics is not served.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(c *gatewayConfig) {
		c.gatherer = g
	}
}

// WithLogger sets the access logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *gatewayConfig) {
		c.logger = l
	}
}

// New creates a gateway forwarding /api/* through client.
func New(client *apiclient.Client, store *session.Store, opts ...Option) (*Gateway, error) {
	upstream := client.BaseURL()
	if upstream == nil {
		return nil, errors.New("gateway requires a client with a base URL")
	}

	cfg := &gatewayConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}

	reverseProxyHandler := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.Out.URL.Path = strings.TrimPrefix(pr.In.URL.Path, APIPrefix)
			pr.Out.URL.RawPath = ""
			pr.SetURL(upstream)
			// Credentials come from the session, never from the local caller.
			pr.Out.Header.Del("Authorization")
			pr.Out.Header.Del("Cookie")
		},
		Transport:    client.Transport(),
		ErrorHandler: proxyErrorHandler,
	}

	g := &Gateway{
		mux:   http.NewServeMux(),
		store: store,
	}

	g.mux.Handle(APIPrefix+"/", reverseProxyHandler)
	g.mux.HandleFunc("GET /healthz", g.handleHealth)
	g.mux.HandleFunc("GET /session", g.handleSession)
	if cfg.gatherer != nil {
		g.mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.gatherer, promhttp.HandlerOpts{}))
	}

	g.handler = applyMiddlewares(g.mux,
		middleware.Logging(cfg.logger),
		Recovery,
	)

	return g, nil
}

// ServeHTTP implements http.Handler interface
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.handler.ServeHTTP(w, r)
}

// Start starts the HTTP server in the background and returns immediately.
// Returns a channel for runtime errors and a startup error if any.
//
// Startup errors (port in use, permission denied) are returned immediately.
// Runtime errors are sent to the error channel.
//
// The caller is responsible for calling Shutdown() to stop the server.
func (g *Gateway) Start(ctx context.Context, address string) (<-chan error, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}

	g.server = &http.Server{
		Handler:      g,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute, // covers a refresh plus the replayed call
		IdleTimeout:  90 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)

	go func() {
		err := g.server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	return errCh, nil
}

// Shutdown performs graceful shutdown of the HTTP server.
func (g *Gateway) Shutdown(ctx context.Context) error {
	if g.server == nil {
		return nil
	}

	if err := g.server.Shutdown(ctx); err != nil {
		_ = g.server.Close()
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	return nil
}

func proxyErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, apiclient.ErrSessionExpired):
		writeJSONError(ctx, w, "session expired, log in again", http.StatusUnauthorized)
	case errors.Is(err, context.Canceled):
		// Client went away; nothing to answer.
		w.WriteHeader(499)
	default:
		slog.ErrorContext(ctx, "upstream request failed", "error", err)
		writeJSONError(ctx, w, "upstream request failed", http.StatusBadGateway)
	}
}
