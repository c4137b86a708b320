package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/florianilch/erpctl/internal/apiclient"
	"github.com/florianilch/erpctl/internal/authservice"
	"github.com/florianilch/erpctl/internal/credstore"
	"github.com/florianilch/erpctl/internal/customers"
	"github.com/florianilch/erpctl/internal/gateway"
	"github.com/florianilch/erpctl/internal/session"
)

// LoginRoute is where an expired session sends the user.
const LoginRoute = "/login"

// App wires the session store, the authenticated client and the services
// built on it, and runs the local gateway.
type App struct {
	cfg      *Config
	backend  credstore.Backend
	store    *session.Store
	client   *apiclient.Client
	auth     *authservice.Manager
	accounts *authservice.Service
	custs    *customers.Service
	registry *prometheus.Registry
}

// Option configures an App.
type Option func(*appOptions)

type appOptions struct {
	expired apiclient.SessionExpiredHandler
}

// WithSessionExpiredHandler replaces the default handler, which logs the
// expiry and points the user at LoginRoute.
func WithSessionExpiredHandler(h apiclient.SessionExpiredHandler) Option {
	return func(o *appOptions) {
		o.expired = h
	}
}

// New creates a new App instance and restores the persisted session.
func New(ctx context.Context, cfg *Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	o := &appOptions{expired: apiclient.SessionExpiredFunc(logSessionExpired)}
	for _, opt := range opts {
		opt(o)
	}

	backend, err := cfg.Auth.NewBackend()
	if err != nil {
		return nil, fmt.Errorf("failed to create session storage: %w", err)
	}

	store := session.NewStore(backend)
	if err := store.Restore(ctx); err != nil {
		closeBackend(backend)
		return nil, fmt.Errorf("failed to restore session: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	client, err := apiclient.New(store,
		apiclient.WithBaseURL(cfg.API.BaseURL),
		apiclient.WithTimeout(cfg.API.Timeout),
		apiclient.WithRefreshPath(cfg.API.RefreshPath),
		apiclient.WithSessionExpiredHandler(o.expired),
		apiclient.WithMetrics(apiclient.NewMetrics(registry)),
	)
	if err != nil {
		closeBackend(backend)
		return nil, fmt.Errorf("failed to create API client: %w", err)
	}

	accounts := authservice.New(client)
	client.SetRefresher(accounts)

	return &App{
		cfg:      cfg,
		backend:  backend,
		store:    store,
		client:   client,
		auth:     authservice.NewManager(accounts, store),
		accounts: accounts,
		custs:    customers.NewService(client),
		registry: registry,
	}, nil
}

// Session returns the credential store.
func (a *App) Session() *session.Store { return a.store }

// Client returns the authenticated API client.
func (a *App) Client() *apiclient.Client { return a.client }

// Auth returns the session flows (login, logout, revoke-all).
func (a *App) Auth() *authservice.Manager { return a.auth }

// Accounts returns the raw authentication service.
func (a *App) Accounts() *authservice.Service { return a.accounts }

// Customers returns the customer service.
func (a *App) Customers() *customers.Service { return a.custs }

// Close releases storage connections.
func (a *App) Close() error {
	if c, ok := a.backend.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Start starts the gateway and blocks until shutdown is triggered.
// Uses errgroup for runtime error monitoring and shutdown function collection for coordinated cleanup.
func (a *App) Start(ctx context.Context) error {
	gw, err := gateway.New(a.client, a.store, gateway.WithGatherer(a.registry))
	if err != nil {
		return fmt.Errorf("failed to create gateway: %w", err)
	}

	g, gCtx := errgroup.WithContext(ctx)

	address := a.cfg.Gateway.Host + ":" + strconv.FormatUint(uint64(a.cfg.Gateway.Port), 10)
	var shutdownFuncs []func(context.Context) error

	slog.InfoContext(gCtx, "starting gateway", "address", address, "upstream", a.cfg.API.BaseURL)
	gwErrCh, err := gw.Start(gCtx, address)
	if err != nil {
		return fmt.Errorf("gateway startup failed: %w", err)
	}
	shutdownFuncs = append(shutdownFuncs, gw.Shutdown)

	// Monitor runtime errors - errgroup cancels context on first error
	g.Go(func() error {
		select {
		case err := <-gwErrCh:
			if err != nil {
				slog.ErrorContext(gCtx, "gateway runtime error", "error", err)
				return fmt.Errorf("gateway: %w", err)
			}
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	slog.InfoContext(gCtx, "application ready", "address", address, "authenticated", a.store.Get().IsAuthenticated)

	runtimeErr := g.Wait()

	slog.InfoContext(gCtx, "shutting down services")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Shutdown.Timeout)
	defer cancel()

	var errs []error
	if runtimeErr != nil {
		errs = append(errs, fmt.Errorf("runtime: %w", runtimeErr))
	}

	for i := len(shutdownFuncs) - 1; i >= 0; i-- {
		if err := shutdownFuncs[i](shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "service shutdown failed", "error", err)
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	slog.Info("application stopped")
	return nil
}

func logSessionExpired(ctx context.Context, cause error) {
	slog.WarnContext(ctx, "session expired, log in again", "route", LoginRoute, "error", cause)
}

func closeBackend(b credstore.Backend) {
	if c, ok := b.(io.Closer); ok {
		_ = c.Close()
	}
}
