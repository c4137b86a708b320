package apiclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/florianilch/erpctl/internal/session"
)

// CredentialStore is the part of session.Store the client depends on.
type CredentialStore interface {
	// Snapshot returns the current credentials and the session epoch.
	Snapshot() (session.Credentials, uint64)
	// UpdateTokensIf stores a refreshed pair if the session is still at epoch.
	UpdateTokensIf(ctx context.Context, epoch uint64, accessToken, refreshToken string) bool
	// ClearAuthIf tears the session down if it is still at epoch.
	ClearAuthIf(ctx context.Context, epoch uint64) bool
}

// Compile-time check to ensure session.Store satisfies CredentialStore
var _ CredentialStore = (*session.Store)(nil)

// Refresher exchanges a refresh token for a new token pair.
type Refresher interface {
	RefreshTokens(ctx context.Context, refreshToken string) (accessToken, newRefreshToken string, err error)
}

// RefresherFunc adapts an ordinary function to Refresher.
type RefresherFunc func(ctx context.Context, refreshToken string) (string, string, error)

// RefreshTokens calls f.
func (f RefresherFunc) RefreshTokens(ctx context.Context, refreshToken string) (string, string, error) {
	return f(ctx, refreshToken)
}

// SessionExpiredHandler is notified when a session ends through an
// unrecoverable authentication failure. It is called at most once per session.
type SessionExpiredHandler interface {
	SessionExpired(ctx context.Context, cause error)
}

// SessionExpiredFunc adapts an ordinary function to SessionExpiredHandler.
type SessionExpiredFunc func(ctx context.Context, cause error)

// SessionExpired calls f.
func (f SessionExpiredFunc) SessionExpired(ctx context.Context, cause error) {
	f(ctx, cause)
}

// outcome is what a pending request receives when the refresh it waits on ends.
type outcome struct {
	token string
	err   error
}

// pendingRequest is a one-shot completion handle for a queued request.
type pendingRequest struct {
	done    chan outcome
	settled atomic.Bool
}

func newPendingRequest() *pendingRequest {
	return &pendingRequest{done: make(chan outcome, 1)}
}

// settle delivers o. Only the first call has an effect; it reports whether
// this call delivered.
func (p *pendingRequest) settle(o outcome) bool {
	if !p.settled.CompareAndSwap(false, true) {
		return false
	}
	p.done <- o
	return true
}

// Coordinator serializes token refreshes. It is IDLE or REFRESHING; while
// REFRESHING every request that needs a fresh token is queued and released
// in arrival order when the single in-flight refresh ends.
type Coordinator struct {
	store   CredentialStore
	expired SessionExpiredHandler
	metrics *Metrics
	tracer  trace.Tracer

	mu         sync.Mutex
	refresher  Refresher
	refreshing bool
	pending    []*pendingRequest
}

func newCoordinator(store CredentialStore, expired SessionExpiredHandler, metrics *Metrics, tracer trace.Tracer) *Coordinator {
	return &Coordinator{
		store:   store,
		expired: expired,
		metrics: metrics,
		tracer:  tracer,
	}
}

// SetRefresher installs the refresh implementation.
func (c *Coordinator) SetRefresher(r Refresher) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refresher = r
}

// Refreshing reports whether a refresh call is in flight.
func (c *Coordinator) Refreshing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshing
}

// Recover obtains an access token to replay a request that failed with 401.
// sentToken is the access token the request carried and epoch the session it
// was sent under; cause is the 401 itself.
//
// If a refresh is in flight the caller waits for it. Otherwise, if a newer
// access token is already stored, it is returned without refreshing. Failing
// both, the caller becomes the one to refresh. Fatal outcomes tear the session
// down and return an error wrapping ErrSessionExpired.
func (c *Coordinator) Recover(ctx context.Context, sentToken string, epoch uint64, cause error) (string, error) {
	c.mu.Lock()

	if c.refreshing {
		p := newPendingRequest()
		c.pending = append(c.pending, p)
		c.mu.Unlock()

		c.metrics.queue()
		slog.DebugContext(ctx, "waiting for in-flight token refresh")
		// No independent cancellation: the refresh always settles p.
		o := <-p.done
		return o.token, o.err
	}

	creds, current := c.store.Snapshot()

	// A refresh (or a new login) completed after this request was sent.
	if creds.AccessToken != "" && creds.AccessToken != sentToken {
		c.mu.Unlock()
		return creds.AccessToken, nil
	}

	if creds.RefreshToken == "" {
		c.mu.Unlock()
		c.Expire(ctx, epoch, cause)
		return "", sessionExpired(fmt.Errorf("%w: %w", ErrNoRefreshToken, cause))
	}

	refresher := c.refresher
	c.refreshing = true
	c.mu.Unlock()

	token, err := c.refresh(ctx, refresher, creds.RefreshToken, current)
	if err != nil {
		fatal := err
		if !errors.Is(fatal, ErrSessionExpired) {
			fatal = sessionExpired(err)
		}
		// Clear before going IDLE so no new refresh starts from the dead token.
		c.Expire(ctx, current, err)
		c.release(outcome{err: fatal})
		return "", fatal
	}

	c.release(outcome{token: token})
	return token, nil
}

// refresh performs the single refresh call and stores the new token pair in
// the session at epoch. If that session ended while the call was in flight the
// pair is discarded.
func (c *Coordinator) refresh(ctx context.Context, refresher Refresher, refreshToken string, epoch uint64) (string, error) {
	// The refresh runs to completion even if the initiating caller goes away;
	// queued callers depend on its outcome. The transport timeout still applies.
	ctx = withRefreshCall(context.WithoutCancel(ctx))
	ctx, span := c.tracer.Start(ctx, "apiclient.refresh")
	defer span.End()

	slog.DebugContext(ctx, "refreshing access token")

	var (
		access, next string
		err          error
	)
	if refresher == nil {
		err = ErrNoRefresher
	} else {
		access, next, err = refresher.RefreshTokens(ctx, refreshToken)
		if err == nil && (access == "" || next == "") {
			err = errors.New("refresh returned an incomplete token pair")
		}
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "refresh failed")
		c.metrics.refresh("failure")
		slog.WarnContext(ctx, "token refresh failed", "error", err)
		return "", err
	}

	if !c.store.UpdateTokensIf(ctx, epoch, access, next) {
		c.metrics.refresh("discarded")
		slog.InfoContext(ctx, "session ended during token refresh, discarding new tokens")
		return "", sessionExpired(ErrSessionEnded)
	}

	c.metrics.refresh("success")
	slog.DebugContext(ctx, "access token refreshed")
	return access, nil
}

// release settles every queued request with o, in arrival order, and
// returns the coordinator to IDLE.
func (c *Coordinator) release(o outcome) {
	c.mu.Lock()
	waiters := c.pending
	c.pending = nil
	c.refreshing = false
	c.mu.Unlock()

	for _, p := range waiters {
		p.settle(o)
	}
}

// Expire ends the session at epoch. Repeated calls for the same epoch are
// no-ops, so the handler fires once per session however many requests fail.
func (c *Coordinator) Expire(ctx context.Context, epoch uint64, cause error) {
	if !c.store.ClearAuthIf(ctx, epoch) {
		return
	}

	c.metrics.expire()
	slog.WarnContext(ctx, "session expired", "error", cause)

	if c.expired != nil {
		c.expired.SessionExpired(ctx, cause)
	}
}

type refreshCallKey struct{}

// withRefreshCall marks ctx as belonging to the refresh call, so a 401 on it
// is never fed back into the coordinator.
func withRefreshCall(ctx context.Context) context.Context {
	return context.WithValue(ctx, refreshCallKey{}, true)
}

func isRefreshCall(ctx context.Context) bool {
	v, _ := ctx.Value(refreshCallKey{}).(bool)
	return v
}
