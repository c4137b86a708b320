package apiclient

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/florianilch/erpctl/internal/session"
)

func newTestCoordinator(store CredentialStore, expired SessionExpiredHandler) *Coordinator {
	return newCoordinator(store, expired, nil, noop.NewTracerProvider().Tracer("test"))
}

func TestPendingRequestSettlesOnce(t *testing.T) {
	p := newPendingRequest()

	assert.True(t, p.settle(outcome{token: "A2"}))
	assert.False(t, p.settle(outcome{err: errors.New("late")}))

	o := <-p.done
	assert.Equal(t, "A2", o.token)
	assert.NoError(t, o.err)

	select {
	case extra := <-p.done:
		t.Fatalf("unexpected second outcome: %+v", extra)
	default:
	}
}

func TestCoordinatorReleasesInArrivalOrder(t *testing.T) {
	c := newTestCoordinator(session.NewStore(nil), nil)

	c.refreshing = true
	waiters := make([]*pendingRequest, 5)
	for i := range waiters {
		waiters[i] = newPendingRequest()
		c.pending = append(c.pending, waiters[i])
	}

	c.release(outcome{token: "A2"})

	assert.False(t, c.Refreshing())
	assert.Empty(t, c.pending)
	for _, p := range waiters {
		assert.True(t, p.settled.Load())
		assert.Equal(t, "A2", (<-p.done).token)
	}
}

func TestCoordinatorQueuesWhileRefreshing(t *testing.T) {
	store := session.NewStore(nil)
	store.SetAuth(context.Background(), "A1", "R1", nil)

	started := make(chan struct{})
	finish := make(chan struct{})
	var calls int
	var mu sync.Mutex

	c := newTestCoordinator(store, nil)
	c.SetRefresher(RefresherFunc(func(ctx context.Context, rt string) (string, string, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		assert.True(t, isRefreshCall(ctx))
		assert.Equal(t, "R1", rt)
		close(started)
		<-finish
		return "A2", "R2", nil
	}))

	_, epoch := store.Snapshot()
	cause := &StatusError{StatusCode: 401}

	first := make(chan string, 1)
	go func() {
		token, err := c.Recover(context.Background(), "A1", epoch, cause)
		assert.NoError(t, err)
		first <- token
	}()
	<-started

	const queued = 3
	results := make(chan string, queued)
	for range queued {
		go func() {
			token, err := c.Recover(context.Background(), "A1", epoch, cause)
			assert.NoError(t, err)
			results <- token
		}()
	}

	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return len(c.pending) == queued
	}, time.Second, 5*time.Millisecond)

	close(finish)

	assert.Equal(t, "A2", <-first)
	for range queued {
		assert.Equal(t, "A2", <-results)
	}
	assert.Equal(t, 1, calls)
	assert.False(t, c.Refreshing())

	creds := store.Get()
	assert.Equal(t, "A2", creds.AccessToken)
	assert.Equal(t, "R2", creds.RefreshToken)
}

func TestCoordinatorStaleTokenSkipsRefresh(t *testing.T) {
	store := session.NewStore(nil)
	store.SetAuth(context.Background(), "A2", "R2", nil)

	c := newTestCoordinator(store, nil)
	c.SetRefresher(RefresherFunc(func(ctx context.Context, rt string) (string, string, error) {
		t.Fatal("refresh must not run")
		return "", "", nil
	}))

	token, err := c.Recover(context.Background(), "A1", store.Epoch(), &StatusError{StatusCode: 401})
	require.NoError(t, err)
	assert.Equal(t, "A2", token)
}

func TestCoordinatorWithoutRefresher(t *testing.T) {
	store := session.NewStore(nil)
	store.SetAuth(context.Background(), "A1", "R1", nil)

	var notified int
	c := newTestCoordinator(store, SessionExpiredFunc(func(ctx context.Context, cause error) {
		notified++
	}))

	_, err := c.Recover(context.Background(), "A1", store.Epoch(), &StatusError{StatusCode: 401})
	require.ErrorIs(t, err, ErrSessionExpired)
	require.ErrorIs(t, err, ErrNoRefresher)
	assert.Equal(t, 1, notified)
	assert.True(t, store.Get().Empty())
}

func TestCoordinatorRejectsIncompletePair(t *testing.T) {
	store := session.NewStore(nil)
	store.SetAuth(context.Background(), "A1", "R1", nil)

	c := newTestCoordinator(store, nil)
	c.SetRefresher(RefresherFunc(func(ctx context.Context, rt string) (string, string, error) {
		return "A2", "", nil
	}))

	_, err := c.Recover(context.Background(), "A1", store.Epoch(), &StatusError{StatusCode: 401})
	require.ErrorIs(t, err, ErrSessionExpired)
	assert.False(t, store.Get().IsAuthenticated)
}

func TestCoordinatorExpireOncePerEpoch(t *testing.T) {
	store := session.NewStore(nil)
	store.SetAuth(context.Background(), "A1", "R1", nil)
	epoch := store.Epoch()

	var mu sync.Mutex
	var notified int
	c := newTestCoordinator(store, SessionExpiredFunc(func(ctx context.Context, cause error) {
		mu.Lock()
		notified++
		mu.Unlock()
	}))

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Expire(context.Background(), epoch, errors.New("boom"))
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, notified)

	// A new login starts a new session that can expire again.
	store.SetAuth(context.Background(), "B1", "S1", nil)
	c.Expire(context.Background(), epoch, errors.New("stale"))
	assert.Equal(t, 1, notified)
	assert.Equal(t, "B1", store.Get().AccessToken)

	c.Expire(context.Background(), store.Epoch(), errors.New("boom"))
	assert.Equal(t, 2, notified)
}

func TestCoordinatorDiscardsRefreshForEndedSession(t *testing.T) {
	tests := []struct {
		name         string
		end          func(c *Coordinator, store *session.Store, epoch uint64)
		wantNotified int
	}{
		{
			name: "expired by another request",
			end: func(c *Coordinator, store *session.Store, epoch uint64) {
				c.Expire(context.Background(), epoch, &StatusError{StatusCode: 401})
			},
			wantNotified: 1,
		},
		{
			name: "logged out",
			end: func(c *Coordinator, store *session.Store, epoch uint64) {
				store.ClearAuth(context.Background())
			},
			wantNotified: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := session.NewStore(nil)
			store.SetAuth(context.Background(), "A1", "R1", nil)
			_, epoch := store.Snapshot()

			var mu sync.Mutex
			var notified int
			started := make(chan struct{})
			finish := make(chan struct{})

			c := newTestCoordinator(store, SessionExpiredFunc(func(ctx context.Context, cause error) {
				mu.Lock()
				notified++
				mu.Unlock()
			}))
			c.SetRefresher(RefresherFunc(func(ctx context.Context, rt string) (string, string, error) {
				close(started)
				<-finish
				return "A2", "R2", nil
			}))

			cause := &StatusError{StatusCode: 401}
			errs := make(chan error, 2)
			go func() {
				_, err := c.Recover(context.Background(), "A1", epoch, cause)
				errs <- err
			}()
			<-started

			go func() {
				_, err := c.Recover(context.Background(), "A1", epoch, cause)
				errs <- err
			}()
			require.Eventually(t, func() bool {
				c.mu.Lock()
				defer c.mu.Unlock()
				return len(c.pending) == 1
			}, time.Second, 5*time.Millisecond)

			tt.end(c, store, epoch)
			close(finish)

			for range 2 {
				err := <-errs
				require.ErrorIs(t, err, ErrSessionExpired)
				require.ErrorIs(t, err, ErrSessionEnded)
			}

			creds := store.Get()
			assert.True(t, creds.Empty())
			assert.False(t, creds.IsAuthenticated)
			assert.False(t, c.Refreshing())

			mu.Lock()
			defer mu.Unlock()
			assert.Equal(t, tt.wantNotified, notified)
		})
	}
}
