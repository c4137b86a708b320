package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/oauth2"

	"github.com/florianilch/erpctl/internal/credstore"
)

// StorageKey is the namespace the session state is persisted under.
const StorageKey = "auth-storage"

// ErrNotAuthenticated is returned by Token when no access token is held.
var ErrNotAuthenticated = errors.New("not authenticated")

// Compile-time check to ensure Store satisfies oauth2.TokenSource
var _ oauth2.TokenSource = (*Store)(nil)

// persistedState is the on-disk shape of the session.
// Absent values are written as JSON null.
type persistedState struct {
	State struct {
		AccessToken     *string `json:"accessToken"`
		RefreshToken    *string `json:"refreshToken"`
		User            *User   `json:"user"`
		IsAuthenticated bool    `json:"isAuthenticated"`
	} `json:"state"`
	Version int `json:"version"`
}

// Store is the process-wide credential store.
//
// Every mutation replaces the token pair atomically. The epoch advances
// whenever a session begins or ends, letting callers tear down a session
// exactly once via ClearAuthIf.
type Store struct {
	backend credstore.Backend

	mu    sync.RWMutex
	creds Credentials
	epoch uint64
	seq   uint64

	// writeMu serializes backend writes; lastWrite drops stale snapshots
	// that lost the race against a newer mutation.
	writeMu   sync.Mutex
	lastWrite uint64
}

// NewStore creates an empty Store persisting through backend.
// A nil backend keeps the session in memory only.
func NewStore(backend credstore.Backend) *Store {
	return &Store{backend: backend}
}

// Restore loads the persisted session, replacing the in-memory state.
// Missing or undecodable state leaves the store empty; only backend read
// failures are returned.
func (s *Store) Restore(ctx context.Context) error {
	if s.backend == nil {
		return nil
	}

	data, err := s.backend.Read(ctx)
	if errors.Is(err, credstore.ErrNotFound) {
		slog.DebugContext(ctx, "no persisted session")
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading persisted session: %w", err)
	}

	creds, err := decodeState(data)
	if err != nil {
		slog.WarnContext(ctx, "discarding unreadable persisted session", "error", err)
		return nil
	}

	s.mu.Lock()
	s.creds = creds
	s.epoch++
	s.mu.Unlock()

	slog.DebugContext(ctx, "session restored", "authenticated", creds.IsAuthenticated)
	return nil
}

// Get returns the current credentials snapshot.
func (s *Store) Get() Credentials {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Token returns the current access token. It never refreshes; expired
// tokens are recovered by the API client on 401.
func (s *Store) Token() (*oauth2.Token, error) {
	tok := s.Get().OAuth2Token()
	if tok == nil {
		return nil, ErrNotAuthenticated
	}
	return tok, nil
}

// Epoch returns the current session epoch.
func (s *Store) Epoch() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epoch
}

// Snapshot returns the credentials together with the epoch they belong to.
func (s *Store) Snapshot() (Credentials, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked(), s.epoch
}

// SetAuth starts a new session with the given tokens and user.
func (s *Store) SetAuth(ctx context.Context, accessToken, refreshToken string, user *User) {
	s.mutate(ctx, func() bool {
		s.creds = Credentials{
			AccessToken:     accessToken,
			RefreshToken:    refreshToken,
			User:            cloneUser(user),
			IsAuthenticated: accessToken != "" && refreshToken != "",
		}
		s.epoch++
		return true
	})
}

// UpdateTokens replaces the token pair after a refresh.
// User and IsAuthenticated are left untouched.
func (s *Store) UpdateTokens(ctx context.Context, accessToken, refreshToken string) {
	s.mutate(ctx, func() bool {
		s.creds.AccessToken = accessToken
		s.creds.RefreshToken = refreshToken
		return true
	})
}

// UpdateTokensIf replaces the token pair only if the session is still at the
// given epoch. A refresh that completes after a logout or teardown must not
// revive the cleared session.
func (s *Store) UpdateTokensIf(ctx context.Context, epoch uint64, accessToken, refreshToken string) bool {
	updated := false
	s.mutate(ctx, func() bool {
		if s.epoch != epoch {
			return false
		}
		s.creds.AccessToken = accessToken
		s.creds.RefreshToken = refreshToken
		updated = true
		return true
	})
	return updated
}

// ClearAuth resets the store to the empty, unauthenticated state.
func (s *Store) ClearAuth(ctx context.Context) {
	s.mutate(ctx, func() bool {
		s.creds = Credentials{}
		s.epoch++
		return true
	})
}

// ClearAuthIf clears the session only if it is still at the given epoch and
// holds anything to clear. Reports whether this call performed the teardown.
func (s *Store) ClearAuthIf(ctx context.Context, epoch uint64) bool {
	cleared := false
	s.mutate(ctx, func() bool {
		if s.epoch != epoch || s.creds.Empty() {
			return false
		}
		s.creds = Credentials{}
		s.epoch++
		cleared = true
		return true
	})
	return cleared
}

// mutate applies fn under the write lock and persists the result if fn
// reports a change.
func (s *Store) mutate(ctx context.Context, fn func() bool) {
	s.mu.Lock()
	if !fn() {
		s.mu.Unlock()
		return
	}
	s.seq++
	seq := s.seq
	creds := s.snapshotLocked()
	s.mu.Unlock()

	// Persist even if the caller gives up; the in-memory state already changed.
	s.persist(context.WithoutCancel(ctx), seq, creds)
}

func (s *Store) persist(ctx context.Context, seq uint64, creds Credentials) {
	if s.backend == nil {
		return
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if seq <= s.lastWrite {
		return
	}
	s.lastWrite = seq

	data, err := encodeState(creds)
	if err != nil {
		slog.ErrorContext(ctx, "failed to encode session state", "error", err)
		return
	}

	if err := s.backend.Write(ctx, data); err != nil {
		if errors.Is(err, credstore.ErrReadOnly) {
			slog.DebugContext(ctx, "session storage is read-only, keeping state in memory")
			return
		}
		slog.ErrorContext(ctx, "failed to persist session state", "error", err)
	}
}

func (s *Store) snapshotLocked() Credentials {
	c := s.creds
	c.User = cloneUser(s.creds.User)
	return c
}

func encodeState(creds Credentials) ([]byte, error) {
	var p persistedState
	if creds.AccessToken != "" {
		p.State.AccessToken = &creds.AccessToken
	}
	if creds.RefreshToken != "" {
		p.State.RefreshToken = &creds.RefreshToken
	}
	p.State.User = creds.User
	p.State.IsAuthenticated = creds.IsAuthenticated
	return json.Marshal(p)
}

func decodeState(data []byte) (Credentials, error) {
	var p persistedState
	if err := json.Unmarshal(data, &p); err != nil {
		return Credentials{}, err
	}

	var creds Credentials
	if p.State.AccessToken != nil {
		creds.AccessToken = *p.State.AccessToken
	}
	if p.State.RefreshToken != nil {
		creds.RefreshToken = *p.State.RefreshToken
	}
	creds.User = p.State.User
	// Never trust a persisted flag that contradicts the token pair.
	creds.IsAuthenticated = p.State.IsAuthenticated && creds.AccessToken != "" && creds.RefreshToken != ""
	return creds, nil
}
