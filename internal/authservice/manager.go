package authservice

import (
	"context"
	"errors"
	"log/slog"

	"github.com/florianilch/erpctl/internal/session"
)

// ErrNotLoggedIn is returned by operations that need a session when none is held.
var ErrNotLoggedIn = errors.New("not logged in")

// Manager runs the session flows: each server call paired with the matching
// credential store update.
type Manager struct {
	service *Service
	store   *session.Store
}

// NewManager creates a Manager binding service results to store.
func NewManager(service *Service, store *session.Store) *Manager {
	return &Manager{service: service, store: store}
}

// Login authenticates and starts a new session.
func (m *Manager) Login(ctx context.Context, creds Credentials) (*session.User, error) {
	sess, err := m.service.Login(ctx, creds)
	if err != nil {
		return nil, err
	}

	m.store.SetAuth(ctx, sess.AccessToken, sess.RefreshToken, sess.User)
	slog.InfoContext(ctx, "logged in", "username", creds.Username)
	return sess.User, nil
}

// Logout revokes the current refresh token and ends the session. The local
// session is cleared even when the server call fails.
func (m *Manager) Logout(ctx context.Context) error {
	refreshToken := m.store.Get().RefreshToken

	var err error
	if refreshToken != "" {
		err = m.service.Logout(ctx, refreshToken)
		if err != nil {
			slog.WarnContext(ctx, "server-side logout failed, clearing local session", "error", err)
		}
	}

	m.store.ClearAuth(ctx)
	return err
}

// RevokeAll revokes every token of the user and ends the session on success.
func (m *Manager) RevokeAll(ctx context.Context) error {
	if !m.store.Get().IsAuthenticated {
		return ErrNotLoggedIn
	}
	if err := m.service.RevokeAll(ctx); err != nil {
		return err
	}

	m.store.ClearAuth(ctx)
	return nil
}
