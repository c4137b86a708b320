package gateway

import (
	"net/http"
	"time"

	"github.com/florianilch/erpctl/internal/session"
)

// SessionStatus is the body of GET /session.
type SessionStatus struct {
	Authenticated bool          `json:"authenticated"`
	User          *session.User `json:"user,omitempty"`
	// ExpiresAt is the access token's expiry when it carries one.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, map[string]string{"status": "ok"}, http.StatusOK)
}

func (g *Gateway) handleSession(w http.ResponseWriter, r *http.Request) {
	creds := g.store.Get()
	status := SessionStatus{
		Authenticated: creds.IsAuthenticated,
		User:          creds.User,
	}
	if tok, err := g.store.Token(); err == nil && !tok.Expiry.IsZero() {
		expiry := tok.Expiry.UTC()
		status.ExpiresAt = &expiry
	}
	writeJSON(r.Context(), w, status, http.StatusOK)
}
