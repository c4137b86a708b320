// Package session holds the process-wide ERP credentials: the access and
// refresh token pair plus the identity of the logged-in user.
//
// A Store is the single authority for the current credentials. It is safe
// for concurrent use and persists every change through a credstore.Backend
// under the "auth-storage" namespace, so a session survives restarts:
//
//	store := session.NewStore(backend)
//	store.Restore(ctx)
//	store.SetAuth(ctx, "A1", "R1", user)
//
// Persistence failures never surface to callers; they are logged and the
// in-memory state stays authoritative.
package session
