package credstore

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by Read when nothing has been stored yet.
	ErrNotFound = errors.New("no stored session state")

	// ErrReadOnly is returned by Write on backends that cannot persist.
	ErrReadOnly = errors.New("storage is read-only")
)

// Backend reads and writes serialized session state to persistent storage.
type Backend interface {
	// Read returns the stored state. Returns ErrNotFound if nothing is stored.
	Read(ctx context.Context) ([]byte, error)

	// Write persists the state, replacing any previous value. Returns
	// ErrReadOnly if the backend cannot persist (e.g., environment variables).
	Write(ctx context.Context, state []byte) error
}
