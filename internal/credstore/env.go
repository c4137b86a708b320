package credstore

import (
	"context"
	"fmt"
	"os"
)

// EnvStore provides read-only access to session state stored in an environment variable.
// Suitable for seeding headless runs; refreshed tokens live in memory only.
type EnvStore struct {
	envKey string
}

// Compile-time check to ensure EnvStore implements Backend
var _ Backend = (*EnvStore)(nil)

// NewEnvStore creates an EnvStore for the given environment variable.
func NewEnvStore(envKey string) (*EnvStore, error) {
	if envKey == "" {
		return nil, fmt.Errorf("environment key cannot be empty")
	}

	return &EnvStore{
		envKey: envKey,
	}, nil
}

// Read returns the state from the environment variable. Returns ErrNotFound if unset or empty.
func (e *EnvStore) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	state := os.Getenv(e.envKey)
	if state == "" {
		return nil, fmt.Errorf("environment variable %s: %w", e.envKey, ErrNotFound)
	}
	return []byte(state), nil
}

// Write is not supported for environment variables (they are read-only).
func (e *EnvStore) Write(ctx context.Context, state []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return fmt.Errorf("environment variable %s: %w", e.envKey, ErrReadOnly)
}
