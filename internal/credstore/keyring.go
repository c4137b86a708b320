package credstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// KeyringStore provides OS-native secure credential storage for session state.
// Uses macOS Keychain, Windows Credential Manager, or Linux Secret Service.
type KeyringStore struct {
	service string
	user    string
}

// Compile-time check to ensure KeyringStore implements Backend
var _ Backend = (*KeyringStore)(nil)

// NewKeyringStore creates a KeyringStore for the OS-native credential storage
// using the given service and user identifiers.
func NewKeyringStore(service, user string) (*KeyringStore, error) {
	if service == "" {
		return nil, fmt.Errorf("service cannot be empty")
	}
	if user == "" {
		return nil, fmt.Errorf("user cannot be empty")
	}

	return &KeyringStore{
		service: service,
		user:    user,
	}, nil
}

// Read returns the state from the system keyring. Returns ErrNotFound if absent or empty.
func (k *KeyringStore) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	state, err := keyring.Get(k.service, k.user)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, fmt.Errorf("keyring service %s, user %s: %w", k.service, k.user, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	if state == "" {
		return nil, fmt.Errorf("empty keyring entry for service %s, user %s: %w", k.service, k.user, ErrNotFound)
	}

	return []byte(state), nil
}

// Write persists the state to the system keyring, overwriting any existing value.
func (k *KeyringStore) Write(ctx context.Context, state []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return keyring.Set(k.service, k.user, string(state))
}
