package credstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func TestKeyringStore(t *testing.T) {
	keyring.MockInit()
	ctx := context.Background()

	_, err := NewKeyringStore("", "alice")
	require.Error(t, err)
	_, err = NewKeyringStore("auth-storage", "")
	require.Error(t, err)

	store, err := NewKeyringStore("auth-storage", "alice")
	require.NoError(t, err)

	_, err = store.Read(ctx)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Write(ctx, []byte(`{"version":0}`)))

	got, err := store.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, `{"version":0}`, string(got))
}
