package credstore

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	store, err := NewRedisStore("redis://"+mr.Addr()+"/0", "erpctl:auth-storage")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	_, err = store.Read(ctx)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Write(ctx, []byte(`{"state":{"refreshToken":"R1"}}`)))

	got, err := store.Read(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"state":{"refreshToken":"R1"}}`, string(got))

	raw, err := mr.Get("erpctl:auth-storage")
	require.NoError(t, err)
	assert.JSONEq(t, `{"state":{"refreshToken":"R1"}}`, raw)
	assert.Zero(t, mr.TTL("erpctl:auth-storage"))
}

func TestRedisStoreUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})

	store, err := NewRedisStoreWithClient(client, "auth-storage")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	mr.Close()

	_, err = store.Read(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestRedisStoreValidation(t *testing.T) {
	_, err := NewRedisStore("", "key")
	require.Error(t, err)

	_, err = NewRedisStore("not a url", "key")
	require.Error(t, err)

	_, err = NewRedisStoreWithClient(nil, "key")
	require.Error(t, err)
}
