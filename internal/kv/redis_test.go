package kv

import (
	"context"
	"testing"
	"time"

	"github.com/MacJediWizard/licverify/internal/license"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestRedisStore creates a RedisStore backed by a miniredis server.
func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewWithClient(client, "test:", zerolog.Nop()), mr
}

func TestRedisStoreLookup(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedisStore(t)

	mr.HSet("test:LSP-TEST-KEY", FieldExpiry, "2026-12-31", FieldStatus, "active")
	mr.HSet("test:HW", FieldExpiry, "2099-01-01", FieldStatus, "active", FieldHardwareID, "hw-9")

	rec, err := store.Lookup(ctx, "LSP-TEST-KEY")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "LSP-TEST-KEY", rec.Key)
	assert.Equal(t, "2026-12-31", rec.Expiry)
	assert.Equal(t, "active", rec.Status)
	assert.Nil(t, rec.HardwareID)

	rec, err = store.Lookup(ctx, "HW")
	require.NoError(t, err)
	require.NotNil(t, rec.HardwareID)
	assert.Equal(t, "hw-9", *rec.HardwareID)

	rec, err = store.Lookup(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestRedisStoreKeyPrefix(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedisStore(t)

	// Unprefixed hash must not be visible.
	mr.HSet("LSP-TEST-KEY", FieldExpiry, "2026-12-31", FieldStatus, "active")

	rec, err := store.Lookup(ctx, "LSP-TEST-KEY")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestRedisStoreUnavailable(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedisStore(t)
	mr.Close()

	_, err := store.Lookup(ctx, "LSP-TEST-KEY")
	assert.ErrorIs(t, err, license.ErrStoreUnavailable)
	assert.Error(t, store.Ping(ctx))
}

func TestRedisStoreWithVerifier(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedisStore(t)
	mr.HSet("test:ABC", FieldExpiry, "2020-01-01", FieldStatus, "active")

	now := time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)
	v := license.NewVerifier(store, zerolog.Nop(), license.WithClock(func() time.Time { return now }))

	got, err := v.Verify(ctx, "ABC")
	require.NoError(t, err)
	assert.Equal(t, license.OutcomeExpired, got.Status)
	assert.Equal(t, "2020-01-01", got.Expires)
}

func TestNew(t *testing.T) {
	mr := miniredis.RunT(t)

	store, err := New(context.Background(), Config{URL: "redis://" + mr.Addr() + "/0"}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	assert.Equal(t, DefaultPrefix, store.prefix)
	assert.NoError(t, store.Ping(context.Background()))
}

func TestNew_InvalidURL(t *testing.T) {
	_, err := New(context.Background(), Config{URL: "not a url"}, zerolog.Nop())
	assert.Error(t, err)
}
