package otp

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis, func()) {
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	store := NewRedisStore(client)

	cleanup := func() {
		client.Close()
		mr.Close()
	}

	return store, mr, cleanup
}

func TestVerify_Success(t *testing.T) {
	store, mr, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, store.Create(ctx, "req-1", "buyer@example.com", "482913", 5*time.Minute))

	res, err := store.Verify(ctx, "req-1", "482913")
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, "buyer@example.com", res.Identifier)

	// Consumed on success: the same code cannot be replayed.
	assert.False(t, mr.Exists(ticketKey("req-1")))
	res, err = store.Verify(ctx, "req-1", "482913")
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, ReasonNotFound, res.Reason)
}

func TestVerify_NotFound(t *testing.T) {
	store, _, cleanup := setupTestStore(t)
	defer cleanup()

	res, err := store.Verify(context.Background(), "req-missing", "000000")
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, ReasonNotFound, res.Reason)
}

func TestVerify_Mismatch_KeepsTicket(t *testing.T) {
	store, mr, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, store.Create(ctx, "req-1", "9876543210", "482913", 5*time.Minute))

	res, err := store.Verify(ctx, "req-1", "111111")
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, ReasonMismatch, res.Reason)
	assert.Equal(t, MaxAttempts-1, res.AttemptsLeft)
	assert.True(t, mr.Exists(ticketKey("req-1")))

	// The right code still works afterwards.
	res, err = store.Verify(ctx, "req-1", "482913")
	require.NoError(t, err)
	assert.True(t, res.OK)
}

func TestVerify_Expired(t *testing.T) {
	store, mr, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	issued := time.Now()
	store.now = func() time.Time { return issued }
	require.NoError(t, store.Create(ctx, "req-1", "buyer@example.com", "482913", 300*time.Second))

	// One second past the TTL, even with the correct code.
	store.now = func() time.Time { return issued.Add(301 * time.Second) }
	res, err := store.Verify(ctx, "req-1", "482913")
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, ReasonExpired, res.Reason)

	// Expiry destroys the ticket.
	assert.False(t, mr.Exists(ticketKey("req-1")))
}

func TestVerify_Lockout(t *testing.T) {
	store, mr, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, store.Create(ctx, "req-1", "buyer@example.com", "482913", 5*time.Minute))

	for i := 1; i <= MaxAttempts; i++ {
		res, err := store.Verify(ctx, "req-1", "000000")
		require.NoError(t, err)
		assert.Equal(t, ReasonMismatch, res.Reason)
		assert.Equal(t, MaxAttempts-i, res.AttemptsLeft)
	}

	// Attempts exhausted: the correct code is rejected and the ticket destroyed.
	res, err := store.Verify(ctx, "req-1", "482913")
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, ReasonLocked, res.Reason)
	assert.False(t, mr.Exists(ticketKey("req-1")))
}

func TestCreate_OverwritesPriorTicket(t *testing.T) {
	store, _, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, store.Create(ctx, "req-1", "buyer@example.com", "111111", 5*time.Minute))

	// Burn some attempts against the first code.
	_, err := store.Verify(ctx, "req-1", "000000")
	require.NoError(t, err)

	// Re-issuing replaces the code and resets the counter.
	require.NoError(t, store.Create(ctx, "req-1", "buyer@example.com", "222222", 5*time.Minute))

	res, err := store.Verify(ctx, "req-1", "111111")
	require.NoError(t, err)
	assert.Equal(t, ReasonMismatch, res.Reason)
	assert.Equal(t, MaxAttempts-1, res.AttemptsLeft)

	res, err = store.Verify(ctx, "req-1", "222222")
	require.NoError(t, err)
	assert.True(t, res.OK)
}
