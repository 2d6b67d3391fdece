package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestLockMutualExclusion(t *testing.T) {
	_, client := newTestRedis(t)
	log := zerolog.Nop()
	ctx := context.Background()

	first := AgentDecisionLock(client, "a1", log)
	ok, err := first.Acquire(ctx, false)
	require.NoError(t, err)
	require.True(t, ok)

	// A second holder on the same agent is refused.
	second := AgentDecisionLock(client, "a1", log)
	ok, err = second.Acquire(ctx, false)
	require.NoError(t, err)
	assert.False(t, ok)

	// A different agent's lock is independent.
	other := AgentDecisionLock(client, "a2", log)
	ok, err = other.Acquire(ctx, false)
	require.NoError(t, err)
	assert.True(t, ok)

	// Release frees the key for the next holder.
	require.NoError(t, first.Release(ctx))
	third := AgentDecisionLock(client, "a1", log)
	ok, err = third.Acquire(ctx, false)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReleaseRefusesForeignToken(t *testing.T) {
	mr, client := newTestRedis(t)
	log := zerolog.Nop()
	ctx := context.Background()

	owner := AgentDecisionLock(client, "a1", log)
	ok, err := owner.Acquire(ctx, false)
	require.NoError(t, err)
	require.True(t, ok)

	// A lock with a different token pretending to hold the key must not
	// be able to delete it.
	intruder := AgentDecisionLock(client, "a1", log)
	intruder.held = true
	require.NoError(t, intruder.Release(ctx))

	assert.True(t, mr.Exists(owner.Key()), "owner's key survives a foreign release")
	stored, err := client.Get(ctx, owner.Key()).Result()
	require.NoError(t, err)
	assert.Equal(t, owner.Token(), stored)
}

func TestReleaseAfterExpiry(t *testing.T) {
	mr, client := newTestRedis(t)
	log := zerolog.Nop()
	ctx := context.Background()

	l := AgentPositionLock(client, "a1", log)
	ok, err := l.Acquire(ctx, false)
	require.NoError(t, err)
	require.True(t, ok)

	// TTL elapses while the holder is still working.
	mr.FastForward(31 * time.Second)
	assert.False(t, mr.Exists(l.Key()))

	// The lost lock is not an error, and a successor's key is untouched.
	successor := AgentPositionLock(client, "a1", log)
	ok, err = successor.Acquire(ctx, false)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, l.Release(ctx))
	stored, err := client.Get(ctx, successor.Key()).Result()
	require.NoError(t, err)
	assert.Equal(t, successor.Token(), stored)
}

func TestExtendOnlyByOwner(t *testing.T) {
	mr, client := newTestRedis(t)
	log := zerolog.Nop()
	ctx := context.Background()

	owner := AgentDecisionLock(client, "a1", log)
	ok, err := owner.Acquire(ctx, false)
	require.NoError(t, err)
	require.True(t, ok)

	extended, err := owner.Extend(ctx, 600*time.Second)
	require.NoError(t, err)
	assert.True(t, extended)
	assert.Equal(t, 600*time.Second, mr.TTL(owner.Key()))

	foreign := AgentDecisionLock(client, "a1", log)
	extended, err = foreign.Extend(ctx, 10*time.Second)
	require.NoError(t, err)
	assert.False(t, extended, "a non-owner cannot re-expire the key")
	assert.Equal(t, 600*time.Second, mr.TTL(owner.Key()))
}

func TestIsLocked(t *testing.T) {
	_, client := newTestRedis(t)
	log := zerolog.Nop()
	ctx := context.Background()

	l := AgentGlobalLock(client, "a1", log)
	held, err := l.IsLocked(ctx)
	require.NoError(t, err)
	assert.False(t, held)

	ok, err := l.Acquire(ctx, false)
	require.NoError(t, err)
	require.True(t, ok)

	held, err = l.IsLocked(ctx)
	require.NoError(t, err)
	assert.True(t, held)
}

func TestBlockingAcquireRetries(t *testing.T) {
	_, client := newTestRedis(t)
	log := zerolog.Nop()
	ctx := context.Background()

	holder := AgentBalanceLock(client, "a1", log)
	ok, err := holder.Acquire(ctx, false)
	require.NoError(t, err)
	require.True(t, ok)

	// Release midway through the waiter's retry window.
	go func() {
		time.Sleep(300 * time.Millisecond)
		_ = holder.Release(context.Background())
	}()

	waiter := AgentBalanceLock(client, "a1", log)
	ok, err = waiter.Acquire(ctx, true)
	require.NoError(t, err)
	assert.True(t, ok, "blocking acquire succeeds once the holder releases")
}

func TestRedisLockerBusyAndRelease(t *testing.T) {
	_, client := newTestRedis(t)
	locker := NewRedisLocker(client, zerolog.Nop())
	ctx := context.Background()

	release, acquired, err := locker.AcquireDecision(ctx, "a1")
	require.NoError(t, err)
	require.True(t, acquired)

	_, busy, err := locker.AcquireDecision(ctx, "a1")
	require.NoError(t, err)
	assert.False(t, busy)

	release()
	release2, acquired, err := locker.AcquireDecision(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, acquired)
	release2()
}
