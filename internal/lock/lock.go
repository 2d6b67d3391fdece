// Package lock provides Redis-backed named exclusive locks with owner
// tokens, TTLs, and atomic compare-and-delete release.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	decisionPrefix = "lock:agent:decision:"
	positionPrefix = "lock:agent:position:"
	balancePrefix  = "lock:agent:balance:"
	globalPrefix   = "lock:agent:global:"
)

// releaseScript deletes the key only when the stored owner token matches.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("del", KEYS[1])
else
    return 0
end
`)

// extendScript re-expires the key only when the stored owner token matches.
var extendScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("expire", KEYS[1], ARGV[2])
else
    return 0
end
`)

// Lock is a single named exclusive lock. Not safe for concurrent use by
// multiple goroutines; each attempt should construct its own Lock.
type Lock struct {
	client  *redis.Client
	key     string
	ttl     time.Duration
	retries int
	delay   time.Duration
	token   string
	held    bool
	log     zerolog.Logger
}

// New creates a lock on an explicit key.
func New(client *redis.Client, key string, ttl time.Duration, retries int, delay time.Duration, log zerolog.Logger) *Lock {
	return &Lock{
		client:  client,
		key:     key,
		ttl:     ttl,
		retries: retries,
		delay:   delay,
		token:   uuid.New().String(),
		log:     log.With().Str("component", "lock").Str("key", key).Logger(),
	}
}

// AgentDecisionLock serializes decision cycles for one agent.
// Non-blocking: a single attempt, overlapping triggers fail fast.
func AgentDecisionLock(client *redis.Client, agentID string, log zerolog.Logger) *Lock {
	return New(client, decisionPrefix+agentID, 300*time.Second, 1, 0, log)
}

// AgentPositionLock guards out-of-band position adjustments.
func AgentPositionLock(client *redis.Client, agentID string, log zerolog.Logger) *Lock {
	return New(client, positionPrefix+agentID, 30*time.Second, 5, 200*time.Millisecond, log)
}

// AgentBalanceLock guards out-of-band cash adjustments.
func AgentBalanceLock(client *redis.Client, agentID string, log zerolog.Logger) *Lock {
	return New(client, balancePrefix+agentID, 30*time.Second, 5, 200*time.Millisecond, log)
}

// AgentGlobalLock takes the whole agent exclusively.
func AgentGlobalLock(client *redis.Client, agentID string, log zerolog.Logger) *Lock {
	return New(client, globalPrefix+agentID, 300*time.Second, 1, 0, log)
}

// Acquire attempts to take the lock. When blocking it retries up to the
// configured retry count with the configured delay; otherwise it makes a
// single attempt. Returns false on acquisition timeout.
func (l *Lock) Acquire(ctx context.Context, blocking bool) (bool, error) {
	attempts := 1
	if blocking && l.retries > 1 {
		attempts = l.retries
	}

	for i := 0; i < attempts; i++ {
		ok, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
		if err != nil {
			return false, fmt.Errorf("lock acquire failed: %w", err)
		}
		if ok {
			l.held = true
			l.log.Debug().Str("token", l.token).Msg("lock acquired")
			return true, nil
		}
		if i < attempts-1 && l.delay > 0 {
			select {
			case <-ctx.Done():
				return false, ctx.Err()
			case <-time.After(l.delay):
			}
		}
	}

	l.log.Debug().Msg("lock not acquired")
	return false, nil
}

// Release deletes the key only if this lock still owns it. A lost lock
// (TTL elapsed during work) is logged as a warning and not treated as an
// error; the caller must not assume exclusivity beyond the TTL.
func (l *Lock) Release(ctx context.Context) error {
	if !l.held {
		return nil
	}
	l.held = false

	n, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("lock release failed: %w", err)
	}
	if n == 0 {
		l.log.Warn().Msg("lock already expired or owned by another holder")
	}
	return nil
}

// Extend re-expires the lock by an additional duration iff still owned.
func (l *Lock) Extend(ctx context.Context, additional time.Duration) (bool, error) {
	seconds := int(additional.Seconds())
	n, err := extendScript.Run(ctx, l.client, []string{l.key}, l.token, seconds).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, fmt.Errorf("lock extend failed: %w", err)
	}
	return n == 1, nil
}

// IsLocked reports whether any holder currently owns the key. Advisory only.
func (l *Lock) IsLocked(ctx context.Context) (bool, error) {
	n, err := l.client.Exists(ctx, l.key).Result()
	if err != nil {
		return false, fmt.Errorf("lock check failed: %w", err)
	}
	return n > 0, nil
}

// Key returns the Redis key of the lock.
func (l *Lock) Key() string {
	return l.key
}

// Token returns the per-attempt owner token.
func (l *Lock) Token() string {
	return l.token
}
