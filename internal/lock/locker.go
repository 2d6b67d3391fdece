package lock

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DecisionLocker hands out per-agent decision exclusivity. The agent
// service depends on this interface so tests can substitute an in-memory
// implementation.
type DecisionLocker interface {
	// AcquireDecision takes the non-blocking decision lock for the agent.
	// When acquired, the returned release func must be called when the
	// cycle ends. When not acquired, release is a no-op and acquired is
	// false (caller surfaces "agent busy").
	AcquireDecision(ctx context.Context, agentID string) (release func(), acquired bool, err error)
}

// RedisLocker is the production DecisionLocker backed by Redis.
type RedisLocker struct {
	client *redis.Client
	log    zerolog.Logger
}

// NewRedisLocker creates a locker over an existing Redis client.
func NewRedisLocker(client *redis.Client, log zerolog.Logger) *RedisLocker {
	return &RedisLocker{client: client, log: log}
}

// AcquireDecision implements DecisionLocker.
func (r *RedisLocker) AcquireDecision(ctx context.Context, agentID string) (func(), bool, error) {
	l := AgentDecisionLock(r.client, agentID, r.log)
	ok, err := l.Acquire(ctx, false)
	if err != nil {
		return func() {}, false, err
	}
	if !ok {
		return func() {}, false, nil
	}
	release := func() {
		if err := l.Release(context.Background()); err != nil {
			r.log.Warn().Err(err).Str("agent_id", agentID).Msg("decision lock release failed")
		}
	}
	return release, true, nil
}
