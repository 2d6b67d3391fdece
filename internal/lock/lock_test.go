package lock

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestLockKeyPrefixes(t *testing.T) {
	log := zerolog.Nop()

	tests := []struct {
		name    string
		lock    *Lock
		wantKey string
		wantTTL time.Duration
		retries int
	}{
		{"decision", AgentDecisionLock(nil, "a1", log), "lock:agent:decision:a1", 300 * time.Second, 1},
		{"position", AgentPositionLock(nil, "a1", log), "lock:agent:position:a1", 30 * time.Second, 5},
		{"balance", AgentBalanceLock(nil, "a1", log), "lock:agent:balance:a1", 30 * time.Second, 5},
		{"global", AgentGlobalLock(nil, "a1", log), "lock:agent:global:a1", 300 * time.Second, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantKey, tt.lock.Key())
			assert.Equal(t, tt.wantTTL, tt.lock.ttl)
			assert.Equal(t, tt.retries, tt.lock.retries)
		})
	}
}

func TestLockTokensAreUnique(t *testing.T) {
	log := zerolog.Nop()
	a := AgentDecisionLock(nil, "a1", log)
	b := AgentDecisionLock(nil, "a1", log)
	assert.NotEmpty(t, a.Token())
	assert.NotEqual(t, a.Token(), b.Token())
}

func TestReleaseWithoutAcquireIsNoop(t *testing.T) {
	l := New(nil, "lock:test", time.Second, 1, 0, zerolog.Nop())
	// Never acquired: Release must not touch the client at all.
	assert.NoError(t, l.Release(context.Background()))
}
