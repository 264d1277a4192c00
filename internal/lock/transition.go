// Package lock holds the distributed at-most-one-winner lock that guards
// round transitions, and the stores it can run on.
package lock

import (
	"context"
	"fmt"
	"time"
)

// DefaultTTL bounds how long a crashed winner can block a transition.
const DefaultTTL = 5 * time.Second

// Store is a shared key space with atomic set-if-absent. Keys expire after
// their TTL even if never deleted.
type Store interface {
	TrySetIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
}

// RoundTransitionLock grants the transition for one (match, round, phase)
// to at most one caller across processes. It never waits: losing callers
// get false immediately and must not retry the transition.
type RoundTransitionLock struct {
	store Store
	ttl   time.Duration
}

func NewRoundTransitionLock(store Store, ttl time.Duration) *RoundTransitionLock {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RoundTransitionLock{store: store, ttl: ttl}
}

func (l *RoundTransitionLock) TryAcquire(ctx context.Context, matchID string, round int, phase string) (bool, error) {
	ok, err := l.store.TrySetIfAbsent(ctx, Key(matchID, round, phase), l.ttl)
	if err != nil {
		return false, fmt.Errorf("transition lock %s/%d/%s: %w", matchID, round, phase, err)
	}
	return ok, nil
}

func (l *RoundTransitionLock) Release(ctx context.Context, matchID string, round int, phase string) error {
	return l.store.Delete(ctx, Key(matchID, round, phase))
}

func Key(matchID string, round int, phase string) string {
	return fmt.Sprintf("match:%s:round:%d:phase:%s", matchID, round, phase)
}
