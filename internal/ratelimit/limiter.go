// Package ratelimit implements an in-memory fixed-window request limiter
// keyed by caller identity.
package ratelimit

import (
	"hash/fnv"
	"sync"
	"time"
)

const shardCount = 32

// Decision is the result of a single admission check.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

type counter struct {
	count   int
	resetAt time.Time
}

type shard struct {
	mu       sync.Mutex
	counters map[string]*counter
}

// Limiter tracks one fixed-window counter per identity. It is safe for
// concurrent use; identities hashing to different shards never contend.
type Limiter struct {
	shards [shardCount]shard
}

// New creates an empty Limiter.
func New() *Limiter {
	l := &Limiter{}
	for i := range l.shards {
		l.shards[i].counters = make(map[string]*counter)
	}
	return l
}

func (l *Limiter) shardFor(identity string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(identity))
	return &l.shards[h.Sum32()%shardCount]
}

// Check admits or denies one request for identity under a budget of limit
// requests per window. A missing or expired counter starts a new window at
// now. Denied requests do not touch the counter.
func (l *Limiter) Check(identity string, limit int, window time.Duration, now time.Time) Decision {
	s := l.shardFor(identity)
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[identity]
	if !ok || now.After(c.resetAt) {
		c = &counter{resetAt: now.Add(window)}
		s.counters[identity] = c
	}

	if c.count >= limit {
		return Decision{Allowed: false, Remaining: 0, ResetAt: c.resetAt}
	}

	c.count++
	return Decision{Allowed: true, Remaining: limit - c.count, ResetAt: c.resetAt}
}

// Sweep removes counters whose window has ended and returns how many were
// removed. Shards are locked one at a time.
func (l *Limiter) Sweep(now time.Time) int {
	removed := 0
	for i := range l.shards {
		s := &l.shards[i]
		s.mu.Lock()
		for id, c := range s.counters {
			if now.After(c.resetAt) {
				delete(s.counters, id)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// Len returns the number of tracked identities.
func (l *Limiter) Len() int {
	n := 0
	for i := range l.shards {
		s := &l.shards[i]
		s.mu.Lock()
		n += len(s.counters)
		s.mu.Unlock()
	}
	return n
}
