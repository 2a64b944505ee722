// Package ratelimit implements a best-effort fixed-window request counter.
//
// The default store is an in-process map, which provides zero protection in
// a horizontally scaled deployment: each instance counts independently. That
// limitation is accepted here. A multi-instance deployment should supply a
// Limiter backed by a shared store with atomic increment-and-expire (e.g.
// Redis INCR + EXPIRE); everything else in the pipeline is unaffected by the
// swap.
package ratelimit

import (
	"sync"
	"time"
)

// Result describes the outcome of a quota check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter returns the whole seconds until the window resets, at least 1.
func (r Result) RetryAfter(now time.Time) int {
	d := r.ResetAt.Sub(now)
	if d <= 0 {
		return 1
	}
	return int((d + time.Second - 1) / time.Second)
}

// Limiter checks and increments a counter for a key within a fixed window.
// Implementations must treat the check-and-increment as one operation.
type Limiter interface {
	Check(key string, limit int, window time.Duration) Result
}

type entry struct {
	count   int
	resetAt time.Time
}

// Memory is the in-process Limiter. Safe for concurrent use within a single
// process only.
type Memory struct {
	mu        sync.Mutex
	entries   map[string]*entry
	lastSweep time.Time
	now       func() time.Time // test hook
}

const sweepInterval = 60 * time.Second

// NewMemory creates an empty in-process limiter.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// Check increments the counter for key and reports whether the request is
// within limit. A key with no entry, or whose window has passed, starts a new
// window with count 1. Expired entries are swept opportunistically at most
// once per minute.
func (m *Memory) Check(key string, limit int, window time.Duration) Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.sweep(now)

	e, ok := m.entries[key]
	if !ok || !e.resetAt.After(now) {
		e = &entry{resetAt: now.Add(window)}
		m.entries[key] = e
	}
	e.count++

	remaining := limit - e.count
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   e.count <= limit,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   e.resetAt,
	}
}

func (m *Memory) sweep(now time.Time) {
	if now.Sub(m.lastSweep) < sweepInterval {
		return
	}
	m.lastSweep = now
	for k, e := range m.entries {
		if !e.resetAt.After(now) {
			delete(m.entries, k)
		}
	}
}
