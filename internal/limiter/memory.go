package limiter

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type bucket struct {
	lim     *rate.Limiter
	expires time.Time
}

// Memory is a per-process token bucket limiter keyed by caller. Idle buckets are dropped after idleTTL;
// the map is swept at most once per idleTTL.
type Memory struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	limit     rate.Limit
	burst     int
	idleTTL   time.Duration
	lastSweep time.Time
	now       func() time.Time
}

// NewMemory admits maxHits requests per window per key, refilling evenly.
func NewMemory(window time.Duration, maxHits int) *Memory {
	if maxHits < 1 {
		maxHits = 1
	}
	return &Memory{
		buckets: map[string]*bucket{},
		limit:   rate.Every(window / time.Duration(maxHits)),
		burst:   maxHits,
		idleTTL: 2 * window,
		now:     time.Now,
	}
}

// Allow takes one token from the key's bucket.
func (m *Memory) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	if now.Sub(m.lastSweep) >= m.idleTTL {
		m.sweepLocked(now)
	}
	b, ok := m.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(m.limit, m.burst)}
		m.buckets[key] = b
	}
	b.expires = now.Add(m.idleTTL)

	r := b.lim.ReserveN(now, 1)
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		return false, d, nil
	}
	return true, 0, nil
}

func (m *Memory) sweepLocked(now time.Time) {
	for k, b := range m.buckets {
		if now.After(b.expires) {
			delete(m.buckets, k)
		}
	}
	m.lastSweep = now
}
