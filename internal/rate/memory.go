package rate

import (
	"context"
	"sync"
	"time"
)

const sweepEvery = 1024

type memoryWindow struct {
	count     int64
	expiresAt time.Time
}

// MemoryBackend counts hits in process. Counters are lost on restart and not
// shared between replicas.
type MemoryBackend struct {
	mu      sync.Mutex
	windows map[string]*memoryWindow
	calls   int
	now     func() time.Time
}

// NewMemoryBackend creates an empty backend. now may be nil.
func NewMemoryBackend(now func() time.Time) *MemoryBackend {
	if now == nil {
		now = time.Now
	}
	return &MemoryBackend{windows: make(map[string]*memoryWindow), now: now}
}

// Incr implements Backend.
func (b *MemoryBackend) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.calls++
	if b.calls%sweepEvery == 0 {
		b.sweepLocked(now)
	}

	w, ok := b.windows[key]
	if !ok || !now.Before(w.expiresAt) {
		w = &memoryWindow{expiresAt: now.Add(window)}
		b.windows[key] = w
	}
	w.count++

	return w.count, w.expiresAt.Sub(now), nil
}

// Len returns the number of tracked keys.
func (b *MemoryBackend) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.windows)
}

func (b *MemoryBackend) sweepLocked(now time.Time) {
	for key, w := range b.windows {
		if !now.Before(w.expiresAt) {
			delete(b.windows, key)
		}
	}
}
