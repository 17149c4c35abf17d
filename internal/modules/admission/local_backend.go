package admission

import (
	"context"
	"sync"
	"time"
)

const localSweepEvery = 1024

type localWindow struct {
	count   int
	resetAt time.Time
}

// localBackend is a single-process fixed window. Several instances each
// running one of these admit up to limit per instance.
type localBackend struct {
	mu      sync.Mutex
	windows map[string]*localWindow
	limit   int
	window  time.Duration
	ops     int
}

func newLocalBackend(limit int, window time.Duration) *localBackend {
	return &localBackend{
		windows: make(map[string]*localWindow),
		limit:   limit,
		window:  window,
	}
}

func (b *localBackend) name() string { return BackendLocal }

func (b *localBackend) hit(_ context.Context, key string, now time.Time) (hitResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.ops++
	if b.ops%localSweepEvery == 0 {
		b.sweepLocked(now)
	}

	w, ok := b.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &localWindow{resetAt: now.Add(b.window)}
		b.windows[key] = w
	}
	if w.count >= b.limit {
		return hitResult{used: w.count, allowed: false, resetAt: w.resetAt}, nil
	}
	w.count++
	return hitResult{used: w.count, allowed: true, resetAt: w.resetAt}, nil
}

func (b *localBackend) count(_ context.Context, key string, now time.Time) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	w, ok := b.windows[key]
	if !ok || !now.Before(w.resetAt) {
		return 0, nil
	}
	return w.count, nil
}

func (b *localBackend) clear(_ context.Context, key string) error {
	b.mu.Lock()
	delete(b.windows, key)
	b.mu.Unlock()
	return nil
}

func (b *localBackend) sweepLocked(now time.Time) {
	for k, w := range b.windows {
		if !now.Before(w.resetAt) {
			delete(b.windows, k)
		}
	}
}

func (b *localBackend) size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.windows)
}
