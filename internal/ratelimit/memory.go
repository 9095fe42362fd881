package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

type window struct {
	start    atomic.Int64 // unix nanos
	count    atomic.Int64
	duration time.Duration
}

// MemoryBackend keeps windows in process memory. There is no global lock:
// each identifier has its own window updated with atomics, and a reset racing
// with an increment may drop that increment. Counts are approximate near
// window boundaries and never shared between processes.
type MemoryBackend struct {
	windows sync.Map // key -> *window
	now     func() time.Time
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{now: time.Now}
}

func (b *MemoryBackend) Hit(_ context.Context, key string, limit int, d time.Duration) (Result, error) {
	if key == "" || limit <= 0 || d <= 0 {
		return Result{}, ErrInvalidArgument
	}
	now := b.now()

	v, ok := b.windows.Load(key)
	if !ok {
		w := &window{duration: d}
		w.start.Store(now.UnixNano())
		v, _ = b.windows.LoadOrStore(key, w)
	}
	w := v.(*window)

	start := w.start.Load()
	if now.Sub(time.Unix(0, start)) > d {
		if w.start.CompareAndSwap(start, now.UnixNano()) {
			w.count.Store(0)
		}
	}
	n := w.count.Add(1)

	resetAt := time.Unix(0, w.start.Load()).Add(d)
	return decide(n, limit, resetAt, now), nil
}

// Sweep drops windows that have expired by now and returns how many were removed.
func (b *MemoryBackend) Sweep(now time.Time) int {
	removed := 0
	b.windows.Range(func(k, v any) bool {
		w := v.(*window)
		if now.Sub(time.Unix(0, w.start.Load())) > w.duration {
			b.windows.Delete(k)
			removed++
		}
		return true
	})
	return removed
}

// Len reports the number of tracked windows.
func (b *MemoryBackend) Len() int {
	n := 0
	b.windows.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// RunSweeper sweeps every interval until ctx is done.
func (b *MemoryBackend) RunSweeper(ctx context.Context, interval time.Duration, log *slog.Logger) {
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := b.Sweep(b.now()); n > 0 {
				log.Debug("rate limit windows swept", "removed", n)
			}
		}
	}
}
