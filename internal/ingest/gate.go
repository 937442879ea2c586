package ingest

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Gate bounds the number of lines writing to the store at once.
type Gate struct {
	sem      *semaphore.Weighted
	limit    int64
	inFlight atomic.Int64
	peak     atomic.Int64
	onChange func(inFlight int64)
}

// NewGate creates a gate admitting at most limit holders.
func NewGate(limit int, onChange func(inFlight int64)) *Gate {
	if limit <= 0 {
		limit = 1
	}
	return &Gate{
		sem:      semaphore.NewWeighted(int64(limit)),
		limit:    int64(limit),
		onChange: onChange,
	}
}

// Acquire blocks until a permit is free. The returned release must be called
// exactly once; callers defer it.
func (g *Gate) Acquire(ctx context.Context) (func(), error) {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	n := g.inFlight.Add(1)
	for {
		peak := g.peak.Load()
		if n <= peak || g.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	g.notify(n)

	var once atomic.Bool
	return func() {
		if !once.CompareAndSwap(false, true) {
			return
		}
		g.notify(g.inFlight.Add(-1))
		g.sem.Release(1)
	}, nil
}

func (g *Gate) notify(n int64) {
	if g.onChange != nil {
		g.onChange(n)
	}
}

// Limit returns the number of permits.
func (g *Gate) Limit() int {
	return int(g.limit)
}

// InFlight returns the number of permits currently held.
func (g *Gate) InFlight() int {
	return int(g.inFlight.Load())
}

// Peak returns the highest number of permits ever held at once.
func (g *Gate) Peak() int {
	return int(g.peak.Load())
}
