// Package budget bounds how many network operations run at once.
package budget

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Budget is a fixed-size counting permit pool shared by every task that
// performs network I/O. It records how many permits are out and the highest
// count ever observed.
type Budget struct {
	size     int64
	sem      *semaphore.Weighted
	inFlight atomic.Int64
	peak     atomic.Int64
	acquired atomic.Int64
}

// New creates a budget of n permits. n < 1 is treated as 1.
func New(n int) *Budget {
	if n < 1 {
		n = 1
	}
	return &Budget{
		size: int64(n),
		sem:  semaphore.NewWeighted(int64(n)),
	}
}

// Acquire blocks until a permit is free or ctx is done
func (b *Budget) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	b.acquired.Add(1)
	cur := b.inFlight.Add(1)
	for {
		p := b.peak.Load()
		if cur <= p || b.peak.CompareAndSwap(p, cur) {
			break
		}
	}
	return nil
}

// Release returns a permit taken by Acquire
func (b *Budget) Release() {
	b.inFlight.Add(-1)
	b.sem.Release(1)
}

// Size returns the number of permits
func (b *Budget) Size() int { return int(b.size) }

// InFlight returns the permits currently held
func (b *Budget) InFlight() int { return int(b.inFlight.Load()) }

// Peak returns the maximum number of permits ever held at once
func (b *Budget) Peak() int { return int(b.peak.Load()) }

// Acquired returns how many permits were handed out in total
func (b *Budget) Acquired() int { return int(b.acquired.Load()) }
