package budget

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClampsSize(t *testing.T) {
	assert.Equal(t, 1, New(0).Size())
	assert.Equal(t, 1, New(-4).Size())
	assert.Equal(t, 7, New(7).Size())
}

func TestBudgetNeverExceedsSize(t *testing.T) {
	const size = 3
	b := New(size)

	var active, worst atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !assert.NoError(t, b.Acquire(context.Background())) {
				return
			}
			defer b.Release()

			cur := active.Add(1)
			for {
				w := worst.Load()
				if cur <= w || worst.CompareAndSwap(w, cur) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			active.Add(-1)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, worst.Load(), int64(size))
	assert.LessOrEqual(t, b.Peak(), size)
	assert.Equal(t, 40, b.Acquired())
	assert.Equal(t, 0, b.InFlight())
}

func TestAcquireHonorsContext(t *testing.T) {
	b := New(1)
	require.NoError(t, b.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := b.Acquire(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, b.InFlight())

	b.Release()
	assert.Equal(t, 0, b.InFlight())
}
