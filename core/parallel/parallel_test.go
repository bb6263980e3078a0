package parallel

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	esErrors "github.com/YuminosukeSato/examscore/pkg/errors"
)

func TestParallelizeCoversAllItems(t *testing.T) {
	for _, items := range []int{0, 1, 7, 1000} {
		seen := make([]int32, items)
		Parallelize(items, func(start, end int) {
			for i := start; i < end; i++ {
				atomic.AddInt32(&seen[i], 1)
			}
		})
		for i, c := range seen {
			assert.Equal(t, int32(1), c, "item %d", i)
		}
	}
}

func TestForEachRunsEveryJobOnce(t *testing.T) {
	results := make([]int, 50)
	err := ForEach(context.Background(), len(results), 4, func(i int) error {
		results[i] = i * i
		return nil
	})
	require.NoError(t, err)
	for i, v := range results {
		assert.Equal(t, i*i, v)
	}
}

func TestForEachReturnsLowestIndexError(t *testing.T) {
	err := ForEach(context.Background(), 20, 1, func(i int) error {
		if i == 3 || i == 7 {
			return esErrors.Newf("job %d failed", i)
		}
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "job 3 failed")
}

func TestForEachConvertsPanic(t *testing.T) {
	err := ForEach(context.Background(), 5, 2, func(i int) error {
		if i == 2 {
			panic("split on empty node")
		}
		return nil
	})
	var panicErr *esErrors.PanicError
	require.True(t, esErrors.As(err, &panicErr))
	assert.Equal(t, "split on empty node", panicErr.PanicValue)
}

func TestForEachHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ran int32
	err := ForEach(ctx, 100, 2, func(i int) error {
		atomic.AddInt32(&ran, 1)
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, atomic.LoadInt32(&ran), int32(100))
}

func TestWorkers(t *testing.T) {
	assert.Equal(t, 3, Workers(3))
	assert.Positive(t, Workers(0))
	assert.Positive(t, Workers(-1))
}
