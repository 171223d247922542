package batch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessor_Process(t *testing.T) {
	items := make([]int, 25)
	for i := range items {
		items[i] = i
	}

	t.Run("Sequential", func(t *testing.T) {
		p, _ := NewProcessor[int](10)
		var processedCount, batches int

		callback := func(ctx context.Context, batch []int, batchIndex int) error {
			batches++
			processedCount += len(batch)
			return nil
		}

		err := p.Process(context.Background(), items, callback)
		require.NoError(t, err)
		assert.Equal(t, 25, processedCount)
		assert.Equal(t, 3, batches)
	})

	t.Run("ErrorHandling", func(t *testing.T) {
		p, _ := NewProcessor[int](10)
		callback := func(ctx context.Context, batch []int, batchIndex int) error {
			if batchIndex == 1 {
				return errors.New("fail")
			}
			return nil
		}

		err := p.Process(context.Background(), items, callback)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "batch 1 failed")
	})

	t.Run("EmptyItems", func(t *testing.T) {
		p := NewProcessorWithDefaults[int]()
		err := p.Process(context.Background(), nil, nil)
		assert.Equal(t, ErrEmptyItems, err)
	})

	t.Run("NilCallback", func(t *testing.T) {
		p := NewProcessorWithDefaults[int]()
		err := p.Process(context.Background(), items, nil)
		assert.Equal(t, ErrNilCallback, err)
	})

	t.Run("InvalidBatchSize", func(t *testing.T) {
		_, err := NewProcessor[int](0)
		assert.ErrorIs(t, err, ErrInvalidBatchSize)
		_, err = NewProcessor[int](2000)
		assert.ErrorIs(t, err, ErrInvalidBatchSize)
	})
}

func TestProcessor_Each(t *testing.T) {
	items := []string{"a", "b", "c"}

	t.Run("PartialFailure", func(t *testing.T) {
		var statuses []string
		p := NewProcessorWithDefaults[string]().WithProgressCallback(func(pr *Progress) {
			statuses = append(statuses, pr.Status())
		})

		var seen []string
		outcome, err := p.Each(context.Background(), items, func(_ context.Context, item string, _ int) error {
			seen = append(seen, item)
			if item == "b" {
				return errors.New("model unavailable")
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c"}, seen)
		assert.Equal(t, 3, outcome.Total)
		assert.Equal(t, 2, outcome.Succeeded)
		require.Equal(t, 1, outcome.Failed())
		assert.Equal(t, 1, outcome.Failures[0].Index)
		assert.EqualError(t, outcome.Failures[0].Err, "model unavailable")
		assert.Equal(t, []string{"1/3", "1/3", "2/3"}, statuses)
	})

	t.Run("Halt", func(t *testing.T) {
		sentinel := errors.New("credential missing")
		calls := 0
		outcome, err := NewProcessorWithDefaults[string]().Each(context.Background(), items,
			func(_ context.Context, _ string, i int) error {
				calls++
				if i == 1 {
					return Halt(sentinel)
				}
				return nil
			})
		require.ErrorIs(t, err, sentinel)
		assert.Equal(t, 2, calls)
		assert.Equal(t, 1, outcome.Succeeded)
		assert.Zero(t, outcome.Failed())
	})

	t.Run("Cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		outcome, err := NewProcessorWithDefaults[string]().Each(ctx, items,
			func(_ context.Context, _ string, _ int) error {
				cancel()
				return nil
			})
		require.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, outcome.Succeeded)
	})

	t.Run("EmptyItems", func(t *testing.T) {
		_, err := NewProcessorWithDefaults[string]().Each(context.Background(), nil,
			func(context.Context, string, int) error { return nil })
		assert.Equal(t, ErrEmptyItems, err)
	})

	t.Run("NilCallback", func(t *testing.T) {
		_, err := NewProcessorWithDefaults[string]().Each(context.Background(), items, nil)
		assert.Equal(t, ErrNilCallback, err)
	})

	t.Run("HaltNil", func(t *testing.T) {
		assert.NoError(t, Halt(nil))
	})
}

func TestProgress(t *testing.T) {
	p := NewProgress(100, 10, 10)
	assert.Equal(t, 0.0, p.Snapshot().PercentComplete)

	p.add(10, 0)
	p.add(0, 10)
	assert.Equal(t, "10/100", p.Status())

	p.add(80, 0)
	assert.GreaterOrEqual(t, p.ElapsedTime(), time.Duration(0))

	snap := p.Snapshot()
	assert.Equal(t, 100, snap.ProcessedItems)
	assert.Equal(t, 10, snap.FailedItems)
	assert.Equal(t, 3, snap.ProcessedBatches)
	assert.Equal(t, 100.0, snap.PercentComplete)
	assert.GreaterOrEqual(t, snap.ElapsedTime, time.Duration(0))
}

func TestProcessor_EachProgressSnapshot(t *testing.T) {
	var snaps []ProgressSnapshot
	p := NewProcessorWithDefaults[int]().WithProgressCallback(func(pr *Progress) {
		snaps = append(snaps, pr.Snapshot())
	})

	_, err := p.Each(context.Background(), []int{1, 2, 3, 4}, func(_ context.Context, n int, _ int) error {
		if n%2 == 0 {
			return errors.New("even")
		}
		return nil
	})
	require.NoError(t, err)
	require.Len(t, snaps, 4)
	assert.Equal(t, 50.0, snaps[1].PercentComplete)
	assert.Equal(t, 1, snaps[1].FailedItems)
	assert.Equal(t, 100.0, snaps[3].PercentComplete)
	assert.Equal(t, 2, snaps[3].FailedItems)
}
