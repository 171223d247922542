package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Default batch processing configuration.
const (
	// DefaultBatchSize is the default number of items per batch.
	DefaultBatchSize = 100

	// MinBatchSize is the minimum allowed batch size.
	MinBatchSize = 1

	// MaxBatchSize is the maximum allowed batch size.
	MaxBatchSize = 1000
)

// Common batch processing errors.
var (
	ErrInvalidBatchSize = errors.New("batch size must be between 1 and 1000")
	ErrNilCallback      = errors.New("batch callback cannot be nil")
	ErrEmptyItems       = errors.New("items slice cannot be empty")
)

// BatchCallback processes one chunk of items. batchIndex is 0-based.
//
//nolint:revive // BatchCallback is the canonical name for this exported type.
type BatchCallback[T any] func(ctx context.Context, batch []T, batchIndex int) error

// ItemCallback processes a single item. A returned error marks the item as
// failed; wrap it with Halt to stop the whole run.
type ItemCallback[T any] func(ctx context.Context, item T, index int) error

// ProgressCallback is an optional callback invoked after each batch or item.
type ProgressCallback func(progress *Progress)

// ItemFailure records why one item failed.
type ItemFailure struct {
	Index int
	Err   error
}

// Outcome summarises a per-item run.
type Outcome struct {
	Total     int
	Succeeded int
	Failures  []ItemFailure
}

// Failed returns the number of failed items.
func (o *Outcome) Failed() int { return len(o.Failures) }

// haltError marks an item error as fatal to the run.
type haltError struct{ err error }

func (h *haltError) Error() string { return h.err.Error() }
func (h *haltError) Unwrap() error { return h.err }

// Halt wraps err so that Each stops and returns it instead of recording a
// per-item failure. Halt(nil) returns nil.
func Halt(err error) error {
	if err == nil {
		return nil
	}
	return &haltError{err: err}
}

// Processor runs callbacks over items.
type Processor[T any] struct {
	// batchSize is the number of items per batch for Process.
	batchSize int

	// onProgress is an optional callback for progress updates.
	onProgress ProgressCallback

	mu sync.Mutex
}

// NewProcessor creates a new batch processor with the given batch size.
func NewProcessor[T any](batchSize int) (*Processor[T], error) {
	if batchSize < MinBatchSize || batchSize > MaxBatchSize {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidBatchSize, batchSize)
	}

	return &Processor[T]{
		batchSize: batchSize,
	}, nil
}

// NewProcessorWithDefaults creates a processor with default batch size.
func NewProcessorWithDefaults[T any]() *Processor[T] {
	return &Processor[T]{
		batchSize: DefaultBatchSize,
	}
}

// WithProgressCallback sets a progress callback for the processor.
func (p *Processor[T]) WithProgressCallback(callback ProgressCallback) *Processor[T] {
	p.onProgress = callback
	return p
}

// Process processes items in batches using the provided callback.
// Processing is sequential and stops on the first error.
func (p *Processor[T]) Process(ctx context.Context, items []T, callback BatchCallback[T]) error {
	if len(items) == 0 {
		return ErrEmptyItems
	}

	if callback == nil {
		return ErrNilCallback
	}

	totalBatches := p.calculateTotalBatches(len(items))
	progress := NewProgress(len(items), totalBatches, p.batchSize)

	for batchIndex := range totalBatches {
		if err := ctx.Err(); err != nil {
			return err
		}

		start := batchIndex * p.batchSize
		end := min(start+p.batchSize, len(items))
		batch := items[start:end]

		if err := callback(ctx, batch, batchIndex); err != nil {
			return fmt.Errorf("batch %d failed: %w", batchIndex, err)
		}

		p.updateProgress(progress, len(batch), 0)
		if p.onProgress != nil {
			p.onProgress(progress)
		}
	}

	return nil
}

// Each calls callback for every item in order, one at a time. Item errors are
// collected in the Outcome and do not stop the run. The run stops early, with
// the partial Outcome and an error, when ctx is done or a callback returns an
// error wrapped with Halt.
func (p *Processor[T]) Each(ctx context.Context, items []T, callback ItemCallback[T]) (*Outcome, error) {
	if len(items) == 0 {
		return nil, ErrEmptyItems
	}

	if callback == nil {
		return nil, ErrNilCallback
	}

	outcome := &Outcome{Total: len(items)}
	progress := NewProgress(len(items), len(items), 1)

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return outcome, err
		}

		err := callback(ctx, item, i)
		var halt *haltError
		if errors.As(err, &halt) {
			return outcome, fmt.Errorf("item %d halted run: %w", i, halt.err)
		}

		if err != nil {
			outcome.Failures = append(outcome.Failures, ItemFailure{Index: i, Err: err})
			p.updateProgress(progress, 0, 1)
		} else {
			outcome.Succeeded++
			p.updateProgress(progress, 1, 0)
		}

		if p.onProgress != nil {
			p.onProgress(progress)
		}
	}

	return outcome, nil
}

// calculateTotalBatches calculates the number of batches needed for the given item count.
func (p *Processor[T]) calculateTotalBatches(totalItems int) int {
	batches := totalItems / p.batchSize
	if totalItems%p.batchSize > 0 {
		batches++
	}
	return batches
}

func (p *Processor[T]) updateProgress(progress *Progress, succeeded, failed int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	progress.add(succeeded, failed)
}
