package batch

import (
	"fmt"
	"sync"
	"time"
)

// percentMultiplier is used to convert a ratio to percentage (0-100).
const percentMultiplier = 100

// Progress tracks a running Process or Each call. It is safe for concurrent
// readers while the run updates it.
type Progress struct {
	// TotalItems is the total number of items to process.
	TotalItems int

	// ProcessedItems counts items handled so far, failed ones included.
	ProcessedItems int

	// FailedItems counts items whose callback returned an error.
	FailedItems int

	// TotalBatches is the total number of batches.
	TotalBatches int

	// ProcessedBatches is the number of batches processed so far.
	ProcessedBatches int

	// BatchSize is the configured batch size. Per-item runs use 1.
	BatchSize int

	StartTime      time.Time
	LastUpdateTime time.Time

	mu sync.RWMutex
}

// NewProgress creates a new progress tracker.
func NewProgress(totalItems, totalBatches, batchSize int) *Progress {
	now := time.Now()
	return &Progress{
		TotalItems:     totalItems,
		TotalBatches:   totalBatches,
		BatchSize:      batchSize,
		StartTime:      now,
		LastUpdateTime: now,
	}
}

func (p *Progress) add(succeeded, failed int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.ProcessedItems += succeeded + failed
	p.FailedItems += failed
	p.ProcessedBatches++
	p.LastUpdateTime = time.Now()
}

// ElapsedTime returns the time elapsed since processing started.
func (p *Progress) ElapsedTime() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return time.Since(p.StartTime)
}

// Status renders "k/n" where k counts successful items.
func (p *Progress) Status() string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return fmt.Sprintf("%d/%d", p.ProcessedItems-p.FailedItems, p.TotalItems)
}

// Snapshot returns a thread-safe copy of the current progress state.
func (p *Progress) Snapshot() ProgressSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return ProgressSnapshot{
		TotalItems:       p.TotalItems,
		ProcessedItems:   p.ProcessedItems,
		FailedItems:      p.FailedItems,
		TotalBatches:     p.TotalBatches,
		ProcessedBatches: p.ProcessedBatches,
		PercentComplete:  p.percentCompleteUnsafe(),
		ElapsedTime:      time.Since(p.StartTime),
	}
}

// ProgressSnapshot is an immutable snapshot of progress state.
type ProgressSnapshot struct {
	TotalItems       int
	ProcessedItems   int
	FailedItems      int
	TotalBatches     int
	ProcessedBatches int
	PercentComplete  float64
	ElapsedTime      time.Duration
}

// percentCompleteUnsafe must be called with the lock held.
func (p *Progress) percentCompleteUnsafe() float64 {
	if p.TotalItems == 0 {
		return 0
	}
	return (float64(p.ProcessedItems) / float64(p.TotalItems)) * percentMultiplier
}
