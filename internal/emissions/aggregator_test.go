package emissions

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rshade/travelcarbon/internal/tim"
)

func newAggregatorFixture(model ModelClient, store *memStore) *Aggregator {
	return NewAggregator(NewEstimator(model, store), store, store)
}

func TestComputeReport_PartialFailure(t *testing.T) {
	model := newFakeModel()
	model.results["1"] = result(tim.PerPax{tim.CabinEconomy: 1000}, i64(1000), v300)
	model.errs["2"] = tim.ErrRequestFailed
	model.results["3"] = result(tim.PerPax{tim.CabinEconomy: 500}, i64(500), v300)

	f1, f2, f3 := flight("f1", "1"), flight("f2", "2"), flight("f3", "3")
	f1.Passengers = 2
	f3.Passengers = 3

	store := newMemStore()
	store.addReport("r1", f1, f2, f3)

	run, err := newAggregatorFixture(model, store).ComputeReport(context.Background(), "r1")
	require.NoError(t, err)

	s := run.Summary
	assert.Equal(t, 3, s.FlightsTotal)
	assert.Equal(t, 2, s.FlightsWithEmissions)
	assert.Equal(t, int64(2000+1500), s.TotalCo2Grams)
	assert.Equal(t, 5, s.TotalPassengers)
	assert.Equal(t, int64(700), s.Co2GramsPerPax)
	assert.Equal(t, "3.0.0", s.ModelVersion)
	assert.Equal(t, []string{"3.0.0"}, s.ModelVersions)
	assert.False(t, s.MixedModelVersions)
	assert.False(t, s.LastComputedAt.IsZero())
	assert.Equal(t, "Processed 2/3 flights", run.Message)

	require.Len(t, run.Failures, 1)
	assert.Equal(t, "f2", run.Failures[0].FlightID)
	assert.Contains(t, run.Failures[0].Error, ErrEmissionModelUnavailable.Error())

	// Flights are processed in report order.
	require.Len(t, model.calls, 3)
	assert.Equal(t, "1", model.calls[0].Segments[0].FlightNumber)
	assert.Equal(t, "3", model.calls[2].Segments[0].FlightNumber)

	saved, err := store.GetReport(context.Background(), "r1")
	require.NoError(t, err)
	require.NotNil(t, saved.Emissions)
	assert.Equal(t, s, *saved.Emissions)
}

func TestComputeReport_Rounding(t *testing.T) {
	model := newFakeModel()
	model.results["1"] = result(tim.PerPax{tim.CabinEconomy: 100}, i64(100), v300)
	model.results["2"] = result(tim.PerPax{tim.CabinEconomy: 101}, i64(101), v300)

	store := newMemStore()
	store.addReport("r1", flight("f1", "1"), flight("f2", "2"))

	run, err := newAggregatorFixture(model, store).ComputeReport(context.Background(), "r1")
	require.NoError(t, err)
	// 201 / 2 = 100.5 rounds up.
	assert.Equal(t, int64(101), run.Summary.Co2GramsPerPax)
}

func TestComputeReport_AllFlightsFail(t *testing.T) {
	model := newFakeModel()
	model.errs["1"] = tim.ErrRequestFailed
	model.results["2"] = result(nil, nil, v300)

	store := newMemStore()
	store.addReport("r1", flight("f1", "1"), flight("f2", "2"))

	run, err := newAggregatorFixture(model, store).ComputeReport(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, 0, run.Summary.FlightsWithEmissions)
	assert.Equal(t, 2, run.Summary.FlightsTotal)
	assert.Zero(t, run.Summary.TotalPassengers)
	assert.Zero(t, run.Summary.Co2GramsPerPax)
	assert.Equal(t, tim.UnknownModelVersion, run.Summary.ModelVersion)
	assert.Empty(t, run.Summary.ModelVersions)
	assert.Equal(t, "Processed 0/2 flights", run.Message)
	assert.Equal(t, 1, store.saves)
	assert.Len(t, run.Failures, 2)
}

func TestComputeReport_NoFlights(t *testing.T) {
	store := newMemStore()
	store.addReport("r1")

	_, err := newAggregatorFixture(newFakeModel(), store).ComputeReport(context.Background(), "r1")
	require.ErrorIs(t, err, ErrNoFlights)
	assert.Zero(t, store.saves)
	assert.Zero(t, store.upserts)
}

func TestComputeReport_ReportNotFound(t *testing.T) {
	store := newMemStore()
	_, err := newAggregatorFixture(newFakeModel(), store).ComputeReport(context.Background(), "missing")
	require.ErrorIs(t, err, ErrReportNotFound)
	assert.Zero(t, store.saves)
}

func TestComputeReport_ConfigurationAborts(t *testing.T) {
	store := newMemStore()
	store.addReport("r1", flight("f1", "1"), flight("f2", "2"))

	_, err := newAggregatorFixture(nil, store).ComputeReport(context.Background(), "r1")
	require.ErrorIs(t, err, ErrConfiguration)
	assert.Zero(t, store.saves)
}

func TestComputeReport_MixedModelVersions(t *testing.T) {
	model := newFakeModel()
	model.results["1"] = result(tim.PerPax{tim.CabinEconomy: 10}, i64(10), &tim.ModelVersion{Major: 3, Minor: 1})
	model.results["2"] = result(tim.PerPax{tim.CabinEconomy: 10}, i64(10), nil)
	model.results["3"] = result(tim.PerPax{tim.CabinEconomy: 10}, i64(10), &tim.ModelVersion{Major: 2, Minor: 9})

	store := newMemStore()
	store.addReport("r1", flight("f1", "1"), flight("f2", "2"), flight("f3", "3"))

	run, err := newAggregatorFixture(model, store).ComputeReport(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, "2.9.0", run.Summary.ModelVersion)
	assert.Equal(t, []string{"unknown", "2.9.0", "3.1.0"}, run.Summary.ModelVersions)
	assert.True(t, run.Summary.MixedModelVersions)
}

func TestComputeReport_OverwritesPreviousSummary(t *testing.T) {
	model := newFakeModel()
	model.results["1"] = result(tim.PerPax{tim.CabinEconomy: 100}, i64(100), v300)

	store := newMemStore()
	store.addReport("r1", flight("f1", "1"))
	agg := newAggregatorFixture(model, store)

	_, err := agg.ComputeReport(context.Background(), "r1")
	require.NoError(t, err)

	model.results["1"] = result(tim.PerPax{tim.CabinEconomy: 40}, i64(40), v300)
	run, err := agg.ComputeReport(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, int64(40), run.Summary.TotalCo2Grams)

	saved, _ := store.GetReport(context.Background(), "r1")
	assert.Equal(t, int64(40), saved.Emissions.TotalCo2Grams)
	assert.Len(t, store.estimates, 1)
}

// blockingModel holds every call until released.
type blockingModel struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
	mu      sync.Mutex
	calls   int
}

func (b *blockingModel) ComputeFlightEmissions(ctx context.Context, _ tim.Request) (*tim.Result, error) {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	b.once.Do(func() { close(b.started) })
	select {
	case <-b.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return result(tim.PerPax{tim.CabinEconomy: 10}, i64(10), v300), nil
}

func TestComputeReport_ConcurrentRunsShare(t *testing.T) {
	model := &blockingModel{started: make(chan struct{}), release: make(chan struct{})}
	store := newMemStore()
	store.addReport("r1", flight("f1", "1"))
	agg := newAggregatorFixture(model, store)

	var wg sync.WaitGroup
	runs := make([]*ReportRun, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		runs[0], _ = agg.ComputeReport(context.Background(), "r1")
	}()
	<-model.started

	wg.Add(1)
	go func() {
		defer wg.Done()
		runs[1], _ = agg.ComputeReport(context.Background(), "r1")
	}()
	// Give the second caller time to join the in-flight run.
	time.Sleep(50 * time.Millisecond)
	close(model.release)
	wg.Wait()

	require.NotNil(t, runs[0])
	require.NotNil(t, runs[1])
	assert.Same(t, runs[0], runs[1])
	assert.Equal(t, 1, model.calls)
	assert.Equal(t, 1, store.saves)
}

func TestComputeReport_CancelledCallerLeavesSharedRun(t *testing.T) {
	model := &blockingModel{started: make(chan struct{}), release: make(chan struct{})}
	store := newMemStore()
	store.addReport("r1", flight("f1", "1"))
	agg := newAggregatorFixture(model, store)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := agg.ComputeReport(firstCtx, "r1")
		firstErr <- err
	}()
	<-model.started

	var (
		wg     sync.WaitGroup
		second *ReportRun
		err    error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		second, err = agg.ComputeReport(context.Background(), "r1")
	}()
	time.Sleep(50 * time.Millisecond)

	cancelFirst()
	require.ErrorIs(t, <-firstErr, context.Canceled)

	close(model.release)
	wg.Wait()

	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, 1, second.Summary.FlightsWithEmissions)
	assert.Equal(t, 1, model.calls)
	assert.Equal(t, 1, store.saves)
}

func TestComputeReport_LastCallerCancelledStopsRun(t *testing.T) {
	model := &blockingModel{started: make(chan struct{}), release: make(chan struct{})}
	store := newMemStore()
	store.addReport("r1", flight("f1", "1"))
	agg := newAggregatorFixture(model, store)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := agg.ComputeReport(ctx, "r1")
		errCh <- err
	}()
	<-model.started
	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)

	// The abandoned run is not joined by later callers.
	close(model.release)
	run, err := agg.ComputeReport(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, 1, run.Summary.FlightsWithEmissions)

	model.mu.Lock()
	defer model.mu.Unlock()
	assert.Equal(t, 2, model.calls)
	assert.Equal(t, 1, store.saves)
}

func TestComputeReport_LogsProgress(t *testing.T) {
	model := newFakeModel()
	model.results["1"] = result(tim.PerPax{tim.CabinEconomy: 10}, i64(10), v300)
	model.errs["2"] = tim.ErrRequestFailed
	store := newMemStore()
	store.addReport("r1", flight("f1", "1"), flight("f2", "2"))

	var buf bytes.Buffer
	ctx := zerolog.New(&buf).Level(zerolog.DebugLevel).WithContext(context.Background())
	_, err := newAggregatorFixture(model, store).ComputeReport(ctx, "r1")
	require.NoError(t, err)

	var progress []string
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if strings.Contains(line, `"message":"flight processed"`) {
			progress = append(progress, line)
		}
	}
	require.Len(t, progress, 2)
	assert.Contains(t, progress[0], `"percent":50`)
	assert.Contains(t, progress[1], `"percent":100`)
	assert.Contains(t, progress[1], `"failed":1`)
	assert.Contains(t, progress[1], `"elapsed":`)
	assert.Contains(t, progress[1], `"report_id":"r1"`)
}
