package emissions

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/rshade/travelcarbon/internal/engine/batch"
	"github.com/rshade/travelcarbon/internal/logging"
	"github.com/rshade/travelcarbon/internal/tim"
)

// FlightFailure records a flight that was left out of a summary.
type FlightFailure struct {
	FlightID string `json:"flightId"`
	Error    string `json:"error"`
}

// ReportRun is the result of one report aggregation.
type ReportRun struct {
	ReportID string          `json:"reportId"`
	Message  string          `json:"message"`
	Summary  Summary         `json:"emissionsSummary"`
	Failures []FlightFailure `json:"failures,omitempty"`
}

// Aggregator computes report-level summaries.
type Aggregator struct {
	estimator *Estimator
	reports   ReportRepository
	flights   FlightRepository

	// group collapses concurrent runs for the same report into one. calls
	// tracks the callers waiting on each run; mu guards calls and every
	// DoChan and Forget on group.
	group singleflight.Group
	mu    sync.Mutex
	calls map[string]*sharedRun
}

// sharedRun is one in-flight aggregation and the callers waiting on it.
type sharedRun struct {
	ctx     context.Context //nolint:containedctx // Outlives any single caller.
	cancel  context.CancelFunc
	waiters int
}

// NewAggregator returns an Aggregator.
func NewAggregator(estimator *Estimator, reports ReportRepository, flights FlightRepository) *Aggregator {
	return &Aggregator{
		estimator: estimator,
		reports:   reports,
		flights:   flights,
		calls:     make(map[string]*sharedRun),
	}
}

// ComputeReport estimates every flight on the report in order and overwrites
// the report's summary with the totals of the flights that succeeded. Flight
// failures are logged and skipped.
//
// It fails without writing anything when the report does not exist, has no
// flights, or the model is not configured. Concurrent calls for the same
// report share one run. A caller whose ctx ends returns ctx.Err() at once;
// the shared run is cancelled only when no caller is left waiting on it.
func (a *Aggregator) ComputeReport(ctx context.Context, reportID string) (*ReportRun, error) {
	sr, ch := a.join(ctx, reportID)

	select {
	case res := <-ch:
		a.leave(reportID, sr)
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			logging.FromContext(ctx).Debug().Str("report_id", reportID).Msg("joined in-flight aggregation")
		}
		return res.Val.(*ReportRun), nil
	case <-ctx.Done():
		a.leave(reportID, sr)
		return nil, ctx.Err()
	}
}

// join registers the caller on the in-flight run for reportID, starting one
// if none exists. The run keeps the values of the starting caller's ctx,
// including its logger, but not its cancellation.
func (a *Aggregator) join(ctx context.Context, reportID string) (*sharedRun, <-chan singleflight.Result) {
	a.mu.Lock()
	defer a.mu.Unlock()

	sr, ok := a.calls[reportID]
	if !ok {
		runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		sr = &sharedRun{ctx: runCtx, cancel: cancel}
		a.calls[reportID] = sr
	}
	sr.waiters++

	// While sr is registered its run has not returned, so DoChan joins it
	// rather than starting another.
	ch := a.group.DoChan(reportID, func() (any, error) {
		defer a.detach(reportID, sr)
		return a.run(sr.ctx, reportID)
	})
	return sr, ch
}

// leave drops one waiter. The last waiter out cancels the run and detaches
// it so later callers start a fresh one.
func (a *Aggregator) leave(reportID string, sr *sharedRun) {
	a.mu.Lock()
	defer a.mu.Unlock()

	sr.waiters--
	if sr.waiters == 0 {
		sr.cancel()
		a.detachLocked(reportID, sr)
	}
}

func (a *Aggregator) detach(reportID string, sr *sharedRun) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.detachLocked(reportID, sr)
}

func (a *Aggregator) detachLocked(reportID string, sr *sharedRun) {
	if a.calls[reportID] == sr {
		delete(a.calls, reportID)
		a.group.Forget(reportID)
	}
}

func (a *Aggregator) run(ctx context.Context, reportID string) (*ReportRun, error) {
	log := logging.FromContext(ctx).With().
		Str(logging.FieldComponent, "aggregator").
		Str("report_id", reportID).
		Logger()

	if _, err := a.reports.GetReport(ctx, reportID); err != nil {
		return nil, err
	}

	flights, err := a.flights.FlightsForReport(ctx, reportID)
	if err != nil {
		return nil, fmt.Errorf("loading flights for report %s: %w", reportID, err)
	}
	if len(flights) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoFlights, reportID)
	}

	log.Info().Int("flights", len(flights)).Msg("computing report emissions")

	acc := newAccumulator()
	processor := batch.NewProcessorWithDefaults[Flight]().WithProgressCallback(func(p *batch.Progress) {
		snap := p.Snapshot()
		log.Debug().
			Str("progress", p.Status()).
			Int("failed", snap.FailedItems).
			Float64("percent", snap.PercentComplete).
			Dur("elapsed", snap.ElapsedTime).
			Msg("flight processed")
	})

	outcome, err := processor.Each(ctx, flights, func(ctx context.Context, flight Flight, _ int) error {
		est, err := a.estimator.EstimateFlight(ctx, flight)
		if errors.Is(err, ErrConfiguration) {
			return batch.Halt(err)
		}
		if err != nil {
			log.Warn().Err(err).Str("flight_id", flight.ID).Msg("skipping flight")
			return err
		}
		acc.add(est.Estimate)
		return nil
	})
	if err != nil {
		return nil, err
	}
	// A flight cut short by cancellation is not a model failure.
	if err = ctx.Err(); err != nil {
		return nil, err
	}

	summary := acc.summary(len(flights), time.Now().UTC())
	if summary.MixedModelVersions {
		log.Warn().Strs("model_versions", summary.ModelVersions).Msg("flights resolved under different model versions")
	}

	if err = a.reports.SaveSummary(ctx, reportID, summary); err != nil {
		return nil, fmt.Errorf("saving summary for report %s: %w", reportID, err)
	}

	run := &ReportRun{
		ReportID: reportID,
		Message:  fmt.Sprintf("Processed %d/%d flights", summary.FlightsWithEmissions, summary.FlightsTotal),
		Summary:  summary,
	}
	for _, f := range outcome.Failures {
		run.Failures = append(run.Failures, FlightFailure{FlightID: flights[f.Index].ID, Error: f.Err.Error()})
	}

	log.Info().
		Int("flights_with_emissions", summary.FlightsWithEmissions).
		Int("flights_total", summary.FlightsTotal).
		Int64("total_co2_grams", summary.TotalCo2Grams).
		Msg(run.Message)

	return run, nil
}

// accumulator holds the running totals of one run. It is owned by a single
// run and never shared.
type accumulator struct {
	totalCo2Grams   int64
	totalPassengers int
	succeeded       int
	lastVersion     string
	versions        map[string]struct{}
}

func newAccumulator() *accumulator {
	return &accumulator{versions: make(map[string]struct{})}
}

func (a *accumulator) add(est *Estimate) {
	a.totalCo2Grams += est.Co2TotalGrams
	a.totalPassengers += est.Passengers
	a.succeeded++
	a.lastVersion = est.ModelVersion
	a.versions[est.ModelVersion] = struct{}{}
}

func (a *accumulator) summary(flightsTotal int, now time.Time) Summary {
	s := Summary{
		TotalCo2Grams:        a.totalCo2Grams,
		TotalPassengers:      a.totalPassengers,
		FlightsWithEmissions: a.succeeded,
		FlightsTotal:         flightsTotal,
		ModelVersion:         a.lastVersion,
		ModelVersions:        sortedVersions(a.versions),
		MixedModelVersions:   len(a.versions) > 1,
		LastComputedAt:       now,
	}
	if s.ModelVersion == "" {
		s.ModelVersion = tim.UnknownModelVersion
	}
	if a.totalPassengers > 0 {
		s.Co2GramsPerPax = int64(math.Round(float64(a.totalCo2Grams) / float64(a.totalPassengers)))
	}
	return s
}
