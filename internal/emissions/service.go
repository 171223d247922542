package emissions

import (
	"context"
	"errors"
	"fmt"
	"slices"
)

// Service is the entry point for computing and reading emissions.
type Service struct {
	store      Store
	estimator  *Estimator
	aggregator *Aggregator
}

// NewService wires an Estimator and Aggregator over store. client may be nil
// when only the read operations are needed.
func NewService(client ModelClient, store Store) *Service {
	est := NewEstimator(client, store)
	return &Service{
		store:      store,
		estimator:  est,
		aggregator: NewAggregator(est, store, store),
	}
}

// ComputeFlightEmissions loads a flight and estimates it. Unlike a report
// run, any failure is returned to the caller.
func (s *Service) ComputeFlightEmissions(ctx context.Context, flightID string) (*Estimation, error) {
	flight, err := s.store.GetFlight(ctx, flightID)
	if err != nil {
		return nil, err
	}
	return s.estimator.EstimateFlight(ctx, *flight)
}

// ComputeReportEmissions runs the aggregator for a report.
func (s *Service) ComputeReportEmissions(ctx context.Context, reportID string) (*ReportRun, error) {
	return s.aggregator.ComputeReport(ctx, reportID)
}

// FlightSummary is the compact view of a flight's latest estimate.
type FlightSummary struct {
	Co2PerPax    int64  `json:"co2PerPax"`
	Co2Total     int64  `json:"co2Total"`
	CabinClass   string `json:"cabinClass"`
	ModelVersion string `json:"modelVersion"`
}

// FlightEmissions is a flight's latest estimate.
type FlightEmissions struct {
	Estimate Estimate      `json:"estimate"`
	Flight   *Flight       `json:"flight,omitempty"`
	Summary  FlightSummary `json:"summary"`
}

// GetFlightEmissions returns the estimate with the highest model version for
// the flight, or ErrEstimateNotFound.
func (s *Service) GetFlightEmissions(ctx context.Context, flightID string) (*FlightEmissions, error) {
	estimates, err := s.store.FindEstimatesByFlight(ctx, flightID)
	if err != nil {
		return nil, err
	}
	latest := LatestEstimate(estimates)
	if latest == nil {
		return nil, fmt.Errorf("%w: %s", ErrEstimateNotFound, flightID)
	}

	out := &FlightEmissions{
		Estimate: *latest,
		Summary: FlightSummary{
			Co2PerPax:    latest.Co2GramsPerPax,
			Co2Total:     latest.Co2TotalGrams,
			CabinClass:   string(latest.CabinClassUsed),
			ModelVersion: latest.ModelVersion,
		},
	}

	flight, err := s.store.GetFlight(ctx, flightID)
	switch {
	case err == nil:
		out.Flight = flight
	case !errors.Is(err, ErrFlightNotFound):
		return nil, err
	}
	return out, nil
}

// ReportEmissions is a report's stored summary.
type ReportEmissions struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Summary     Summary `json:"emissionsSummary"`
	FlightCount int     `json:"flightCount"`
}

// GetReportEmissions returns the stored summary. A missing or all-zero summary
// yields ErrSummaryNotComputed.
func (s *Service) GetReportEmissions(ctx context.Context, reportID string) (*ReportEmissions, error) {
	report, err := s.store.GetReport(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if !report.Emissions.IsComputed() {
		return nil, fmt.Errorf("%w: %s", ErrSummaryNotComputed, reportID)
	}
	return &ReportEmissions{
		ID:          report.ID,
		Title:       report.Title,
		Summary:     *report.Emissions,
		FlightCount: len(report.FlightIDs),
	}, nil
}

// ReportFlightEmissions lists every stored estimate for a report's flights.
type ReportFlightEmissions struct {
	ReportID             string     `json:"reportId"`
	TotalFlights         int        `json:"totalFlights"`
	FlightsWithEmissions int        `json:"flightsWithEmissions"`
	FlightEstimates      []Estimate `json:"flightEstimates"`
}

// GetReportFlightEmissions returns all estimates, across model versions, for
// the flights of a report. FlightsWithEmissions counts the estimates found.
func (s *Service) GetReportFlightEmissions(ctx context.Context, reportID string) (*ReportFlightEmissions, error) {
	report, err := s.store.GetReport(ctx, reportID)
	if err != nil {
		return nil, err
	}
	estimates, err := s.store.FindEstimatesByReport(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if estimates == nil {
		estimates = []Estimate{}
	}
	return &ReportFlightEmissions{
		ReportID:             reportID,
		TotalFlights:         len(report.FlightIDs),
		FlightsWithEmissions: len(estimates),
		FlightEstimates:      estimates,
	}, nil
}

// NarrativeContext returns the emissions figures for a report's narrative.
// The stored summary is preferred; without one, the most recently created
// estimate on the report is used. ErrSummaryNotComputed means neither exists.
func (s *Service) NarrativeContext(ctx context.Context, reportID string) (*NarrativeContext, error) {
	report, err := s.store.GetReport(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if report.Emissions.IsComputed() {
		return &NarrativeContext{
			Co2GramsPerPax: report.Emissions.Co2GramsPerPax,
			Co2TotalGrams:  report.Emissions.TotalCo2Grams,
			ModelVersion:   report.Emissions.ModelVersion,
		}, nil
	}

	estimates, err := s.store.FindEstimatesByReport(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if len(estimates) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrSummaryNotComputed, reportID)
	}
	newest := slices.MaxFunc(estimates, func(a, b Estimate) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return &NarrativeContext{
		Co2GramsPerPax: newest.Co2GramsPerPax,
		Co2TotalGrams:  newest.Co2TotalGrams,
		ModelVersion:   newest.ModelVersion,
	}, nil
}
