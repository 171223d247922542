package emissions

import (
	"context"

	"github.com/rshade/travelcarbon/internal/tim"
)

// ModelClient computes per-passenger emissions for a flight. *tim.Client
// satisfies it.
type ModelClient interface {
	ComputeFlightEmissions(ctx context.Context, req tim.Request) (*tim.Result, error)
}

// EstimateStore persists estimates.
//
// UpsertEstimate must be atomic per key: it overwrites every field of an
// existing estimate with the same key, keeping its ID and CreatedAt, or inserts
// a new one. It returns the stored record.
type EstimateStore interface {
	UpsertEstimate(ctx context.Context, key EstimateKey, est Estimate) (*Estimate, error)
	FindEstimatesByFlight(ctx context.Context, flightID string) ([]Estimate, error)
	// FindEstimatesByReport returns the estimates of every flight on the report.
	FindEstimatesByReport(ctx context.Context, reportID string) ([]Estimate, error)
}

// ReportRepository reads reports and stores their summaries. GetReport
// returns an error wrapping ErrReportNotFound for unknown IDs.
type ReportRepository interface {
	GetReport(ctx context.Context, reportID string) (*Report, error)
	SaveSummary(ctx context.Context, reportID string, summary Summary) error
}

// FlightRepository reads flights. GetFlight returns an error wrapping
// ErrFlightNotFound for unknown IDs.
type FlightRepository interface {
	GetFlight(ctx context.Context, flightID string) (*Flight, error)
	FlightsForReport(ctx context.Context, reportID string) ([]Flight, error)
}

// Store is everything the emissions service needs from persistence.
type Store interface {
	EstimateStore
	ReportRepository
	FlightRepository
}
