package emissions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rshade/travelcarbon/internal/logging"
	"github.com/rshade/travelcarbon/internal/tim"
)

// Estimation is the outcome of estimating one flight.
type Estimation struct {
	Estimate *Estimate `json:"estimate"`
	// ModelVersion is the raw version triple, nil when the model sent none.
	ModelVersion *tim.ModelVersion `json:"timModelVersion"`
}

// Estimator computes and stores the emissions of single flights.
type Estimator struct {
	client ModelClient
	store  EstimateStore
}

// NewEstimator returns an Estimator. A nil client makes every estimate fail
// with ErrConfiguration.
func NewEstimator(client ModelClient, store EstimateStore) *Estimator {
	return &Estimator{client: client, store: store}
}

// EstimateFlight asks the model for the flight's emissions and upserts the
// estimate under (flight ID, model version).
func (e *Estimator) EstimateFlight(ctx context.Context, flight Flight) (*Estimation, error) {
	log := logging.FromContext(ctx).With().
		Str(logging.FieldComponent, "estimator").
		Str("flight_id", flight.ID).
		Logger()

	if e.client == nil {
		return nil, fmt.Errorf("%w: no model client", ErrConfiguration)
	}

	segment, err := flight.Segment()
	if err != nil {
		return nil, fmt.Errorf("%w: flight %s: %w", ErrInvalidFlight, flight.ID, err)
	}

	passengers := flight.EffectivePassengers()
	cabin := flight.EffectiveCabinClass()

	res, err := e.client.ComputeFlightEmissions(ctx, tim.Request{
		Segments:   []tim.Segment{segment},
		Passengers: passengers,
		CabinClass: cabin,
	})
	if err != nil {
		if errors.Is(err, tim.ErrMissingAPIKey) {
			return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
		}
		return nil, fmt.Errorf("%w: flight %s: %w", ErrEmissionModelUnavailable, flight.ID, err)
	}
	if res == nil || res.PerPax == nil {
		return nil, fmt.Errorf("%w: flight %s", ErrNoEmissionsData, flight.ID)
	}

	perPax, resolved := ResolveRate(res.PerCabinValue, res.PerPax, cabin)
	version := tim.FormatModelVersion(res.ModelVersion)

	est := Estimate{
		FlightID:           flight.ID,
		ReportID:           flight.ReportID,
		Co2GramsPerPax:     perPax,
		Co2TotalGrams:      perPax * int64(passengers),
		Passengers:         passengers,
		CabinClassUsed:     cabin,
		CabinClassResolved: resolved,
		CabinFallback:      resolved != cabin,
		AllCabinEmissions:  res.PerPax,
		CalculationType:    CalculationActual,
		ModelVersion:       version,
		UpdatedAt:          time.Now().UTC(),
	}

	stored, err := e.store.UpsertEstimate(ctx, est.Key(), est)
	if err != nil {
		return nil, fmt.Errorf("storing estimate for flight %s: %w", flight.ID, err)
	}

	ev := log.Debug().
		Int64("co2_grams_per_pax", stored.Co2GramsPerPax).
		Int64("co2_total_grams", stored.Co2TotalGrams).
		Str("model_version", version)
	if est.CabinFallback {
		ev = ev.Str("requested_cabin", string(cabin)).Str("resolved_cabin", string(resolved))
	}
	ev.Msg("flight emissions estimated")

	return &Estimation{Estimate: stored, ModelVersion: res.ModelVersion}, nil
}

// ResolveRate picks the per-passenger rate: the requested cabin's value, then
// economy, then business, then 0. A value of 0 counts as missing. It returns
// the rate and the class it came from, which is empty when nothing matched.
func ResolveRate(perCabinValue *int64, perPax tim.PerPax, requested tim.CabinClass) (int64, tim.CabinClass) {
	if perCabinValue != nil && *perCabinValue > 0 {
		return *perCabinValue, requested
	}
	for _, class := range []tim.CabinClass{tim.CabinEconomy, tim.CabinBusiness} {
		if v, ok := perPax.Get(class); ok && v > 0 {
			return v, class
		}
	}
	return 0, ""
}
