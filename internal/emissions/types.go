package emissions

import (
	"time"

	"github.com/rshade/travelcarbon/internal/tim"
)

// Defaults applied to flights at computation time.
const (
	DefaultPassengers = 1
	DefaultCabinClass = tim.CabinEconomy
)

// CalculationType says how an estimate was derived.
type CalculationType string

const (
	// CalculationActual is computed from flight-specific model data.
	CalculationActual CalculationType = "actual"
	// CalculationTypical is reserved for estimates made without flight-specific data.
	CalculationTypical CalculationType = "typical"
)

// Report is a weekly sustainability report. Emissions holds the latest
// summary, if any.
type Report struct {
	ID          string    `json:"id"                    bson:"_id"                   yaml:"id"`
	Title       string    `json:"title"                 bson:"title"                 yaml:"title"`
	Status      string    `json:"status,omitempty"      bson:"status,omitempty"      yaml:"status,omitempty"`
	PeriodStart string    `json:"periodStart,omitempty" bson:"periodStart,omitempty" yaml:"period_start,omitempty"`
	PeriodEnd   string    `json:"periodEnd,omitempty"   bson:"periodEnd,omitempty"   yaml:"period_end,omitempty"`
	FlightIDs   []string  `json:"flights"               bson:"flights"               yaml:"-"`
	Emissions   *Summary  `json:"emissionsSummary,omitempty" bson:"emissionsSummary,omitempty" yaml:"-"`
	CreatedAt   time.Time `json:"createdAt"             bson:"createdAt"             yaml:"-"`
	UpdatedAt   time.Time `json:"updatedAt"             bson:"updatedAt"             yaml:"-"`
}

// Flight is a single flight attached to a report. Passengers and CabinClass
// may be zero-valued; use EffectivePassengers and EffectiveCabinClass.
type Flight struct {
	ID            string         `json:"id"                   bson:"_id"                  yaml:"id"`
	ReportID      string         `json:"reportId,omitempty"   bson:"reportId,omitempty"   yaml:"report_id,omitempty"`
	Origin        string         `json:"origin"               bson:"origin"               yaml:"origin"`
	Destination   string         `json:"destination"          bson:"destination"          yaml:"destination"`
	CarrierCode   string         `json:"carrierCode"          bson:"carrierCode"          yaml:"carrier_code"`
	FlightNumber  string         `json:"flightNumber"         bson:"flightNumber"         yaml:"flight_number"`
	DepartureDate string         `json:"departureDateString"  bson:"departureDateString"  yaml:"departure_date"`
	Passengers    int            `json:"passengers,omitempty" bson:"passengers,omitempty" yaml:"passengers,omitempty"`
	CabinClass    tim.CabinClass `json:"cabinClass,omitempty" bson:"cabinClass,omitempty" yaml:"cabin_class,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"            bson:"createdAt"            yaml:"-"`
}

// EffectivePassengers returns the passenger count, defaulting to 1 when the
// field is unset or not positive.
func (f *Flight) EffectivePassengers() int {
	if f.Passengers <= 0 {
		return DefaultPassengers
	}
	return f.Passengers
}

// EffectiveCabinClass returns the cabin class, defaulting to economy.
func (f *Flight) EffectiveCabinClass() tim.CabinClass {
	if f.CabinClass == "" {
		return DefaultCabinClass
	}
	return f.CabinClass
}

// Segment builds the model request segment for the flight.
func (f *Flight) Segment() (tim.Segment, error) {
	date, err := tim.ParseDate(f.DepartureDate)
	if err != nil {
		return tim.Segment{}, err
	}
	return tim.Segment{
		Origin:               f.Origin,
		Destination:          f.Destination,
		OperatingCarrierCode: f.CarrierCode,
		FlightNumber:         f.FlightNumber,
		DepartureDate:        date,
	}, nil
}

// EstimateKey identifies a stored estimate. At most one estimate exists per key.
type EstimateKey struct {
	FlightID     string
	ModelVersion string
}

// Estimate is one flight's emissions under one model version.
//
// CabinClassUsed is the class that was requested. CabinClassResolved is the
// class whose rate was actually used, and CabinFallback is set when the two
// differ.
type Estimate struct {
	ID                 string          `json:"id"                           bson:"_id,omitempty"`
	FlightID           string          `json:"flightId"                     bson:"flightId"`
	ReportID           string          `json:"reportId,omitempty"           bson:"reportId,omitempty"`
	Co2GramsPerPax     int64           `json:"co2GramsPerPax"               bson:"co2GramsPerPax"`
	Co2TotalGrams      int64           `json:"co2TotalGrams"                bson:"co2TotalGrams"`
	Passengers         int             `json:"passengers"                   bson:"passengers"`
	CabinClassUsed     tim.CabinClass  `json:"cabinClassUsed"               bson:"cabinClassUsed"`
	CabinClassResolved tim.CabinClass  `json:"cabinClassResolved,omitempty" bson:"cabinClassResolved,omitempty"`
	CabinFallback      bool            `json:"cabinFallback"                bson:"cabinFallback"`
	AllCabinEmissions  tim.PerPax      `json:"allCabinEmissions"            bson:"allCabinEmissions"`
	CalculationType    CalculationType `json:"calculationType"              bson:"calculationType"`
	ModelVersion       string          `json:"timModelVersion"              bson:"timModelVersion"`
	CreatedAt          time.Time       `json:"createdAt"                    bson:"createdAt"`
	UpdatedAt          time.Time       `json:"updatedAt"                    bson:"updatedAt"`
}

// Key returns the estimate's upsert key.
func (e *Estimate) Key() EstimateKey {
	return EstimateKey{FlightID: e.FlightID, ModelVersion: e.ModelVersion}
}

// Summary is the report-level rollup from one aggregation run.
//
// ModelVersion is the version of the last flight that succeeded. ModelVersions
// lists every distinct version seen in the run, lowest first.
type Summary struct {
	TotalCo2Grams        int64     `json:"totalCo2Grams"        bson:"totalCo2Grams"`
	TotalPassengers      int       `json:"totalPassengers"      bson:"totalPassengers"`
	Co2GramsPerPax       int64     `json:"co2GramsPerPax"       bson:"co2GramsPerPax"`
	FlightsWithEmissions int       `json:"flightsWithEmissions" bson:"flightsWithEmissions"`
	FlightsTotal         int       `json:"flightsTotal"         bson:"flightsTotal"`
	ModelVersion         string    `json:"timModelVersion"      bson:"timModelVersion"`
	ModelVersions        []string  `json:"timModelVersions"     bson:"timModelVersions"`
	MixedModelVersions   bool      `json:"mixedModelVersions"   bson:"mixedModelVersions"`
	LastComputedAt       time.Time `json:"lastComputed"         bson:"lastComputed"`
}

// IsComputed reports whether s holds usable figures. A zero total is treated
// the same as a missing summary.
func (s *Summary) IsComputed() bool {
	return s != nil && s.TotalCo2Grams != 0
}

// NarrativeContext is the small emissions object handed to the report
// narrative generator.
type NarrativeContext struct {
	Co2GramsPerPax int64  `json:"co2GramsPerPax"`
	Co2TotalGrams  int64  `json:"co2TotalGrams"`
	ModelVersion   string `json:"timModelVersion"`
}
