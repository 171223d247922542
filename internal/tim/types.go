// Package tim is a client for the Travel Impact Model
// flights:computeFlightEmissions API.
package tim

import (
	"fmt"
	"time"

	"github.com/Masterminds/semver/v3"
)

// CabinClass is a fare class understood by the model. The values double as
// the JSON keys of the per-passenger emissions object.
type CabinClass string

// Cabin classes returned by the model.
const (
	CabinFirst          CabinClass = "first"
	CabinBusiness       CabinClass = "business"
	CabinPremiumEconomy CabinClass = "premiumEconomy"
	CabinEconomy        CabinClass = "economy"
)

// CabinClasses lists every cabin class from most to least premium.
func CabinClasses() []CabinClass {
	return []CabinClass{CabinFirst, CabinBusiness, CabinPremiumEconomy, CabinEconomy}
}

// Valid reports whether c is one of the known cabin classes.
func (c CabinClass) Valid() bool {
	switch c {
	case CabinFirst, CabinBusiness, CabinPremiumEconomy, CabinEconomy:
		return true
	default:
		return false
	}
}

// Date is a calendar date as the model expects it.
type Date struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Day   int `json:"day"`
}

// ParseDate decomposes an ISO YYYY-MM-DD string into a Date.
func ParseDate(iso string) (Date, error) {
	t, err := time.Parse(time.DateOnly, iso)
	if err != nil {
		return Date{}, fmt.Errorf("parsing departure date %q: %w", iso, err)
	}
	return Date{Year: t.Year(), Month: int(t.Month()), Day: t.Day()}, nil
}

// Segment is one flight leg sent to the model.
type Segment struct {
	Origin               string `json:"origin"`
	Destination          string `json:"destination"`
	OperatingCarrierCode string `json:"operatingCarrierCode"`
	FlightNumber         string `json:"flightNumber"`
	DepartureDate        Date   `json:"departureDate"`
}

// Request asks the model for the emissions of a flight.
type Request struct {
	Segments   []Segment
	Passengers int
	CabinClass CabinClass
}

// PerPax maps cabin classes to grams of CO2e per passenger. Any subset of
// classes may be present.
type PerPax map[CabinClass]int64

// Get returns the value for class and whether it was present.
func (p PerPax) Get(class CabinClass) (int64, bool) {
	v, ok := p[class]
	return v, ok
}

// ModelVersion identifies the model release the figures came from.
type ModelVersion struct {
	Major int    `json:"major"`
	Minor int    `json:"minor"`
	Patch int    `json:"patch"`
	Dated string `json:"dated,omitempty"`
}

// UnknownModelVersion is the version string used when the model does not
// report one.
const UnknownModelVersion = "unknown"

// Semver returns the version as a semantic version.
func (v ModelVersion) Semver() *semver.Version {
	return semver.New(uint64(max(v.Major, 0)), uint64(max(v.Minor, 0)), uint64(max(v.Patch, 0)), "", "")
}

// String formats the version as "major.minor.patch".
func (v ModelVersion) String() string {
	return v.Semver().String()
}

// FormatModelVersion formats v, or returns UnknownModelVersion when v is nil.
func FormatModelVersion(v *ModelVersion) string {
	if v == nil {
		return UnknownModelVersion
	}
	return v.String()
}

// Result is the model's answer for one flight.
type Result struct {
	// PerPax is nil when the model returned no per-passenger data at all.
	PerPax PerPax
	// PerCabinValue is the value for the requested cabin, when present.
	PerCabinValue *int64
	// ModelVersion is nil when the model did not report a version.
	ModelVersion *ModelVersion
}

// wire types for the computeFlightEmissions endpoint.

type computeRequest struct {
	Flights []Segment `json:"flights"`
}

type flightEmissions struct {
	EmissionsGramsPerPax PerPax `json:"emissionsGramsPerPax,omitempty"`
	Source               string `json:"source,omitempty"`
}

type computeResponse struct {
	FlightEmissions []flightEmissions `json:"flightEmissions"`
	ModelVersion    *ModelVersion     `json:"modelVersion,omitempty"`
}
