package store

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/oklog/ulid/v2"
	"gopkg.in/yaml.v3"

	"github.com/rshade/travelcarbon/internal/emissions"
	"github.com/rshade/travelcarbon/internal/tim"
)

// ErrInvalidDataset is returned for import files that cannot be stored.
var ErrInvalidDataset = errors.New("invalid dataset")

// Dataset is the import file format: reports, each with its flights.
//
//	reports:
//	  - title: Week 51
//	    period_start: 2025-12-15
//	    period_end: 2025-12-21
//	    flights:
//	      - origin: NBO
//	        destination: JFK
//	        carrier_code: KQ
//	        flight_number: 2
//	        departure_date: 2025-12-23
//	        passengers: 2
//	        cabin_class: business
type Dataset struct {
	Reports []ReportRecord `yaml:"reports"`
}

// ReportRecord is a report together with its flights.
type ReportRecord struct {
	emissions.Report `yaml:",inline"`

	Flights []emissions.Flight `yaml:"flights"`
}

// ImportResult counts what an import wrote.
type ImportResult struct {
	Reports   int      `json:"reports"`
	Flights   int      `json:"flights"`
	ReportIDs []string `json:"reportIds"`
}

// LoadDataset reads a YAML dataset from path.
func LoadDataset(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading dataset %s: %w", path, err)
	}
	var ds Dataset
	if err = yaml.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %w", ErrInvalidDataset, path, err)
	}
	return &ds, nil
}

// prepare assigns missing IDs, links flights to their report, and checks the
// fields a flight needs before it can be sent to the model.
func prepare(ds *Dataset, now time.Time) ([]emissions.Report, []emissions.Flight, error) {
	reports := make([]emissions.Report, 0, len(ds.Reports))
	var flights []emissions.Flight

	for i, rec := range ds.Reports {
		r := rec.Report
		if r.Title == "" {
			return nil, nil, fmt.Errorf("%w: report %d has no title", ErrInvalidDataset, i)
		}
		if r.ID == "" {
			r.ID = ulid.Make().String()
		}
		if r.Status == "" {
			r.Status = "pending"
		}
		r.CreatedAt, r.UpdatedAt = now, now
		r.FlightIDs = make([]string, 0, len(rec.Flights))
		r.Emissions = nil

		for j, f := range rec.Flights {
			if err := validateFlight(&f); err != nil {
				return nil, nil, fmt.Errorf("report %q flight %d: %w", r.Title, j, err)
			}
			if f.ID == "" {
				f.ID = ulid.Make().String()
			}
			f.ReportID = r.ID
			f.CreatedAt = now
			r.FlightIDs = append(r.FlightIDs, f.ID)
			flights = append(flights, f)
		}
		reports = append(reports, r)
	}
	return reports, flights, nil
}

func validateFlight(f *emissions.Flight) error {
	switch {
	case f.Origin == "", f.Destination == "", f.CarrierCode == "", f.FlightNumber == "":
		return fmt.Errorf("%w: origin, destination, carrier code and flight number are required",
			emissions.ErrInvalidFlight)
	case f.CabinClass != "" && !f.CabinClass.Valid():
		return fmt.Errorf("%w: unknown cabin class %q", emissions.ErrInvalidFlight, f.CabinClass)
	case f.Passengers < 0:
		return fmt.Errorf("%w: negative passenger count", emissions.ErrInvalidFlight)
	}
	if _, err := tim.ParseDate(f.DepartureDate); err != nil {
		return fmt.Errorf("%w: %w", emissions.ErrInvalidFlight, err)
	}
	return nil
}
