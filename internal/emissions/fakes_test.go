package emissions

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rshade/travelcarbon/internal/tim"
)

// fakeModel answers by flight number.
type fakeModel struct {
	mu      sync.Mutex
	results map[string]*tim.Result
	errs    map[string]error
	calls   []tim.Request
}

func newFakeModel() *fakeModel {
	return &fakeModel{results: map[string]*tim.Result{}, errs: map[string]error{}}
}

func (f *fakeModel) ComputeFlightEmissions(_ context.Context, req tim.Request) (*tim.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)

	num := req.Segments[0].FlightNumber
	if err, ok := f.errs[num]; ok {
		return nil, err
	}
	res, ok := f.results[num]
	if !ok {
		return nil, fmt.Errorf("no canned result for flight number %s", num)
	}
	return res, nil
}

func result(perPax tim.PerPax, perCabin *int64, v *tim.ModelVersion) *tim.Result {
	return &tim.Result{PerPax: perPax, PerCabinValue: perCabin, ModelVersion: v}
}

func i64(v int64) *int64 { return &v }

var v300 = &tim.ModelVersion{Major: 3}

// memStore is an in-memory Store.
type memStore struct {
	mu        sync.Mutex
	reports   map[string]*Report
	flights   map[string]Flight
	estimates []Estimate
	nextID    int
	upserts   int
	saves     int
}

func newMemStore() *memStore {
	return &memStore{reports: map[string]*Report{}, flights: map[string]Flight{}}
}

func (m *memStore) addReport(id string, flights ...Flight) {
	r := &Report{ID: id, Title: "Week " + id}
	for _, f := range flights {
		f.ReportID = id
		m.flights[f.ID] = f
		r.FlightIDs = append(r.FlightIDs, f.ID)
	}
	m.reports[id] = r
}

func (m *memStore) UpsertEstimate(_ context.Context, key EstimateKey, est Estimate) (*Estimate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts++

	now := time.Now().UTC()
	est.FlightID, est.ModelVersion = key.FlightID, key.ModelVersion
	est.UpdatedAt = now
	for i := range m.estimates {
		if m.estimates[i].Key() == key {
			est.ID, est.CreatedAt = m.estimates[i].ID, m.estimates[i].CreatedAt
			m.estimates[i] = est
			return &est, nil
		}
	}
	m.nextID++
	est.ID = fmt.Sprintf("est-%d", m.nextID)
	est.CreatedAt = now
	m.estimates = append(m.estimates, est)
	return &est, nil
}

func (m *memStore) FindEstimatesByFlight(_ context.Context, flightID string) ([]Estimate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Estimate
	for _, e := range m.estimates {
		if e.FlightID == flightID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memStore) FindEstimatesByReport(_ context.Context, reportID string) ([]Estimate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[reportID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrReportNotFound, reportID)
	}
	var out []Estimate
	for _, e := range m.estimates {
		if slices.Contains(r.FlightIDs, e.FlightID) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memStore) GetReport(_ context.Context, reportID string) (*Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[reportID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrReportNotFound, reportID)
	}
	cp := *r
	return &cp, nil
}

func (m *memStore) SaveSummary(_ context.Context, reportID string, summary Summary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	r, ok := m.reports[reportID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrReportNotFound, reportID)
	}
	r.Emissions = &summary
	return nil
}

func (m *memStore) GetFlight(_ context.Context, flightID string) (*Flight, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.flights[flightID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFlightNotFound, flightID)
	}
	return &f, nil
}

func (m *memStore) FlightsForReport(_ context.Context, reportID string) ([]Flight, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[reportID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrReportNotFound, reportID)
	}
	out := make([]Flight, 0, len(r.FlightIDs))
	for _, id := range r.FlightIDs {
		out = append(out, m.flights[id])
	}
	return out, nil
}

func flight(id, number string) Flight {
	return Flight{
		ID:            id,
		Origin:        "NBO",
		Destination:   "JFK",
		CarrierCode:   "KQ",
		FlightNumber:  number,
		DepartureDate: "2025-12-23",
	}
}
