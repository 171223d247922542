package emissions

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rshade/travelcarbon/internal/tim"
)

func TestEstimateFlight_TotalIsPassengersTimesRate(t *testing.T) {
	model := newFakeModel()
	model.results["100"] = result(tim.PerPax{tim.CabinBusiness: 2500}, i64(2500), v300)
	store := newMemStore()

	f := flight("f1", "100")
	f.Passengers = 3
	f.CabinClass = tim.CabinBusiness

	got, err := NewEstimator(model, store).EstimateFlight(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, int64(2500), got.Estimate.Co2GramsPerPax)
	assert.Equal(t, int64(7500), got.Estimate.Co2TotalGrams)
	assert.Equal(t, tim.CabinBusiness, got.Estimate.CabinClassUsed)
	assert.False(t, got.Estimate.CabinFallback)
	assert.Equal(t, CalculationActual, got.Estimate.CalculationType)
	assert.Equal(t, "3.0.0", got.Estimate.ModelVersion)
	assert.Equal(t, v300, got.ModelVersion)

	require.Len(t, model.calls, 1)
	req := model.calls[0]
	assert.Equal(t, 3, req.Passengers)
	assert.Equal(t, tim.CabinBusiness, req.CabinClass)
	assert.Equal(t, tim.Date{Year: 2025, Month: 12, Day: 23}, req.Segments[0].DepartureDate)
	assert.Equal(t, "KQ", req.Segments[0].OperatingCarrierCode)
}

func TestEstimateFlight_Defaults(t *testing.T) {
	model := newFakeModel()
	model.results["1"] = result(tim.PerPax{tim.CabinEconomy: 50}, i64(50), v300)

	got, err := NewEstimator(model, newMemStore()).EstimateFlight(context.Background(), flight("f1", "1"))
	require.NoError(t, err)
	assert.Equal(t, int64(50), got.Estimate.Co2TotalGrams)
	assert.Equal(t, 1, got.Estimate.Passengers)
	assert.Equal(t, tim.CabinEconomy, got.Estimate.CabinClassUsed)
	assert.Equal(t, tim.CabinEconomy, model.calls[0].CabinClass)
	assert.Equal(t, 1, model.calls[0].Passengers)
}

func TestEstimateFlight_UnknownVersion(t *testing.T) {
	model := newFakeModel()
	model.results["1"] = result(tim.PerPax{tim.CabinEconomy: 10}, i64(10), nil)

	got, err := NewEstimator(model, newMemStore()).EstimateFlight(context.Background(), flight("f1", "1"))
	require.NoError(t, err)
	assert.Equal(t, "unknown", got.Estimate.ModelVersion)
	assert.Nil(t, got.ModelVersion)
}

func TestEstimateFlight_Idempotent(t *testing.T) {
	model := newFakeModel()
	store := newMemStore()
	est := NewEstimator(model, store)
	f := flight("f1", "1")

	model.results["1"] = result(tim.PerPax{tim.CabinEconomy: 100}, i64(100), v300)
	first, err := est.EstimateFlight(context.Background(), f)
	require.NoError(t, err)

	model.results["1"] = result(tim.PerPax{tim.CabinEconomy: 120}, i64(120), v300)
	second, err := est.EstimateFlight(context.Background(), f)
	require.NoError(t, err)

	stored, err := store.FindEstimatesByFlight(context.Background(), "f1")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, int64(120), stored[0].Co2GramsPerPax)
	assert.Equal(t, first.Estimate.ID, second.Estimate.ID)

	// A new model version keeps the old record.
	model.results["1"] = result(tim.PerPax{tim.CabinEconomy: 90}, i64(90), &tim.ModelVersion{Major: 3, Minor: 1})
	_, err = est.EstimateFlight(context.Background(), f)
	require.NoError(t, err)

	stored, err = store.FindEstimatesByFlight(context.Background(), "f1")
	require.NoError(t, err)
	require.Len(t, stored, 2)
}

func TestResolveRate(t *testing.T) {
	tests := []struct {
		name         string
		perCabin     *int64
		perPax       tim.PerPax
		requested    tim.CabinClass
		want         int64
		wantResolved tim.CabinClass
	}{
		{
			name:         "requested cabin",
			perCabin:     i64(300),
			perPax:       tim.PerPax{tim.CabinFirst: 300, tim.CabinEconomy: 100},
			requested:    tim.CabinFirst,
			want:         300,
			wantResolved: tim.CabinFirst,
		},
		{
			name:         "economy before business",
			perPax:       tim.PerPax{tim.CabinEconomy: 100, tim.CabinBusiness: 200},
			requested:    tim.CabinFirst,
			want:         100,
			wantResolved: tim.CabinEconomy,
		},
		{
			name:         "business when economy missing",
			perPax:       tim.PerPax{tim.CabinBusiness: 200, tim.CabinFirst: 400},
			requested:    tim.CabinPremiumEconomy,
			want:         200,
			wantResolved: tim.CabinBusiness,
		},
		{
			name:         "zero counts as missing",
			perCabin:     i64(0),
			perPax:       tim.PerPax{tim.CabinFirst: 0, tim.CabinEconomy: 0, tim.CabinBusiness: 80},
			requested:    tim.CabinFirst,
			want:         80,
			wantResolved: tim.CabinBusiness,
		},
		{
			name:      "nothing usable",
			perPax:    tim.PerPax{tim.CabinFirst: 500},
			requested: tim.CabinPremiumEconomy,
			want:      0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, resolved := ResolveRate(tt.perCabin, tt.perPax, tt.requested)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantResolved, resolved)
		})
	}
}

func TestEstimateFlight_FallbackIsFlagged(t *testing.T) {
	model := newFakeModel()
	model.results["1"] = result(tim.PerPax{tim.CabinEconomy: 100, tim.CabinBusiness: 200}, nil, v300)

	f := flight("f1", "1")
	f.CabinClass = tim.CabinFirst
	f.Passengers = 2

	got, err := NewEstimator(model, newMemStore()).EstimateFlight(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, int64(100), got.Estimate.Co2GramsPerPax)
	assert.Equal(t, int64(200), got.Estimate.Co2TotalGrams)
	assert.Equal(t, tim.CabinFirst, got.Estimate.CabinClassUsed)
	assert.Equal(t, tim.CabinEconomy, got.Estimate.CabinClassResolved)
	assert.True(t, got.Estimate.CabinFallback)
	assert.Len(t, got.Estimate.AllCabinEmissions, 2)
}

func TestEstimateFlight_Errors(t *testing.T) {
	tests := []struct {
		name    string
		client  func() ModelClient
		flight  Flight
		wantErr error
	}{
		{
			name:    "no client",
			client:  func() ModelClient { return nil },
			flight:  flight("f1", "1"),
			wantErr: ErrConfiguration,
		},
		{
			name: "missing api key",
			client: func() ModelClient {
				m := newFakeModel()
				m.errs["1"] = tim.ErrMissingAPIKey
				return m
			},
			flight:  flight("f1", "1"),
			wantErr: ErrConfiguration,
		},
		{
			name: "transport failure",
			client: func() ModelClient {
				m := newFakeModel()
				m.errs["1"] = errors.Join(tim.ErrRequestFailed, context.DeadlineExceeded)
				return m
			},
			flight:  flight("f1", "1"),
			wantErr: ErrEmissionModelUnavailable,
		},
		{
			name: "no per-pax data",
			client: func() ModelClient {
				m := newFakeModel()
				m.results["1"] = result(nil, nil, v300)
				return m
			},
			flight:  flight("f1", "1"),
			wantErr: ErrNoEmissionsData,
		},
		{
			name:   "bad departure date",
			client: func() ModelClient { return newFakeModel() },
			flight: func() Flight {
				f := flight("f1", "1")
				f.DepartureDate = "next tuesday"
				return f
			}(),
			wantErr: ErrInvalidFlight,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			_, err := NewEstimator(tt.client(), store).EstimateFlight(context.Background(), tt.flight)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Zero(t, store.upserts)
		})
	}
}
