package greenops

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeToKg(t *testing.T) {
	tests := []struct {
		name    string
		value   float64
		unit    string
		wantKg  float64
		wantErr error
	}{
		{name: "grams", value: 1000, unit: "g", wantKg: 1},
		{name: "grams co2e mixed case", value: 2500, unit: "GCO2E", wantKg: 2.5},
		{name: "kilograms", value: 150, unit: "kg", wantKg: 150},
		{name: "tonnes", value: 0.15, unit: "tCO2e", wantKg: 150},
		{name: "pounds", value: 1, unit: "lb", wantKg: PoundsToKg},
		{name: "unknown unit", value: 1, unit: "oz", wantErr: ErrInvalidUnit},
		{name: "negative", value: -1, unit: "g", wantErr: ErrNegativeValue},
		{name: "nan", value: math.NaN(), unit: "g", wantErr: ErrCalculationOverflow},
		{name: "overflow", value: math.MaxFloat64, unit: "t", wantErr: ErrCalculationOverflow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeToKg(tt.value, tt.unit)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.wantKg, got, 1e-9)
		})
	}
}

func TestGramsToKilograms(t *testing.T) {
	assert.InDelta(t, 568.346, GramsToKilograms(568346), 1e-9)
	assert.Zero(t, GramsToKilograms(-5))
}

func TestFormatters(t *testing.T) {
	assert.Equal(t, "18,248", FormatNumber(18248))
	assert.Equal(t, "-1,234", FormatNumber(-1234))
	assert.Equal(t, "0", FormatNumber(0))

	assert.Equal(t, "18,249", FormatFloat(18248.6, 0))
	assert.Equal(t, "1,234.57", FormatFloat(1234.567, 2))
	assert.Equal(t, "781.3", FormatFloat(781.25, 1))
	assert.Equal(t, "0.13", FormatFloat(0.125, 2))
	assert.Equal(t, "-2.5", FormatFloat(-2.45, 1))
	assert.Equal(t, "2,273.38", FormatFloat(2273.375, 2))

	assert.Equal(t, "999,999", FormatLarge(999_999))
	assert.Equal(t, "~5.2 million", FormatLarge(5_200_000))
	assert.Equal(t, "~1.5 billion", FormatLarge(1_500_000_000))
}

func TestFormatGrams(t *testing.T) {
	tests := []struct {
		grams int64
		want  string
	}{
		{grams: 0, want: "0 g"},
		{grams: 999, want: "999 g"},
		{grams: 568346, want: "568.3 kg"},
		{grams: 2273384, want: "2.27 t"},
		{grams: 12_345_678_901, want: "12,345.68 t"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatGrams(tt.grams))
		})
	}
}

func TestFlightEquivalencies(t *testing.T) {
	out, err := FlightEquivalencies(150_000)
	require.NoError(t, err)
	assert.False(t, out.IsEmpty)
	assert.InDelta(t, 150.0, out.InputKg, 1e-9)
	require.Len(t, out.Results, 2)
	assert.Equal(t, EquivalencyMilesDriven, out.Results[0].Type)
	assert.InDelta(t, 781.25, out.Results[0].Value, 0.01)
	assert.Equal(t, "781", out.Results[0].FormattedValue)
	assert.Equal(t, "3", out.Results[1].FormattedValue)
	assert.Equal(t, "Equivalent to driving ~781 miles, or ~3 tree seedlings grown for 10 years", out.DisplayText)

	small, err := FlightEquivalencies(500)
	require.NoError(t, err)
	assert.True(t, small.IsEmpty)

	_, err = FlightEquivalencies(-1)
	assert.ErrorIs(t, err, ErrNegativeValue)
}

func TestEquivalencyTypeString(t *testing.T) {
	assert.Equal(t, "MilesDriven", EquivalencyMilesDriven.String())
	assert.Equal(t, "HomeDays", EquivalencyHomeDays.String())
	assert.Equal(t, "EquivalencyType(9)", EquivalencyType(9).String())
}

func TestDescribeEmissions(t *testing.T) {
	got := DescribeEmissions(4_546_768, 568_346, "3.0.0")
	assert.Equal(t,
		"Estimated emissions for this period are approximately 4,547 kg of CO₂ in total, "+
			"with about 568,346 grams of CO₂ per passenger. "+
			"These values are based on Google Travel Impact Model version 3.0.0.",
		got)

	assert.Contains(t, DescribeEmissions(0, 0, ""), "version unknown.")
}
