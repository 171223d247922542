package greenops

import (
	"math"
	"strings"
)

func unitFactor(unit string) (float64, bool) {
	switch strings.ToLower(unit) {
	case "g", "gco2e":
		return GramsToKg, true
	case "kg", "kgco2e":
		return KgToKg, true
	case "t", "tco2e":
		return TonsToKg, true
	case "lb", "lbco2e":
		return PoundsToKg, true
	default:
		return 0, false
	}
}

// NormalizeToKg converts value in unit (g, kg, t, lb, or their CO2e forms,
// case-insensitive) to kilograms.
func NormalizeToKg(value float64, unit string) (float64, error) {
	if math.IsInf(value, 0) || math.IsNaN(value) {
		return 0, ErrCalculationOverflow
	}
	if value < 0 {
		return 0, ErrNegativeValue
	}

	factor, ok := unitFactor(unit)
	if !ok {
		return 0, ErrInvalidUnit
	}

	result := value * factor
	if math.IsInf(result, 0) {
		return 0, ErrCalculationOverflow
	}
	return result, nil
}

// GramsToKilograms converts whole grams, as returned by the emission model,
// to kilograms. Negative input yields 0.
func GramsToKilograms(grams int64) float64 {
	kg, err := NormalizeToKg(float64(grams), "g")
	if err != nil {
		return 0
	}
	return kg
}
