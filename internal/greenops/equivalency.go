// Package greenops turns emission figures into readable text: unit
// normalisation, number formatting, EPA equivalencies, and the emissions
// sentence handed to report narratives.
package greenops

import (
	"fmt"
	"math"
)

// EquivalencyType is a category of real-world comparison.
type EquivalencyType int

const (
	// EquivalencyMilesDriven is miles in an average passenger vehicle.
	EquivalencyMilesDriven EquivalencyType = iota
	// EquivalencySmartphonesCharged is full smartphone charges.
	EquivalencySmartphonesCharged
	// EquivalencyTreeSeedlings is tree seedlings grown for 10 years.
	EquivalencyTreeSeedlings
	// EquivalencyHomeDays is days of average US home electricity.
	EquivalencyHomeDays
)

// String returns the type name.
func (e EquivalencyType) String() string {
	switch e {
	case EquivalencyMilesDriven:
		return "MilesDriven"
	case EquivalencySmartphonesCharged:
		return "SmartphonesCharged"
	case EquivalencyTreeSeedlings:
		return "TreeSeedlings"
	case EquivalencyHomeDays:
		return "HomeDays"
	default:
		return fmt.Sprintf("EquivalencyType(%d)", e)
	}
}

// EquivalencyResult is one computed comparison.
type EquivalencyResult struct {
	Type           EquivalencyType `json:"type"`
	Value          float64         `json:"value"`
	FormattedValue string          `json:"formatted_value"`
	Label          string          `json:"label"`
}

// EquivalencyOutput holds every comparison for a figure.
type EquivalencyOutput struct {
	InputKg     float64             `json:"input_kg"`
	Results     []EquivalencyResult `json:"results"`
	DisplayText string              `json:"display_text"`
	IsEmpty     bool                `json:"is_empty"`
}

// FlightEquivalencies compares totalGrams of flight emissions with driving
// and with the tree seedlings needed to absorb it. Figures under
// MinEquivalencyThresholdKg produce an empty output.
func FlightEquivalencies(totalGrams int64) (EquivalencyOutput, error) {
	kg, err := NormalizeToKg(float64(totalGrams), "g")
	if err != nil {
		return EquivalencyOutput{IsEmpty: true}, err
	}
	if kg < MinEquivalencyThresholdKg {
		return EquivalencyOutput{InputKg: kg, IsEmpty: true}, nil
	}

	miles := kg / EPAMilesDrivenFactor
	trees := kg / EPATreeSeedlingFactor
	if math.IsInf(miles, 0) || math.IsNaN(miles) {
		return EquivalencyOutput{IsEmpty: true}, ErrCalculationOverflow
	}

	milesText := formatEquivalencyValue(miles)
	treesText := formatEquivalencyValue(math.Ceil(trees))

	return EquivalencyOutput{
		InputKg: kg,
		Results: []EquivalencyResult{
			{Type: EquivalencyMilesDriven, Value: miles, FormattedValue: milesText, Label: "miles driven"},
			{Type: EquivalencyTreeSeedlings, Value: trees, FormattedValue: treesText, Label: "tree seedlings grown for 10 years"},
		},
		DisplayText: fmt.Sprintf("Equivalent to driving ~%s miles, or ~%s tree seedlings grown for 10 years",
			milesText, treesText),
	}, nil
}

func formatEquivalencyValue(v float64) string {
	if v >= LargeNumberThreshold {
		return FormatLarge(v)
	}
	return FormatNumber(int64(math.Round(v)))
}
