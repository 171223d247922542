package greenops

import (
	"fmt"
	"math"
)

// NoEmissionsText is the narrative line used when a period has no figures.
const NoEmissionsText = "No quantified emissions data was provided for this period."

// DescribeEmissions renders the emissions sentence embedded in a weekly
// report narrative. The total is rounded to whole kilograms.
func DescribeEmissions(totalGrams, perPaxGrams int64, modelVersion string) string {
	if modelVersion == "" {
		modelVersion = "unknown"
	}
	totalKg := int64(math.Round(GramsToKilograms(totalGrams)))
	return fmt.Sprintf(
		"Estimated emissions for this period are approximately %s kg of CO₂ in total, "+
			"with about %s grams of CO₂ per passenger. "+
			"These values are based on Google Travel Impact Model version %s.",
		FormatNumber(totalKg), FormatNumber(perPaxGrams), modelVersion)
}
