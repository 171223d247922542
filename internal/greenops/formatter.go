package greenops

import (
	"fmt"
	"math"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// printer formats numbers with English thousands separators.
//
//nolint:gochecknoglobals // Global printer is idiomatic for x/text/message usage.
var printer = message.NewPrinter(language.English)

// FormatNumber formats an integer with thousands separators: 18248 -> "18,248".
func FormatNumber(n int64) string {
	return printer.Sprintf("%d", n)
}

// FormatFloat rounds f half away from zero to precision decimals and adds
// thousands separators: FormatFloat(1234.567, 2) -> "1,234.57".
func FormatFloat(f float64, precision int) string {
	if precision <= 0 {
		return FormatNumber(int64(math.Round(f)))
	}
	pow := math.Pow(10, float64(precision))
	f = math.Round(f*pow) / pow
	return printer.Sprintf(fmt.Sprintf("%%.%df", precision), f)
}

// FormatLarge abbreviates values of a million or more ("~1.5 billion") and
// formats smaller ones as integers with separators.
func FormatLarge(n float64) string {
	switch {
	case n >= BillionThreshold:
		return fmt.Sprintf("~%.1f billion", n/BillionThreshold)
	case n >= LargeNumberThreshold:
		return fmt.Sprintf("~%.1f million", n/LargeNumberThreshold)
	default:
		return FormatNumber(int64(math.Round(n)))
	}
}

// FormatGrams renders a gram figure in the most readable unit: grams below
// one kilogram, kilograms below one tonne, tonnes above.
func FormatGrams(grams int64) string {
	const gramsPerKg, gramsPerTonne = 1_000, 1_000_000
	switch {
	case grams >= gramsPerTonne:
		return FormatFloat(float64(grams)/gramsPerTonne, 2) + " t"
	case grams >= gramsPerKg:
		return FormatFloat(float64(grams)/gramsPerKg, 1) + " kg"
	default:
		return FormatNumber(grams) + " g"
	}
}
