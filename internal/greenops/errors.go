package greenops

// constError is an immutable error type for sentinel errors.
type constError string

func (e constError) Error() string { return string(e) }

var (
	// ErrInvalidUnit is returned by NormalizeToKg for an unknown unit.
	ErrInvalidUnit = constError("invalid carbon unit")

	// ErrNegativeValue is returned for negative emissions.
	ErrNegativeValue = constError("negative carbon value")

	// ErrCalculationOverflow is returned for NaN, infinite, or overflowing values.
	ErrCalculationOverflow = constError("calculation overflow")
)
