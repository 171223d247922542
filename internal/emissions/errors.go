package emissions

// constError is an immutable error type for sentinel errors.
type constError string

func (e constError) Error() string { return string(e) }

// Sentinel errors, compared with errors.Is.
var (
	// ErrConfiguration means the emission model credential is missing. It is
	// never retried and aborts a report run.
	ErrConfiguration = constError("emission model not configured")

	// ErrEmissionModelUnavailable wraps transport failures and timeouts from
	// the emission model.
	ErrEmissionModelUnavailable = constError("emission model unavailable")

	// ErrNoEmissionsData means the model answered without any per-passenger data.
	ErrNoEmissionsData = constError("no emissions data returned from model")

	ErrReportNotFound   = constError("report not found")
	ErrFlightNotFound   = constError("flight not found")
	ErrEstimateNotFound = constError("no emissions found for this flight")

	// ErrNoFlights is returned when a report has no flights to aggregate.
	ErrNoFlights = constError("no flights in this report")

	// ErrInvalidFlight means a flight record cannot be turned into a model request.
	ErrInvalidFlight = constError("invalid flight record")

	// ErrSummaryNotComputed means the report has no usable emissions summary.
	ErrSummaryNotComputed = constError("no emissions computed for this report")
)
