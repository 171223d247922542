package tim

import "errors"

var (
	// ErrMissingAPIKey is returned when a client is built without a credential.
	ErrMissingAPIKey = errors.New("TIM API key not configured")

	// ErrNoSegments is returned when a request carries no flight segment.
	ErrNoSegments = errors.New("at least one flight segment is required")

	// ErrRequestFailed wraps transport failures, timeouts, non-2xx responses,
	// and undecodable bodies.
	ErrRequestFailed = errors.New("TIM computeFlightEmissions failed")
)
