package tim

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/rshade/travelcarbon/internal/logging"
)

const (
	// DefaultBaseURL is the public Travel Impact Model endpoint.
	DefaultBaseURL = "https://travelimpactmodel.googleapis.com/v1"

	// DefaultTimeout bounds each model call.
	DefaultTimeout = 10 * time.Second

	computePath = "/flights:computeFlightEmissions"

	// maxErrorBody caps how much of a failed response is kept for the error.
	maxErrorBody = 512
)

// Client calls the Travel Impact Model. It is safe for concurrent use.
type Client struct {
	apiKey     string
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	limiter    *RateLimiter
}

// Option customises a Client.
type Option func(*Client)

// WithBaseURL points the client at another endpoint, such as a test server.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(baseURL, "/") }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithMinInterval spaces consecutive requests at least d apart.
func WithMinInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.limiter = NewRateLimiter(d)
		}
	}
}

// NewClient creates a client that authenticates with apiKey. It fails with
// ErrMissingAPIKey when apiKey is empty.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrMissingAPIKey
	}

	c := &Client{
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		timeout:    DefaultTimeout,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ComputeFlightEmissions asks the model for the first segment of req.
// PerCabinValue is resolved from the per-passenger map for req.CabinClass.
func (c *Client) ComputeFlightEmissions(ctx context.Context, req Request) (*Result, error) {
	if len(req.Segments) == 0 {
		return nil, ErrNoSegments
	}
	log := logging.FromContext(ctx).With().Str(logging.FieldComponent, "tim").Logger()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrRequestFailed, err)
		}
	}

	// Only a single flight is sent per call.
	body, err := json.Marshal(computeRequest{Flights: req.Segments[:1]})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := c.baseURL + computePath + "?key=" + url.QueryEscape(c.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %w", ErrRequestFailed, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		log.Error().Err(redact(err, c.apiKey)).Dur("elapsed", time.Since(start)).Msg("model request failed")
		return nil, fmt.Errorf("%w: %w", ErrRequestFailed, redact(err, c.apiKey))
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		log.Error().Int("status", resp.StatusCode).Str("body", string(snippet)).Msg("model returned an error status")
		return nil, fmt.Errorf("%w: status %d: %s", ErrRequestFailed, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var decoded computeResponse
	if err = json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %w", ErrRequestFailed, err)
	}

	result := &Result{ModelVersion: decoded.ModelVersion}
	if len(decoded.FlightEmissions) > 0 {
		result.PerPax = decoded.FlightEmissions[0].EmissionsGramsPerPax
	}
	if result.PerPax != nil && req.CabinClass != "" {
		if v, ok := result.PerPax.Get(req.CabinClass); ok {
			result.PerCabinValue = &v
		}
	}

	log.Debug().
		Dur("elapsed", time.Since(start)).
		Int("flight_emissions", len(decoded.FlightEmissions)).
		Str("model_version", FormatModelVersion(decoded.ModelVersion)).
		Msg("model responded")

	return result, nil
}

// redact strips the API key from transport errors, which embed the URL with
// the key query-escaped.
func redact(err error, apiKey string) error {
	msg := err.Error()
	redacted := msg
	for _, k := range []string{url.QueryEscape(apiKey), apiKey} {
		redacted = strings.ReplaceAll(redacted, k, "REDACTED")
	}
	if redacted == msg {
		return err
	}
	return redactedError{msg: redacted, cause: err}
}

type redactedError struct {
	msg   string
	cause error
}

func (e redactedError) Error() string { return e.msg }
func (e redactedError) Unwrap() error { return e.cause }

// RateLimiter enforces a minimum interval between model requests.
type RateLimiter struct {
	interval time.Duration
	mu       sync.Mutex
	lastCall time.Time
}

// NewRateLimiter creates a rate limiter with the given interval.
func NewRateLimiter(interval time.Duration) *RateLimiter {
	return &RateLimiter{interval: interval}
}

// Wait blocks until the next request is allowed or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.lastCall.IsZero() {
		if wait := r.interval - time.Since(r.lastCall); wait > 0 {
			timer := time.NewTimer(wait)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	r.lastCall = time.Now()
	return nil
}
