// Package emissions turns flight records into per-flight CO2 estimates and
// rolls them up into report-level summaries.
//
// The Estimator calls the emission model for one flight and upserts the result
// keyed by (flight ID, model version). The Aggregator runs the estimator over
// every flight of a report, one at a time, skips flights that fail, and writes
// a freshly computed Summary back onto the report. Service bundles both with
// the read paths used by the CLI.
package emissions
