// Package batch runs work over a list of items, either in fixed-size chunks that
// stop on the first error or one item at a time with per-item failure capture.
//
// Per-item runs are strictly sequential: an emissions aggregation calls the
// external model once per flight and must account failures deterministically,
// so a failed item is recorded and the run moves on. A callback can end the run
// early by returning an error wrapped with Halt.
package batch
