// Package store persists reports, flights, and emission estimates.
//
// Two backends implement emissions.Store: a JSON file (the default, for a
// single workstation) and MongoDB. Both guarantee at most one estimate per
// (flight ID, model version) key.
package store

import (
	"context"
	"fmt"

	"github.com/rshade/travelcarbon/internal/config"
	"github.com/rshade/travelcarbon/internal/emissions"
)

// Backend is a complete persistence layer.
type Backend interface {
	emissions.Store

	// Import inserts or updates the reports and flights of ds.
	Import(ctx context.Context, ds *Dataset) (*ImportResult, error)

	// Close releases connections held by the backend.
	Close(ctx context.Context) error
}

// Open returns the backend selected by cfg.
func Open(ctx context.Context, cfg config.StoreConfig) (Backend, error) {
	switch cfg.Backend {
	case config.BackendFile, "":
		return NewFileStore(cfg.Path)
	case config.BackendMongo:
		return NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase)
	default:
		return nil, fmt.Errorf("%w: unknown store backend %q", config.ErrInvalidConfig, cfg.Backend)
	}
}
