package store

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/oklog/ulid/v2"

	"github.com/rshade/travelcarbon/internal/emissions"
	"github.com/rshade/travelcarbon/internal/logging"
)

// fileSchemaVersion is written into every database file.
const fileSchemaVersion = 1

// ErrStoreCorrupted indicates the database file exists but cannot be parsed.
var ErrStoreCorrupted = errors.New("store file is corrupted")

// database is the on-disk layout of a FileStore.
type database struct {
	Version   int                          `json:"version"`
	Reports   map[string]*emissions.Report `json:"reports"`
	Flights   map[string]*emissions.Flight `json:"flights"`
	Estimates []emissions.Estimate         `json:"estimates"`
}

func newDatabase() *database {
	return &database{
		Version: fileSchemaVersion,
		Reports: make(map[string]*emissions.Report),
		Flights: make(map[string]*emissions.Flight),
	}
}

// FileStore keeps everything in one JSON file. Every write runs under a
// cross-process lockfile and replaces the file atomically, so an upsert is a
// single read-modify-write per key.
type FileStore struct {
	path string

	// mu serialises access within the process; the lockfile covers other processes.
	mu sync.RWMutex
}

// NewFileStore creates a store backed by the file at path. The parent
// directory is created if needed; the file itself is created on first write.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("store path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return &FileStore{path: path}, nil
}

// Path returns the database file path.
func (s *FileStore) Path() string {
	return s.path
}

// Close is a no-op for the file backend.
func (s *FileStore) Close(context.Context) error { return nil }

// UpsertEstimate replaces the estimate stored under key, or inserts it.
func (s *FileStore) UpsertEstimate(ctx context.Context, key emissions.EstimateKey, est emissions.Estimate) (*emissions.Estimate, error) {
	var stored emissions.Estimate
	err := s.update(ctx, func(db *database) error {
		now := time.Now().UTC()
		est.FlightID, est.ModelVersion = key.FlightID, key.ModelVersion
		est.UpdatedAt = now

		for i := range db.Estimates {
			if db.Estimates[i].Key() == key {
				est.ID, est.CreatedAt = db.Estimates[i].ID, db.Estimates[i].CreatedAt
				db.Estimates[i] = est
				stored = est
				return nil
			}
		}

		est.ID = ulid.Make().String()
		est.CreatedAt = now
		db.Estimates = append(db.Estimates, est)
		stored = est
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// FindEstimatesByFlight returns every estimate of a flight, oldest first.
func (s *FileStore) FindEstimatesByFlight(ctx context.Context, flightID string) ([]emissions.Estimate, error) {
	db, err := s.read(ctx)
	if err != nil {
		return nil, err
	}
	return filterEstimates(db.Estimates, func(e *emissions.Estimate) bool { return e.FlightID == flightID }), nil
}

// FindEstimatesByReport returns the estimates of every flight on the report.
func (s *FileStore) FindEstimatesByReport(ctx context.Context, reportID string) ([]emissions.Estimate, error) {
	db, err := s.read(ctx)
	if err != nil {
		return nil, err
	}
	report, ok := db.Reports[reportID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", emissions.ErrReportNotFound, reportID)
	}
	return filterEstimates(db.Estimates, func(e *emissions.Estimate) bool {
		return slices.Contains(report.FlightIDs, e.FlightID)
	}), nil
}

// GetReport returns a report by ID.
func (s *FileStore) GetReport(ctx context.Context, reportID string) (*emissions.Report, error) {
	db, err := s.read(ctx)
	if err != nil {
		return nil, err
	}
	report, ok := db.Reports[reportID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", emissions.ErrReportNotFound, reportID)
	}
	return report, nil
}

// SaveSummary replaces the report's emissions summary.
func (s *FileStore) SaveSummary(ctx context.Context, reportID string, summary emissions.Summary) error {
	return s.update(ctx, func(db *database) error {
		report, ok := db.Reports[reportID]
		if !ok {
			return fmt.Errorf("%w: %s", emissions.ErrReportNotFound, reportID)
		}
		report.Emissions = &summary
		report.UpdatedAt = time.Now().UTC()
		return nil
	})
}

// GetFlight returns a flight by ID.
func (s *FileStore) GetFlight(ctx context.Context, flightID string) (*emissions.Flight, error) {
	db, err := s.read(ctx)
	if err != nil {
		return nil, err
	}
	flight, ok := db.Flights[flightID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", emissions.ErrFlightNotFound, flightID)
	}
	return flight, nil
}

// FlightsForReport returns the report's flights in report order. Dangling
// flight references are skipped.
func (s *FileStore) FlightsForReport(ctx context.Context, reportID string) ([]emissions.Flight, error) {
	db, err := s.read(ctx)
	if err != nil {
		return nil, err
	}
	report, ok := db.Reports[reportID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", emissions.ErrReportNotFound, reportID)
	}
	flights := make([]emissions.Flight, 0, len(report.FlightIDs))
	for _, id := range report.FlightIDs {
		if f, found := db.Flights[id]; found {
			flights = append(flights, *f)
		}
	}
	return flights, nil
}

// Import writes the dataset's reports and flights. A report that already
// exists keeps its CreatedAt, and keeps its emissions summary only while its
// flight list is unchanged.
func (s *FileStore) Import(ctx context.Context, ds *Dataset) (*ImportResult, error) {
	reports, flights, err := prepare(ds, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	result := &ImportResult{}
	err = s.update(ctx, func(db *database) error {
		for i := range reports {
			r := reports[i]
			if existing, ok := db.Reports[r.ID]; ok {
				r.CreatedAt = existing.CreatedAt
				if slices.Equal(existing.FlightIDs, r.FlightIDs) {
					r.Emissions = existing.Emissions
				}
			}
			db.Reports[r.ID] = &r
			result.ReportIDs = append(result.ReportIDs, r.ID)
		}
		for i := range flights {
			f := flights[i]
			if existing, ok := db.Flights[f.ID]; ok {
				f.CreatedAt = existing.CreatedAt
			}
			db.Flights[f.ID] = &f
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result.Reports, result.Flights = len(reports), len(flights)
	return result, nil
}

func filterEstimates(all []emissions.Estimate, keep func(*emissions.Estimate) bool) []emissions.Estimate {
	var out []emissions.Estimate
	for i := range all {
		if keep(&all[i]) {
			out = append(out, all[i])
		}
	}
	slices.SortStableFunc(out, func(a, b emissions.Estimate) int {
		return cmp.Compare(a.CreatedAt.UnixNano(), b.CreatedAt.UnixNano())
	})
	return out
}

// read loads a snapshot of the database. A missing file is an empty database.
func (s *FileStore) read(ctx context.Context) (*database, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.load()
}

// update runs fn against the current database and writes the result back.
// Nothing is written when fn fails.
func (s *FileStore) update(ctx context.Context, fn func(db *database) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	unlock, lockErr := s.acquireFileLock()
	if lockErr != nil {
		return fmt.Errorf("acquiring file lock: %w", lockErr)
	}
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.load()
	if err != nil {
		return err
	}
	if err = fn(db); err != nil {
		return err
	}
	return s.save(ctx, db)
}

func (s *FileStore) load() (*database, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return newDatabase(), nil
		}
		return nil, fmt.Errorf("failed to read store file: %w", err)
	}

	db := newDatabase()
	if unmarshalErr := json.Unmarshal(data, db); unmarshalErr != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrStoreCorrupted, s.path, unmarshalErr)
	}
	if db.Reports == nil {
		db.Reports = make(map[string]*emissions.Report)
	}
	if db.Flights == nil {
		db.Flights = make(map[string]*emissions.Flight)
	}
	return db, nil
}

// save writes to a temporary file first, then renames it over the database.
func (s *FileStore) save(ctx context.Context, db *database) error {
	data, err := json.MarshalIndent(db, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal store: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if writeErr := os.WriteFile(tmpPath, data, 0o600); writeErr != nil {
		return fmt.Errorf("failed to write store file: %w", writeErr)
	}
	if renameErr := os.Rename(tmpPath, s.path); renameErr != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename store file: %w", renameErr)
	}

	logging.FromContext(ctx).Debug().
		Str(logging.FieldComponent, "store").
		Str("path", s.path).
		Int("bytes", len(data)).
		Msg("store file written")
	return nil
}

// acquireFileLock takes the cross-process lockfile and returns its release func.
func (s *FileStore) acquireFileLock() (func(), error) {
	lockPath := s.path + ".lock"

	const maxRetries = 50
	const retryDelay = 100 * time.Millisecond
	const staleLockAge = 30 * time.Second

	for range maxRetries {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			_, _ = fmt.Fprintf(f, "%d", os.Getpid())
			_ = f.Close()
			return func() { _ = os.Remove(lockPath) }, nil
		}

		if removeStaleLock(lockPath, staleLockAge) {
			continue
		}
		time.Sleep(retryDelay)
	}

	return nil, fmt.Errorf("could not acquire lock on %s after retries", lockPath)
}

// removeStaleLock removes a lock older than staleLockAge whose owner is gone.
// It reports whether the caller should retry immediately.
func removeStaleLock(lockPath string, staleLockAge time.Duration) bool {
	info, statErr := os.Stat(lockPath)
	if statErr != nil || time.Since(info.ModTime()) <= staleLockAge {
		return false
	}

	pidData, readErr := os.ReadFile(lockPath)
	if readErr == nil {
		var pid int
		if _, scanErr := fmt.Sscanf(string(pidData), "%d", &pid); scanErr == nil && pid > 0 {
			if proc, findErr := os.FindProcess(pid); findErr == nil && proc.Signal(syscall.Signal(0)) == nil {
				return false
			}
		}
	}

	_ = os.Remove(lockPath)
	return true
}
