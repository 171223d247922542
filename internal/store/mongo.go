package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/rshade/travelcarbon/internal/emissions"
	"github.com/rshade/travelcarbon/internal/engine/batch"
	"github.com/rshade/travelcarbon/internal/logging"
)

// Collection names.
const (
	reportsCollection   = "reports"
	flightsCollection   = "flights"
	estimatesCollection = "emissionestimates"

	connectTimeout = 10 * time.Second
)

// ErrMissingMongoURI is returned when the mongo backend has no connection string.
var ErrMissingMongoURI = errors.New("mongo URI not configured")

// MongoStore keeps reports, flights, and estimates in MongoDB. A unique index
// on (flightId, timModelVersion) backs the estimate upsert.
type MongoStore struct {
	client    *mongo.Client
	reports   *mongo.Collection
	flights   *mongo.Collection
	estimates *mongo.Collection
}

// NewMongoStore connects to uri, pings the server, and ensures indexes.
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	if uri == "" {
		return nil, ErrMissingMongoURI
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetConnectTimeout(connectTimeout))
	if err != nil {
		return nil, fmt.Errorf("connecting to mongo: %w", err)
	}
	if err = client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("pinging mongo: %w", err)
	}

	db := client.Database(database)
	s := &MongoStore{
		client:    client,
		reports:   db.Collection(reportsCollection),
		flights:   db.Collection(flightsCollection),
		estimates: db.Collection(estimatesCollection),
	}
	if err = s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.estimates.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "flightId", Value: 1}, {Key: "timModelVersion", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("flight_model_version"),
		},
		{
			Keys: bson.D{{Key: "reportId", Value: 1}, {Key: "createdAt", Value: -1}},
		},
	})
	if err != nil {
		return fmt.Errorf("creating estimate indexes: %w", err)
	}
	_, err = s.flights.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: bson.D{{Key: "reportId", Value: 1}}})
	if err != nil {
		return fmt.Errorf("creating flight index: %w", err)
	}
	return nil
}

// Close disconnects the client.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// UpsertEstimate runs a single find-one-and-update with upsert on the key. A
// duplicate-key race between two inserts is retried once, which turns the
// loser into an update.
func (s *MongoStore) UpsertEstimate(ctx context.Context, key emissions.EstimateKey, est emissions.Estimate) (*emissions.Estimate, error) {
	now := time.Now().UTC()
	filter := bson.D{{Key: "flightId", Value: key.FlightID}, {Key: "timModelVersion", Value: key.ModelVersion}}
	update := bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "reportId", Value: est.ReportID},
			{Key: "co2GramsPerPax", Value: est.Co2GramsPerPax},
			{Key: "co2TotalGrams", Value: est.Co2TotalGrams},
			{Key: "passengers", Value: est.Passengers},
			{Key: "cabinClassUsed", Value: est.CabinClassUsed},
			{Key: "cabinClassResolved", Value: est.CabinClassResolved},
			{Key: "cabinFallback", Value: est.CabinFallback},
			{Key: "allCabinEmissions", Value: est.AllCabinEmissions},
			{Key: "calculationType", Value: est.CalculationType},
			{Key: "updatedAt", Value: now},
		}},
		{Key: "$setOnInsert", Value: bson.D{
			{Key: "_id", Value: ulid.Make().String()},
			{Key: "createdAt", Value: now},
		}},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var stored emissions.Estimate
	err := s.estimates.FindOneAndUpdate(ctx, filter, update, opts).Decode(&stored)
	if mongo.IsDuplicateKeyError(err) {
		err = s.estimates.FindOneAndUpdate(ctx, filter, update, opts).Decode(&stored)
	}
	if err != nil {
		return nil, fmt.Errorf("upserting estimate %s@%s: %w", key.FlightID, key.ModelVersion, err)
	}
	return &stored, nil
}

// FindEstimatesByFlight returns every estimate of a flight, oldest first.
func (s *MongoStore) FindEstimatesByFlight(ctx context.Context, flightID string) ([]emissions.Estimate, error) {
	return s.findEstimates(ctx, bson.D{{Key: "flightId", Value: flightID}})
}

// FindEstimatesByReport returns the estimates of every flight on the report.
func (s *MongoStore) FindEstimatesByReport(ctx context.Context, reportID string) ([]emissions.Estimate, error) {
	report, err := s.GetReport(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if len(report.FlightIDs) == 0 {
		return nil, nil
	}
	return s.findEstimates(ctx, bson.D{{Key: "flightId", Value: bson.D{{Key: "$in", Value: report.FlightIDs}}}})
}

func (s *MongoStore) findEstimates(ctx context.Context, filter bson.D) ([]emissions.Estimate, error) {
	cur, err := s.estimates.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("finding estimates: %w", err)
	}
	var out []emissions.Estimate
	if err = cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decoding estimates: %w", err)
	}
	return out, nil
}

// GetReport returns a report by ID.
func (s *MongoStore) GetReport(ctx context.Context, reportID string) (*emissions.Report, error) {
	var report emissions.Report
	err := s.reports.FindOne(ctx, bson.D{{Key: "_id", Value: reportID}}).Decode(&report)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: %s", emissions.ErrReportNotFound, reportID)
	}
	if err != nil {
		return nil, fmt.Errorf("loading report %s: %w", reportID, err)
	}
	return &report, nil
}

// SaveSummary replaces the report's emissions summary.
func (s *MongoStore) SaveSummary(ctx context.Context, reportID string, summary emissions.Summary) error {
	res, err := s.reports.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: reportID}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "emissionsSummary", Value: summary},
			{Key: "updatedAt", Value: time.Now().UTC()},
		}}},
	)
	if err != nil {
		return fmt.Errorf("saving summary for report %s: %w", reportID, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: %s", emissions.ErrReportNotFound, reportID)
	}
	return nil
}

// GetFlight returns a flight by ID.
func (s *MongoStore) GetFlight(ctx context.Context, flightID string) (*emissions.Flight, error) {
	var flight emissions.Flight
	err := s.flights.FindOne(ctx, bson.D{{Key: "_id", Value: flightID}}).Decode(&flight)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: %s", emissions.ErrFlightNotFound, flightID)
	}
	if err != nil {
		return nil, fmt.Errorf("loading flight %s: %w", flightID, err)
	}
	return &flight, nil
}

// FlightsForReport returns the report's flights in report order.
func (s *MongoStore) FlightsForReport(ctx context.Context, reportID string) ([]emissions.Flight, error) {
	report, err := s.GetReport(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if len(report.FlightIDs) == 0 {
		return nil, nil
	}

	cur, err := s.flights.Find(ctx, bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: report.FlightIDs}}}})
	if err != nil {
		return nil, fmt.Errorf("finding flights for report %s: %w", reportID, err)
	}
	var found []emissions.Flight
	if err = cur.All(ctx, &found); err != nil {
		return nil, fmt.Errorf("decoding flights: %w", err)
	}

	byID := make(map[string]emissions.Flight, len(found))
	for _, f := range found {
		byID[f.ID] = f
	}
	flights := make([]emissions.Flight, 0, len(report.FlightIDs))
	for _, id := range report.FlightIDs {
		if f, ok := byID[id]; ok {
			flights = append(flights, f)
		}
	}
	return flights, nil
}

// Import upserts reports and flights in bulk batches. Existing reports keep
// their createdAt, and keep their emissions summary only while their flight
// list is unchanged.
func (s *MongoStore) Import(ctx context.Context, ds *Dataset) (*ImportResult, error) {
	reports, flights, err := prepare(ds, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	log := logging.FromContext(ctx).With().Str(logging.FieldComponent, "store").Logger()

	if len(flights) > 0 {
		fp := batch.NewProcessorWithDefaults[emissions.Flight]().WithProgressCallback(func(p *batch.Progress) {
			log.Debug().Str("progress", p.Status()).Dur("elapsed", p.ElapsedTime()).Msg("flight import progress")
		})
		err = fp.Process(ctx, flights, func(ctx context.Context, chunk []emissions.Flight, i int) error {
			models := make([]mongo.WriteModel, 0, len(chunk))
			for _, f := range chunk {
				models = append(models, mongo.NewReplaceOneModel().
					SetFilter(bson.D{{Key: "_id", Value: f.ID}}).
					SetReplacement(f).
					SetUpsert(true))
			}
			res, bulkErr := s.flights.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
			if bulkErr != nil {
				return bulkErr
			}
			log.Debug().Int("batch", i).Int64("upserted", res.UpsertedCount).Int64("modified", res.ModifiedCount).
				Msg("flights imported")
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("importing flights: %w", err)
		}
	}

	result := &ImportResult{Reports: len(reports), Flights: len(flights)}
	rp := batch.NewProcessorWithDefaults[emissions.Report]()
	err = rp.Process(ctx, reports, func(ctx context.Context, chunk []emissions.Report, _ int) error {
		models := make([]mongo.WriteModel, 0, len(chunk))
		for _, r := range chunk {
			models = append(models, mongo.NewUpdateOneModel().
				SetFilter(bson.D{{Key: "_id", Value: r.ID}}).
				SetUpdate(reportImportPipeline(r)).
				SetUpsert(true))
			result.ReportIDs = append(result.ReportIDs, r.ID)
		}
		_, bulkErr := s.reports.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
		return bulkErr
	})
	if err != nil && !errors.Is(err, batch.ErrEmptyItems) {
		return nil, fmt.Errorf("importing reports: %w", err)
	}
	return result, nil
}

// reportImportPipeline updates a report in one atomic step. The summary is
// dropped when the stored flight list differs from the imported one, and
// createdAt is set only on insert. Values are wrapped in $literal so strings
// starting with "$" are not read as field paths.
func reportImportPipeline(r emissions.Report) mongo.Pipeline {
	flights := r.FlightIDs
	if flights == nil {
		flights = []string{}
	}
	literal := func(v any) bson.D { return bson.D{{Key: "$literal", Value: v}} }

	return mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "emissionsSummary", Value: bson.D{{Key: "$cond", Value: bson.A{
				bson.D{{Key: "$eq", Value: bson.A{"$flights", literal(flights)}}},
				"$emissionsSummary",
				"$$REMOVE",
			}}}},
			{Key: "title", Value: literal(r.Title)},
			{Key: "status", Value: literal(r.Status)},
			{Key: "periodStart", Value: literal(r.PeriodStart)},
			{Key: "periodEnd", Value: literal(r.PeriodEnd)},
			{Key: "flights", Value: literal(flights)},
			{Key: "updatedAt", Value: r.UpdatedAt},
			{Key: "createdAt", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$createdAt", r.CreatedAt}}}},
		}}},
	}
}
