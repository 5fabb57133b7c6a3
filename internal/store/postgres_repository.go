package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aqforecast/aqforecast/internal/airquality"
)

//go:embed schema.sql
var schema string

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// EnsureSchema creates the tables if they do not exist.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

const locationColumns = `id, name, latitude, longitude, country, created_at`

// ListLocations returns every location ordered by name.
func (r *PostgresRepository) ListLocations(ctx context.Context) ([]*Location, error) {
	query := `SELECT ` + locationColumns + ` FROM locations ORDER BY name, id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	locations := []*Location{}
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return nil, err
		}
		locations = append(locations, l)
	}

	return locations, rows.Err()
}

// GetLocation retrieves a location by ID.
func (r *PostgresRepository) GetLocation(ctx context.Context, id string) (*Location, error) {
	query := `SELECT ` + locationColumns + ` FROM locations WHERE id = $1`
	return r.queryLocation(ctx, r.pool, query, id)
}

// FindLocationNear returns a location within NearDegrees of lat/lon.
func (r *PostgresRepository) FindLocationNear(ctx context.Context, lat, lon float64) (*Location, error) {
	return r.findNear(ctx, r.pool, lat, lon)
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *PostgresRepository) findNear(ctx context.Context, q querier, lat, lon float64) (*Location, error) {
	query := `
		SELECT ` + locationColumns + `
		FROM locations
		WHERE ABS(latitude - $1) < $3 AND ABS(longitude - $2) < $3
		ORDER BY created_at, id
		LIMIT 1
	`
	return r.queryLocation(ctx, q, query, lat, lon, NearDegrees)
}

func (r *PostgresRepository) queryLocation(ctx context.Context, q querier, query string, args ...any) (*Location, error) {
	l, err := scanLocation(q.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLocationNotFound
		}
		return nil, err
	}
	return l, nil
}

func scanLocation(row pgx.Row) (*Location, error) {
	var l Location
	if err := row.Scan(&l.ID, &l.Name, &l.Latitude, &l.Longitude, &l.Country, &l.CreatedAt); err != nil {
		return nil, err
	}
	return &l, nil
}

// AddLocation stores loc unless one already exists near its coordinates.
// The lookup and insert share a transaction guarded by an advisory lock so
// concurrent adds for the same place create a single row.
func (r *PostgresRepository) AddLocation(ctx context.Context, loc *Location) (*Location, bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext('locations'))`); err != nil {
		return nil, false, fmt.Errorf("lock locations: %w", err)
	}

	existing, err := r.findNear(ctx, tx, loc.Latitude, loc.Longitude)
	if err == nil {
		return existing, false, tx.Commit(ctx)
	}
	if !errors.Is(err, ErrLocationNotFound) {
		return nil, false, err
	}

	stored := *loc
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO locations (` + locationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := tx.Exec(ctx, query,
		stored.ID,
		stored.Name,
		stored.Latitude,
		stored.Longitude,
		stored.Country,
		stored.CreatedAt,
	); err != nil {
		return nil, false, fmt.Errorf("insert location: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("commit: %w", err)
	}
	return &stored, true, nil
}

// UpsertObservation stores obs, replacing any observation for the same day.
func (r *PostgresRepository) UpsertObservation(ctx context.Context, obs *Observation) error {
	query := `
		INSERT INTO observations (
			location_id, date, source,
			pm25, pm10, o3, no2, so2, co,
			temperature, humidity, wind_speed, pressure,
			aqi, recorded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (location_id, date) DO UPDATE SET
			source = EXCLUDED.source,
			pm25 = EXCLUDED.pm25,
			pm10 = EXCLUDED.pm10,
			o3 = EXCLUDED.o3,
			no2 = EXCLUDED.no2,
			so2 = EXCLUDED.so2,
			co = EXCLUDED.co,
			temperature = EXCLUDED.temperature,
			humidity = EXCLUDED.humidity,
			wind_speed = EXCLUDED.wind_speed,
			pressure = EXCLUDED.pressure,
			aqi = EXCLUDED.aqi,
			recorded_at = EXCLUDED.recorded_at
	`

	_, err := r.pool.Exec(ctx, query,
		obs.LocationID,
		Day(obs.Date),
		string(obs.Source),
		obs.PM25,
		obs.PM10,
		obs.O3,
		obs.NO2,
		obs.SO2,
		obs.CO,
		obs.Temperature,
		obs.Humidity,
		obs.WindSpeed,
		obs.Pressure,
		obs.AQI,
		obs.RecordedAt,
	)
	return err
}

// ListObservations returns the most recent observations, newest first.
func (r *PostgresRepository) ListObservations(ctx context.Context, locationID string, limit int) ([]*Observation, error) {
	if limit <= 0 {
		limit = DefaultObservationLimit
	}

	query := `
		SELECT
			location_id, date, source,
			pm25, pm10, o3, no2, so2, co,
			temperature, humidity, wind_speed, pressure,
			aqi, recorded_at
		FROM observations
		WHERE location_id = $1
		ORDER BY date DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, locationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	observations := []*Observation{}
	for rows.Next() {
		var (
			o      Observation
			source string
		)
		err := rows.Scan(
			&o.LocationID,
			&o.Date,
			&source,
			&o.PM25,
			&o.PM10,
			&o.O3,
			&o.NO2,
			&o.SO2,
			&o.CO,
			&o.Temperature,
			&o.Humidity,
			&o.WindSpeed,
			&o.Pressure,
			&o.AQI,
			&o.RecordedAt,
		)
		if err != nil {
			return nil, err
		}
		o.Source = airquality.Source(source)
		observations = append(observations, &o)
	}

	return observations, rows.Err()
}

// AddPrediction stores a forecast.
func (r *PostgresRepository) AddPrediction(ctx context.Context, p *StoredPrediction) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO predictions (
			id, location_id, prediction_date, predicted_aqi, category,
			used_fallback, input_features, confidence_score, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.pool.Exec(ctx, query,
		p.ID,
		p.LocationID,
		Day(p.PredictionDate),
		p.PredictedAQI,
		p.Category,
		p.UsedFallback,
		p.InputFeatures,
		p.ConfidenceScore,
		p.CreatedAt,
	)
	return err
}

// ListPredictions returns the most recent forecasts, newest first.
func (r *PostgresRepository) ListPredictions(ctx context.Context, locationID string, limit int) ([]*StoredPrediction, error) {
	if limit <= 0 {
		limit = DefaultPredictionLimit
	}

	query := `
		SELECT
			id, location_id, prediction_date, predicted_aqi, category,
			used_fallback, input_features, confidence_score, created_at
		FROM predictions
		WHERE location_id = $1
		ORDER BY prediction_date DESC, created_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, locationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	predictions := []*StoredPrediction{}
	for rows.Next() {
		var p StoredPrediction
		err := rows.Scan(
			&p.ID,
			&p.LocationID,
			&p.PredictionDate,
			&p.PredictedAQI,
			&p.Category,
			&p.UsedFallback,
			&p.InputFeatures,
			&p.ConfidenceScore,
			&p.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		predictions = append(predictions, &p)
	}

	return predictions, rows.Err()
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
