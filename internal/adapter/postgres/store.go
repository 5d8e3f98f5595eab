// Package postgres persists stations, reports, category codes and poll
// outcomes in PostgreSQL through a pgx connection pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/road-weather-etl/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SQLSTATE codes mapped onto domain sentinels.
const (
	codeUniqueViolation   = "23505"
	codeCheckViolation    = "23514"
	codeNotNullViolation  = "23502"
	codeForeignKeyMissing = "23503"
)

// Store implements the persistence boundary on a pgx pool.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// Open connects a pool to dsn and verifies it with a ping.
func Open(ctx context.Context, dsn string, maxConns int, logger *slog.Logger) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	logger.Info("database connected", "max_conns", cfg.MaxConns)
	return &Store{pool: pool, logger: logger}, nil
}

// Ping checks the pool can reach the database.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases every pooled connection.
func (s *Store) Close() {
	s.pool.Close()
}

// ListStations returns all stations ordered by external id.
func (s *Store) ListStations(ctx context.Context) ([]domain.Station, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT external_id, city_name, road_name, road_number, latitude, longitude,
		       position_change_counter, position_change_time, elevation
		FROM stations ORDER BY external_id`)
	if err != nil {
		return nil, fmt.Errorf("query stations: %w", err)
	}
	defer rows.Close()

	var out []domain.Station
	for rows.Next() {
		var st domain.Station
		if err := rows.Scan(&st.ExternalID, &st.CityName, &st.RoadName, &st.RoadNumber,
			&st.Latitude, &st.Longitude, &st.PositionChangeCounter, &st.PositionChangeTime, &st.Elevation); err != nil {
			return nil, fmt.Errorf("scan station: %w", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stations: %w", err)
	}
	return out, nil
}

// CreateStations inserts all stations in one transaction.
func (s *Store) CreateStations(ctx context.Context, stations []domain.Station) error {
	if len(stations) == 0 {
		return nil
	}
	b := &pgx.Batch{}
	for _, st := range stations {
		b.Queue(`
			INSERT INTO stations (external_id, city_name, road_name, road_number, latitude, longitude,
			                      position_change_counter, position_change_time, elevation)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			st.ExternalID, st.CityName, st.RoadName, st.RoadNumber, st.Latitude, st.Longitude,
			st.PositionChangeCounter, st.PositionChangeTime, st.Elevation)
	}
	_, err := s.execBatch(ctx, b)
	if err != nil {
		return fmt.Errorf("create stations: %w", err)
	}
	return nil
}

// UpdateStation overwrites a registered station's mutable fields.
func (s *Store) UpdateStation(ctx context.Context, st domain.Station) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE stations
		SET city_name = $2, road_name = $3, road_number = $4, latitude = $5, longitude = $6,
		    position_change_counter = $7, position_change_time = $8, elevation = $9
		WHERE external_id = $1`,
		st.ExternalID, st.CityName, st.RoadName, st.RoadNumber, st.Latitude, st.Longitude,
		st.PositionChangeCounter, st.PositionChangeTime, st.Elevation)
	if err != nil {
		return fmt.Errorf("update station %d: %w", st.ExternalID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update station %d: %w", st.ExternalID, pgx.ErrNoRows)
	}
	return nil
}

// InsertReports stores the batch in one transaction. Unique and constraint
// violations roll the whole batch back and surface as domain sentinels.
func (s *Store) InsertReports(ctx context.Context, reports []domain.Report) (int, error) {
	if len(reports) == 0 {
		return 0, nil
	}
	b := &pgx.Batch{}
	for i := range reports {
		r := &reports[i]
		b.Queue(`
			INSERT INTO reports (station_id, unix, local_time, utc_time, time_zone_offset,
			                     surface_condition, air_temperature, surface_temperature, visibility,
			                     wind_direction, wind_speed_avg, wind_speed_max,
			                     precipitation_type, precipitation_amount, dew_point, frost_point)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
			r.StationID, r.Unix, r.Local, r.UTC, r.TimeZoneOffset,
			r.SurfaceCondition, r.AirTemperature, r.SurfaceTemperature, r.Visibility,
			r.WindDirection, r.WindSpeedAvg, r.WindSpeedMax,
			r.PrecipitationType, r.PrecipitationAmount, r.DewPoint, r.FrostPoint)
	}
	n, err := s.execBatch(ctx, b)
	if err != nil {
		return 0, fmt.Errorf("insert reports: %w", classify(err))
	}
	return int(n), nil
}

// ListCategoryCodes returns every label in insertion order.
func (s *Store) ListCategoryCodes(ctx context.Context) ([]domain.CategoryCode, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT category, label, code, description
		FROM category_codes ORDER BY created_at, category, label`)
	if err != nil {
		return nil, fmt.Errorf("query category codes: %w", err)
	}
	defer rows.Close()

	var out []domain.CategoryCode
	for rows.Next() {
		var cc domain.CategoryCode
		var category string
		if err := rows.Scan(&category, &cc.Label, &cc.Code, &cc.Description); err != nil {
			return nil, fmt.Errorf("scan category code: %w", err)
		}
		cc.Category = domain.Category(category)
		out = append(out, cc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate category codes: %w", err)
	}
	return out, nil
}

// CreateCategoryCodes inserts labels not yet present in one transaction and
// returns how many rows were created.
func (s *Store) CreateCategoryCodes(ctx context.Context, codes []domain.CategoryCode) (int, error) {
	if len(codes) == 0 {
		return 0, nil
	}
	b := &pgx.Batch{}
	for _, cc := range codes {
		b.Queue(`
			INSERT INTO category_codes (category, label, code, description)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (category, label) DO NOTHING`,
			string(cc.Category), cc.Label, cc.Code, cc.Description)
	}
	n, err := s.execBatch(ctx, b)
	if err != nil {
		return 0, fmt.Errorf("create category codes: %w", err)
	}
	return int(n), nil
}

// CreateOutcome appends one poll outcome.
func (s *Store) CreateOutcome(ctx context.Context, o domain.PollOutcome) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO poll_outcomes (id, run_id, station_id, trigger, requested_at, requested_at_unix,
		                           status, error_message, earliest_report, latest_report, report_count)
		VALUES ($1::uuid, $2::uuid, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		o.ID.String(), o.RunID.String(), o.StationID, string(o.Trigger), o.RequestedAt, o.RequestedAtUnix,
		string(o.Status), o.ErrorMessage, o.EarliestReport, o.LatestReport, o.ReportCount)
	if err != nil {
		return fmt.Errorf("insert outcome: %w", err)
	}
	return nil
}

// execBatch runs b inside a transaction and returns the summed rows affected.
func (s *Store) execBatch(ctx context.Context, b *pgx.Batch) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	br := tx.SendBatch(ctx, b)
	var affected int64
	for i := 0; i < b.Len(); i++ {
		tag, err := br.Exec()
		if err != nil {
			_ = br.Close()
			return 0, err
		}
		affected += tag.RowsAffected()
	}
	if err := br.Close(); err != nil {
		return 0, fmt.Errorf("close batch: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return affected, nil
}

// classify maps integrity violations onto the domain sentinels, keeping the
// driver error in the chain.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeUniqueViolation:
		return fmt.Errorf("%w: %s", domain.ErrDuplicateReport, pgErr.Detail)
	case codeCheckViolation, codeNotNullViolation:
		return fmt.Errorf("%w: %s", domain.ErrInvalidReport, pgErr.Message)
	case codeForeignKeyMissing:
		return fmt.Errorf("unregistered station: %w", err)
	default:
		return err
	}
}
