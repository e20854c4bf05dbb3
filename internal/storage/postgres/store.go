// Package postgres stores the observation data set in PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/sdvuuv/spitec/internal/config"
	"github.com/sdvuuv/spitec/internal/products"
	"github.com/sdvuuv/spitec/internal/sites"
	"github.com/sdvuuv/spitec/internal/storage"
	"github.com/sdvuuv/spitec/internal/trajectory"
	"github.com/sdvuuv/spitec/pkg/logger"
)

//go:embed schema.sql
var schemaSQL embed.FS

// Store is a PostgreSQL-backed observation data set
type Store struct {
	db     *sql.DB
	logger *logger.Logger
}

// ConnString builds the lib/pq connection string
func ConnString(cfg config.PostgresConfig) string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.Username,
		cfg.Password,
		cfg.Database,
		cfg.SSLMode,
	)
}

// Connect opens the database, checks it is reachable and creates the schema
func Connect(ctx context.Context, cfg config.PostgresConfig, log *logger.Logger) (*Store, error) {
	storeLogger := log.Named("postgres")
	storeLogger.Info("Connecting to PostgreSQL",
		logger.String("host", cfg.Host),
		logger.Int("port", cfg.Port),
		logger.String("database", cfg.Database))

	db, err := sql.Open("postgres", ConnString(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Hour)

	// Test connection
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: db, logger: storeLogger}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	schemaBytes, err := schemaSQL.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema file: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, string(schemaBytes)); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

// Close closes the connection pool
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveSite inserts a station or updates its coordinates
func (s *Store) SaveSite(ctx context.Context, station sites.Station) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sites (name, lat, lon) VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET lat = EXCLUDED.lat, lon = EXCLUDED.lon`,
		station.Name, station.Lat, station.Lon,
	)
	if err != nil {
		return fmt.Errorf("failed to save site %s: %w", station.Name, err)
	}
	return nil
}

// SaveObservations upserts observations in one transaction
func (s *Store) SaveObservations(ctx context.Context, observations []storage.Observation) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO observations
		(site, sat, ts, azimuth, elevation, roti, dtec_2_10, dtec_10_20, dtec_20_60, tec)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (site, sat, ts) DO UPDATE SET
			azimuth = EXCLUDED.azimuth,
			elevation = EXCLUDED.elevation,
			roti = EXCLUDED.roti,
			dtec_2_10 = EXCLUDED.dtec_2_10,
			dtec_10_20 = EXCLUDED.dtec_10_20,
			dtec_20_60 = EXCLUDED.dtec_20_60,
			tec = EXCLUDED.tec`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, o := range observations {
		_, err := stmt.ExecContext(ctx,
			o.Site, o.Satellite, o.Time.UTC(), o.Azimuth, o.Elevation,
			storage.NullFloat(o.ROTI),
			storage.NullFloat(o.DTEC2_10),
			storage.NullFloat(o.DTEC10_20),
			storage.NullFloat(o.DTEC20_60),
			storage.NullFloat(o.TEC),
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert observation %s/%s: %w", o.Site, o.Satellite, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit observations: %w", err)
	}
	return len(observations), nil
}

// Sites returns every station in insertion order
func (s *Store) Sites(ctx context.Context) ([]sites.Station, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, lat, lon FROM sites ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sites: %w", err)
	}
	defer rows.Close()

	var out []sites.Station
	for rows.Next() {
		var st sites.Station
		if err := rows.Scan(&st.Name, &st.Lat, &st.Lon); err != nil {
			return nil, fmt.Errorf("failed to scan site: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// Satellites returns the satellites observed from a station
func (s *Store) Satellites(ctx context.Context, site string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT sat FROM observations WHERE site = $1 ORDER BY sat`, site)
	if err != nil {
		return nil, fmt.Errorf("failed to query satellites: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var sat string
		if err := rows.Scan(&sat); err != nil {
			return nil, fmt.Errorf("failed to scan satellite: %w", err)
		}
		out = append(out, sat)
	}
	return out, rows.Err()
}

// Samples returns the time-ordered angles of a satellite seen from a station
func (s *Store) Samples(ctx context.Context, site, sat string) ([]trajectory.AngleSample, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, azimuth, elevation FROM observations
		WHERE site = $1 AND sat = $2 ORDER BY ts`, site, sat)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	var out []trajectory.AngleSample
	for rows.Next() {
		var sample trajectory.AngleSample
		if err := rows.Scan(&sample.Time, &sample.Azimuth, &sample.Elevation); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		sample.Time = sample.Time.UTC()
		out = append(out, sample)
	}
	return out, rows.Err()
}

// ProductSeries returns the time-ordered values of a product
func (s *Store) ProductSeries(ctx context.Context, site, sat string, product products.Product) ([]time.Time, []float64, error) {
	column, err := product.Column()
	if err != nil {
		return nil, nil, err
	}

	query := fmt.Sprintf(`SELECT ts, %s FROM observations WHERE site = $1 AND sat = $2 ORDER BY ts`, column)
	rows, err := s.db.QueryContext(ctx, query, site, sat)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query %s series: %w", column, err)
	}
	defer rows.Close()

	var times []time.Time
	var values []float64
	for rows.Next() {
		var ts time.Time
		var v sql.NullFloat64
		if err := rows.Scan(&ts, &v); err != nil {
			return nil, nil, fmt.Errorf("failed to scan %s value: %w", column, err)
		}
		times = append(times, ts.UTC())
		values = append(values, storage.FromNull(v))
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	if len(times) == 0 {
		return nil, nil, fmt.Errorf("%s/%s: %w", site, sat, storage.ErrSatelliteNotFound)
	}
	return times, values, nil
}
