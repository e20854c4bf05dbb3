package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sdvuuv/spitec/internal/products"
	"github.com/sdvuuv/spitec/internal/sites"
	"github.com/sdvuuv/spitec/internal/storage"
	"github.com/sdvuuv/spitec/internal/trajectory"
	"github.com/sdvuuv/spitec/pkg/logger"
	_ "modernc.org/sqlite"
)

// Import logger functions
var (
	String = logger.String
	Int    = logger.Int
	Error  = logger.Error
)

// Timestamps are stored in UTC with a fixed width so that text order is time order
const tsLayout = "2006-01-02 15:04:05.000"

// Store is a SQLite-based observation data set
type Store struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewStore opens (or creates) the data set at dbPath
func NewStore(dbPath string, log *logger.Logger) (*Store, error) {
	storeLogger := log.Named("sqlite")

	storeLogger.Info("Initializing SQLite storage",
		String("path", dbPath))

	// Open the database
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Set connection pool limits
	db.SetMaxOpenConns(1) // SQLite only supports one writer at a time
	db.SetMaxIdleConns(1)

	// Set pragmas for better performance and concurrency
	pragmas := []struct{ stmt, what string }{
		{"PRAGMA journal_mode=WAL", "journal mode"},
		{"PRAGMA synchronous=NORMAL", "synchronous mode"},
		{"PRAGMA busy_timeout=5000", "busy timeout"},
		{"PRAGMA cache_size=10000", "cache size"},
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p.stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set %s: %w", p.what, err)
		}
	}

	// Create tables if they don't exist
	if err := initDatabase(db, storeLogger); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, logger: storeLogger}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// GetDB returns the database connection
func (s *Store) GetDB() *sql.DB {
	return s.db
}

// initDatabase initializes the database schema
func initDatabase(db *sql.DB, log *logger.Logger) error {
	log.Info("Initializing database schema")

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS sites (
			name TEXT PRIMARY KEY,
			lat REAL NOT NULL,     -- radians
			lon REAL NOT NULL,     -- radians
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create sites table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS observations (
			site TEXT NOT NULL,
			sat TEXT NOT NULL,
			ts TEXT NOT NULL,
			azimuth REAL NOT NULL,   -- radians
			elevation REAL NOT NULL, -- radians
			roti REAL,
			dtec_2_10 REAL,
			dtec_10_20 REAL,
			dtec_20_60 REAL,
			tec REAL,
			PRIMARY KEY (site, sat, ts)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create observations table: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_observations_site ON observations(site)`)
	if err != nil {
		return fmt.Errorf("failed to create site index: %w", err)
	}

	return nil
}

// SaveSite inserts a station or updates its coordinates
func (s *Store) SaveSite(ctx context.Context, station sites.Station) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sites (name, lat, lon) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET lat = excluded.lat, lon = excluded.lon`,
		station.Name, station.Lat, station.Lon,
	)
	if err != nil {
		return fmt.Errorf("failed to save site %s: %w", station.Name, err)
	}
	return nil
}

// SaveObservations writes observations in one transaction, replacing any
// existing row with the same site, satellite and time
func (s *Store) SaveObservations(ctx context.Context, observations []storage.Observation) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO observations
		(site, sat, ts, azimuth, elevation, roti, dtec_2_10, dtec_10_20, dtec_20_60, tec)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, o := range observations {
		_, err := stmt.ExecContext(ctx,
			o.Site,
			o.Satellite,
			o.Time.UTC().Format(tsLayout),
			o.Azimuth,
			o.Elevation,
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

	s.logger.Debug("Saved observations", Int("count", len(observations)))
	return len(observations), nil
}

// Sites returns every station in insertion order
func (s *Store) Sites(ctx context.Context) ([]sites.Station, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, lat, lon FROM sites ORDER BY rowid`)
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

// Satellites returns the satellites observed from a station, sorted by name
func (s *Store) Satellites(ctx context.Context, site string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT sat FROM observations WHERE site = ? ORDER BY sat`, site)
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

// Samples returns the time-ordered angles of a satellite seen from a station.
// No rows is not an error.
func (s *Store) Samples(ctx context.Context, site, sat string) ([]trajectory.AngleSample, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, azimuth, elevation FROM observations
		WHERE site = ? AND sat = ? ORDER BY ts`, site, sat)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	var out []trajectory.AngleSample
	for rows.Next() {
		var sample trajectory.AngleSample
		var ts string
		if err := rows.Scan(&ts, &sample.Azimuth, &sample.Elevation); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		if sample.Time, err = parseTimestamp(ts); err != nil {
			return nil, err
		}
		out = append(out, sample)
	}
	return out, rows.Err()
}

// ProductSeries returns the time-ordered values of a product. It returns
// storage.ErrSatelliteNotFound when the station never observed the satellite.
func (s *Store) ProductSeries(ctx context.Context, site, sat string, product products.Product) ([]time.Time, []float64, error) {
	column, err := product.Column()
	if err != nil {
		return nil, nil, err
	}

	// column comes from a closed set of product names
	query := fmt.Sprintf(`SELECT ts, %s FROM observations WHERE site = ? AND sat = ? ORDER BY ts`, column)
	rows, err := s.db.QueryContext(ctx, query, site, sat)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query %s series: %w", column, err)
	}
	defer rows.Close()

	var times []time.Time
	var values []float64
	for rows.Next() {
		var ts string
		var v sql.NullFloat64
		if err := rows.Scan(&ts, &v); err != nil {
			return nil, nil, fmt.Errorf("failed to scan %s value: %w", column, err)
		}
		t, err := parseTimestamp(ts)
		if err != nil {
			return nil, nil, err
		}
		times = append(times, t)
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

func parseTimestamp(ts string) (time.Time, error) {
	t, err := time.Parse(tsLayout, ts)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", ts, err)
	}
	return t, nil
}
