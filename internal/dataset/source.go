package dataset

import (
	"context"
	"fmt"
	"time"

	"github.com/sdvuuv/spitec/internal/config"
	"github.com/sdvuuv/spitec/internal/products"
	"github.com/sdvuuv/spitec/internal/sites"
	"github.com/sdvuuv/spitec/internal/storage"
	"github.com/sdvuuv/spitec/internal/storage/postgres"
	"github.com/sdvuuv/spitec/internal/storage/sqlite"
	"github.com/sdvuuv/spitec/internal/trajectory"
	"github.com/sdvuuv/spitec/pkg/logger"
)

// Source provides read access to an observation data set
type Source interface {
	Sites(ctx context.Context) ([]sites.Station, error)
	Satellites(ctx context.Context, site string) ([]string, error)
	Samples(ctx context.Context, site, sat string) ([]trajectory.AngleSample, error)
	ProductSeries(ctx context.Context, site, sat string, product products.Product) ([]time.Time, []float64, error)
	Close() error
}

// Writer adds stations and observations to a data set
type Writer interface {
	SaveSite(ctx context.Context, station sites.Station) error
	SaveObservations(ctx context.Context, observations []storage.Observation) (int, error)
}

// Store is a data set that can be read and written
type Store interface {
	Source
	Writer
}

// Open connects to the backend named by cfg.Type
func Open(ctx context.Context, cfg config.StorageConfig, log *logger.Logger) (Store, error) {
	switch cfg.Type {
	case "sqlite", "":
		return sqlite.NewStore(cfg.SQLitePath, log)
	case "postgres":
		return postgres.Connect(ctx, cfg.Postgres, log)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}
