package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/sdvuuv/spitec/internal/config"
	"github.com/sdvuuv/spitec/internal/dataset"
	"github.com/sdvuuv/spitec/internal/sites"
	"github.com/sdvuuv/spitec/internal/storage"
	"github.com/sdvuuv/spitec/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file (optional - will search in configs/ and root directory)")
	sitesPath := flag.String("sites", "", "CSV file with name,lat,lon rows in degrees")
	observationsPath := flag.String("observations", "", "CSV file with per-epoch observations")
	flag.Parse()

	if *sitesPath == "" && *observationsPath == "" {
		fmt.Fprintln(os.Stderr, "Nothing to import: pass -sites and/or -observations")
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.LoadWithFallback(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	log = log.Named("import")

	ctx := context.Background()
	store, err := dataset.Open(ctx, cfg.Storage, log)
	if err != nil {
		log.Error("Failed to open data set", logger.Error(err))
		os.Exit(1)
	}
	defer store.Close()

	if *sitesPath != "" {
		n, err := importSites(ctx, store, *sitesPath)
		if err != nil {
			log.Error("Failed to import sites", logger.String("path", *sitesPath), logger.Error(err))
			os.Exit(1)
		}
		log.Info("Imported sites", logger.String("path", *sitesPath), logger.Int("count", n))
	}

	if *observationsPath != "" {
		n, err := importObservations(ctx, store, *observationsPath)
		if err != nil {
			log.Error("Failed to import observations", logger.String("path", *observationsPath), logger.Error(err))
			os.Exit(1)
		}
		log.Info("Imported observations", logger.String("path", *observationsPath), logger.Int("count", n))
	}
}

func importSites(ctx context.Context, w dataset.Writer, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open sites file: %w", err)
	}
	defer f.Close()

	dir, err := sites.LoadCSV(f)
	if err != nil {
		return 0, err
	}
	for _, station := range dir.Stations() {
		if err := w.SaveSite(ctx, station); err != nil {
			return 0, err
		}
	}
	return dir.Len(), nil
}

func importObservations(ctx context.Context, w dataset.Writer, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open observations file: %w", err)
	}
	defer f.Close()

	observations, err := storage.LoadObservationsCSV(f)
	if err != nil {
		return 0, err
	}
	return w.SaveObservations(ctx, observations)
}
