// Package dataset answers trajectory, region and time-series queries over an
// observation data set.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/sdvuuv/spitec/internal/config"
	"github.com/sdvuuv/spitec/internal/metrics"
	"github.com/sdvuuv/spitec/internal/region"
	"github.com/sdvuuv/spitec/internal/sites"
	"github.com/sdvuuv/spitec/internal/trajectory"
	"github.com/sdvuuv/spitec/internal/websocket"
	"github.com/sdvuuv/spitec/pkg/logger"
)

// Request validation errors
var (
	ErrInvalidWindow      = errors.New("invalid time window")
	ErrInvalidShellHeight = errors.New("invalid shell height")
	ErrInvalidRegion      = errors.New("invalid region")
	ErrInvalidRequest     = errors.New("invalid request")
)

// WebSocketServer defines the interface for broadcasting to connected sessions
type WebSocketServer interface {
	Broadcast(message *websocket.Message)
}

type cacheKey struct {
	site          string
	satellite     string
	shellHeightKm float64
}

// Service owns the data set source, the site directory and a cache of built
// trajectories. Cached trajectories are immutable and shared between callers.
type Service struct {
	source   Source
	cfg      config.TrajectoryConfig
	logger   *logger.Logger
	wsServer WebSocketServer

	mu         sync.RWMutex
	directory  *sites.Directory
	generation uint64 // Bumped by every Reload
	cache      map[cacheKey]*trajectory.Trajectory
	order      []cacheKey
}

// NewService creates a data set service. wsServer may be nil.
func NewService(source Source, cfg config.TrajectoryConfig, wsServer WebSocketServer, log *logger.Logger) *Service {
	return &Service{
		source:   source,
		cfg:      cfg,
		logger:   log.Named("dataset"),
		wsServer: wsServer,
		cache:    make(map[cacheKey]*trajectory.Trajectory),
	}
}

// Reload re-reads the station list and drops every cached trajectory.
// Connected sessions are told to refresh.
func (s *Service) Reload(ctx context.Context) (int, error) {
	stations, err := s.source.Sites(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load sites: %w", err)
	}
	dir := sites.NewDirectory(stations...)

	s.mu.Lock()
	s.directory = dir
	s.generation++
	s.cache = make(map[cacheKey]*trajectory.Trajectory)
	s.order = nil
	s.mu.Unlock()

	s.logger.Info("Data set loaded", logger.Int("sites", dir.Len()))

	if s.wsServer != nil {
		s.wsServer.Broadcast(&websocket.Message{
			Type: websocket.MessageTypeDatasetReloaded,
			Data: map[string]any{"sites": dir.Len()},
		})
	}
	return dir.Len(), nil
}

// Directory returns the site directory, loading it on first use
func (s *Service) Directory(ctx context.Context) (*sites.Directory, error) {
	dir, _, err := s.snapshot(ctx)
	return dir, err
}

// snapshot returns the directory together with the reload generation it
// belongs to
func (s *Service) snapshot(ctx context.Context) (*sites.Directory, uint64, error) {
	s.mu.RLock()
	dir, gen := s.directory, s.generation
	s.mu.RUnlock()
	if dir != nil {
		return dir, gen, nil
	}

	stations, err := s.source.Sites(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load sites: %w", err)
	}
	dir = sites.NewDirectory(stations...)

	s.mu.Lock()
	if s.directory == nil {
		s.directory = dir
	}
	dir, gen = s.directory, s.generation
	s.mu.Unlock()
	return dir, gen, nil
}

// Sites returns every station in directory order
func (s *Service) Sites(ctx context.Context) ([]sites.Station, error) {
	dir, err := s.Directory(ctx)
	if err != nil {
		return nil, err
	}
	return dir.Stations(), nil
}

// Satellites lists the satellites a station observed
func (s *Service) Satellites(ctx context.Context, site string) ([]string, error) {
	dir, err := s.Directory(ctx)
	if err != nil {
		return nil, err
	}
	if _, ok := dir.Get(site); !ok {
		return nil, fmt.Errorf("%s: %w", site, sites.ErrSiteNotFound)
	}
	sats, err := s.source.Satellites(ctx, site)
	if err != nil {
		return nil, fmt.Errorf("failed to list satellites for %s: %w", site, err)
	}
	return sats, nil
}

// SelectBoundingBox returns the stations strictly inside box
func (s *Service) SelectBoundingBox(ctx context.Context, box region.BoundingBox) (region.Selection, error) {
	if err := box.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRegion, err)
	}
	dir, err := s.Directory(ctx)
	if err != nil {
		return nil, err
	}
	sel := region.SelectByBoundingBox(dir, box)
	metrics.RegionSelected("bbox", len(sel))
	return sel, nil
}

// SelectRadius returns the stations within the circle
func (s *Service) SelectRadius(ctx context.Context, circle region.Circle) (region.Selection, error) {
	if err := circle.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRegion, err)
	}
	dir, err := s.Directory(ctx)
	if err != nil {
		return nil, err
	}
	sel := region.SelectByRadius(dir, circle)
	metrics.RegionSelected("circle", len(sel))
	return sel, nil
}

// ShellHeight resolves a requested shell height; zero means the configured default
func (s *Service) ShellHeight(requested float64) (float64, error) {
	if math.IsNaN(requested) || math.IsInf(requested, 0) {
		return 0, fmt.Errorf("%w: %g km is not a finite height", ErrInvalidShellHeight, requested)
	}
	if requested == 0 {
		return s.cfg.ShellHeightKm, nil
	}
	if requested < 0 || requested > s.cfg.MaxShellHeightKm {
		return 0, fmt.Errorf("%w: %g km (must be within (0, %g])", ErrInvalidShellHeight, requested, s.cfg.MaxShellHeightKm)
	}
	return requested, nil
}

// Trajectory returns the trajectory of sat seen from site, building it on a
// cache miss. A station that never observed sat yields SatExists false.
func (s *Service) Trajectory(ctx context.Context, site, sat string, shellHeightKm float64) (*trajectory.Trajectory, error) {
	hm, err := s.ShellHeight(shellHeightKm)
	if err != nil {
		return nil, err
	}
	dir, gen, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	station, ok := dir.Get(site)
	if !ok {
		return nil, fmt.Errorf("%s: %w", site, sites.ErrSiteNotFound)
	}

	key := cacheKey{site: site, satellite: sat, shellHeightKm: hm}
	s.mu.RLock()
	cached, hit := s.cache[key]
	s.mu.RUnlock()
	metrics.TrajectoryCacheLookup(hit)
	if hit {
		return cached, nil
	}

	samples, err := s.source.Samples(ctx, site, sat)
	if err != nil {
		return nil, fmt.Errorf("failed to load samples for %s/%s: %w", site, sat, err)
	}

	t := trajectory.Build(station, sat, samples, hm, trajectory.Options{
		GapThreshold: s.cfg.GapThreshold(),
		BreakOffset:  s.cfg.BreakOffset(),
	})
	metrics.TrajectoryBuilt(t.Breaks)
	s.logger.Debug("Built trajectory",
		logger.String("site", site),
		logger.String("satellite", sat),
		logger.Float64("shell_height_km", hm),
		logger.Int("entries", t.Len()),
		logger.Int("breaks", t.Breaks))

	s.store(key, gen, t)
	return t, nil
}

// store caches t, evicting the oldest entry once the cache is full. A
// trajectory built against a directory that a Reload has since replaced is
// not cached.
func (s *Service) store(key cacheKey, gen uint64, t *trajectory.Trajectory) {
	if s.cfg.CacheSize <= 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation {
		return
	}
	if _, ok := s.cache[key]; ok {
		return
	}
	for len(s.order) >= s.cfg.CacheSize {
		delete(s.cache, s.order[0])
		s.order = s.order[1:]
	}
	s.cache[key] = t
	s.order = append(s.order, key)
}

// CachedTrajectories returns the number of trajectories held in the cache
func (s *Service) CachedTrajectories() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cache)
}

// Close closes the underlying source
func (s *Service) Close() error {
	return s.source.Close()
}
