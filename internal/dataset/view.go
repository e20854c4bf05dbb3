package dataset

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sdvuuv/spitec/internal/geodesy"
	"github.com/sdvuuv/spitec/internal/products"
	"github.com/sdvuuv/spitec/internal/sites"
	"github.com/sdvuuv/spitec/internal/storage"
	"github.com/sdvuuv/spitec/internal/trajectory"
	"github.com/sdvuuv/spitec/pkg/logger"
)

// Reasons a requested station is missing from a view
const (
	ReasonUnknownSite = "unknown_site"
	ReasonNoSatellite = "no_satellite_data"
	ReasonEmptyWindow = "empty_window"
	ReasonNotLoaded   = "load_failed"
)

// ViewRequest describes one map view: a set of stations, one satellite, a
// shell height and an optional time window and tag time. Zero Start and End
// show the whole trajectory.
type ViewRequest struct {
	Sites         []string   `json:"sites"`
	Satellite     string     `json:"satellite"`
	ShellHeightKm float64    `json:"shell_height_km,omitempty"`
	Start         time.Time  `json:"start,omitempty"`
	End           time.Time  `json:"end,omitempty"`
	Tag           *time.Time `json:"tag,omitempty"`
}

// Tag marks the sub-ionospheric point at the tag time
type Tag struct {
	trajectory.Point
	Declination *float64 `json:"declination,omitempty"` // Magnetic declination at the point, degrees east
}

// Track is the drawable part of one station's trajectory
type Track struct {
	Site     string            `json:"site"`
	Window   trajectory.Window `json:"window"`
	Times    []time.Time       `json:"times"`
	Lat      []*float64        `json:"lat"`
	Lon      []*float64        `json:"lon"`
	Endpoint *trajectory.Point `json:"endpoint,omitempty"`
	Tag      *Tag              `json:"tag,omitempty"`
}

// NoData names a station that has nothing to draw and why
type NoData struct {
	Site   string `json:"site"`
	Reason string `json:"reason"`
}

// View is the answer to a ViewRequest
type View struct {
	Satellite     string   `json:"satellite"`
	ShellHeightKm float64  `json:"shell_height_km"`
	Tracks        []Track  `json:"tracks"`
	NoData        []NoData `json:"no_data"`
}

// View builds, clips and tags the trajectory of every requested station.
// Stations without a drawable trajectory are reported in NoData rather than
// failing the whole request.
func (s *Service) View(ctx context.Context, req ViewRequest) (*View, error) {
	if req.Satellite == "" {
		return nil, fmt.Errorf("%w: satellite is required", ErrInvalidRequest)
	}
	hm, err := s.ShellHeight(req.ShellHeightKm)
	if err != nil {
		return nil, err
	}
	windowed := !req.Start.IsZero() || !req.End.IsZero()
	if windowed && (req.Start.IsZero() || req.End.IsZero()) {
		return nil, fmt.Errorf("%w: start and end must be given together", ErrInvalidWindow)
	}
	if windowed && req.End.Before(req.Start) {
		return nil, fmt.Errorf("%w: end %s before start %s", ErrInvalidWindow,
			req.End.Format(time.RFC3339), req.Start.Format(time.RFC3339))
	}

	view := &View{
		Satellite:     req.Satellite,
		ShellHeightKm: hm,
		Tracks:        []Track{},
		NoData:        []NoData{},
	}

	for _, site := range req.Sites {
		t, err := s.Trajectory(ctx, site, req.Satellite, hm)
		if err != nil {
			if errors.Is(err, sites.ErrSiteNotFound) {
				view.NoData = append(view.NoData, NoData{Site: site, Reason: ReasonUnknownSite})
				continue
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.Warn("Failed to build trajectory",
				logger.String("site", site),
				logger.String("satellite", req.Satellite),
				logger.Error(err))
			view.NoData = append(view.NoData, NoData{Site: site, Reason: ReasonNotLoaded})
			continue
		}
		if !t.SatExists {
			view.NoData = append(view.NoData, NoData{Site: site, Reason: ReasonNoSatellite})
			continue
		}

		w := t.Full()
		if windowed {
			w = t.Clip(req.Start, req.End)
		}
		if !w.Valid() {
			view.NoData = append(view.NoData, NoData{Site: site, Reason: ReasonEmptyWindow})
			continue
		}

		view.Tracks = append(view.Tracks, s.track(t, w, req.Tag))
	}

	return view, nil
}

func (s *Service) track(t *trajectory.Trajectory, w trajectory.Window, tagAt *time.Time) Track {
	times, lat, lon := t.Segment(w)
	tr := Track{
		Site:   t.Site,
		Window: w,
		Times:  times,
		Lat:    trajectory.Nullable(lat),
		Lon:    trajectory.Nullable(lon),
	}
	if p, ok := t.Endpoint(w); ok {
		tr.Endpoint = &p
	}
	if tagAt != nil {
		if p, ok := t.TagPosition(*tagAt, w); ok {
			tag := &Tag{Point: p}
			decl, err := geodesy.MagneticDeclination(p.Lat, p.Lon, t.ShellHeightKm, p.Time)
			if err != nil {
				s.logger.Debug("No declination for tag", logger.String("site", t.Site), logger.Error(err))
			} else {
				tag.Declination = &decl
			}
			tr.Tag = tag
		}
	}
	return tr
}

// Series loads one product for several stations and stacks the series for
// plotting. Stations that never observed the satellite become flat
// placeholder lines on the time axis of the first station with data.
func (s *Service) Series(ctx context.Context, siteNames []string, sat string, product products.Product, shift float64) ([]products.Series, error) {
	if sat == "" {
		return nil, fmt.Errorf("%w: satellite is required", ErrInvalidRequest)
	}
	dir, err := s.Directory(ctx)
	if err != nil {
		return nil, err
	}

	series := make([]products.Series, 0, len(siteNames))
	var axis []time.Time
	for _, site := range siteNames {
		if _, ok := dir.Get(site); !ok {
			return nil, fmt.Errorf("%s: %w", site, sites.ErrSiteNotFound)
		}

		entry := products.Series{Site: site, Satellite: sat, Product: product}
		times, values, err := s.source.ProductSeries(ctx, site, sat, product)
		switch {
		case errors.Is(err, storage.ErrSatelliteNotFound):
			entry.Placeholder = true
		case err != nil:
			return nil, fmt.Errorf("failed to load %s for %s/%s: %w", product, site, sat, err)
		default:
			if product == products.Elevation || product == products.Azimuth {
				for i := range values {
					values[i] = geodesy.Rad2Deg(values[i])
				}
			}
			entry.Times, entry.Values = times, values
			if axis == nil {
				axis = times
			}
		}
		series = append(series, entry)
	}

	for i := range series {
		if series[i].Placeholder {
			series[i].Times = axis
			series[i].Values = make([]float64, len(axis))
		}
	}

	return products.Stack(series, shift), nil
}
