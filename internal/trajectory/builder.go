// Package trajectory builds sub-ionospheric point traces for a station and
// satellite pair and answers time-window and timestamp queries over them.
package trajectory

import (
	"math"
	"sort"
	"time"

	"github.com/sdvuuv/spitec/internal/geodesy"
	"github.com/sdvuuv/spitec/internal/sites"
)

// BreakGroupSize is the number of synthetic entries inserted at every data
// outage. Window clipping relies on the same constant to step over a group:
// a bound on a gap entry walks at most BreakGroupSize entries inward and stops
// at the first positioned one, so a bound inside a group lands next to it
// rather than exactly BreakGroupSize entries away.
const BreakGroupSize = 3

// Defaults for gap repair
const (
	DefaultGapThreshold = 10 * time.Minute
	DefaultBreakOffset  = 30 * time.Second
)

// AngleSample is one azimuth/elevation observation of a satellite, in radians
type AngleSample struct {
	Time      time.Time `json:"time"`
	Azimuth   float64   `json:"azimuth"`
	Elevation float64   `json:"elevation"`
}

// Options controls gap repair
type Options struct {
	GapThreshold time.Duration // Gaps strictly longer than this get a break group
	BreakOffset  time.Duration // Spacing of the outer break entries from the gap midpoint
}

// DefaultOptions returns the standard 10 minute threshold and 30 second offset
func DefaultOptions() Options {
	return Options{
		GapThreshold: DefaultGapThreshold,
		BreakOffset:  DefaultBreakOffset,
	}
}

// Trajectory is the sub-ionospheric trace of one satellite seen from one
// station. Lat and Lon are decimal degrees, parallel to Times, and NaN at
// break entries. A built Trajectory is never modified, so it can be shared
// between goroutines.
type Trajectory struct {
	Site          string
	Satellite     string
	ShellHeightKm float64
	SatExists     bool

	Times []time.Time
	Lat   []float64
	Lon   []float64

	Breaks int // Number of break groups inserted
}

// Len returns the number of entries including break entries
func (t *Trajectory) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Times)
}

// IsGap reports whether entry i carries no position
func (t *Trajectory) IsGap(i int) bool {
	return math.IsNaN(t.Lat[i]) || math.IsNaN(t.Lon[i])
}

// Build projects every sample onto the ionospheric shell and repairs gaps.
// Samples must belong to the given station and satellite; they are sorted by
// time if they are not already. An empty sample set yields a trajectory with
// SatExists false.
func Build(station sites.Station, satellite string, samples []AngleSample, shellHeightKm float64, opts Options) *Trajectory {
	t := &Trajectory{
		Site:          station.Name,
		Satellite:     satellite,
		ShellHeightKm: shellHeightKm,
	}
	if len(samples) == 0 {
		return t
	}

	if !sort.SliceIsSorted(samples, func(i, j int) bool { return samples[i].Time.Before(samples[j].Time) }) {
		sorted := make([]AngleSample, len(samples))
		copy(sorted, samples)
		sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })
		samples = sorted
	}

	t.SatExists = true
	t.Times = make([]time.Time, len(samples))
	t.Lat = make([]float64, len(samples))
	t.Lon = make([]float64, len(samples))

	for i, s := range samples {
		lat, lon := geodesy.SubIonosphericPoint(station.Lat, station.Lon, shellHeightKm, s.Azimuth, s.Elevation)
		t.Times[i] = s.Time
		t.Lat[i] = geodesy.Rad2Deg(lat)
		t.Lon[i] = geodesy.Rad2Deg(lon)
	}

	return InsertArtificialBreaks(t, opts)
}

// InsertArtificialBreaks returns a copy of t with a group of BreakGroupSize
// NaN entries placed inside every gap longer than opts.GapThreshold, at
// midpoint-offset, midpoint and midpoint+offset. A renderer drawing lines
// through the trace then stops at the outage, and the group survives
// downsampling that keeps every third point. Breaks are never placed before
// the first sample.
func InsertArtificialBreaks(t *Trajectory, opts Options) *Trajectory {
	out := &Trajectory{
		Site:          t.Site,
		Satellite:     t.Satellite,
		ShellHeightKm: t.ShellHeightKm,
		SatExists:     t.SatExists,
		Breaks:        t.Breaks,
	}
	n := len(t.Times)
	if n == 0 {
		return out
	}

	gaps := 0
	for i := 1; i < n; i++ {
		if t.Times[i].Sub(t.Times[i-1]) > opts.GapThreshold {
			gaps++
		}
	}

	size := n + gaps*BreakGroupSize
	out.Times = make([]time.Time, 0, size)
	out.Lat = make([]float64, 0, size)
	out.Lon = make([]float64, 0, size)

	nan := math.NaN()
	for i := 0; i < n; i++ {
		if i > 0 {
			gap := t.Times[i].Sub(t.Times[i-1])
			if gap > opts.GapThreshold {
				mid := t.Times[i-1].Add(gap / 2)
				out.Times = append(out.Times, mid.Add(-opts.BreakOffset), mid, mid.Add(opts.BreakOffset))
				out.Lat = append(out.Lat, nan, nan, nan)
				out.Lon = append(out.Lon, nan, nan, nan)
				out.Breaks++
			}
		}
		out.Times = append(out.Times, t.Times[i])
		out.Lat = append(out.Lat, t.Lat[i])
		out.Lon = append(out.Lon, t.Lon[i])
	}

	return out
}
