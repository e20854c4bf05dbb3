// Package region filters a site directory by a latitude/longitude box or by
// great-circle distance from a centre point.
package region

import (
	"fmt"
	"sort"

	"github.com/sdvuuv/spitec/internal/geodesy"
	"github.com/sdvuuv/spitec/internal/sites"
)

// Selection maps a station name to its index in the source directory
type Selection map[string]int

// Names returns the selected names ordered by directory index
func (s Selection) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return s[names[i]] < s[names[j]] })
	return names
}

// BoundingBox is a region in decimal degrees. Bounds are exclusive.
type BoundingBox struct {
	MinLat float64 `json:"min_lat"`
	MaxLat float64 `json:"max_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLon float64 `json:"max_lon"`
}

// World covers every valid coordinate except the exact edges
var World = BoundingBox{MinLat: -90, MaxLat: 90, MinLon: -180, MaxLon: 180}

// Validate checks the box lies on the globe and is not inverted
func (b BoundingBox) Validate() error {
	if b.MinLat < -90 || b.MaxLat > 90 {
		return fmt.Errorf("latitude bounds must be within [-90, 90]: got [%g, %g]", b.MinLat, b.MaxLat)
	}
	if b.MinLon < -180 || b.MaxLon > 180 {
		return fmt.Errorf("longitude bounds must be within [-180, 180]: got [%g, %g]", b.MinLon, b.MaxLon)
	}
	if b.MinLat >= b.MaxLat {
		return fmt.Errorf("min_lat must be less than max_lat")
	}
	if b.MinLon >= b.MaxLon {
		return fmt.Errorf("min_lon must be less than max_lon")
	}
	return nil
}

// Contains reports whether a point in degrees lies strictly inside the box
func (b BoundingBox) Contains(latDeg, lonDeg float64) bool {
	return b.MinLat < latDeg && latDeg < b.MaxLat &&
		b.MinLon < lonDeg && lonDeg < b.MaxLon
}

// Circle is a centre in decimal degrees with a radius in kilometres.
// The radius is inclusive.
type Circle struct {
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	RadiusKm float64 `json:"radius_km"`
}

// Validate checks the centre lies on the globe and the radius is positive
func (c Circle) Validate() error {
	if c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("invalid latitude: %g (must be between -90 and 90)", c.Lat)
	}
	if c.Lon < -180 || c.Lon > 180 {
		return fmt.Errorf("invalid longitude: %g (must be between -180 and 180)", c.Lon)
	}
	if c.RadiusKm <= 0 {
		return fmt.Errorf("radius_km must be positive: got %g", c.RadiusKm)
	}
	return nil
}

// SelectByBoundingBox returns the stations strictly inside the box
func SelectByBoundingBox(d *sites.Directory, box BoundingBox) Selection {
	sel := make(Selection)
	d.Each(func(i int, s sites.Station) {
		if box.Contains(s.LatDeg(), s.LonDeg()) {
			sel[s.Name] = i
		}
	})
	return sel
}

// SelectByRadius returns the stations whose great-circle distance from the
// centre does not exceed the radius
func SelectByRadius(d *sites.Directory, c Circle) Selection {
	sel := make(Selection)
	latC := geodesy.Deg2Rad(c.Lat)
	lonC := geodesy.Deg2Rad(c.Lon)

	d.Each(func(i int, s sites.Station) {
		if geodesy.GreatCircleDistanceKm(s.Lat, s.Lon, latC, lonC) <= c.RadiusKm {
			sel[s.Name] = i
		}
	})
	return sel
}
