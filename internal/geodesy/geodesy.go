// Package geodesy holds the spherical-earth primitives shared by the site
// directory, region selection and trajectory construction.
//
// Angles are radians unless a name says otherwise.
package geodesy

import (
	"fmt"
	"math"
)

// Constants
const (
	EarthRadiusKm = 6371.0 // Mean earth radius used by the thin-shell model

	DefaultShellHeightKm = 300.0 // Thin-shell ionosphere altitude

	DegToRad = math.Pi / 180.0
	RadToDeg = 180.0 / math.Pi

	twoPi = 2 * math.Pi
)

// Deg2Rad converts decimal degrees to radians
func Deg2Rad(deg float64) float64 {
	return deg * DegToRad
}

// Rad2Deg converts radians to decimal degrees
func Rad2Deg(rad float64) float64 {
	return rad * RadToDeg
}

// SubIonosphericPoint projects the line of sight from a ground site onto a
// thin ionospheric shell at shellHeightKm and returns the latitude and
// longitude of the pierce point.
//
// Inputs are not validated. Elevation above π/2 or a pierce point at a pole
// (cos(lat') == 0) yields NaN or ±Inf which the caller receives unchanged.
func SubIonosphericPoint(latSite, lonSite, shellHeightKm, azimuth, elevation float64) (float64, float64) {
	// Earth-centred angle between the site and the pierce point
	psi := math.Pi/2 - elevation - math.Asin(math.Cos(elevation)*EarthRadiusKm/(EarthRadiusKm+shellHeightKm))

	lat := math.Asin(math.Sin(latSite)*math.Cos(psi) + math.Cos(latSite)*math.Sin(psi)*math.Cos(azimuth))
	lon := lonSite + math.Asin(math.Sin(psi)*math.Sin(azimuth)/math.Cos(lat))

	// Single fold back into [-π, π]
	if lon > math.Pi {
		lon -= twoPi
	} else if lon < -math.Pi {
		lon += twoPi
	}

	return lat, lon
}

// GreatCircleDistanceKm returns the surface distance between two points using
// the spherical law of cosines.
func GreatCircleDistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	dlon := foldLongitude(lon2) - foldLongitude(lon1)
	if dlon > math.Pi {
		dlon = twoPi - dlon
	} else if dlon < -math.Pi {
		dlon += twoPi
	}

	cosGamma := math.Sin(lat1)*math.Sin(lat2) + math.Cos(lat1)*math.Cos(lat2)*math.Cos(dlon)
	// Rounding can push identical points just past 1
	cosGamma = math.Max(-1, math.Min(1, cosGamma))

	return EarthRadiusKm * math.Acos(cosGamma)
}

// GreatCircleDistancesKm is the elementwise form of GreatCircleDistanceKm for
// one reference point against many.
func GreatCircleDistancesKm(lat, lon float64, lats, lons []float64) ([]float64, error) {
	if len(lats) != len(lons) {
		return nil, fmt.Errorf("latitude and longitude slices differ in length: %d != %d", len(lats), len(lons))
	}

	out := make([]float64, len(lats))
	for i := range lats {
		out[i] = GreatCircleDistanceKm(lat, lon, lats[i], lons[i])
	}
	return out, nil
}

// foldLongitude maps a longitude in [-π, π] onto [0, 2π)
func foldLongitude(lon float64) float64 {
	if lon < 0 {
		return lon + twoPi
	}
	return lon
}
