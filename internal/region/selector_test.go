package region

import (
	"reflect"
	"testing"

	"github.com/sdvuuv/spitec/internal/geodesy"
	"github.com/sdvuuv/spitec/internal/sites"
)

func station(name string, latDeg, lonDeg float64) sites.Station {
	return sites.Station{Name: name, Lat: geodesy.Deg2Rad(latDeg), Lon: geodesy.Deg2Rad(lonDeg)}
}

func TestSelectByBoundingBox(t *testing.T) {
	d := sites.NewDirectory(
		station("a", 10, 10),
		station("b", 50, 50),
		station("c", -10, -10),
	)

	got := SelectByBoundingBox(d, BoundingBox{MinLat: 0, MaxLat: 60, MinLon: 0, MaxLon: 60})
	want := Selection{"a": 0, "b": 1}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("selection = %v, want %v", got, want)
	}
	if names := got.Names(); !reflect.DeepEqual(names, []string{"a", "b"}) {
		t.Errorf("Names = %v", names)
	}
}

func TestSelectByBoundingBoxExcludesBoundary(t *testing.T) {
	s := station("edge", 20, 30)
	d := sites.NewDirectory(s, station("inside", 25, 31))

	minLat := s.LatDeg()
	got := SelectByBoundingBox(d, BoundingBox{MinLat: minLat, MaxLat: minLat + 10, MinLon: 0, MaxLon: 60})
	if _, ok := got["edge"]; ok {
		t.Error("station on min_lat should be excluded")
	}
	if _, ok := got["inside"]; !ok {
		t.Error("inner station should be selected")
	}

	got = SelectByBoundingBox(d, BoundingBox{MinLat: 0, MaxLat: 60, MinLon: 0, MaxLon: s.LonDeg()})
	if _, ok := got["edge"]; ok {
		t.Error("station on max_lon should be excluded")
	}
}

func TestSelectByRadius(t *testing.T) {
	d := sites.NewDirectory(
		station("centre", 0, 0),
		station("east", 0, 1),
		station("far", 0, 10),
	)

	radius := geodesy.GreatCircleDistanceKm(0, 0, 0, geodesy.Deg2Rad(1))
	got := SelectByRadius(d, Circle{Lat: 0, Lon: 0, RadiusKm: radius})
	want := Selection{"centre": 0, "east": 1}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("selection = %v, want %v", got, want)
	}

	got = SelectByRadius(d, Circle{Lat: 0, Lon: 0, RadiusKm: radius - 1e-6})
	if _, ok := got["east"]; ok {
		t.Error("station just beyond the radius should be excluded")
	}
}

func TestSelectAcrossAntimeridian(t *testing.T) {
	d := sites.NewDirectory(station("west", 0, -179.5), station("east", 0, 179.5))

	got := SelectByRadius(d, Circle{Lat: 0, Lon: 180, RadiusKm: 100})
	if len(got) != 2 {
		t.Errorf("expected both stations near the antimeridian, got %v", got)
	}
}

func TestSelectEmpty(t *testing.T) {
	var nilDir *sites.Directory
	if got := SelectByBoundingBox(nilDir, World); got == nil || len(got) != 0 {
		t.Errorf("nil directory bbox = %v", got)
	}
	if got := SelectByRadius(sites.NewDirectory(), Circle{RadiusKm: 10}); got == nil || len(got) != 0 {
		t.Errorf("empty directory radius = %v", got)
	}

	d := sites.NewDirectory(station("a", 70, 70))
	if got := SelectByBoundingBox(d, BoundingBox{MinLat: 0, MaxLat: 10, MinLon: 0, MaxLon: 10}); len(got) != 0 {
		t.Errorf("expected no stations, got %v", got)
	}
}

func TestValidate(t *testing.T) {
	if err := World.Validate(); err != nil {
		t.Errorf("World invalid: %v", err)
	}
	bad := []BoundingBox{
		{MinLat: -91, MaxLat: 0, MinLon: 0, MaxLon: 1},
		{MinLat: 0, MaxLat: 1, MinLon: 0, MaxLon: 181},
		{MinLat: 5, MaxLat: 5, MinLon: 0, MaxLon: 1},
		{MinLat: 0, MaxLat: 1, MinLon: 3, MaxLon: 2},
	}
	for _, b := range bad {
		if err := b.Validate(); err == nil {
			t.Errorf("expected error for %+v", b)
		}
	}

	if err := (Circle{Lat: 10, Lon: 10, RadiusKm: 1}).Validate(); err != nil {
		t.Errorf("valid circle rejected: %v", err)
	}
	for _, c := range []Circle{{Lat: 91, RadiusKm: 1}, {Lon: -181, RadiusKm: 1}, {RadiusKm: 0}} {
		if err := c.Validate(); err == nil {
			t.Errorf("expected error for %+v", c)
		}
	}
}
