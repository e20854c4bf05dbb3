package sites

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/sdvuuv/spitec/internal/geodesy"
)

func TestDirectoryOrderAndReplace(t *testing.T) {
	d := NewDirectory(
		Station{Name: "irkj", Lat: 0.9, Lon: 1.8},
		Station{Name: "novm", Lat: 0.96, Lon: 1.45},
	)
	d.Add(Station{Name: "mdvj", Lat: 0.97, Lon: 0.65})
	d.Add(Station{Name: "irkj", Lat: 0.91, Lon: 1.81})

	if d.Len() != 3 {
		t.Fatalf("Len = %d, want 3", d.Len())
	}
	if got := strings.Join(d.Names(), ","); got != "irkj,novm,mdvj" {
		t.Errorf("Names = %s", got)
	}
	s, ok := d.Get("irkj")
	if !ok || s.Lat != 0.91 {
		t.Errorf("replaced station = %+v, %v", s, ok)
	}
	if d.Index("mdvj") != 2 || d.Index("nope") != -1 {
		t.Errorf("unexpected indices %d %d", d.Index("mdvj"), d.Index("nope"))
	}
}

func TestNilDirectory(t *testing.T) {
	var d *Directory
	if d.Len() != 0 || d.Names() != nil || d.Index("x") != -1 {
		t.Error("nil directory should behave as empty")
	}
	if _, ok := d.Get("x"); ok {
		t.Error("nil directory returned a station")
	}
	d.Each(func(int, Station) { t.Error("Each visited a station of a nil directory") })
}

func TestDirectoryDistance(t *testing.T) {
	d := NewDirectory(Station{Name: "a", Lat: 0, Lon: 0})

	km, err := d.Distance("a", 0, geodesy.Deg2Rad(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(km-geodesy.EarthRadiusKm*geodesy.DegToRad) > 1e-6 {
		t.Errorf("distance = %.6f", km)
	}

	if _, err := d.Distance("b", 0, 0); !errors.Is(err, ErrSiteNotFound) {
		t.Errorf("expected ErrSiteNotFound, got %v", err)
	}
}

func TestLoadCSV(t *testing.T) {
	input := "name,lat,lon\nIRKJ, 52.22, 104.32\nnovm,55.03,82.91\n"

	d, err := LoadCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Len() != 2 {
		t.Fatalf("Len = %d, want 2", d.Len())
	}
	s, ok := d.Get("irkj")
	if !ok {
		t.Fatal("irkj not loaded (names are lower-cased)")
	}
	if math.Abs(s.LatDeg()-52.22) > 1e-9 || math.Abs(s.LonDeg()-104.32) > 1e-9 {
		t.Errorf("irkj = (%.6f, %.6f)", s.LatDeg(), s.LonDeg())
	}
}

func TestLoadCSVErrors(t *testing.T) {
	tests := map[string]string{
		"bad latitude":  "name,lat,lon\na,x,1\n",
		"bad longitude": "name,lat,lon\na,1,y\n",
		"empty name":    "name,lat,lon\n,1,1\n",
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadCSV(strings.NewReader(input)); err == nil {
				t.Error("expected error")
			}
		})
	}

	d, err := LoadCSV(strings.NewReader(""))
	if err != nil || d.Len() != 0 {
		t.Errorf("empty input: %v, len %d", err, d.Len())
	}
}
