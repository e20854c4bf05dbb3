package storage

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/sdvuuv/spitec/internal/products"
)

func TestLoadObservationsCSV(t *testing.T) {
	input := `site,sat,time,azimuth,elevation,roti,dtec_2_10,dtec_10_20,dtec_20_60,tec
BOR1,g05,2022-06-01T10:00:00Z,90,45,0.1,,0.3,0.4,12.5
bor1,G05,2022-06-01T10:00:30Z,91,46
`
	obs, err := LoadObservationsCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("LoadObservationsCSV failed: %v", err)
	}
	if len(obs) != 2 {
		t.Fatalf("got %d observations, want 2", len(obs))
	}

	first := obs[0]
	if first.Site != "bor1" || first.Satellite != "G05" {
		t.Errorf("names not normalized: %q %q", first.Site, first.Satellite)
	}
	if !first.Time.Equal(time.Date(2022, 6, 1, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("time = %v", first.Time)
	}
	if math.Abs(first.Azimuth-math.Pi/2) > 1e-12 || math.Abs(first.Elevation-math.Pi/4) > 1e-12 {
		t.Errorf("angles not converted to radians: %g %g", first.Azimuth, first.Elevation)
	}
	if first.ROTI != 0.1 || !math.IsNaN(first.DTEC2_10) || first.TEC != 12.5 {
		t.Errorf("products = %+v", first)
	}
	if !math.IsNaN(obs[1].ROTI) || !math.IsNaN(obs[1].TEC) {
		t.Errorf("missing trailing products should be NaN: %+v", obs[1])
	}
}

func TestLoadObservationsCSVErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"short row", "h\nbor1,G05,2022-06-01T10:00:00Z\n"},
		{"bad time", "h\nbor1,G05,yesterday,1,2\n"},
		{"bad azimuth", "h\nbor1,G05,2022-06-01T10:00:00Z,east,2\n"},
		{"bad product", "h\nbor1,G05,2022-06-01T10:00:00Z,1,2,x\n"},
		{"empty site", "h\n,G05,2022-06-01T10:00:00Z,1,2\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadObservationsCSV(strings.NewReader(tt.input)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestNullFloatRoundTrip(t *testing.T) {
	if NullFloat(math.NaN()).Valid {
		t.Error("NaN should map to NULL")
	}
	if !math.IsNaN(FromNull(NullFloat(math.NaN()))) {
		t.Error("NULL should map back to NaN")
	}
	if FromNull(NullFloat(2.5)) != 2.5 {
		t.Error("value lost")
	}
}

func TestObservationValue(t *testing.T) {
	o := Observation{ROTI: 1, DTEC2_10: 2, DTEC10_20: 3, DTEC20_60: 4, TEC: 5, Elevation: 6, Azimuth: 7}
	want := map[products.Product]float64{
		products.ROTI: 1, products.DTEC2_10: 2, products.DTEC10_20: 3,
		products.DTEC20_60: 4, products.TEC: 5, products.Elevation: 6, products.Azimuth: 7,
	}
	for p, v := range want {
		if got := o.Value(p); got != v {
			t.Errorf("Value(%s) = %g, want %g", p, got, v)
		}
	}
	if !math.IsNaN(o.Value("unknown")) {
		t.Error("unknown product should be NaN")
	}
}
