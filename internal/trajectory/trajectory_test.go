package trajectory

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/sdvuuv/spitec/internal/geodesy"
	"github.com/sdvuuv/spitec/internal/sites"
)

var t0 = time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)

func minutes(m float64) time.Time {
	return t0.Add(time.Duration(m * float64(time.Minute)))
}

func samplesAt(offsets ...float64) []AngleSample {
	out := make([]AngleSample, len(offsets))
	for i, m := range offsets {
		out[i] = AngleSample{Time: minutes(m), Azimuth: 0.1 * float64(i), Elevation: 0.6}
	}
	return out
}

var origin = sites.Station{Name: "test", Lat: 0, Lon: 0}

// Two runs of six one-minute samples separated by a 15 minute outage.
// Indices 0-5 real, 6-8 break (12, 12.5, 13 min), 9-14 real (20-25 min).
func splitTrajectory() *Trajectory {
	return Build(origin, "G01", samplesAt(0, 1, 2, 3, 4, 5, 20, 21, 22, 23, 24, 25), 300, DefaultOptions())
}

func TestBuildNoSamples(t *testing.T) {
	tr := Build(origin, "G05", nil, 300, DefaultOptions())
	if tr.SatExists {
		t.Error("SatExists should be false without samples")
	}
	if tr.Len() != 0 || len(tr.Lat) != 0 || len(tr.Lon) != 0 {
		t.Errorf("expected empty trajectory, got len %d", tr.Len())
	}
	if got := tr.FindTimeIndex(t0, true); got.Found || got.Index != -1 {
		t.Errorf("FindTimeIndex on empty = %+v", got)
	}
	if w := tr.Clip(t0, minutes(60)); w.Valid() || w != NoWindow {
		t.Errorf("Clip on empty = %+v", w)
	}
	if _, ok := tr.TagPosition(t0, NoWindow); ok {
		t.Error("TagPosition on empty should fail")
	}
}

func TestBuildOverheadProjectsOntoSite(t *testing.T) {
	station := sites.Station{Name: "s", Lat: 0.5, Lon: -1.2}
	samples := []AngleSample{
		{Time: minutes(0), Azimuth: 0, Elevation: math.Pi / 2},
		{Time: minutes(1), Azimuth: 2.5, Elevation: math.Pi / 2},
	}

	tr := Build(station, "R07", samples, 300, DefaultOptions())
	if !tr.SatExists || tr.Len() != 2 {
		t.Fatalf("unexpected trajectory: exists=%v len=%d", tr.SatExists, tr.Len())
	}
	for i := 0; i < tr.Len(); i++ {
		if math.Abs(tr.Lat[i]-geodesy.Rad2Deg(0.5)) > 1e-6 || math.Abs(tr.Lon[i]-geodesy.Rad2Deg(-1.2)) > 1e-6 {
			t.Errorf("entry %d = (%.6f, %.6f), want site position in degrees", i, tr.Lat[i], tr.Lon[i])
		}
	}
}

func TestBuildScenarioSingleGap(t *testing.T) {
	tr := Build(origin, "G01", samplesAt(0, 5, 20), 300, DefaultOptions())

	if tr.Len() != 6 || len(tr.Lat) != 6 || len(tr.Lon) != 6 {
		t.Fatalf("len = %d/%d/%d, want 6", len(tr.Times), len(tr.Lat), len(tr.Lon))
	}
	if tr.Breaks != 1 {
		t.Errorf("Breaks = %d, want 1", tr.Breaks)
	}
	for i, wantGap := range []bool{false, false, true, true, true, false} {
		if tr.IsGap(i) != wantGap {
			t.Errorf("entry %d gap = %v, want %v", i, tr.IsGap(i), wantGap)
		}
	}

	wantTimes := []time.Time{minutes(0), minutes(5), minutes(12), minutes(12.5), minutes(13), minutes(20)}
	for i, want := range wantTimes {
		if !tr.Times[i].Equal(want) {
			t.Errorf("time %d = %s, want %s", i, tr.Times[i].Format(time.TimeOnly), want.Format(time.TimeOnly))
		}
	}
}

func TestInsertArtificialBreaksCardinality(t *testing.T) {
	tests := []struct {
		name    string
		offsets []float64
		groups  int
	}{
		{"regular cadence", []float64{0, 0.5, 1, 1.5, 2}, 0},
		{"gap equal to threshold", []float64{0, 10}, 0},
		{"one gap", []float64{0, 1, 30, 31}, 1},
		{"two gaps", []float64{0, 15, 16, 60}, 2},
		{"single sample", []float64{7}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := Build(origin, "G02", samplesAt(tt.offsets...), 300, DefaultOptions())
			want := len(tt.offsets) + tt.groups*BreakGroupSize
			if tr.Len() != want {
				t.Errorf("len = %d, want %d", tr.Len(), want)
			}
			if tr.Breaks != tt.groups {
				t.Errorf("Breaks = %d, want %d", tr.Breaks, tt.groups)
			}
			if tr.IsGap(0) {
				t.Error("first entry must carry a position")
			}
			for i := 1; i < tr.Len(); i++ {
				if tr.Times[i].Before(tr.Times[i-1]) {
					t.Errorf("times not monotonic at %d", i)
				}
			}
		})
	}
}

func TestInsertArtificialBreaksKeepsInput(t *testing.T) {
	tr := &Trajectory{
		SatExists: true,
		Times:     []time.Time{minutes(0), minutes(60)},
		Lat:       []float64{1, 2},
		Lon:       []float64{3, 4},
	}

	out := InsertArtificialBreaks(tr, Options{GapThreshold: 5 * time.Minute, BreakOffset: time.Minute})
	if tr.Len() != 2 {
		t.Errorf("input modified: len %d", tr.Len())
	}
	if out.Len() != 5 {
		t.Fatalf("output len = %d, want 5", out.Len())
	}
	if !out.Times[1].Equal(minutes(29)) || !out.Times[2].Equal(minutes(30)) || !out.Times[3].Equal(minutes(31)) {
		t.Errorf("break times = %v", out.Times[1:4])
	}
}

func TestBuildSortsUnorderedSamples(t *testing.T) {
	samples := samplesAt(2, 0, 1)
	tr := Build(origin, "E11", samples, 300, DefaultOptions())

	for i := 1; i < tr.Len(); i++ {
		if !tr.Times[i].After(tr.Times[i-1]) {
			t.Fatalf("times not sorted: %v", tr.Times)
		}
	}
	if !samples[0].Time.Equal(minutes(2)) {
		t.Error("caller's slice was reordered")
	}
}

func TestFindTimeIndex(t *testing.T) {
	tr := &Trajectory{
		SatExists: true,
		Times:     []time.Time{minutes(0), minutes(1), minutes(1), minutes(3)},
		Lat:       []float64{0, 0, 0, 0},
		Lon:       []float64{0, 0, 0, 0},
	}

	tests := []struct {
		name        string
		target      time.Time
		preferLater bool
		want        Lookup
	}{
		{"exact first", minutes(0), true, Lookup{Index: 0, Found: true, Exact: true}},
		{"exact duplicate picks first", minutes(1), false, Lookup{Index: 1, Found: true, Exact: true}},
		{"exact duplicate picks first later", minutes(1), true, Lookup{Index: 1, Found: true, Exact: true}},
		{"between prefer later", minutes(2), true, Lookup{Index: 3, Found: true}},
		{"between prefer earlier", minutes(2), false, Lookup{Index: 2, Found: true}},
		{"before start prefer later", minutes(-1), true, Lookup{Index: 0, Found: true}},
		{"before start prefer earlier", minutes(-1), false, notFound},
		{"after end prefer later", minutes(5), true, notFound},
		{"after end prefer earlier", minutes(5), false, Lookup{Index: 3, Found: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tr.FindTimeIndex(tt.target, tt.preferLater); got != tt.want {
				t.Errorf("FindTimeIndex = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestClip(t *testing.T) {
	tr := splitTrajectory()
	if tr.Len() != 15 {
		t.Fatalf("fixture len = %d, want 15", tr.Len())
	}

	tests := []struct {
		name       string
		start, end time.Time
		want       Window
	}{
		{"whole day", minutes(-60), minutes(600), Window{Start: 0, End: 14}},
		{"exact bounds", minutes(1), minutes(4), Window{Start: 1, End: 4}},
		{"between samples", minutes(1.5), minutes(3.5), Window{Start: 2, End: 3}},
		{"start on leading break edge", minutes(6), minutes(22), Window{Start: 6 + BreakGroupSize, End: 11}},
		{"end on trailing break edge", minutes(0), minutes(15), Window{Start: 0, End: 8 - BreakGroupSize}},
		{"start inside break group", minutes(12.2), minutes(25), Window{Start: 9, End: 14}},
		{"end inside break group", minutes(2), minutes(12.7), Window{Start: 2, End: 5}},
		{"window inside the outage", minutes(6), minutes(19), NoWindow},
		{"single entry", minutes(3), minutes(3), NoWindow},
		{"after data", minutes(30), minutes(40), NoWindow},
		{"before data", minutes(-20), minutes(-10), NoWindow},
		{"reversed", minutes(10), minutes(1), NoWindow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tr.Clip(tt.start, tt.end)
			if got != tt.want {
				t.Errorf("Clip = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestClipWindowInvariantAndIdempotence(t *testing.T) {
	tr := splitTrajectory()

	for s := -2.0; s <= 27; s += 0.25 {
		for e := s; e <= 27; e += 0.25 {
			w := tr.Clip(minutes(s), minutes(e))
			if w.Valid() {
				if tr.IsGap(w.Start) || tr.IsGap(w.End) {
					t.Fatalf("window %+v for [%.2f, %.2f] ends on a break entry", w, s, e)
				}
			} else if w != NoWindow {
				t.Fatalf("invalid window not normalised: %+v", w)
			}
			if again := tr.Clip(minutes(s), minutes(e)); again != w {
				t.Fatalf("Clip not idempotent: %+v then %+v", w, again)
			}
		}
	}
}

func TestFull(t *testing.T) {
	nan := math.NaN()
	at := func(n int) []time.Time {
		out := make([]time.Time, n)
		for i := range out {
			out[i] = minutes(float64(i))
		}
		return out
	}

	tests := []struct {
		name string
		tr   *Trajectory
		want Window
	}{
		{"split trace", splitTrajectory(), Window{Start: 0, End: 14}},
		{"empty", &Trajectory{}, NoWindow},
		{"single entry", &Trajectory{Times: at(1), Lat: []float64{1}, Lon: []float64{1}}, NoWindow},
		{"degenerate ends", &Trajectory{
			Times: at(5),
			Lat:   []float64{nan, 1, 2, 3, nan},
			Lon:   []float64{nan, 1, 2, 3, nan},
		}, Window{Start: 1, End: 3}},
		{"nothing positioned", &Trajectory{
			Times: at(3),
			Lat:   []float64{nan, 1, nan},
			Lon:   []float64{nan, 1, nan},
		}, NoWindow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := tt.tr.Full()
			if w != tt.want {
				t.Fatalf("Full = %+v, want %+v", w, tt.want)
			}
			if w.Valid() && (tt.tr.IsGap(w.Start) || tt.tr.IsGap(w.End)) {
				t.Errorf("window %+v ends on a gap entry", w)
			}
		})
	}
}

func TestTagPosition(t *testing.T) {
	tr := splitTrajectory()
	full := tr.Full()

	p, ok := tr.TagPosition(minutes(2), full)
	if !ok || p.Index != 2 || p.Lat != tr.Lat[2] || p.Lon != tr.Lon[2] {
		t.Errorf("TagPosition = %+v, %v", p, ok)
	}

	if _, ok := tr.TagPosition(minutes(2.5), full); ok {
		t.Error("non-exact time should not produce a tag")
	}
	if _, ok := tr.TagPosition(minutes(12.5), full); ok {
		t.Error("break entry should not produce a tag")
	}
	if _, ok := tr.TagPosition(minutes(2), Window{Start: 9, End: 14}); ok {
		t.Error("tag outside the window should be omitted")
	}
	if _, ok := tr.TagPosition(minutes(22), NoWindow); !ok {
		t.Error("without a window any exact time should be tagged")
	}
}

func TestSegmentAndEndpoint(t *testing.T) {
	tr := splitTrajectory()
	w := tr.Clip(minutes(4), minutes(21))

	times, lat, lon := tr.Segment(w)
	if len(times) != w.End-w.Start+1 || len(lat) != len(times) || len(lon) != len(times) {
		t.Fatalf("segment lengths %d/%d/%d for %+v", len(times), len(lat), len(lon), w)
	}
	end, ok := tr.Endpoint(w)
	if !ok || !end.Time.Equal(minutes(21)) {
		t.Errorf("Endpoint = %+v, %v", end, ok)
	}

	if ts, _, _ := tr.Segment(NoWindow); ts != nil {
		t.Error("segment of an invalid window should be empty")
	}
	if _, ok := tr.Endpoint(NoWindow); ok {
		t.Error("endpoint of an invalid window should not exist")
	}
}

func TestTrajectoryJSON(t *testing.T) {
	tr := Build(origin, "G01", samplesAt(0, 5, 20), 300, DefaultOptions())

	data, err := json.Marshal(tr)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), "null") {
		t.Errorf("break entries should encode as null: %s", data)
	}

	var back Trajectory
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Len() != tr.Len() || !back.IsGap(3) || back.IsGap(0) {
		t.Errorf("round trip lost break entries: %+v", back)
	}

	empty, err := json.Marshal(Build(origin, "G09", nil, 300, DefaultOptions()))
	if err != nil {
		t.Fatalf("marshal empty: %v", err)
	}
	if !strings.Contains(string(empty), `"sat_exists":false`) {
		t.Errorf("empty trajectory JSON = %s", empty)
	}
}
