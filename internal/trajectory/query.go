package trajectory

import (
	"sort"
	"time"
)

// Lookup is the result of a timestamp search. Index is -1 when Found is false.
type Lookup struct {
	Index int
	Found bool
	Exact bool
}

var notFound = Lookup{Index: -1}

// FindTimeIndex locates target in the trajectory times. An exact match
// returns the first entry with that timestamp. Otherwise preferLater selects
// the earliest entry after target and !preferLater the latest entry before it.
func (t *Trajectory) FindTimeIndex(target time.Time, preferLater bool) Lookup {
	n := t.Len()
	if n == 0 {
		return notFound
	}

	// First entry not before target
	i := sort.Search(n, func(k int) bool { return !t.Times[k].Before(target) })

	if i < n && t.Times[i].Equal(target) {
		return Lookup{Index: i, Found: true, Exact: true}
	}
	if preferLater {
		if i == n {
			return notFound
		}
		return Lookup{Index: i, Found: true}
	}
	if i == 0 {
		return notFound
	}
	return Lookup{Index: i - 1, Found: true}
}

// Window is an inclusive index range into a trajectory. Either bound is -1
// when no usable entry exists.
type Window struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// NoWindow is the window of a trajectory with nothing to show
var NoWindow = Window{Start: -1, End: -1}

// Valid reports whether the window holds at least two entries to draw
func (w Window) Valid() bool {
	return w.Start != -1 && w.End != -1 && w.Start < w.End
}

// Contains reports whether index i lies inside a valid window
func (w Window) Contains(i int) bool {
	return w.Valid() && w.Start <= i && i <= w.End
}

// Full returns the window spanning the whole trajectory. Leading and trailing
// NaN entries are stepped over the same way Clip steps over a break group.
func (t *Trajectory) Full() Window {
	n := t.Len()
	if n == 0 {
		return NoWindow
	}
	return t.adjust(Window{Start: 0, End: n - 1})
}

// Clip resolves [start, end] to the first entry at or after start and the
// last entry at or before end. A bound that lands inside a break group is
// moved out of the group: forward for the start, backward for the end. For
// a bound on the outer edge of a group this is a step of exactly
// BreakGroupSize. The trajectory itself is not modified.
func (t *Trajectory) Clip(start, end time.Time) Window {
	if t.Len() == 0 || end.Before(start) {
		return NoWindow
	}

	return t.adjust(Window{
		Start: t.FindTimeIndex(start, true).Index,
		End:   t.FindTimeIndex(end, false).Index,
	})
}

// adjust moves bounds that sit on gap entries inward and normalises an
// unusable result to NoWindow.
func (t *Trajectory) adjust(w Window) Window {
	if w.Start != -1 && t.IsGap(w.Start) {
		w.Start = t.skipBreak(w.Start, 1)
	}
	if w.End != -1 && t.IsGap(w.End) {
		w.End = t.skipBreak(w.End, -1)
	}
	if !w.Valid() {
		return NoWindow
	}
	return w
}

// skipBreak walks from a gap entry in direction dir until it leaves the
// group. It takes at most BreakGroupSize steps and returns -1 if that does not
// reach a positioned entry. From the outer edge of a group this is the fixed
// BreakGroupSize step; from the middle or far entry it stops at the first
// positioned entry instead of overshooting into real data.
func (t *Trajectory) skipBreak(i, dir int) int {
	for step := 0; step < BreakGroupSize; step++ {
		i += dir
		if i < 0 || i >= t.Len() {
			return -1
		}
		if !t.IsGap(i) {
			return i
		}
	}
	return -1
}

// Point is a positioned trajectory entry
type Point struct {
	Index int       `json:"index"`
	Time  time.Time `json:"time"`
	Lat   float64   `json:"lat"`
	Lon   float64   `json:"lon"`
}

// TagPosition returns the entry recorded exactly at target. When w is valid
// the entry must also fall inside it. Break entries never qualify.
func (t *Trajectory) TagPosition(target time.Time, w Window) (Point, bool) {
	lookup := t.FindTimeIndex(target, true)
	if !lookup.Exact {
		return Point{}, false
	}
	i := lookup.Index
	if t.IsGap(i) {
		return Point{}, false
	}
	if w.Start != -1 && w.End != -1 && (i < w.Start || i > w.End) {
		return Point{}, false
	}
	return Point{Index: i, Time: t.Times[i], Lat: t.Lat[i], Lon: t.Lon[i]}, true
}

// Segment returns the entries inside w, break entries included. The slices
// share storage with the trajectory and must not be modified.
func (t *Trajectory) Segment(w Window) ([]time.Time, []float64, []float64) {
	if !w.Valid() || w.End >= t.Len() {
		return nil, nil, nil
	}
	return t.Times[w.Start : w.End+1], t.Lat[w.Start : w.End+1], t.Lon[w.Start : w.End+1]
}

// Endpoint returns the last positioned entry inside w, used to mark where the
// satellite is at the end of the window
func (t *Trajectory) Endpoint(w Window) (Point, bool) {
	if !w.Valid() || w.End >= t.Len() || t.IsGap(w.End) {
		return Point{}, false
	}
	return Point{Index: w.End, Time: t.Times[w.End], Lat: t.Lat[w.End], Lon: t.Lon[w.End]}, true
}
