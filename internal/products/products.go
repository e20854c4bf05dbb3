// Package products describes the per-satellite data products stored with each
// observation and prepares them for a stacked time-series plot.
package products

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"
)

// Product identifies a stored data product
type Product string

// Known products
const (
	ROTI      Product = "roti"
	DTEC2_10  Product = "dtec_2_10"
	DTEC10_20 Product = "dtec_10_20"
	DTEC20_60 Product = "dtec_20_60"
	TEC       Product = "tec"
	Elevation Product = "elevation"
	Azimuth   Product = "azimuth"
)

// Default is used when a requested product is unknown
const Default = DTEC2_10

// DefaultShift is the vertical spacing between stacked series
const DefaultShift = -0.5

var longNames = map[Product]string{
	ROTI:      "ROTI",
	DTEC2_10:  "2-10 minute TEC variations",
	DTEC10_20: "10-20 minute TEC variations",
	DTEC20_60: "20-60 minute TEC variations",
	TEC:       "Vertical TEC adjusted using GIM",
	Elevation: "Elevation angle",
	Azimuth:   "Azimuth angle",
}

// All lists products in display order
var All = []Product{ROTI, DTEC2_10, DTEC10_20, DTEC20_60, TEC, Elevation, Azimuth}

// Parse maps a name to a product, falling back to Default
func Parse(name string) Product {
	p := Product(name)
	if _, ok := longNames[p]; ok {
		return p
	}
	return Default
}

// LongName returns the human-readable product description
func (p Product) LongName() string {
	if name, ok := longNames[p]; ok {
		return name
	}
	return string(p)
}

// Column returns the storage column holding the product
func (p Product) Column() (string, error) {
	if _, ok := longNames[p]; !ok {
		return "", fmt.Errorf("unknown product: %s", p)
	}
	return string(p), nil
}

// Series is one station's product values for one satellite
type Series struct {
	Site        string      `json:"site"`
	Satellite   string      `json:"satellite"`
	Product     Product     `json:"product"`
	Times       []time.Time `json:"times"`
	Values      []float64   `json:"values"`
	Offset      float64     `json:"offset"`
	Placeholder bool        `json:"placeholder"` // Site has no data for the satellite; drawn as a flat line
}

// Stack offsets series i by shift*(i+1) so stations are drawn one under
// another. A zero shift uses DefaultShift. Placeholder series are flattened
// to their offset. The input is not modified.
func Stack(series []Series, shift float64) []Series {
	if shift == 0 {
		shift = DefaultShift
	}

	out := make([]Series, len(series))
	for i, s := range series {
		offset := shift * float64(i+1)
		values := make([]float64, len(s.Values))
		for j, v := range s.Values {
			if s.Placeholder {
				values[j] = offset
			} else {
				values[j] = v + offset
			}
		}
		s.Values = values
		s.Offset = offset
		out[i] = s
	}
	return out
}

// Between returns the part of the series with times in [start, end].
// Times are assumed sorted.
func (s Series) Between(start, end time.Time) Series {
	lo := sort.Search(len(s.Times), func(i int) bool { return !s.Times[i].Before(start) })
	hi := sort.Search(len(s.Times), func(i int) bool { return s.Times[i].After(end) })
	if hi < lo {
		hi = lo
	}
	s.Times = s.Times[lo:hi]
	if len(s.Values) >= hi {
		s.Values = s.Values[lo:hi]
	}
	return s
}

// HourWindow converts an hour range from a 0-24 slider into a UTC window on
// the given day. Hour 24 means 23:59:59.
func HourWindow(day time.Time, startHour, endHour int) (time.Time, time.Time, error) {
	if startHour < 0 || startHour > 24 || endHour < 0 || endHour > 24 {
		return time.Time{}, time.Time{}, fmt.Errorf("hours must be within [0, 24]: got %d-%d", startHour, endHour)
	}
	if startHour > endHour {
		return time.Time{}, time.Time{}, fmt.Errorf("start hour %d after end hour %d", startHour, endHour)
	}
	return hourOfDay(day, startHour), hourOfDay(day, endHour), nil
}

func hourOfDay(day time.Time, hour int) time.Time {
	d := day.UTC()
	if hour == 24 {
		return time.Date(d.Year(), d.Month(), d.Day(), 23, 59, 59, 0, time.UTC)
	}
	return time.Date(d.Year(), d.Month(), d.Day(), hour, 0, 0, 0, time.UTC)
}

// MarshalJSON encodes the series with null in place of NaN values
func (s Series) MarshalJSON() ([]byte, error) {
	type plain Series
	values := make([]*float64, len(s.Values))
	for i := range s.Values {
		if !math.IsNaN(s.Values[i]) {
			v := s.Values[i]
			values[i] = &v
		}
	}
	return json.Marshal(struct {
		plain
		Values []*float64 `json:"values"`
	}{plain: plain(s), Values: values})
}
