// Package storage holds the record types shared by the observation stores.
package storage

import (
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/sdvuuv/spitec/internal/geodesy"
	"github.com/sdvuuv/spitec/internal/products"
)

// ErrSatelliteNotFound is returned when a station has no observations of a satellite
var ErrSatelliteNotFound = errors.New("satellite not found")

// Observation is one epoch of one satellite seen from one station. Angles are
// radians. Product values are NaN when the product was not computed.
type Observation struct {
	Site      string
	Satellite string
	Time      time.Time
	Azimuth   float64
	Elevation float64
	ROTI      float64
	DTEC2_10  float64
	DTEC10_20 float64
	DTEC20_60 float64
	TEC       float64
}

// Value returns the observation's value for a product
func (o Observation) Value(p products.Product) float64 {
	switch p {
	case products.ROTI:
		return o.ROTI
	case products.DTEC2_10:
		return o.DTEC2_10
	case products.DTEC10_20:
		return o.DTEC10_20
	case products.DTEC20_60:
		return o.DTEC20_60
	case products.TEC:
		return o.TEC
	case products.Elevation:
		return o.Elevation
	case products.Azimuth:
		return o.Azimuth
	default:
		return math.NaN()
	}
}

// NullFloat converts NaN to SQL NULL
func NullFloat(v float64) sql.NullFloat64 {
	if math.IsNaN(v) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

// FromNull converts SQL NULL to NaN
func FromNull(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

// LoadObservationsCSV reads rows of
// "site,sat,time,azimuth_deg,elevation_deg,roti,dtec_2_10,dtec_10_20,dtec_20_60,tec".
// The first row is a header. Time is RFC 3339. Empty product cells become NaN.
func LoadObservationsCSV(r io.Reader) ([]Observation, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	if _, err := reader.Read(); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read observation header: %w", err)
	}

	var out []Observation
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("failed to read observation row %d: %w", line, err)
		}
		if len(record) < 5 {
			return nil, fmt.Errorf("observation row %d: expected at least 5 columns, got %d", line, len(record))
		}

		ts, err := time.Parse(time.RFC3339, strings.TrimSpace(record[2]))
		if err != nil {
			return nil, fmt.Errorf("observation row %d: invalid time: %w", line, err)
		}
		az, err := parseRequired(record[3])
		if err != nil {
			return nil, fmt.Errorf("observation row %d: invalid azimuth: %w", line, err)
		}
		el, err := parseRequired(record[4])
		if err != nil {
			return nil, fmt.Errorf("observation row %d: invalid elevation: %w", line, err)
		}

		obs := Observation{
			Site:      strings.ToLower(strings.TrimSpace(record[0])),
			Satellite: strings.ToUpper(strings.TrimSpace(record[1])),
			Time:      ts.UTC(),
			Azimuth:   geodesy.Deg2Rad(az),
			Elevation: geodesy.Deg2Rad(el),
		}
		if obs.Site == "" || obs.Satellite == "" {
			return nil, fmt.Errorf("observation row %d: empty site or satellite", line)
		}

		targets := []*float64{&obs.ROTI, &obs.DTEC2_10, &obs.DTEC10_20, &obs.DTEC20_60, &obs.TEC}
		for i, target := range targets {
			col := 5 + i
			if col >= len(record) {
				*target = math.NaN()
				continue
			}
			if *target, err = parseOptional(record[col]); err != nil {
				return nil, fmt.Errorf("observation row %d column %d: %w", line, col+1, err)
			}
		}

		out = append(out, obs)
	}

	return out, nil
}

func parseRequired(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

func parseOptional(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "nan") {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}
