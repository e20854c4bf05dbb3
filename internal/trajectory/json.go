package trajectory

import (
	"encoding/json"
	"math"
	"time"
)

// trajectoryJSON is the wire form; break entries become null
type trajectoryJSON struct {
	Site          string      `json:"site"`
	Satellite     string      `json:"satellite"`
	ShellHeightKm float64     `json:"shell_height_km"`
	SatExists     bool        `json:"sat_exists"`
	Times         []time.Time `json:"times"`
	Lat           []*float64  `json:"lat"`
	Lon           []*float64  `json:"lon"`
	Breaks        int         `json:"breaks"`
}

// MarshalJSON encodes the trajectory with null in place of NaN
func (t *Trajectory) MarshalJSON() ([]byte, error) {
	return json.Marshal(trajectoryJSON{
		Site:          t.Site,
		Satellite:     t.Satellite,
		ShellHeightKm: t.ShellHeightKm,
		SatExists:     t.SatExists,
		Times:         nonNilTimes(t.Times),
		Lat:           Nullable(t.Lat),
		Lon:           Nullable(t.Lon),
		Breaks:        t.Breaks,
	})
}

// UnmarshalJSON decodes the wire form, restoring null entries as NaN
func (t *Trajectory) UnmarshalJSON(data []byte) error {
	var raw trajectoryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*t = Trajectory{
		Site:          raw.Site,
		Satellite:     raw.Satellite,
		ShellHeightKm: raw.ShellHeightKm,
		SatExists:     raw.SatExists,
		Times:         raw.Times,
		Lat:           fromNullable(raw.Lat),
		Lon:           fromNullable(raw.Lon),
		Breaks:        raw.Breaks,
	}
	return nil
}

// Nullable converts NaN entries to nil pointers for JSON output
func Nullable(values []float64) []*float64 {
	out := make([]*float64, len(values))
	for i := range values {
		if !math.IsNaN(values[i]) {
			v := values[i]
			out[i] = &v
		}
	}
	return out
}

func fromNullable(values []*float64) []float64 {
	if values == nil {
		return nil
	}
	out := make([]float64, len(values))
	for i, v := range values {
		if v == nil {
			out[i] = math.NaN()
		} else {
			out[i] = *v
		}
	}
	return out
}

func nonNilTimes(times []time.Time) []time.Time {
	if times == nil {
		return []time.Time{}
	}
	return times
}
