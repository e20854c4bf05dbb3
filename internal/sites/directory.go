package sites

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/sdvuuv/spitec/internal/geodesy"
)

// ErrSiteNotFound is returned when a station name is not in the directory
var ErrSiteNotFound = errors.New("site not found")

// Station is a ground receiver with its position in radians
type Station struct {
	Name string  `json:"name"`
	Lat  float64 `json:"lat_rad"`
	Lon  float64 `json:"lon_rad"`
}

// LatDeg returns the station latitude in decimal degrees
func (s Station) LatDeg() float64 { return geodesy.Rad2Deg(s.Lat) }

// LonDeg returns the station longitude in decimal degrees
func (s Station) LonDeg() float64 { return geodesy.Rad2Deg(s.Lon) }

// Directory maps station names to positions and keeps the order in which
// stations were added. The index of a station is stable for the lifetime of
// the directory and is what region selections report.
type Directory struct {
	stations []Station
	index    map[string]int
}

// NewDirectory creates a directory from the given stations
func NewDirectory(stations ...Station) *Directory {
	d := &Directory{index: make(map[string]int, len(stations))}
	for _, s := range stations {
		d.Add(s)
	}
	return d
}

// Add inserts a station. A station with an existing name keeps its index and
// has its coordinates replaced.
func (d *Directory) Add(s Station) {
	if d.index == nil {
		d.index = make(map[string]int)
	}
	if i, ok := d.index[s.Name]; ok {
		d.stations[i] = s
		return
	}
	d.index[s.Name] = len(d.stations)
	d.stations = append(d.stations, s)
}

// Get returns a station by name
func (d *Directory) Get(name string) (Station, bool) {
	if d == nil {
		return Station{}, false
	}
	i, ok := d.index[name]
	if !ok {
		return Station{}, false
	}
	return d.stations[i], true
}

// Index returns the directory index of a station, or -1
func (d *Directory) Index(name string) int {
	if d == nil {
		return -1
	}
	if i, ok := d.index[name]; ok {
		return i
	}
	return -1
}

// Len returns the number of stations
func (d *Directory) Len() int {
	if d == nil {
		return 0
	}
	return len(d.stations)
}

// Names returns station names in directory order
func (d *Directory) Names() []string {
	if d == nil {
		return nil
	}
	names := make([]string, len(d.stations))
	for i, s := range d.stations {
		names[i] = s.Name
	}
	return names
}

// Stations returns a copy of the stations in directory order
func (d *Directory) Stations() []Station {
	if d == nil {
		return nil
	}
	out := make([]Station, len(d.stations))
	copy(out, d.stations)
	return out
}

// Each calls fn for every station in directory order
func (d *Directory) Each(fn func(index int, s Station)) {
	if d == nil {
		return
	}
	for i, s := range d.stations {
		fn(i, s)
	}
}

// Distance returns the great-circle distance in km from the named station to
// a point given in radians.
func (d *Directory) Distance(name string, lat, lon float64) (float64, error) {
	s, ok := d.Get(name)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrSiteNotFound, name)
	}
	return geodesy.GreatCircleDistanceKm(s.Lat, s.Lon, lat, lon), nil
}

// LoadCSV reads "name,lat_deg,lon_deg" rows into a new directory. The first
// row is treated as a header.
func LoadCSV(r io.Reader) (*Directory, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	// Skip header
	if _, err := reader.Read(); err != nil {
		if err == io.EOF {
			return NewDirectory(), nil
		}
		return nil, fmt.Errorf("failed to read site header: %w", err)
	}

	d := NewDirectory()
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("failed to read site row %d: %w", line, err)
		}
		if len(record) < 3 {
			return nil, fmt.Errorf("site row %d: expected 3 columns, got %d", line, len(record))
		}

		name := strings.ToLower(strings.TrimSpace(record[0]))
		if name == "" {
			return nil, fmt.Errorf("site row %d: empty name", line)
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(record[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid latitude for %s: %w", name, err)
		}
		lon, err := strconv.ParseFloat(strings.TrimSpace(record[2]), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid longitude for %s: %w", name, err)
		}

		d.Add(Station{Name: name, Lat: geodesy.Deg2Rad(lat), Lon: geodesy.Deg2Rad(lon)})
	}

	return d, nil
}
