package geodesy

import (
	"fmt"
	"time"

	"github.com/westphae/geomag/pkg/egm96"
	"github.com/westphae/geomag/pkg/wmm"
)

// MagneticDeclination returns the WMM declination in degrees (+East, -West)
// at a geodetic position given in degrees and an altitude in kilometres.
func MagneticDeclination(latDeg, lonDeg, altKm float64, at time.Time) (float64, error) {
	loc := egm96.NewLocationGeodetic(latDeg, lonDeg, altKm*1000)

	mag, err := wmm.CalculateWMMMagneticField(loc, at)
	if err != nil {
		return 0, fmt.Errorf("failed to evaluate magnetic model: %w", err)
	}

	return mag.D(), nil
}
