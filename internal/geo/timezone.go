package geo

import (
	"github.com/ringsaturn/tzf"
)

// TimezoneFinder resolves IANA zone names from coordinates without any
// network call, so saving a station never blocks on a timezone lookup.
type TimezoneFinder struct {
	finder tzf.F
}

// NewTimezoneFinder loads the embedded timezone shape index.
func NewTimezoneFinder() (*TimezoneFinder, error) {
	f, err := tzf.NewDefaultFinder()
	if err != nil {
		return nil, err
	}
	return &TimezoneFinder{finder: f}, nil
}

// TimezoneName returns the IANA zone id containing the coordinate, or ""
// when the point is outside every zone polygon.
func (t *TimezoneFinder) TimezoneName(lat, lon float64) string {
	return t.finder.GetTimezoneName(lon, lat)
}
