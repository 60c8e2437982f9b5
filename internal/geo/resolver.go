// Package geo resolves GPS coordinates to IANA timezone names and
// historical UTC offsets. The zone database is embedded via
// time/tzdata so offsets resolve on hosts without /usr/share/zoneinfo.
package geo

import (
	"errors"
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/ringsaturn/tzf"
)

// ErrUnresolved means no timezone is known for a coordinate pair.
// Callers fall back to UTC; this never aborts an entry.
var ErrUnresolved = errors.New("timezone resolution failed")

// Resolver maps a coordinate pair to an IANA timezone identifier.
type Resolver interface {
	Resolve(lat, lon float64) (string, error)
}

// TZResolver resolves in-process from tzf's embedded polygon data.
type TZResolver struct {
	finder tzf.F
}

func NewResolver() (*TZResolver, error) {
	finder, err := tzf.NewDefaultFinder()
	if err != nil {
		return nil, fmt.Errorf("load timezone data: %w", err)
	}
	return &TZResolver{finder: finder}, nil
}

func (r *TZResolver) Resolve(lat, lon float64) (string, error) {
	name := r.finder.GetTimezoneName(lon, lat)
	if name == "" {
		return "", fmt.Errorf("%w: no zone for (%.6f, %.6f)", ErrUnresolved, lat, lon)
	}
	return name, nil
}

// Localize converts a UTC instant into the named zone and returns the
// local time plus the "+07:00"-style offset in effect at that instant
// (daylight-saving rules apply as of the capture date, not today).
func Localize(zone string, utc time.Time) (time.Time, string, error) {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return utc, "", fmt.Errorf("%w: unknown zone %q: %v", ErrUnresolved, zone, err)
	}
	local := utc.In(loc)
	return local, local.Format("-07:00"), nil
}
