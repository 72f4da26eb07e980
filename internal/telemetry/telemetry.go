package telemetry

import (
	"time"
)

// Fix accumulates the latest known vehicle state as reported by the flight
// controller. A nil field is unknown.
type Fix struct {
	Latitude       *float64 // GPS latitude in degrees
	Longitude      *float64 // GPS longitude in degrees
	Altitude       *float64 // Altitude relative to home in meters
	Heading        *float64 // Heading in degrees, 0..359
	GroundSpeed    *float64 // Ground speed in m/s
	SatelliteCount *int     // Visible satellites
	FixType        *int     // GPS fix type, 0: no GPS, 1: no fix, 2: 2D, 3: 3D, ...
}

// Reading resolves the fix into a Reading taken at ts. It returns false when
// either latitude or longitude is still unknown.
func (f Fix) Reading(ts time.Time) (Reading, bool) {
	if f.Latitude == nil || f.Longitude == nil {
		return Reading{}, false
	}

	return Reading{
		Timestamp:      ts.UTC(),
		Latitude:       *f.Latitude,
		Longitude:      *f.Longitude,
		Altitude:       valueOrZero(f.Altitude),
		Heading:        valueOrZero(f.Heading),
		GroundSpeed:    valueOrZero(f.GroundSpeed),
		SatelliteCount: valueOrZero(f.SatelliteCount),
		FixType:        valueOrZero(f.FixType),
	}, true
}

// Reading is a position snapshot of the vehicle. Fields that were unknown at
// sampling time are zero.
type Reading struct {
	Timestamp      time.Time `json:"timestamp"`      // UTC time of the sample
	Latitude       float64   `json:"latitude"`       // GPS latitude in degrees
	Longitude      float64   `json:"longitude"`      // GPS longitude in degrees
	Altitude       float64   `json:"altitude"`       // Altitude relative to home in meters
	Heading        float64   `json:"heading"`        // Heading in degrees
	GroundSpeed    float64   `json:"groundSpeed"`    // Ground speed in m/s
	SatelliteCount int       `json:"satelliteCount"` // Visible satellites
	FixType        int       `json:"fixType"`        // GPS fix type
}

func valueOrZero[T float64 | int](v *T) T {
	if v == nil {
		var zero T
		return zero
	}
	return *v
}
