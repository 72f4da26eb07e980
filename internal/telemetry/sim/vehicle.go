package sim

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/roman-kulish/drone-uplink/internal/telemetry"
)

const (
	// Home position of the PX4 SITL default world.
	defaultLatitude  = 47.397742
	defaultLongitude = 8.545594

	defaultRadius   = 50.0 // meters
	defaultSpeed    = 5.0  // m/s
	defaultAltitude = 30.0 // meters
	defaultFixDelay = 3    // samples without position

	metersPerDegree = 111_320.0
)

// WithFixDelay sets the number of samples returned before the simulated GPS
// acquires a position.
func WithFixDelay(samples int) func(*Vehicle) {
	return func(v *Vehicle) {
		v.fixDelay = samples
	}
}

// WithOrbit sets the orbit radius in meters and the ground speed in m/s.
func WithOrbit(radius, speed float64) func(*Vehicle) {
	return func(v *Vehicle) {
		v.radius = radius
		v.speed = speed
	}
}

// WithClock sets the time source used for positions and timestamps.
func WithClock(now func() time.Time) func(*Vehicle) {
	return func(v *Vehicle) {
		v.now = now
	}
}

// Vehicle is a simulated flight controller orbiting a centre point at a
// constant altitude and speed.
type Vehicle struct {
	latitude  float64
	longitude float64
	altitude  float64
	radius    float64
	speed     float64

	fixDelay int
	samples  int

	now     func() time.Time
	started time.Time
	closed  atomic.Bool
}

// New creates a simulated vehicle from a "sim:" target. The address part may
// carry the orbit centre as "lat,lon".
func New(target string, options ...func(*Vehicle)) (*Vehicle, error) {
	t, err := telemetry.ParseTarget(target)
	if err != nil {
		return nil, err
	}
	if t.Scheme != telemetry.SchemeSim {
		return nil, fmt.Errorf("not a simulator target: %s", target)
	}

	v := Vehicle{
		latitude:  defaultLatitude,
		longitude: defaultLongitude,
		altitude:  defaultAltitude,
		radius:    defaultRadius,
		speed:     defaultSpeed,
		fixDelay:  defaultFixDelay,
		now:       time.Now,
	}

	if t.Address != "" {
		if v.latitude, v.longitude, err = parseCentre(t.Address); err != nil {
			return nil, err
		}
	}

	for _, option := range options {
		option(&v)
	}

	v.started = v.now()
	return &v, nil
}

// NewConnector returns a Connector producing simulated vehicles.
func NewConnector(options ...func(*Vehicle)) telemetry.Connector {
	return telemetry.ConnectorFunc(func(ctx context.Context, target string, _ time.Duration) (telemetry.Source, error) {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", telemetry.ErrConnect, err)
		}

		v, err := New(target, options...)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", telemetry.ErrConnect, err)
		}
		return v, nil
	})
}

func (v *Vehicle) Sample() (telemetry.Reading, bool) {
	if v.closed.Load() {
		return telemetry.Reading{}, false
	}

	v.samples++
	if v.samples <= v.fixDelay {
		return telemetry.Reading{}, false
	}

	now := v.now()
	theta := v.speed / v.radius * now.Sub(v.started).Seconds()

	lat := v.latitude + v.radius*math.Cos(theta)/metersPerDegree
	lon := v.longitude + v.radius*math.Sin(theta)/(metersPerDegree*math.Cos(v.latitude*math.Pi/180))
	heading := math.Mod(theta*180/math.Pi+90, 360)
	satellites, fixType := 12, 3

	return telemetry.Fix{
		Latitude:       &lat,
		Longitude:      &lon,
		Altitude:       &v.altitude,
		Heading:        &heading,
		GroundSpeed:    &v.speed,
		SatelliteCount: &satellites,
		FixType:        &fixType,
	}.Reading(now)
}

func (v *Vehicle) IsAlive() bool {
	return !v.closed.Load()
}

func (v *Vehicle) Close() error {
	v.closed.Store(true)
	return nil
}

func parseCentre(s string) (lat, lon float64, err error) {
	latStr, lonStr, ok := strings.Cut(s, ",")
	if !ok {
		return 0, 0, fmt.Errorf("invalid simulator centre '%s', expected lat,lon", s)
	}

	if lat, err = strconv.ParseFloat(strings.TrimSpace(latStr), 64); err != nil || lat < -90 || lat > 90 {
		return 0, 0, fmt.Errorf("invalid simulator latitude '%s'", latStr)
	}
	if lon, err = strconv.ParseFloat(strings.TrimSpace(lonStr), 64); err != nil || lon < -180 || lon > 180 {
		return 0, 0, fmt.Errorf("invalid simulator longitude '%s'", lonStr)
	}
	return lat, lon, nil
}
