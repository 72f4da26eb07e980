package sim

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/drone-uplink/internal/telemetry"
)

func TestVehicle_FixDelay(t *testing.T) {
	v, err := New("sim:", WithFixDelay(3))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, ok := v.Sample()
		assert.False(t, ok, "sample %d", i)
	}

	r, ok := v.Sample()
	require.True(t, ok)
	assert.InDelta(t, defaultLatitude, r.Latitude, 0.001)
	assert.InDelta(t, defaultLongitude, r.Longitude, 0.001)
	assert.Equal(t, defaultAltitude, r.Altitude)
	assert.Equal(t, 12, r.SatelliteCount)
	assert.Equal(t, 3, r.FixType)
}

func TestVehicle_Orbit(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	v, err := New("sim:-33.8688,151.2093",
		WithFixDelay(0),
		WithOrbit(100, 10),
		WithClock(func() time.Time { return now }),
	)
	require.NoError(t, err)

	first, ok := v.Sample()
	require.True(t, ok)
	assert.InDelta(t, -33.8688+100/metersPerDegree, first.Latitude, 1e-9)
	assert.InDelta(t, 151.2093, first.Longitude, 1e-9)
	assert.InDelta(t, 90, first.Heading, 1e-9)

	now = now.Add(5 * time.Second)
	second, ok := v.Sample()
	require.True(t, ok)
	assert.NotEqual(t, first.Latitude, second.Latitude)
	assert.Equal(t, 10.0, second.GroundSpeed)
	assert.Equal(t, now, second.Timestamp)
}

func TestVehicle_Close(t *testing.T) {
	v, err := New("sim", WithFixDelay(0))
	require.NoError(t, err)
	assert.True(t, v.IsAlive())

	require.NoError(t, v.Close())
	require.NoError(t, v.Close())

	assert.False(t, v.IsAlive())
	_, ok := v.Sample()
	assert.False(t, ok)
}

func TestNew_InvalidTargets(t *testing.T) {
	for _, target := range []string{"/dev/ttyACM0", "sim:91,0", "sim:10", "sim:a,b"} {
		_, err := New(target)
		assert.Error(t, err, target)
	}
}

func TestNewConnector(t *testing.T) {
	c := NewConnector(WithFixDelay(0))

	src, err := c.Connect(context.Background(), "sim:", time.Second)
	require.NoError(t, err)
	_, ok := src.Sample()
	assert.True(t, ok)

	_, err = c.Connect(context.Background(), "tcp:127.0.0.1:5760", time.Second)
	assert.ErrorIs(t, err, telemetry.ErrConnect)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Connect(ctx, "sim:", time.Second)
	assert.ErrorIs(t, err, telemetry.ErrConnect)
}
