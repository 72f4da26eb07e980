package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/drone-uplink/internal/telemetry"
	"github.com/roman-kulish/drone-uplink/internal/telemetry/telemetrytest"
)

func fakeDetector(devices ...string) detector {
	present := make(map[string]bool)
	for _, d := range devices {
		present[d] = true
	}

	return detector{
		exists: func(path string) bool { return present[path] },
		glob: func(pattern string) ([]string, error) {
			var matches []string
			for _, d := range devices {
				if ok, _ := filepath.Match(pattern, d); ok {
					matches = append(matches, d)
				}
			}
			return matches, nil
		},
	}
}

func TestDetectTarget(t *testing.T) {
	tests := []struct {
		name    string
		devices []string
		want    string
	}{
		{"nothing attached", nil, SimulatorTarget},
		{"usb cdc", []string{"/dev/ttyACM0"}, "/dev/ttyACM0"},
		{"preference order", []string{"/dev/serial0", "/dev/ttyUSB0", "/dev/ttyACM1"}, "/dev/ttyACM1"},
		{"gpio uart", []string{"/dev/serial0"}, "/dev/serial0"},
		{"unlisted port ignored", []string{"/dev/ttyUSB7"}, SimulatorTarget},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, fakeDetector(tt.devices...).DetectTarget())
		})
	}
}

func TestCheckTarget(t *testing.T) {
	d := fakeDetector("/dev/ttyUSB1", "/dev/ttyACM0", "/dev/serial0")

	assert.NoError(t, d.CheckTarget("/dev/ttyACM0"))
	assert.NoError(t, d.CheckTarget("serial:/dev/ttyUSB1"))
	assert.NoError(t, d.CheckTarget("tcp:127.0.0.1:5760"), "network targets are not checked")
	assert.NoError(t, d.CheckTarget("sim"))

	err := d.CheckTarget("/dev/ttyACM3")
	require.ErrorIs(t, err, ErrNoDevice)
	assert.ErrorContains(t, err, "/dev/ttyACM3")
	assert.ErrorContains(t, err, "available ports: /dev/serial0, /dev/ttyACM0, /dev/ttyUSB1")

	err = fakeDetector().CheckTarget("/dev/ttyACM0")
	assert.ErrorContains(t, err, "available ports: none")

	assert.Error(t, d.CheckTarget("carrier-pigeon:coop"))
}

func TestDetectorConnector_DeviceAppearsLate(t *testing.T) {
	var checks int
	d := fakeDetector()
	d.exists = func(path string) bool {
		checks++
		return checks > 2 && path == "/dev/ttyACM0"
	}

	next := telemetrytest.NewMockConnector(nil)
	c := d.Connector(next)

	for i := 0; i < 2; i++ {
		_, err := c.Connect(context.Background(), "/dev/ttyACM0", time.Second)
		require.ErrorIs(t, err, telemetry.ErrConnect)
		assert.ErrorIs(t, err, ErrNoDevice)
		assert.ErrorContains(t, err, "available ports: none")
	}
	assert.Zero(t, next.GetCallCount(), "missing device is never opened")

	src, err := c.Connect(context.Background(), "/dev/ttyACM0", time.Second)
	require.NoError(t, err)
	assert.NotNil(t, src)
	assert.Equal(t, []string{"/dev/ttyACM0"}, next.GetTargets())
}

func TestDroneID(t *testing.T) {
	assert.Equal(t, "drone_raspberrypi", DroneID("raspberrypi"))
	assert.Equal(t, "drone_pi_local", DroneID("pi.local"))
	assert.Equal(t, "drone_field_unit_2", DroneID("field unit.2"))
	assert.Regexp(t, `^drone_[^. ]+$`, defaultDroneID())
}
