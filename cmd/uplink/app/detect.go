package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/roman-kulish/drone-uplink/internal/telemetry"
)

// SimulatorTarget is the default MAVLink TCP endpoint of PX4/ArduPilot SITL.
const SimulatorTarget = "tcp:127.0.0.1:5760"

// ErrNoDevice is returned when the configured serial device does not exist.
var ErrNoDevice = errors.New("telemetry device not found")

var (
	candidatePorts = []string{
		"/dev/ttyACM0",
		"/dev/ttyACM1",
		"/dev/ttyUSB0",
		"/dev/ttyUSB1",
		"/dev/serial0",
	}

	portPatterns = []string{
		"/dev/ttyACM*",
		"/dev/ttyUSB*",
		"/dev/serial*",
	}
)

// detector locates flight controller devices on the local machine.
type detector struct {
	exists func(path string) bool
	glob   func(pattern string) ([]string, error)
}

func newDetector() detector {
	return detector{
		exists: func(path string) bool {
			_, err := os.Stat(path)
			return err == nil
		},
		glob: filepath.Glob,
	}
}

// DetectTarget returns the first existing well-known serial device, or the
// simulator endpoint when none is present.
func (d detector) DetectTarget() string {
	for _, port := range candidatePorts {
		if d.exists(port) {
			return port
		}
	}
	return SimulatorTarget
}

// CheckTarget verifies that a serial target refers to an existing device.
// Network and simulator targets are not checked.
func (d detector) CheckTarget(target string) error {
	t, err := telemetry.ParseTarget(target)
	if err != nil {
		return err
	}
	if t.Scheme != telemetry.SchemeSerial || d.exists(t.Address) {
		return nil
	}

	available := "none"
	if ports := d.availablePorts(); len(ports) > 0 {
		available = strings.Join(ports, ", ")
	}
	return fmt.Errorf("%w: %s (available ports: %s)", ErrNoDevice, t.Address, available)
}

// Connector wraps next so that connecting to a missing serial device fails
// like any other connect attempt and is retried by the link policy.
func (d detector) Connector(next telemetry.Connector) telemetry.Connector {
	return telemetry.ConnectorFunc(func(ctx context.Context, target string, timeout time.Duration) (telemetry.Source, error) {
		if err := d.CheckTarget(target); err != nil {
			return nil, fmt.Errorf("%w: %w", telemetry.ErrConnect, err)
		}
		return next.Connect(ctx, target, timeout)
	})
}

func (d detector) availablePorts() []string {
	var ports []string
	for _, pattern := range portPatterns {
		matches, err := d.glob(pattern)
		if err != nil {
			continue
		}
		ports = append(ports, matches...)
	}
	slices.Sort(ports)
	return slices.Compact(ports)
}

// DroneID derives the default drone identifier from a host name
func DroneID(hostname string) string {
	return "drone_" + strings.NewReplacer(".", "_", " ", "_").Replace(hostname)
}

func defaultDroneID() string {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "unknown"
	}
	return DroneID(hostname)
}
