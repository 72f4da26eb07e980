package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "uplink.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestNewConfig_Defaults(t *testing.T) {
	c := NewConfig()

	assert.Equal(t, DefaultEndpoint, c.Uplink.Endpoint)
	assert.Equal(t, Duration(500*time.Millisecond), c.Uplink.Interval)
	assert.Equal(t, Duration(10*time.Second), c.Uplink.RequestTimeout)
	assert.Equal(t, 57600, c.Telemetry.BaudRate)
	assert.Equal(t, Duration(30*time.Second), c.Link.ConnectTimeout)
	assert.Equal(t, 5, c.Link.MaxRetries)
	assert.Equal(t, Duration(5*time.Second), c.Link.RetryDelay)
	assert.Equal(t, 10, c.Link.FailureThreshold)
	assert.Equal(t, Duration(time.Minute), c.Link.StallThreshold)
	assert.Empty(t, c.Telemetry.Target)
	assert.Empty(t, c.Journal.Path)
	assert.NoError(t, c.Validate())
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
settings:
  logLevel: debug
uplink:
  endpoint: http://10.0.0.2:3000/api/logs
  droneId: hexa_1
  interval: 1s
telemetry:
  target: udp:0.0.0.0:14550
link:
  retryDelay: 2s
  stallThreshold: 90s
journal:
  path: /var/lib/uplink/journal.db
`)

	c, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", c.Settings.LogLevel)
	assert.Equal(t, "http://10.0.0.2:3000/api/logs", c.Uplink.Endpoint)
	assert.Equal(t, "hexa_1", c.Uplink.DroneID)
	assert.Equal(t, Duration(time.Second), c.Uplink.Interval)
	assert.Equal(t, "udp:0.0.0.0:14550", c.Telemetry.Target)
	assert.Equal(t, Duration(2*time.Second), c.Link.RetryDelay)
	assert.Equal(t, Duration(90*time.Second), c.Link.StallThreshold)
	assert.Equal(t, "/var/lib/uplink/journal.db", c.Journal.Path)

	// untouched values keep their defaults
	assert.Equal(t, 5, c.Link.MaxRetries)
	assert.Equal(t, 57600, c.Telemetry.BaudRate)
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadConfig(writeConfig(t, "uplink:\n  interval: fast\n"))
	assert.ErrorContains(t, err, "line 2")

	c, err := LoadConfig(writeConfig(t, ""))
	require.NoError(t, err, "empty file keeps defaults")
	assert.Equal(t, NewConfig(), c)
}

func TestNewConfigFromCLI_FlagsOverrideFile(t *testing.T) {
	path := writeConfig(t, `
uplink:
  endpoint: http://10.0.0.2:3000/api/logs
  interval: 1s
link:
  maxRetries: 3
`)

	c, err := NewConfigFromCLI("uplink", []string{
		"-c", path,
		"-interval", "250ms",
		"-target", "sim",
		"-id", "bench",
		"-verbose",
	})
	require.NoError(t, err)

	assert.Equal(t, "http://10.0.0.2:3000/api/logs", c.Uplink.Endpoint, "from file")
	assert.Equal(t, 3, c.Link.MaxRetries, "from file")
	assert.Equal(t, Duration(250*time.Millisecond), c.Uplink.Interval, "flag wins")
	assert.Equal(t, "sim", c.Telemetry.Target)
	assert.Equal(t, "bench", c.Uplink.DroneID)
	assert.Equal(t, "debug", c.Settings.LogLevel)
}

func TestNewConfigFromCLI_UnsetFlagsKeepFileValues(t *testing.T) {
	path := writeConfig(t, "link:\n  failureThreshold: 4\n")

	c, err := NewConfigFromCLI("uplink", []string{"-c", path})
	require.NoError(t, err)
	assert.Equal(t, 4, c.Link.FailureThreshold)
}

func TestNewConfigFromCLI_Invalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"bad duration", []string{"-interval", "soon"}},
		{"unknown flag", []string{"-frobnicate"}},
		{"bad endpoint scheme", []string{"-endpoint", "ftp://example.com/logs"}},
		{"endpoint without host", []string{"-endpoint", "http:///api/logs"}},
		{"bad target", []string{"-target", "bluetooth:aa:bb"}},
		{"zero retries", []string{"-max-retries", "0"}},
		{"zero threshold", []string{"-failure-threshold", "0"}},
		{"negative interval", []string{"-interval", "-1s"}},
		{"missing file", []string{"-c", "/nonexistent/uplink.yaml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewConfigFromCLI("uplink", tt.args)
			assert.Error(t, err)
		})
	}
}

func TestSettingsLevel(t *testing.T) {
	level, err := Settings{LogLevel: "warn"}.Level()
	require.NoError(t, err)
	assert.Equal(t, "WARN", level.String())

	_, err = Settings{LogLevel: "loud"}.Level()
	assert.Error(t, err)

	c := NewConfig()
	c.Settings.LogLevel = "loud"
	assert.Error(t, c.Validate())
}
