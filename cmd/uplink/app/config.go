package app

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/drone-uplink/internal/health"
	"github.com/roman-kulish/drone-uplink/internal/link"
	"github.com/roman-kulish/drone-uplink/internal/loop"
	"github.com/roman-kulish/drone-uplink/internal/storage"
	"github.com/roman-kulish/drone-uplink/internal/telemetry"
	"github.com/roman-kulish/drone-uplink/internal/telemetry/mavlink"
	"github.com/roman-kulish/drone-uplink/internal/uplink"
)

const DefaultEndpoint = "https://server-drone.vercel.app/api/logs"

// Duration is a time.Duration read from strings like "500ms" or "5s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}

	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}

	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Config represents the agent configuration
type Config struct {
	Settings  Settings        `yaml:"settings"`
	Uplink    UplinkConfig    `yaml:"uplink"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Link      LinkConfig      `yaml:"link"`
	Journal   JournalConfig   `yaml:"journal"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel      string `yaml:"logLevel"`
	LogFile       string `yaml:"logFile"`
	LogMaxSize    int    `yaml:"logMaxSize"` // megabytes
	LogMaxBackups int    `yaml:"logMaxBackups"`
	LogMaxAge     int    `yaml:"logMaxAge"` // days
}

// Level returns the parsed log level, info when unset
func (s Settings) Level() (slog.Level, error) {
	var level slog.Level
	if s.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level '%s'", s.LogLevel)
	}
	return level, nil
}

// UplinkConfig represents the collector settings
type UplinkConfig struct {
	Endpoint       string   `yaml:"endpoint"`
	DroneID        string   `yaml:"droneId"`
	Interval       Duration `yaml:"interval"`
	RequestTimeout Duration `yaml:"requestTimeout"`
}

// TelemetryConfig represents the vehicle link settings. An empty target
// enables auto-detection.
type TelemetryConfig struct {
	Target           string   `yaml:"target"`
	BaudRate         int      `yaml:"baudRate"`
	HeartbeatTimeout Duration `yaml:"heartbeatTimeout"`
}

// LinkConfig represents the reconnection and health settings
type LinkConfig struct {
	ConnectTimeout   Duration `yaml:"connectTimeout"`
	MaxRetries       int      `yaml:"maxRetries"`
	RetryDelay       Duration `yaml:"retryDelay"`
	FailureThreshold int      `yaml:"failureThreshold"`
	StallThreshold   Duration `yaml:"stallThreshold"`
}

// JournalConfig represents the session journal settings. The journal is
// disabled when Path is empty.
type JournalConfig struct {
	Path      string `yaml:"path"`
	BatchSize int    `yaml:"batchSize"`
}

// NewConfig returns a configuration populated with defaults
func NewConfig() *Config {
	return &Config{
		Settings: Settings{
			LogLevel:      "info",
			LogMaxSize:    10,
			LogMaxBackups: 3,
			LogMaxAge:     7,
		},
		Uplink: UplinkConfig{
			Endpoint:       DefaultEndpoint,
			Interval:       Duration(loop.DefaultInterval),
			RequestTimeout: Duration(uplink.DefaultTimeout),
		},
		Telemetry: TelemetryConfig{
			BaudRate:         mavlink.DefaultBaudRate,
			HeartbeatTimeout: Duration(mavlink.DefaultHeartbeatTimeout),
		},
		Link: LinkConfig{
			ConnectTimeout:   Duration(link.DefaultConnectTimeout),
			MaxRetries:       link.DefaultMaxRetries,
			RetryDelay:       Duration(link.DefaultRetryDelay),
			FailureThreshold: link.DefaultFailureThreshold,
			StallThreshold:   Duration(health.DefaultStallThreshold),
		},
		Journal: JournalConfig{
			BatchSize: storage.DefaultBatchSize,
		},
	}
}

// LoadConfig reads a YAML configuration file over the defaults
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	c := NewConfig()
	if err = yaml.NewDecoder(f).Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return c, nil
}

// NewConfigFromCLI builds the configuration from the command line. Values of
// the file given with -c are overridden by flags set explicitly.
func NewConfigFromCLI(name string, args []string) (*Config, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)

	var (
		configPath string
		verbose    bool
		f          = NewConfig()
	)
	fs.StringVar(&configPath, "c", "", "Path to the configuration file")
	fs.StringVar(&f.Uplink.Endpoint, "endpoint", f.Uplink.Endpoint, "Collector endpoint URL")
	fs.StringVar(&f.Uplink.DroneID, "id", "", "Drone identifier (default drone_<hostname>)")
	fs.StringVar(&f.Telemetry.Target, "target", "", "Connection target: /dev/ttyACM0, tcp:host:port, udp:host:port or sim[:lat,lon] (default auto-detect)")
	fs.IntVar(&f.Telemetry.BaudRate, "baud", f.Telemetry.BaudRate, "Serial baud rate")
	fs.Func("interval", "Send interval (default 500ms)", durationFlag(&f.Uplink.Interval))
	fs.Func("timeout", "HTTP request timeout (default 10s)", durationFlag(&f.Uplink.RequestTimeout))
	fs.Func("connect-timeout", "Telemetry connect timeout (default 30s)", durationFlag(&f.Link.ConnectTimeout))
	fs.IntVar(&f.Link.MaxRetries, "max-retries", f.Link.MaxRetries, "Connect attempts before giving up")
	fs.Func("retry-delay", "Pause between connect attempts (default 5s)", durationFlag(&f.Link.RetryDelay))
	fs.IntVar(&f.Link.FailureThreshold, "failure-threshold", f.Link.FailureThreshold, "Consecutive send failures forcing a reconnect")
	fs.Func("stall-threshold", "Time without delivery before the link is checked (default 1m0s)", durationFlag(&f.Link.StallThreshold))
	fs.StringVar(&f.Journal.Path, "journal", "", "Path to the session journal database (disabled when empty)")
	fs.StringVar(&f.Settings.LogFile, "log-file", "", "Also write logs to this rotated file")
	fs.BoolVar(&verbose, "verbose", false, "Enable per-send debug output")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	c := NewConfig()
	if configPath != "" {
		var err error
		if c, err = LoadConfig(configPath); err != nil {
			return nil, fmt.Errorf("failed to load configuration file: %w", err)
		}
	}

	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "endpoint":
			c.Uplink.Endpoint = f.Uplink.Endpoint
		case "id":
			c.Uplink.DroneID = f.Uplink.DroneID
		case "target":
			c.Telemetry.Target = f.Telemetry.Target
		case "baud":
			c.Telemetry.BaudRate = f.Telemetry.BaudRate
		case "interval":
			c.Uplink.Interval = f.Uplink.Interval
		case "timeout":
			c.Uplink.RequestTimeout = f.Uplink.RequestTimeout
		case "connect-timeout":
			c.Link.ConnectTimeout = f.Link.ConnectTimeout
		case "max-retries":
			c.Link.MaxRetries = f.Link.MaxRetries
		case "retry-delay":
			c.Link.RetryDelay = f.Link.RetryDelay
		case "failure-threshold":
			c.Link.FailureThreshold = f.Link.FailureThreshold
		case "stall-threshold":
			c.Link.StallThreshold = f.Link.StallThreshold
		case "journal":
			c.Journal.Path = f.Journal.Path
		case "log-file":
			c.Settings.LogFile = f.Settings.LogFile
		case "verbose":
			if verbose {
				c.Settings.LogLevel = "debug"
			}
		}
	})

	if err := c.Validate(); err != nil {
		fs.Usage()
		return nil, err
	}
	return c, nil
}

func durationFlag(d *Duration) func(string) error {
	return func(s string) error {
		v, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		*d = Duration(v)
		return nil
	}
}

// Validate checks the configuration for values the agent cannot run with
func (c *Config) Validate() error {
	u, err := url.Parse(c.Uplink.Endpoint)
	switch {
	case c.Uplink.Endpoint == "":
		return errors.New("endpoint is required")
	case err != nil:
		return fmt.Errorf("invalid endpoint: %w", err)
	case u.Scheme != "http" && u.Scheme != "https":
		return fmt.Errorf("invalid endpoint '%s': scheme must be http or https", c.Uplink.Endpoint)
	case u.Host == "":
		return fmt.Errorf("invalid endpoint '%s': missing host", c.Uplink.Endpoint)
	}

	if strings.TrimSpace(c.Telemetry.Target) != "" {
		if _, err = telemetry.ParseTarget(c.Telemetry.Target); err != nil {
			return fmt.Errorf("invalid target: %w", err)
		}
	}

	if _, err = c.Settings.Level(); err != nil {
		return err
	}

	switch {
	case c.Uplink.Interval <= 0:
		return errors.New("interval must be positive")
	case c.Uplink.RequestTimeout <= 0:
		return errors.New("request timeout must be positive")
	case c.Telemetry.BaudRate <= 0:
		return errors.New("baud rate must be positive")
	case c.Link.ConnectTimeout <= 0:
		return errors.New("connect timeout must be positive")
	case c.Link.MaxRetries < 1:
		return errors.New("max retries must be at least 1")
	case c.Telemetry.HeartbeatTimeout <= 0:
		return errors.New("heartbeat timeout must be positive")
	case c.Link.RetryDelay <= 0:
		return errors.New("retry delay must be positive")
	case c.Link.FailureThreshold < 1:
		return errors.New("failure threshold must be at least 1")
	case c.Link.StallThreshold <= 0:
		return errors.New("stall threshold must be positive")
	case c.Journal.BatchSize < 1:
		return errors.New("journal batch size must be at least 1")
	}

	return nil
}
