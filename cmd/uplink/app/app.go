package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/roman-kulish/drone-uplink/internal/loop"
	"github.com/roman-kulish/drone-uplink/internal/storage"
	"github.com/roman-kulish/drone-uplink/internal/telemetry"
	"github.com/roman-kulish/drone-uplink/internal/telemetry/mavlink"
	"github.com/roman-kulish/drone-uplink/internal/telemetry/sim"
	"github.com/roman-kulish/drone-uplink/internal/uplink"
)

// Run starts the uplink agent and blocks until ctx is cancelled or the
// telemetry source fails permanently.
func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	a := agent{
		logger: logger,
		stdout: os.Stdout,
		detect: newDetector(),
	}
	return a.run(ctx, config)
}

type agent struct {
	logger     *slog.Logger
	stdout     io.Writer
	detect     detector
	simOptions []func(*sim.Vehicle)
}

func (a *agent) run(ctx context.Context, config *Config) (err error) {
	runID := uuid.NewString()
	logger := a.logger.With(slog.String("run", runID))

	target := config.Telemetry.Target
	if target == "" {
		target = a.detect.DetectTarget()
		logger.Info("auto-detected telemetry target", slog.String("target", target))
	}

	droneID := config.Uplink.DroneID
	if droneID == "" {
		droneID = defaultDroneID()
	}

	printBanner(a.stdout, config, droneID, target, runID)

	observers := loop.Observers{newLogObserver(logger, config.Link.FailureThreshold)}

	if config.Journal.Path != "" {
		store := storage.NewSqliteStore(config.Journal.Path)
		defer func() {
			if cErr := store.Close(); cErr != nil {
				logger.Warn("failed to close journal", slog.Any("error", cErr))
			}
		}()

		journal, err := storage.NewJournal(ctx, store, storage.Session{
			RunID:     runID,
			DroneID:   droneID,
			Target:    target,
			Endpoint:  config.Uplink.Endpoint,
			StartTime: time.Now(),
			Config:    config,
		}, storage.WithBatchSize(config.Journal.BatchSize), storage.WithLogger(logger))
		if err != nil {
			return fmt.Errorf("failed to open journal: %w", err)
		}

		logger.Info("recording session", slog.String("journal", config.Journal.Path), slog.Int64("session", journal.SessionID()))
		observers = append(observers, journal)
	}

	connector := a.newConnector(config, logger)
	client := uplink.NewClient(
		uplink.WithTimeout(time.Duration(config.Uplink.RequestTimeout)),
		uplink.WithLogger(logger),
	)

	controller := loop.New(loop.Config{
		Endpoint:         config.Uplink.Endpoint,
		Identifier:       droneID,
		Target:           target,
		Interval:         time.Duration(config.Uplink.Interval),
		ConnectTimeout:   time.Duration(config.Link.ConnectTimeout),
		MaxRetries:       config.Link.MaxRetries,
		RetryDelay:       time.Duration(config.Link.RetryDelay),
		FailureThreshold: config.Link.FailureThreshold,
		StallThreshold:   time.Duration(config.Link.StallThreshold),
	}, connector, client, loop.WithObserver(observers))

	return controller.Run(ctx)
}

func (a *agent) newConnector(config *Config, logger *slog.Logger) telemetry.Connector {
	vehicle := mavlink.NewConnector(
		mavlink.WithBaudRate(config.Telemetry.BaudRate),
		mavlink.WithHeartbeatTimeout(time.Duration(config.Telemetry.HeartbeatTimeout)),
		mavlink.WithLogger(logger),
	)

	return telemetry.NewDispatcher().
		Handle(a.detect.Connector(vehicle), telemetry.SchemeSerial).
		Handle(vehicle, telemetry.SchemeTCP, telemetry.SchemeUDP).
		Handle(sim.NewConnector(a.simOptions...), telemetry.SchemeSim)
}

func printBanner(w io.Writer, config *Config, droneID, target, runID string) {
	_, _ = fmt.Fprintf(w, `Drone telemetry uplink
  endpoint : %s
  drone id : %s
  target   : %s
  interval : %s
  run      : %s
`, config.Uplink.Endpoint, droneID, target, time.Duration(config.Uplink.Interval), runID)
}
