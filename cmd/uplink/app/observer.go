package app

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/drone-uplink/internal/health"
	"github.com/roman-kulish/drone-uplink/internal/link"
	"github.com/roman-kulish/drone-uplink/internal/loop"
)

// statusEvery is the number of send attempts between two info status lines.
const statusEvery = 10

// logObserver reports loop events through the application logger.
type logObserver struct {
	logger           *slog.Logger
	failureThreshold int
}

func newLogObserver(logger *slog.Logger, failureThreshold int) *logObserver {
	return &logObserver{
		logger:           logger,
		failureThreshold: failureThreshold,
	}
}

func (o *logObserver) OnTransition(t link.Transition) {
	attrs := []any{
		slog.String("from", t.From.String()),
		slog.String("to", t.To.String()),
		slog.String("reason", t.Reason),
	}
	if t.Err != nil {
		attrs = append(attrs, slog.Any("error", t.Err))
	}

	switch t.To {
	case link.FailedPermanently:
		o.logger.Error("telemetry link failed permanently", attrs...)
	case link.Disconnected, link.Degraded:
		o.logger.Warn("telemetry link state changed", attrs...)
	default:
		o.logger.Info("telemetry link state changed", attrs...)
	}
}

func (o *logObserver) OnConnectAttempt(a link.Attempt) {
	attempt := fmt.Sprintf("%d", a.Number)
	if a.Max > 0 {
		attempt = fmt.Sprintf("%d/%d", a.Number, a.Max)
	}

	attrs := []any{slog.String("attempt", attempt), slog.Any("error", a.Err)}
	if a.RetryIn > 0 {
		attrs = append(attrs, slog.Duration("retryIn", a.RetryIn))
	}
	o.logger.Warn("telemetry connect failed", attrs...)
}

func (o *logObserver) OnSkip(time.Time) {
	o.logger.Debug("no GPS position yet, skipping send")
}

func (o *logObserver) OnTick(t loop.Tick) {
	r := t.Reading

	if !t.Outcome.Delivered() {
		o.logger.Warn("send failed",
			slog.String("kind", t.Outcome.Kind.String()),
			slog.String("outcome", t.Outcome.String()),
			slog.String("failures", fmt.Sprintf("%d/%d", t.Failures, o.failureThreshold)),
		)
	} else {
		o.logger.Debug("sent",
			slog.Float64("lat", r.Latitude),
			slog.Float64("lon", r.Longitude),
			slog.Float64("alt", r.Altitude),
			slog.Int("status", t.Outcome.StatusCode),
			slog.Duration("latency", t.Outcome.Latency),
		)
	}

	if t.Stats.Attempts()%statusEvery == 0 {
		o.logger.Info("uplink status",
			slog.String("sent", humanize.Comma(int64(t.Stats.Sent))),
			slog.String("failed", humanize.Comma(int64(t.Stats.Failed))),
			slog.String("successRate", fmt.Sprintf("%.1f%%", t.Stats.SuccessRate())),
			slog.String("position", fmt.Sprintf("%.6f,%.6f", r.Latitude, r.Longitude)),
			slog.String("alt", fmt.Sprintf("%.1fm", r.Altitude)),
			slog.Int("satellites", r.SatelliteCount),
			slog.String("state", t.State.String()),
		)
	}
}

func (o *logObserver) OnHealth(r health.Report) {
	o.logger.Warn("no delivery within stall threshold",
		slog.String("verdict", r.Verdict.String()),
		slog.Duration("elapsed", r.Elapsed.Round(time.Second)),
		slog.String("sinceSend", age(r.Snapshot.SinceSend)),
		slog.String("sinceSample", age(r.Snapshot.SinceSample)),
	)
}

func age(d time.Duration) string {
	if d == health.Never {
		return "never"
	}
	return d.Round(time.Second).String()
}

func (o *logObserver) OnShutdown(s loop.Summary) {
	attrs := []any{
		slog.String("sent", humanize.Comma(int64(s.Stats.Sent))),
		slog.String("failed", humanize.Comma(int64(s.Stats.Failed))),
		slog.String("successRate", fmt.Sprintf("%.1f%%", s.Stats.SuccessRate())),
		slog.String("uptime", humanUptime(s.Stats.Started, s.Uptime)),
		slog.String("state", s.State.String()),
	}

	if s.CloseErr != nil {
		o.logger.Warn("failed to close telemetry source", slog.Any("error", s.CloseErr))
	}

	if s.Err != nil {
		o.logger.Error("uplink stopped", append(attrs, slog.Any("error", s.Err))...)
		return
	}
	o.logger.Info("uplink stopped", attrs...)
}

func humanUptime(started time.Time, uptime time.Duration) string {
	if uptime < time.Second {
		return uptime.Round(time.Millisecond).String()
	}
	return strings.TrimSpace(humanize.RelTime(started, started.Add(uptime), "", ""))
}
