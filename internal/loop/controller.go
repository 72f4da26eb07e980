package loop

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/roman-kulish/drone-uplink/internal/clock"
	"github.com/roman-kulish/drone-uplink/internal/health"
	"github.com/roman-kulish/drone-uplink/internal/link"
	"github.com/roman-kulish/drone-uplink/internal/telemetry"
	"github.com/roman-kulish/drone-uplink/internal/uplink"
)

// DefaultInterval is the send cadence.
const DefaultInterval = 500 * time.Millisecond

// ErrStopped is returned by Run when the controller has already run.
var ErrStopped = errors.New("uplink loop already stopped")

// Sender transmits a single reading.
type Sender interface {
	Send(ctx context.Context, r telemetry.Reading, endpoint, identifier string) uplink.Outcome
}

// Config is the loop configuration. Zero values select the defaults.
type Config struct {
	Endpoint         string
	Identifier       string
	Target           string
	Interval         time.Duration
	ConnectTimeout   time.Duration
	MaxRetries       int
	RetryDelay       time.Duration
	FailureThreshold int
	StallThreshold   time.Duration
}

// WithObserver sets the observer receiving loop events
func WithObserver(o Observer) func(*Controller) {
	return func(c *Controller) {
		c.observer = o
	}
}

// WithClock sets the clock driving the loop
func WithClock(clk clock.Clock) func(*Controller) {
	return func(c *Controller) {
		c.clock = clk
	}
}

// Controller runs the uplink loop: sample, send, check health, reconnect when
// needed, sleep until the next tick. Ticks never overlap.
type Controller struct {
	endpoint   string
	identifier string
	interval   time.Duration

	policy   *link.Policy
	sender   Sender
	monitor  *health.Monitor
	observer Observer
	clock    clock.Clock

	stats Statistics

	ran          bool
	shutdownOnce sync.Once
}

// New creates a Controller reading from sources produced by connector and
// sending through sender.
func New(config Config, connector telemetry.Connector, sender Sender, options ...func(*Controller)) *Controller {
	c := Controller{
		endpoint:   config.Endpoint,
		identifier: config.Identifier,
		interval:   config.Interval,
		sender:     sender,
		observer:   NopObserver{},
		clock:      clock.Real{},
	}
	if c.interval <= 0 {
		c.interval = DefaultInterval
	}

	for _, option := range options {
		option(&c)
	}

	policyOptions := []func(*link.Policy){
		link.WithClock(c.clock),
		link.WithTransitionHook(c.observer.OnTransition),
		link.WithAttemptHook(c.observer.OnConnectAttempt),
	}
	if config.MaxRetries > 0 {
		policyOptions = append(policyOptions, link.WithMaxRetries(config.MaxRetries))
	}
	if config.RetryDelay > 0 {
		policyOptions = append(policyOptions, link.WithRetryDelay(config.RetryDelay))
	}
	if config.ConnectTimeout > 0 {
		policyOptions = append(policyOptions, link.WithConnectTimeout(config.ConnectTimeout))
	}
	if config.FailureThreshold > 0 {
		policyOptions = append(policyOptions, link.WithFailureThreshold(config.FailureThreshold))
	}
	c.policy = link.New(connector, config.Target, policyOptions...)

	var monitorOptions []func(*health.Monitor)
	if config.StallThreshold > 0 {
		monitorOptions = append(monitorOptions, health.WithStallThreshold(config.StallThreshold))
	}
	c.monitor = health.NewMonitor(monitorOptions...)

	return &c
}

// State returns the connection state of the telemetry source
func (c *Controller) State() link.State {
	return c.policy.State()
}

// Stats returns a copy of the run statistics
func (c *Controller) Stats() Statistics {
	return c.stats
}

// Run executes the loop until ctx is cancelled or the source fails
// permanently. Cancellation is a clean stop and returns nil. On return the
// source is closed and a Summary is reported to the observer.
func (c *Controller) Run(ctx context.Context) (err error) {
	if c.ran {
		return ErrStopped
	}
	c.ran = true

	c.stats.Started = c.clock.Now()
	defer func() {
		c.shutdown(err)
	}()

	for {
		tickStart := c.clock.Now()
		if ctx.Err() != nil {
			return nil
		}

		if !c.policy.State().IsConnected() {
			if _, err = c.policy.Establish(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			c.monitor.Reset(c.clock.Now())
		} else {
			c.tick(ctx, tickStart)
		}

		if c.clock.Sleep(ctx, c.interval-c.clock.Now().Sub(tickStart)) != nil {
			return nil
		}
	}
}

func (c *Controller) tick(ctx context.Context, tickStart time.Time) {
	src := c.policy.Source()

	r, ok := src.Sample()
	if !ok {
		c.observer.OnSkip(tickStart)
	} else {
		c.monitor.Sampled(tickStart)

		outcome := c.sender.Send(ctx, r, c.endpoint, c.identifier)
		if ctx.Err() != nil && !outcome.Delivered() {
			return // interrupted by stop, not a send failure
		}

		c.stats.Record(outcome)
		if outcome.Delivered() {
			c.monitor.Delivered(c.clock.Now())
		}
		dropped := c.policy.RecordSend(outcome.Delivered())

		c.observer.OnTick(Tick{
			At:       tickStart,
			Reading:  r,
			Outcome:  outcome,
			Stats:    c.stats,
			State:    c.policy.State(),
			Failures: c.policy.SendFailures(),
		})

		if dropped {
			return
		}
	}

	report := c.monitor.Check(c.clock.Now(), src.IsAlive)
	switch report.Verdict {
	case health.Stalled:
		c.observer.OnHealth(report)
		c.policy.MarkStalled()
	case health.Overdue:
		c.observer.OnHealth(report)
		c.policy.MarkDegraded()
	}
}

func (c *Controller) shutdown(cause error) {
	c.shutdownOnce.Do(func() {
		closeErr := c.policy.Stop()

		c.observer.OnShutdown(Summary{
			Stats:    c.stats,
			Uptime:   c.clock.Now().Sub(c.stats.Started),
			State:    c.policy.State(),
			Err:      cause,
			CloseErr: closeErr,
		})
	})
}
