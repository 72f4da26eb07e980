package link

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roman-kulish/drone-uplink/internal/clock"
	"github.com/roman-kulish/drone-uplink/internal/telemetry"
)

const (
	// DefaultMaxRetries is the number of consecutive failed connect attempts
	// tolerated before the first successful connection.
	DefaultMaxRetries = 5

	// DefaultRetryDelay is the pause between connect attempts.
	DefaultRetryDelay = 5 * time.Second

	// DefaultConnectTimeout bounds a single connect attempt.
	DefaultConnectTimeout = 30 * time.Second

	// DefaultFailureThreshold is the number of consecutive send failures which
	// forces a reconnection.
	DefaultFailureThreshold = 10
)

// ErrFailedPermanently is returned when the source could never be connected
// within the allowed number of attempts.
var ErrFailedPermanently = errors.New("telemetry source unavailable, connect retries exhausted")

const (
	Disconnected State = iota
	Connecting
	Connected
	Degraded // connected, but nothing delivered within the stall threshold
	FailedPermanently
)

// State is the lifecycle state of the telemetry source.
type State int

func (s State) String() string {
	switch s {
	case Disconnected:
		return "DISCONNECTED"
	case Connecting:
		return "CONNECTING"
	case Connected:
		return "CONNECTED"
	case Degraded:
		return "DEGRADED"
	case FailedPermanently:
		return "FAILED_PERMANENTLY"
	default:
		return "UNKNOWN"
	}
}

// IsConnected reports whether a source is held in this state.
func (s State) IsConnected() bool {
	return s == Connected || s == Degraded
}

// Transition describes a state change. Err carries the error of closing the
// previous source, if any.
type Transition struct {
	From   State
	To     State
	Reason string
	Err    error
	At     time.Time
}

// Attempt describes a failed connect attempt. Max is zero when retries are
// unbounded, RetryIn is zero when no further attempt follows.
type Attempt struct {
	Number  int
	Max     int
	Err     error
	RetryIn time.Duration
	At      time.Time
}

// WithMaxRetries sets the number of connect attempts before giving up
func WithMaxRetries(n int) func(*Policy) {
	return func(p *Policy) {
		p.maxRetries = n
	}
}

// WithRetryDelay sets the pause between connect attempts
func WithRetryDelay(d time.Duration) func(*Policy) {
	return func(p *Policy) {
		p.retryDelay = d
	}
}

// WithConnectTimeout sets the timeout of a single connect attempt
func WithConnectTimeout(d time.Duration) func(*Policy) {
	return func(p *Policy) {
		p.connectTimeout = d
	}
}

// WithFailureThreshold sets the number of consecutive send failures which
// forces a reconnection
func WithFailureThreshold(n int) func(*Policy) {
	return func(p *Policy) {
		p.failureThreshold = n
	}
}

// WithClock sets the clock used for retry delays
func WithClock(c clock.Clock) func(*Policy) {
	return func(p *Policy) {
		p.clock = c
	}
}

// WithTransitionHook registers a callback invoked on every state change
func WithTransitionHook(fn func(Transition)) func(*Policy) {
	return func(p *Policy) {
		p.onTransition = fn
	}
}

// WithAttemptHook registers a callback invoked on every failed connect attempt
func WithAttemptHook(fn func(Attempt)) func(*Policy) {
	return func(p *Policy) {
		p.onAttempt = fn
	}
}

// Policy governs (re)establishment of the telemetry source. Retries are
// bounded until the source has been connected once and unbounded afterwards.
//
// Policy is not safe for concurrent use; it is owned by the uplink loop.
type Policy struct {
	connector telemetry.Connector
	target    string

	maxRetries       int
	retryDelay       time.Duration
	connectTimeout   time.Duration
	failureThreshold int

	clock        clock.Clock
	onTransition func(Transition)
	onAttempt    func(Attempt)

	state         State
	source        telemetry.Source
	attempts      int
	sendFailures  int
	everConnected bool
}

// New creates a disconnected Policy for target
func New(connector telemetry.Connector, target string, options ...func(*Policy)) *Policy {
	p := Policy{
		connector:        connector,
		target:           target,
		maxRetries:       DefaultMaxRetries,
		retryDelay:       DefaultRetryDelay,
		connectTimeout:   DefaultConnectTimeout,
		failureThreshold: DefaultFailureThreshold,
		clock:            clock.Real{},
		onTransition:     func(Transition) {},
		onAttempt:        func(Attempt) {},
		state:            Disconnected,
	}

	for _, option := range options {
		option(&p)
	}

	return &p
}

// State returns the current state
func (p *Policy) State() State {
	return p.state
}

// Source returns the connected source, or nil when not connected
func (p *Policy) Source() telemetry.Source {
	return p.source
}

// SendFailures returns the current number of consecutive send failures
func (p *Policy) SendFailures() int {
	return p.sendFailures
}

// Establish connects the source, retrying after RetryDelay on failure. It
// returns ErrFailedPermanently once MaxRetries consecutive attempts failed
// without the source ever being connected, and ctx.Err() when cancelled.
func (p *Policy) Establish(ctx context.Context) (telemetry.Source, error) {
	switch p.state {
	case FailedPermanently:
		return nil, ErrFailedPermanently
	case Connected, Degraded:
		return p.source, nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		p.transition(Connecting, "connect attempt", nil)

		src, err := p.connector.Connect(ctx, p.target, p.connectTimeout)
		if err == nil {
			p.source = src
			p.attempts = 0
			p.sendFailures = 0
			p.everConnected = true
			p.transition(Connected, "connected", nil)
			return src, nil
		}

		p.attempts++

		if ctxErr := ctx.Err(); ctxErr != nil {
			p.transition(Disconnected, "stop requested", nil)
			return nil, ctxErr
		}

		if !p.everConnected && p.attempts >= p.maxRetries {
			p.onAttempt(Attempt{Number: p.attempts, Max: p.maxRetries, Err: err, At: p.clock.Now()})
			p.transition(FailedPermanently, fmt.Sprintf("%d consecutive connect attempts failed", p.attempts), nil)
			return nil, fmt.Errorf("%w: %w", ErrFailedPermanently, err)
		}

		attempt := Attempt{Number: p.attempts, Err: err, RetryIn: p.retryDelay, At: p.clock.Now()}
		if !p.everConnected {
			attempt.Max = p.maxRetries
		}
		p.onAttempt(attempt)
		p.transition(Disconnected, "connect failed", nil)

		if err = p.clock.Sleep(ctx, p.retryDelay); err != nil {
			return nil, err
		}
	}
}

// RecordSend feeds a send result into the consecutive failure counter. It
// returns true when the threshold was reached and the source was dropped.
func (p *Policy) RecordSend(delivered bool) bool {
	if !p.state.IsConnected() {
		return false
	}

	if delivered {
		p.sendFailures = 0
		if p.state == Degraded {
			p.transition(Connected, "delivery resumed", nil)
		}
		return false
	}

	p.sendFailures++
	if p.sendFailures < p.failureThreshold {
		return false
	}

	p.disconnect(fmt.Sprintf("%d consecutive send failures", p.sendFailures))
	return true
}

// MarkStalled drops the source after the health monitor detected a dead link.
func (p *Policy) MarkStalled() {
	if p.state.IsConnected() {
		p.disconnect("link stalled")
	}
}

// MarkDegraded flags a live link which has not delivered anything recently.
func (p *Policy) MarkDegraded() {
	if p.state == Connected {
		p.transition(Degraded, "no delivery within stall threshold", nil)
	}
}

// Stop releases the source. FailedPermanently is kept as is. It is safe to
// call Stop multiple times.
func (p *Policy) Stop() error {
	var err error
	if p.source != nil {
		err = p.source.Close()
		p.source = nil
	}

	if p.state != FailedPermanently && p.state != Disconnected {
		p.transition(Disconnected, "stop requested", err)
	}
	return err
}

func (p *Policy) disconnect(reason string) {
	var err error
	if p.source != nil {
		err = p.source.Close()
		p.source = nil
	}

	p.transition(Disconnected, reason, err)
}

func (p *Policy) transition(to State, reason string, err error) {
	if p.state == to {
		return
	}

	t := Transition{From: p.state, To: to, Reason: reason, Err: err, At: p.clock.Now()}
	p.state = to
	p.onTransition(t)
}
