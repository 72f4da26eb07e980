package health

import (
	"time"
)

// DefaultStallThreshold is how long the uplink may go without a delivered
// reading before the link is probed.
const DefaultStallThreshold = 60 * time.Second

const (
	Healthy Verdict = iota
	Overdue         // nothing delivered within the threshold, but the link is alive
	Stalled         // nothing delivered within the threshold and the link probe failed
)

// Verdict is the result of a health check.
type Verdict int

func (v Verdict) String() string {
	switch v {
	case Healthy:
		return "healthy"
	case Overdue:
		return "overdue"
	case Stalled:
		return "stalled"
	default:
		return "unknown"
	}
}

// Never is the Snapshot age of an event which has not happened yet.
const Never time.Duration = -1

// Snapshot is the age of the last delivery and of the last sample.
type Snapshot struct {
	SinceSend   time.Duration
	SinceSample time.Duration
}

// Report is the outcome of a single Check. LastSend and LastSample are zero
// when nothing was sent or sampled yet.
type Report struct {
	Verdict    Verdict
	Elapsed    time.Duration // time since the check window opened
	LastSend   time.Time
	LastSample time.Time
	Snapshot   Snapshot
	Probed     bool
}

// WithStallThreshold sets the stall threshold
func WithStallThreshold(d time.Duration) func(*Monitor) {
	return func(m *Monitor) {
		m.threshold = d
	}
}

// Monitor detects silent stalls of the uplink. When nothing has been
// delivered for longer than the threshold it probes the link: a dead link is
// reported as Stalled, a live one as Overdue, after which the window re-opens
// so the probe runs at most once per threshold.
//
// Monitor is not safe for concurrent use.
type Monitor struct {
	threshold  time.Duration
	lastSend   time.Time
	lastSample time.Time
	armed      time.Time
}

// NewMonitor creates a new Monitor
func NewMonitor(options ...func(*Monitor)) *Monitor {
	m := Monitor{threshold: DefaultStallThreshold}

	for _, option := range options {
		option(&m)
	}

	return &m
}

// Threshold returns the stall threshold
func (m *Monitor) Threshold() time.Duration {
	return m.threshold
}

// Reset opens a new check window, typically after a (re)connect.
func (m *Monitor) Reset(now time.Time) {
	m.armed = now
}

// Delivered records a successful send.
func (m *Monitor) Delivered(now time.Time) {
	m.lastSend = now
}

// Sampled records a reading taken from the source.
func (m *Monitor) Sampled(now time.Time) {
	m.lastSample = now
}

// Snapshot reports how long ago the last delivery and the last sample
// happened, or Never.
func (m *Monitor) Snapshot(now time.Time) Snapshot {
	return Snapshot{
		SinceSend:   since(m.lastSend, now),
		SinceSample: since(m.lastSample, now),
	}
}

func since(t, now time.Time) time.Duration {
	if t.IsZero() {
		return Never
	}
	return now.Sub(t)
}

// Check evaluates the link health at now. probe is only invoked once the
// threshold has been exceeded.
func (m *Monitor) Check(now time.Time, probe func() bool) Report {
	start := m.armed
	if m.lastSend.After(start) {
		start = m.lastSend
	}

	r := Report{
		Verdict:    Healthy,
		Elapsed:    now.Sub(start),
		LastSend:   m.lastSend,
		LastSample: m.lastSample,
		Snapshot:   m.Snapshot(now),
	}

	if r.Elapsed <= m.threshold {
		return r
	}

	r.Probed = true
	if !probe() {
		r.Verdict = Stalled
		return r
	}

	m.armed = now
	r.Verdict = Overdue
	return r
}
