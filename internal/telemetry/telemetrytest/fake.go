package telemetrytest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/roman-kulish/drone-uplink/internal/telemetry"
)

type sample struct {
	reading telemetry.Reading
	ok      bool
}

// MockSource is a scripted telemetry source for testing
type MockSource struct {
	mu         sync.Mutex
	queue      []sample
	fallback   *telemetry.Reading
	alive      bool
	samples    int
	closeCalls int
}

// NewMockSource creates a live source with an empty script
func NewMockSource() *MockSource {
	return &MockSource{alive: true}
}

// QueueNotReady scripts n samples without a position
func (m *MockSource) QueueNotReady(n int) *MockSource {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < n; i++ {
		m.queue = append(m.queue, sample{})
	}
	return m
}

// QueueReading scripts a single reading
func (m *MockSource) QueueReading(r telemetry.Reading) *MockSource {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, sample{reading: r, ok: true})
	return m
}

// Always sets the reading returned once the script is exhausted
func (m *MockSource) Always(r telemetry.Reading) *MockSource {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = &r
	return m
}

// SetAlive sets the liveness probe result
func (m *MockSource) SetAlive(alive bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alive = alive
}

func (m *MockSource) Sample() (telemetry.Reading, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples++

	if len(m.queue) > 0 {
		s := m.queue[0]
		m.queue = m.queue[1:]
		return s.reading, s.ok
	}
	if m.fallback != nil {
		return *m.fallback, true
	}
	return telemetry.Reading{}, false
}

func (m *MockSource) IsAlive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.alive && m.closeCalls == 0
}

func (m *MockSource) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCalls++
	return nil
}

// GetSampleCount returns the number of Sample calls
func (m *MockSource) GetSampleCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.samples
}

// GetCloseCount returns the number of Close calls
func (m *MockSource) GetCloseCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeCalls
}

// MockConnector hands out MockSources. Fail decides the result of the n-th
// Connect call (1-based); a nil Fail or a nil error means success.
type MockConnector struct {
	Fail      func(call int) error
	NewSource func() *MockSource

	mu      sync.Mutex
	calls   int
	targets []string
	sources []*MockSource
}

// NewMockConnector creates a connector which always succeeds with sources
// built by newSource
func NewMockConnector(newSource func() *MockSource) *MockConnector {
	return &MockConnector{NewSource: newSource}
}

// FailFirst makes the first n calls fail
func FailFirst(n int) func(int) error {
	return func(call int) error {
		if call <= n {
			return fmt.Errorf("%w: no heartbeat (attempt %d)", telemetry.ErrConnect, call)
		}
		return nil
	}
}

// FailAlways makes every call fail
func FailAlways(call int) error {
	return fmt.Errorf("%w: device not found (attempt %d)", telemetry.ErrConnect, call)
}

func (c *MockConnector) Connect(ctx context.Context, target string, _ time.Duration) (telemetry.Source, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls++
	c.targets = append(c.targets, target)

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", telemetry.ErrConnect, err)
	}
	if c.Fail != nil {
		if err := c.Fail(c.calls); err != nil {
			return nil, err
		}
	}

	src := NewMockSource()
	if c.NewSource != nil {
		src = c.NewSource()
	}
	c.sources = append(c.sources, src)
	return src, nil
}

// GetCallCount returns the number of Connect calls
func (c *MockConnector) GetCallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// GetSources returns the sources handed out so far
func (c *MockConnector) GetSources() []*MockSource {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*MockSource{}, c.sources...)
}

// GetTargets returns the targets of all Connect calls
func (c *MockConnector) GetTargets() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string{}, c.targets...)
}
