package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrConnect is returned when a telemetry source cannot be established.
var ErrConnect = errors.New("telemetry source connect failed")

// Source is a connected vehicle link.
type Source interface {
	// Sample returns the latest reading, or false when the position is not
	// known yet (e.g. no satellite fix). It never blocks on I/O.
	Sample() (Reading, bool)

	// IsAlive reports whether the underlying link still shows signs of life.
	// It returns immediately.
	IsAlive() bool

	// Close releases the link. It is safe to call Close multiple times.
	Close() error
}

// Connector establishes sources. Connect blocks for at most timeout and
// returns an error wrapping ErrConnect on failure.
type Connector interface {
	Connect(ctx context.Context, target string, timeout time.Duration) (Source, error)
}

// ConnectorFunc adapts a function to the Connector interface.
type ConnectorFunc func(ctx context.Context, target string, timeout time.Duration) (Source, error)

func (f ConnectorFunc) Connect(ctx context.Context, target string, timeout time.Duration) (Source, error) {
	return f(ctx, target, timeout)
}

// Dispatcher is a Connector which routes a target to the adapter registered
// for its scheme.
type Dispatcher struct {
	adapters map[Scheme]Connector
}

// NewDispatcher creates an empty Dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{adapters: make(map[Scheme]Connector)}
}

// Handle registers c for the given schemes, replacing previous registrations.
func (d *Dispatcher) Handle(c Connector, schemes ...Scheme) *Dispatcher {
	for _, scheme := range schemes {
		d.adapters[scheme] = c
	}
	return d
}

func (d *Dispatcher) Connect(ctx context.Context, target string, timeout time.Duration) (Source, error) {
	t, err := ParseTarget(target)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}

	c, ok := d.adapters[t.Scheme]
	if !ok {
		return nil, fmt.Errorf("%w: no adapter for %s targets", ErrConnect, t.Scheme)
	}

	return c.Connect(ctx, target, timeout)
}
