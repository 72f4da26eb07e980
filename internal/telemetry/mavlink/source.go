package mavlink

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/bluenviron/gomavlib/v3"
	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/bluenviron/gomavlib/v3/pkg/message"

	"github.com/roman-kulish/drone-uplink/internal/telemetry"
)

const (
	// DefaultBaudRate is the telemetry port speed of ArduPilot and PX4.
	DefaultBaudRate = 57600

	// DefaultHeartbeatTimeout is how long the link is considered alive after the
	// last autopilot heartbeat.
	DefaultHeartbeatTimeout = 5 * time.Second

	// System ID used by ground stations.
	gcsSystemID = 255

	unknownHeading    = math.MaxUint16
	unknownSatellites = math.MaxUint8
)

// WithLogger sets the logger for the source
func WithLogger(logger *slog.Logger) func(*Source) {
	return func(s *Source) {
		s.logger = logger.With(slog.String("adapter", "mavlink"))
	}
}

// WithBaudRate sets the speed of serial links
func WithBaudRate(baud int) func(*Source) {
	return func(s *Source) {
		s.baudRate = baud
	}
}

// WithHeartbeatTimeout sets the heartbeat age after which IsAlive reports false
func WithHeartbeatTimeout(d time.Duration) func(*Source) {
	return func(s *Source) {
		s.heartbeatTimeout = d
	}
}

// Source is a MAVLink vehicle link over serial, TCP or UDP. Incoming messages
// are consumed by a background reader which keeps the latest known fix.
type Source struct {
	node *gomavlib.Node

	mu            sync.Mutex
	fix           telemetry.Fix
	lastHeartbeat time.Time
	lastPosition  time.Time

	baudRate         int
	heartbeatTimeout time.Duration
	now              func() time.Time
	logger           *slog.Logger

	ready     chan struct{}
	readyOnce sync.Once
	done      chan struct{}
	closeOnce sync.Once
}

func newSource(options ...func(*Source)) *Source {
	s := Source{
		baudRate:         DefaultBaudRate,
		heartbeatTimeout: DefaultHeartbeatTimeout,
		now:              time.Now,
		logger:           slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
		ready:            make(chan struct{}),
		done:             make(chan struct{}),
	}

	for _, option := range options {
		option(&s)
	}

	return &s
}

// Connect opens the link described by target and waits up to timeout for the
// first heartbeat from the autopilot.
func Connect(ctx context.Context, target string, timeout time.Duration, options ...func(*Source)) (*Source, error) {
	t, err := telemetry.ParseTarget(target)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", telemetry.ErrConnect, err)
	}

	s := newSource(options...)

	endpoint, err := s.endpoint(t)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", telemetry.ErrConnect, err)
	}

	node, err := gomavlib.NewNode(gomavlib.NodeConf{
		Endpoints:           []gomavlib.EndpointConf{endpoint},
		Dialect:             common.Dialect,
		OutVersion:          gomavlib.V2,
		OutSystemID:         gcsSystemID,
		StreamRequestEnable: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %w", telemetry.ErrConnect, t, err)
	}
	s.node = node

	go s.run()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-s.ready:
		s.logger.Info("vehicle link established", slog.String("target", t.String()))
		return s, nil

	case <-timer.C:
		_ = s.Close()
		return nil, fmt.Errorf("%w: no heartbeat from %s within %s", telemetry.ErrConnect, t, timeout)

	case <-ctx.Done():
		_ = s.Close()
		return nil, fmt.Errorf("%w: %w", telemetry.ErrConnect, ctx.Err())
	}
}

// NewConnector returns a Connector opening MAVLink sources with the given options.
func NewConnector(options ...func(*Source)) telemetry.Connector {
	return telemetry.ConnectorFunc(func(ctx context.Context, target string, timeout time.Duration) (telemetry.Source, error) {
		s, err := Connect(ctx, target, timeout, options...)
		if err != nil {
			return nil, err
		}
		return s, nil
	})
}

func (s *Source) endpoint(t telemetry.Target) (gomavlib.EndpointConf, error) {
	switch t.Scheme {
	case telemetry.SchemeSerial:
		return gomavlib.EndpointSerial{Device: t.Address, Baud: s.baudRate}, nil
	case telemetry.SchemeTCP:
		return gomavlib.EndpointTCPClient{Address: t.Address}, nil
	case telemetry.SchemeUDP:
		return gomavlib.EndpointUDPServer{Address: t.Address}, nil
	default:
		return nil, fmt.Errorf("unsupported MAVLink target scheme '%s'", t.Scheme)
	}
}

func (s *Source) run() {
	defer close(s.done)

	for evt := range s.node.Events() {
		switch e := evt.(type) {
		case *gomavlib.EventFrame:
			s.handle(e.Message())

		case *gomavlib.EventChannelOpen:
			s.logger.Debug("channel open", slog.Any("channel", e.Channel))

		case *gomavlib.EventChannelClose:
			s.logger.Warn("channel closed", slog.Any("channel", e.Channel))

		case *gomavlib.EventParseError:
			s.logger.Debug(fmt.Sprintf("parse error: %s", e.Error.Error()))
		}
	}
}

// handle folds a single message into the current fix.
func (s *Source) handle(msg message.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch m := msg.(type) {
	case *common.MessageHeartbeat:
		s.lastHeartbeat = s.now()
		s.readyOnce.Do(func() { close(s.ready) })

	case *common.MessageGlobalPositionInt:
		if m.Lat == 0 && m.Lon == 0 {
			// autopilots report 0,0 until the EKF has a position
			s.fix.Latitude, s.fix.Longitude = nil, nil
			return
		}

		s.lastPosition = s.now()

		lat := float64(m.Lat) / 1e7
		lon := float64(m.Lon) / 1e7
		alt := float64(m.RelativeAlt) / 1000
		s.fix.Latitude, s.fix.Longitude, s.fix.Altitude = &lat, &lon, &alt

		if m.Hdg != unknownHeading {
			heading := float64(m.Hdg) / 100
			s.fix.Heading = &heading
		}

	case *common.MessageVfrHud:
		heading := float64(m.Heading)
		speed := float64(m.Groundspeed)
		s.fix.Heading, s.fix.GroundSpeed = &heading, &speed

	case *common.MessageGpsRawInt:
		fixType := int(m.FixType)
		s.fix.FixType = &fixType

		if m.SatellitesVisible != unknownSatellites {
			satellites := int(m.SatellitesVisible)
			s.fix.SatelliteCount = &satellites
		}
	}
}

// Sample returns the latest fix. A position older than the heartbeat timeout,
// or one held while the link is not alive, is not ready.
func (s *Source) Sample() (telemetry.Reading, bool) {
	if s.closed() {
		return telemetry.Reading{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if !s.fresh(s.lastHeartbeat, now) || !s.fresh(s.lastPosition, now) {
		return telemetry.Reading{}, false
	}
	return s.fix.Reading(now)
}

func (s *Source) IsAlive() bool {
	if s.closed() {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.fresh(s.lastHeartbeat, s.now())
}

func (s *Source) fresh(last, now time.Time) bool {
	return !last.IsZero() && now.Sub(last) <= s.heartbeatTimeout
}

func (s *Source) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *Source) Close() error {
	s.closeOnce.Do(func() {
		if s.node == nil {
			close(s.done)
			return
		}

		s.node.Close()
		<-s.done
	})
	return nil
}
