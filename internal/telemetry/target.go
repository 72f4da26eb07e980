package telemetry

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

const (
	SchemeSerial Scheme = "serial"
	SchemeTCP    Scheme = "tcp"
	SchemeUDP    Scheme = "udp"
	SchemeSim    Scheme = "sim"
)

// Scheme is the addressing scheme of a connection target.
type Scheme string

// Target is a parsed connection target: a serial device path, a network
// address or a simulator centre.
type Target struct {
	Scheme  Scheme
	Address string
}

// ParseTarget parses connection strings of the form "/dev/ttyACM0",
// "serial:/dev/ttyUSB0", "tcp:127.0.0.1:5760", "udp::14550" or "sim:".
func ParseTarget(s string) (Target, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Target{}, errors.New("empty connection target")
	}

	scheme, rest, found := strings.Cut(s, ":")
	if !found {
		if s == string(SchemeSim) {
			return Target{Scheme: SchemeSim}, nil
		}
		return Target{Scheme: SchemeSerial, Address: s}, nil
	}

	switch Scheme(strings.ToLower(scheme)) {
	case SchemeTCP, SchemeUDP:
		if _, _, err := net.SplitHostPort(rest); err != nil {
			return Target{}, fmt.Errorf("invalid %s address '%s': %w", scheme, rest, err)
		}
		return Target{Scheme: Scheme(strings.ToLower(scheme)), Address: rest}, nil

	case SchemeSerial:
		if rest == "" {
			return Target{}, errors.New("serial target without device path")
		}
		return Target{Scheme: SchemeSerial, Address: rest}, nil

	case SchemeSim:
		return Target{Scheme: SchemeSim, Address: rest}, nil

	default:
		return Target{}, fmt.Errorf("unknown connection scheme '%s'", scheme)
	}
}

func (t Target) String() string {
	switch t.Scheme {
	case SchemeSerial:
		return t.Address
	case SchemeSim:
		if t.Address == "" {
			return string(SchemeSim)
		}
	}
	return fmt.Sprintf("%s:%s", t.Scheme, t.Address)
}

// IsNetwork reports whether the target addresses a network endpoint.
func (t Target) IsNetwork() bool {
	return t.Scheme == SchemeTCP || t.Scheme == SchemeUDP
}
