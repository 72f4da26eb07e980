package uplink

import (
	"fmt"
	"time"
)

const (
	Delivered Kind = iota
	Rejected
	Timeout
	NetworkError
	LocalError
)

// Kind classifies the result of a single transmission.
type Kind int

func (k Kind) String() string {
	switch k {
	case Delivered:
		return "delivered"
	case Rejected:
		return "rejected"
	case Timeout:
		return "timeout"
	case NetworkError:
		return "network_error"
	case LocalError:
		return "local_error"
	default:
		return "unknown"
	}
}

// Outcome is the result of one Send. StatusCode is set for Rejected and
// Delivered outcomes only.
type Outcome struct {
	Kind       Kind
	StatusCode int
	Message    string
	Latency    time.Duration
}

// Delivered reports whether the collector accepted the reading.
func (o Outcome) Delivered() bool {
	return o.Kind == Delivered
}

func (o Outcome) String() string {
	switch o.Kind {
	case Delivered:
		return fmt.Sprintf("delivered (HTTP %d)", o.StatusCode)
	case Rejected:
		return fmt.Sprintf("HTTP %d: %s", o.StatusCode, o.Message)
	default:
		return fmt.Sprintf("%s: %s", o.Kind, o.Message)
	}
}
