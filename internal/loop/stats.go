package loop

import (
	"time"

	"github.com/roman-kulish/drone-uplink/internal/link"
	"github.com/roman-kulish/drone-uplink/internal/uplink"
)

// Statistics accumulates send results over the lifetime of a run.
type Statistics struct {
	Sent    int
	Failed  int
	Started time.Time
}

// Record counts a send outcome
func (s *Statistics) Record(o uplink.Outcome) {
	if o.Delivered() {
		s.Sent++
		return
	}
	s.Failed++
}

// Attempts returns the number of recorded sends
func (s Statistics) Attempts() int {
	return s.Sent + s.Failed
}

// SuccessRate returns the share of delivered sends in percent, 0 when
// nothing was sent.
func (s Statistics) SuccessRate() float64 {
	if s.Attempts() == 0 {
		return 0
	}
	return float64(s.Sent) / float64(s.Attempts()) * 100
}

// Summary is reported once when the loop stops. Err is the reason of an
// abnormal stop, CloseErr the error of releasing the source.
type Summary struct {
	Stats    Statistics
	Uptime   time.Duration
	State    link.State
	Err      error
	CloseErr error
}
