package loop

import (
	"time"

	"github.com/roman-kulish/drone-uplink/internal/health"
	"github.com/roman-kulish/drone-uplink/internal/link"
	"github.com/roman-kulish/drone-uplink/internal/telemetry"
	"github.com/roman-kulish/drone-uplink/internal/uplink"
)

// Tick describes one send attempt.
type Tick struct {
	At       time.Time // start of the tick
	Reading  telemetry.Reading
	Outcome  uplink.Outcome
	Stats    Statistics
	State    link.State
	Failures int // consecutive send failures
}

// Observer receives the status events of the uplink loop. Observers are
// called synchronously from the loop and should return quickly.
type Observer interface {
	OnTransition(t link.Transition)
	OnConnectAttempt(a link.Attempt)
	OnSkip(at time.Time)
	OnTick(t Tick)
	OnHealth(r health.Report)
	OnShutdown(s Summary)
}

// Observers fans events out to several observers in order.
type Observers []Observer

func (o Observers) OnTransition(t link.Transition) {
	for _, obs := range o {
		obs.OnTransition(t)
	}
}

func (o Observers) OnConnectAttempt(a link.Attempt) {
	for _, obs := range o {
		obs.OnConnectAttempt(a)
	}
}

func (o Observers) OnSkip(at time.Time) {
	for _, obs := range o {
		obs.OnSkip(at)
	}
}

func (o Observers) OnTick(t Tick) {
	for _, obs := range o {
		obs.OnTick(t)
	}
}

func (o Observers) OnHealth(r health.Report) {
	for _, obs := range o {
		obs.OnHealth(r)
	}
}

func (o Observers) OnShutdown(s Summary) {
	for _, obs := range o {
		obs.OnShutdown(s)
	}
}

// NopObserver ignores all events. Embed it to implement a subset of Observer.
type NopObserver struct{}

func (NopObserver) OnTransition(link.Transition)  {}
func (NopObserver) OnConnectAttempt(link.Attempt) {}
func (NopObserver) OnSkip(time.Time)              {}
func (NopObserver) OnTick(Tick)                   {}
func (NopObserver) OnHealth(health.Report)        {}
func (NopObserver) OnShutdown(Summary)            {}
