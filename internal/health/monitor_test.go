package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type probe struct {
	alive bool
	calls int
}

func (p *probe) IsAlive() bool {
	p.calls++
	return p.alive
}

func TestMonitor_HealthyWithinThreshold(t *testing.T) {
	m := NewMonitor()
	m.Reset(epoch)
	p := &probe{}

	r := m.Check(epoch.Add(DefaultStallThreshold), p.IsAlive)

	assert.Equal(t, Healthy, r.Verdict)
	assert.False(t, r.Probed)
	assert.Zero(t, p.calls)
	assert.Equal(t, DefaultStallThreshold, r.Elapsed)
}

func TestMonitor_StalledWhenProbeFails(t *testing.T) {
	m := NewMonitor()
	m.Reset(epoch)
	m.Delivered(epoch.Add(10 * time.Second))
	p := &probe{alive: false}

	assert.Equal(t, Healthy, m.Check(epoch.Add(70*time.Second), p.IsAlive).Verdict)

	r := m.Check(epoch.Add(71*time.Second), p.IsAlive)
	assert.Equal(t, Stalled, r.Verdict)
	assert.True(t, r.Probed)
	assert.Equal(t, 61*time.Second, r.Elapsed)
	assert.Equal(t, epoch.Add(10*time.Second), r.LastSend)
	assert.Equal(t, 1, p.calls)
}

func TestMonitor_OverdueRearms(t *testing.T) {
	m := NewMonitor(WithStallThreshold(30 * time.Second))
	m.Reset(epoch)
	p := &probe{alive: true}

	r := m.Check(epoch.Add(31*time.Second), p.IsAlive)
	assert.Equal(t, Overdue, r.Verdict)
	assert.Equal(t, 1, p.calls)

	// window re-opened: no probe until another threshold elapses
	r = m.Check(epoch.Add(45*time.Second), p.IsAlive)
	assert.Equal(t, Healthy, r.Verdict)
	assert.Equal(t, 1, p.calls)

	p.alive = false
	r = m.Check(epoch.Add(62*time.Second), p.IsAlive)
	assert.Equal(t, Stalled, r.Verdict)
	assert.Equal(t, 2, p.calls)
}

func TestMonitor_DeliveryKeepsHealthy(t *testing.T) {
	m := NewMonitor(WithStallThreshold(10 * time.Second))
	m.Reset(epoch)
	p := &probe{}

	for i := 1; i <= 10; i++ {
		now := epoch.Add(time.Duration(i) * 5 * time.Second)
		m.Delivered(now)
		m.Sampled(now)
		r := m.Check(now, p.IsAlive)
		assert.Equal(t, Healthy, r.Verdict)
		assert.Equal(t, now, r.LastSample)
	}
	assert.Zero(t, p.calls)
}

func TestMonitor_ResetOpensNewWindow(t *testing.T) {
	m := NewMonitor()
	m.Reset(epoch)
	p := &probe{}

	m.Reset(epoch.Add(5 * time.Minute))
	r := m.Check(epoch.Add(5*time.Minute+time.Second), p.IsAlive)

	assert.Equal(t, Healthy, r.Verdict)
	assert.True(t, r.LastSend.IsZero())
	assert.Equal(t, 60*time.Second, m.Threshold())
}

func TestMonitor_Snapshot(t *testing.T) {
	m := NewMonitor()
	m.Reset(epoch)

	assert.Equal(t, Snapshot{SinceSend: Never, SinceSample: Never}, m.Snapshot(epoch.Add(time.Minute)))

	m.Sampled(epoch.Add(10 * time.Second))
	assert.Equal(t, Snapshot{SinceSend: Never, SinceSample: 5 * time.Second}, m.Snapshot(epoch.Add(15*time.Second)))

	m.Delivered(epoch.Add(12 * time.Second))
	assert.Equal(t, Snapshot{SinceSend: 8 * time.Second, SinceSample: 10 * time.Second}, m.Snapshot(epoch.Add(20*time.Second)))

	p := &probe{}
	r := m.Check(epoch.Add(80*time.Second), p.IsAlive)
	assert.Equal(t, Stalled, r.Verdict)
	assert.Equal(t, Snapshot{SinceSend: 68 * time.Second, SinceSample: 70 * time.Second}, r.Snapshot)
}

func TestVerdictString(t *testing.T) {
	assert.Equal(t, "healthy", Healthy.String())
	assert.Equal(t, "overdue", Overdue.String())
	assert.Equal(t, "stalled", Stalled.String())
	assert.Equal(t, "unknown", Verdict(7).String())
}
