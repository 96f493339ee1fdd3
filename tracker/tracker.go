package tracker

import (
	"log/slog"
	"sync"
	"time"

	"lautenbacher.net/power2color/render"
	"lautenbacher.net/power2color/source"
	"lautenbacher.net/power2color/util"
	"lautenbacher.net/power2color/zone"
)

// Status is broadcast after every state change and every sample.
type Status struct {
	Phase     Phase
	Zone      string
	Watts     uint32
	Raw       uint32
	Connected bool
	// Sample is set when the status follows a power sample, Raw is the
	// reading as the meter sent it then.
	Sample bool
	Time   time.Time
}

// PowerTracker implements source.Handler. It runs the state machine for
// every incoming sample and publishes the resulting render target.
type PowerTracker struct {
	mu        sync.Mutex
	state     State
	connected bool
	table     *zone.Table
	colors    Colors
	smoother  *Smoother
	target    *util.AtomicEvent[render.Target]
	status    *util.CallbackEvent[Status]
}

var _ source.Handler = (*PowerTracker)(nil)

// NewPowerTracker creates a tracker in the Connecting phase and publishes
// the connecting target to target.
func NewPowerTracker(table *zone.Table, colors Colors, smoothingSize int, target *util.AtomicEvent[render.Target]) *PowerTracker {
	inst := PowerTracker{
		state:    Initial(colors),
		table:    table,
		colors:   colors,
		smoother: NewSmoother(smoothingSize),
		target:   target,
		status:   util.NewCallbackEvent[Status](true),
	}
	target.Send(inst.state.Target)
	return &inst
}

// Status returns the event listeners can register on.
func (t *PowerTracker) Status() *util.CallbackEvent[Status] {
	return t.status
}

// State returns a copy of the current state.
func (t *PowerTracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *PowerTracker) OnSample(s source.Sample) {
	t.mu.Lock()
	// a sample proves the connection even if the source never said so
	t.connected = true
	watts := t.smoother.Add(s.Watts)
	status := t.step(watts)
	status.Raw = s.Watts
	status.Sample = true
	status.Time = s.Timestamp
	t.mu.Unlock()

	t.status.Notify(status)
}

func (t *PowerTracker) OnConnected() {
	t.mu.Lock()
	t.connected = true
	var status Status
	if t.state.Phase == Connecting {
		status = t.step(0)
	} else {
		status = t.currentStatus(0)
	}
	t.mu.Unlock()

	slog.Info("Power source connected")
	t.status.Notify(status)
}

func (t *PowerTracker) OnDisconnected(err error) {
	t.mu.Lock()
	t.connected = false
	status := t.currentStatus(0)
	t.mu.Unlock()

	if err != nil {
		slog.Warn("Power source disconnected", "error", err)
	} else {
		slog.Info("Power source disconnected")
	}
	t.status.Notify(status)
}

// step must be called with t.mu held.
func (t *PowerTracker) step(watts uint32) Status {
	prev := t.state
	t.state = Step(prev, watts, t.table, t.colors)
	if t.state.Target != prev.Target {
		t.target.Send(t.state.Target)
	}
	if t.state.Phase != prev.Phase || t.state.Zone != prev.Zone {
		slog.Debug("State changed", "from", prev.Phase, "to", t.state.Phase, "zone", t.state.Zone, "watts", watts)
	}
	return t.currentStatus(watts)
}

func (t *PowerTracker) currentStatus(watts uint32) Status {
	return Status{
		Phase:     t.state.Phase,
		Zone:      t.state.Zone,
		Watts:     watts,
		Raw:       watts,
		Connected: t.connected,
		Time:      time.Now(),
	}
}
