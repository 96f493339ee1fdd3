// Package tracker turns power samples into light targets.
package tracker

import (
	"fmt"

	"lautenbacher.net/power2color/led"
	"lautenbacher.net/power2color/render"
	"lautenbacher.net/power2color/zone"
)

// Phase of the light state machine.
type Phase int

const (
	Connecting Phase = iota
	Idle
	InZone
)

func (p Phase) String() string {
	switch p {
	case Connecting:
		return "connecting"
	case Idle:
		return "idle"
	case InZone:
		return "in_zone"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// Colors used for the phases that do not take their colour from a zone.
type Colors struct {
	Connecting led.Led
	Idle       led.Led
}

func DefaultColors() Colors {
	return Colors{
		Connecting: led.Led{Blue: 255},
		Idle:       led.White,
	}
}

// State of the machine. Target is what the renderer should draw, Zone the
// name of the matched zone while in InZone.
type State struct {
	Phase  Phase
	Target render.Target
	Zone   string
}

// Initial returns the Connecting state: a pulse in the connecting colour.
func Initial(colors Colors) State {
	return State{
		Phase:  Connecting,
		Target: render.Target{Mode: render.Pulse, Color: colors.Connecting},
	}
}

// Step computes the next state from the current watts. The result only
// depends on watts and on whether the previous target was already
// Running, so repeating a step is a no-op. Connecting is never returned.
func Step(state State, watts uint32, table *zone.Table, colors Colors) State {
	if watts == 0 {
		entry := state.Target.Entry
		if state.Target.Mode != render.Running {
			entry++
		}
		return State{
			Phase:  Idle,
			Target: render.Target{Mode: render.Running, Color: colors.Idle, Entry: entry},
		}
	}

	name, color := table.Classify(watts)
	return State{
		Phase:  InZone,
		Target: render.Target{Mode: render.Pulse, Color: color, Entry: state.Target.Entry},
		Zone:   name,
	}
}
