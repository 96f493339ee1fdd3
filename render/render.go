// Package render draws the light animations onto an LED sink.
package render

import (
	"fmt"

	"lautenbacher.net/power2color/led"
)

// Mode selects the animation the renderer draws.
type Mode int

const (
	Pulse Mode = iota
	Running
)

func (m Mode) String() string {
	switch m {
	case Pulse:
		return "pulse"
	case Running:
		return "running"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Target is what the renderer should currently show. It is published as a
// whole so that mode and colour always belong together.
type Target struct {
	Mode  Mode
	Color led.Led
	// Entry is increased every time Running is entered from another mode.
	// A renderer seeing a new Entry restarts the running light even if it
	// missed the Pulse target in between.
	Entry uint64
}

// Sink is an LED strip. SetPixel and Clear only change the frame buffer,
// Show flushes the whole buffer in one operation.
type Sink interface {
	SetPixel(index int, color led.Led)
	Show() error
	PixelCount() int
	Clear()
}

// RunningOptions configure the running light.
type RunningOptions struct {
	// Number of full colour pixels.
	Length int
	// Number of pixels fading in behind the body.
	FadeLength int
	// Number of ticks per one pixel movement.
	SlowdownFactor int
}

// PulseOptions configure the pulsing light. Brightness values are
// fractions of Options.MaxBrightness.
type PulseOptions struct {
	MinBrightness float64
	MaxBrightness float64
	Step          float64
}

type Options struct {
	Running RunningOptions
	Pulse   PulseOptions
	// Overall brightness scale applied to the pulse, 0..1.
	MaxBrightness float64
	// OnError is called for every failed Show.
	OnError func(error)
}

// DefaultOptions returns a 5 LED running light with a 5 LED fade, moving
// every 10th tick, and a pulse between 20% and full brightness.
func DefaultOptions() Options {
	return Options{
		Running: RunningOptions{
			Length:         5,
			FadeLength:     5,
			SlowdownFactor: 10,
		},
		Pulse: PulseOptions{
			MinBrightness: 0.2,
			MaxBrightness: 1.0,
			Step:          0.005,
		},
		MaxBrightness: 1.0,
	}
}

// Validate checks the options for values the renderer cannot work with.
func (o Options) Validate() error {
	if o.Running.Length < 0 || o.Running.FadeLength < 0 {
		return fmt.Errorf("running light length (%d) and fade length (%d) must not be negative",
			o.Running.Length, o.Running.FadeLength)
	}
	if o.Running.SlowdownFactor < 1 {
		return fmt.Errorf("running light slowdown factor must be at least 1, got %d", o.Running.SlowdownFactor)
	}
	p := o.Pulse
	if p.MinBrightness < 0 || p.MaxBrightness > 1 || p.MinBrightness > p.MaxBrightness {
		return fmt.Errorf("pulse brightness range [%g, %g] must lie within [0, 1]", p.MinBrightness, p.MaxBrightness)
	}
	if p.Step <= 0 {
		return fmt.Errorf("pulse step must be positive, got %g", p.Step)
	}
	if o.MaxBrightness < 0 || o.MaxBrightness > 1 {
		return fmt.Errorf("max brightness must lie within [0, 1], got %g", o.MaxBrightness)
	}
	return nil
}
