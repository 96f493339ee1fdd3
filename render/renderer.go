package render

import (
	"context"
	"fmt"
	"time"

	"lautenbacher.net/power2color/led"
	"lautenbacher.net/power2color/util"
)

type runningCursor struct {
	index   int
	counter int
}

type pulseCursor struct {
	brightness float64
	ascending  bool
}

// Renderer draws one frame per tick for the latest Target. The cursors
// are only touched from the goroutine calling Tick.
type Renderer struct {
	sink    Sink
	target  *util.AtomicEvent[Target]
	opts    Options
	running runningCursor
	pulse   pulseCursor
	// previously rendered target
	last    Target
	started bool
}

func NewRenderer(sink Sink, target *util.AtomicEvent[Target], opts Options) *Renderer {
	return &Renderer{
		sink:   sink,
		target: target,
		opts:   opts,
		pulse:  pulseCursor{brightness: opts.Pulse.MinBrightness, ascending: true},
	}
}

// Tick renders a single frame for the current target and shows it.
func (r *Renderer) Tick() error {
	t := r.target.Value()
	if t.Mode == Running && (!r.started || r.last.Mode != Running || r.last.Entry != t.Entry) {
		r.running = runningCursor{}
	}
	r.last = t
	r.started = true

	switch t.Mode {
	case Running:
		r.drawRunning(t.Color)
	case Pulse:
		r.drawPulse(t.Color)
	default:
		panic(fmt.Sprintf("unknown render mode %v", t.Mode))
	}
	return r.sink.Show()
}

// drawRunning draws the fade starting at the cursor, followed by the body.
// The pixel at index+f gets (f/FadeLength)^2 of the colour. f counts from
// the tail, so f = 0 is the dark end farthest from the body and the fade
// brightens towards it. Counting f from the body instead would put the
// bright end on the tail, which the light never did.
func (r *Renderer) drawRunning(color led.Led) {
	n := r.sink.PixelCount()
	r.sink.Clear()
	if n > 0 {
		fade := r.opts.Running.FadeLength
		for f := 0; f < fade; f++ {
			factor := float64(f) / float64(fade)
			r.sink.SetPixel((r.running.index+f)%n, color.Scale(factor*factor))
		}
		for i := 0; i < r.opts.Running.Length; i++ {
			r.sink.SetPixel((r.running.index+fade+i)%n, color)
		}
	}

	r.running.counter++
	if r.running.counter >= r.opts.Running.SlowdownFactor {
		r.running.counter = 0
		if n > 0 {
			r.running.index = (r.running.index + 1) % n
		}
	}
}

func (r *Renderer) drawPulse(color led.Led) {
	p := r.opts.Pulse
	if r.pulse.ascending {
		r.pulse.brightness += p.Step
		if r.pulse.brightness >= p.MaxBrightness {
			r.pulse.brightness = p.MaxBrightness
			r.pulse.ascending = false
		}
	} else {
		r.pulse.brightness -= p.Step
		if r.pulse.brightness <= p.MinBrightness {
			r.pulse.brightness = p.MinBrightness
			r.pulse.ascending = true
		}
	}

	c := color.Scale(r.pulse.brightness * r.opts.MaxBrightness)
	for i := 0; i < r.sink.PixelCount(); i++ {
		r.sink.SetPixel(i, c)
	}
}

// Brightness returns the current pulse brightness fraction.
func (r *Renderer) Brightness() float64 {
	return r.pulse.brightness
}

// Run calls Tick on every tick of a ticker with the given period until ctx
// is done. Failed frames are reported to Options.OnError and not retried.
func (r *Renderer) Run(ctx context.Context, clock util.Clock, period time.Duration) {
	ticker := clock.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			// cancellation wins over a tick that became ready at the same time
			if ctx.Err() != nil {
				return
			}
			if err := r.Tick(); err != nil && r.opts.OnError != nil {
				r.opts.OnError(err)
			}
		}
	}
}

// Blank turns every pixel off and shows the empty frame.
func (r *Renderer) Blank() error {
	r.sink.Clear()
	return r.sink.Show()
}
