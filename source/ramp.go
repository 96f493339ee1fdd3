package source

import (
	"context"
	"time"

	"lautenbacher.net/power2color/util"
)

// RampOptions configure the fake input.
type RampOptions struct {
	MaxWatts uint32
	RampTime time.Duration
	Interval time.Duration
}

func DefaultRampOptions() RampOptions {
	return RampOptions{
		MaxWatts: 300,
		RampTime: 10 * time.Second,
		Interval: 100 * time.Millisecond,
	}
}

// RampSource is a fake power meter. It ramps from 0 to MaxWatts over
// RampTime, back down to 0 again, holds 0 for another RampTime and starts
// over.
type RampSource struct {
	opts  RampOptions
	clock util.Clock
}

var _ Source = (*RampSource)(nil)

func NewRampSource(opts RampOptions, clock util.Clock) *RampSource {
	if opts.Interval <= 0 {
		opts.Interval = DefaultRampOptions().Interval
	}
	if opts.RampTime < opts.Interval {
		opts.RampTime = opts.Interval
	}
	return &RampSource{opts: opts, clock: clock}
}

// steps per ramp
func (r *RampSource) steps() int {
	return int(r.opts.RampTime / r.opts.Interval)
}

// Watts returns the power of the n-th sample.
func (r *RampSource) Watts(n int) uint32 {
	steps := r.steps()
	phase, t := (n/steps)%3, n%steps
	inc := float64(r.opts.MaxWatts) / float64(steps)
	switch phase {
	case 0:
		return uint32(inc * float64(t))
	case 1:
		return uint32(float64(r.opts.MaxWatts) - inc*float64(t))
	default:
		return 0
	}
}

func (r *RampSource) Run(ctx context.Context, h Handler) error {
	tick := r.clock.NewTicker(r.opts.Interval)
	defer tick.Stop()

	h.OnConnected()
	for n := 0; ; n++ {
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C():
			h.OnSample(Sample{Watts: r.Watts(n), Timestamp: r.clock.Now()})
		}
	}
}
