// Package controller wires a power source, the state machine and the
// renderer into one running core.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"lautenbacher.net/power2color/render"
	"lautenbacher.net/power2color/source"
	"lautenbacher.net/power2color/tracker"
	"lautenbacher.net/power2color/util"
	"lautenbacher.net/power2color/zone"
)

var ErrNilCollaborator = errors.New("nil collaborator")

// flushErrorInterval limits how often a failing strip shows up in the log.
const flushErrorInterval = 5 * time.Second

const defaultSourceStopTimeout = 2 * time.Second

type Options struct {
	Colors        tracker.Colors
	Render        render.Options
	TickPeriod    time.Duration
	SmoothingSize int
	// Clock defaults to util.RealClock.
	Clock util.Clock
	// OnFlushError is called for every frame the sink failed to show.
	OnFlushError func(error)
	// OnStatus receives every state machine status update. It is called
	// on the source's goroutine and must not block.
	OnStatus func(tracker.Status)
	// SourceStopTimeout bounds the wait for the source after the strip was
	// blanked on shutdown. Zero means 2s.
	SourceStopTimeout time.Duration
}

func DefaultOptions() Options {
	return Options{
		Colors:            tracker.DefaultColors(),
		Render:            render.DefaultOptions(),
		TickPeriod:        10 * time.Millisecond,
		SmoothingSize:     1,
		Clock:             util.RealClock{},
		SourceStopTimeout: defaultSourceStopTimeout,
	}
}

func (o Options) validate() error {
	if o.TickPeriod <= 0 {
		return fmt.Errorf("tick period must be positive, got %v", o.TickPeriod)
	}
	if err := o.Render.Validate(); err != nil {
		return fmt.Errorf("invalid render options: %w", err)
	}
	return nil
}

// Start runs the core until ctx is cancelled or src fails. The strip shows
// the connecting cue first and is blanked exactly once on the way out.
// It returns nil on a clean shutdown and the source's error otherwise.
func Start(ctx context.Context, opts Options, src source.Source, table *zone.Table, sink render.Sink) error {
	switch {
	case src == nil:
		return fmt.Errorf("%w: source", ErrNilCollaborator)
	case table == nil:
		return fmt.Errorf("%w: zone table", ErrNilCollaborator)
	case sink == nil:
		return fmt.Errorf("%w: sink", ErrNilCollaborator)
	}
	if err := opts.validate(); err != nil {
		return err
	}
	if opts.Clock == nil {
		opts.Clock = util.RealClock{}
	}
	if opts.SourceStopTimeout <= 0 {
		opts.SourceStopTimeout = defaultSourceStopTimeout
	}

	for _, o := range table.Overlaps() {
		slog.Warn("Overlapping power zones, the earlier one wins", "earlier", o.Earlier.String(), "later", o.Later.String())
	}

	target := util.NewAtomicEvent[render.Target]()
	pt := tracker.NewPowerTracker(table, opts.Colors, opts.SmoothingSize, target)
	if opts.OnStatus != nil {
		unlisten := pt.Status().Listen(opts.OnStatus)
		defer unlisten()
	}

	renderOpts := opts.Render
	renderOpts.OnError = flushErrorReporter(opts.OnFlushError)
	renderer := render.NewRenderer(sink, target, renderOpts)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	renderDone := make(chan struct{})
	srcDone := make(chan error, 1)
	util.SafeGo("renderer", func() {
		defer close(renderDone)
		renderer.Run(ctx, opts.Clock, opts.TickPeriod)
	})
	util.SafeGo("source", func() {
		err := src.Run(ctx, pt)
		if err != nil && ctx.Err() == nil {
			cancel()
			srcDone <- fmt.Errorf("power source failed: %w", err)
			return
		}
		srcDone <- nil
	})
	slog.Info("Started", "tick", opts.TickPeriod, "zones", len(table.Zones()))

	// only the renderer draws, the strip goes dark as soon as it stopped
	// whatever the source is still doing
	<-renderDone
	if err := renderer.Blank(); err != nil {
		slog.Error("Could not blank LED strip", "error", err)
	}

	var srcErr error
	timeout := time.NewTimer(opts.SourceStopTimeout)
	defer timeout.Stop()
	select {
	case srcErr = <-srcDone:
	case <-timeout.C:
		slog.Warn("Power source did not stop in time, leaving it behind", "timeout", opts.SourceStopTimeout)
	}
	slog.Info("Stopped")
	return srcErr
}

func flushErrorReporter(forward func(error)) func(error) {
	limiter := rate.NewLimiter(rate.Every(flushErrorInterval), 1)
	var suppressed int
	return func(err error) {
		// only ever called from the render goroutine
		if limiter.Allow() {
			slog.Error("Could not show LED frame", "error", err, "suppressed", suppressed)
			suppressed = 0
		} else {
			suppressed++
		}
		if forward != nil {
			forward(err)
		}
	}
}
