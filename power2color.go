package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"reflect"
	"syscall"

	"github.com/spf13/pflag"

	"lautenbacher.net/power2color/config"
	"lautenbacher.net/power2color/controller"
	"lautenbacher.net/power2color/logging"
	"lautenbacher.net/power2color/platform"
	"lautenbacher.net/power2color/render"
	"lautenbacher.net/power2color/source"
	"lautenbacher.net/power2color/util"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitConfig  = 2
)

type Flags struct {
	Configfile string
	RealHW     bool
	FakeInput  bool
	Keyboard   bool
	Debug      bool
}

// LedSink is a render.Sink with a lifecycle, the terminal simulation or
// the SPI strip.
type LedSink interface {
	render.Sink
	Start() error
	Stop()
}

type App struct {
	flags    Flags
	ossignal chan os.Signal
	clock    util.Clock
	conf     *config.Config
	sink     LedSink
	tui      *platform.TUISink
	// newSource is replaced in tests
	newSource func(conf *config.Config) (source.Source, error)
	cancel    context.CancelFunc
	done      chan error
}

func NewApp(flags Flags, ossignal chan os.Signal) *App {
	app := &App{
		flags:    flags,
		ossignal: ossignal,
		clock:    util.RealClock{},
	}
	app.newSource = app.defaultSource
	return app
}

func main() {
	var flags Flags
	pflag.StringVarP(&flags.Configfile, "config", "c", config.CONFILE, "Path to the config file")
	pflag.BoolVar(&flags.RealHW, "real", false, "Drive the LED strip over SPI instead of simulating it in the terminal")
	pflag.BoolVar(&flags.FakeInput, "fake-input", false, "Use a generated power ramp instead of the Bluetooth power meter")
	pflag.BoolVar(&flags.Keyboard, "keyboard", false, "Dial in the power with the keyboard (terminal simulation only)")
	pflag.BoolVar(&flags.Debug, "debug", false, "Log at debug level")
	pflag.Parse()

	if err := flags.validate(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		pflag.Usage()
		os.Exit(exitConfig)
	}

	ossignal := make(chan os.Signal, 1)
	signal.Notify(ossignal, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	os.Exit(NewApp(flags, ossignal).Run())
}

func (f Flags) validate() error {
	if f.Keyboard && f.RealHW {
		return errors.New("--keyboard needs the terminal simulation and can't be combined with --real")
	}
	if f.Keyboard && f.FakeInput {
		return errors.New("--keyboard and --fake-input are mutually exclusive")
	}
	return nil
}

// Run reads the config, brings up the sink and runs the core until
// SIGINT or SIGTERM. SIGHUP and changes of the config file restart the
// core with the new config.
func (a *App) Run() int {
	conf, err := config.ReadConfig(a.flags.Configfile, a.flags.RealHW)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return exitConfig
	}
	if err := a.initLogging(conf); err != nil {
		fmt.Fprintln(os.Stderr, "Error initializing logging:", err)
		return exitConfig
	}
	defer logging.Close()

	if a.sink == nil {
		if err := a.initSink(conf); err != nil {
			slog.Error("Can't start LED output", "error", err)
			return exitFailure
		}
	}
	defer a.sink.Stop()

	if err := a.startCore(conf); err != nil {
		slog.Error("Can't start", "error", err)
		return exitConfig
	}

	watchCtx, stopWatch := context.WithCancel(context.Background())
	defer stopWatch()
	if err := config.Watch(watchCtx, a.flags.Configfile, a.requestReload); err != nil {
		slog.Warn("Config file changes will not be picked up", "error", err)
	}

	return a.loop()
}

func (a *App) initLogging(conf *config.Config) error {
	lc := conf.Log()
	level := lc.Level
	if a.flags.Debug {
		level = "DEBUG"
	}
	// the terminal UI owns the screen, keep the log until its pane is up
	return logging.Init(!a.flags.RealHW, level, lc.Format, lc.File != "", lc.File)
}

func (a *App) initSink(conf *config.Config) error {
	if a.flags.RealHW {
		rpi := platform.NewRaspberryPiSink(conf.Hardware)
		if err := rpi.Start(); err != nil {
			return err
		}
		a.sink = rpi
		return nil
	}

	tui := platform.NewTUISink(conf, a.ossignal)
	if err := tui.Start(); err != nil {
		return err
	}
	<-tui.Ready()
	a.tui = tui
	a.sink = tui
	return nil
}

func (a *App) defaultSource(conf *config.Config) (source.Source, error) {
	switch {
	case a.flags.FakeInput:
		slog.Info("Using fake power input", "maxWatts", conf.FakeInput.MaxWatts, "rampTime", conf.FakeInput.RampTime)
		return source.NewRampSource(conf.RampOptions(), a.clock), nil
	case a.flags.Keyboard:
		if a.tui == nil {
			return nil, errors.New("keyboard input needs the terminal simulation")
		}
		return a.tui.KeyboardSource(a.clock, conf.FakeInput.Interval), nil
	default:
		return source.NewBLESource(conf.BLEOptions(), a.clock)
	}
}

func (a *App) coreOptions(conf *config.Config) controller.Options {
	opts := controller.Options{
		Colors:        conf.Colors(),
		Render:        conf.RenderOptions(),
		TickPeriod:    conf.Animation.TickPeriod,
		SmoothingSize: conf.Tracker.SmoothingSize,
		Clock:         a.clock,
	}
	if a.tui != nil {
		opts.OnStatus = a.tui.SetStatus
	}
	return opts
}

func (a *App) startCore(conf *config.Config) error {
	table, err := conf.ZoneTable()
	if err != nil {
		return err
	}
	src, err := a.newSource(conf)
	if err != nil {
		return err
	}
	opts := a.coreOptions(conf)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	util.SafeGo("core", func() {
		done <- controller.Start(ctx, opts, src, table, a.sink)
	})
	a.conf = conf
	a.cancel = cancel
	a.done = done
	return nil
}

// stopCore cancels the running core and waits until the strip is dark.
func (a *App) stopCore() error {
	a.cancel()
	return <-a.done
}

func (a *App) loop() int {
	for {
		select {
		case sig := <-a.ossignal:
			if sig == syscall.SIGHUP {
				if err := a.reload(); err != nil {
					slog.Error("Giving up", "error", err)
					return exitFailure
				}
				continue
			}
			slog.Info("Shutting down", "signal", sig)
			if err := a.stopCore(); err != nil {
				slog.Error("Stopped with error", "error", err)
				return exitFailure
			}
			return exitOK
		case err := <-a.done:
			a.cancel()
			if err != nil {
				slog.Error("Stopped with error", "error", err)
				return exitFailure
			}
			return exitOK
		}
	}
}

// reload restarts the core with the current config file. An invalid file
// keeps the running core untouched.
func (a *App) reload() error {
	conf, err := config.ReadConfig(a.flags.Configfile, a.flags.RealHW)
	if err != nil {
		slog.Error("Keeping current configuration", "error", err)
		return nil
	}
	if !reflect.DeepEqual(conf.Hardware, a.conf.Hardware) || !reflect.DeepEqual(conf.Logging, a.conf.Logging) {
		slog.Warn("Hardware and logging settings only take effect after a restart")
	}
	slog.Info("Reloading configuration", "file", a.flags.Configfile)

	old := a.conf
	if err := a.stopCore(); err != nil {
		slog.Warn("Core stopped with error", "error", err)
	}
	if err := a.startCore(conf); err != nil {
		slog.Error("Can't start with the new configuration, keeping the old one", "error", err)
		return a.startCore(old)
	}
	return nil
}

// requestReload is called by the config watcher. A reload that is already
// queued covers this one as well.
func (a *App) requestReload() {
	select {
	case a.ossignal <- syscall.SIGHUP:
	default:
	}
}
