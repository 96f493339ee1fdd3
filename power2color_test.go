package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lautenbacher.net/power2color/config"
	"lautenbacher.net/power2color/led"
	"lautenbacher.net/power2color/source"
)

const baseConfig = `
Zones:
  Definitions:
    - Name: Z1
      MinWatt: 1
      MaxWatt: 100
    - Name: Z2
      MinWatt: 101
      MaxWatt: .inf
Hardware:
  Display:
    LedsTotal: 8
`

type MockSink struct {
	mu      sync.Mutex
	pixels  []led.Led
	frames  [][]led.Led
	stopped bool
}

func NewMockSink(n int) *MockSink {
	return &MockSink{pixels: make([]led.Led, n)}
}

func (m *MockSink) SetPixel(i int, c led.Led) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i >= 0 && i < len(m.pixels) {
		m.pixels[i] = c
	}
}

func (m *MockSink) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.pixels {
		m.pixels[i] = led.Led{}
	}
}

func (m *MockSink) PixelCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pixels)
}

func (m *MockSink) Show() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	frame := make([]led.Led, len(m.pixels))
	copy(frame, m.pixels)
	m.frames = append(m.frames, frame)
	return nil
}

func (m *MockSink) Start() error { return nil }

func (m *MockSink) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
}

func (m *MockSink) lastFrame() []led.Led {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.frames) == 0 {
		return nil
	}
	return m.frames[len(m.frames)-1]
}

func (m *MockSink) isStopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

// MockSource reports a constant power until cancelled or told to fail.
type MockSource struct {
	watts uint32
	fail  chan error
}

func (s *MockSource) Run(ctx context.Context, h source.Handler) error {
	h.OnConnected()
	h.OnSample(source.Sample{Watts: s.watts, Timestamp: time.Now()})
	select {
	case <-ctx.Done():
		return nil
	case err := <-s.fail:
		return err
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	cfile := filepath.Join(t.TempDir(), config.CONFILE)
	require.NoError(t, os.WriteFile(cfile, []byte(content), 0o644))
	return cfile
}

func newTestApp(t *testing.T, cfile string) (*App, *MockSink, *atomic.Int32, chan error) {
	t.Helper()
	app := NewApp(Flags{Configfile: cfile, RealHW: true}, make(chan os.Signal, 1))
	sink := NewMockSink(8)
	app.sink = sink
	var sources atomic.Int32
	fail := make(chan error, 1)
	app.newSource = func(conf *config.Config) (source.Source, error) {
		sources.Add(1)
		return &MockSource{watts: 50, fail: fail}, nil
	}
	return app, sink, &sources, fail
}

func runApp(app *App) chan int {
	exit := make(chan int, 1)
	go func() { exit <- app.Run() }()
	return exit
}

func waitExit(t *testing.T, exit chan int) int {
	t.Helper()
	select {
	case code := <-exit:
		return code
	case <-time.After(5 * time.Second):
		t.Fatal("app did not exit")
		return -1
	}
}

func isDark(frame []led.Led) bool {
	for _, l := range frame {
		if !l.IsEmpty() {
			return false
		}
	}
	return true
}

func TestFlagsValidate(t *testing.T) {
	tests := []struct {
		name    string
		flags   Flags
		wantErr bool
	}{
		{"defaults", Flags{}, false},
		{"real hardware with fake input", Flags{RealHW: true, FakeInput: true}, false},
		{"keyboard in terminal", Flags{Keyboard: true}, false},
		{"keyboard on hardware", Flags{Keyboard: true, RealHW: true}, true},
		{"keyboard and fake input", Flags{Keyboard: true, FakeInput: true}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.flags.validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestApp_RunAndShutdown(t *testing.T) {
	app, sink, sources, _ := newTestApp(t, writeConfig(t, baseConfig))
	exit := runApp(app)

	// 50W is zone Z1, which takes the first palette colour
	assert.Eventually(t, func() bool {
		frame := sink.lastFrame()
		return len(frame) == 8 && !isDark(frame)
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), sources.Load())

	app.ossignal <- os.Interrupt
	assert.Equal(t, exitOK, waitExit(t, exit))
	assert.True(t, isDark(sink.lastFrame()), "strip must be dark after shutdown")
	assert.True(t, sink.isStopped())
}

func TestApp_ReloadRestartsCore(t *testing.T) {
	cfile := writeConfig(t, baseConfig)
	app, _, sources, _ := newTestApp(t, cfile)
	exit := runApp(app)

	require.Eventually(t, func() bool { return sources.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	app.ossignal <- syscall.SIGHUP
	assert.Eventually(t, func() bool { return sources.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)

	app.ossignal <- os.Interrupt
	assert.Equal(t, exitOK, waitExit(t, exit))
}

func TestApp_InvalidReloadKeepsRunning(t *testing.T) {
	cfile := writeConfig(t, baseConfig)
	app, sink, sources, _ := newTestApp(t, cfile)
	exit := runApp(app)

	require.Eventually(t, func() bool { return sources.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, os.WriteFile(cfile, []byte("Zones:\n  Definitions: []\n"), 0o644))
	app.ossignal <- syscall.SIGHUP

	// still rendering with the old configuration
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), sources.Load())
	assert.False(t, isDark(sink.lastFrame()))

	app.ossignal <- os.Interrupt
	assert.Equal(t, exitOK, waitExit(t, exit))
}

func TestApp_InvalidConfig(t *testing.T) {
	app, _, sources, _ := newTestApp(t, writeConfig(t, "Zones:\n  Definitions: []\n"))
	assert.Equal(t, exitConfig, app.Run())
	assert.Zero(t, sources.Load())

	app, _, _, _ = newTestApp(t, filepath.Join(t.TempDir(), "missing.yml"))
	assert.Equal(t, exitConfig, app.Run())
}

func TestApp_SourceFailure(t *testing.T) {
	app, sink, _, fail := newTestApp(t, writeConfig(t, baseConfig))
	exit := runApp(app)

	require.Eventually(t, func() bool { return !isDark(sink.lastFrame()) }, 2*time.Second, 5*time.Millisecond)
	fail <- errors.New("adapter gone")
	assert.Equal(t, exitFailure, waitExit(t, exit))
	assert.True(t, isDark(sink.lastFrame()))
}

func TestApp_DefaultSource(t *testing.T) {
	cfile := writeConfig(t, baseConfig)
	conf, err := config.ReadConfig(cfile, true)
	require.NoError(t, err)

	app := NewApp(Flags{Configfile: cfile, FakeInput: true}, nil)
	src, err := app.defaultSource(conf)
	require.NoError(t, err)
	assert.IsType(t, &source.RampSource{}, src)

	app = NewApp(Flags{Configfile: cfile, Keyboard: true}, nil)
	_, err = app.defaultSource(conf)
	assert.Error(t, err, "keyboard input without terminal")

	app = NewApp(Flags{Configfile: cfile}, nil)
	src, err = app.defaultSource(conf)
	require.NoError(t, err)
	assert.IsType(t, &source.BLESource{}, src)
}

func TestApp_CoreOptions(t *testing.T) {
	conf, err := config.ReadConfig(writeConfig(t, baseConfig), true)
	require.NoError(t, err)
	app := NewApp(Flags{}, nil)
	opts := app.coreOptions(conf)
	assert.Equal(t, conf.Animation.TickPeriod, opts.TickPeriod)
	assert.Equal(t, conf.Tracker.SmoothingSize, opts.SmoothingSize)
	assert.Equal(t, conf.Colors(), opts.Colors)
	assert.Nil(t, opts.OnStatus)
}
