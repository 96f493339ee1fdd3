package platform

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"lautenbacher.net/power2color/config"
	"lautenbacher.net/power2color/led"
	"lautenbacher.net/power2color/logging"
	"lautenbacher.net/power2color/source"
	"lautenbacher.net/power2color/tracker"
	"lautenbacher.net/power2color/util"
)

const (
	// LEDs per row of the simulated strip
	stripWidth = 100
	// largest power the keyboard can dial in
	maxKeyboardWatts = 2000
)

// TUISink simulates the LED strip in the terminal. It also shows the
// state of the tracker and lets the user dial in a power value with the
// keyboard, see KeyboardSource.
type TUISink struct {
	*frameBuffer
	tviewapp     *tview.Application
	intro        *tview.TextView
	ledDisplay   *tview.TextView
	statusLine   *tview.TextView
	logView      *tview.TextView
	ossignalChan chan os.Signal
	logFlushOnce sync.Once
	readyChan    chan bool
	frame        *util.AtomicEvent[[]led.Led]
	status       *util.AtomicEvent[tracker.Status]
	watts        *util.AtomicEvent[uint32]
	history      *powerHistory
	drawPending  atomic.Bool
	statePending atomic.Bool
	stopped      atomic.Bool
	stopOnce     sync.Once
}

func NewTUISink(conf *config.Config, ossignalchan chan os.Signal) *TUISink {
	inst := &TUISink{
		frameBuffer:  newFrameBuffer(conf.Hardware.Display),
		ossignalChan: ossignalchan,
		readyChan:    make(chan bool),
		frame:        util.NewAtomicEvent[[]led.Led](),
		status:       util.NewAtomicEvent[tracker.Status](),
		watts:        util.NewAtomicEvent[uint32](),
		history:      newPowerHistory(maxPowerHistory),
	}
	inst.initSimulationTUI()
	return inst
}

// Ready is closed after the first draw, when the log output was switched
// to the log pane.
func (s *TUISink) Ready() <-chan bool {
	return s.readyChan
}

func (s *TUISink) Start() error {
	go func() {
		if err := s.tviewapp.Run(); err != nil {
			slog.Error("Error running TUI", "error", err)
			s.signal(os.Interrupt)
		}
	}()
	return nil
}

// Stop closes the terminal UI. Log lines written afterwards are kept and
// reach stderr on logging.Close instead of the vanished log pane.
func (s *TUISink) Stop() {
	s.stopOnce.Do(func() {
		s.stopped.Store(true)
		logging.BufferOutput()
		s.tviewapp.Stop()
	})
}

// Show queues a redraw of the strip pane. At most one redraw is pending
// at any time, so a slow terminal never blocks the renderer.
func (s *TUISink) Show() error {
	if s.stopped.Load() {
		return nil
	}
	s.frame.Send(s.snapshot())
	if s.drawPending.CompareAndSwap(false, true) {
		s.tviewapp.QueueUpdateDraw(func() {
			s.drawPending.Store(false)
			s.ledDisplay.SetText(renderStrip(s.frame.Value()))
		})
	}
	return nil
}

// SetStatus updates the status line. It is meant to be registered as a
// listener of the tracker status.
func (s *TUISink) SetStatus(st tracker.Status) {
	if s.stopped.Load() {
		return
	}
	if st.Sample {
		s.history.Add(st.Raw)
	}
	s.status.Send(st)
	if s.statePending.CompareAndSwap(false, true) {
		s.tviewapp.QueueUpdateDraw(func() {
			s.statePending.Store(false)
			s.statusLine.SetText(statusText(s.status.Value()) + "\n" + statsText(s.history.Stats()))
		})
	}
}

// signal forwards sig to the main loop without blocking the UI.
func (s *TUISink) signal(sig os.Signal) {
	select {
	case s.ossignalChan <- sig:
	default:
		slog.Warn("Dropping signal, main loop is busy", "signal", sig)
	}
}

func statusText(st tracker.Status) string {
	conn := "[#ff0000]disconnected[-]"
	if st.Connected {
		conn = "[#00ff00]connected[-]"
	}
	zoneName := st.Zone
	if st.Phase != tracker.InZone {
		zoneName = "-"
	}
	return fmt.Sprintf("Phase: [#ffff00]%-10s[-] Zone: [#ffff00]%-14s[-] Power: [#ffff00]%4dW[-] Meter: %s",
		st.Phase, zoneName, st.Watts, conn)
}

func (s *TUISink) getIntroText() string {
	line1 := fmt.Sprintf("Simulated power: [#ffff00]%4dW[white] | Hit [#ff0000]+[white]/[#ff0000]-[white] for 10W, [#ff0000]>[white]/[#ff0000]<[white] for 50W, [#ff0000]0[white] to stop",
		s.watts.Value())
	line2 := "Hit [#ff0000]q[-] to exit, [#ff0000]r[-] to reload, [#ff0000]Up/Down[-] to scroll logs"
	return fmt.Sprintf("%s\n%s", line1, line2)
}

func (s *TUISink) initSimulationTUI() {
	s.tviewapp = tview.NewApplication()

	// --- Intro Pane ---
	s.intro = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	s.intro.SetText(s.getIntroText())
	s.intro.SetBorder(true).SetTitle(" POWER2COLOR Simulation ").SetTitleColor(tcell.ColorLightBlue)
	s.intro.SetBackgroundColor(tcell.NewRGBColor(20, 20, 20))

	// --- LED Display Pane ---
	s.ledDisplay = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	s.ledDisplay.SetBorder(true)
	s.ledDisplay.SetBackgroundColor(tcell.NewRGBColor(30, 30, 30))

	// --- Status Line ---
	s.statusLine = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	s.statusLine.SetText(statusText(tracker.Status{}) + "\n" + statsText(powerStats{}))
	s.statusLine.SetBackgroundColor(tcell.NewRGBColor(20, 20, 20))

	// --- Log Pane ---
	s.logView = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetChangedFunc(func() {
			s.logView.ScrollToEnd()
			s.tviewapp.Draw()
		})
	s.logView.SetBorder(true).SetTitle(" Logs ").SetTitleColor(tcell.ColorLightBlue)
	s.logView.SetBackgroundColor(tcell.NewRGBColor(40, 40, 40))

	// --- Layout ---
	rows := (s.ledsTotal + stripWidth - 1) / stripWidth
	stripeHeight := 3*rows + 1 // 3 per row, 2 for border, minus the last empty line

	layout := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(s.intro, 4, 0, false).
		AddItem(s.ledDisplay, stripeHeight, 0, false).
		AddItem(s.statusLine, 2, 0, false).
		AddItem(s.logView, 0, 1, true)
	s.tviewapp.SetRoot(layout, true)

	// --- Flush logs after first draw ---
	s.tviewapp.SetAfterDrawFunc(func(screen tcell.Screen) {
		s.logFlushOnce.Do(func() {
			logWriter := tview.ANSIWriter(s.logView)
			if err := logging.SetOutput(logWriter); err != nil {
				slog.Error("Can't switch log output to TUI", "error", err)
			}
			close(s.readyChan)
		})
	})

	// --- Input Handling ---
	s.tviewapp.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyCtrlC:
			s.signal(os.Interrupt)
			return nil
		case tcell.KeyRune:
			switch event.Rune() {
			case 'q', 'Q':
				s.signal(os.Interrupt)
				return nil
			case 'r', 'R':
				s.signal(syscall.SIGHUP)
				return nil
			}
			if watts, ok := adjustWatts(s.watts.Value(), event.Rune()); ok {
				s.watts.Send(watts)
				s.intro.SetText(s.getIntroText())
				slog.Debug("Simulated power changed", "watts", watts)
				return nil
			}
		case tcell.KeyUp:
			row, col := s.logView.GetScrollOffset()
			s.logView.ScrollTo(row-1, col)
			return nil
		case tcell.KeyDown:
			row, col := s.logView.GetScrollOffset()
			s.logView.ScrollTo(row+1, col)
			return nil
		}
		return event
	})
}

// adjustWatts applies a power key to current. ok is false for keys that
// do not change the power.
func adjustWatts(current uint32, key rune) (uint32, bool) {
	step := int64(0)
	switch key {
	case '+':
		step = 10
	case '-':
		step = -10
	case '>':
		step = 50
	case '<':
		step = -50
	case '0':
		return 0, true
	default:
		return current, false
	}
	next := int64(current) + step
	return uint32(max(0, min(next, maxKeyboardWatts))), true
}

// KeyboardSource returns a power source reporting the value dialled in
// with the keyboard every interval and right after each change.
func (s *TUISink) KeyboardSource(clock util.Clock, interval time.Duration) source.Source {
	return &keyboardSource{watts: s.watts, clock: clock, interval: interval}
}

type keyboardSource struct {
	watts    *util.AtomicEvent[uint32]
	clock    util.Clock
	interval time.Duration
}

func (k *keyboardSource) Run(ctx context.Context, h source.Handler) error {
	tick := k.clock.NewTicker(k.interval)
	defer tick.Stop()

	h.OnConnected()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-k.watts.Channel():
		case <-tick.C():
		}
		h.OnSample(source.Sample{Watts: k.watts.Value(), Timestamp: k.clock.Now()})
	}
}

// renderStrip draws the strip as rows of two lines.
func renderStrip(leds []led.Led) string {
	var buf strings.Builder
	for start := 0; start < len(leds); start += stripWidth {
		end := min(start+stripWidth, len(leds))
		top, bottom := simulateLedRow(leds[start:end])
		buf.WriteString(" ")
		buf.WriteString(top)
		buf.WriteString("\n ")
		buf.WriteString(bottom)
		if end < len(leds) {
			buf.WriteString("\n\n")
		}
	}
	return buf.String()
}

var bars = []string{" ", "▁", "▂", "▃", "▄", "▅", "▆", "▇", "█"}

// ledGlyphs returns the top and bottom half of a bar whose height grows
// with the brightness of l.
func ledGlyphs(l led.Led) (string, string) {
	brightness := math.Max(l.Red, math.Max(l.Green, l.Blue))
	level := int(math.Round(math.Min(brightness, 255) / 255 * 16))
	level = max(level, 1)
	if level <= 8 {
		return " ", bars[level]
	}
	return bars[level-8], bars[8]
}

func simulateLedRow(values []led.Led) (string, string) {
	var buf1, buf2 strings.Builder
	buf1.Grow(len(values) * (len("[-][#000000]") + 1))
	buf2.Grow(len(values) * (len("[-][#000000]") + 1))

	for _, v := range values {
		if v.IsEmpty() {
			buf1.WriteString(" ")
			buf2.WriteString("·")
			continue
		}
		colorStr := scaledColor(v)
		topChar, bottomChar := ledGlyphs(v)
		buf1.WriteString(colorStr)
		buf1.WriteString(topChar)
		buf1.WriteString("[-]")
		buf2.WriteString(colorStr)
		buf2.WriteString(bottomChar)
		buf2.WriteString("[-]")
	}
	return buf1.String(), buf2.String()
}

// scaledColor returns the hue of l at full brightness as a tview colour
// tag. The brightness is shown by the height of the bar.
func scaledColor(l led.Led) string {
	maxColor := math.Max(l.Red, math.Max(l.Green, l.Blue))
	if maxColor == 0 {
		return "[#000000]"
	}
	factor := 255 / maxColor
	red := math.Min(l.Red*factor, 255)
	green := math.Min(l.Green*factor, 255)
	blue := math.Min(l.Blue*factor, 255)

	const epsilon = 1e-9

	return fmt.Sprintf("[#%02x%02x%02x]", byte(math.Round(red+epsilon)), byte(math.Round(green+epsilon)), byte(math.Round(blue+epsilon)))
}
