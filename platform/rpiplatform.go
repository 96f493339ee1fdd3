package platform

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/stianeikeland/go-rpio/v4"

	"lautenbacher.net/power2color/config"
	"lautenbacher.net/power2color/led"
)

// WS2812 bits are encoded as three SPI bits, which needs this clock.
const ws2812SPIFrequency = 2400000

// RaspberryPiSink drives an LED strip connected to SPI0 of a Raspberry Pi.
type RaspberryPiSink struct {
	*frameBuffer
	config   config.HardwareConfig
	driver   ledDriver
	spiMutex sync.Mutex
	exchange func([]byte)
	started  bool
}

func NewRaspberryPiSink(conf config.HardwareConfig) *RaspberryPiSink {
	return &RaspberryPiSink{
		frameBuffer: newFrameBuffer(conf.Display),
		config:      conf,
	}
}

func (s *RaspberryPiSink) Start() error {
	driver, err := newLedDriver(s.config)
	if err != nil {
		return err
	}

	slog.Info("Initialise GPIO and Spi...", "ledType", s.config.LEDType, "leds", s.config.Display.LedsTotal)
	if err := rpio.Open(); err != nil {
		return fmt.Errorf("failed to open rpio: %w", err)
	}
	if err := rpio.SpiBegin(rpio.Spi0); err != nil {
		rpio.Close()
		return fmt.Errorf("failed to begin spi: %w", err)
	}
	freq := s.config.SPIFrequency
	if strings.EqualFold(s.config.LEDType, "WS2812") && freq != ws2812SPIFrequency {
		slog.Info("Overriding SPI frequency for WS2812", "configured", freq, "used", ws2812SPIFrequency)
		freq = ws2812SPIFrequency
	}
	rpio.SpiSpeed(freq)

	s.spiMutex.Lock()
	defer s.spiMutex.Unlock()
	s.driver = driver
	s.exchange = rpio.SpiExchange
	s.started = true
	return nil
}

// Show writes the whole frame in one SPI transfer.
func (s *RaspberryPiSink) Show() error {
	leds := s.snapshot()

	s.spiMutex.Lock()
	defer s.spiMutex.Unlock()
	if !s.started {
		return ErrClosed
	}
	return s.driver.write(leds, s.exchange)
}

func (s *RaspberryPiSink) Stop() {
	s.spiMutex.Lock()
	defer s.spiMutex.Unlock()
	if !s.started {
		return
	}
	s.started = false
	rpio.SpiEnd(rpio.Spi0)
	if err := rpio.Close(); err != nil {
		slog.Error("Error closing rpio", "error", err)
	}
}

// ledDriver encodes a frame for one kind of LED chip and hands it to the
// exchange function.
type ledDriver interface {
	write(leds []led.Led, exchangeFunc func([]byte)) error
}

func newLedDriver(conf config.HardwareConfig) (ledDriver, error) {
	switch strings.ToUpper(conf.LEDType) {
	case "APA102":
		return newApa102Driver(conf.Display), nil
	case "WS2801":
		return newWs2801Driver(conf.Display), nil
	case "WS2812":
		return newWs2812Driver(conf.Display), nil
	default:
		return nil, fmt.Errorf("unknown LED type: %s", conf.LEDType)
	}
}

func corrected(l led.Led, correction []float64) (byte, byte, byte) {
	if len(correction) == 3 {
		l = led.Led{Red: l.Red * correction[0], Green: l.Green * correction[1], Blue: l.Blue * correction[2]}
	}
	return l.Bytes()
}

type ws2801Driver struct {
	displayConfig config.DisplayConfig
	buffer        []byte
}

func newWs2801Driver(displayConfig config.DisplayConfig) *ws2801Driver {
	return &ws2801Driver{
		displayConfig: displayConfig,
		buffer:        make([]byte, 3*displayConfig.LedsTotal),
	}
}

func (d *ws2801Driver) write(leds []led.Led, exchangeFunc func([]byte)) error {
	if cap(d.buffer) < 3*len(leds) {
		d.buffer = make([]byte, 3*len(leds))
	}
	display := d.buffer[:3*len(leds)]
	for idx := range leds {
		display[3*idx], display[3*idx+1], display[3*idx+2] = corrected(leds[idx], d.displayConfig.ColorCorrection)
	}
	exchangeFunc(display)
	return nil
}

type apa102Driver struct {
	displayConfig config.DisplayConfig
	buffer        []byte
}

func newApa102Driver(displayConfig config.DisplayConfig) *apa102Driver {
	return &apa102Driver{
		displayConfig: displayConfig,
		buffer:        make([]byte, apa102FrameSize(displayConfig.LedsTotal)),
	}
}

func apa102FrameSize(leds int) int {
	return 4 + 4*leds + leds/16 + 1
}

func (d *apa102Driver) write(leds []led.Led, exchangeFunc func([]byte)) error {
	requiredSize := apa102FrameSize(len(leds))
	if cap(d.buffer) < requiredSize {
		d.buffer = make([]byte, requiredSize)
	}
	display := d.buffer[:requiredSize]

	// Frame start: 4 zero bytes
	copy(display[0:4], []byte{0x00, 0x00, 0x00, 0x00})

	// Fixed general brightness
	brightness := d.displayConfig.APA102_Brightness | 0xE0

	offset := 4
	for i := range leds {
		red, green, blue := corrected(leds[i], d.displayConfig.ColorCorrection)
		// protocol: brightness byte, blue, green, red
		display[offset] = brightness
		display[offset+1] = blue
		display[offset+2] = green
		display[offset+3] = red
		offset += 4
	}

	// Frame end: at least (len(leds) / 2) + 1 bits of 0xFF
	for i := offset; i < requiredSize; i++ {
		display[i] = 0xFF
	}

	exchangeFunc(display)
	return nil
}

// WS2812 has no clock line. Every data bit becomes three SPI bits at
// 2.4MHz: 110 for a one, 100 for a zero. The strip latches after the
// data line stays low for more than 80µs.
type ws2812Driver struct {
	displayConfig config.DisplayConfig
	buffer        []byte
}

const ws2812ResetBytes = 50

func newWs2812Driver(displayConfig config.DisplayConfig) *ws2812Driver {
	return &ws2812Driver{
		displayConfig: displayConfig,
		buffer:        make([]byte, 9*displayConfig.LedsTotal+ws2812ResetBytes),
	}
}

func (d *ws2812Driver) write(leds []led.Led, exchangeFunc func([]byte)) error {
	requiredSize := 9*len(leds) + ws2812ResetBytes
	if cap(d.buffer) < requiredSize {
		d.buffer = make([]byte, requiredSize)
	}
	display := d.buffer[:requiredSize]

	offset := 0
	for i := range leds {
		red, green, blue := corrected(leds[i], d.displayConfig.ColorCorrection)
		// protocol: green, red, blue
		for _, b := range [3]byte{green, red, blue} {
			encodeWs2812Byte(display[offset:offset+3], b)
			offset += 3
		}
	}
	for i := offset; i < requiredSize; i++ {
		display[i] = 0x00
	}

	exchangeFunc(display)
	return nil
}

func encodeWs2812Byte(dst []byte, b byte) {
	var pattern uint32
	for bit := 7; bit >= 0; bit-- {
		pattern <<= 3
		if b&(1<<bit) != 0 {
			pattern |= 0b110
		} else {
			pattern |= 0b100
		}
	}
	dst[0] = byte(pattern >> 16)
	dst[1] = byte(pattern >> 8)
	dst[2] = byte(pattern)
}
