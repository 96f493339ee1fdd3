package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"lautenbacher.net/power2color/zone"
)

const CONFILE = "config.yml"

type Config struct {
	RealHW     bool            `yaml:"-"`
	Configfile string          `yaml:"-"`
	Bluetooth  BluetoothConfig `yaml:"Bluetooth"`
	FakeInput  FakeInputConfig `yaml:"FakeInput"`
	Zones      ZonesConfig     `yaml:"Zones"`
	Animation  AnimationConfig `yaml:"Animation"`
	Tracker    TrackerConfig   `yaml:"Tracker"`
	Hardware   HardwareConfig  `yaml:"Hardware"`
	Logging    LoggingConfig   `yaml:"Logging"`
}

type BluetoothConfig struct {
	// Empty: connect to the first power meter found.
	Address            string        `yaml:"Address"`
	ServiceUUID        string        `yaml:"ServiceUUID"`
	CharacteristicUUID string        `yaml:"CharacteristicUUID"`
	ConnectTimeout     time.Duration `yaml:"ConnectTimeout"`
	ReconnectDelay     time.Duration `yaml:"ReconnectDelay"`
}

type FakeInputConfig struct {
	MaxWatts uint32        `yaml:"MaxWatts"`
	RampTime time.Duration `yaml:"RampTime"`
	Interval time.Duration `yaml:"Interval"`
}

type ZonesConfig struct {
	// Colour of readings outside every zone, Animation.IdleRGB if unset.
	UnknownRGB []float64 `yaml:"UnknownRGB"`
	// Palette for zones without LedRGB, used by zone index.
	Colors      [][]float64  `yaml:"Colors"`
	Definitions []ZoneConfig `yaml:"Definitions"`
}

type ZoneConfig struct {
	Name    string    `yaml:"Name"`
	MinWatt uint32    `yaml:"MinWatt"`
	MaxWatt Watt      `yaml:"MaxWatt"`
	LedRGB  []float64 `yaml:"LedRGB"`
}

// Watt is a power value in the config file. ".inf" is accepted for an open
// ended zone.
type Watt uint32

func (w *Watt) UnmarshalYAML(value *yaml.Node) error {
	v := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(value.Value), "+"))
	if v == ".inf" || v == "inf" {
		*w = Watt(zone.Unbounded)
		return nil
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return fmt.Errorf("line %d: invalid watt value %q, expected a number or .inf", value.Line, value.Value)
	}
	*w = Watt(n)
	return nil
}

func (w Watt) MarshalYAML() (interface{}, error) {
	if uint32(w) == zone.Unbounded {
		return ".inf", nil
	}
	return uint32(w), nil
}

type AnimationConfig struct {
	ConnectingRGB []float64     `yaml:"ConnectingRGB"`
	IdleRGB       []float64     `yaml:"IdleRGB"`
	TickPeriod    time.Duration `yaml:"TickPeriod"`
	MaxBrightness float64       `yaml:"MaxBrightness"`
	Running       RunningConfig `yaml:"Running"`
	Pulse         PulseConfig   `yaml:"Pulse"`
}

type RunningConfig struct {
	Length         int `yaml:"Length"`
	FadeLength     int `yaml:"FadeLength"`
	SlowdownFactor int `yaml:"SlowdownFactor"`
}

type PulseConfig struct {
	MinBrightness float64 `yaml:"MinBrightness"`
	MaxBrightness float64 `yaml:"MaxBrightness"`
	Step          float64 `yaml:"Step"`
}

type TrackerConfig struct {
	SmoothingSize int `yaml:"SmoothingSize"`
}

type HardwareConfig struct {
	LEDType      string        `yaml:"LEDType"`
	SPIFrequency int           `yaml:"SPIFrequency"`
	Display      DisplayConfig `yaml:"Display"`
}

type DisplayConfig struct {
	LedsTotal         int       `yaml:"LedsTotal"`
	ColorCorrection   []float64 `yaml:"ColorCorrection"`
	APA102_Brightness byte      `yaml:"APA102_Brightness"`
	Reverse           bool      `yaml:"Reverse"`
	// Parts of the strip the animation is drawn on, in drawing order.
	// Empty means the whole strip.
	Segments []SegmentConfig `yaml:"Segments"`
}

type SegmentConfig struct {
	FirstLed int  `yaml:"FirstLed"`
	LastLed  int  `yaml:"LastLed"`
	Reverse  bool `yaml:"Reverse"`
}

type LoggingConfig struct {
	TUI LogConfig `yaml:"TUI"`
	HW  LogConfig `yaml:"HW"`
}

type LogConfig struct {
	Level  string `yaml:"Level"`
	Format string `yaml:"Format"`
	File   string `yaml:"File"`
}

var LEDTypes = []string{"APA102", "WS2801", "WS2812"}

// Default values for everything the config file may leave out.
func defaultConfig() *Config {
	return &Config{
		Bluetooth: BluetoothConfig{
			ServiceUUID:        "00001818-0000-1000-8000-00805f9b34fb",
			CharacteristicUUID: "00002a63-0000-1000-8000-00805f9b34fb",
			ConnectTimeout:     30 * time.Second,
			ReconnectDelay:     5 * time.Second,
		},
		FakeInput: FakeInputConfig{
			MaxWatts: 300,
			RampTime: 10 * time.Second,
			Interval: 100 * time.Millisecond,
		},
		Zones: ZonesConfig{
			Colors: [][]float64{
				{128, 128, 128},
				{0, 0, 255},
				{0, 255, 0},
				{255, 255, 0},
				{255, 128, 0},
				{255, 0, 0},
				{128, 0, 128},
			},
		},
		Animation: AnimationConfig{
			ConnectingRGB: []float64{0, 0, 255},
			IdleRGB:       []float64{255, 255, 255},
			TickPeriod:    10 * time.Millisecond,
			MaxBrightness: 1.0,
			Running:       RunningConfig{Length: 5, FadeLength: 5, SlowdownFactor: 10},
			Pulse:         PulseConfig{MinBrightness: 0.2, MaxBrightness: 1.0, Step: 0.005},
		},
		Tracker: TrackerConfig{SmoothingSize: 1},
		Hardware: HardwareConfig{
			LEDType:      "APA102",
			SPIFrequency: 1000000,
			Display: DisplayConfig{
				LedsTotal:         60,
				ColorCorrection:   []float64{1, 1, 1},
				APA102_Brightness: 31,
			},
		},
		Logging: LoggingConfig{
			TUI: LogConfig{Level: "INFO", Format: "text"},
			HW:  LogConfig{Level: "INFO", Format: "text"},
		},
	}
}

// ReadConfig reads, validates and returns the configuration from cfile.
// Environment overrides are applied before validation.
func ReadConfig(cfile string, realhw bool) (*Config, error) {
	f, err := os.Open(cfile)
	if err != nil {
		return nil, fmt.Errorf("can't open config file %s: %w", cfile, err)
	}
	defer f.Close()

	conf := defaultConfig()
	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(true)
	if err := decoder.Decode(conf); err != nil {
		return nil, fmt.Errorf("can't decode config file %s: %w", cfile, err)
	}
	conf.RealHW = realhw
	conf.Configfile = cfile

	if err := applyEnv(conf); err != nil {
		return nil, err
	}
	if err := conf.validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", cfile, err)
	}
	return conf, nil
}

func (c *Config) validate() error {
	var errs []error
	check := func(name string, rgb []float64) {
		if err := validateRGB(name, rgb); err != nil {
			errs = append(errs, err)
		}
	}

	if c.Zones.UnknownRGB != nil {
		check("Zones.UnknownRGB", c.Zones.UnknownRGB)
	}
	for i, rgb := range c.Zones.Colors {
		check(fmt.Sprintf("Zones.Colors[%d]", i), rgb)
	}
	if len(c.Zones.Definitions) == 0 {
		errs = append(errs, errors.New("at least one zone must be defined in Zones.Definitions"))
	}
	for i, z := range c.Zones.Definitions {
		if z.Name == "" {
			errs = append(errs, fmt.Errorf("zone %d has no name", i+1))
		}
		if z.MinWatt > uint32(z.MaxWatt) {
			errs = append(errs, fmt.Errorf("zone %q: MinWatt %d is greater than MaxWatt %d", z.Name, z.MinWatt, z.MaxWatt))
		}
		if z.LedRGB != nil {
			check(fmt.Sprintf("zone %q LedRGB", z.Name), z.LedRGB)
		} else if len(c.Zones.Colors) == 0 {
			errs = append(errs, fmt.Errorf("zone %q has no LedRGB and Zones.Colors is empty", z.Name))
		}
	}

	check("Animation.ConnectingRGB", c.Animation.ConnectingRGB)
	check("Animation.IdleRGB", c.Animation.IdleRGB)
	if c.Animation.TickPeriod <= 0 {
		errs = append(errs, fmt.Errorf("Animation.TickPeriod must be positive, got %v", c.Animation.TickPeriod))
	}
	if err := c.RenderOptions().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("Animation: %w", err))
	}
	if c.Tracker.SmoothingSize < 1 {
		errs = append(errs, fmt.Errorf("Tracker.SmoothingSize must be at least 1, got %d", c.Tracker.SmoothingSize))
	}

	if c.Hardware.Display.LedsTotal <= 0 {
		errs = append(errs, fmt.Errorf("Hardware.Display.LedsTotal must be positive, got %d", c.Hardware.Display.LedsTotal))
	}
	errs = append(errs, validateSegments(c.Hardware.Display)...)
	if len(c.Hardware.Display.ColorCorrection) != 3 {
		errs = append(errs, fmt.Errorf("Hardware.Display.ColorCorrection needs 3 values, got %d", len(c.Hardware.Display.ColorCorrection)))
	}
	if c.Hardware.Display.APA102_Brightness > 31 {
		errs = append(errs, fmt.Errorf("Hardware.Display.APA102_Brightness must be between 0 and 31, got %d", c.Hardware.Display.APA102_Brightness))
	}
	if c.RealHW {
		if !isLEDType(c.Hardware.LEDType) {
			errs = append(errs, fmt.Errorf("unknown Hardware.LEDType %q, must be one of %s", c.Hardware.LEDType, strings.Join(LEDTypes, ", ")))
		}
		if c.Hardware.SPIFrequency <= 0 {
			errs = append(errs, fmt.Errorf("Hardware.SPIFrequency must be positive, got %d", c.Hardware.SPIFrequency))
		}
	}

	if c.Bluetooth.ReconnectDelay <= 0 {
		errs = append(errs, fmt.Errorf("Bluetooth.ReconnectDelay must be positive, got %v", c.Bluetooth.ReconnectDelay))
	}
	if c.Bluetooth.ConnectTimeout <= 0 {
		errs = append(errs, fmt.Errorf("Bluetooth.ConnectTimeout must be positive, got %v", c.Bluetooth.ConnectTimeout))
	}
	if c.FakeInput.Interval <= 0 || c.FakeInput.RampTime < c.FakeInput.Interval {
		errs = append(errs, fmt.Errorf("FakeInput.RampTime (%v) must be at least FakeInput.Interval (%v) and both positive",
			c.FakeInput.RampTime, c.FakeInput.Interval))
	}

	return errors.Join(errs...)
}

func validateSegments(d DisplayConfig) []error {
	var errs []error
	owner := make(map[int]int)
	for i, seg := range d.Segments {
		first, last := min(seg.FirstLed, seg.LastLed), max(seg.FirstLed, seg.LastLed)
		if first < 0 || last >= d.LedsTotal {
			errs = append(errs, fmt.Errorf("Hardware.Display.Segments[%d]: LEDs %d-%d are outside the strip of %d LEDs", i, first, last, d.LedsTotal))
			continue
		}
		for led := first; led <= last; led++ {
			if other, ok := owner[led]; ok {
				errs = append(errs, fmt.Errorf("Hardware.Display.Segments[%d] overlaps segment %d at LED %d", i, other, led))
				break
			}
			owner[led] = i
		}
	}
	return errs
}

func validateRGB(name string, rgb []float64) error {
	if len(rgb) != 3 {
		return fmt.Errorf("%s needs 3 values, got %d", name, len(rgb))
	}
	for _, v := range rgb {
		if v < 0 || v > 255 {
			return fmt.Errorf("%s: values must be between 0 and 255, got %v", name, rgb)
		}
	}
	return nil
}

func isLEDType(t string) bool {
	for _, known := range LEDTypes {
		if strings.EqualFold(t, known) {
			return true
		}
	}
	return false
}

// Log returns the logging settings of the current platform.
func (c *Config) Log() LogConfig {
	if c.RealHW {
		return c.Logging.HW
	}
	return c.Logging.TUI
}
