package config

import (
	"lautenbacher.net/power2color/led"
	"lautenbacher.net/power2color/render"
	"lautenbacher.net/power2color/source"
	"lautenbacher.net/power2color/tracker"
	"lautenbacher.net/power2color/zone"
)

// ZoneDefinitions returns the configured zones in file order. Zones without
// LedRGB take their colour from the palette by index.
func (c *Config) ZoneDefinitions() []zone.Definition {
	defs := make([]zone.Definition, 0, len(c.Zones.Definitions))
	for i, z := range c.Zones.Definitions {
		color := z.LedRGB
		if color == nil && len(c.Zones.Colors) > 0 {
			color = c.Zones.Colors[i%len(c.Zones.Colors)]
		}
		defs = append(defs, zone.Definition{
			Name:    z.Name,
			MinWatt: z.MinWatt,
			MaxWatt: uint32(z.MaxWatt),
			Color:   led.FromRGB(color),
		})
	}
	return defs
}

func (c *Config) ZoneTable() (*zone.Table, error) {
	unknown := c.Zones.UnknownRGB
	if unknown == nil {
		unknown = c.Animation.IdleRGB
	}
	return zone.NewTable(c.ZoneDefinitions(), led.FromRGB(unknown))
}

func (c *Config) Colors() tracker.Colors {
	return tracker.Colors{
		Connecting: led.FromRGB(c.Animation.ConnectingRGB),
		Idle:       led.FromRGB(c.Animation.IdleRGB),
	}
}

func (c *Config) RenderOptions() render.Options {
	a := c.Animation
	return render.Options{
		Running: render.RunningOptions{
			Length:         a.Running.Length,
			FadeLength:     a.Running.FadeLength,
			SlowdownFactor: a.Running.SlowdownFactor,
		},
		Pulse: render.PulseOptions{
			MinBrightness: a.Pulse.MinBrightness,
			MaxBrightness: a.Pulse.MaxBrightness,
			Step:          a.Pulse.Step,
		},
		MaxBrightness: a.MaxBrightness,
	}
}

func (c *Config) BLEOptions() source.BLEOptions {
	b := c.Bluetooth
	return source.BLEOptions{
		Address:            b.Address,
		ServiceUUID:        b.ServiceUUID,
		CharacteristicUUID: b.CharacteristicUUID,
		ConnectTimeout:     b.ConnectTimeout,
		ReconnectDelay:     b.ReconnectDelay,
	}
}

func (c *Config) RampOptions() source.RampOptions {
	return source.RampOptions{
		MaxWatts: c.FakeInput.MaxWatts,
		RampTime: c.FakeInput.RampTime,
		Interval: c.FakeInput.Interval,
	}
}
