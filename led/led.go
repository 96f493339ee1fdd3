package led

import "math"

// Led is the colour of a single pixel. Components range from 0 to 255.
type Led struct {
	Red   float64
	Green float64
	Blue  float64
}

var (
	Off   = Led{}
	White = Led{Red: 255, Green: 255, Blue: 255}
)

// FromRGB builds a Led from a three element slice as used in the config
// file. Missing components are treated as zero.
func FromRGB(rgb []float64) Led {
	var l Led
	if len(rgb) > 0 {
		l.Red = rgb[0]
	}
	if len(rgb) > 1 {
		l.Green = rgb[1]
	}
	if len(rgb) > 2 {
		l.Blue = rgb[2]
	}
	return l
}

// True if all components are zero, false otherwise
func (s Led) IsEmpty() bool {
	return s.Red == 0 && s.Green == 0 && s.Blue == 0
}

// Scale multiplies every component with factor.
func (s Led) Scale(factor float64) Led {
	return Led{Red: s.Red * factor, Green: s.Green * factor, Blue: s.Blue * factor}
}

// Bytes truncates the components to the 0..255 byte range the LED
// drivers expect.
func (s Led) Bytes() (byte, byte, byte) {
	return toByte(s.Red), toByte(s.Green), toByte(s.Blue)
}

func toByte(v float64) byte {
	if v <= 0 || math.IsNaN(v) {
		return 0
	}
	return byte(math.Min(v, 255))
}
