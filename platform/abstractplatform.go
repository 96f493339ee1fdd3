package platform

import (
	"sync"

	"lautenbacher.net/power2color/config"
	"lautenbacher.net/power2color/led"
)

// frameBuffer is the pixel memory shared by all sinks. SetPixel and Clear
// only touch the buffer, the embedding sink implements Show. Pixels are
// numbered along the configured segments, see pixelLayout.
type frameBuffer struct {
	mu        sync.Mutex
	leds      []led.Led
	layout    []int
	ledsTotal int
	reverse   bool
}

func newFrameBuffer(display config.DisplayConfig) *frameBuffer {
	layout := pixelLayout(display)
	return &frameBuffer{
		leds:      make([]led.Led, len(layout)),
		layout:    layout,
		ledsTotal: max(display.LedsTotal, 0),
		reverse:   display.Reverse,
	}
}

// Indices outside the drawable pixels are ignored.
func (s *frameBuffer) SetPixel(index int, color led.Led) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.leds) {
		return
	}
	s.leds[index] = color
}

func (s *frameBuffer) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.leds {
		s.leds[i] = led.Off
	}
}

func (s *frameBuffer) PixelCount() int {
	return len(s.leds)
}

// snapshot returns a copy of the whole strip in physical order.
func (s *frameBuffer) snapshot() []led.Led {
	s.mu.Lock()
	defer s.mu.Unlock()
	ret := make([]led.Led, s.ledsTotal)
	for i, l := range s.leds {
		p := s.layout[i]
		if s.reverse {
			p = s.ledsTotal - 1 - p
		}
		ret[p] = l
	}
	return ret
}
