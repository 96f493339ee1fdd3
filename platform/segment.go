package platform

import (
	"log/slog"

	"lautenbacher.net/power2color/config"
)

// segment is a run of physical LEDs the animation is drawn on.
type segment struct {
	firstLed int
	lastLed  int
	reverse  bool
}

func newSegment(firstled, lastled int, reverse bool, ledsTotal int) segment {
	if firstled > lastled {
		slog.Warn("First led index is bigger than last led index, swapping", "first", firstled, "last", lastled)
		firstled, lastled = lastled, firstled
	}
	return segment{
		firstLed: clamp(firstled, ledsTotal),
		lastLed:  clamp(lastled, ledsTotal),
		reverse:  reverse,
	}
}

// indices returns the physical LED indices of the segment in drawing
// order.
func (s segment) indices() []int {
	ret := make([]int, 0, s.lastLed-s.firstLed+1)
	if s.reverse {
		for i := s.lastLed; i >= s.firstLed; i-- {
			ret = append(ret, i)
		}
	} else {
		for i := s.firstLed; i <= s.lastLed; i++ {
			ret = append(ret, i)
		}
	}
	return ret
}

// pixelLayout returns the physical LED index of every pixel the renderer
// draws. Segments are concatenated in config order, LEDs outside every
// segment stay dark. Without segments the whole strip is used.
func pixelLayout(display config.DisplayConfig) []int {
	total := display.LedsTotal
	if total <= 0 {
		return nil
	}
	if len(display.Segments) == 0 {
		return newSegment(0, total-1, false, total).indices()
	}

	used := make([]bool, total)
	layout := make([]int, 0, total)
	for _, sc := range display.Segments {
		for _, i := range newSegment(sc.FirstLed, sc.LastLed, sc.Reverse, total).indices() {
			if used[i] {
				slog.Warn("LED belongs to more than one segment, drawing it once", "led", i)
				continue
			}
			used[i] = true
			layout = append(layout, i)
		}
	}
	return layout
}

// clamp ensures the LED index is within bounds.
func clamp(led int, ledsTotal int) int {
	if led < 0 {
		slog.Warn("led index is smaller than 0, using 0", "led", led)
		return 0
	} else if led <= ledsTotal-1 {
		return led
	} else {
		slog.Warn("led index is bigger than max index, using max", "led", led, "max", ledsTotal-1)
		return ledsTotal - 1
	}
}
