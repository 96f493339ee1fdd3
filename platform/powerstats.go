package platform

import (
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/gammazero/deque"
)

// number of power samples the statistics in the status line cover
const maxPowerHistory = 500

type powerStats struct {
	count  int
	min    uint32
	max    uint32
	mean   float64
	median float64
	stdDev float64
}

// powerHistory keeps the most recent raw power readings. It is safe for
// concurrent use.
type powerHistory struct {
	mu     sync.Mutex
	size   int
	values deque.Deque[uint32]
}

func newPowerHistory(size int) *powerHistory {
	h := &powerHistory{size: size}
	h.values.Grow(size)
	return h
}

func (h *powerHistory) Add(watts uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.values.Len() == h.size {
		h.values.PopFront()
	}
	h.values.PushBack(watts)
}

func (h *powerHistory) Stats() powerStats {
	h.mu.Lock()
	data := make([]uint32, h.values.Len())
	for i := range h.values.Len() {
		data[i] = h.values.At(i)
	}
	h.mu.Unlock()
	return calculateStats(data)
}

// calculateStats sorts data in place.
func calculateStats(data []uint32) powerStats {
	if len(data) == 0 {
		return powerStats{}
	}

	var sum uint64
	min, max := data[0], data[0]
	for _, v := range data {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
		sum += uint64(v)
	}
	mean := float64(sum) / float64(len(data))

	slices.Sort(data)
	var median float64
	mid := len(data) / 2
	if len(data)%2 == 0 {
		median = (float64(data[mid-1]) + float64(data[mid])) / 2.0
	} else {
		median = float64(data[mid])
	}

	var sumOfSquares float64
	for _, v := range data {
		sumOfSquares += (float64(v) - mean) * (float64(v) - mean)
	}
	stdDev := math.Sqrt(sumOfSquares / float64(len(data)))

	return powerStats{
		count:  len(data),
		min:    min,
		max:    max,
		mean:   mean,
		median: median,
		stdDev: stdDev,
	}
}

func statsText(stats powerStats) string {
	if stats.count == 0 {
		return "No power readings yet"
	}
	return fmt.Sprintf("Last %d readings [min|mean|median|max]: [#ffff00]%4d|%4.0f|%4.0f|%4d[-]W  Standard deviation: [#ffff00]%5.1f[-]W",
		stats.count, stats.min, math.Round(stats.mean), stats.median, stats.max, stats.stdDev)
}
