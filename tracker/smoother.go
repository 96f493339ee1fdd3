package tracker

import (
	"github.com/gammazero/deque"
)

// Smoother averages the last size samples. A zero sample empties the
// window, so stopping pedalling is reported immediately.
type Smoother struct {
	size   int
	window deque.Deque[uint32]
	sum    uint64
}

// NewSmoother returns a smoother over size samples. A size below two
// passes samples through unchanged.
func NewSmoother(size int) *Smoother {
	if size < 1 {
		size = 1
	}
	return &Smoother{size: size}
}

// Add records watts and returns the current average.
func (s *Smoother) Add(watts uint32) uint32 {
	if watts == 0 || s.size == 1 {
		s.Reset()
		return watts
	}
	s.window.PushBack(watts)
	s.sum += uint64(watts)
	for s.window.Len() > s.size {
		s.sum -= uint64(s.window.PopFront())
	}
	return uint32(s.sum / uint64(s.window.Len()))
}

func (s *Smoother) Reset() {
	s.window.Clear()
	s.sum = 0
}
