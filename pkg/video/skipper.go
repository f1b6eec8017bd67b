package video

import (
	"log"
	"sync"
	"time"
)

// DecodeRate is the fraction of frames the player decodes when the board
// cannot keep up with full-rate playback.
type DecodeRate int

const (
	RateFull  DecodeRate = iota // decode every frame
	RateHalf                    // decode every 2nd frame
	RateThird                   // decode every 3rd frame
)

func (r DecodeRate) String() string {
	switch r {
	case RateFull:
		return "full"
	case RateHalf:
		return "half"
	case RateThird:
		return "third"
	default:
		return "unknown"
	}
}

// Skipper adaptively drops decode work under sustained load. Transitions
// use hysteresis so a single slow frame never changes the rate.
type Skipper struct {
	mu sync.Mutex

	rate    DecodeRate
	counter uint64

	slow int
	good int

	// A frame-time average above slowAbove counts as slow, below
	// goodBelow as good. Between the two, counters reset.
	slowAbove time.Duration
	goodBelow time.Duration

	degradeAfter int
	recoverAfter int
}

// NewSkipper returns a skipper tuned for 60fps playback on ARM boards.
func NewSkipper() *Skipper {
	return &Skipper{
		rate:         RateFull,
		slowAbove:    30 * time.Millisecond,
		goodBelow:    20 * time.Millisecond,
		degradeAfter: 3,
		recoverAfter: 60,
	}
}

// Observe feeds one frame-time sample and reports whether the next frame
// should be decoded at the resulting rate.
func (s *Skipper) Observe(frameTime time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counter++
	s.classify(frameTime)
	s.transition()

	switch s.rate {
	case RateHalf:
		return s.counter%2 == 0
	case RateThird:
		return s.counter%3 == 0
	default:
		return true
	}
}

func (s *Skipper) classify(frameTime time.Duration) {
	switch {
	case frameTime > s.slowAbove:
		s.slow++
		s.good = 0
	case frameTime < s.goodBelow:
		s.good++
		s.slow = 0
	default:
		s.slow, s.good = 0, 0
	}
}

func (s *Skipper) transition() {
	switch s.rate {
	case RateFull:
		if s.slow >= s.degradeAfter {
			s.setRate(RateHalf)
		}
	case RateHalf:
		if s.slow >= s.degradeAfter+2 {
			s.setRate(RateThird)
		} else if s.good >= s.recoverAfter {
			s.setRate(RateFull)
		}
	case RateThird:
		if s.good >= s.recoverAfter/2 {
			s.setRate(RateHalf)
		}
	}
}

func (s *Skipper) setRate(rate DecodeRate) {
	log.Printf("video: decode rate %s -> %s", s.rate, rate)
	s.rate = rate
	s.slow, s.good = 0, 0
}

// Rate returns the current decode rate.
func (s *Skipper) Rate() DecodeRate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rate
}

// Reset returns to full-rate decoding, for use when switching media.
func (s *Skipper) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rate != RateFull {
		log.Printf("video: decode rate reset to full")
	}
	s.rate = RateFull
	s.counter = 0
	s.slow, s.good = 0, 0
}
