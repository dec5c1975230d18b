package population

import (
	"math"
	"sync/atomic"
)

// Slot is a single-writer, lock-free float32 publication cell.
// Readers may observe the previous tick's value.
type Slot struct {
	bits atomic.Uint32
}

// Store publishes v.
func (s *Slot) Store(v float32) {
	s.bits.Store(math.Float32bits(v))
}

// Load returns the last published value.
func (s *Slot) Load() float32 {
	return math.Float32frombits(s.bits.Load())
}
