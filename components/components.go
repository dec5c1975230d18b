// Package components defines ECS components for the simulation.
package components

import (
	"encoding/json"
	"math"

	"github.com/pthm-cable/genesoup/neural"
)

// Organism ties an entity to its population slot.
type Organism struct {
	ID   uint32
	Slot int // index into the population and its publication slots
}

// Sensor drives an organism's inputs with a sine wave.
// input[k] = Amplitude * sin(2*pi*Frequency*t + Phase + k*ChannelOffset)
type Sensor struct {
	Frequency     float32 `json:"frequency"` // Hz
	Amplitude     float32 `json:"amplitude"`
	Phase         float32 `json:"phase"`          // radians
	ChannelOffset float32 `json:"channel_offset"` // radians between consecutive input channels
}

// MarshalJSON implements json.Marshaler. Non-finite fields encode as null.
func (s Sensor) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Frequency     neural.Value `json:"frequency"`
		Amplitude     neural.Value `json:"amplitude"`
		Phase         neural.Value `json:"phase"`
		ChannelOffset neural.Value `json:"channel_offset"`
	}{
		neural.Value(s.Frequency),
		neural.Value(s.Amplitude),
		neural.Value(s.Phase),
		neural.Value(s.ChannelOffset),
	})
}

// Readout is the consumer-side view of an organism's published output.
// Min and Max cover finite observations only; NonFinite counts the rest.
type Readout struct {
	Value     float32 `json:"value"` // last observed published value
	Min       float32 `json:"min"`
	Max       float32 `json:"max"`
	NonFinite int     `json:"non_finite"`
	Seen      bool    `json:"seen"` // false until the first observation

	ranged bool
}

// Observe records v, tracking the running extremes.
func (r *Readout) Observe(v float32) {
	r.Value = v
	r.Seen = true
	if f := float64(v); math.IsNaN(f) || math.IsInf(f, 0) {
		r.NonFinite++
		return
	}
	if !r.ranged {
		r.Min, r.Max, r.ranged = v, v, true
		return
	}
	r.Min = min(r.Min, v)
	r.Max = max(r.Max, v)
}

// MarshalJSON implements json.Marshaler. A non-finite Value encodes as null.
func (r Readout) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Value     neural.Value `json:"value"`
		Min       neural.Value `json:"min"`
		Max       neural.Value `json:"max"`
		NonFinite int          `json:"non_finite"`
		Seen      bool         `json:"seen"`
	}{
		neural.Value(r.Value),
		neural.Value(r.Min),
		neural.Value(r.Max),
		r.NonFinite,
		r.Seen,
	})
}
