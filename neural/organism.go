// Package neural evaluates genome-encoded recurrent networks one tick at a time.
package neural

import (
	"fmt"

	"gonum.org/v1/gonum/blas/blas32"

	"github.com/pthm-cable/genesoup/genome"
)

// Mode selects how connections are applied within a tick.
type Mode uint8

const (
	// Sequential folds connections in genome order, mutating state in place.
	// A neuron written by an earlier connection is read post-write by later
	// connections in the same tick.
	Sequential Mode = iota

	// Buffered reads every source from pre-tick state, collects contributions
	// and applies them after the sweep. Results differ from Sequential whenever
	// a neuron is both a sink and a later source within one tick.
	Buffered
)

func (m Mode) String() string {
	switch m {
	case Sequential:
		return "sequential"
	case Buffered:
		return "buffered"
	}
	return fmt.Sprintf("Mode(%d)", uint8(m))
}

// ParseMode maps a config name to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "sequential":
		return Sequential, nil
	case "buffered":
		return Buffered, nil
	}
	return 0, fmt.Errorf("unknown update mode %q", s)
}

// Organism is one decoded network with its own state. All slices are sized at
// construction and never resized.
type Organism struct {
	Genome      []genome.Gene
	Connections []genome.Connection

	Neurons []float32
	Inputs  []float32 // written by the environment before each tick
	Outputs []float32 // accumulated by Update, read after each tick

	layout genome.Layout
	mode   Mode

	// Buffered mode scratch.
	neuronDelta []float32
	outputDelta []float32
}

// Option configures an Organism.
type Option func(*Organism)

// WithMode sets the update mode. The default is Sequential.
func WithMode(m Mode) Option {
	return func(o *Organism) { o.mode = m }
}

// New decodes genes against layout. It fails if the layout has a non-positive
// count or genes does not hold exactly layout.Genes entries.
func New(layout genome.Layout, genes []genome.Gene, opts ...Option) (*Organism, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	if len(genes) != layout.Genes {
		return nil, fmt.Errorf("%w: got %d genes, layout wants %d",
			genome.ErrInvalidLayout, len(genes), layout.Genes)
	}

	o := &Organism{
		Genome:      append([]genome.Gene(nil), genes...),
		Connections: layout.Decode(genes),
		Neurons:     make([]float32, layout.Neurons),
		Inputs:      make([]float32, layout.Inputs),
		Outputs:     make([]float32, layout.Outputs),
		layout:      layout,
	}
	for _, opt := range opts {
		opt(o)
	}
	switch o.mode {
	case Sequential:
	case Buffered:
		o.neuronDelta = make([]float32, layout.Neurons)
		o.outputDelta = make([]float32, layout.Outputs)
	default:
		return nil, fmt.Errorf("unknown update mode %v", o.mode)
	}
	return o, nil
}

// NewRandom draws a genome from src and decodes it.
func NewRandom(layout genome.Layout, src genome.Source, opts ...Option) (*Organism, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	return New(layout, genome.Random(src, layout.Genes), opts...)
}

// Layout returns the layout the organism was decoded against.
func (o *Organism) Layout() genome.Layout { return o.layout }

// Mode returns the update mode.
func (o *Organism) Mode() Mode { return o.mode }

// Update advances the network by one tick. It never fails and does not allocate.
func (o *Organism) Update() {
	if o.mode == Buffered {
		o.updateBuffered()
		return
	}

	neurons, inputs, outputs := o.Neurons, o.Inputs, o.Outputs
	for i := range o.Connections {
		c := &o.Connections[i]

		var v float32
		if c.Source.Kind == genome.Input {
			v = inputs[c.Source.Index]
		} else {
			v = neurons[c.Source.Index]
		}
		contrib := Sigmoid(v) * c.Weight

		if c.Sink.Kind == genome.Output {
			outputs[c.Sink.Index] += contrib
		} else {
			neurons[c.Sink.Index] += contrib
		}
	}
}

func (o *Organism) updateBuffered() {
	clear(o.neuronDelta)
	clear(o.outputDelta)

	for i := range o.Connections {
		c := &o.Connections[i]

		var v float32
		if c.Source.Kind == genome.Input {
			v = o.Inputs[c.Source.Index]
		} else {
			v = o.Neurons[c.Source.Index]
		}
		contrib := Sigmoid(v) * c.Weight

		if c.Sink.Kind == genome.Output {
			o.outputDelta[c.Sink.Index] += contrib
		} else {
			o.neuronDelta[c.Sink.Index] += contrib
		}
	}

	axpy(o.neuronDelta, o.Neurons)
	axpy(o.outputDelta, o.Outputs)
}

// axpy adds delta into dst element-wise.
func axpy(delta, dst []float32) {
	blas32.Axpy(1,
		blas32.Vector{N: len(delta), Inc: 1, Data: delta},
		blas32.Vector{N: len(dst), Inc: 1, Data: dst},
	)
}

// Reset zeroes neurons and outputs. Inputs are left to the environment.
func (o *Organism) Reset() {
	clear(o.Neurons)
	clear(o.Outputs)
}

// State is a detached copy of an organism's activations.
type State struct {
	Neurons Values `json:"neurons"`
	Inputs  Values `json:"inputs"`
	Outputs Values `json:"outputs"`
}

// State copies the current activations.
func (o *Organism) State() State {
	return State{
		Neurons: append(Values(nil), o.Neurons...),
		Inputs:  append(Values(nil), o.Inputs...),
		Outputs: append(Values(nil), o.Outputs...),
	}
}

// Clone returns an independent organism with the same genome and state.
func (o *Organism) Clone() *Organism {
	clone := &Organism{
		Genome:      append([]genome.Gene(nil), o.Genome...),
		Connections: append([]genome.Connection(nil), o.Connections...),
		Neurons:     append([]float32(nil), o.Neurons...),
		Inputs:      append([]float32(nil), o.Inputs...),
		Outputs:     append([]float32(nil), o.Outputs...),
		layout:      o.layout,
		mode:        o.mode,
	}
	if o.mode == Buffered {
		clone.neuronDelta = make([]float32, len(o.neuronDelta))
		clone.outputDelta = make([]float32, len(o.outputDelta))
	}
	return clone
}
