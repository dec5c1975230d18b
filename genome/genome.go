// Package genome decodes fixed-width genes into network connections.
//
// Each gene is a 32-bit word read from the most significant bit down:
//
//	bit  31     source kind (0 = neuron, 1 = input)
//	bits 30-24  source index (raw, 0-127)
//	bit  23     sink kind (0 = neuron, 1 = output)
//	bits 22-16  sink index (raw, 0-127)
//	bits 15-0   weight (0-65535, rescaled per WeightRange)
//
// Raw indices are reduced modulo the count of the addressed kind, so every
// bit pattern decodes to a connection that is valid for its Layout.
package genome

import (
	"errors"
	"fmt"
	"math"
)

// Gene is one encoded connection.
type Gene uint32

// Bit positions and masks of the gene layout.
const (
	sourceKindBit   = 31
	sourceIndexShft = 24
	sinkKindBit     = 23
	sinkIndexShft   = 16
	indexMask       = 0x7F
	weightMask      = 0xFFFF

	// MaxIndex is the largest raw index a gene can carry.
	MaxIndex = indexMask
)

// ErrInvalidLayout is returned when a layout has a non-positive count.
var ErrInvalidLayout = errors.New("invalid genome layout")

// WeightRange selects how the 16 weight bits are rescaled.
type WeightRange uint8

const (
	WeightsSigned   WeightRange = iota // v/65535*2-1, in [-1, 1]
	WeightsUnsigned                    // v/65535, in [0, 1]
)

func (w WeightRange) String() string {
	switch w {
	case WeightsSigned:
		return "signed"
	case WeightsUnsigned:
		return "unsigned"
	}
	return fmt.Sprintf("WeightRange(%d)", uint8(w))
}

// ParseWeightRange maps a config name to a WeightRange.
func ParseWeightRange(s string) (WeightRange, error) {
	switch s {
	case "", "signed":
		return WeightsSigned, nil
	case "unsigned":
		return WeightsUnsigned, nil
	}
	return 0, fmt.Errorf("unknown weight range %q", s)
}

// Layout holds the construction-time sizes an organism is decoded against.
type Layout struct {
	Genes   int
	Neurons int
	Inputs  int
	Outputs int
	Weights WeightRange
}

// Validate reports whether every count is positive.
func (l Layout) Validate() error {
	check := func(name string, n int) error {
		if n < 1 {
			return fmt.Errorf("%w: %s must be positive, got %d", ErrInvalidLayout, name, n)
		}
		return nil
	}
	if err := check("genes", l.Genes); err != nil {
		return err
	}
	if err := check("neurons", l.Neurons); err != nil {
		return err
	}
	if err := check("inputs", l.Inputs); err != nil {
		return err
	}
	if err := check("outputs", l.Outputs); err != nil {
		return err
	}
	if l.Weights > WeightsUnsigned {
		return fmt.Errorf("%w: weights %v", ErrInvalidLayout, l.Weights)
	}
	return nil
}

// Decode resolves every gene into a connection, preserving gene order.
// The layout must be valid; Decode panics otherwise.
func (l Layout) Decode(genes []Gene) []Connection {
	out := make([]Connection, len(genes))
	l.DecodeInto(out, genes)
	return out
}

// DecodeInto decodes genes into dst, which must be at least len(genes) long.
func (l Layout) DecodeInto(dst []Connection, genes []Gene) {
	if err := l.Validate(); err != nil {
		panic(fmt.Sprintf("genome: decode: %v", err))
	}
	for i, g := range genes {
		dst[i] = l.decodeGene(g)
	}
}

func (l Layout) decodeGene(g Gene) Connection {
	srcIdx := int(uint32(g)>>sourceIndexShft) & indexMask
	sinkIdx := int(uint32(g)>>sinkIndexShft) & indexMask

	var c Connection
	if uint32(g)>>sourceKindBit&1 == 1 {
		c.Source = Endpoint{Kind: Input, Index: srcIdx % l.Inputs}
	} else {
		c.Source = Endpoint{Kind: Neuron, Index: srcIdx % l.Neurons}
	}
	if uint32(g)>>sinkKindBit&1 == 1 {
		c.Sink = Endpoint{Kind: Output, Index: sinkIdx % l.Outputs}
	} else {
		c.Sink = Endpoint{Kind: Neuron, Index: sinkIdx % l.Neurons}
	}
	c.Weight = l.weight(uint16(uint32(g) & weightMask))
	return c
}

func (l Layout) weight(v uint16) float32 {
	w := float32(v) / weightMask
	if l.Weights == WeightsSigned {
		return w*2 - 1
	}
	return w
}

// Encode packs a connection into a gene. Indices above MaxIndex are masked,
// weights are clamped to the layout's range and quantised to 16 bits.
// Encode(Decode(g)) is not guaranteed to equal g for aliased indices.
func (l Layout) Encode(c Connection) Gene {
	var g uint32
	if c.Source.Kind == Input {
		g |= 1 << sourceKindBit
	}
	g |= uint32(c.Source.Index&indexMask) << sourceIndexShft
	if c.Sink.Kind == Output {
		g |= 1 << sinkKindBit
	}
	g |= uint32(c.Sink.Index&indexMask) << sinkIndexShft

	w := float64(c.Weight)
	if l.Weights == WeightsSigned {
		w = (w + 1) / 2
	}
	w = math.Max(0, math.Min(1, w))
	g |= uint32(math.Round(w*weightMask)) & weightMask
	return Gene(g)
}

// Source is the randomness an organism's genome is drawn from.
// *rand.Rand satisfies it.
type Source interface {
	Uint32() uint32
}

// Random draws n genes from src.
func Random(src Source, n int) []Gene {
	genes := make([]Gene, n)
	for i := range genes {
		genes[i] = Gene(src.Uint32())
	}
	return genes
}
