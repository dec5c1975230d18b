package genome

import (
	"errors"
	"math"
	"math/rand"
	"testing"
)

func TestDecodeBitLayout(t *testing.T) {
	l := Layout{Genes: 1, Neurons: 16, Inputs: 4, Outputs: 2}

	tests := []struct {
		name string
		gene Gene
		want Connection
	}{
		{
			name: "neuron to neuron, zero weight bits",
			gene: 0x0000_0000,
			want: Connection{Source: NeuronSource(0), Sink: NeuronSink(0), Weight: -1},
		},
		{
			name: "input to output, full weight",
			gene: 0x8180_FFFF, // src input 1, sink output 0
			want: Connection{Source: InputSource(1), Sink: OutputSink(0), Weight: 1},
		},
		{
			name: "indices wrap modulo counts",
			gene: 0x7F7F_FFFF, // src neuron 127, sink neuron 127
			want: Connection{Source: NeuronSource(127 % 16), Sink: NeuronSink(127 % 16), Weight: 1},
		},
		{
			name: "input index wraps modulo inputs",
			gene: 0x8600_FFFF, // src input 6
			want: Connection{Source: InputSource(6 % 4), Sink: NeuronSink(0), Weight: 1},
		},
		{
			name: "output index wraps modulo outputs",
			gene: 0x0085_FFFF, // sink output 5
			want: Connection{Source: NeuronSource(0), Sink: OutputSink(5 % 2), Weight: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := l.Decode([]Gene{tt.gene})[0]
			if got != tt.want {
				t.Errorf("Decode(%#08x) = %v, want %v", uint32(tt.gene), got, tt.want)
			}
		})
	}
}

func TestDecodeWeightRanges(t *testing.T) {
	tests := []struct {
		name    string
		weights WeightRange
		bits    uint16
		want    float32
	}{
		{"signed min", WeightsSigned, 0, -1},
		{"signed max", WeightsSigned, 0xFFFF, 1},
		{"unsigned min", WeightsUnsigned, 0, 0},
		{"unsigned max", WeightsUnsigned, 0xFFFF, 1},
		{"unsigned mid", WeightsUnsigned, 0x8000, 32768.0 / 65535.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := Layout{Genes: 1, Neurons: 1, Inputs: 1, Outputs: 1, Weights: tt.weights}
			got := l.Decode([]Gene{Gene(tt.bits)})[0].Weight
			if math.Abs(float64(got-tt.want)) > 1e-6 {
				t.Errorf("weight = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDecodeTotality(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	layouts := []Layout{
		{Genes: 64, Neurons: 1, Inputs: 1, Outputs: 1},
		{Genes: 64, Neurons: 3, Inputs: 5, Outputs: 7},
		{Genes: 64, Neurons: 128, Inputs: 128, Outputs: 128},
		{Genes: 64, Neurons: 200, Inputs: 1, Outputs: 9, Weights: WeightsUnsigned},
	}
	for _, l := range layouts {
		for round := 0; round < 50; round++ {
			genes := Random(rng, l.Genes)
			genes[0] = 0xFFFF_FFFF
			genes[1] = 0
			for i, c := range l.Decode(genes) {
				if !inBounds(c.Source, l) || !inBounds(c.Sink, l) {
					t.Fatalf("layout %+v gene %#08x decoded out of bounds: %v", l, uint32(genes[i]), c)
				}
				if c.Source.Kind == Output || c.Sink.Kind == Input {
					t.Fatalf("gene %#08x decoded to illegal endpoint kinds: %v", uint32(genes[i]), c)
				}
				lo := float32(-1)
				if l.Weights == WeightsUnsigned {
					lo = 0
				}
				if c.Weight < lo || c.Weight > 1 {
					t.Fatalf("weight %v outside [%v, 1]", c.Weight, lo)
				}
			}
		}
	}
}

func inBounds(e Endpoint, l Layout) bool {
	switch e.Kind {
	case Neuron:
		return e.Index >= 0 && e.Index < l.Neurons
	case Input:
		return e.Index >= 0 && e.Index < l.Inputs
	case Output:
		return e.Index >= 0 && e.Index < l.Outputs
	}
	return false
}

func TestDecodePreservesOrder(t *testing.T) {
	l := Layout{Genes: 3, Neurons: 8, Inputs: 8, Outputs: 8}
	want := []Connection{
		{Source: InputSource(2), Sink: NeuronSink(5), Weight: 1},
		{Source: NeuronSource(5), Sink: OutputSink(1), Weight: -1},
		{Source: NeuronSource(7), Sink: NeuronSink(3), Weight: 1},
	}
	genes := make([]Gene, len(want))
	for i, c := range want {
		genes[i] = l.Encode(c)
	}
	got := l.Decode(genes)
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("connection %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	l := Layout{Genes: 1, Neurons: 128, Inputs: 128, Outputs: 128}
	for i := 0; i < 1000; i++ {
		g := Gene(rng.Uint32())
		if back := l.Encode(l.Decode([]Gene{g})[0]); back != g {
			t.Fatalf("Encode(Decode(%#08x)) = %#08x", uint32(g), uint32(back))
		}
	}
}

func TestEncodeClampsWeight(t *testing.T) {
	l := Layout{Genes: 1, Neurons: 1, Inputs: 1, Outputs: 1}
	g := l.Encode(Connection{Source: NeuronSource(0), Sink: NeuronSink(0), Weight: 5})
	if uint32(g)&weightMask != weightMask {
		t.Errorf("weight bits = %#04x, want 0xffff", uint32(g)&weightMask)
	}
	g = l.Encode(Connection{Source: NeuronSource(0), Sink: NeuronSink(0), Weight: -5})
	if uint32(g)&weightMask != 0 {
		t.Errorf("weight bits = %#04x, want 0", uint32(g)&weightMask)
	}
}

func TestLayoutValidate(t *testing.T) {
	tests := []struct {
		name    string
		layout  Layout
		wantErr bool
	}{
		{"valid", Layout{Genes: 32, Neurons: 16, Inputs: 1, Outputs: 1}, false},
		{"zero genes", Layout{Genes: 0, Neurons: 16, Inputs: 1, Outputs: 1}, true},
		{"zero neurons", Layout{Genes: 32, Neurons: 0, Inputs: 1, Outputs: 1}, true},
		{"zero inputs", Layout{Genes: 32, Neurons: 16, Inputs: 0, Outputs: 1}, true},
		{"negative outputs", Layout{Genes: 32, Neurons: 16, Inputs: 1, Outputs: -1}, true},
		{"bad weights", Layout{Genes: 1, Neurons: 1, Inputs: 1, Outputs: 1, Weights: 9}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.layout.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidLayout) {
				t.Errorf("error %v does not wrap ErrInvalidLayout", err)
			}
		})
	}
}

func TestDecodePanicsOnInvalidLayout(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic decoding against a zero-neuron layout")
		}
	}()
	Layout{Genes: 1, Inputs: 1, Outputs: 1}.Decode([]Gene{0})
}

func TestParseWeightRange(t *testing.T) {
	for _, name := range []string{"", "signed", "unsigned"} {
		if _, err := ParseWeightRange(name); err != nil {
			t.Errorf("ParseWeightRange(%q) error: %v", name, err)
		}
	}
	if _, err := ParseWeightRange("bipolar"); err == nil {
		t.Error("expected error for unknown range")
	}
}

func TestRandomDeterministic(t *testing.T) {
	a := Random(rand.New(rand.NewSource(3)), 32)
	b := Random(rand.New(rand.NewSource(3)), 32)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("gene %d differs: %#08x vs %#08x", i, uint32(a[i]), uint32(b[i]))
		}
	}
}

func TestConnectionString(t *testing.T) {
	c := Connection{Source: InputSource(0), Sink: OutputSink(2), Weight: 0.5}
	if got, want := c.String(), "in0->out2 (+0.500)"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func BenchmarkDecode(b *testing.B) {
	l := Layout{Genes: 32, Neurons: 16, Inputs: 1, Outputs: 1}
	genes := Random(rand.New(rand.NewSource(42)), l.Genes)
	dst := make([]Connection, len(genes))
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		l.DecodeInto(dst, genes)
	}
}
