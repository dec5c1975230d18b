package genome

import "fmt"

// Kind tags which state array an endpoint addresses.
type Kind uint8

const (
	Neuron Kind = iota
	Input       // valid as a source only
	Output      // valid as a sink only
)

func (k Kind) String() string {
	switch k {
	case Neuron:
		return "n"
	case Input:
		return "in"
	case Output:
		return "out"
	}
	return fmt.Sprintf("kind%d", uint8(k))
}

// Endpoint is one end of a connection.
type Endpoint struct {
	Kind  Kind
	Index int
}

func (e Endpoint) String() string {
	return fmt.Sprintf("%s%d", e.Kind, e.Index)
}

// Connection is a decoded gene. Indices are always within the layout's counts.
type Connection struct {
	Source Endpoint
	Sink   Endpoint
	Weight float32
}

func (c Connection) String() string {
	return fmt.Sprintf("%s->%s (%+.3f)", c.Source, c.Sink, c.Weight)
}

// NeuronSource, InputSource, NeuronSink and OutputSink build endpoints.
func NeuronSource(i int) Endpoint { return Endpoint{Kind: Neuron, Index: i} }
func InputSource(i int) Endpoint  { return Endpoint{Kind: Input, Index: i} }
func NeuronSink(i int) Endpoint   { return Endpoint{Kind: Neuron, Index: i} }
func OutputSink(i int) Endpoint   { return Endpoint{Kind: Output, Index: i} }
