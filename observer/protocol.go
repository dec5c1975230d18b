package observer

import "github.com/pthm-cable/genesoup/neural"

// Version is the observer protocol version.
const Version = 1

// Client -> Server. First message on the observer WS connection, and can be re-sent to change the interval.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion int    `json:"protocol_version"`
	IntervalMS      int    `json:"interval_ms"`
}

// HTTP response for GET /bootstrap.
type BootstrapResponse struct {
	ProtocolVersion int           `json:"protocol_version"`
	Tick            int64         `json:"tick"`
	Organisms       int           `json:"organisms"`
	Network         NetworkParams `json:"network"`
}

type NetworkParams struct {
	Genes   int    `json:"genes"`
	Neurons int    `json:"neurons"`
	Inputs  int    `json:"inputs"`
	Outputs int    `json:"outputs"`
	Weights string `json:"weights"`
}

// Server -> Client. Published outputs of every organism, sent at the subscribed interval.
// Values are read without locking and may span adjacent ticks.
type FrameMsg struct {
	Type    string        `json:"type"`
	Tick    int64         `json:"tick"`
	Outputs neural.Values `json:"outputs"`
}
