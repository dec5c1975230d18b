package telemetry

import (
	"log/slog"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// WindowStats holds aggregated statistics for a window of ticks.
type WindowStats struct {
	WindowStartTick int64   `csv:"-"`
	WindowEndTick   int64   `csv:"window_end"`
	SimTimeSec      float64 `csv:"sim_time"`

	Organisms int `csv:"organisms"`

	// Published output distribution at window end (finite values only)
	OutputMean float64 `csv:"output_mean"`
	OutputStd  float64 `csv:"output_std"`
	OutputMin  float64 `csv:"output_min"`
	OutputP10  float64 `csv:"output_p10"`
	OutputP50  float64 `csv:"output_p50"`
	OutputP90  float64 `csv:"output_p90"`
	OutputMax  float64 `csv:"output_max"`
	NonFinite  int     `csv:"non_finite"` // outputs that overflowed to Inf or NaN

	// Mean absolute neuron activation across the population
	NeuronAbsMean float64 `csv:"neuron_abs_mean"`
}

// Distribution summarises a sample. Std is the sample standard deviation.
type Distribution struct {
	N         int
	NonFinite int
	Mean      float64
	Std       float64
	Min       float64
	P10       float64
	P50       float64
	P90       float64
	Max       float64
}

// Summarize computes the distribution of the finite values in values.
// values is reordered in place.
func Summarize(values []float64) Distribution {
	finite := values[:0]
	var d Distribution
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			d.NonFinite++
			continue
		}
		finite = append(finite, v)
	}
	d.N = len(finite)
	if d.N == 0 {
		return d
	}

	sort.Float64s(finite)
	d.Mean = stat.Mean(finite, nil)
	if d.N > 1 {
		d.Std = stat.StdDev(finite, nil)
	}
	d.Min = finite[0]
	d.Max = finite[d.N-1]
	d.P10 = stat.Quantile(0.10, stat.Empirical, finite, nil)
	d.P50 = stat.Quantile(0.50, stat.Empirical, finite, nil)
	d.P90 = stat.Quantile(0.90, stat.Empirical, finite, nil)
	return d
}

// LogValue implements slog.LogValuer for structured logging.
func (s WindowStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("window_start", s.WindowStartTick),
		slog.Int64("window_end", s.WindowEndTick),
		slog.Float64("sim_time", s.SimTimeSec),
		slog.Int("organisms", s.Organisms),
		slog.Float64("output_mean", s.OutputMean),
		slog.Float64("output_std", s.OutputStd),
		slog.Float64("output_min", s.OutputMin),
		slog.Float64("output_p10", s.OutputP10),
		slog.Float64("output_p50", s.OutputP50),
		slog.Float64("output_p90", s.OutputP90),
		slog.Float64("output_max", s.OutputMax),
		slog.Int("non_finite", s.NonFinite),
		slog.Float64("neuron_abs_mean", s.NeuronAbsMean),
	)
}

// LogStats logs the window stats using slog.
func (s WindowStats) LogStats() {
	slog.Info("stats",
		"window_end", s.WindowEndTick,
		"sim_time", s.SimTimeSec,
		"organisms", s.Organisms,
		"output_mean", s.OutputMean,
		"output_std", s.OutputStd,
		"output_p10", s.OutputP10,
		"output_p50", s.OutputP50,
		"output_p90", s.OutputP90,
		"non_finite", s.NonFinite,
		"neuron_abs_mean", s.NeuronAbsMean,
	)
}
