package telemetry

// Collector groups ticks into fixed windows and produces WindowStats.
type Collector struct {
	windowTicks int64
	dt          float64

	windowStartTick int64
	scratch         []float64
}

// NewCollector creates a new stats collector.
// windowTicks: ticks per stats window
// dt: simulated seconds per tick
func NewCollector(windowTicks int, dt float64) *Collector {
	if windowTicks < 1 {
		windowTicks = 1
	}
	return &Collector{
		windowTicks: int64(windowTicks),
		dt:          dt,
	}
}

// ShouldFlush returns true if enough ticks have passed to flush the window.
func (c *Collector) ShouldFlush(currentTick int64) bool {
	return currentTick-c.windowStartTick >= c.windowTicks
}

// Flush produces a WindowStats and starts the next window.
// outputs are the published values at window end; neuronAbsMean is the mean
// absolute neuron activation across the population.
func (c *Collector) Flush(currentTick int64, outputs []float32, neuronAbsMean float64) WindowStats {
	if cap(c.scratch) < len(outputs) {
		c.scratch = make([]float64, len(outputs))
	}
	c.scratch = c.scratch[:len(outputs)]
	for i, v := range outputs {
		c.scratch[i] = float64(v)
	}
	d := Summarize(c.scratch)

	stats := WindowStats{
		WindowStartTick: c.windowStartTick,
		WindowEndTick:   currentTick,
		SimTimeSec:      float64(currentTick) * c.dt,
		Organisms:       len(outputs),
		OutputMean:      d.Mean,
		OutputStd:       d.Std,
		OutputMin:       d.Min,
		OutputP10:       d.P10,
		OutputP50:       d.P50,
		OutputP90:       d.P90,
		OutputMax:       d.Max,
		NonFinite:       d.NonFinite,
		NeuronAbsMean:   neuronAbsMean,
	}

	c.windowStartTick = currentTick
	return stats
}

// WindowTicks returns the number of ticks per window.
func (c *Collector) WindowTicks() int64 {
	return c.windowTicks
}
