// Package sim drives a population of organisms through simulated time.
//
// A Sim owns the population and an ECS world binding each organism to its
// input drive and readout. Step holds an exclusive lock for the whole tick;
// Snapshot takes the read lock, and published outputs are read lock-free.
package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/mlange-42/ark/ecs"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/pthm-cable/genesoup/components"
	"github.com/pthm-cable/genesoup/config"
	"github.com/pthm-cable/genesoup/genome"
	"github.com/pthm-cable/genesoup/neural"
	"github.com/pthm-cable/genesoup/population"
	"github.com/pthm-cable/genesoup/telemetry"
	"github.com/pthm-cable/genesoup/trace"
)

// ErrNoOrganism is returned when an organism index is out of range.
var ErrNoOrganism = errors.New("no such organism")

// Option configures a Sim.
type Option func(*options)

type options struct {
	genomes [][]genome.Gene
	output  *telemetry.OutputManager
	trace   *trace.Writer
}

// WithGenomes builds the population from the given genomes instead of
// random ones. There must be one genome per organism.
func WithGenomes(genomes [][]genome.Gene) Option {
	return func(o *options) { o.genomes = genomes }
}

// WithOutput writes window and perf stats through om. The Sim closes it.
func WithOutput(om *telemetry.OutputManager) Option {
	return func(o *options) { o.output = om }
}

// WithTrace records published outputs to w. The Sim closes it.
func WithTrace(w *trace.Writer) Option {
	return func(o *options) { o.trace = w }
}

// Sim holds the complete simulation state.
type Sim struct {
	cfg *config.Config

	mu    sync.RWMutex
	world *ecs.World

	// Entity mapper and filter over the organism components
	entityMapper *ecs.Map3[
		components.Organism,
		components.Sensor,
		components.Readout,
	]
	entityFilter *ecs.Filter3[
		components.Organism,
		components.Sensor,
		components.Readout,
	]

	// Individual component mappers for lookups
	sensorMap  *ecs.Map1[components.Sensor]
	readoutMap *ecs.Map1[components.Readout]

	entities []ecs.Entity // by population slot
	pop      *population.Population

	tick atomic.Int64

	// Telemetry
	perf      *telemetry.PerfCollector
	collector *telemetry.Collector
	output    *telemetry.OutputManager
	trace     *trace.Writer
	published []float32
}

// New creates a simulation from cfg. seed drives genome generation and
// per-organism sensor jitter.
func New(cfg *config.Config, seed int64, opts ...Option) (*Sim, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	size := cfg.Population.Size
	if o.genomes != nil && len(o.genomes) != size {
		return nil, fmt.Errorf("got %d genomes for population of %d", len(o.genomes), size)
	}

	rng := rand.New(rand.NewSource(seed))
	layout := cfg.Derived.Layout
	mode := neural.WithMode(cfg.Derived.Mode)

	organisms := make([]*neural.Organism, size)
	sensors := make([]components.Sensor, size)
	for i := range organisms {
		var err error
		if o.genomes != nil {
			organisms[i], err = neural.New(layout, o.genomes[i], mode)
		} else {
			organisms[i], err = neural.NewRandom(layout, rng, mode)
		}
		if err != nil {
			return nil, fmt.Errorf("organism %d: %w", i, err)
		}
		sensors[i] = newSensor(cfg.Environment, rng)
	}

	pop, err := population.New(organisms,
		population.WithWorkers(cfg.Population.Workers),
		population.WithParallelThreshold(cfg.Population.ParallelThreshold),
		population.WithChannel(cfg.Population.PublishChannel),
	)
	if err != nil {
		return nil, err
	}

	world := ecs.NewWorld()
	s := &Sim{
		cfg:   cfg,
		world: world,
		entityMapper: ecs.NewMap3[
			components.Organism,
			components.Sensor,
			components.Readout,
		](world),
		entityFilter: ecs.NewFilter3[
			components.Organism,
			components.Sensor,
			components.Readout,
		](world),
		sensorMap:  ecs.NewMap1[components.Sensor](world),
		readoutMap: ecs.NewMap1[components.Readout](world),
		entities:   make([]ecs.Entity, size),
		pop:        pop,
		perf:       telemetry.NewPerfCollector(cfg.Telemetry.PerfCollectorWindow, size),
		collector:  telemetry.NewCollector(cfg.Telemetry.StatsWindow, cfg.Environment.DT),
		output:     o.output,
		trace:      o.trace,
		published:  make([]float32, size),
	}

	for i := range organisms {
		org := components.Organism{ID: uint32(i), Slot: i}
		readout := components.Readout{}
		s.entities[i] = s.entityMapper.NewEntity(&org, &sensors[i], &readout)
	}

	slog.Info("simulation created",
		"organisms", size,
		"genes", layout.Genes,
		"neurons", layout.Neurons,
		"inputs", layout.Inputs,
		"outputs", layout.Outputs,
		"weights", layout.Weights.String(),
		"mode", cfg.Derived.Mode.String(),
		"workers", pop.Workers(),
		"seed", seed,
	)
	return s, nil
}

// newSensor draws one organism's input drive from the environment settings.
func newSensor(env config.EnvironmentConfig, rng *rand.Rand) components.Sensor {
	freq := env.Frequency
	if env.FrequencyJitter > 0 {
		freq *= 1 + env.FrequencyJitter*(2*rng.Float64()-1)
	}
	var phase float64
	if env.PhaseJitter > 0 {
		phase = rng.Float64() * env.PhaseJitter
	}
	return components.Sensor{
		Frequency:     float32(freq),
		Amplitude:     float32(env.Amplitude),
		Phase:         float32(phase),
		ChannelOffset: float32(env.ChannelOffset),
	}
}

// Step advances every organism by one tick.
// Errors come only from telemetry and trace output; the tick itself always completes.
func (s *Sim) Step() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.perf.StartTick()
	t := float64(s.tick.Load()) * s.cfg.Environment.DT

	s.perf.StartPhase(telemetry.PhaseInputs)
	s.feedInputs(t)

	s.perf.StartPhase(telemetry.PhaseEvaluate)
	s.pop.Step()

	s.perf.StartPhase(telemetry.PhaseReadout)
	s.observeOutputs()

	tick := s.tick.Add(1)

	s.perf.StartPhase(telemetry.PhaseTelemetry)
	err := s.record(tick)

	s.perf.EndTick()
	return err
}

// feedInputs writes each organism's sensor drive for time t into its inputs.
func (s *Sim) feedInputs(t float64) {
	query := s.entityFilter.Query()
	for query.Next() {
		org, sensor, _ := query.Get()
		inputs := s.pop.Organism(org.Slot).Inputs
		base := 2*math.Pi*float64(sensor.Frequency)*t + float64(sensor.Phase)
		for k := range inputs {
			x := base + float64(k)*float64(sensor.ChannelOffset)
			inputs[k] = sensor.Amplitude * float32(math.Sin(x))
		}
	}
}

// observeOutputs copies each organism's published value into its readout.
func (s *Sim) observeOutputs() {
	query := s.entityFilter.Query()
	for query.Next() {
		org, _, readout := query.Get()
		readout.Observe(s.pop.Value(org.Slot))
	}
}

// record writes the trace frame and window stats due at tick.
func (s *Sim) record(tick int64) error {
	var errs []error

	if s.trace != nil && s.trace.Due(tick) {
		s.published = s.pop.Published(s.published)
		if err := s.trace.Record(tick, s.published); err != nil {
			errs = append(errs, fmt.Errorf("recording trace: %w", err))
		}
	}

	if s.collector.ShouldFlush(tick) {
		s.published = s.pop.Published(s.published)
		stats := s.collector.Flush(tick, s.published, s.neuronAbsMean())
		stats.LogStats()
		if err := s.output.WriteTelemetry(stats); err != nil {
			errs = append(errs, err)
		}

		perfStats := s.perf.Stats()
		perfStats.LogStats()
		if err := s.output.WritePerf(perfStats, tick); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// neuronAbsMean returns the mean absolute neuron activation across the population.
func (s *Sim) neuronAbsMean() float64 {
	var sum float64
	var count int
	for i := range s.pop.Len() {
		neurons := s.pop.Organism(i).Neurons
		sum += float64(blas32.Asum(blas32.Vector{N: len(neurons), Data: neurons, Inc: 1}))
		count += len(neurons)
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// Run steps until ctx is cancelled or maxTicks ticks have elapsed.
// maxTicks <= 0 runs until cancelled. Cancellation is checked between ticks.
func (s *Sim) Run(ctx context.Context, maxTicks int64) error {
	for maxTicks <= 0 || s.Tick() < maxTicks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.Step(); err != nil {
			return err
		}
	}
	return nil
}

// Tick returns the number of completed ticks. Safe to call during Step.
func (s *Sim) Tick() int64 {
	return s.tick.Load()
}

// Len returns the population size.
func (s *Sim) Len() int {
	return s.pop.Len()
}

// Layout returns the genome layout shared by every organism.
func (s *Sim) Layout() genome.Layout {
	return s.cfg.Derived.Layout
}

// Published copies every organism's published output into dst without
// taking the lock. Values may come from different ticks.
func (s *Sim) Published(dst []float32) []float32 {
	return s.pop.Published(dst)
}

// OrganismView is a point-in-time copy of one organism.
type OrganismView struct {
	ID          uint32             `json:"id"`
	Tick        int64              `json:"tick"`
	Genome      []genome.Gene      `json:"genome"`
	Connections []string           `json:"connections"`
	State       neural.State       `json:"state"`
	Sensor      components.Sensor  `json:"sensor"`
	Readout     components.Readout `json:"readout"`
}

// Snapshot returns a copy of organism i, consistent with a single tick.
func (s *Sim) Snapshot(i int) (OrganismView, error) {
	if i < 0 || i >= s.pop.Len() {
		return OrganismView{}, fmt.Errorf("%w: %d", ErrNoOrganism, i)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	o := s.pop.Organism(i)
	e := s.entities[i]
	conns := make([]string, len(o.Connections))
	for k, c := range o.Connections {
		conns[k] = c.String()
	}
	return OrganismView{
		ID:          uint32(i),
		Tick:        s.tick.Load(),
		Genome:      append([]genome.Gene(nil), o.Genome...),
		Connections: conns,
		State:       o.State(),
		Sensor:      *s.sensorMap.Get(e),
		Readout:     *s.readoutMap.Get(e),
	}, nil
}

// Close stops the worker pool and closes the trace and output files.
func (s *Sim) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pop.Close()
	var errs []error
	if s.trace != nil {
		errs = append(errs, s.trace.Close())
	}
	errs = append(errs, s.output.Close())
	return errors.Join(errs...)
}
