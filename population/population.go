// Package population steps many independent organisms in parallel and
// publishes one output per organism into lock-free slots.
package population

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/pthm-cable/genesoup/neural"
)

// DefaultParallelThreshold is the minimum population size stepped on the
// worker pool. Below this, single-threaded is faster due to goroutine overhead.
const DefaultParallelThreshold = 64

// Population is a fixed set of organisms plus one publication slot each.
// Step is not safe for concurrent use with itself or with writes to organism
// inputs; slot reads are safe at any time.
type Population struct {
	organisms []*neural.Organism
	slots     []Slot

	channel   int
	threshold int
	pool      *workerPool
}

// Option configures a Population.
type Option func(*Population)

// WithWorkers sets the worker count. n <= 0 uses GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(p *Population) {
		if n > 0 {
			p.pool.numWorkers = n
		}
	}
}

// WithParallelThreshold sets the population size at which Step uses the pool.
func WithParallelThreshold(n int) Option {
	return func(p *Population) { p.threshold = n }
}

// WithChannel selects which output index each organism publishes.
func WithChannel(c int) Option {
	return func(p *Population) { p.channel = c }
}

// New builds a population over organisms. Every organism must expose the
// published channel.
func New(organisms []*neural.Organism, opts ...Option) (*Population, error) {
	if len(organisms) == 0 {
		return nil, errors.New("population: no organisms")
	}

	p := &Population{
		organisms: append([]*neural.Organism(nil), organisms...),
		slots:     make([]Slot, len(organisms)),
		threshold: DefaultParallelThreshold,
		pool:      newWorkerPool(runtime.GOMAXPROCS(0)),
	}
	for _, opt := range opts {
		opt(p)
	}

	for i, o := range p.organisms {
		if o == nil {
			return nil, fmt.Errorf("population: organism %d is nil", i)
		}
		if p.channel < 0 || p.channel >= len(o.Outputs) {
			return nil, fmt.Errorf("population: organism %d has %d outputs, cannot publish channel %d",
				i, len(o.Outputs), p.channel)
		}
	}
	return p, nil
}

// Len returns the number of organisms.
func (p *Population) Len() int { return len(p.organisms) }

// Organism returns organism i. Callers write its Inputs between steps.
func (p *Population) Organism(i int) *neural.Organism { return p.organisms[i] }

// Channel returns the published output index.
func (p *Population) Channel() int { return p.channel }

// Workers returns the configured worker count.
func (p *Population) Workers() int { return p.pool.numWorkers }

// Step advances every organism by one tick and publishes its output.
func (p *Population) Step() {
	n := len(p.organisms)
	if n < p.threshold || p.pool.numWorkers < 2 {
		p.stepRange(0, n)
		return
	}

	if !p.pool.running {
		p.pool.start(p.stepRange)
	}
	p.pool.run(n)
}

// stepRange updates organisms [i0, i1). Each index belongs to one worker.
func (p *Population) stepRange(i0, i1 int) {
	ch := p.channel
	for i := i0; i < i1; i++ {
		o := p.organisms[i]
		o.Update()
		p.slots[i].Store(o.Outputs[ch])
	}
}

// Value returns the last value published by organism i.
func (p *Population) Value(i int) float32 { return p.slots[i].Load() }

// Published copies every slot into dst, growing it if needed.
// Values may mix adjacent ticks when read during a Step.
func (p *Population) Published(dst []float32) []float32 {
	if cap(dst) < len(p.slots) {
		dst = make([]float32, len(p.slots))
	}
	dst = dst[:len(p.slots)]
	for i := range p.slots {
		dst[i] = p.slots[i].Load()
	}
	return dst
}

// Close stops the worker pool. A later Step restarts it.
func (p *Population) Close() {
	p.pool.stop()
}
