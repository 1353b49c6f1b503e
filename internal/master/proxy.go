package master

import (
	"math"

	"evoswarm/internal/evo"
)

const unplaced = -1

// Proxy stands in for the individual held by one remote worker. The engine
// treats it like any other Evolvable: CrossOver only records the pairing,
// and the next Mutate places the child on a free worker and trains it.
type Proxy[T evo.Evolvable[T]] struct {
	fleet     *fleet[T]
	worker    int
	fitness   float64
	crossWith int
	pending   bool
}

// Worker is the index of the worker holding this individual, or -1.
func (p *Proxy[T]) Worker() int { return p.worker }

// Fitness is the last fitness reported by the worker.
func (p *Proxy[T]) Fitness() float64 { return p.fitness }

func (p *Proxy[T]) Pending() bool { return p.pending }

func (p *Proxy[T]) CrossOver(other *Proxy[T]) *Proxy[T] {
	with := unplaced
	if other != nil {
		with = other.worker
	}
	return &Proxy[T]{
		fleet:     p.fleet,
		worker:    p.worker,
		fitness:   math.Inf(-1),
		crossWith: with,
		pending:   true,
	}
}

// Mutate resolves a pending crossover and then asks the worker for one
// train cycle. Failures leave the proxy scoring -Inf.
func (p *Proxy[T]) Mutate() {
	if p.pending {
		p.place()
		if p.worker == unplaced {
			return
		}
	}
	if p.worker == unplaced {
		p.fitness = math.Inf(-1)
		return
	}
	fitness, err := p.fleet.train(p.worker)
	if err != nil {
		p.fitness = math.Inf(-1)
		return
	}
	p.fitness = fitness
}

func (p *Proxy[T]) place() {
	parentA, parentB := p.worker, p.crossWith
	p.pending = false
	p.fitness = math.Inf(-1)

	target, ok := p.fleet.claim()
	if !ok {
		p.worker = unplaced
		return
	}
	if child, bred := p.fleet.breed(parentA, parentB); bred {
		if err := p.fleet.set(target, child); err != nil {
			p.worker = unplaced
			return
		}
	}
	p.worker = target
}
