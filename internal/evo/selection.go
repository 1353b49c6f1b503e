package evo

import "math"

// ranked is a population index paired with its score. index < 0 marks an
// empty slot.
type ranked struct {
	index   int
	fitness float64
}

var emptyRank = ranked{index: -1, fitness: math.Inf(-1)}

// beats orders by fitness descending, then by index ascending so the first
// seen individual wins ties regardless of how scoring was split up.
func (r ranked) beats(other ranked) bool {
	if r.index < 0 {
		return false
	}
	if other.index < 0 {
		return true
	}
	if r.fitness != other.fitness {
		return r.fitness > other.fitness
	}
	return r.index < other.index
}

// topTwo is the running (best, second best) pair.
type topTwo struct {
	first  ranked
	second ranked
}

func newTopTwo() topTwo {
	return topTwo{first: emptyRank, second: emptyRank}
}

func (t *topTwo) offer(candidate ranked) {
	if math.IsNaN(candidate.fitness) {
		candidate.fitness = math.Inf(-1)
	}
	switch {
	case candidate.beats(t.first):
		t.second = t.first
		t.first = candidate
	case candidate.beats(t.second):
		t.second = candidate
	}
}

func (t *topTwo) merge(other topTwo) {
	t.offer(other.first)
	t.offer(other.second)
}

func (t topTwo) complete() bool {
	return t.first.index >= 0 && t.second.index >= 0
}
