package evo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTopTwoOfferKeepsBestPair(t *testing.T) {
	top := newTopTwo()
	for i, score := range []float64{0.3, 0.9, 0.1, 0.7, 0.9} {
		top.offer(ranked{index: i, fitness: score})
	}
	assert.Equal(t, ranked{index: 1, fitness: 0.9}, top.first)
	assert.Equal(t, ranked{index: 4, fitness: 0.9}, top.second)
}

func TestTopTwoMergeIsOrderIndependent(t *testing.T) {
	left := newTopTwo()
	left.offer(ranked{index: 4, fitness: 2})
	left.offer(ranked{index: 5, fitness: 1})
	right := newTopTwo()
	right.offer(ranked{index: 0, fitness: 2})
	right.offer(ranked{index: 1, fitness: 0})

	a := newTopTwo()
	a.merge(left)
	a.merge(right)
	b := newTopTwo()
	b.merge(right)
	b.merge(left)

	assert.Equal(t, a, b)
	assert.Equal(t, 0, a.first.index)
	assert.Equal(t, 4, a.second.index)
}

func TestTopTwoTreatsNaNAsWorst(t *testing.T) {
	top := newTopTwo()
	top.offer(ranked{index: 0, fitness: math.NaN()})
	top.offer(ranked{index: 1, fitness: -5})
	top.offer(ranked{index: 2, fitness: math.NaN()})
	assert.Equal(t, 1, top.first.index)
	assert.Equal(t, 0, top.second.index)
	assert.True(t, top.complete())
}

func TestTopTwoIncompleteWithSingleCandidate(t *testing.T) {
	top := newTopTwo()
	top.offer(ranked{index: 0, fitness: 1})
	top.merge(newTopTwo())
	assert.False(t, top.complete())
}
