package evo

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var ErrInvalidStopRule = errors.New("invalid stop rule")

type StopKind int

const (
	StopNever StopKind = iota
	StopFitnessReached
	StopGenerationReached
	StopNotImprovedSince
)

// StopRule decides when Evolve returns. The zero value never stops.
type StopRule struct {
	Kind        StopKind
	Fitness     float64
	Generations int
}

func Never() StopRule {
	return StopRule{Kind: StopNever}
}

func FitnessReached(threshold float64) StopRule {
	return StopRule{Kind: StopFitnessReached, Fitness: threshold}
}

func GenerationReached(generation int) StopRule {
	return StopRule{Kind: StopGenerationReached, Generations: generation}
}

func HasNotImprovedSince(generations int) StopRule {
	return StopRule{Kind: StopNotImprovedSince, Generations: generations}
}

func (r StopRule) Validate() error {
	switch r.Kind {
	case StopNever:
		return nil
	case StopFitnessReached:
		if math.IsNaN(r.Fitness) {
			return fmt.Errorf("%w: fitness threshold is NaN", ErrInvalidStopRule)
		}
		return nil
	case StopGenerationReached:
		if r.Generations < 0 {
			return fmt.Errorf("%w: generation must be >= 0", ErrInvalidStopRule)
		}
		return nil
	case StopNotImprovedSince:
		if r.Generations <= 0 {
			return fmt.Errorf("%w: stale generations must be > 0", ErrInvalidStopRule)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown kind %d", ErrInvalidStopRule, r.Kind)
	}
}

func (r StopRule) String() string {
	switch r.Kind {
	case StopFitnessReached:
		return "fitness:" + strconv.FormatFloat(r.Fitness, 'g', -1, 64)
	case StopGenerationReached:
		return "generations:" + strconv.Itoa(r.Generations)
	case StopNotImprovedSince:
		return "stale:" + strconv.Itoa(r.Generations)
	default:
		return "never"
	}
}

// ParseStopRule accepts the textual forms produced by StopRule.String.
func ParseStopRule(raw string) (StopRule, error) {
	value := strings.TrimSpace(strings.ToLower(raw))
	if value == "" || value == "never" {
		return Never(), nil
	}
	kind, arg, ok := strings.Cut(value, ":")
	if !ok {
		return StopRule{}, fmt.Errorf("%w: %q", ErrInvalidStopRule, raw)
	}
	arg = strings.TrimSpace(arg)

	var rule StopRule
	switch kind {
	case "fitness":
		threshold, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return StopRule{}, fmt.Errorf("%w: fitness %q: %v", ErrInvalidStopRule, arg, err)
		}
		rule = FitnessReached(threshold)
	case "generations", "generation":
		n, err := strconv.Atoi(arg)
		if err != nil {
			return StopRule{}, fmt.Errorf("%w: generations %q: %v", ErrInvalidStopRule, arg, err)
		}
		rule = GenerationReached(n)
	case "stale":
		n, err := strconv.Atoi(arg)
		if err != nil {
			return StopRule{}, fmt.Errorf("%w: stale %q: %v", ErrInvalidStopRule, arg, err)
		}
		rule = HasNotImprovedSince(n)
	default:
		return StopRule{}, fmt.Errorf("%w: unknown rule %q", ErrInvalidStopRule, kind)
	}
	if err := rule.Validate(); err != nil {
		return StopRule{}, err
	}
	return rule, nil
}

// stopState carries the bookkeeping a rule needs across generations.
type stopState struct {
	rule        StopRule
	prevBest    float64
	staleStreak int
}

func newStopState(rule StopRule) *stopState {
	return &stopState{rule: rule, prevBest: math.Inf(-1)}
}

// done is evaluated once per generation after elites are known.
func (s *stopState) done(generation int, best float64) bool {
	improved := best > s.prevBest
	s.prevBest = best
	if improved {
		s.staleStreak = 0
	} else {
		s.staleStreak++
	}

	switch s.rule.Kind {
	case StopFitnessReached:
		return best >= s.rule.Fitness
	case StopGenerationReached:
		return generation >= s.rule.Generations
	case StopNotImprovedSince:
		return s.staleStreak >= s.rule.Generations
	default:
		return false
	}
}
