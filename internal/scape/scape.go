package scape

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

type Trace map[string]any

// Agent maps one input vector to one output vector.
type Agent interface {
	RunStep(ctx context.Context, input []float64) ([]float64, error)
}

// AgentFunc adapts a plain function to Agent.
type AgentFunc func(ctx context.Context, input []float64) ([]float64, error)

func (f AgentFunc) RunStep(ctx context.Context, input []float64) ([]float64, error) {
	return f(ctx, input)
}

// Forwarder is satisfied by the nn payload.
type Forwarder interface {
	Forward(inputs []float64) ([]float64, error)
}

// FromForwarder wraps a context-free network as an Agent.
func FromForwarder(f Forwarder) Agent {
	return AgentFunc(func(ctx context.Context, input []float64) ([]float64, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return f.Forward(input)
	})
}

type Scape interface {
	Name() string
	// Inputs and Outputs describe the network shape the scape expects.
	Inputs() int
	Outputs() int
	Evaluate(ctx context.Context, agent Agent) (float64, Trace, error)
}

var builtIn = map[string]Scape{
	"xor": XORScape{},
}

// Lookup resolves a built-in scape by name.
func Lookup(name string) (Scape, error) {
	s, ok := builtIn[strings.TrimSpace(strings.ToLower(name))]
	if !ok {
		return nil, fmt.Errorf("unknown scape %q (available: %s)", name, strings.Join(Names(), ", "))
	}
	return s, nil
}

func Names() []string {
	names := make([]string, 0, len(builtIn))
	for name := range builtIn {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
