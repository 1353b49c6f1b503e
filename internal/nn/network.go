package nn

import (
	"errors"
	"fmt"
	"math/rand"
	randv2 "math/rand/v2"
)

// Network is a dense feed-forward network. Layers[i][j] is neuron j of
// layer i; its Weights are indexed by the outputs of layer i-1 (or the
// network inputs for i == 0). The last layer is the output layer.
// Activation names a registered function applied after every layer.
type Network struct {
	Inputs     int
	Layers     [][]Neuron
	Activation string

	rng *rand.Rand
}

type Neuron struct {
	Weights []float64
	Bias    float64
}

// New builds a tanh network with the given layer widths and weights drawn
// uniformly from [-1, 1].
func New(inputs int, layers []int, seed int64) (*Network, error) {
	if inputs <= 0 {
		return nil, fmt.Errorf("inputs must be > 0")
	}
	if len(layers) == 0 {
		return nil, fmt.Errorf("at least one layer is required")
	}
	n := &Network{Inputs: inputs, Activation: DefaultActivation, rng: rand.New(rand.NewSource(seed))}
	fanIn := inputs
	for i, width := range layers {
		if width <= 0 {
			return nil, fmt.Errorf("layer %d width must be > 0", i)
		}
		layer := make([]Neuron, width)
		for j := range layer {
			weights := make([]float64, fanIn)
			for k := range weights {
				weights[k] = n.uniform()
			}
			layer[j] = Neuron{Weights: weights, Bias: n.uniform()}
		}
		n.Layers = append(n.Layers, layer)
		fanIn = width
	}
	return n, nil
}

// Forward runs the network and applies the activation after every layer,
// the output layer included.
func (n *Network) Forward(inputs []float64) ([]float64, error) {
	if len(inputs) != n.Inputs {
		return nil, fmt.Errorf("expected %d inputs, got %d", n.Inputs, len(inputs))
	}
	activate, err := GetActivation(n.Activation)
	if err != nil {
		return nil, err
	}
	values := inputs
	for i, layer := range n.Layers {
		out := make([]float64, len(layer))
		for j, neuron := range layer {
			if len(neuron.Weights) != len(values) {
				return nil, fmt.Errorf("layer %d neuron %d: expected %d weights, got %d", i, j, len(values), len(neuron.Weights))
			}
			total := neuron.Bias
			for k, w := range neuron.Weights {
				total += w * values[k]
			}
			out[j] = activate(total)
		}
		values = out
	}
	return values, nil
}

// CheckShape reports whether n is a consistent network with the given input
// width and layer widths and a registered activation.
func (n *Network) CheckShape(inputs int, layers []int) error {
	if n == nil {
		return errors.New("network is nil")
	}
	if n.Inputs != inputs {
		return fmt.Errorf("expected %d inputs, got %d", inputs, n.Inputs)
	}
	if len(n.Layers) != len(layers) {
		return fmt.Errorf("expected %d layers, got %d", len(layers), len(n.Layers))
	}
	if _, err := GetActivation(n.Activation); err != nil {
		return err
	}
	fanIn := inputs
	for i, layer := range n.Layers {
		if len(layer) != layers[i] {
			return fmt.Errorf("layer %d: expected %d neurons, got %d", i, layers[i], len(layer))
		}
		for j, neuron := range layer {
			if len(neuron.Weights) != fanIn {
				return fmt.Errorf("layer %d neuron %d: expected %d weights, got %d", i, j, fanIn, len(neuron.Weights))
			}
		}
		fanIn = len(layer)
	}
	return nil
}

func (n *Network) Outputs() int {
	if len(n.Layers) == 0 {
		return 0
	}
	return len(n.Layers[len(n.Layers)-1])
}

// Clone returns a deep copy with its own random source.
func (n *Network) Clone() *Network {
	out := &Network{
		Inputs:     n.Inputs,
		Layers:     make([][]Neuron, len(n.Layers)),
		Activation: n.Activation,
		rng:        freshRand(),
	}
	for i, layer := range n.Layers {
		out.Layers[i] = make([]Neuron, len(layer))
		for j, neuron := range layer {
			out.Layers[i][j] = Neuron{
				Weights: append([]float64(nil), neuron.Weights...),
				Bias:    neuron.Bias,
			}
		}
	}
	return out
}

// CrossOver takes every weight and bias from either parent with equal
// probability. Parents of different shape produce a clone of the receiver.
func (n *Network) CrossOver(other *Network) *Network {
	child := n.Clone()
	if other == nil || !n.sameShape(other) {
		return child
	}
	for i, layer := range child.Layers {
		for j := range layer {
			if child.rng.Intn(2) == 0 {
				layer[j].Bias = other.Layers[i][j].Bias
			}
			for k := range layer[j].Weights {
				if child.rng.Intn(2) == 0 {
					layer[j].Weights[k] = other.Layers[i][j].Weights[k]
				}
			}
		}
	}
	return child
}

// Mutate re-draws one random bias and one random weight.
func (n *Network) Mutate() {
	if len(n.Layers) == 0 {
		return
	}
	rng := n.random()
	layer := n.Layers[rng.Intn(len(n.Layers))]
	if len(layer) > 0 {
		layer[rng.Intn(len(layer))].Bias = n.uniform()
	}

	layer = n.Layers[rng.Intn(len(n.Layers))]
	if len(layer) == 0 {
		return
	}
	neuron := layer[rng.Intn(len(layer))]
	if len(neuron.Weights) > 0 {
		neuron.Weights[rng.Intn(len(neuron.Weights))] = n.uniform()
	}
}

// Perturb adds gaussian noise with the given deviation to every parameter.
func (n *Network) Perturb(stddev float64) {
	rng := n.random()
	for _, layer := range n.Layers {
		for j := range layer {
			layer[j].Bias += rng.NormFloat64() * stddev
			for k := range layer[j].Weights {
				layer[j].Weights[k] += rng.NormFloat64() * stddev
			}
		}
	}
}

func (n *Network) sameShape(other *Network) bool {
	if n.Inputs != other.Inputs || n.Activation != other.Activation || len(n.Layers) != len(other.Layers) {
		return false
	}
	for i := range n.Layers {
		if len(n.Layers[i]) != len(other.Layers[i]) {
			return false
		}
		for j := range n.Layers[i] {
			if len(n.Layers[i][j].Weights) != len(other.Layers[i][j].Weights) {
				return false
			}
		}
	}
	return true
}

// random lazily seeds networks that arrived through decoding.
func (n *Network) random() *rand.Rand {
	if n.rng == nil {
		n.rng = freshRand()
	}
	return n.rng
}

func (n *Network) uniform() float64 {
	return n.random().Float64()*2 - 1
}

func freshRand() *rand.Rand {
	return rand.New(rand.NewSource(randv2.Int64()))
}
