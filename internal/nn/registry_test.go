package nn

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltInActivations(t *testing.T) {
	tests := []struct {
		name string
		x    float64
		want float64
	}{
		{name: "identity", x: 2.5, want: 2.5},
		{name: "relu", x: -1, want: 0},
		{name: "relu", x: 3, want: 3},
		{name: "tanh", x: 0, want: 0},
		{name: "sigmoid", x: 0, want: 0.5},
		{name: "", x: 1, want: math.Tanh(1)},
	}
	for _, tc := range tests {
		fn, err := GetActivation(tc.name)
		require.NoError(t, err)
		assert.InDelta(t, tc.want, fn(tc.x), 1e-9, tc.name)
	}
}

func TestGetActivationUnknown(t *testing.T) {
	_, err := GetActivation("swish")
	assert.ErrorIs(t, err, ErrActivationNotFound)
}

func TestRegisterActivationRejectsDuplicates(t *testing.T) {
	err := RegisterActivation("tanh", math.Tanh)
	assert.ErrorIs(t, err, ErrActivationExists)

	require.NoError(t, RegisterActivation("square-test", func(x float64) float64 { return x * x }))
	assert.Contains(t, ListActivations(), "square-test")
}
