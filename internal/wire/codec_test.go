package wire

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name    string
	Weights [][]float64
	Bias    float64
}

type unrelated struct {
	Flag  bool
	Count int
}

func TestOpcodeRoundTrip(t *testing.T) {
	for _, cmd := range []Command{CmdStart, CmdTrain, CmdGet, CmdSet} {
		var buf bytes.Buffer
		require.NoError(t, WriteOpcode(&buf, cmd))
		assert.Equal(t, []byte{0x00, byte(cmd)}, buf.Bytes())

		got, err := ReadOpcode(&buf)
		require.NoError(t, err)
		assert.Equal(t, cmd, got)
	}
}

func TestReadOpcodeRejectsUnknown(t *testing.T) {
	for _, raw := range [][]byte{{0x00, 0x05}, {0x01, 0x01}, {0x00, 0x00}} {
		_, err := ReadOpcode(bytes.NewReader(raw))
		assert.ErrorIs(t, err, ErrUnknownOpcode)
	}
}

func TestExpectOpcodeMismatch(t *testing.T) {
	err := ExpectOpcode(bytes.NewReader([]byte{0x00, 0x02}), CmdStart)
	assert.ErrorIs(t, err, ErrUnknownOpcode)
}

func TestFitnessIsBigEndianFloat64(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFitness(&buf, 1.0))
	assert.Equal(t, []byte{0x3f, 0xf0, 0, 0, 0, 0, 0, 0}, buf.Bytes())

	for _, value := range []float64{0, -0.25, math.MaxFloat64, math.Inf(-1)} {
		buf.Reset()
		require.NoError(t, WriteFitness(&buf, value))
		got, err := ReadFitness(&buf)
		require.NoError(t, err)
		assert.Equal(t, value, got)
	}
}

func TestIndividualRoundTrip(t *testing.T) {
	in := &sample{Name: "net", Weights: [][]float64{{0.5, -1}, {0.25}}, Bias: 0.1}

	var buf bytes.Buffer
	require.NoError(t, WriteIndividual(&buf, in))
	out, ok, err := ReadIndividual[*sample](&buf)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, in, out)
	assert.Zero(t, buf.Len())
}

func TestEmptyMarker(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteEmpty(&buf))
	assert.Equal(t, []byte{0, 0, 0, 0}, buf.Bytes())

	out, ok, err := ReadIndividual[*sample](&buf)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, out)
}

func TestMalformedBodyKeepsStreamAligned(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteBody(&buf, []byte("definitely not gob")))
	require.NoError(t, WriteOpcode(&buf, CmdGet))

	_, _, err := ReadIndividual[*sample](&buf)
	require.ErrorIs(t, err, ErrMalformedIndividual)

	cmd, err := ReadOpcode(&buf)
	require.NoError(t, err)
	assert.Equal(t, CmdGet, cmd)
}

func TestWrongShapeIsMalformed(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteIndividual(&buf, unrelated{Flag: true, Count: 3}))

	_, _, err := ReadIndividual[*sample](&buf)
	assert.ErrorIs(t, err, ErrMalformedIndividual)
}

func TestReadBodyRejectsOversize(t *testing.T) {
	_, err := ReadBody(bytes.NewReader([]byte{0xff, 0xff, 0xff, 0xff}))
	assert.ErrorIs(t, err, ErrIndividualTooLarge)
}

func TestReadBodyLimitLeavesOversizedBodyUnread(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteBody(&buf, bytes.Repeat([]byte{0xab}, 32)))

	_, err := ReadBodyLimit(&buf, 16)
	var sizeErr *SizeError
	require.ErrorAs(t, err, &sizeErr)
	assert.Equal(t, uint32(32), sizeErr.Size)
	assert.Equal(t, 16, sizeErr.Limit)
	assert.ErrorIs(t, err, ErrIndividualTooLarge)
	assert.Equal(t, 32, buf.Len())
}
