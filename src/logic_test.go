package pdm

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAllEdges(t *testing.T, src EdgeSource) []Edge {
	t.Helper()

	var edges []Edge
	for {
		var e, err = src.NextEdge(context.Background())
		if errors.Is(err, io.EOF) {
			return edges
		}
		require.NoError(t, err)

		edges = append(edges, e)
	}
}

func TestLogicReader(t *testing.T) {
	// bit 0 clk, bit 1 dat
	var raw = []byte{
		0b00, // baseline, clk low
		0b10, // no edge
		0b11, // rising, dat 1
		0b01, // no edge
		0b00, // falling, dat 0
		0b10, // no edge
		0b11, // rising, dat 1
	}

	var lr, err = NewLogicReader(bytes.NewReader(raw), 1, 0, 1)
	require.NoError(t, err)

	var edges = readAllEdges(t, lr)

	assert.Equal(t, []Edge{
		{Clock: 1, Data: true, SampleNum: 2},
		{Clock: 0, Data: false, SampleNum: 4},
		{Clock: 1, Data: true, SampleNum: 6},
	}, edges)
	assert.Equal(t, int64(7), lr.SamplesRead())
}

func TestLogicReaderFirstSampleHigh(t *testing.T) {
	var lr, err = NewLogicReader(bytes.NewReader([]byte{0x01, 0x01, 0x00}), 1, 0, 1)
	require.NoError(t, err)

	assert.Equal(t, []Edge{{Clock: 0, Data: false, SampleNum: 2}}, readAllEdges(t, lr))
}

func TestLogicReaderWideSamples(t *testing.T) {
	// Probe 9 is clk, probe 3 is dat, little endian 16 bit samples.
	var raw = []byte{
		0x00, 0x00,
		0x08, 0x02,
		0x00, 0x00,
		0x00, 0x02,
		0xff, // partial sample, ignored
	}

	var lr, err = NewLogicReader(bytes.NewReader(raw), 2, 9, 3)
	require.NoError(t, err)

	assert.Equal(t, []Edge{
		{Clock: 1, Data: true, SampleNum: 1},
		{Clock: 0, Data: false, SampleNum: 2},
		{Clock: 1, Data: false, SampleNum: 3},
	}, readAllEdges(t, lr))
	assert.Equal(t, int64(4), lr.SamplesRead())
}

func TestLogicReaderBadArgs(t *testing.T) {
	for _, args := range [][3]int{
		{0, 0, 1},
		{9, 0, 1},
		{1, 8, 1},
		{1, 0, -1},
		{1, 2, 2},
	} {
		var _, err = NewLogicReader(bytes.NewReader(nil), args[0], args[1], args[2])
		assert.ErrorIs(t, err, ErrInvalidConfiguration, "%v", args)
	}
}

func TestLogicReaderCancelled(t *testing.T) {
	var lr, err = NewLogicReader(bytes.NewReader([]byte{0, 1}), 1, 0, 1)
	require.NoError(t, err)

	var ctx, cancel = context.WithCancel(context.Background())
	cancel()

	_, err = lr.NextEdge(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
