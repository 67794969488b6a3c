package pdm

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Note that the logger writes to stderr, so only what the command prints is checked here.
func AssertOutputContains(t *testing.T, command func(), expectedOutputContains string) {
	t.Helper()

	var oldStdout = os.Stdout
	defer func() {
		os.Stdout = oldStdout
	}()

	var r, w, _ = os.Pipe()
	os.Stdout = w

	command()

	w.Close() //nolint:gosec

	os.Stdout = oldStdout

	var outputBytes, readErr = io.ReadAll(r)

	require.NoError(t, readErr)

	var outputString = string(outputBytes)

	assert.Contains(t, outputString, expectedOutputContains)
}

// WriteTestCapture generates a capture into a temporary directory and returns its path.
func WriteTestCapture(t *testing.T, name string, cfg GenConfig) string {
	t.Helper()

	var data, _, err = GeneratePDM(cfg)
	require.NoError(t, err)

	var fname = filepath.Join(t.TempDir(), name)
	require.NoError(t, WriteCapture(fname, cfg.SampleRate, data))

	return fname
}

// ChannelEdges lays out one channel's bits as edges at the given sample numbers.
func ChannelEdges(channel int, bits []bool, sampleNums []int64) []Edge {
	var edges = make([]Edge, len(bits))
	for i, bit := range bits {
		edges[i] = Edge{Clock: channel, Data: bit, SampleNum: sampleNums[i]}
	}

	return edges
}
