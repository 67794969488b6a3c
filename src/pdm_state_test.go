package pdm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestChannelDemodCadence(t *testing.T) {
	var D = newTestDemod(t, 3, OrderDefault, FilterCIC, nil)

	var _, ok = D.Amplitude()
	assert.False(t, ok)

	assert.False(t, D.Push(100, 1))
	assert.False(t, D.Push(110, 1))
	assert.Equal(t, 2, D.Pending())
	assert.True(t, D.Push(120, -1))
	assert.Equal(t, 0, D.Pending())

	var amp, ok2 = D.Amplitude()
	require.True(t, ok2)
	assert.InDelta(t, 1.0/3.0, amp, 1e-6)
	assert.Equal(t, int64(100), D.WindowStart())

	assert.False(t, D.Push(130, -1))
	assert.Equal(t, int64(100), D.WindowStart(), "still the completed window")
	assert.False(t, D.Push(140, -1))
	assert.True(t, D.Push(150, -1))
	assert.Equal(t, int64(130), D.WindowStart())

	amp, _ = D.Amplitude()
	assert.InDelta(t, -1.0, amp, 1e-6)

	assert.Equal(t, 2, D.Flushes())
	assert.Equal(t, 6, D.Pushes())
	assert.Equal(t, 3, D.Factor())
}

func TestChannelDemodPassesConfig(t *testing.T) {
	var got []int

	var D = newTestDemod(t, 2, 7, FilterCIC, func(samples []float32, factor int, order int, kind FilterKind) float32 {
		got = append(got, len(samples), factor, order, int(kind))
		return 0.25
	})

	D.Push(0, 1)
	D.Push(1, -1)

	assert.Equal(t, []int{2, 2, 7, int(FilterCIC)}, got)

	var amp, _ = D.Amplitude()
	assert.Equal(t, float32(0.25), amp)
}

func TestChannelDemodReset(t *testing.T) {
	var D = newTestDemod(t, 2, OrderDefault, FilterFIR, nil)

	D.Push(0, 1)
	D.Push(1, 1)
	D.Push(2, 1)
	D.Reset()

	var _, ok = D.Amplitude()
	assert.False(t, ok)
	assert.Equal(t, 0, D.Pending())
	assert.Equal(t, 0, D.Flushes())
	assert.Equal(t, 2, D.Factor())
}

func TestChannelDemodFactorTooSmall(t *testing.T) {
	for _, factor := range []int{-3, 0, 1} {
		var D, err = NewChannelDemod(factor, OrderDefault, FilterFIR, nil)
		require.ErrorIs(t, err, ErrInvalidConfiguration, "factor %d", factor)
		assert.Nil(t, D)
	}
}

func newTestDemod(t require.TestingT, factor int, order int, kind FilterKind, decimate DecimateFunc) *ChannelDemod {
	var D, err = NewChannelDemod(factor, order, kind, decimate)
	require.NoError(t, err)

	return D
}

func Test_channelDemodFlushCount(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var factor = rapid.IntRange(2, 32).Draw(t, "factor")
		var n = rapid.IntRange(0, 500).Draw(t, "n")

		var D = newTestDemod(t, factor, OrderDefault, FilterCIC, nil)

		var flushes = 0
		for i := range n {
			if D.Push(int64(i), 1) {
				flushes++
				assert.Equal(t, 0, (i+1)%factor)
				assert.Equal(t, int64(i+1-factor), D.WindowStart())
			}
		}

		assert.Equal(t, n/factor, flushes)
		assert.Equal(t, n/factor, D.Flushes())
		assert.Equal(t, n%factor, D.Pending())
		assert.Equal(t, n, D.Pushes())
	})
}
