package pdm

import (
	"fmt"
)

/*
 * Demodulator state for one PDM channel.
 * A different copy is required for each channel.  Set once at the
 * start of a session, then only touched by Push.
 */

type ChannelDemod struct {
	/*
	 * These are set once during initialization.
	 */
	factor   int // Number of bits per output value.
	order    int // Filter order or OrderDefault.
	kind     FilterKind
	decimate DecimateFunc

	/*
	 * Current window.
	 */
	samples     []float32 // Always shorter than factor between calls.
	windowStart int64     // Sample number of samples[0].

	/*
	 * Result of the most recent flush.
	 */
	amplitude   float32
	flushed     bool
	flushStart  int64 // windowStart of the window which produced amplitude.
	flushCount  int
	pushedCount int
}

/*------------------------------------------------------------------
 *
 * Name:        NewChannelDemod
 *
 * Purpose:     Initialize the decimation state for one channel.
 *
 * Inputs:      factor		- Bits per output value.  At least 2.
 *
 *		order		- Filter order, OrderDefault to let the
 *				  decimation function decide.
 *
 *		kind		- FilterFIR or FilterCIC.
 *
 *		decimate	- Decimation primitive.  nil for Decimate.
 *
 * Returns:	Error wrapping ErrInvalidConfiguration for a factor below 2.
 *
 *----------------------------------------------------------------*/

func NewChannelDemod(factor int, order int, kind FilterKind, decimate DecimateFunc) (*ChannelDemod, error) {
	if factor < MinDecimate {
		return nil, fmt.Errorf("%w: decimation factor %d is less than %d", ErrInvalidConfiguration, factor, MinDecimate)
	}

	if decimate == nil {
		decimate = Decimate
	}

	return &ChannelDemod{
		factor:   factor,
		order:    order,
		kind:     kind,
		decimate: decimate,
		samples:  make([]float32, 0, factor),
	}, nil
}

// Push adds one bit, as +1.0 or -1.0, seen at sampleNum.
// Returns true when this completed a window and a new amplitude is available.
func (D *ChannelDemod) Push(sampleNum int64, x float32) bool {
	if len(D.samples) == 0 {
		D.windowStart = sampleNum
	}

	D.samples = append(D.samples, x)
	D.pushedCount++

	if len(D.samples) != D.factor {
		return false
	}

	D.amplitude = D.decimate(D.samples, D.factor, D.order, D.kind)
	D.flushed = true
	D.flushStart = D.windowStart
	D.flushCount++

	D.samples = D.samples[:0]

	return true
}

// Amplitude returns the most recent decimated value.
// ok is false until the first window has been completed.
func (D *ChannelDemod) Amplitude() (float32, bool) {
	return D.amplitude, D.flushed
}

// WindowStart is the sample number where the window behind Amplitude began.
func (D *ChannelDemod) WindowStart() int64 {
	return D.flushStart
}

func (D *ChannelDemod) Pending() int {
	return len(D.samples)
}

func (D *ChannelDemod) Flushes() int {
	return D.flushCount
}

func (D *ChannelDemod) Pushes() int {
	return D.pushedCount
}

func (D *ChannelDemod) Factor() int {
	return D.factor
}

// Reset drops any partial window and the last amplitude.  Configuration is kept.
func (D *ChannelDemod) Reset() {
	D.samples = D.samples[:0]
	D.windowStart = 0
	D.amplitude = 0
	D.flushed = false
	D.flushStart = 0
	D.flushCount = 0
	D.pushedCount = 0
}
