package pdm

/*------------------------------------------------------------------
 *
 * Purpose:     Decimation primitives used by the channel demodulators.
 *
 * Description:	Each channel collects "factor" bits, mapped to +1.0 / -1.0,
 *		and asks for one amplitude value summarising them.
 *		The demodulator doesn't care how that is done so the
 *		primitive is passed in as a DecimateFunc.
 *
 *----------------------------------------------------------------*/

import (
	"fmt"
	"math"
	"strings"
)

type FilterKind int

const (
	FilterFIR FilterKind = iota
	FilterCIC
)

func (k FilterKind) String() string {
	switch k {
	case FilterFIR:
		return "fir"
	case FilterCIC:
		return "cic"
	default:
		return fmt.Sprintf("FilterKind(%d)", int(k))
	}
}

func ParseFilterKind(s string) (FilterKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fir":
		return FilterFIR, nil
	case "cic", "boxcar":
		return FilterCIC, nil
	default:
		return FilterFIR, fmt.Errorf("%w: unknown filter kind %q", ErrInvalidConfiguration, s)
	}
}

// OrderDefault lets the decimation primitive pick the filter order.
const OrderDefault = 0

// DecimateFunc reduces one full window of samples to a single value.
// len(samples) is always equal to factor.
type DecimateFunc func(samples []float32, factor int, order int, kind FilterKind) float32

/*------------------------------------------------------------------
 *
 * Name:        window
 *
 * Purpose:     Filter window shape functions.
 *
 * Inputs:   	size	- Number of filter taps.
 *		j	- Position in range of 0 to size-1.
 *			  Doesn't need to be a whole number.
 *
 * Returns:     Multiplier for the window shape.
 *
 *----------------------------------------------------------------*/

func window(size int, j float64) float64 {
	if size < 2 {
		return 1.0
	}

	return 0.53836 - 0.46164*math.Cos((j*2*math.Pi)/float64(size-1))
}

// sinc for a low pass with cutoff fc (fraction of the sample rate), t samples from the centre.
func lowpassSinc(fc float64, t float64) float64 {
	if t == 0 {
		return 2 * fc
	}

	return math.Sin(2*math.Pi*fc*t) / (math.Pi * t)
}

// DefaultOrder is what FilterFIR uses when the order is left as OrderDefault.
func DefaultOrder(factor int) int {
	return 20 * factor
}

/*------------------------------------------------------------------
 *
 * Name:        DecimateFIR
 *
 * Purpose:     Low pass filter a window of samples and produce one output.
 *
 * Inputs:   	samples	- One full window, oldest first.
 *		factor	- Decimation factor.  Cutoff is at the new Nyquist,
 *			  0.5 / factor of the input rate.
 *		order	- Filter order, order+1 taps.  OrderDefault for 20 * factor.
 *
 * Returns:     Filter output centred on the middle of the window.
 *
 * Description:	The kernel is the same Hamming windowed sinc as a normal
 *		low pass, but only the taps which land on the window are used
 *		and they are normalized to unity gain at DC.  That keeps the
 *		result between the smallest and largest input.
 *
 *----------------------------------------------------------------*/

func DecimateFIR(samples []float32, factor int, order int) float32 {
	if len(samples) == 0 {
		return 0
	}

	if order <= OrderDefault {
		order = DefaultOrder(factor)
	}

	var fc = 0.5 / float64(factor)
	var half = 0.5 * float64(order)
	var centre = 0.5 * float64(len(samples)-1)

	var sum, gain float64

	for i, x := range samples {
		var t = float64(i) - centre
		if math.Abs(t) > half {
			continue
		}

		var tap = lowpassSinc(fc, t) * window(order+1, t+half)
		sum += tap * float64(x)
		gain += tap
	}

	if gain == 0 {
		return 0
	}

	return float32(sum / gain)
}

// DecimateCIC is a single stage CIC, which is just the mean of the window.
func DecimateCIC(samples []float32) float32 {
	if len(samples) == 0 {
		return 0
	}

	var sum float64
	for _, x := range samples {
		sum += float64(x)
	}

	return float32(sum / float64(len(samples)))
}

// Decimate is the default DecimateFunc.
func Decimate(samples []float32, factor int, order int, kind FilterKind) float32 {
	switch kind {
	case FilterCIC:
		return DecimateCIC(samples)
	default:
		return DecimateFIR(samples, factor, order)
	}
}
