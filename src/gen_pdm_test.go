package pdm

import (
	"context"
	"io"
	"math"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestNewModulator(t *testing.T) {
	for _, order := range []int{0, 3, -1} {
		var _, err = NewModulator(order)
		require.ErrorIs(t, err, ErrInvalidConfiguration)
	}
}

func TestModulatorDensity(t *testing.T) {
	for _, order := range []int{1, 2} {
		for _, x := range []float64{-0.6, -0.25, 0, 0.3, 0.6} {
			var m, err = NewModulator(order)
			require.NoError(t, err)

			var ones = 0
			const n = 4000
			for range n {
				if m.Next(x) {
					ones++
				}
			}

			var mean = 2*float64(ones)/n - 1
			assert.InDelta(t, x, mean, 0.01, "order %d x %f", order, x)
		}
	}
}

func TestGeneratePDMLayout(t *testing.T) {
	var cfg = GenConfig{
		SampleRate: 1000,
		HalfPeriod: 2,
		Bits:       1,
		Tones:      [NumChannels]Tone{{Offset: 0.5}, {Offset: -0.5}},
	}

	var data, sent, err = GeneratePDM(cfg)
	require.NoError(t, err)

	assert.Equal(t, []byte{0x01, 0x01, 0x02, 0x02, 0x01, 0x01}, data)
	assert.Equal(t, []bool{true}, sent[0])
	assert.Equal(t, []bool{false}, sent[1])

	assert.Equal(t, int64(2), cfg.EdgeSample(0, 0))
	assert.Equal(t, int64(4), cfg.EdgeSample(1, 0))
	assert.InDelta(t, 250.0, cfg.BitRate(), 1e-9)
}

func TestGenConfigValidate(t *testing.T) {
	var _, _, err = GeneratePDM(GenConfig{HalfPeriod: 1})
	require.ErrorIs(t, err, ErrInvalidConfiguration)

	_, _, err = GeneratePDM(GenConfig{SampleRate: 100})
	require.ErrorIs(t, err, ErrInvalidConfiguration)

	_, _, err = GeneratePDM(GenConfig{SampleRate: 100, HalfPeriod: 1, Bits: -1})
	require.ErrorIs(t, err, ErrInvalidConfiguration)

	_, _, err = GeneratePDM(GenConfig{SampleRate: 100, HalfPeriod: 1, ModulatorOrder: 5})
	require.ErrorIs(t, err, ErrInvalidConfiguration)
}

func decodeCapture(t *testing.T, path string, opts Options) *RecordBuffer {
	t.Helper()

	var s, err = OpenSession(path)
	require.NoError(t, err)
	defer s.Close()

	var src, srcErr = s.EdgeSource("clk", "dat")
	require.NoError(t, srcErr)

	var buf = &RecordBuffer{}

	var d, decErr = NewDecoder(opts, buf, nil)
	require.NoError(t, decErr)

	d.Metadata(MetadataSampleRate, s.SampleRate)
	require.NoError(t, d.Run(context.Background(), src))

	return buf
}

func amplitudes(t require.TestingT, buf *RecordBuffer, channel int) []float32 {
	var values []float32

	for _, rec := range buf.Filter(OutputBinary, AmplitudeSlot(channel)) {
		var v, err = UnpackAmplitude(rec.Data)
		require.NoError(t, err)

		values = append(values, v)
	}

	return values
}

func TestRoundTripBits(t *testing.T) {
	var cfg = GenConfig{
		SampleRate: 48000,
		HalfPeriod: 3,
		Bits:       201,
		Tones:      [NumChannels]Tone{{Freq: 50, Amplitude: 0.7}, {Offset: 0.2}},
	}

	var _, sent, err = GeneratePDM(cfg)
	require.NoError(t, err)

	var path = WriteTestCapture(t, "bits.sr", cfg)
	var buf = decodeCapture(t, path, DefaultOptions())

	for c := range NumChannels {
		var bits = buf.Filter(OutputAnn, BitSlot(c))
		require.Len(t, bits, cfg.Bits-1)

		for n, rec := range bits {
			assert.Equal(t, cfg.EdgeSample(c, n), rec.Start)
			assert.Equal(t, cfg.EdgeSample(c, n+1), rec.End)
			assert.Equal(t, FormatBit(sent[c][n]), rec.Text)
		}

		var values = buf.Filter(OutputAnn, AmplitudeSlot(c))
		require.Len(t, values, cfg.Bits/DefaultDecimate)

		for w, rec := range values {
			assert.Equal(t, cfg.EdgeSample(c, w*DefaultDecimate), rec.Start)
			assert.Equal(t, cfg.EdgeSample(c, (w+1)*DefaultDecimate), rec.End)
		}
	}
}

func TestRoundTripConstant(t *testing.T) {
	const factor = 32
	const windows = 20

	for _, kind := range []FilterKind{FilterFIR, FilterCIC} {
		for _, v := range []float64{0.5, -0.25, 0} {
			var cfg = GenConfig{
				SampleRate:     2_048_000,
				HalfPeriod:     1,
				Bits:           factor*windows + 1,
				ModulatorOrder: 1,
				Tones:          [NumChannels]Tone{{Offset: v}, {Offset: -v}},
			}

			var path = WriteTestCapture(t, "dc.sr", cfg)
			var buf = decodeCapture(t, path, Options{Order: OrderDefault, Decimate: factor, Filter: kind})

			for c, expected := range []float64{v, -v} {
				var values = amplitudes(t, buf, c)
				require.Len(t, values, windows)

				for _, got := range values {
					assert.InDelta(t, expected, got, 0.07, "%s channel %d", kind, c)
				}
			}
		}
	}
}

func TestRoundTripSine(t *testing.T) {
	const factor = 32
	const windows = 20

	var tone = Tone{Freq: 100, Amplitude: 0.5}

	var cfg = GenConfig{
		SampleRate:     64000,
		HalfPeriod:     1,
		Bits:           factor*windows + 1,
		ModulatorOrder: 1,
		Tones:          [NumChannels]Tone{tone, {}},
	}

	var path = WriteTestCapture(t, "sine.sr", cfg)
	var buf = decodeCapture(t, path, Options{Order: OrderDefault, Decimate: factor, Filter: FilterFIR})

	var values = amplitudes(t, buf, 0)
	require.Len(t, values, windows)

	for w, got := range values {
		var centre = (float64(w*factor) + 0.5*(factor-1)) / cfg.BitRate()
		assert.InDelta(t, tone.At(centre), got, 0.06, "window %d", w)
	}

	for _, got := range amplitudes(t, buf, 1) {
		assert.InDelta(t, 0.0, got, 0.07)
	}
}

func Test_roundTripConstants(t *testing.T) {
	var dir = t.TempDir()

	rapid.Check(t, func(rt *rapid.T) {
		const factor = 32

		var left = rapid.Float64Range(-0.8, 0.8).Draw(rt, "left")
		var right = rapid.Float64Range(-0.8, 0.8).Draw(rt, "right")
		var kind = rapid.SampledFrom([]FilterKind{FilterFIR, FilterCIC}).Draw(rt, "kind")

		var cfg = GenConfig{
			SampleRate:     2_048_000,
			HalfPeriod:     rapid.IntRange(1, 3).Draw(rt, "half_period"),
			Bits:           factor*8 + 1,
			ModulatorOrder: 1,
			Tones:          [NumChannels]Tone{{Offset: left}, {Offset: right}},
		}

		var data, _, err = GeneratePDM(cfg)
		require.NoError(rt, err)

		var fp, createErr = os.CreateTemp(dir, "*.raw")
		require.NoError(rt, createErr)
		defer fp.Close()

		_, err = fp.Write(data)
		require.NoError(rt, err)
		_, err = fp.Seek(0, io.SeekStart)
		require.NoError(rt, err)

		var lr, lrErr = NewLogicReader(fp, 1, GEN_CLK_PROBE, GEN_DAT_PROBE)
		require.NoError(rt, lrErr)

		var buf = &RecordBuffer{}
		var d, decErr = NewDecoder(Options{Order: OrderDefault, Decimate: factor, Filter: kind}, buf, nil)
		require.NoError(rt, decErr)
		require.NoError(rt, d.Run(context.Background(), lr))

		for c, expected := range []float64{left, right} {
			var values = amplitudes(rt, buf, c)
			require.Len(rt, values, 8)

			for _, got := range values {
				assert.InDelta(rt, expected, got, 0.1)
				assert.False(rt, math.IsNaN(float64(got)))
			}
		}
	})
}
