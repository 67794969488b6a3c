package pdm

/*------------------------------------------------------------------
 *
 * Purpose:   	Generate PDM bus captures for testing the decoder.
 *
 * Description:	Each channel's signal goes through a delta-sigma
 *		modulator to get one bit per clock cycle.  The bits are
 *		laid out as logic analyzer samples:
 *
 *			probe 0		clk
 *			probe 1		dat
 *
 *		The clock is low for halfPeriod samples while channel 0's
 *		bit is on the data line, then high for halfPeriod samples
 *		with channel 1's bit.  One extra high half period at the
 *		start gives the decoder a clock level to compare against
 *		so that the very first bit produces an edge.
 *
 *------------------------------------------------------------------*/

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
)

const (
	GEN_CLK_PROBE = 0
	GEN_DAT_PROBE = 1
)

// Modulator is a first or second order delta-sigma modulator.
type Modulator struct {
	order int
	i1    float64
	i2    float64
	y     float64
}

func NewModulator(order int) (*Modulator, error) {
	if order != 1 && order != 2 {
		return nil, fmt.Errorf("%w: modulator order must be 1 or 2, not %d", ErrInvalidConfiguration, order)
	}

	return &Modulator{order: order}, nil //nolint:exhaustruct
}

// Next returns the output bit for input x, which is clipped to -1 .. +1.
func (m *Modulator) Next(x float64) bool {
	x = max(-1, min(1, x))

	m.i1 += x - m.y

	var v = m.i1
	if m.order == 2 {
		m.i2 += m.i1 - m.y
		v = m.i2
	}

	if v >= 0 {
		m.y = 1
	} else {
		m.y = -1
	}

	return m.y > 0
}

// Tone is Offset + Amplitude * sin(2 pi Freq t).
type Tone struct {
	Freq      float64
	Amplitude float64
	Offset    float64
}

func (t Tone) At(seconds float64) float64 {
	return t.Offset + t.Amplitude*math.Sin(2*math.Pi*t.Freq*seconds)
}

type GenConfig struct {
	SampleRate     uint64 // Logic samples per second.
	HalfPeriod     int    // Logic samples per clock half period.
	Bits           int    // Bits per channel.
	ModulatorOrder int
	Tones          [NumChannels]Tone
}

// BitRate is the number of bits per second on each channel.
func (cfg GenConfig) BitRate() float64 {
	return float64(cfg.SampleRate) / float64(2*cfg.HalfPeriod)
}

// EdgeSample is where the decoder will see bit n of a channel.
func (cfg GenConfig) EdgeSample(channel int, n int) int64 {
	return int64(cfg.HalfPeriod) * int64(1+2*n+channel)
}

func (cfg GenConfig) Validate() error {
	if cfg.SampleRate == 0 {
		return fmt.Errorf("%w: sample rate must be given", ErrInvalidConfiguration)
	}

	if cfg.HalfPeriod < 1 {
		return fmt.Errorf("%w: clock half period must be at least 1 sample", ErrInvalidConfiguration)
	}

	if cfg.Bits < 0 {
		return fmt.Errorf("%w: bit count %d", ErrInvalidConfiguration, cfg.Bits)
	}

	return nil
}

/*------------------------------------------------------------------
 *
 * Name:        GeneratePDM
 *
 * Purpose:     Build the logic samples for a PDM bus.
 *
 * Returns:     One byte per sample (unitsize 1), and the bits that
 *		were sent for each channel.
 *
 *----------------------------------------------------------------*/

func GeneratePDM(cfg GenConfig) ([]byte, [NumChannels][]bool, error) {
	var sent [NumChannels][]bool

	if err := cfg.Validate(); err != nil {
		return nil, sent, err
	}

	var order = IfThenElse(cfg.ModulatorOrder == 0, 1, cfg.ModulatorOrder)

	var mods [NumChannels]*Modulator
	for c := range NumChannels {
		var m, err = NewModulator(order)
		if err != nil {
			return nil, sent, err
		}
		mods[c] = m
		sent[c] = make([]bool, 0, cfg.Bits)
	}

	var out = make([]byte, 0, cfg.HalfPeriod*(1+2*cfg.Bits))

	var put = func(clk int, dat bool) {
		var v = byte(clk << GEN_CLK_PROBE)
		if dat {
			v |= 1 << GEN_DAT_PROBE
		}
		for range cfg.HalfPeriod {
			out = append(out, v)
		}
	}

	put(1, false)

	var bitRate = cfg.BitRate()

	for n := range cfg.Bits {
		var t = float64(n) / bitRate

		for c := range NumChannels {
			var bit = mods[c].Next(cfg.Tones[c].At(t))
			sent[c] = append(sent[c], bit)
			put(c, bit)
		}
	}

	return out, sent, nil
}

/*------------------------------------------------------------------
 *
 * Name:        WriteCapture
 *
 * Purpose:     Save generated samples.  A name ending in .sr gets a
 *		sigrok session file, anything else raw binary samples.
 *
 *----------------------------------------------------------------*/

func WriteCapture(fname string, samplerate uint64, data []byte) error {
	var fp, err = os.Create(fname) //nolint:gosec // We expect to write to a user-supplied file from CLI
	if err != nil {
		return err
	}

	if strings.EqualFold(filepath.Ext(fname), ".sr") {
		err = WriteSession(fp, SessionInfo{
			SampleRate:  samplerate,
			UnitSize:    1,
			Probes:      []string{"clk", "dat"},
			CaptureFile: "logic-1",
		}, data)
	} else {
		_, err = fp.Write(data)
	}

	if closeErr := fp.Close(); err == nil {
		err = closeErr
	}

	return err
}

func PdmGenMain() {
	var outputFile = pflag.StringP("output-file", "o", "", "Write capture to this file.  .sr for a sigrok session, anything else for raw binary samples.")
	var sampleRate = pflag.Uint64P("sample-rate", "r", 3_072_000, "Logic analyzer sample rate.")
	var halfPeriod = pflag.IntP("half-period", "H", 1, "Samples per clock half period.")
	var duration = pflag.Float64P("duration", "d", 1.0, "Seconds of signal to generate.")
	var modOrder = pflag.IntP("modulator-order", "m", 2, "Delta-sigma modulator order, 1 or 2.")
	var leftFreq = pflag.Float64("left-freq", 440, "Left channel tone frequency, Hz.")
	var leftAmp = pflag.Float64("left-amplitude", 0.5, "Left channel tone amplitude, 0 to 1.")
	var leftDC = pflag.Float64("left-dc", 0, "Left channel DC offset.")
	var rightFreq = pflag.Float64("right-freq", 1000, "Right channel tone frequency, Hz.")
	var rightAmp = pflag.Float64("right-amplitude", 0.5, "Right channel tone amplitude, 0 to 1.")
	var rightDC = pflag.Float64("right-dc", 0, "Right channel DC offset.")
	var verbose = pflag.CountP("verbose", "v", "More logging.  Repeat for debug.")
	var help = pflag.BoolP("help", "h", false, "Display help text.")

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s - Generate a PDM bus capture.\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "Usage: %s [options] -o file\n", os.Args[0])
		pflag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "Example:  pdmgen -o tones.sr\n")
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "    One second of 440 Hz left and 1 kHz right at half scale,\n")
		fmt.Fprintf(os.Stderr, "    1.536 MHz PDM clock, as a sigrok session.\n")
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "Example:  pdmgen -o dc.bin --left-amplitude 0 --left-dc 0.25 -d 0.01\n")
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "    10 ms of constant 0.25 on the left as raw samples.\n")
		fmt.Fprintf(os.Stderr, "    Decode with: pdmdecode --raw --sample-rate 3072000 dc.bin\n")
	}

	// !!! PARSE !!!
	pflag.Parse()

	if *help {
		pflag.Usage()
		os.Exit(1)
	}

	text_color_init(1 + *verbose)

	if *outputFile == "" {
		logger.Error("Output file must be given with -o")
		pflag.Usage()
		os.Exit(1)
	}

	var cfg = GenConfig{
		SampleRate:     *sampleRate,
		HalfPeriod:     *halfPeriod,
		ModulatorOrder: *modOrder,
		Tones: [NumChannels]Tone{
			{Freq: *leftFreq, Amplitude: *leftAmp, Offset: *leftDC},
			{Freq: *rightFreq, Amplitude: *rightAmp, Offset: *rightDC},
		},
	}

	if *halfPeriod >= 1 {
		cfg.Bits = int(*duration * cfg.BitRate())
	}

	var data, _, err = GeneratePDM(cfg)
	if err != nil {
		logger.Error("Can't generate", "err", err)
		os.Exit(1)
	}

	if err := WriteCapture(*outputFile, cfg.SampleRate, data); err != nil {
		logger.Error("Couldn't write capture", "file", *outputFile, "err", err)
		os.Exit(1)
	}

	logger.Info("Wrote capture", "file", *outputFile, "samples", len(data), "bits_per_channel", cfg.Bits, "bit_rate", cfg.BitRate())
}
