package pdm

/*-------------------------------------------------------------------
 *
 * Purpose:     Decode PDM captures from files or live GPIO pins.
 *
 * Inputs:	sigrok session files (.sr), raw binary logic samples,
 *		or a GPIO chip with the clock and data lines on it.
 *
 * Description:	This can be used to check a PDM microphone or codec
 *		under controlled and reproducible conditions.
 *
 *		For example
 *
 *		(1) Capture the clock and data lines with a logic
 *		    analyzer and save as a sigrok session.
 *
 *		(2) pdmdecode -D 64 -w out.wav capture.sr
 *
 *		(3) Listen to out.wav.
 *
 *--------------------------------------------------------------------*/

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/pflag"
)

type decodeArgs struct {
	opts       Options
	raw        bool
	unitsize   int
	clk        string
	dat        string
	samplerate uint64

	sampleNums  bool
	timestamp   string
	annotations []string
	binary      string
	binaryFile  string
	wavFile     string
	wavChannels string
	wavRate     int

	gpioChip string
	gpioClk  int
	gpioDat  int
}

func PdmDecodeMain() {
	os.Exit(PdmDecode(os.Args[1:], os.Stdout))
}

/*-------------------------------------------------------------------
 *
 * Name:        PdmDecode
 *
 * Purpose:     Command line decoder.
 *
 * Inputs:	args	- Command line, without the program name.
 *
 *		stdout	- Where annotations (and binary output, when no
 *			  file is given for it) go.
 *
 * Returns:	Exit status.
 *
 *--------------------------------------------------------------------*/

func PdmDecode(args []string, stdout io.Writer) int {
	var flags = pflag.NewFlagSet("pdmdecode", pflag.ContinueOnError)

	var configFile = flags.StringP("config", "c", "", "YAML options file.  Command line options override it.")
	var orderStr = flags.StringP("order", "O", OrderDefaultName, "Filter order, \"Default\" or 2 - 4019.")
	var decimate = flags.IntP("decimate", "D", DefaultDecimate, "Bits per amplitude value, 2 - 200.")
	var filterStr = flags.StringP("filter", "f", FilterFIR.String(), "Decimation filter, fir or cic.")
	var raw = flags.BoolP("raw", "R", false, "Input files are raw binary samples rather than sigrok sessions.")
	var unitsize = flags.IntP("unitsize", "u", 1, "Bytes per sample for raw input.")
	var clk = flags.String("clk", "clk", "Clock probe name, or 0 based probe number.")
	var dat = flags.String("dat", "dat", "Data probe name, or 0 based probe number.")
	var sampleRate = flags.Uint64P("sample-rate", "r", 0, "Sample rate of raw input.  Only used for time stamps and WAV rate.")
	var showSampleNum = flags.BoolP("show-samplenum", "s", false, "Precede annotations with their sample span.")
	var timestampFormat = flags.StringP("timestamp-format", "T", "", "Precede annotations with 'strftime' format time from start of capture.  %L is milliseconds.")
	var annotations = flags.StringSliceP("annotations", "a", nil, "Only show these annotation classes, e.g. left_value,right_value.")
	var binary = flags.StringP("binary", "B", "", "Write raw binary output of this class, e.g. left_value.")
	var binaryFile = flags.String("binary-file", "", "File for --binary.  Default is stdout, which turns off annotations.")
	var wavFile = flags.StringP("wav", "w", "", "Save amplitudes as 16 bit .WAV file.")
	var wavChannels = flags.String("wav-channels", "left,right", "Channels in the .WAV file: left, right or left,right.")
	var wavRate = flags.Int("wav-rate", 0, "WAV sample rate.  0 works it out from the capture sample rate.")
	var gpioChip = flags.String("gpio-chip", "", "Decode live from this GPIO chip, e.g. gpiochip0, instead of files.")
	var gpioClk = flags.Int("gpio-clk", -1, "GPIO line offset of the clock.")
	var gpioDat = flags.Int("gpio-dat", -1, "GPIO line offset of the data.")
	var list = flags.BoolP("list", "L", false, "Describe the decoder and its options.")
	var quiet = flags.BoolP("quiet", "q", false, "Only log errors.")
	var verbose = flags.CountP("verbose", "v", "More logging.  Repeat for debug.")
	var version = flags.Bool("version", false, "Print version and exit.")
	var help = flags.BoolP("help", "h", false, "Display help text.")

	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "pdmdecode demodulates PDM (pulse density modulation) captures.\n")
		fmt.Fprintf(os.Stderr, "The clock level selects the channel: low is left, high is right.\n")
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "Usage: pdmdecode [OPTION]... <FILE>...\n")
		fmt.Fprintf(os.Stderr, "       pdmdecode [OPTION]... --gpio-chip gpiochip0 --gpio-clk 5 --gpio-dat 6\n")
		flags.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "Examples:\n")
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "$ pdmgen -o tones.sr\n")
		fmt.Fprintf(os.Stderr, "$ pdmdecode -D 64 -a left_value tones.sr\n")
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "$ pdmdecode -D 64 -w tones.wav tones.sr\n")
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "$ pdmdecode -R -r 3072000 -B left_value --binary-file left.f32 capture.bin\n")
	}

	// !!! PARSE !!!
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 1
		}

		fmt.Fprintf(os.Stderr, "%s\n", err)
		flags.Usage()

		return 1
	}

	if *help {
		flags.Usage()
		return 1
	}

	if *version {
		printVersion(*verbose > 0)
		return 0
	}

	switch {
	case *quiet:
		text_color_init(0)
	default:
		text_color_init(1 + *verbose)
	}

	if *list {
		describe(stdout, NewDescriptor())
		return 0
	}

	var a = decodeArgs{ //nolint:exhaustruct
		opts:        DefaultOptions(),
		raw:         *raw,
		unitsize:    *unitsize,
		clk:         *clk,
		dat:         *dat,
		samplerate:  *sampleRate,
		sampleNums:  *showSampleNum,
		timestamp:   *timestampFormat,
		annotations: *annotations,
		binary:      *binary,
		binaryFile:  *binaryFile,
		wavFile:     *wavFile,
		wavChannels: *wavChannels,
		wavRate:     *wavRate,
		gpioChip:    *gpioChip,
		gpioClk:     *gpioClk,
		gpioDat:     *gpioDat,
	}

	/*
	 * Options file first, then anything given on the command line.
	 */
	if *configFile != "" {
		var f, err = LoadOptionsFile(*configFile)
		if err != nil {
			logger.Error("Couldn't read options file", "err", err)
			return 1
		}

		a.opts, err = f.Apply(a.opts)
		if err != nil {
			logger.Error("Bad options file", "file", *configFile, "err", err)
			return 1
		}

		if f.Clk != "" && !flags.Changed("clk") {
			a.clk = f.Clk
		}

		if f.Dat != "" && !flags.Changed("dat") {
			a.dat = f.Dat
		}

		if f.SampleRate != 0 && !flags.Changed("sample-rate") {
			a.samplerate = f.SampleRate
		}
	}

	if *configFile == "" || flags.Changed("order") {
		var order, err = ParseOrder(*orderStr)
		if err != nil {
			logger.Error("Bad --order", "err", err)
			return 1
		}
		a.opts.Order = order
	}

	if *configFile == "" || flags.Changed("decimate") {
		a.opts.Decimate = *decimate
	}

	if *configFile == "" || flags.Changed("filter") {
		var kind, err = ParseFilterKind(*filterStr)
		if err != nil {
			logger.Error("Bad --filter", "err", err)
			return 1
		}
		a.opts.Filter = kind
	}

	if err := a.opts.Validate(); err != nil {
		logger.Error("Bad options", "err", err)
		return 1
	}

	var ctx, stop = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if a.gpioChip == "" && flags.NArg() == 0 {
		logger.Error("Specify .sr or raw capture file name(s) on command line.")
		flags.Usage()

		return 1
	}

	/*
	 * Outputs are shared by every input so that files named with
	 * --wav and --binary-file hold the whole run, not just the last input.
	 */
	var out, err = newOutputs(a, stdout)
	if err != nil {
		logger.Error("Can't set up output", "err", err)
		return 1
	}

	var status = 0

	if a.gpioChip != "" {
		if err := decodeGPIO(ctx, a, out); err != nil {
			logger.Error("Live decode failed", "chip", a.gpioChip, "err", err)
			status = 1
		}
	} else {
		for _, fname := range flags.Args() {
			if err := decodeFile(ctx, a, fname, out); err != nil {
				logger.Error("Decode failed", "file", fname, "err", err)
				status = 1

				break
			}
		}
	}

	if err := out.finish(); err != nil {
		logger.Error("Couldn't finish output", "err", err)
		status = 1
	}

	return status
}

func describe(w io.Writer, d *Descriptor) {
	fmt.Fprintf(w, "ID: %s\n", d.ID)
	fmt.Fprintf(w, "Name: %s\n", d.Name)
	fmt.Fprintf(w, "Long name: %s\n", d.LongName)
	fmt.Fprintf(w, "Description: %s\n", d.Desc)
	fmt.Fprintf(w, "License: %s\n", d.License)
	fmt.Fprintf(w, "Possible decoder input IDs:\n")
	for _, in := range d.Inputs {
		fmt.Fprintf(w, "- %s\n", in)
	}
	fmt.Fprintf(w, "Annotation classes:\n")
	for _, c := range d.Annotations {
		fmt.Fprintf(w, "- %s: %s\n", c.ID, c.Label)
	}
	fmt.Fprintf(w, "Binary classes:\n")
	for _, c := range d.Binary {
		fmt.Fprintf(w, "- %s: %s\n", c.ID, c.Label)
	}
	fmt.Fprintf(w, "Required channels:\n")
	for _, c := range d.Channels {
		fmt.Fprintf(w, "- %s (%s): %s\n", c.ID, c.Name, c.Desc)
	}
	fmt.Fprintf(w, "Options:\n")
	for _, o := range d.Options {
		var values = o.Values
		if len(values) > 6 {
			values = []string{values[0], values[1], "...", values[len(values)-1]}
		}
		fmt.Fprintf(w, "- %s: %s (%s, default %s)\n", o.ID, o.Desc, strings.Join(values, ", "), o.Default)
	}
}

func parseWavChannels(s string) ([]int, error) {
	var channels []int

	for _, name := range strings.Split(s, ",") {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "left", "l", "0":
			channels = append(channels, 0)
		case "right", "r", "1":
			channels = append(channels, 1)
		default:
			return nil, fmt.Errorf("%w: unknown WAV channel %q", ErrInvalidConfiguration, name)
		}
	}

	return channels, nil
}

/*
 * Everything that was asked for on the command line, as one Sink.
 * The returned function finishes off any files.
 */
func buildSinks(a decodeArgs, stdout io.Writer, rate func() (uint64, bool)) (Sink, func() error, error) {
	var sinks MultiSink
	var closers []func() error
	var desc = NewDescriptor()

	var finish = func() error {
		var first error
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil && first == nil {
				first = err
			}
		}

		return first
	}

	var annotationsToStdout = true

	if a.binary != "" {
		var slot, ok = desc.SlotByID(a.binary)
		if !ok {
			return nil, finish, fmt.Errorf("%w: no binary class %q", ErrInvalidConfiguration, a.binary)
		}

		var w = stdout
		if a.binaryFile != "" {
			var fp, err = os.Create(a.binaryFile) //nolint:gosec
			if err != nil {
				return nil, finish, err
			}
			closers = append(closers, fp.Close)
			w = fp
		} else {
			annotationsToStdout = false
		}

		sinks = append(sinks, NewBinarySink(w, slot))
	}

	if annotationsToStdout {
		var opts []TextSinkOption

		if len(a.annotations) > 0 {
			var slots []int
			for _, id := range a.annotations {
				var slot, ok = desc.SlotByID(id)
				if !ok {
					return nil, finish, fmt.Errorf("%w: no annotation class %q", ErrInvalidConfiguration, id)
				}
				slots = append(slots, slot)
			}
			opts = append(opts, WithSlots(slots...))
		}

		if a.sampleNums {
			opts = append(opts, WithSampleNumbers())
		}

		if a.timestamp != "" {
			opts = append(opts, WithTimestamp(a.timestamp, rate))
		}

		var ts, err = NewTextSink(stdout, opts...)
		if err != nil {
			return nil, finish, err
		}

		sinks = append(sinks, ts)
	}

	if a.wavFile != "" {
		var channels, err = parseWavChannels(a.wavChannels)
		if err != nil {
			return nil, finish, err
		}

		fp, err := os.Create(a.wavFile) //nolint:gosec
		if err != nil {
			return nil, finish, err
		}
		closers = append(closers, fp.Close)

		ws, err := NewWavSink(fp, channels, a.wavRate, rate)
		if err != nil {
			return nil, finish, err
		}
		closers = append(closers, func() error {
			var closeErr = ws.Close()
			logger.Info("Wrote WAV", "file", a.wavFile, "frames", ws.Frames(), "rate", ws.Rate())

			return closeErr
		})

		sinks = append(sinks, ws)
	}

	return sinks, finish, nil
}

func openSource(a decodeArgs, fname string) (*LogicReader, uint64, func() error, error) {
	if a.raw {
		var clkIndex, clkErr = strconv.Atoi(a.clk)
		var datIndex, datErr = strconv.Atoi(a.dat)

		if a.clk == "clk" && a.dat == "dat" {
			clkIndex, datIndex = GEN_CLK_PROBE, GEN_DAT_PROBE
			clkErr, datErr = nil, nil
		}

		if clkErr != nil || datErr != nil {
			return nil, 0, nil, fmt.Errorf("%w: raw input needs probe numbers for --clk and --dat", ErrInvalidConfiguration)
		}

		var fp, err = os.Open(fname) //nolint:gosec
		if err != nil {
			return nil, 0, nil, err
		}

		lr, err := NewLogicReader(fp, a.unitsize, clkIndex, datIndex)
		if err != nil {
			fp.Close()
			return nil, 0, nil, err
		}

		return lr, a.samplerate, fp.Close, nil
	}

	var s, err = OpenSession(fname)
	if err != nil {
		return nil, 0, nil, err
	}

	lr, err := s.EdgeSource(a.clk, a.dat)
	if err != nil {
		s.Close()
		return nil, 0, nil, err
	}

	var rate = s.SampleRate
	if rate == 0 {
		rate = a.samplerate
	}

	return lr, rate, s.Close, nil
}

// outputs is the Sink for a whole run.  The sample rate it reports is
// that of the input being decoded at the moment.
type outputs struct {
	sink    Sink
	finish  func() error
	decoder *Decoder
}

func newOutputs(a decodeArgs, stdout io.Writer) (*outputs, error) {
	var out = &outputs{} //nolint:exhaustruct

	var sink, finish, err = buildSinks(a, stdout, out.sampleRate)
	if err != nil {
		finish()
		return nil, err
	}

	out.sink = sink
	out.finish = finish

	return out, nil
}

func (o *outputs) sampleRate() (uint64, bool) {
	if o.decoder == nil {
		return 0, false
	}

	return o.decoder.SampleRate()
}

func runSession(ctx context.Context, a decodeArgs, src EdgeSource, samplerate uint64, out *outputs) (*Decoder, error) {
	var decoder, err = NewDecoder(a.opts, out.sink, nil)
	if err != nil {
		return nil, err
	}

	if samplerate > 0 {
		decoder.Metadata(MetadataSampleRate, samplerate)
	}

	out.decoder = decoder

	var opts = decoder.Options()
	logger.Debug("Decoding", "decimate", opts.Decimate, "order", FormatOrder(opts.Order), "filter", opts.Filter, "samplerate", samplerate)

	var runErr = decoder.Run(ctx, src)

	for c, st := range decoder.Stats() {
		logger.Info("Channel summary", "channel", c, "edges", st.Edges, "windows", st.Windows, "bits", st.Bits, "values", st.Values)
	}

	return decoder, runErr
}

func decodeFile(ctx context.Context, a decodeArgs, fname string, out *outputs) error {
	var src, samplerate, closeSource, err = openSource(a, fname)
	if err != nil {
		return err
	}
	defer closeSource()

	logger.Info("Decoding", "file", fname)

	_, err = runSession(ctx, a, src, samplerate, out)

	return err
}

func decodeGPIO(ctx context.Context, a decodeArgs, out *outputs) error {
	if a.gpioClk < 0 || a.gpioDat < 0 {
		return fmt.Errorf("%w: --gpio-clk and --gpio-dat are needed with --gpio-chip", ErrInvalidConfiguration)
	}

	var g, err = OpenGPIO(a.gpioChip, a.gpioClk, a.gpioDat)
	if err != nil {
		return err
	}
	defer g.Close()

	logger.Info("Decoding live, interrupt to stop", "chip", a.gpioChip, "clk", a.gpioClk, "dat", a.gpioDat)

	_, err = runSession(ctx, a, g, g.SampleRate(), out)

	if g.Overruns() > 0 {
		logger.Warn("Edges were dropped", "count", g.Overruns())
	}

	if errors.Is(err, context.Canceled) {
		return nil
	}

	return err
}
