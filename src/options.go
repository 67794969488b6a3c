package pdm

/*------------------------------------------------------------------
 *
 * Purpose:	Decoder options, their validation, and the optional
 *		YAML options file.
 *
 * Description:	The options are read once at the start of a session
 *		and never change while it runs.  Anything wrong with
 *		them is reported here rather than part way through
 *		a capture.
 *
 *		Example options file:
 *
 *			order: Default
 *			decimate: 64
 *			filter: fir
 *			clk: clk
 *			dat: dat
 *			samplerate: 3072000
 *
 *------------------------------------------------------------------*/

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

var ErrInvalidConfiguration = errors.New("invalid configuration")

const (
	OrderDefaultName = "Default"

	MinOrder = 2
	MaxOrder = 201*20 - 1

	MinDecimate     = 2
	MaxDecimate     = 200
	DefaultDecimate = 10
)

type Options struct {
	Order    int // OrderDefault or MinOrder..MaxOrder.
	Decimate int
	Filter   FilterKind
}

func DefaultOptions() Options {
	return Options{
		Order:    OrderDefault,
		Decimate: DefaultDecimate,
		Filter:   FilterFIR,
	}
}

// ParseOrder accepts "Default" or a whole number.
func ParseOrder(s string) (int, error) {
	s = strings.TrimSpace(s)

	if s == "" || strings.EqualFold(s, OrderDefaultName) {
		return OrderDefault, nil
	}

	var order, err = strconv.Atoi(s)
	if err != nil {
		return OrderDefault, fmt.Errorf("%w: filter order %q is not %s or a whole number", ErrInvalidConfiguration, s, OrderDefaultName)
	}

	if order < MinOrder || order > MaxOrder {
		return OrderDefault, fmt.Errorf("%w: filter order %d not in range %d - %d", ErrInvalidConfiguration, order, MinOrder, MaxOrder)
	}

	return order, nil
}

func FormatOrder(order int) string {
	if order == OrderDefault {
		return OrderDefaultName
	}

	return strconv.Itoa(order)
}

func (o Options) Validate() error {
	if o.Decimate < MinDecimate || o.Decimate > MaxDecimate {
		return fmt.Errorf("%w: decimate should be between %d and %d inclusive, not %d", ErrInvalidConfiguration, MinDecimate, MaxDecimate, o.Decimate)
	}

	if o.Order != OrderDefault && (o.Order < MinOrder || o.Order > MaxOrder) {
		return fmt.Errorf("%w: filter order %d not in range %d - %d", ErrInvalidConfiguration, o.Order, MinOrder, MaxOrder)
	}

	switch o.Filter {
	case FilterFIR, FilterCIC:
	default:
		return fmt.Errorf("%w: unknown filter kind %d", ErrInvalidConfiguration, int(o.Filter))
	}

	return nil
}

// OptionsFile is what can appear in a YAML options file.
// Empty fields leave the defaults alone.
type OptionsFile struct {
	Order      string `yaml:"order"`
	Decimate   int    `yaml:"decimate"`
	Filter     string `yaml:"filter"`
	Clk        string `yaml:"clk"`
	Dat        string `yaml:"dat"`
	SampleRate uint64 `yaml:"samplerate"`
}

func ReadOptionsFile(r io.Reader) (*OptionsFile, error) {
	var f OptionsFile

	var decoder = yaml.NewDecoder(r)
	decoder.KnownFields(true)

	if err := decoder.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfiguration, err)
	}

	return &f, nil
}

func LoadOptionsFile(path string) (*OptionsFile, error) {
	var fp, err = os.Open(path) //nolint:gosec // User-supplied options file from the CLI.
	if err != nil {
		return nil, err
	}
	defer fp.Close()

	var f, readErr = ReadOptionsFile(fp)
	if readErr != nil {
		return nil, fmt.Errorf("%s: %w", path, readErr)
	}

	return f, nil
}

// Apply overlays the file on top of o and validates the result.
func (f *OptionsFile) Apply(o Options) (Options, error) {
	if f.Order != "" {
		var order, err = ParseOrder(f.Order)
		if err != nil {
			return o, err
		}

		o.Order = order
	}

	if f.Decimate != 0 {
		o.Decimate = f.Decimate
	}

	if f.Filter != "" {
		var kind, err = ParseFilterKind(f.Filter)
		if err != nil {
			return o, err
		}

		o.Filter = kind
	}

	return o, o.Validate()
}
