package pdm

/*------------------------------------------------------------------
 *
 * Purpose:	Write decoder output for people and for other programs.
 *
 * Description:	TextSink prints the annotations, one per line, in the
 *		same shape as sigrok-cli:
 *
 *			pdm-1: L Amplitude: 0.250
 *
 *		optionally preceded by the sample span and/or a time stamp
 *		relative to the start of the capture.
 *
 *		BinarySink writes the raw payload bytes of one slot, e.g.
 *		every L Amplitude as a little endian float32.
 *
 *------------------------------------------------------------------*/

import (
	"fmt"
	"io"
	"math/bits"
	"time"

	"github.com/lestrrat-go/strftime"
)

type TextSink struct {
	w          io.Writer
	desc       *Descriptor
	slots      map[int]bool // nil for all.
	sampleNums bool
	timestamp  *strftime.Strftime
	samplerate func() (uint64, bool)
}

type TextSinkOption func(*TextSink) error

// WithSlots limits output to the given annotation slots.
func WithSlots(slots ...int) TextSinkOption {
	return func(ts *TextSink) error {
		ts.slots = map[int]bool{}
		for _, s := range slots {
			ts.slots[s] = true
		}

		return nil
	}
}

func WithSampleNumbers() TextSinkOption {
	return func(ts *TextSink) error {
		ts.sampleNums = true
		return nil
	}
}

// WithTimestamp precedes each line with the start time of the annotation,
// counted from the start of the capture, in strftime format.  %L is milliseconds.
// rate supplies the sample rate; lines have no time stamp while it is unknown.
func WithTimestamp(format string, rate func() (uint64, bool)) TextSinkOption {
	return func(ts *TextSink) error {
		var f, err = strftime.New(format, strftime.WithMilliseconds('L'))
		if err != nil {
			return fmt.Errorf("%w: timestamp format %q: %w", ErrInvalidConfiguration, format, err)
		}

		ts.timestamp = f
		ts.samplerate = rate

		return nil
	}
}

func NewTextSink(w io.Writer, opts ...TextSinkOption) (*TextSink, error) {
	var ts = &TextSink{w: w, desc: NewDescriptor()} //nolint:exhaustruct

	for _, opt := range opts {
		if err := opt(ts); err != nil {
			return nil, err
		}
	}

	return ts, nil
}

// SampleTime converts a sample number to an offset from the start of the capture.
func SampleTime(sampleNum int64, samplerate uint64) time.Duration {
	if samplerate == 0 {
		return 0
	}

	if sampleNum <= 0 {
		return 0
	}

	var secs = uint64(sampleNum) / samplerate
	var rem = uint64(sampleNum) % samplerate

	// rem < samplerate, so the 128 bit product divided by samplerate fits in 64 bits.
	var hi, lo = bits.Mul64(rem, uint64(time.Second))
	var frac, _ = bits.Div64(hi, lo, samplerate)

	return time.Duration(secs)*time.Second + time.Duration(frac)
}

func (ts *TextSink) Put(rec Record) error {
	if rec.Output != OutputAnn {
		return nil
	}

	if ts.slots != nil && !ts.slots[rec.Slot] {
		return nil
	}

	var class, ok = ts.desc.ClassBySlot(rec.Slot)
	if !ok {
		return fmt.Errorf("no annotation class for slot %d", rec.Slot)
	}

	if ts.timestamp != nil && ts.samplerate != nil {
		if rate, known := ts.samplerate(); known && rate > 0 {
			var t = time.Unix(0, 0).UTC().Add(SampleTime(rec.Start, rate))
			if _, err := fmt.Fprintf(ts.w, "[%s] ", ts.timestamp.FormatString(t)); err != nil {
				return err
			}
		}
	}

	if ts.sampleNums {
		if _, err := fmt.Fprintf(ts.w, "%d-%d ", rec.Start, rec.End); err != nil {
			return err
		}
	}

	var _, err = fmt.Fprintf(ts.w, "%s-1: %s: %s\n", ts.desc.ID, class.Label, rec.Text)

	return err
}

type BinarySink struct {
	w    io.Writer
	slot int
}

func NewBinarySink(w io.Writer, slot int) *BinarySink {
	return &BinarySink{w: w, slot: slot}
}

func (bs *BinarySink) Put(rec Record) error {
	if rec.Output != OutputBinary || rec.Slot != bs.slot {
		return nil
	}

	var _, err = bs.w.Write(rec.Data)

	return err
}
