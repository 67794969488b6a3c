package pdm

/*------------------------------------------------------------------
 *
 * Purpose:   	Decode a PDM bus.  One clock line, one data line
 *		carrying two channels.  The clock level says which
 *		channel the data line belongs to.
 *
 * Input:	Clock edges from an EdgeSource.
 *
 * Outputs:	For each channel, a bit record spanning from one edge to
 *		the next edge of the same channel, and an amplitude
 *		record for every completed decimation window.
 *		Each is sent to the annotation and binary outputs.
 *
 *---------------------------------------------------------------*/

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// Edge is a transition on the clock line.  Clock is the new clock level,
// which is also the channel, and Data is the data line at that moment.
type Edge struct {
	Clock     int
	Data      bool
	SampleNum int64
}

// EdgeSource delivers clock edges in non-decreasing SampleNum order.
// It returns io.EOF when there are no more.
type EdgeSource interface {
	NextEdge(ctx context.Context) (Edge, error)
}

type MetadataKey int

const (
	MetadataSampleRate MetadataKey = iota
)

type channelTrack struct {
	lastSample  int64 // Sample number of the previous bit.
	seen        bool  // False until the first bit.
	lastBit     bool
	lastFlushed bool // Pushing lastBit completed a window.
}

type ChannelStats struct {
	Edges   int
	Windows int
	Bits    int // Bit records emitted.
	Values  int // Amplitude records emitted.
}

type Decoder struct {
	opts  Options
	sink  Sink
	demod [NumChannels]*ChannelDemod
	track [NumChannels]channelTrack
	stats [NumChannels]ChannelStats

	samplerate    uint64
	hasSamplerate bool
}

/*------------------------------------------------------------------
 *
 * Name:        NewDecoder
 *
 * Purpose:     Start a decoding session.
 *
 * Inputs:      opts		- Validated here.  Fixed for the session.
 *
 *		sink		- Receives annotation and binary records.
 *
 *		decimate	- Decimation primitive.  nil for Decimate.
 *
 * Returns:     Error wrapping ErrInvalidConfiguration for bad options.
 *
 *----------------------------------------------------------------*/

func NewDecoder(opts Options, sink Sink, decimate DecimateFunc) (*Decoder, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	if sink == nil {
		return nil, fmt.Errorf("%w: no output sink", ErrInvalidConfiguration)
	}

	var d = &Decoder{
		opts: opts,
		sink: sink,
	}

	for c := range NumChannels {
		var demod, err = NewChannelDemod(opts.Decimate, opts.Order, opts.Filter, decimate)
		if err != nil {
			return nil, err
		}

		d.demod[c] = demod
	}

	return d, nil
}

func (d *Decoder) Options() Options {
	return d.opts
}

// Metadata is informational.  Decoding is the same with or without it.
func (d *Decoder) Metadata(key MetadataKey, value uint64) {
	if key == MetadataSampleRate {
		d.samplerate = value
		d.hasSamplerate = true
	}
}

func (d *Decoder) SampleRate() (uint64, bool) {
	return d.samplerate, d.hasSamplerate
}

func (d *Decoder) Stats() [NumChannels]ChannelStats {
	return d.stats
}

func (d *Decoder) put(start, end int64, slot int, text string, data []byte) error {
	if err := d.sink.Put(Record{Start: start, End: end, Output: OutputAnn, Slot: slot, Text: text}); err != nil {
		return err
	}

	return d.sink.Put(Record{Start: start, End: end, Output: OutputBinary, Slot: slot, Data: data})
}

/*------------------------------------------------------------------
 *
 * Name:        Step
 *
 * Purpose:     Process one clock edge.
 *
 * Description:	The end of a bit is only known when the next edge for the
 *		same channel arrives, so output for a channel always lags
 *		by one edge:
 *
 *		1. If the previous bit completed a window, emit its amplitude
 *		   from the window start up to now.
 *		2. Emit the previous bit from where it was seen up to now.
 *		3. Push the new bit into the channel's demodulator.
 *
 *----------------------------------------------------------------*/

func (d *Decoder) Step(e Edge) error {
	var c = e.Clock
	if c < 0 || c >= NumChannels {
		return fmt.Errorf("clock level %d at sample %d is not a channel", c, e.SampleNum)
	}

	var T = &d.track[c]
	var D = d.demod[c]

	if T.lastFlushed {
		var out, _ = D.Amplitude()
		if err := d.put(D.WindowStart(), e.SampleNum, AmplitudeSlot(c), FormatAmplitude(out), PackAmplitude(out)); err != nil {
			return err
		}
		d.stats[c].Values++
	}

	if T.seen {
		if err := d.put(T.lastSample, e.SampleNum, BitSlot(c), FormatBit(T.lastBit), PackBit(T.lastBit)); err != nil {
			return err
		}
		d.stats[c].Bits++
	}

	T.lastFlushed = D.Push(e.SampleNum, IfThenElse[float32](e.Data, 1.0, -1.0))
	if T.lastFlushed {
		d.stats[c].Windows++
	}

	T.lastSample = e.SampleNum
	T.lastBit = e.Data
	T.seen = true
	d.stats[c].Edges++

	return nil
}

// Run feeds edges from src to Step until src reports io.EOF, which is a normal end.
func (d *Decoder) Run(ctx context.Context, src EdgeSource) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var e, err = src.NextEdge(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("waiting for clock edge: %w", err)
		}

		if err := d.Step(e); err != nil {
			return err
		}
	}
}

// EdgeList replays edges from memory.
type EdgeList struct {
	Edges []Edge
	next  int
}

func (l *EdgeList) NextEdge(ctx context.Context) (Edge, error) {
	if err := ctx.Err(); err != nil {
		return Edge{}, err
	}

	if l.next >= len(l.Edges) {
		return Edge{}, io.EOF
	}

	l.next++

	return l.Edges[l.next-1], nil
}
