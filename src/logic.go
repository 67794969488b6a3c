package pdm

/*------------------------------------------------------------------
 *
 * Purpose:	Turn raw logic analyzer samples into clock edges.
 *
 * Input:	Samples as written by sigrok's "binary" output format.
 *		Each sample is unitsize bytes, little endian, and bit n
 *		is probe n.
 *
 * Description:	The first sample only sets the starting levels.  After
 *		that every sample where the clock bit differs from the
 *		previous sample is an edge, reported with the levels of
 *		that sample.  This is the same as waiting on "any edge"
 *		of the clock probe.
 *
 *------------------------------------------------------------------*/

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
)

const MaxUnitSize = 8

type LogicReader struct {
	r        *bufio.Reader
	unitsize int
	clk      uint
	dat      uint

	buf       [MaxUnitSize]byte
	sampleNum int64 // Sample number of the next sample to be read.
	started   bool
	prevClk   bool
}

/*------------------------------------------------------------------
 *
 * Name:        NewLogicReader
 *
 * Inputs:	r		- Raw samples.
 *
 *		unitsize	- Bytes per sample, 1 to 8.
 *
 *		clk, dat	- Probe (bit) numbers of the clock and data lines.
 *
 *------------------------------------------------------------------*/

func NewLogicReader(r io.Reader, unitsize int, clk int, dat int) (*LogicReader, error) {
	if unitsize < 1 || unitsize > MaxUnitSize {
		return nil, fmt.Errorf("%w: unitsize %d not in range 1 - %d", ErrInvalidConfiguration, unitsize, MaxUnitSize)
	}

	var probes = unitsize * 8

	if clk < 0 || clk >= probes {
		return nil, fmt.Errorf("%w: clock probe %d not in range 0 - %d", ErrInvalidConfiguration, clk, probes-1)
	}

	if dat < 0 || dat >= probes {
		return nil, fmt.Errorf("%w: data probe %d not in range 0 - %d", ErrInvalidConfiguration, dat, probes-1)
	}

	if clk == dat {
		return nil, fmt.Errorf("%w: clock and data can't both be probe %d", ErrInvalidConfiguration, clk)
	}

	return &LogicReader{
		r:        bufio.NewReader(r),
		unitsize: unitsize,
		clk:      uint(clk),
		dat:      uint(dat),
	}, nil
}

func (lr *LogicReader) readSample() (uint64, error) {
	var b = lr.buf[:lr.unitsize]

	var _, err = io.ReadFull(lr.r, b)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		// Trailing partial sample.  Nothing we can do with it.
		return 0, io.EOF
	}
	if err != nil {
		return 0, err
	}

	var v uint64
	for i := lr.unitsize - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}

	return v, nil
}

// SamplesRead is the number of whole samples consumed so far.
func (lr *LogicReader) SamplesRead() int64 {
	return lr.sampleNum
}

func (lr *LogicReader) NextEdge(ctx context.Context) (Edge, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Edge{}, err
		}

		var v, err = lr.readSample()
		if err != nil {
			return Edge{}, err
		}

		var sampleNum = lr.sampleNum
		lr.sampleNum++

		var clk = v>>lr.clk&1 == 1

		if !lr.started {
			lr.started = true
			lr.prevClk = clk

			continue
		}

		if clk == lr.prevClk {
			continue
		}

		lr.prevClk = clk

		return Edge{
			Clock:     IfThenElse(clk, 1, 0),
			Data:      v>>lr.dat&1 == 1,
			SampleNum: sampleNum,
		}, nil
	}
}
