package pdm

/*------------------------------------------------------------------
 *
 * Purpose:	Save the demodulated amplitudes as a .WAV file.
 *
 * Description:	The header is written first with the sizes left as
 *		zero.  Close goes back and fills them in, along with the
 *		sample rate if we had to work it out from the capture.
 *
 *------------------------------------------------------------------*/

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

type wav_header struct { /* .WAV file header. */
	riff            [4]byte /* "RIFF" */
	filesize        int32   /* file length - 8 */
	wave            [4]byte /* "WAVE" */
	fmt             [4]byte /* "fmt " */
	fmtsize         int32   /* 16. */
	wformattag      int16   /* 1 for PCM. */
	nchannels       int16   /* 1 for mono, 2 for stereo. */
	nsamplespersec  int32   /* sampling freq, Hz. */
	navgbytespersec int32   /* = nblockalign * nsamplespersec. */
	nblockalign     int16   /* = wbitspersample / 8 * nchannels. */
	wbitspersample  int16   /* 16. */
	data            [4]byte /* "data" */
	datasize        int32   /* number of bytes following. */
}

const DEFAULT_WAV_RATE = 16000

func (h *wav_header) write(w io.Writer) error {
	// binary.Write wants exported fields, so lay it out by hand.
	var b = make([]byte, 0, 44)
	b = append(b, h.riff[:]...)
	b = binary.LittleEndian.AppendUint32(b, uint32(h.filesize))
	b = append(b, h.wave[:]...)
	b = append(b, h.fmt[:]...)
	b = binary.LittleEndian.AppendUint32(b, uint32(h.fmtsize))
	b = binary.LittleEndian.AppendUint16(b, uint16(h.wformattag))
	b = binary.LittleEndian.AppendUint16(b, uint16(h.nchannels))
	b = binary.LittleEndian.AppendUint32(b, uint32(h.nsamplespersec))
	b = binary.LittleEndian.AppendUint32(b, uint32(h.navgbytespersec))
	b = binary.LittleEndian.AppendUint16(b, uint16(h.nblockalign))
	b = binary.LittleEndian.AppendUint16(b, uint16(h.wbitspersample))
	b = append(b, h.data[:]...)
	b = binary.LittleEndian.AppendUint32(b, uint32(h.datasize))

	var _, err = w.Write(b)

	return err
}

const wavHeaderSize = 44

type WavSink struct {
	ws       io.WriteSeeker
	out      *bufio.Writer
	header   wav_header
	channels []int // Decoder channels, in WAV channel order.

	rate       int
	samplerate func() (uint64, bool)

	pending   [NumChannels][]int16
	byteCount int
	spanTotal int64
	spanCount int64
	closed    bool
}

/*------------------------------------------------------------------
 *
 * Name:        NewWavSink
 *
 * Inputs:      ws		- Where the file goes.  Must be seekable so
 *				  the header can be fixed up at the end.
 *
 *		channels	- Decoder channels to include.  One for mono,
 *				  two for stereo.
 *
 *		rate		- WAV sample rate.  0 to work it out on Close
 *				  from the capture sample rate.
 *
 *		samplerate	- Capture sample rate, if known.  May be nil.
 *
 *----------------------------------------------------------------*/

func NewWavSink(ws io.WriteSeeker, channels []int, rate int, samplerate func() (uint64, bool)) (*WavSink, error) {
	if len(channels) < 1 || len(channels) > NumChannels {
		return nil, fmt.Errorf("%w: WAV output needs 1 or 2 channels, not %d", ErrInvalidConfiguration, len(channels))
	}

	for _, c := range channels {
		if c < 0 || c >= NumChannels {
			return nil, fmt.Errorf("%w: no channel %d", ErrInvalidConfiguration, c)
		}
	}

	if len(channels) == 2 && channels[0] == channels[1] {
		return nil, fmt.Errorf("%w: channel %d given twice", ErrInvalidConfiguration, channels[0])
	}

	if rate < 0 {
		return nil, fmt.Errorf("%w: WAV rate %d", ErrInvalidConfiguration, rate)
	}

	var s = &WavSink{ //nolint:exhaustruct
		ws:         ws,
		channels:   append([]int(nil), channels...),
		rate:       rate,
		samplerate: samplerate,
	}

	s.header = wav_header{ //nolint:exhaustruct
		riff:           [4]byte{'R', 'I', 'F', 'F'},
		wave:           [4]byte{'W', 'A', 'V', 'E'},
		fmt:            [4]byte{'f', 'm', 't', ' '},
		fmtsize:        16, // Always 16.
		wformattag:     1,  // 1 for PCM.
		nchannels:      int16(len(channels)),
		wbitspersample: 16,
		data:           [4]byte{'d', 'a', 't', 'a'},
	}
	s.header.nblockalign = s.header.wbitspersample / 8 * s.header.nchannels

	/*
	 * Number of bytes written will be filled in later.
	 */
	if err := s.header.write(ws); err != nil {
		return nil, fmt.Errorf("couldn't write WAV header: %w", err)
	}

	s.out = bufio.NewWriter(ws)

	return s, nil
}

func toPCM16(v float32) int16 {
	var x = math.Round(float64(v) * 32767)

	return int16(max(-32767, min(32767, x)))
}

func (s *WavSink) Put(rec Record) error {
	if s.closed || rec.Output != OutputBinary {
		return nil
	}

	var c, isAmplitude = SlotChannel(rec.Slot)
	if !isAmplitude || c >= NumChannels {
		return nil
	}

	var v, err = UnpackAmplitude(rec.Data)
	if err != nil {
		return err
	}

	var wanted = false
	for _, ch := range s.channels {
		if ch == c {
			wanted = true
		}
	}

	if !wanted {
		return nil
	}

	s.pending[c] = append(s.pending[c], toPCM16(v))
	s.spanTotal += rec.End - rec.Start
	s.spanCount++

	return s.writeFrames()
}

// Write out every frame which has a value for each channel.
func (s *WavSink) writeFrames() error {
	for {
		for _, c := range s.channels {
			if len(s.pending[c]) == 0 {
				return nil
			}
		}

		for _, c := range s.channels {
			var b = binary.LittleEndian.AppendUint16(nil, uint16(s.pending[c][0]))
			s.pending[c] = s.pending[c][1:]

			if _, err := s.out.Write(b); err != nil {
				return err
			}

			s.byteCount += len(b)
		}
	}
}

// Rate is the WAV sample rate that Close will write.
func (s *WavSink) Rate() int {
	if s.rate > 0 {
		return s.rate
	}

	if s.samplerate != nil && s.spanCount > 0 && s.spanTotal > 0 {
		if sr, ok := s.samplerate(); ok && sr > 0 {
			var meanSpan = float64(s.spanTotal) / float64(s.spanCount)
			return int(math.Round(float64(sr) / meanSpan))
		}
	}

	return DEFAULT_WAV_RATE
}

// Frames is the number of complete frames written so far.
func (s *WavSink) Frames() int {
	return s.byteCount / int(s.header.nblockalign)
}

/*------------------------------------------------------------------
 *
 * Name:        Close
 *
 * Purpose:     Finish the file.
 *
 * Description:	Values left over for one channel of a stereo pair are
 *		dropped.  Then go back to the beginning and fill in the
 *		sizes and rate.
 *
 *----------------------------------------------------------------*/

func (s *WavSink) Close() error {
	if s.closed {
		return nil
	}

	s.closed = true

	if err := s.out.Flush(); err != nil {
		return err
	}

	var rate = s.Rate()

	s.header.nsamplespersec = int32(rate)
	s.header.navgbytespersec = int32(s.header.nblockalign) * s.header.nsamplespersec
	s.header.filesize = int32(s.byteCount + wavHeaderSize - 8)
	s.header.datasize = int32(s.byteCount)

	if _, err := s.ws.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("couldn't seek in WAV file: %w", err)
	}

	if err := s.header.write(s.ws); err != nil {
		return fmt.Errorf("couldn't write WAV header: %w", err)
	}

	var _, err = s.ws.Seek(0, io.SeekEnd)

	return err
}
