package pdm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

type OutputKind int

const (
	OutputAnn OutputKind = iota
	OutputBinary
)

func (k OutputKind) String() string {
	switch k {
	case OutputAnn:
		return "annotation"
	case OutputBinary:
		return "binary"
	default:
		return fmt.Sprintf("OutputKind(%d)", int(k))
	}
}

// Record is one output item covering samples [Start, End).
// Text is set for OutputAnn, Data for OutputBinary.
type Record struct {
	Start  int64
	End    int64
	Output OutputKind
	Slot   int
	Text   string
	Data   []byte
}

type Sink interface {
	Put(rec Record) error
}

// SinkFunc lets a plain function be used as a Sink.
type SinkFunc func(rec Record) error

func (f SinkFunc) Put(rec Record) error {
	return f(rec)
}

// RecordBuffer keeps everything in memory.
type RecordBuffer struct {
	Records []Record
}

func (b *RecordBuffer) Put(rec Record) error {
	b.Records = append(b.Records, rec)
	return nil
}

// Filter returns the records of one output kind and slot, in arrival order.
func (b *RecordBuffer) Filter(output OutputKind, slot int) []Record {
	var out []Record

	for _, rec := range b.Records {
		if rec.Output == output && rec.Slot == slot {
			out = append(out, rec)
		}
	}

	return out
}

// MultiSink hands every record to each sink, stopping at the first error.
type MultiSink []Sink

func (m MultiSink) Put(rec Record) error {
	for _, s := range m {
		if err := s.Put(rec); err != nil {
			return err
		}
	}

	return nil
}

/*
 * Payload formats.
 *
 *	Bit:		1 byte, signed, +1 for a 1 bit, -1 for a 0 bit.
 *	Amplitude:	4 bytes, little endian IEEE-754 single precision.
 */

func PackBit(bit bool) []byte {
	return []byte{byte(int8(IfThenElse(bit, 1, -1)))}
}

func UnpackBit(data []byte) (bool, error) {
	if len(data) != 1 {
		return false, fmt.Errorf("bit payload is %d bytes, expected 1", len(data))
	}

	switch int8(data[0]) {
	case 1:
		return true, nil
	case -1:
		return false, nil
	default:
		return false, fmt.Errorf("bit payload %d is neither +1 nor -1", int8(data[0]))
	}
}

func PackAmplitude(v float32) []byte {
	return binary.LittleEndian.AppendUint32(make([]byte, 0, 4), math.Float32bits(v))
}

var errAmplitudeSize = errors.New("amplitude payload must be 4 bytes")

func UnpackAmplitude(data []byte) (float32, error) {
	if len(data) != 4 {
		return 0, errAmplitudeSize
	}

	return math.Float32frombits(binary.LittleEndian.Uint32(data)), nil
}

func FormatBit(bit bool) string {
	return IfThenElse(bit, "1", "0")
}

func FormatAmplitude(v float32) string {
	return fmt.Sprintf("%0.3f", v)
}
