package pdm

/*------------------------------------------------------------------
 *
 * Purpose:	Read and write sigrok session files.
 *
 * Description:	A session file is a zip archive containing:
 *
 *			version		- "2"
 *			metadata	- INI style text, see below.
 *			logic-1-1	- Raw samples, split over as many
 *			logic-1-2	  numbered chunks as needed.
 *			...
 *
 *		The metadata we care about:
 *
 *			[device 1]
 *			capturefile=logic-1
 *			total probes=2
 *			samplerate=3.072 MHz
 *			probe1=clk
 *			probe2=dat
 *			unitsize=1
 *
 *		Version 1 files have the whole capture in "logic-1".
 *
 *------------------------------------------------------------------*/

import (
	"archive/zip"
	"bufio"
	"cmp"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
)

const sessionChunkSize = 4 * 1024 * 1024

type SessionInfo struct {
	SampleRate  uint64
	UnitSize    int
	Probes      []string // Probe names, index 0 is bit 0.
	CaptureFile string
}

type Session struct {
	SessionInfo

	zr     *zip.ReadCloser
	chunks []*zip.File
	open   []io.Closer
}

var errNoMetadata = errors.New("session file has no metadata")

/*------------------------------------------------------------------
 *
 * Name:        ParseSampleRate
 *
 * Purpose:     Understand the way sigrok writes sample rates.
 *
 * Inputs:	s	- "3.072 MHz", "500 kHz", "8000 Hz", "1 GHz" or a number.
 *
 *------------------------------------------------------------------*/

func ParseSampleRate(s string) (uint64, error) {
	s = strings.TrimSpace(s)

	var multiplier = 1.0
	var lower = strings.ToLower(s)

	for _, unit := range []struct {
		suffix string
		mult   float64
	}{
		{"ghz", 1e9},
		{"mhz", 1e6},
		{"khz", 1e3},
		{"hz", 1},
	} {
		if strings.HasSuffix(lower, unit.suffix) {
			multiplier = unit.mult
			s = strings.TrimSpace(s[:len(s)-len(unit.suffix)])

			break
		}
	}

	var f, err = strconv.ParseFloat(s, 64)
	if err != nil || f <= 0 {
		return 0, fmt.Errorf("can't understand sample rate %q", s)
	}

	return uint64(f*multiplier + 0.5), nil
}

// FormatSampleRate is the reverse of ParseSampleRate, as sigrok would write it.
func FormatSampleRate(rate uint64) string {
	switch {
	case rate >= 1e9 && rate%1e6 == 0:
		return strconv.FormatFloat(float64(rate)/1e9, 'f', -1, 64) + " GHz"
	case rate >= 1e6 && rate%1e3 == 0:
		return strconv.FormatFloat(float64(rate)/1e6, 'f', -1, 64) + " MHz"
	case rate >= 1e3:
		return strconv.FormatFloat(float64(rate)/1e3, 'f', -1, 64) + " kHz"
	default:
		return strconv.FormatUint(rate, 10) + " Hz"
	}
}

func parseMetadata(r io.Reader) (SessionInfo, error) {
	var info = SessionInfo{UnitSize: 1} //nolint:exhaustruct

	var section string
	var probes = map[int]string{}
	var totalProbes int

	var scanner = bufio.NewScanner(r)
	for scanner.Scan() {
		var line = strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ";") || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			section = line[1 : len(line)-1]
			continue
		}

		if section != "device 1" {
			continue
		}

		var key, value, found = strings.Cut(line, "=")
		if !found {
			continue
		}

		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch {
		case key == "capturefile":
			info.CaptureFile = value
		case key == "samplerate":
			var rate, err = ParseSampleRate(value)
			if err != nil {
				return info, err
			}
			info.SampleRate = rate
		case key == "unitsize":
			var n, err = strconv.Atoi(value)
			if err != nil {
				return info, fmt.Errorf("bad unitsize %q", value)
			}
			info.UnitSize = n
		case key == "total probes":
			var n, err = strconv.Atoi(value)
			if err != nil || n < 0 {
				return info, fmt.Errorf("bad total probes %q", value)
			}
			totalProbes = n
		case strings.HasPrefix(key, "probe"):
			var n, err = strconv.Atoi(strings.TrimPrefix(key, "probe"))
			if err == nil && n >= 1 {
				probes[n] = value
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return info, err
	}

	for n := range probes {
		totalProbes = max(totalProbes, n)
	}

	info.Probes = make([]string, totalProbes)
	for n, name := range probes {
		info.Probes[n-1] = name
	}

	return info, nil
}

func chunkNumber(name, prefix string) (int, bool) {
	if name == prefix {
		return 0, true
	}

	var rest, found = strings.CutPrefix(name, prefix+"-")
	if !found {
		return 0, false
	}

	var n, err = strconv.Atoi(rest)

	return n, err == nil
}

/*------------------------------------------------------------------
 *
 * Name:        OpenSession
 *
 * Purpose:     Open a sigrok session file for reading.
 *
 * Returns:     Session with the metadata filled in.  Close when done.
 *
 *------------------------------------------------------------------*/

func OpenSession(path string) (*Session, error) {
	var zr, err = zip.OpenReader(path)
	if err != nil {
		return nil, err
	}

	var s = &Session{zr: zr} //nolint:exhaustruct

	var metadata *zip.File
	for _, f := range zr.File {
		if f.Name == "metadata" {
			metadata = f
		}
	}

	if metadata == nil {
		zr.Close()
		return nil, fmt.Errorf("%s: %w", path, errNoMetadata)
	}

	var mr, openErr = metadata.Open()
	if openErr != nil {
		zr.Close()
		return nil, openErr
	}

	s.SessionInfo, err = parseMetadata(mr)
	mr.Close()

	if err != nil {
		zr.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if s.CaptureFile == "" {
		s.CaptureFile = "logic-1"
	}

	for _, f := range zr.File {
		if _, ok := chunkNumber(f.Name, s.CaptureFile); ok {
			s.chunks = append(s.chunks, f)
		}
	}

	slices.SortFunc(s.chunks, func(a, b *zip.File) int {
		var na, _ = chunkNumber(a.Name, s.CaptureFile)
		var nb, _ = chunkNumber(b.Name, s.CaptureFile)

		return cmp.Compare(na, nb)
	})

	if len(s.chunks) == 0 {
		zr.Close()
		return nil, fmt.Errorf("%s: no %s data in session file", path, s.CaptureFile)
	}

	return s, nil
}

// ProbeIndex finds a probe by name, or accepts a 0 based probe number.
func (s *Session) ProbeIndex(probe string) (int, error) {
	for i, name := range s.Probes {
		if strings.EqualFold(name, probe) {
			return i, nil
		}
	}

	var n, err = strconv.Atoi(probe)
	if err == nil && n >= 0 && n < s.UnitSize*8 {
		return n, nil
	}

	return 0, fmt.Errorf("%w: no probe %q in session (have %s)", ErrInvalidConfiguration, probe, strings.Join(s.Probes, ", "))
}

// Samples returns a reader over all of the raw sample chunks in order.
func (s *Session) Samples() (io.Reader, error) {
	var readers []io.Reader

	for _, f := range s.chunks {
		var rc, err = f.Open()
		if err != nil {
			return nil, err
		}

		s.open = append(s.open, rc)
		readers = append(readers, rc)
	}

	return io.MultiReader(readers...), nil
}

// EdgeSource sets up a LogicReader for the named clock and data probes.
func (s *Session) EdgeSource(clk, dat string) (*LogicReader, error) {
	var clkIndex, clkErr = s.ProbeIndex(clk)
	if clkErr != nil {
		return nil, clkErr
	}

	var datIndex, datErr = s.ProbeIndex(dat)
	if datErr != nil {
		return nil, datErr
	}

	var r, err = s.Samples()
	if err != nil {
		return nil, err
	}

	return NewLogicReader(r, s.UnitSize, clkIndex, datIndex)
}

func (s *Session) Close() error {
	for _, c := range s.open {
		c.Close()
	}

	s.open = nil

	return s.zr.Close()
}

/*------------------------------------------------------------------
 *
 * Name:        WriteSession
 *
 * Purpose:     Write raw samples as a sigrok session file.
 *
 * Inputs:	w	- Destination.
 *
 *		info	- Sample rate, unit size and probe names.
 *
 *		data	- Raw samples, len(data) a multiple of info.UnitSize.
 *
 *------------------------------------------------------------------*/

func WriteSession(w io.Writer, info SessionInfo, data []byte) error {
	if info.UnitSize < 1 || info.UnitSize > MaxUnitSize {
		return fmt.Errorf("%w: unitsize %d", ErrInvalidConfiguration, info.UnitSize)
	}

	if len(data)%info.UnitSize != 0 {
		return fmt.Errorf("%d bytes of samples is not a multiple of unitsize %d", len(data), info.UnitSize)
	}

	var zw = zip.NewWriter(w)

	var vw, err = zw.Create("version")
	if err != nil {
		return err
	}

	if _, err := io.WriteString(vw, "2"); err != nil {
		return err
	}

	mw, err := zw.Create("metadata")
	if err != nil {
		return err
	}

	var meta strings.Builder
	fmt.Fprintf(&meta, "[global]\nsigrok version=0.5.2\n\n[device 1]\n")
	fmt.Fprintf(&meta, "capturefile=logic-1\n")
	fmt.Fprintf(&meta, "total probes=%d\n", len(info.Probes))
	if info.SampleRate > 0 {
		fmt.Fprintf(&meta, "samplerate=%s\n", FormatSampleRate(info.SampleRate))
	}
	fmt.Fprintf(&meta, "total analog=0\n")
	for i, name := range info.Probes {
		fmt.Fprintf(&meta, "probe%d=%s\n", i+1, name)
	}
	fmt.Fprintf(&meta, "unitsize=%d\n", info.UnitSize)

	if _, err := io.WriteString(mw, meta.String()); err != nil {
		return err
	}

	// Chunks must hold whole samples.
	var chunkSize = sessionChunkSize - sessionChunkSize%info.UnitSize

	for n := 1; len(data) > 0 || n == 1; n++ {
		var chunk = data[:min(len(data), chunkSize)]
		data = data[len(chunk):]

		cw, err := zw.Create(fmt.Sprintf("logic-1-%d", n))
		if err != nil {
			return err
		}

		if _, err := cw.Write(chunk); err != nil {
			return err
		}
	}

	return zw.Close()
}
