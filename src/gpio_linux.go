//go:build linux

package pdm

/*------------------------------------------------------------------
 *
 * Purpose:	Live capture from GPIO pins using the Linux GPIO
 *		character device.
 *
 * Description:	The clock pin is requested with edge detection on both
 *		edges.  For each edge the data pin is read right away.
 *		Sample numbers are the kernel event time stamps in
 *		nanoseconds, counted from the first edge, so the sample
 *		rate is 1 GHz.
 *
 *		This is only good for slow clocks.  A real PDM microphone
 *		at a few MHz is far beyond what the kernel can report
 *		edge by edge; use a logic analyzer capture for those.
 *
 *------------------------------------------------------------------*/

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/warthog618/go-gpiocdev"
	"golang.org/x/sys/unix"
)

const GPIO_SAMPLE_RATE = 1_000_000_000

const gpioEventBuffer = 4096

const gpioNice = -10

type GPIOSource struct {
	clk *gpiocdev.Line
	dat *gpiocdev.Line

	events   chan Edge
	overruns atomic.Int64

	mu      sync.Mutex
	started bool
	origin  int64
	closed  bool
}

/*------------------------------------------------------------------
 *
 * Name:        OpenGPIO
 *
 * Inputs:	chip		- e.g. "gpiochip0".
 *
 *		clk, dat	- Line offsets on that chip.
 *
 *------------------------------------------------------------------*/

func OpenGPIO(chip string, clk int, dat int) (*GPIOSource, error) {
	if clk == dat {
		return nil, fmt.Errorf("%w: clock and data can't both be line %d", ErrInvalidConfiguration, clk)
	}

	var g = &GPIOSource{ //nolint:exhaustruct
		events: make(chan Edge, gpioEventBuffer),
	}

	var datLine, datErr = gpiocdev.RequestLine(chip, dat, gpiocdev.AsInput, gpiocdev.WithConsumer("pdm-dat"))
	if datErr != nil {
		return nil, fmt.Errorf("requesting data line %s:%d: %w", chip, dat, datErr)
	}

	g.dat = datLine

	var clkLine, clkErr = gpiocdev.RequestLine(chip, clk,
		gpiocdev.AsInput,
		gpiocdev.WithConsumer("pdm-clk"),
		gpiocdev.WithBothEdges,
		gpiocdev.WithEventHandler(g.handler))
	if clkErr != nil {
		datLine.Close()
		return nil, fmt.Errorf("requesting clock line %s:%d: %w", chip, clk, clkErr)
	}

	g.clk = clkLine

	raisePriority()

	return g, nil
}

// The event handler has to keep up with the clock, so ask for more CPU.
// Needs CAP_SYS_NICE.  Carry on at normal priority without it.
func raisePriority() {
	if err := unix.Setpriority(unix.PRIO_PROCESS, 0, gpioNice); err != nil {
		logger.Debug("Couldn't raise priority", "nice", gpioNice, "err", err)
	}
}

func (g *GPIOSource) handler(evt gpiocdev.LineEvent) {
	var v, err = g.dat.Value()
	if err != nil {
		logger.Warn("reading data line", "err", err)
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return
	}

	var ts = evt.Timestamp.Nanoseconds()
	if !g.started {
		g.started = true
		g.origin = ts
	}

	var e = Edge{
		Clock:     IfThenElse(evt.Type == gpiocdev.LineEventRisingEdge, 1, 0),
		Data:      v != 0,
		SampleNum: ts - g.origin,
	}

	select {
	case g.events <- e:
	default:
		g.overruns.Add(1)
	}
}

// Overruns counts edges dropped because the decoder fell behind.
func (g *GPIOSource) Overruns() int64 {
	return g.overruns.Load()
}

func (g *GPIOSource) SampleRate() uint64 {
	return GPIO_SAMPLE_RATE
}

func (g *GPIOSource) NextEdge(ctx context.Context) (Edge, error) {
	select {
	case <-ctx.Done():
		return Edge{}, ctx.Err()
	case e, ok := <-g.events:
		if !ok {
			return Edge{}, io.EOF
		}

		return e, nil
	}
}

// Close releases both lines.  A pending NextEdge sees io.EOF.
func (g *GPIOSource) Close() error {
	var clkErr = g.clk.Close()
	var datErr = g.dat.Close()

	g.mu.Lock()
	if !g.closed {
		g.closed = true
		close(g.events)
	}
	g.mu.Unlock()

	if clkErr != nil {
		return clkErr
	}

	return datErr
}
