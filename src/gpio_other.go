//go:build !linux

package pdm

import (
	"context"
	"errors"
	"io"
)

const GPIO_SAMPLE_RATE = 1_000_000_000

var errNoGPIO = errors.New("GPIO capture is only available on Linux")

type GPIOSource struct{}

func OpenGPIO(_ string, _ int, _ int) (*GPIOSource, error) {
	return nil, errNoGPIO
}

func (g *GPIOSource) Overruns() int64 {
	return 0
}

func (g *GPIOSource) SampleRate() uint64 {
	return GPIO_SAMPLE_RATE
}

func (g *GPIOSource) NextEdge(_ context.Context) (Edge, error) {
	return Edge{}, io.EOF
}

func (g *GPIOSource) Close() error {
	return nil
}
