package main

import (
	"bytes"
	"testing"

	pdm "github.com/doismellburning/pdmdecode/src"
	"github.com/stretchr/testify/assert"
)

func Test_List(t *testing.T) {
	var out bytes.Buffer

	assert.Equal(t, 0, pdm.PdmDecode([]string{"--list"}, &out))
	assert.Contains(t, out.String(), "- right_value: R Amplitude")
}

func Test_Decode(t *testing.T) {
	var path = pdm.WriteTestCapture(t, "sine.sr", pdm.GenConfig{
		SampleRate:     2_048_000,
		HalfPeriod:     1,
		Bits:           64*10 + 1,
		ModulatorOrder: 2,
		Tones:          [pdm.NumChannels]pdm.Tone{{Freq: 440, Amplitude: 0.5}, {Freq: 1000, Amplitude: 0.5}},
	})

	var out bytes.Buffer

	assert.Equal(t, 0, pdm.PdmDecode([]string{"-q", "-D", "64", "-a", "left_value,right_value", path}, &out))
	assert.Equal(t, 20, bytes.Count(out.Bytes(), []byte("\n")))
}
