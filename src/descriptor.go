package pdm

// Static description of the decoder, for hosts that build menus and
// validate options.  Nothing in the decoding logic reads these.

import (
	"strconv"
)

const NumChannels = 2

// Annotation and binary slots.  Bit is 2*channel, amplitude 2*channel + 1.
const (
	SlotLeftBit = iota
	SlotLeftValue
	SlotRightBit
	SlotRightValue
)

func BitSlot(channel int) int {
	return 2 * channel
}

func AmplitudeSlot(channel int) int {
	return 2*channel + 1
}

// SlotChannel maps a slot back to its channel and whether it carries amplitudes.
func SlotChannel(slot int) (channel int, amplitude bool) {
	return slot / 2, slot%2 == 1
}

type ChannelInfo struct {
	ID   string
	Name string
	Desc string
}

type OptionInfo struct {
	ID      string
	Desc    string
	Default string
	Values  []string
}

type ClassInfo struct {
	ID    string
	Label string
}

type RowInfo struct {
	ID      string
	Label   string
	Classes []int
}

type Descriptor struct {
	APIVersion  int
	ID          string
	Name        string
	LongName    string
	Desc        string
	License     string
	Inputs      []string
	Outputs     []string
	Channels    []ChannelInfo
	Options     []OptionInfo
	Annotations []ClassInfo
	Rows        []RowInfo
	Binary      []ClassInfo
}

var classes = []ClassInfo{
	{"left_bit", "L Bit"},
	{"left_value", "L Amplitude"},
	{"right_bit", "R Bit"},
	{"right_value", "R Amplitude"},
}

func orderValues() []string {
	var values = []string{OrderDefaultName}
	for n := MinOrder; n <= MaxOrder; n++ {
		values = append(values, strconv.Itoa(n))
	}

	return values
}

func decimateValues() []string {
	var values []string
	for n := MinDecimate; n <= MaxDecimate; n++ {
		values = append(values, strconv.Itoa(n))
	}

	return values
}

func NewDescriptor() *Descriptor {
	var d = &Descriptor{
		APIVersion: 3,
		ID:         "pdm",
		Name:       "PDM",
		LongName:   "Pulse-density modulation",
		Desc:       "Demodulated Pulse-density modulation",
		License:    "gplv2+",
		Inputs:     []string{"logic"},
		Outputs:    []string{},
		Channels: []ChannelInfo{
			{ID: "clk", Name: "Clock", Desc: "Clock line"},
			{ID: "dat", Name: "Data", Desc: "Data line"},
		},
		Options: []OptionInfo{
			{ID: "order", Desc: "Filter Order", Default: OrderDefaultName, Values: orderValues()},
			{ID: "decimate", Desc: "Decimate", Default: strconv.Itoa(DefaultDecimate), Values: decimateValues()},
			{ID: "filter", Desc: "Filter", Default: FilterFIR.String(), Values: []string{FilterFIR.String(), FilterCIC.String()}},
		},
		Annotations: append([]ClassInfo(nil), classes...),
		Binary:      append([]ClassInfo(nil), classes...),
	}

	for i, c := range classes {
		d.Rows = append(d.Rows, RowInfo{ID: c.ID, Label: c.Label, Classes: []int{i}})
	}

	return d
}

// ClassBySlot returns the annotation class for a slot, or false if out of range.
func (d *Descriptor) ClassBySlot(slot int) (ClassInfo, bool) {
	if slot < 0 || slot >= len(d.Annotations) {
		return ClassInfo{}, false
	}

	return d.Annotations[slot], true
}

// SlotByID looks up a class by id ("left_value") or label ("L Amplitude").
func (d *Descriptor) SlotByID(id string) (int, bool) {
	for i, c := range d.Annotations {
		if c.ID == id || c.Label == id {
			return i, true
		}
	}

	return 0, false
}
