package fsm

import "fmt"

const (
	// Channels21 is the channel count per array with six wavelength groups and the LED-off group
	Channels21 = 21

	// Channels28 is the channel count per array with seven wavelength groups, the LED-off
	// group and four auxiliary positions
	Channels28 = 28

	// PhotodiodesPerGroup is the number of photodiodes sharing one LED wavelength
	PhotodiodesPerGroup = 3

	// LEDOff is the label of the baseline group captured with illumination off
	LEDOff = "LED OFF"

	HostTimeColumn   = "System Time (s)"
	DeviceTimeColumn = "Sample Time (s)"
)

var wavelengthGroups = map[int]int{
	Channels21: 6,
	Channels28: 7,
}

var defaultWavelengths = map[int][]string{
	Channels21: {"784 nm", "800 nm", "818 nm", "835 nm", "851 nm", "881 nm"},
	Channels28: {"784 nm", "800 nm", "818 nm", "835 nm", "851 nm", "881 nm", "W7"},
}

// Array identifies one of the two photodetector arrays reported per frame.
type Array int

const (
	ArrayA Array = iota
	ArrayB
)

func (a Array) String() string {
	if a == ArrayB {
		return "B"
	}
	return "A"
}

// Layout maps array positions to (wavelength group, photodiode) pairs. Positions are
// wavelength-major and photodiode-minor, the LED-off group follows the wavelength
// groups. Positions after the LED-off group, if any, are auxiliary channels.
type Layout struct {
	channels    int
	wavelengths []string
}

// ValidChannels reports whether k is a supported channel count.
func ValidChannels(k int) bool {
	return k == Channels21 || k == Channels28
}

// NewLayout creates a layout for k channels. Wavelength labels are optional, when
// omitted the defaults for k are used.
func NewLayout(k int, wavelengths ...string) (*Layout, error) {
	if !ValidChannels(k) {
		return nil, fmt.Errorf("fsm.Layout: unsupported channel count %d, must be %d or %d", k, Channels21, Channels28)
	}

	groups := wavelengthGroups[k]
	if len(wavelengths) == 0 {
		wavelengths = defaultWavelengths[k]
	}
	if len(wavelengths) != groups {
		return nil, fmt.Errorf("fsm.Layout: %d channels need %d wavelength labels, %d given", k, groups, len(wavelengths))
	}

	return &Layout{
		channels:    k,
		wavelengths: append([]string(nil), wavelengths...),
	}, nil
}

// Channels returns K, the number of values per array.
func (l *Layout) Channels() int {
	return l.channels
}

// Groups returns the display labels of all groups, wavelengths first, LED-off last.
func (l *Layout) Groups() []string {
	groups := make([]string, 0, len(l.wavelengths)+1)
	groups = append(groups, l.wavelengths...)
	return append(groups, LEDOff)
}

// NumGroups returns the number of groups including the LED-off group.
func (l *Layout) NumGroups() int {
	return len(l.wavelengths) + 1
}

// Aux returns the number of auxiliary positions after the LED-off group.
func (l *Layout) Aux() int {
	return l.channels - l.NumGroups()*PhotodiodesPerGroup
}

// Index returns the array position of photodiode pd (0-based) within group.
func (l *Layout) Index(group, pd int) int {
	return group*PhotodiodesPerGroup + pd
}

// ColumnNames returns the export header: host time, device time, then one column per
// (array, group, photodiode) in array order.
func (l *Layout) ColumnNames() []string {
	names := make([]string, 0, 2+2*l.channels)
	names = append(names, HostTimeColumn, DeviceTimeColumn)

	for _, array := range []Array{ArrayA, ArrayB} {
		for i := 0; i < l.channels; i++ {
			names = append(names, l.ColumnName(array, i))
		}
	}

	return names
}

// ColumnName returns the export column name of position i in array.
// For example "Array A W1 PD1", "Array B LED OFF PD3" or "Array A AUX2".
func (l *Layout) ColumnName(array Array, i int) string {
	if aux := i - l.NumGroups()*PhotodiodesPerGroup; aux >= 0 {
		return fmt.Sprintf("Array %s AUX%d", array, aux+1)
	}

	group := i / PhotodiodesPerGroup
	pd := i%PhotodiodesPerGroup + 1

	if group == len(l.wavelengths) {
		return fmt.Sprintf("Array %s %s PD%d", array, LEDOff, pd)
	}
	return fmt.Sprintf("Array %s W%d PD%d", array, group+1, pd)
}
