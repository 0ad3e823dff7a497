package timing

import (
	"fmt"
	"strconv"
	"strings"
)

// FreqInHz is a clock frequency expressed in hertz.
type FreqInHz uint64

// Defines the unit of frequency
const (
	Hz  FreqInHz = 1
	KHz FreqInHz = 1e3
	MHz FreqInHz = 1e6
	GHz FreqInHz = 1e9
)

// VTimeInSec is a simulated time in seconds. It is only used for reporting;
// the engine itself counts cycles.
type VTimeInSec float64

// Seconds converts a cycle count into seconds at this frequency.
func (f FreqInHz) Seconds(cycles VTimeInCycle) VTimeInSec {
	if f == 0 {
		panic("timing: frequency cannot be 0")
	}

	return VTimeInSec(float64(cycles) / float64(f))
}

func (f FreqInHz) String() string {
	switch {
	case f >= GHz && f%GHz == 0:
		return fmt.Sprintf("%dGHz", f/GHz)
	case f >= MHz && f%MHz == 0:
		return fmt.Sprintf("%dMHz", f/MHz)
	case f >= KHz && f%KHz == 0:
		return fmt.Sprintf("%dkHz", f/KHz)
	default:
		return fmt.Sprintf("%dHz", uint64(f))
	}
}

// ParseFreq parses strings such as "2GHz", "1.5GHz", "800MHz" or "1000".
// Units are case-insensitive; a bare number is taken as hertz.
func ParseFreq(s string) (FreqInHz, error) {
	str := strings.TrimSpace(strings.ToLower(s))

	units := []struct {
		suffix string
		unit   FreqInHz
	}{
		{"ghz", GHz},
		{"mhz", MHz},
		{"khz", KHz},
		{"hz", Hz},
	}

	unit := Hz
	for _, u := range units {
		if strings.HasSuffix(str, u.suffix) {
			unit = u.unit
			str = strings.TrimSpace(strings.TrimSuffix(str, u.suffix))

			break
		}
	}

	value, err := strconv.ParseFloat(str, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid frequency %q: %w", s, err)
	}

	if value <= 0 {
		return 0, fmt.Errorf("invalid frequency %q: must be positive", s)
	}

	freq := FreqInHz(value * float64(unit))
	if freq == 0 {
		return 0, fmt.Errorf("invalid frequency %q: below 1Hz", s)
	}

	return freq, nil
}
