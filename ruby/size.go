package ruby

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sarchlab/rubysim/mem"
)

// Size is a number of bytes. In configuration files and on the command line
// it can be written as a plain number or with a unit, as in "512MB".
type Size uint64

// ParseSize parses strings such as "4096", "64kB", "512MB", or "2GB". Units
// are case-insensitive and binary.
func ParseSize(s string) (Size, error) {
	str := strings.ToUpper(strings.TrimSpace(s))

	units := []struct {
		suffix string
		unit   uint64
	}{
		{"GB", mem.GB},
		{"MB", mem.MB},
		{"KB", mem.KB},
		{"B", 1},
	}

	unit := uint64(1)
	for _, u := range units {
		if strings.HasSuffix(str, u.suffix) {
			unit = u.unit
			str = strings.TrimSpace(strings.TrimSuffix(str, u.suffix))

			break
		}
	}

	value, err := strconv.ParseUint(str, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}

	return Size(value * unit), nil
}

func (s Size) String() string {
	switch {
	case s != 0 && uint64(s)%mem.GB == 0:
		return fmt.Sprintf("%dGB", uint64(s)/mem.GB)
	case s != 0 && uint64(s)%mem.MB == 0:
		return fmt.Sprintf("%dMB", uint64(s)/mem.MB)
	case s != 0 && uint64(s)%mem.KB == 0:
		return fmt.Sprintf("%dkB", uint64(s)/mem.KB)
	default:
		return fmt.Sprintf("%dB", uint64(s))
	}
}

// UnmarshalYAML accepts both numbers and strings with units.
func (s *Size) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: size must be a scalar", value.Line)
	}

	parsed, err := ParseSize(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}

	*s = parsed

	return nil
}

// MarshalYAML writes the size with a unit.
func (s Size) MarshalYAML() (any, error) {
	return s.String(), nil
}

// AddrRange is a range of physical addresses.
type AddrRange struct {
	Start Size `yaml:"start"`
	Size  Size `yaml:"size"`
}

// End returns the first address after the range.
func (r AddrRange) End() uint64 {
	return uint64(r.Start) + uint64(r.Size)
}

// Contains tells if the address falls in the range.
func (r AddrRange) Contains(addr uint64) bool {
	return addr >= uint64(r.Start) && addr < r.End()
}
