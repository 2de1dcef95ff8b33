// Package bytesize parses and formats human-readable byte sizes, so the
// normalize cache's size limit can be configured as "50GB" rather than a
// raw byte count. Units are binary (1024-based); "KB" and "KiB" are
// treated the same, matching how the rest of the config surface talks
// about disk budgets.
package bytesize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Size is a byte count.
type Size int64

const (
	B  Size = 1
	KB Size = 1024 * B
	MB Size = 1024 * KB
	GB Size = 1024 * MB
	TB Size = 1024 * GB
)

// units is ordered largest-first; Format picks the first unit that yields
// a value >= 1, and Parse accepts every listed name.
var units = []struct {
	symbol     string
	multiplier Size
	names      []string
}{
	{"TB", TB, []string{"t", "tb", "tib"}},
	{"GB", GB, []string{"g", "gb", "gib"}},
	{"MB", MB, []string{"m", "mb", "mib"}},
	{"KB", KB, []string{"k", "kb", "kib"}},
	{"B", B, []string{"b", "byte", "bytes"}},
}

var sizePattern = regexp.MustCompile(`(?i)^\s*([0-9]+(?:\.[0-9]+)?)\s*([a-z]*)\s*$`)

// Parse reads a size like "50GB", "1.5 GB", "500KB", or a bare byte count
// like "1024". A missing unit means bytes.
func Parse(s string) (Size, error) {
	m := sizePattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("bytesize: invalid size %q", s)
	}

	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("bytesize: invalid number %q: %w", m[1], err)
	}

	unit := strings.ToLower(m[2])
	if unit == "" {
		return Size(value), nil
	}
	for _, u := range units {
		for _, name := range u.names {
			if name == unit {
				return Size(value * float64(u.multiplier)), nil
			}
		}
	}
	return 0, fmt.Errorf("bytesize: unknown unit %q", m[2])
}

// Format renders a size with the largest unit that keeps the value >= 1,
// trimming trailing zeros: 5242880 -> "5MB", 1610612736 -> "1.5GB".
func Format(s Size) string {
	if s == 0 {
		return "0B"
	}
	prefix := ""
	if s < 0 {
		prefix, s = "-", -s
	}

	for _, u := range units {
		if s < u.multiplier {
			continue
		}
		value := float64(s) / float64(u.multiplier)
		if value == float64(int64(value)) {
			return fmt.Sprintf("%s%d%s", prefix, int64(value), u.symbol)
		}
		text := strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.2f", value), "0"), ".")
		return prefix + text + u.symbol
	}
	return fmt.Sprintf("%s%dB", prefix, s)
}

// Bytes returns the size as a plain int64 byte count.
func (s Size) Bytes() int64 { return int64(s) }

// Int64 is an alias for Bytes, matching the config layer's accessor name.
func (s Size) Int64() int64 { return int64(s) }

func (s Size) String() string { return Format(s) }
