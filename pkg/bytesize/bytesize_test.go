package bytesize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected Size
		wantErr  bool
	}{
		{"bytes numeric only", "1024", 1024, false},
		{"bytes with B", "1024B", 1024, false},
		{"bytes with word", "100 bytes", 100, false},

		{"kilobytes K", "5K", 5 * KB, false},
		{"kilobytes KB", "5KB", 5 * KB, false},
		{"kilobytes KiB", "5KiB", 5 * KB, false},
		{"kilobytes lowercase", "5kb", 5 * KB, false},

		{"megabytes MB", "10MB", 10 * MB, false},
		{"megabytes with space", "10 MB", 10 * MB, false},

		{"gigabytes GB", "2GB", 2 * GB, false},
		{"cache size default", "50GB", 50 * GB, false},
		{"terabytes TB", "1TB", 1 * TB, false},

		{"float megabytes", "1.5MB", Size(1.5 * float64(MB)), false},
		{"float gigabytes", "2.5GB", Size(2.5 * float64(GB)), false},

		{"mixed case Mb", "5Mb", 5 * MB, false},
		{"surrounding whitespace", "  5MB  ", 5 * MB, false},

		{"zero", "0", 0, false},
		{"zero with unit", "0MB", 0, false},

		{"invalid format", "invalid", 0, true},
		{"empty", "", 0, true},
		{"unknown unit", "5XB", 0, true},
		{"negative rejected", "-5MB", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			size, err := Parse(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, size, "Parse(%q)", tt.input)
		})
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		name     string
		size     Size
		expected string
	}{
		{"zero", 0, "0B"},
		{"bytes", 500, "500B"},
		{"one kilobyte", KB, "1KB"},
		{"megabytes", 10 * MB, "10MB"},
		{"gigabytes", 2 * GB, "2GB"},
		{"one terabyte", TB, "1TB"},
		{"fractional MB", Size(1.5 * float64(MB)), "1.5MB"},
		{"fractional GB", Size(2.25 * float64(GB)), "2.25GB"},
		{"just under a unit boundary", 1023, "1023B"},
		{"negative", -5 * MB, "-5MB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Format(tt.size))
		})
	}
}

func TestSize_Accessors(t *testing.T) {
	size := 5 * MB
	assert.Equal(t, "5MB", size.String())
	assert.Equal(t, int64(5242880), size.Bytes())
	assert.Equal(t, int64(5242880), size.Int64())
}

func TestParseEquivalence(t *testing.T) {
	equivalents := [][]string{
		{"1KB", "1 KB", "1kb", "1kib", "1024", "1024B"},
		{"1MB", "1 MB", "1mb", "1mib", "1M"},
		{"1GB", "1 GB", "1gb", "1gib", "1G"},
	}

	for _, group := range equivalents {
		var expected Size
		for i, s := range group {
			size, err := Parse(s)
			require.NoError(t, err, "parsing %q", s)
			if i == 0 {
				expected = size
			} else {
				assert.Equal(t, expected, size, "%q should equal %q", s, group[0])
			}
		}
	}
}

func TestRoundTrip(t *testing.T) {
	for _, s := range []Size{0, B, KB, MB, GB, TB, 5 * MB, 10 * GB} {
		parsed, err := Parse(Format(s))
		require.NoError(t, err, "Parse(Format(%v))", s)
		assert.Equal(t, s, parsed)
	}
}
