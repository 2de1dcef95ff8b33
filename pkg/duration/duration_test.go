package duration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected time.Duration
		wantErr  bool
	}{
		{"hours", "720h", 720 * time.Hour, false},
		{"minutes", "30m", 30 * time.Minute, false},
		{"combined standard", "1h30m", 90 * time.Minute, false},
		{"days", "30d", 30 * 24 * time.Hour, false},
		{"single day", "1d", 24 * time.Hour, false},
		{"days and hours", "1d12h", 36 * time.Hour, false},
		{"weeks", "2w", 14 * 24 * time.Hour, false},
		{"week day hour", "1w2d12h", (7+2)*24*time.Hour + 12*time.Hour, false},
		{"negative", "-1d", -24 * time.Hour, false},
		{"empty", "", 0, true},
		{"garbage", "not-a-duration", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		name     string
		d        time.Duration
		contains []string
	}{
		{"weeks", 14 * 24 * time.Hour, []string{"2w"}},
		{"days", 3 * 24 * time.Hour, []string{"3d"}},
		{"weeks and days", 9 * 24 * time.Hour, []string{"1w", "2d"}},
		{"hours only", 12 * time.Hour, []string{"12h"}},
		{"zero", 0, []string{"0s"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Format(tt.d)
			for _, substr := range tt.contains {
				assert.Contains(t, s, substr)
			}
		})
	}
}

func TestMustParse_Panics(t *testing.T) {
	assert.Panics(t, func() { MustParse("not-a-duration") })
}
