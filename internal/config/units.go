package config

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/olbboy/streviz-engine/pkg/bytesize"
	"github.com/olbboy/streviz-engine/pkg/duration"
)

// ByteSize and Duration are the config-facing forms of the cache knobs:
// they unmarshal the human-readable values operators actually write
// ("50GB", "30d") while the rest of the engine consumes plain int64/
// time.Duration through Int64()/Duration(). Both implement
// encoding.TextUnmarshaler, which Load's decode hook feeds, plus
// json.Unmarshaler for JSON config files where a raw number is also
// accepted for compatibility with the pre-human-readable schema.

// ByteSize is a byte count configurable as "500KB", "50GB", or a bare
// number of bytes.
type ByteSize int64

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *ByteSize) UnmarshalText(text []byte) error {
	parsed, err := bytesize.Parse(string(text))
	if err != nil {
		return err
	}
	*b = ByteSize(parsed)
	return nil
}

// UnmarshalJSON accepts either a quoted size string or a raw byte count.
func (b *ByteSize) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var raw int64
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("config: byte size must be a string or number: %s", data)
		}
		*b = ByteSize(raw)
		return nil
	}
	return b.UnmarshalText([]byte(s))
}

// MarshalText implements encoding.TextMarshaler.
func (b ByteSize) MarshalText() ([]byte, error) { return []byte(b.String()), nil }

// MarshalJSON implements json.Marshaler.
func (b ByteSize) MarshalJSON() ([]byte, error) { return json.Marshal(b.String()) }

// Int64 returns the size as a plain byte count.
func (b ByteSize) Int64() int64 { return int64(b) }

func (b ByteSize) String() string { return bytesize.Format(bytesize.Size(b)) }

// Duration is a time.Duration configurable with day/week units on top of
// Go's native format: "30d", "2w", "1w2d12h", "720h".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := duration.Parse(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// UnmarshalJSON accepts either a quoted duration string or raw nanoseconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var ns int64
		if err := json.Unmarshal(data, &ns); err != nil {
			return fmt.Errorf("config: duration must be a string or number: %s", data)
		}
		*d = Duration(ns)
		return nil
	}
	return d.UnmarshalText([]byte(s))
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) { return json.Marshal(d.String()) }

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration { return time.Duration(d) }

// String renders with week/day units where they divide evenly, falling
// back to Go's native formatting for the remainder.
func (d Duration) String() string {
	return duration.Format(time.Duration(d))
}
