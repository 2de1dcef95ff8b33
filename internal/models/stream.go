package models

import "time"

// Mode is the resource class a stream runs under.
type Mode string

const (
	ModeCopy  Mode = "copy"
	ModeCPU   Mode = "cpu"
	ModeNVENC Mode = "nvenc"
)

// Valid reports whether m is one of the three known resource classes.
func (m Mode) Valid() bool {
	switch m {
	case ModeCopy, ModeCPU, ModeNVENC:
		return true
	default:
		return false
	}
}

// Protocol is the output relay protocol a stream publishes over.
type Protocol string

const (
	ProtocolRTSP Protocol = "rtsp"
	ProtocolSRT  Protocol = "srt"
)

// StreamDescriptor is the scheduler's view of a registered stream: the
// handful of fields admission control and the priority queue need. It is
// held entirely in memory; the scheduler does not own the broader streams
// table a caller maintains (see Registry below).
type StreamDescriptor struct {
	ID          string
	Mode        Mode
	BitrateMbps int
	Priority    uint8
	Pinned      bool
}

// MediaFile is the subset of a scanned source file's metadata the merge
// pipeline needs to decide compatibility and build encoder arguments. The
// scheduler and merge packages read these records through Registry; they
// are not GORM models here because the owning store (the media scanner and
// probe tool) lives outside this module.
type MediaFile struct {
	ID            string
	Path          string
	VideoCodec    string
	AudioCodec    string
	Width         int
	Height        int
	FPS           float64 // 0 means "unknown", caller should apply DefaultFPS
	SampleRateHz  int     // 0 means "unknown", caller should apply DefaultSampleRateHz
	DurationSecs  float64
	BitrateKbps   int
	Compatibility string
}

// Default values applied when a MediaFile's metadata omits framerate or
// sample rate, matching the original scanner's own fallback behavior.
const (
	DefaultFPS           = 30.0
	DefaultSampleRateHz  = 48000
	FPSTolerance         = 0.1
	AudioSampleRateMatch = "identical"
)

// Profile is a named encoding target: protocol, mode, and the bitrate/
// resolution/GOP parameters encodeargs turns into an ffmpeg argv.
type Profile struct {
	ID           string
	Name         string
	Protocol     Protocol
	Mode         Mode
	VideoKbps    int // 0 = unset, no -b:v/-maxrate/-bufsize triple emitted
	AudioKbps    int // 0 = unset, no -b:a emitted
	Resolution   string // "WxH", empty = no -s flag
	GOPSize      int
	WANOptimized bool
}

// Settings mirrors the four capacity knobs the scheduler consumes, as
// described by the settings table a caller persists and propagates via
// update_settings.
type Settings struct {
	MaxTotalStreams     uint32
	MaxTranscodeCPU     uint32
	MaxTranscodeNVENC   uint32
	MaxTotalBitrateMbps uint32
}

// DefaultSettings mirrors the original implementation's conservative
// defaults.
func DefaultSettings() Settings {
	return Settings{
		MaxTotalStreams:     50,
		MaxTranscodeCPU:     8,
		MaxTranscodeNVENC:   6,
		MaxTotalBitrateMbps: 500,
	}
}

// Registry is the narrow read interface the scheduler and merge pipeline
// use to resolve ids into the richer records (media files, profiles) that
// a relational store outside this module owns. This module never writes
// through it; see DESIGN.md for why streams/profiles/settings persistence
// is not implemented here.
type Registry interface {
	MediaFile(id string) (MediaFile, error)
	Profile(id string) (Profile, error)
}

// StreamRuntimeInfo is what a caller typically wants to display about a
// registered stream: descriptor plus point-in-time lifecycle fields that
// live in the state machine, not here.
type StreamRuntimeInfo struct {
	Descriptor StreamDescriptor
	StartedAt  time.Time
	PID        int
	LastError  string
}
