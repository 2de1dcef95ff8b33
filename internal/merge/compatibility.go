// Package merge decides how to join a set of source files into one output
// stream — the cheap concat-demuxer path when they share a common format,
// or a transcode-normalize path when they don't — and builds the ffmpeg
// invocations for both.
package merge

import (
	"fmt"

	"github.com/olbboy/streviz-engine/internal/models"
)

// Strategy is the outcome of a compatibility check across a file set.
type Strategy string

const (
	// StrategyEmpty means no files were given.
	StrategyEmpty Strategy = "empty"
	// StrategyConcatCopy means every file shares video/audio codec,
	// resolution, framerate, and sample rate: concat demuxer + stream copy.
	StrategyConcatCopy Strategy = "concat_copy"
	// StrategyTranscodeNormalize means at least one file differs and all
	// files must be re-encoded to a common format before concatenation.
	StrategyTranscodeNormalize Strategy = "transcode_normalize"
)

// fingerprint is the subset of a MediaFile's properties that determines
// concat-copy compatibility.
type fingerprint struct {
	videoCodec string
	audioCodec string
	width      int
	height     int
	fps        float64
	sampleRate int
}

func extractFingerprint(f models.MediaFile) fingerprint {
	fps := f.FPS
	if fps == 0 {
		fps = models.DefaultFPS
	}
	sampleRate := f.SampleRateHz
	if sampleRate == 0 {
		sampleRate = models.DefaultSampleRateHz
	}
	return fingerprint{
		videoCodec: f.VideoCodec,
		audioCodec: f.AudioCodec,
		width:      f.Width,
		height:     f.Height,
		fps:        fps,
		sampleRate: sampleRate,
	}
}

// isCompatible reports whether two files can be concatenated without
// re-encoding: matching codecs, exact resolution, FPS within tolerance,
// and identical audio sample rate.
func isCompatible(a, b fingerprint) bool {
	if a.videoCodec != b.videoCodec || a.audioCodec != b.audioCodec {
		return false
	}
	if a.width != b.width || a.height != b.height {
		return false
	}
	if absFloat(a.fps-b.fps) > models.FPSTolerance {
		return false
	}
	if a.sampleRate != b.sampleRate {
		return false
	}
	return true
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// CheckCompatibility determines the merge strategy for a set of files. A
// single file is trivially compatible with itself — there is nothing to
// normalize — so it reports ConcatCopy.
func CheckCompatibility(files []models.MediaFile) Strategy {
	if len(files) == 0 {
		return StrategyEmpty
	}
	if len(files) == 1 {
		return StrategyConcatCopy
	}

	first := extractFingerprint(files[0])
	for _, f := range files[1:] {
		if !isCompatible(first, extractFingerprint(f)) {
			return StrategyTranscodeNormalize
		}
	}
	return StrategyConcatCopy
}

// CompatibilityIssues reports every field in which a later file diverges
// from the first, for display to the caller deciding whether to accept a
// slower transcode-normalize merge.
func CompatibilityIssues(files []models.MediaFile) []string {
	var issues []string
	if len(files) < 2 {
		return issues
	}

	first := extractFingerprint(files[0])
	for i, f := range files[1:] {
		c := extractFingerprint(f)
		n := i + 2 // 1-based, skipping the reference file

		if c.videoCodec != first.videoCodec {
			issues = append(issues, fmt.Sprintf("file %d has different video codec: %s vs %s", n, c.videoCodec, first.videoCodec))
		}
		if c.audioCodec != first.audioCodec {
			issues = append(issues, fmt.Sprintf("file %d has different audio codec: %s vs %s", n, c.audioCodec, first.audioCodec))
		}
		if c.width != first.width || c.height != first.height {
			issues = append(issues, fmt.Sprintf("file %d has different resolution: %dx%d vs %dx%d", n, c.width, c.height, first.width, first.height))
		}
		if absFloat(c.fps-first.fps) > models.FPSTolerance {
			issues = append(issues, fmt.Sprintf("file %d has different FPS: %.2f vs %.2f", n, c.fps, first.fps))
		}
		if c.sampleRate != first.sampleRate {
			issues = append(issues, fmt.Sprintf("file %d has different sample rate: %d vs %d", n, c.sampleRate, first.sampleRate))
		}
	}
	return issues
}

// TotalDuration sums the scanned duration of every file.
func TotalDuration(files []models.MediaFile) float64 {
	var total float64
	for _, f := range files {
		total += f.DurationSecs
	}
	return total
}
