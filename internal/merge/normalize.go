package merge

import (
	"fmt"
	"strings"
)

// NormalizeConfig is the common target format every input is transcoded
// to before concatenation.
type NormalizeConfig struct {
	TargetCodec       string
	TargetWidth       int
	TargetHeight      int
	TargetFPS         float64
	TargetBitrateKbps int
	TargetAudioCodec  string
	TargetAudioKbps   int
	TargetSampleRate  int
}

// DefaultNormalizeConfig targets 1080p h264/aac.
func DefaultNormalizeConfig() NormalizeConfig {
	return NormalizeConfig{
		TargetCodec:       "h264",
		TargetWidth:       1920,
		TargetHeight:      1080,
		TargetFPS:         30.0,
		TargetBitrateKbps: 5000,
		TargetAudioCodec:  "aac",
		TargetAudioKbps:   128,
		TargetSampleRate:  48000,
	}
}

// Preset720p targets 1280x720 at a lower bitrate, otherwise matching
// DefaultNormalizeConfig.
func Preset720p() NormalizeConfig {
	c := DefaultNormalizeConfig()
	c.TargetWidth = 1280
	c.TargetHeight = 720
	c.TargetBitrateKbps = 2500
	return c
}

// Preset4K targets 3840x2160 at a higher bitrate, otherwise matching
// DefaultNormalizeConfig.
func Preset4K() NormalizeConfig {
	c := DefaultNormalizeConfig()
	c.TargetWidth = 3840
	c.TargetHeight = 2160
	c.TargetBitrateKbps = 15000
	return c
}

func videoEncoder(codec string) string {
	switch codec {
	case "hevc", "h265":
		return "libx265"
	default:
		return "libx264"
	}
}

// buildFilterGraph produces the -filter_complex expression that scales,
// pads, and resamples every input stream to the target format before
// concatenating them into a single [outv][outa] pair.
func buildFilterGraph(fileCount int, c NormalizeConfig) string {
	parts := make([]string, 0, fileCount*2+1)

	for i := 0; i < fileCount; i++ {
		parts = append(parts, fmt.Sprintf(
			"[%d:v]scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,fps=%d[v%d]",
			i, c.TargetWidth, c.TargetHeight, c.TargetWidth, c.TargetHeight, int(c.TargetFPS), i,
		))
		parts = append(parts, fmt.Sprintf(
			"[%d:a]aresample=%d,aformat=sample_fmts=fltp:channel_layouts=stereo[a%d]",
			i, c.TargetSampleRate, i,
		))
	}

	var concatV, concatA strings.Builder
	for i := 0; i < fileCount; i++ {
		fmt.Fprintf(&concatV, "[v%d]", i)
		fmt.Fprintf(&concatA, "[a%d]", i)
	}
	parts = append(parts, fmt.Sprintf("%s%sconcat=n=%d:v=1:a=1[outv][outa]", concatV.String(), concatA.String(), fileCount))

	return strings.Join(parts, ";")
}

// PlanNormalizeToFile builds the single-pass ffmpeg invocation that
// transcodes one input file to the cache's normalized format, written as
// MPEG-TS so the result can later be concat-copied with its siblings.
func PlanNormalizeToFile(input string, c NormalizeConfig, output string) []string {
	filter := fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,fps=%d",
		c.TargetWidth, c.TargetHeight, c.TargetWidth, c.TargetHeight, int(c.TargetFPS),
	)

	return []string{
		"-y",
		"-i", input,
		"-vf", filter,
		"-af", fmt.Sprintf("aresample=%d", c.TargetSampleRate),
		"-c:v", videoEncoder(c.TargetCodec),
		"-preset", "veryfast",
		"-b:v", fmt.Sprintf("%dk", c.TargetBitrateKbps),
		"-c:a", c.TargetAudioCodec,
		"-b:a", fmt.Sprintf("%dk", c.TargetAudioKbps),
		"-f", "mpegts",
		output,
	}
}

// PlanNormalizeAndConcatStream builds the multi-input filter-complex
// invocation that normalizes every file to a common format and streams
// the concatenated result directly, for callers that want to skip the
// intermediate per-file cache entirely.
func PlanNormalizeAndConcatStream(inputs []string, c NormalizeConfig, loopPlayback bool) []string {
	args := []string{"-re"}
	for _, in := range inputs {
		if loopPlayback {
			args = append(args, "-stream_loop", "-1")
		}
		args = append(args, "-i", in)
	}

	args = append(args, "-filter_complex", buildFilterGraph(len(inputs), c))
	args = append(args, "-map", "[outv]", "-map", "[outa]")
	args = append(args,
		"-c:v", videoEncoder(c.TargetCodec),
		"-preset", "veryfast",
		"-tune", "zerolatency",
		"-b:v", fmt.Sprintf("%dk", c.TargetBitrateKbps),
		"-maxrate", fmt.Sprintf("%dk", c.TargetBitrateKbps),
		"-bufsize", fmt.Sprintf("%dk", c.TargetBitrateKbps*2),
		"-c:a", c.TargetAudioCodec,
		"-b:a", fmt.Sprintf("%dk", c.TargetAudioKbps),
	)
	return args
}

// EstimateTranscodeSeconds gives a rough wall-clock estimate for
// normalizing a file of the given duration: veryfast preset at roughly 2x
// realtime on a 1080p baseline, scaled by target resolution.
func EstimateTranscodeSeconds(durationSecs float64, c NormalizeConfig) float64 {
	resolutionFactor := float64(c.TargetWidth*c.TargetHeight) / (1920.0 * 1080.0)
	return durationSecs * resolutionFactor / 2.0
}
