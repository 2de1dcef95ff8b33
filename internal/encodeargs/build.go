// Package encodeargs builds the FFmpeg argument list for one stream from
// its profile and source media, and derives the publish/reader URLs that
// argument list targets.
package encodeargs

import (
	"fmt"

	"github.com/olbboy/streviz-engine/internal/credentials"
	"github.com/olbboy/streviz-engine/internal/models"
)

// Options carries the inputs build needs beyond the media/profile pair.
type Options struct {
	StreamName string
	Auth       *credentials.StreamAuth
	WANMode    bool
}

// Build returns the full FFmpeg argv (excluding the binary name itself)
// for streaming media through profile, and the publish URL it targets.
//
// Resolution of mode follows the original encoder's fallback: a profile
// asking for copy against source media that isn't copy-compatible falls
// back to cpu transcode rather than failing outright.
func Build(media models.MediaFile, profile models.Profile, opts Options) ([]string, string) {
	args := []string{
		"-re",
		"-stream_loop", "-1",
		"-i", media.Path,
	}

	mode := resolveMode(profile, media)

	switch mode {
	case models.ModeCopy:
		args = append(args, "-c:v", "copy", "-c:a", "copy")
	case models.ModeCPU:
		args = append(args, cpuArgs(profile)...)
	case models.ModeNVENC:
		args = append(args, nvencArgs(profile)...)
	default:
		args = append(args, "-c:v", "copy", "-c:a", "copy")
	}

	outputURL := credentials.BuildPublishURL(profile.Protocol, opts.StreamName, opts.Auth, opts.WANMode)

	switch profile.Protocol {
	case models.ProtocolSRT:
		args = append(args, "-f", "mpegts")
	default:
		args = append(args, "-f", "rtsp", "-rtsp_transport", "tcp")
	}

	args = append(args, outputURL)
	return args, outputURL
}

// resolveMode applies the copy->cpu fallback: a copy-mode profile against
// media whose scanned compatibility isn't "copy" transcodes on CPU instead
// of producing a stream ffmpeg would reject.
func resolveMode(profile models.Profile, media models.MediaFile) models.Mode {
	if profile.Mode == models.ModeCopy && media.Compatibility != "copy" {
		return models.ModeCPU
	}
	return profile.Mode
}

func cpuArgs(profile models.Profile) []string {
	args := []string{
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-tune", "zerolatency",
		"-g", fmt.Sprintf("%d", profile.GOPSize),
	}
	args = append(args, videoBitrateArgs(profile)...)
	if profile.Resolution != "" {
		args = append(args, "-s", profile.Resolution)
	}
	args = append(args, "-c:a", "aac")
	if profile.AudioKbps > 0 {
		args = append(args, "-b:a", fmt.Sprintf("%dk", profile.AudioKbps))
	}
	return args
}

func nvencArgs(profile models.Profile) []string {
	args := []string{
		"-hwaccel", "cuda",
		"-c:v", "h264_nvenc",
		"-preset", "p4",
		"-tune", "ll",
		"-g", fmt.Sprintf("%d", profile.GOPSize),
	}
	args = append(args, videoBitrateArgs(profile)...)
	if profile.Resolution != "" {
		args = append(args, "-s", profile.Resolution)
	}
	args = append(args, "-c:a", "aac")
	if profile.AudioKbps > 0 {
		args = append(args, "-b:a", fmt.Sprintf("%dk", profile.AudioKbps))
	}
	return args
}

func videoBitrateArgs(profile models.Profile) []string {
	if profile.VideoKbps <= 0 {
		return nil
	}
	return []string{
		"-b:v", fmt.Sprintf("%dk", profile.VideoKbps),
		"-maxrate", fmt.Sprintf("%dk", profile.VideoKbps),
		"-bufsize", fmt.Sprintf("%dk", profile.VideoKbps*2),
	}
}

// ReaderURL returns the URL a downstream client pulls this stream from.
func ReaderURL(profile models.Profile, streamName, host string, auth *credentials.StreamAuth) string {
	return credentials.BuildReaderURL(profile.Protocol, streamName, auth, host)
}
