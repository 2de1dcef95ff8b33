package merge

import (
	"fmt"
	"os"
	"strings"

	"github.com/olbboy/streviz-engine/internal/credentials"
	"github.com/olbboy/streviz-engine/internal/models"
)

// ConcatPlan is a fully-built concat-demuxer invocation: the list file
// path (caller must remove it once ffmpeg has read it) and the argv to
// hand to the encoder binary.
type ConcatPlan struct {
	ListFilePath string
	Args         []string
	OutputURL    string
}

// BuildConcatList writes an ffmpeg concat-demuxer list file naming each
// path in order, escaping embedded single quotes the way the demuxer's
// own documented format requires.
func BuildConcatList(paths []string) (string, error) {
	if len(paths) == 0 {
		return "", models.ErrEmptyFileList
	}

	f, err := os.CreateTemp("", "streviz-concat-*.txt")
	if err != nil {
		return "", fmt.Errorf("creating concat list file: %w", err)
	}
	defer f.Close()

	var b strings.Builder
	for _, p := range paths {
		escaped := strings.ReplaceAll(p, "'", `'\''`)
		fmt.Fprintf(&b, "file '%s'\n", escaped)
	}

	if _, err := f.WriteString(b.String()); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("writing concat list file: %w", err)
	}

	return f.Name(), nil
}

// PlanConcatStream builds the concat-copy invocation for streaming the
// given files directly to the publish URL: no re-encode, just the concat
// demuxer feeding stream-copied output.
func PlanConcatStream(paths []string, profile models.Profile, opts Options) (ConcatPlan, error) {
	listPath, err := BuildConcatList(paths)
	if err != nil {
		return ConcatPlan{}, err
	}

	args := []string{"-re"}
	if opts.LoopPlayback {
		args = append(args, "-stream_loop", "-1")
	}
	args = append(args, "-f", "concat", "-safe", "0", "-i", listPath)
	args = append(args, "-c:v", "copy", "-c:a", "copy")

	outputURL := credentials.BuildPublishURL(profile.Protocol, opts.StreamName, opts.Auth, opts.WANMode)
	switch profile.Protocol {
	case models.ProtocolSRT:
		args = append(args, "-f", "mpegts")
	default:
		args = append(args, "-f", "rtsp", "-rtsp_transport", "tcp")
	}
	args = append(args, outputURL)

	return ConcatPlan{ListFilePath: listPath, Args: args, OutputURL: outputURL}, nil
}

// PlanConcatToFile builds the concat-copy invocation for joining files
// into a single output file on disk (used by the cache's get-or-normalize
// path when the strategy is ConcatCopy rather than transcode-normalize).
func PlanConcatToFile(paths []string, output string) (ConcatPlan, error) {
	listPath, err := BuildConcatList(paths)
	if err != nil {
		return ConcatPlan{}, err
	}

	args := []string{
		"-y",
		"-f", "concat", "-safe", "0", "-i", listPath,
		"-c:v", "copy", "-c:a", "copy",
		output,
	}
	return ConcatPlan{ListFilePath: listPath, Args: args}, nil
}

// Options carries the stream-identity inputs concat/normalize plans need
// beyond the file list itself.
type Options struct {
	StreamName   string
	Auth         *credentials.StreamAuth
	WANMode      bool
	LoopPlayback bool
}
