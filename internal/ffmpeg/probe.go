// Package ffmpeg wraps invocation of the external encoder binary: running
// it (wrapper.go) and probing what the installed build can do for the
// three stream modes this engine schedules — copy, cpu transcode, and
// nvenc transcode.
package ffmpeg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/olbboy/streviz-engine/internal/models"
	"github.com/olbboy/streviz-engine/internal/util"
)

// ProbeTimeout bounds each capability probe, including the nvenc
// test-encode. A probe that exceeds it reports the feature unavailable
// instead of failing the whole detection.
const ProbeTimeout = 3 * time.Second

// probeCacheTTL is how long a successful probe result is reused before the
// binary is re-examined.
const probeCacheTTL = 5 * time.Minute

// Capabilities is the probed feature set of the installed encoder binary,
// expressed in terms of what this engine needs from it.
type Capabilities struct {
	Path      string       `json:"path"`
	ProbePath string       `json:"probe_path,omitempty"`
	Version   string       `json:"version"`
	Major     int          `json:"major"`
	Minor     int          `json:"minor"`
	Encoders  []string     `json:"encoders,omitempty"`
	Muxers    []string     `json:"muxers,omitempty"`
	NVENC     NVENCSupport `json:"nvenc"`
}

// NVENCSupport records whether a hardware test-encode actually succeeded,
// not just whether the encoder is compiled in: builds routinely ship
// h264_nvenc without a usable GPU behind it.
type NVENCSupport struct {
	Available  bool   `json:"available"`
	DeviceName string `json:"device_name,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// HasEncoder reports whether the named encoder is compiled into the binary.
func (c *Capabilities) HasEncoder(name string) bool {
	for _, e := range c.Encoders {
		if e == name {
			return true
		}
	}
	return false
}

// CanMux reports whether the binary can mux the named output format.
func (c *Capabilities) CanMux(name string) bool {
	for _, m := range c.Muxers {
		if m == name {
			return true
		}
	}
	return false
}

// SupportsMode reports whether a stream of the given mode can run on this
// binary. Copy needs nothing beyond the binary itself; cpu needs the
// software h264+aac encoders; nvenc needs a passing hardware test-encode.
func (c *Capabilities) SupportsMode(mode models.Mode) bool {
	switch mode {
	case models.ModeCopy:
		return true
	case models.ModeCPU:
		return c.HasEncoder("libx264") && c.HasEncoder("aac")
	case models.ModeNVENC:
		return c.NVENC.Available
	default:
		return false
	}
}

// CanPublish reports whether the binary can mux output for the given relay
// protocol: RTSP needs the rtsp muxer, SRT is carried as MPEG-TS.
func (c *Capabilities) CanPublish(protocol models.Protocol) bool {
	if protocol == models.ProtocolSRT {
		return c.CanMux("mpegts")
	}
	return c.CanMux("rtsp")
}

// AtLeastVersion reports whether the binary's version meets the given
// major.minor minimum.
func (c *Capabilities) AtLeastVersion(major, minor int) bool {
	if c.Major != major {
		return c.Major > major
	}
	return c.Minor >= minor
}

// JSON renders the capabilities for `encoder detect` output.
func (c *Capabilities) JSON() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// commandRunner runs a command and returns its stdout. Split out so probe
// tests never exec a real binary.
type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execOutput(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// Prober locates the encoder binary and probes its capabilities, caching
// the result so per-stream admission paths can consult it without
// re-running subprocesses.
type Prober struct {
	mu       sync.Mutex
	run      commandRunner
	cached   *Capabilities
	probedAt time.Time
	ttl      time.Duration
}

// NewProber builds a Prober that shells out to the real binary.
func NewProber() *Prober {
	return &Prober{run: execOutput, ttl: probeCacheTTL}
}

// Probe locates the binary and examines it, reusing a recent result when
// one is cached.
func (p *Prober) Probe(ctx context.Context) (*Capabilities, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cached != nil && time.Since(p.probedAt) < p.ttl {
		return p.cached, nil
	}

	caps, err := p.probe(ctx)
	if err != nil {
		return nil, err
	}

	p.cached = caps
	p.probedAt = time.Now()
	return caps, nil
}

// Invalidate drops the cached result so the next Probe re-examines the
// binary, e.g. after the operator installs a different build.
func (p *Prober) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cached = nil
}

var versionPattern = regexp.MustCompile(`^n?(\d+)\.(\d+)`)

func (p *Prober) probe(ctx context.Context) (*Capabilities, error) {
	path, err := util.FindBinary("ffmpeg", "STREVIZ_FFMPEG_BINARY")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrEncoderNotFound, err)
	}

	caps := &Capabilities{Path: path}

	// ffprobe is optional: the media scanner uses it for codec metadata,
	// but streaming itself only needs ffmpeg.
	if probePath, err := util.FindBinary("ffprobe", "STREVIZ_FFPROBE_BINARY"); err == nil {
		caps.ProbePath = probePath
	}

	if err := p.probeVersion(ctx, caps); err != nil {
		return nil, err
	}

	caps.Encoders = p.probeNameList(ctx, path, "-encoders")
	caps.Muxers = p.probeNameList(ctx, path, "-muxers")
	caps.NVENC = p.probeNVENC(ctx, caps)

	return caps, nil
}

func (p *Prober) probeVersion(ctx context.Context, caps *Capabilities) error {
	ctx, cancel := context.WithTimeout(ctx, ProbeTimeout)
	defer cancel()

	out, err := p.run(ctx, caps.Path, "-version")
	if err != nil {
		return fmt.Errorf("querying encoder version: %w", err)
	}

	// First line: "ffmpeg version 6.1.1 Copyright ..." or "... version n6.1-3-g...".
	fields := strings.Fields(firstLine(string(out)))
	if len(fields) < 3 || fields[1] != "version" {
		return fmt.Errorf("unrecognized encoder version banner: %q", firstLine(string(out)))
	}
	caps.Version = fields[2]

	if m := versionPattern.FindStringSubmatch(caps.Version); m != nil {
		caps.Major, _ = strconv.Atoi(m[1])
		caps.Minor, _ = strconv.Atoi(m[2])
	}
	return nil
}

// probeNameList parses the name column out of ffmpeg's -encoders/-muxers
// listings: a legend, a dashed separator, then one "<flags> <name> <desc>"
// line per entry.
func (p *Prober) probeNameList(ctx context.Context, path, listFlag string) []string {
	ctx, cancel := context.WithTimeout(ctx, ProbeTimeout)
	defer cancel()

	out, err := p.run(ctx, path, listFlag, "-hide_banner")
	if err != nil {
		return nil
	}

	var names []string
	past := false
	for _, line := range strings.Split(string(out), "\n") {
		if !past {
			if strings.Contains(line, "--") {
				past = true
			}
			continue
		}
		fields := strings.Fields(line)
		if len(fields) >= 2 {
			names = append(names, fields[1])
		}
	}
	return names
}

// probeNVENC runs a tiny synthetic hardware encode. The ProbeTimeout
// deadline matters here: on hosts with broken driver stacks this exact
// invocation is known to hang rather than fail.
func (p *Prober) probeNVENC(ctx context.Context, caps *Capabilities) NVENCSupport {
	if !caps.HasEncoder("h264_nvenc") {
		return NVENCSupport{Reason: "h264_nvenc encoder not compiled in"}
	}

	testCtx, cancel := context.WithTimeout(ctx, ProbeTimeout)
	defer cancel()

	_, err := p.run(testCtx, caps.Path,
		"-hide_banner",
		"-f", "lavfi", "-i", "nullsrc=s=320x240:d=0.1",
		"-c:v", "h264_nvenc",
		"-frames:v", "3",
		"-f", "null", "-")
	if errors.Is(testCtx.Err(), context.DeadlineExceeded) {
		return NVENCSupport{Reason: "test encode timed out"}
	}
	if err != nil {
		return NVENCSupport{Reason: "test encode failed"}
	}

	return NVENCSupport{Available: true, DeviceName: p.gpuName(ctx)}
}

// gpuName best-effort reads the GPU name for display; nvenc availability
// is decided by the test encode, not by this.
func (p *Prober) gpuName(ctx context.Context) string {
	ctx, cancel := context.WithTimeout(ctx, ProbeTimeout)
	defer cancel()

	out, err := p.run(ctx, "nvidia-smi", "--query-gpu=name", "--format=csv,noheader")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(firstLine(string(out)))
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
