// Package supervisor owns the lifecycle of one FFmpeg subprocess per
// running stream: spawning it, tracking its PID, parsing its stderr for
// progress and error lines, and killing it on stop. It never talks back
// into the scheduler directly; callers relay Events to it instead, which
// keeps the two packages from holding references to each other.
package supervisor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/olbboy/streviz-engine/internal/models"
)

// EventKind identifies which fields of an Event are populated.
type EventKind int

const (
	EventStarted EventKind = iota
	EventProgress
	EventStopped
	EventError
)

// Progress is one parsed "frame=... fps=... bitrate=... time=... speed=..."
// line from ffmpeg's stderr.
type Progress struct {
	Frame   int64
	FPS     float64
	Bitrate string
	Time    string
	Speed   string
}

// Event is emitted for every lifecycle transition and progress line a
// supervised process produces.
type Event struct {
	Kind     EventKind
	StreamID string
	Progress Progress
	Message  string
}

var progressLineRe = regexp.MustCompile(
	`frame=\s*(\d+)\s+fps=\s*([\d.]+)\s+.*?bitrate=\s*([\d.]+[kM]?bits/s).*?time=(\S+).*?speed=\s*([\d.]+x)`,
)

// Runner abstracts process spawning so tests can substitute a fake process
// instead of actually exec'ing an encoder binary.
type Runner interface {
	// Start launches the process and returns its PID, plus a reader over
	// its combined/stderr stream that the supervisor scans for progress
	// and error lines until it's closed (i.e. until the process exits).
	Start(ctx context.Context, binary string, args []string) (pid int, stderr io.ReadCloser, err error)
	// Kill terminates the process identified by pid.
	Kill(pid int) error
}

// process tracks one running (or being-torn-down) supervised stream.
type process struct {
	pid    int
	cancel context.CancelFunc
}

// Supervisor tracks the set of currently-running streams and fans out
// lifecycle/progress events to a single channel.
type Supervisor struct {
	mu        sync.Mutex
	runner    Runner
	log       *slog.Logger
	processes map[string]*process
	events    chan<- Event
}

// New builds a Supervisor. events may be nil if the caller doesn't need
// progress/error notifications.
func New(runner Runner, events chan<- Event, log *slog.Logger) *Supervisor {
	if log == nil {
		log = slog.Default()
	}
	return &Supervisor{
		runner:    runner,
		log:       log,
		processes: make(map[string]*process),
		events:    events,
	}
}

// StartStream spawns binary with args for streamID and returns its PID.
// It fails if streamID is already tracked.
func (s *Supervisor) StartStream(ctx context.Context, streamID, binary string, args []string) (int, error) {
	s.mu.Lock()
	if _, ok := s.processes[streamID]; ok {
		s.mu.Unlock()
		return 0, fmt.Errorf("stream %s: %w", streamID, models.ErrStreamAlreadyTracked)
	}
	s.mu.Unlock()

	procCtx, cancel := context.WithCancel(ctx)
	pid, stderr, err := s.runner.Start(procCtx, binary, args)
	if err != nil {
		cancel()
		return 0, fmt.Errorf("spawning encoder for stream %s: %w", streamID, err)
	}

	s.mu.Lock()
	s.processes[streamID] = &process{pid: pid, cancel: cancel}
	s.mu.Unlock()

	go s.parseStderr(streamID, stderr)
	s.emit(Event{Kind: EventStarted, StreamID: streamID})

	return pid, nil
}

// StopStream kills streamID's process and emits Stopped. It errors with
// models.ErrStreamNotTracked if the stream has no handle, e.g. because it
// was never started here or its process already exited and was purged.
func (s *Supervisor) StopStream(streamID string) error {
	s.mu.Lock()
	p, ok := s.processes[streamID]
	if ok {
		delete(s.processes, streamID)
	}
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("stream %s: %w", streamID, models.ErrStreamNotTracked)
	}

	p.cancel()
	err := s.runner.Kill(p.pid)
	s.emit(Event{Kind: EventStopped, StreamID: streamID})
	return err
}

// StopAll kills every tracked stream. Intended for shutdown.
func (s *Supervisor) StopAll() {
	s.mu.Lock()
	ids := make([]string, 0, len(s.processes))
	for id := range s.processes {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		// A stream can exit (and untrack itself) between the snapshot above
		// and this stop; that's not worth a shutdown warning.
		if err := s.StopStream(id); err != nil && !errors.Is(err, models.ErrStreamNotTracked) {
			s.log.Warn("error stopping stream during shutdown", "stream_id", id, "error", err)
		}
	}
}

// IsRunning reports whether a stream is currently tracked.
func (s *Supervisor) IsRunning(streamID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.processes[streamID]
	return ok
}

// RunningStreams returns a snapshot of tracked stream ids.
func (s *Supervisor) RunningStreams() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.processes))
	for id := range s.processes {
		ids = append(ids, id)
	}
	return ids
}

// parseStderr scans a process's stderr, turning progress lines into
// EventProgress and any line containing "error"/"Error" into EventError.
// It returns once the pipe closes, which happens when the process exits,
// and untracks the stream at that point.
func (s *Supervisor) parseStderr(streamID string, stderr io.ReadCloser) {
	defer stderr.Close()

	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := scanner.Text()

		if m := progressLineRe.FindStringSubmatch(line); m != nil {
			frame, _ := strconv.ParseInt(m[1], 10, 64)
			fps, _ := strconv.ParseFloat(m[2], 64)
			s.emit(Event{
				Kind:     EventProgress,
				StreamID: streamID,
				Progress: Progress{Frame: frame, FPS: fps, Bitrate: m[3], Time: m[4], Speed: m[5]},
			})
			continue
		}

		if strings.Contains(line, "error") || strings.Contains(line, "Error") {
			s.emit(Event{Kind: EventError, StreamID: streamID, Message: line})
		}
	}

	s.mu.Lock()
	delete(s.processes, streamID)
	s.mu.Unlock()
}

func (s *Supervisor) emit(ev Event) {
	if s.events == nil {
		return
	}
	select {
	case s.events <- ev:
	default:
		s.log.Warn("dropped supervisor event: channel full", "stream_id", ev.StreamID, "kind", ev.Kind)
	}
}
