// Package scheduler coordinates admission control, the priority wait-list,
// and per-stream lifecycle state behind a single lock. It is the one
// component callers (the CLI, a future API layer) talk to when starting,
// stopping, or re-evaluating streams.
package scheduler

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/olbboy/streviz-engine/internal/capacity"
	"github.com/olbboy/streviz-engine/internal/models"
	"github.com/olbboy/streviz-engine/internal/queue"
	"github.com/olbboy/streviz-engine/internal/statemachine"
)

// Status is the externally visible outcome of a start request.
type Status string

const (
	StatusStarting Status = "starting"
	StatusQueued   Status = "queued"
	StatusError    Status = "error"
)

// Result is returned from RequestStart: the stream's resulting status plus,
// for queued streams, its position in the wait-list.
type Result struct {
	StreamID      string
	Status        Status
	Queued        bool
	QueuePosition int
	Message       string
}

// Scheduler owns the capacity enforcer, wait-list, and one state machine
// per registered stream. All mutating methods take the same mutex, so the
// scheduler can be shared across goroutines without the caller worrying
// about interleaved admission decisions.
type Scheduler struct {
	mu sync.Mutex

	log *slog.Logger

	limits *capacity.Enforcer
	queue  *queue.Manager

	states  map[string]*statemachine.Machine
	streams map[string]models.StreamDescriptor
}

// New builds a Scheduler from the given settings.
func New(settings models.Settings, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		log:     log,
		limits:  capacity.NewEnforcer(capacity.FromSettings(settings)),
		queue:   queue.New(),
		states:  make(map[string]*statemachine.Machine),
		streams: make(map[string]models.StreamDescriptor),
	}
}

// UpdateSettings replaces the capacity limits in effect. Running streams
// are never retroactively stopped; only future admission decisions and the
// next TryDequeueNext call observe the new limits.
func (s *Scheduler) UpdateSettings(settings models.Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limits.UpdateLimits(capacity.FromSettings(settings))
}

// RegisterStream makes a stream known to the scheduler, creating its state
// machine in Pending. Call this when a stream is created.
func (s *Scheduler) RegisterStream(d models.StreamDescriptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streams[d.ID] = d
	s.states[d.ID] = statemachine.New(d.ID)
}

// UnregisterStream forgets a stream entirely. Call this when a stream is
// deleted; it also removes any pending wait-list entry.
func (s *Scheduler) UnregisterStream(streamID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.streams, streamID)
	delete(s.states, streamID)
	s.queue.Remove(streamID)
}

// RequestStart evaluates admission for a registered stream: if capacity
// allows, it commits the usage and returns Starting; if capacity is
// exhausted, it enqueues the stream and returns Queued; an unrecoverable
// problem (unregistered stream, illegal state, unknown mode) returns Error
// without mutating capacity accounting.
func (s *Scheduler) RequestStart(streamID string) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.streams[streamID]
	if !ok {
		return Result{StreamID: streamID, Status: StatusError, Message: models.ErrStreamNotRegistered.Error()}
	}

	sm, ok := s.states[streamID]
	if !ok {
		sm = statemachine.New(streamID)
		s.states[streamID] = sm
	}

	if !sm.State.CanStart() {
		return Result{
			StreamID: streamID,
			Status:   StatusError,
			Message:  fmt.Sprintf("cannot start from state: %s", sm.State),
		}
	}

	if _, err := sm.Apply(statemachine.Event{Kind: statemachine.StartRequested}); err != nil {
		return Result{StreamID: streamID, Status: StatusError, Message: err.Error()}
	}

	check := s.limits.CanStart(d.Mode, uint32(d.BitrateMbps))
	switch check.Decision {
	case capacity.Allowed:
		s.limits.RecordStart(d.Mode, uint32(d.BitrateMbps))
		s.queue.MarkRunning(streamID)
		s.log.Info("stream admitted", "stream_id", streamID, "mode", d.Mode)
		return Result{StreamID: streamID, Status: StatusStarting}

	case capacity.Queued:
		if _, err := sm.Apply(statemachine.Event{Kind: statemachine.EnqueuedForLimits, Reason: check.Reason}); err != nil {
			s.log.Warn("state machine rejected EnqueuedForLimits", "stream_id", streamID, "error", err)
		}
		if err := s.queue.Enqueue(queue.Entry{
			StreamID: streamID,
			Priority: d.Priority,
			Pinned:   d.Pinned,
			Mode:     d.Mode,
			QueuedAt: time.Now(),
		}); err != nil {
			s.log.Warn("enqueue failed", "stream_id", streamID, "error", err)
		}
		return Result{
			StreamID:      streamID,
			Status:        StatusQueued,
			Queued:        true,
			QueuePosition: s.queue.QueueLen(),
			Message:       check.Reason,
		}

	default: // capacity.Rejected
		if _, err := sm.Apply(statemachine.Event{Kind: statemachine.ErrorOccurred, Message: check.Reason}); err != nil {
			s.log.Warn("state machine rejected ErrorOccurred", "stream_id", streamID, "error", err)
		}
		return Result{StreamID: streamID, Status: StatusError, Message: check.Reason}
	}
}

// OnProcessStarted records the subprocess PID once the supervisor has
// actually launched the encoder for a starting stream.
func (s *Scheduler) OnProcessStarted(streamID string, pid int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sm, ok := s.states[streamID]; ok {
		if _, err := sm.Apply(statemachine.Event{Kind: statemachine.ProcessStarted, PID: pid}); err != nil {
			s.log.Warn("state machine rejected ProcessStarted", "stream_id", streamID, "error", err)
		}
	}
}

// OnStreamStopped releases a running stream's capacity accounting and
// marks its state machine Stopped.
func (s *Scheduler) OnStreamStopped(streamID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseLocked(streamID)
	if sm, ok := s.states[streamID]; ok {
		if _, err := sm.Apply(statemachine.Event{Kind: statemachine.ProcessStopped}); err != nil {
			s.log.Warn("state machine rejected ProcessStopped", "stream_id", streamID, "error", err)
		}
	}
}

// OnStreamError releases a running stream's capacity accounting and moves
// its state machine to Error with the given message.
func (s *Scheduler) OnStreamError(streamID, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseLocked(streamID)
	if sm, ok := s.states[streamID]; ok {
		if _, err := sm.Apply(statemachine.Event{Kind: statemachine.ErrorOccurred, Message: message}); err != nil {
			s.log.Warn("state machine rejected ErrorOccurred", "stream_id", streamID, "error", err)
		}
	}
}

// RequestStop stops a stream if its current state allows it, releasing
// capacity accounting and removing any wait-list entry. It returns false
// if the stream's state does not permit stopping (e.g. already Stopped).
func (s *Scheduler) RequestStop(streamID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.queue.Remove(streamID)

	sm, ok := s.states[streamID]
	if !ok || !sm.State.CanStop() {
		return false
	}

	if _, err := sm.Apply(statemachine.Event{Kind: statemachine.StopRequested}); err != nil {
		s.log.Warn("state machine rejected StopRequested", "stream_id", streamID, "error", err)
		return false
	}
	s.releaseLocked(streamID)
	return true
}

// releaseLocked returns a stream's capacity usage and clears its running
// marker. Callers must hold s.mu.
func (s *Scheduler) releaseLocked(streamID string) {
	if d, ok := s.streams[streamID]; ok {
		s.limits.RecordStop(d.Mode, uint32(d.BitrateMbps))
	}
	s.queue.MarkStopped(streamID)
}

// TryDequeueNext admits the head of the wait-list if current capacity now
// allows it. It returns the admitted stream id, or "" if the queue is empty
// or its head still cannot be admitted. Callers should invoke this after
// any OnStreamStopped/OnStreamError/UpdateSettings call that may have freed
// capacity.
func (s *Scheduler) TryDequeueNext() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	head, ok := s.queue.Peek()
	if !ok {
		return ""
	}

	d := s.streams[head.StreamID]
	check := s.limits.CanStart(head.Mode, uint32(d.BitrateMbps))
	if check.Decision != capacity.Allowed {
		return ""
	}

	s.queue.Dequeue()
	s.limits.RecordStart(head.Mode, uint32(d.BitrateMbps))
	s.queue.MarkRunning(head.StreamID)

	if sm, ok := s.states[head.StreamID]; ok {
		if _, err := sm.Apply(statemachine.Event{Kind: statemachine.SlotAvailable}); err != nil {
			s.log.Warn("state machine rejected SlotAvailable", "stream_id", head.StreamID, "error", err)
		}
	}

	s.log.Info("dequeued stream into available slot", "stream_id", head.StreamID)
	return head.StreamID
}

// GetState returns a stream's current lifecycle state.
func (s *Scheduler) GetState(streamID string) (statemachine.State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sm, ok := s.states[streamID]
	if !ok {
		return "", false
	}
	return sm.State, true
}

// CapacitySummary returns the current usage/limits snapshot.
func (s *Scheduler) CapacitySummary() capacity.Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.limits.CapacitySummary()
}

// QueueInfo returns a snapshot of the wait-list.
func (s *Scheduler) QueueInfo() []queue.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.QueuedStreams()
}

// RunningIDs returns a snapshot of currently running stream ids.
func (s *Scheduler) RunningIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.RunningIDs()
}
