// Package queue implements the scheduler's priority wait-list: streams
// that could not be admitted immediately, ordered by (pinned, priority,
// FIFO). It also tracks the set of currently-running stream ids so the
// scheduler can reject duplicate enqueue/start requests in one place.
package queue

import (
	"container/heap"
	"fmt"
	"time"

	"github.com/olbboy/streviz-engine/internal/models"
)

// Entry is one waiting stream.
type Entry struct {
	StreamID string
	Priority uint8
	Pinned   bool
	Mode     models.Mode
	QueuedAt time.Time
}

// innerHeap is a container/heap max-heap ordered by (pinned, priority,
// -queued_at): pinned beats unpinned, higher priority beats lower, and for
// equal (pinned, priority) the earlier-queued entry beats the later one
// (FIFO). container/heap always pops the "least" element per Less, so
// Less here is defined as "comes first in pop order", inverting the usual
// min-heap sense.
type innerHeap []*Entry

func (h innerHeap) Len() int { return len(h) }

func (h innerHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	if a.Pinned != b.Pinned {
		return a.Pinned
	}
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return a.QueuedAt.Before(b.QueuedAt)
}

func (h innerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *innerHeap) Push(x any) { *h = append(*h, x.(*Entry)) }

func (h *innerHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Manager composes the heap with a running-id set, matching the original
// QueueManager: the heap alone can't answer "is this stream already
// running" without the companion set.
type Manager struct {
	heap    innerHeap
	running map[string]struct{}
}

// New returns an empty Manager.
func New() *Manager {
	return &Manager{running: make(map[string]struct{})}
}

// Enqueue adds a stream to the wait-list. It rejects duplicates: a stream
// already running or already queued cannot be enqueued again.
func (m *Manager) Enqueue(e Entry) error {
	if _, ok := m.running[e.StreamID]; ok {
		return fmt.Errorf("stream %s is already running", e.StreamID)
	}
	if m.IsQueued(e.StreamID) {
		return fmt.Errorf("stream %s is already queued", e.StreamID)
	}
	entry := e
	heap.Push(&m.heap, &entry)
	return nil
}

// Peek returns the head of the queue without removing it.
func (m *Manager) Peek() (Entry, bool) {
	if len(m.heap) == 0 {
		return Entry{}, false
	}
	return *m.heap[0], true
}

// Dequeue removes and returns the head of the queue.
func (m *Manager) Dequeue() (Entry, bool) {
	if len(m.heap) == 0 {
		return Entry{}, false
	}
	item := heap.Pop(&m.heap).(*Entry)
	return *item, true
}

// Remove deletes an arbitrary stream id from the queue if present. This is
// O(N) in queue length, which the design accepts since N is bounded by
// max_total (typically small).
func (m *Manager) Remove(streamID string) bool {
	for i, e := range m.heap {
		if e.StreamID == streamID {
			heap.Remove(&m.heap, i)
			return true
		}
	}
	return false
}

// MarkRunning records a stream as running (typically after a successful
// dequeue or a direct admission that bypassed the queue entirely).
func (m *Manager) MarkRunning(streamID string) {
	m.running[streamID] = struct{}{}
}

// MarkStopped clears a stream's running status.
func (m *Manager) MarkStopped(streamID string) {
	delete(m.running, streamID)
}

// QueueLen returns the number of waiting entries.
func (m *Manager) QueueLen() int { return len(m.heap) }

// RunningCount returns the number of running streams.
func (m *Manager) RunningCount() int { return len(m.running) }

// RunningIDs returns a snapshot of the running id set.
func (m *Manager) RunningIDs() []string {
	ids := make([]string, 0, len(m.running))
	for id := range m.running {
		ids = append(ids, id)
	}
	return ids
}

// QueuedStreams returns a snapshot of the waiting entries, heap order (not
// sorted for display beyond that).
func (m *Manager) QueuedStreams() []Entry {
	out := make([]Entry, len(m.heap))
	for i, e := range m.heap {
		out[i] = *e
	}
	return out
}

// IsQueued reports whether a stream id currently has a waiting entry.
func (m *Manager) IsQueued(streamID string) bool {
	for _, e := range m.heap {
		if e.StreamID == streamID {
			return true
		}
	}
	return false
}

// IsRunning reports whether a stream id is in the running set.
func (m *Manager) IsRunning(streamID string) bool {
	_, ok := m.running[streamID]
	return ok
}
