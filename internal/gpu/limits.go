// Package gpu detects NVENC session capacity and tracks active encode
// sessions per GPU. The family->session-limit table is configuration, not
// a hard-coded constant: the upstream heuristic assigns the same estimate
// to several distinct GPU families, which only makes sense as a tunable
// default rather than a fact about the hardware.
package gpu

import (
	"bufio"
	"context"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// FamilyLimit maps a substring match against the GPU name (case-insensitive)
// to a maximum concurrent NVENC session count.
type FamilyLimit struct {
	Contains string
	Max      int
}

// DefaultFamilyLimits mirrors the upstream heuristic: newer consumer GPUs
// get progressively higher session ceilings, with a conservative fallback
// for anything unrecognized. Order matters — the first match wins.
func DefaultFamilyLimits() []FamilyLimit {
	return []FamilyLimit{
		{Contains: "RTX 40", Max: 12},
		{Contains: "RTX 50", Max: 12},
		{Contains: "RTX 30", Max: 8},
		{Contains: "RTX 20", Max: 8},
		{Contains: "GTX 16", Max: 3},
		{Contains: "GTX 10", Max: 3},
	}
}

// DefaultFallbackMax is used when no FamilyLimit entry matches the detected
// GPU name.
const DefaultFallbackMax = 6

// Detector probes nvidia-smi for GPU presence/name and resolves a session
// ceiling from a configurable family table.
type Detector struct {
	FamilyLimits []FamilyLimit
	FallbackMax  int
	Timeout      time.Duration
}

// NewDetector builds a Detector with the default family table.
func NewDetector() *Detector {
	return &Detector{
		FamilyLimits: DefaultFamilyLimits(),
		FallbackMax:  DefaultFallbackMax,
		Timeout:      3 * time.Second,
	}
}

// Available reports whether nvidia-smi is present and runnable.
func (d *Detector) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, d.Timeout)
	defer cancel()
	return exec.CommandContext(ctx, "nvidia-smi", "--version").Run() == nil
}

// DetectMaxSessions runs nvidia-smi once to read the GPU name and resolves
// it against the family table. It returns FallbackMax if nvidia-smi is
// unavailable or its output doesn't parse within the deadline.
func (d *Detector) DetectMaxSessions(ctx context.Context) int {
	ctx, cancel := context.WithTimeout(ctx, d.Timeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, "nvidia-smi", "--query-gpu=name", "--format=csv,noheader").Output()
	if err != nil {
		return d.FallbackMax
	}

	name := strings.ToUpper(strings.TrimSpace(firstLine(string(out))))
	for _, fl := range d.FamilyLimits {
		if strings.Contains(name, strings.ToUpper(fl.Contains)) {
			return fl.Max
		}
	}
	return d.FallbackMax
}

func firstLine(s string) string {
	scanner := bufio.NewScanner(strings.NewReader(s))
	if scanner.Scan() {
		return scanner.Text()
	}
	return ""
}

// SessionTracker counts active NVENC sessions per GPU index against a
// configured ceiling, guarding its maps with an RWMutex the way the
// teacher's own per-GPU accounting does.
type SessionTracker struct {
	mu       sync.RWMutex
	active   map[int]int
	maxLimit map[int]int
}

// NewSessionTracker builds a tracker with a ceiling per GPU index. A
// ceiling of 0 means unlimited for that index.
func NewSessionTracker(maxByIndex map[int]int) *SessionTracker {
	t := &SessionTracker{
		active:   make(map[int]int),
		maxLimit: make(map[int]int, len(maxByIndex)),
	}
	for idx, max := range maxByIndex {
		t.maxLimit[idx] = max
	}
	return t
}

// Acquire attempts to reserve one NVENC session on gpuIndex. It returns
// false if that GPU's ceiling is already reached.
func (t *SessionTracker) Acquire(gpuIndex int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	max := t.maxLimit[gpuIndex]
	if max == 0 {
		t.active[gpuIndex]++
		return true
	}
	if t.active[gpuIndex] >= max {
		return false
	}
	t.active[gpuIndex]++
	return true
}

// Release returns one NVENC session on gpuIndex. Idempotent below zero.
func (t *SessionTracker) Release(gpuIndex int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active[gpuIndex] > 0 {
		t.active[gpuIndex]--
	}
}

// ActiveSessions returns the current session count for gpuIndex.
func (t *SessionTracker) ActiveSessions(gpuIndex int) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.active[gpuIndex]
}

// MaxSessions returns the configured ceiling for gpuIndex (0 = unlimited).
func (t *SessionTracker) MaxSessions(gpuIndex int) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.maxLimit[gpuIndex]
}

// SetMaxSessions updates the ceiling for gpuIndex, e.g. after re-running
// detection.
func (t *SessionTracker) SetMaxSessions(gpuIndex, max int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.maxLimit[gpuIndex] = max
}
