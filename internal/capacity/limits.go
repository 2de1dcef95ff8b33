// Package capacity implements the admission-control decision the
// scheduler consults before starting a stream: given the current running
// counts and aggregate bandwidth, is there room for one more stream of a
// given mode and bitrate.
package capacity

import (
	"fmt"

	"github.com/olbboy/streviz-engine/internal/models"
)

// Limits holds the four configurable capacity ceilings.
type Limits struct {
	MaxTotal          uint32
	MaxCPUTranscode   uint32
	MaxNVENCTranscode uint32
	MaxBitrateMbps    uint32
}

// DefaultLimits mirrors models.DefaultSettings in limit form.
func DefaultLimits() Limits {
	s := models.DefaultSettings()
	return Limits{
		MaxTotal:          s.MaxTotalStreams,
		MaxCPUTranscode:   s.MaxTranscodeCPU,
		MaxNVENCTranscode: s.MaxTranscodeNVENC,
		MaxBitrateMbps:    s.MaxTotalBitrateMbps,
	}
}

// FromSettings converts a models.Settings into Limits.
func FromSettings(s models.Settings) Limits {
	return Limits{
		MaxTotal:          s.MaxTotalStreams,
		MaxCPUTranscode:   s.MaxTranscodeCPU,
		MaxNVENCTranscode: s.MaxTranscodeNVENC,
		MaxBitrateMbps:    s.MaxTotalBitrateMbps,
	}
}

// Usage holds the current running counts. All fields saturate at zero on
// decrement so repeated/duplicate stop notifications never underflow.
type Usage struct {
	TotalRunning     uint32
	CopyRunning      uint32
	CPUTranscoding   uint32
	NVENCTranscoding uint32
	TotalBitrateMbps uint32
}

// AddStream records a newly started stream of the given mode and bitrate.
func (u *Usage) AddStream(mode models.Mode, bitrateMbps uint32) {
	u.TotalRunning++
	switch mode {
	case models.ModeCopy:
		u.CopyRunning++
	case models.ModeCPU:
		u.CPUTranscoding++
	case models.ModeNVENC:
		u.NVENCTranscoding++
	}
	u.TotalBitrateMbps += bitrateMbps
}

// RemoveStream releases the accounting for a stopped stream. Decrements
// saturate at zero: a double-stop is a no-op rather than an underflow. A
// stop for a mode whose counter is already zero changes nothing, so the
// total always equals the sum of the per-mode counters.
func (u *Usage) RemoveStream(mode models.Mode, bitrateMbps uint32) {
	switch mode {
	case models.ModeCopy:
		if u.CopyRunning == 0 {
			return
		}
		u.CopyRunning--
	case models.ModeCPU:
		if u.CPUTranscoding == 0 {
			return
		}
		u.CPUTranscoding--
	case models.ModeNVENC:
		if u.NVENCTranscoding == 0 {
			return
		}
		u.NVENCTranscoding--
	}
	u.TotalRunning = saturatingSub(u.TotalRunning, 1)
	u.TotalBitrateMbps = saturatingSub(u.TotalBitrateMbps, bitrateMbps)
}

func saturatingSub(a, b uint32) uint32 {
	if b >= a {
		return 0
	}
	return a - b
}

// Decision is the outcome of a can_start check.
type Decision int

const (
	// Allowed means the stream may start immediately.
	Allowed Decision = iota
	// Queued means capacity is currently exhausted; the stream should wait.
	Queued
	// Rejected means the request itself is invalid (unknown mode).
	Rejected
)

// Result pairs a Decision with the human-readable reason behind a Queued
// or Rejected outcome.
type Result struct {
	Decision Decision
	Reason   string
}

// Enforcer evaluates can_start against a mutable Usage under fixed Limits.
// It holds no lock itself; callers (the scheduler) serialize access.
type Enforcer struct {
	Limits Limits
	Usage  Usage
}

// NewEnforcer builds an Enforcer starting from zero usage.
func NewEnforcer(limits Limits) *Enforcer {
	return &Enforcer{Limits: limits}
}

// CanStart answers whether a stream of the given mode and bitrate may
// start right now. The check order is contractual: total limit, then
// mode-specific limit, then unknown-mode rejection, then bandwidth.
func (e *Enforcer) CanStart(mode models.Mode, bitrateMbps uint32) Result {
	if e.Usage.TotalRunning >= e.Limits.MaxTotal {
		return Result{Queued, fmt.Sprintf("max streams reached (%d/%d)", e.Usage.TotalRunning, e.Limits.MaxTotal)}
	}

	switch mode {
	case models.ModeCPU:
		if e.Usage.CPUTranscoding >= e.Limits.MaxCPUTranscode {
			return Result{Queued, fmt.Sprintf("CPU transcode limit reached (%d/%d)", e.Usage.CPUTranscoding, e.Limits.MaxCPUTranscode)}
		}
	case models.ModeNVENC:
		if e.Usage.NVENCTranscoding >= e.Limits.MaxNVENCTranscode {
			return Result{Queued, fmt.Sprintf("NVENC session limit reached (%d/%d)", e.Usage.NVENCTranscoding, e.Limits.MaxNVENCTranscode)}
		}
	case models.ModeCopy:
		// no per-mode limit
	default:
		return Result{Rejected, fmt.Sprintf("Unknown mode: %s", mode)}
	}

	if e.Usage.TotalBitrateMbps+bitrateMbps > e.Limits.MaxBitrateMbps {
		return Result{Queued, fmt.Sprintf("Bandwidth limit would be exceeded (%d + %d > %d Mbps)", e.Usage.TotalBitrateMbps, bitrateMbps, e.Limits.MaxBitrateMbps)}
	}

	return Result{Decision: Allowed}
}

// RecordStart commits a stream's resource usage after admission.
func (e *Enforcer) RecordStart(mode models.Mode, bitrateMbps uint32) {
	e.Usage.AddStream(mode, bitrateMbps)
}

// RecordStop releases a stream's resource usage. Idempotent.
func (e *Enforcer) RecordStop(mode models.Mode, bitrateMbps uint32) {
	e.Usage.RemoveStream(mode, bitrateMbps)
}

// Summary is a snapshot of usage against limits for display.
type Summary struct {
	Usage  Usage
	Limits Limits
}

// CapacitySummary returns the current usage/limits pair.
func (e *Enforcer) CapacitySummary() Summary {
	return Summary{Usage: e.Usage, Limits: e.Limits}
}

// UpdateLimits replaces the limits in place. Running streams are never
// retroactively stopped; the next try_dequeue_next call re-evaluates
// admission under the new limits.
func (e *Enforcer) UpdateLimits(limits Limits) {
	e.Limits = limits
}
