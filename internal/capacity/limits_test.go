package capacity

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/olbboy/streviz-engine/internal/models"
)

func testLimits() Limits {
	return Limits{
		MaxTotal:          2,
		MaxCPUTranscode:   1,
		MaxNVENCTranscode: 1,
		MaxBitrateMbps:    100,
	}
}

func TestEnforcer_AllowsWithinLimits(t *testing.T) {
	e := NewEnforcer(testLimits())

	r := e.CanStart(models.ModeCopy, 10)
	assert.Equal(t, Allowed, r.Decision)
	assert.Empty(t, r.Reason)
}

func TestEnforcer_TotalLimitCheckedFirst(t *testing.T) {
	e := NewEnforcer(testLimits())
	e.RecordStart(models.ModeCPU, 10)
	e.RecordStart(models.ModeNVENC, 10)

	// With both total and the cpu mode limit exhausted, the reason must
	// name the total limit: the check order is contractual.
	r := e.CanStart(models.ModeCPU, 10)
	assert.Equal(t, Queued, r.Decision)
	assert.Contains(t, r.Reason, "max streams")
}

func TestEnforcer_ModeLimits(t *testing.T) {
	e := NewEnforcer(Limits{MaxTotal: 10, MaxCPUTranscode: 1, MaxNVENCTranscode: 1, MaxBitrateMbps: 1000})

	e.RecordStart(models.ModeCPU, 5)
	r := e.CanStart(models.ModeCPU, 5)
	assert.Equal(t, Queued, r.Decision)
	assert.Contains(t, r.Reason, "CPU transcode")

	e.RecordStart(models.ModeNVENC, 5)
	r = e.CanStart(models.ModeNVENC, 5)
	assert.Equal(t, Queued, r.Decision)
	assert.Contains(t, r.Reason, "NVENC session")

	// copy has no per-mode limit.
	r = e.CanStart(models.ModeCopy, 5)
	assert.Equal(t, Allowed, r.Decision)
}

func TestEnforcer_UnknownModeRejected(t *testing.T) {
	e := NewEnforcer(testLimits())
	r := e.CanStart(models.Mode("vaapi"), 1)
	assert.Equal(t, Rejected, r.Decision)
	assert.Contains(t, r.Reason, "Unknown mode")
}

func TestEnforcer_BandwidthCheckedLast(t *testing.T) {
	e := NewEnforcer(Limits{MaxTotal: 10, MaxCPUTranscode: 5, MaxNVENCTranscode: 5, MaxBitrateMbps: 100})
	e.RecordStart(models.ModeCopy, 95)

	r := e.CanStart(models.ModeCopy, 10)
	assert.Equal(t, Queued, r.Decision)
	assert.Contains(t, r.Reason, "Bandwidth")

	// Exactly reaching the limit is still allowed; only exceeding queues.
	r = e.CanStart(models.ModeCopy, 5)
	assert.Equal(t, Allowed, r.Decision)
}

func TestUsage_CountersSumInvariant(t *testing.T) {
	e := NewEnforcer(Limits{MaxTotal: 100, MaxCPUTranscode: 100, MaxNVENCTranscode: 100, MaxBitrateMbps: 10000})

	ops := []struct {
		mode    models.Mode
		bitrate uint32
		stop    bool
	}{
		{models.ModeCopy, 10, false},
		{models.ModeCPU, 20, false},
		{models.ModeNVENC, 30, false},
		{models.ModeCopy, 10, true},
		{models.ModeCPU, 5, false},
		{models.ModeNVENC, 30, true},
		{models.ModeCopy, 10, true}, // double stop
	}

	for _, op := range ops {
		if op.stop {
			e.RecordStop(op.mode, op.bitrate)
		} else {
			e.RecordStart(op.mode, op.bitrate)
		}
		u := e.Usage
		assert.Equal(t, u.TotalRunning, u.CopyRunning+u.CPUTranscoding+u.NVENCTranscoding)
	}
}

func TestUsage_SaturatingDecrement(t *testing.T) {
	e := NewEnforcer(testLimits())
	e.RecordStart(models.ModeCopy, 10)

	e.RecordStop(models.ModeCopy, 10)
	e.RecordStop(models.ModeCopy, 10)
	e.RecordStop(models.ModeNVENC, 50)

	u := e.Usage
	assert.Zero(t, u.TotalRunning)
	assert.Zero(t, u.CopyRunning)
	assert.Zero(t, u.NVENCTranscoding)
	assert.Zero(t, u.TotalBitrateMbps)
}

func TestEnforcer_UpdateLimits(t *testing.T) {
	e := NewEnforcer(Limits{MaxTotal: 1, MaxCPUTranscode: 1, MaxNVENCTranscode: 1, MaxBitrateMbps: 100})
	e.RecordStart(models.ModeCopy, 10)

	assert.Equal(t, Queued, e.CanStart(models.ModeCopy, 10).Decision)

	e.UpdateLimits(Limits{MaxTotal: 2, MaxCPUTranscode: 1, MaxNVENCTranscode: 1, MaxBitrateMbps: 100})
	assert.Equal(t, Allowed, e.CanStart(models.ModeCopy, 10).Decision)
}

func TestFromSettings(t *testing.T) {
	l := FromSettings(models.Settings{
		MaxTotalStreams:     7,
		MaxTranscodeCPU:     3,
		MaxTranscodeNVENC:   2,
		MaxTotalBitrateMbps: 250,
	})
	assert.Equal(t, uint32(7), l.MaxTotal)
	assert.Equal(t, uint32(3), l.MaxCPUTranscode)
	assert.Equal(t, uint32(2), l.MaxNVENCTranscode)
	assert.Equal(t, uint32(250), l.MaxBitrateMbps)
}
