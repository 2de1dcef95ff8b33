package merge

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/olbboy/streviz-engine/internal/cache"
	"github.com/olbboy/streviz-engine/internal/models"
)

type fakeNormalizer struct{ calls int }

func (f *fakeNormalizer) NormalizeToFile(_, _, outputPath string) error {
	f.calls++
	return os.WriteFile(outputPath, []byte("normalized"), 0o644)
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	return db
}

func profile() models.Profile {
	return models.Profile{ID: "p1", Name: "default", Protocol: models.ProtocolRTSP, Mode: models.ModeCopy}
}

func TestPipeline_Plan_ConcatCopy(t *testing.T) {
	db := openTestDB(t)
	p, err := NewPipeline(db, nil)
	require.NoError(t, err)

	files := []models.MediaFile{
		{ID: "f1", Path: "/tmp/a.mp4", VideoCodec: "h264", AudioCodec: "aac", Width: 1920, Height: 1080, FPS: 30, SampleRateHz: 48000},
		{ID: "f2", Path: "/tmp/b.mp4", VideoCodec: "h264", AudioCodec: "aac", Width: 1920, Height: 1080, FPS: 30, SampleRateHz: 48000},
	}

	plan, strategy, err := p.Plan(context.Background(), "stream-1", files, profile(), Options{StreamName: "stream-1"}, DefaultNormalizeConfig())
	require.NoError(t, err)
	assert.Equal(t, StrategyConcatCopy, strategy)
	assert.NotEmpty(t, plan.Args)
	assert.Contains(t, plan.OutputURL, "rtsp://")

	var job models.MergeJob
	require.NoError(t, db.First(&job).Error)
	assert.Equal(t, models.MergeStatusDone, job.Status)
	assert.Equal(t, float64(1), job.Progress)
	assert.NotNil(t, job.CompletedAt)
}

func TestPipeline_Plan_Empty(t *testing.T) {
	db := openTestDB(t)
	p, err := NewPipeline(db, nil)
	require.NoError(t, err)

	_, strategy, err := p.Plan(context.Background(), "stream-1", nil, profile(), Options{StreamName: "stream-1"}, DefaultNormalizeConfig())
	assert.Error(t, err)
	assert.Equal(t, StrategyEmpty, strategy)

	var job models.MergeJob
	require.NoError(t, db.First(&job).Error)
	assert.Equal(t, models.MergeStatusError, job.Status)
}

func TestPipeline_Plan_TranscodeNormalize(t *testing.T) {
	db := openTestDB(t)
	tmpDir := t.TempDir()

	normalizer := &fakeNormalizer{}
	cacheMgr, err := cache.New(db, tmpDir, cache.DefaultConfig(), normalizer)
	require.NoError(t, err)

	p, err := NewPipeline(db, cacheMgr)
	require.NoError(t, err)

	files := []models.MediaFile{
		{ID: "f1", Path: filepath.Join(tmpDir, "a.mp4"), VideoCodec: "h264", AudioCodec: "aac", Width: 1920, Height: 1080, FPS: 30, SampleRateHz: 48000},
		{ID: "f2", Path: filepath.Join(tmpDir, "b.mp4"), VideoCodec: "hevc", AudioCodec: "aac", Width: 1280, Height: 720, FPS: 25, SampleRateHz: 44100},
	}

	plan, strategy, err := p.Plan(context.Background(), "stream-2", files, profile(), Options{StreamName: "stream-2"}, DefaultNormalizeConfig())
	require.NoError(t, err)
	assert.Equal(t, StrategyTranscodeNormalize, strategy)
	assert.NotEmpty(t, plan.Args)
	assert.Equal(t, 2, normalizer.calls)

	var job models.MergeJob
	require.NoError(t, db.First(&job).Error)
	assert.Equal(t, models.MergeStatusDone, job.Status)
}

func TestPipeline_Plan_TranscodeNormalize_NoCacheManager(t *testing.T) {
	db := openTestDB(t)
	p, err := NewPipeline(db, nil)
	require.NoError(t, err)

	files := []models.MediaFile{
		{ID: "f1", Path: "/tmp/a.mp4", VideoCodec: "h264"},
		{ID: "f2", Path: "/tmp/b.mp4", VideoCodec: "hevc"},
	}

	_, strategy, err := p.Plan(context.Background(), "stream-3", files, profile(), Options{StreamName: "stream-3"}, DefaultNormalizeConfig())
	assert.Error(t, err)
	assert.Equal(t, StrategyTranscodeNormalize, strategy)
}

func TestConfigFingerprint_Deterministic(t *testing.T) {
	a := ConfigFingerprint(DefaultNormalizeConfig())
	b := ConfigFingerprint(DefaultNormalizeConfig())
	assert.Equal(t, a, b)

	c := ConfigFingerprint(Preset720p())
	assert.NotEqual(t, a, c)
}
