package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/olbboy/streviz-engine/internal/models"
)

type fakeNormalizer struct {
	calls   int
	payload []byte
}

func (f *fakeNormalizer) NormalizeToFile(_, _, outputPath string) error {
	f.calls++
	payload := f.payload
	if payload == nil {
		payload = []byte("normalized")
	}
	return os.WriteFile(outputPath, payload, 0o644)
}

func newTestManager(t *testing.T, cfg Config) (*Manager, *fakeNormalizer, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	n := &fakeNormalizer{}
	m, err := New(db, t.TempDir(), cfg, n)
	require.NoError(t, err)
	return m, n, db
}

func TestComputeCacheKey_Deterministic(t *testing.T) {
	a := ComputeCacheKey("/media/a.mp4", "cfg-1080p")
	b := ComputeCacheKey("/media/a.mp4", "cfg-1080p")
	assert.Equal(t, a, b)
	assert.Len(t, a, 16)
	assert.Regexp(t, "^[0-9a-f]{16}$", a)

	c := ComputeCacheKey("/media/a.mp4", "cfg-720p")
	assert.NotEqual(t, a, c, "distinct configs for the same path must yield distinct keys")

	d := ComputeCacheKey("/media/b.mp4", "cfg-1080p")
	assert.NotEqual(t, a, d)
}

func TestManager_GetOrNormalize_Roundtrip(t *testing.T) {
	m, n, db := newTestManager(t, DefaultConfig())

	path1, err := m.GetOrNormalize("f1", "/media/a.mp4", "cfg")
	require.NoError(t, err)
	assert.Equal(t, 1, n.calls)
	assert.FileExists(t, path1)
	assert.Equal(t, ".ts", filepath.Ext(path1))

	var entry Entry
	require.NoError(t, db.First(&entry).Error)
	assert.Equal(t, "f1", entry.SourceFileID)
	assert.Equal(t, ComputeCacheKey("/media/a.mp4", "cfg"), entry.CacheKey)
	assert.Equal(t, int64(len("normalized")), entry.SizeBytes)

	time.Sleep(10 * time.Millisecond)

	path2, err := m.GetOrNormalize("f1", "/media/a.mp4", "cfg")
	require.NoError(t, err)
	assert.Equal(t, path1, path2)
	assert.Equal(t, 1, n.calls, "a cache hit must not re-normalize")

	var touched Entry
	require.NoError(t, db.First(&touched).Error)
	assert.True(t, touched.LastAccessed.After(entry.CreatedAt),
		"hit must move last_accessed past created_at")
}

func TestManager_GetOrNormalize_StaleEntry(t *testing.T) {
	m, n, db := newTestManager(t, DefaultConfig())

	path1, err := m.GetOrNormalize("f1", "/media/a.mp4", "cfg")
	require.NoError(t, err)
	require.NoError(t, os.Remove(path1))

	path2, err := m.GetOrNormalize("f1", "/media/a.mp4", "cfg")
	require.NoError(t, err)
	assert.Equal(t, 2, n.calls, "missing artifact must trigger a fresh normalize")
	assert.FileExists(t, path2)

	var count int64
	require.NoError(t, db.Model(&Entry{}).Count(&count).Error)
	assert.Equal(t, int64(1), count, "stale row is replaced, not duplicated")
}

func TestManager_ClearOldCache(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxAge = 24 * time.Hour
	m, _, db := newTestManager(t, cfg)

	fresh, err := m.GetOrNormalize("f1", "/media/fresh.mp4", "cfg")
	require.NoError(t, err)
	stale, err := m.GetOrNormalize("f2", "/media/stale.mp4", "cfg")
	require.NoError(t, err)

	require.NoError(t, db.Model(&Entry{}).
		Where("cache_path = ?", stale).
		Update("created_at", time.Now().Add(-48*time.Hour)).Error)

	result, err := m.ClearOldCache()
	require.NoError(t, err)
	assert.Equal(t, 1, result.FilesRemoved)
	assert.Equal(t, int64(len("normalized")), result.FreedBytes)

	assert.NoFileExists(t, stale)
	assert.FileExists(t, fresh)

	var count int64
	require.NoError(t, db.Model(&Entry{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestManager_ClearOldCache_PurgesAlreadyMissingFiles(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxAge = 24 * time.Hour
	m, _, db := newTestManager(t, cfg)

	stale, err := m.GetOrNormalize("f1", "/media/a.mp4", "cfg")
	require.NoError(t, err)
	require.NoError(t, db.Model(&Entry{}).
		Where("cache_path = ?", stale).
		Update("created_at", time.Now().Add(-48*time.Hour)).Error)
	require.NoError(t, os.Remove(stale))

	result, err := m.ClearOldCache()
	require.NoError(t, err)
	assert.Zero(t, result.FilesRemoved, "nothing on disk to free")

	var count int64
	require.NoError(t, db.Model(&Entry{}).Count(&count).Error)
	assert.Zero(t, count, "index row is purged even when its file is gone")
}

func TestManager_EnforceSizeLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxSizeBytes = 100
	cfg.cleanupTargetPercent = 0.8
	m, n, db := newTestManager(t, cfg)
	n.payload = make([]byte, 40)

	base := time.Now()
	for i, id := range []string{"f1", "f2", "f3", "f4"} {
		path, err := m.GetOrNormalize(id, "/media/"+id+".mp4", "cfg")
		require.NoError(t, err)
		// spread last_accessed so eviction order is deterministic: f1 oldest.
		require.NoError(t, db.Model(&Entry{}).
			Where("cache_path = ?", path).
			Update("last_accessed", base.Add(time.Duration(i)*time.Minute)).Error)
	}

	total, err := m.TotalSize()
	require.NoError(t, err)
	require.Equal(t, int64(160), total)

	result, err := m.EnforceSizeLimit()
	require.NoError(t, err)
	assert.Equal(t, 2, result.FilesRemoved, "must free down to 80 percent of the limit")
	assert.Equal(t, int64(80), result.FreedBytes)

	remaining, err := m.TotalSize()
	require.NoError(t, err)
	assert.LessOrEqual(t, remaining, int64(80))

	// the oldest-accessed entries went first.
	var survivors []Entry
	require.NoError(t, db.Order("last_accessed ASC").Find(&survivors).Error)
	require.Len(t, survivors, 2)
	assert.Equal(t, "f3", survivors[0].SourceFileID)
	assert.Equal(t, "f4", survivors[1].SourceFileID)
}

func TestManager_EnforceSizeLimit_NoopWithinBudget(t *testing.T) {
	m, _, _ := newTestManager(t, DefaultConfig())

	_, err := m.GetOrNormalize("f1", "/media/a.mp4", "cfg")
	require.NoError(t, err)

	result, err := m.EnforceSizeLimit()
	require.NoError(t, err)
	assert.Zero(t, result.FilesRemoved)
	assert.Zero(t, result.FreedBytes)
}

func TestManager_ClearAll(t *testing.T) {
	m, _, db := newTestManager(t, DefaultConfig())

	p1, err := m.GetOrNormalize("f1", "/media/a.mp4", "cfg")
	require.NoError(t, err)
	p2, err := m.GetOrNormalize("f2", "/media/b.mp4", "cfg")
	require.NoError(t, err)

	result, err := m.ClearAll()
	require.NoError(t, err)
	assert.Equal(t, 2, result.FilesRemoved)
	assert.NoFileExists(t, p1)
	assert.NoFileExists(t, p2)

	var count int64
	require.NoError(t, db.Model(&Entry{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestManager_Stats(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxSizeBytes = 100
	cfg.WarnThresholdPercent = 80
	m, n, _ := newTestManager(t, cfg)
	n.payload = make([]byte, 50)

	_, err := m.GetOrNormalize("f1", "/media/a.mp4", "cfg")
	require.NoError(t, err)

	stats, err := m.Stats()
	require.NoError(t, err)
	assert.Equal(t, int64(50), stats.TotalSizeBytes)
	assert.Equal(t, int64(1), stats.FileCount)
	assert.Equal(t, 50, stats.UsagePercent)
	assert.False(t, stats.Warning)

	_, err = m.GetOrNormalize("f2", "/media/b.mp4", "cfg")
	require.NoError(t, err)

	stats, err = m.Stats()
	require.NoError(t, err)
	assert.Equal(t, 100, stats.UsagePercent)
	assert.True(t, stats.Warning)
}

func TestManager_IsCached(t *testing.T) {
	m, _, _ := newTestManager(t, DefaultConfig())

	cached, err := m.IsCached("/media/a.mp4", "cfg")
	require.NoError(t, err)
	assert.False(t, cached)

	path, err := m.GetOrNormalize("f1", "/media/a.mp4", "cfg")
	require.NoError(t, err)

	cached, err = m.IsCached("/media/a.mp4", "cfg")
	require.NoError(t, err)
	assert.True(t, cached)

	require.NoError(t, os.Remove(path))
	cached, err = m.IsCached("/media/a.mp4", "cfg")
	require.NoError(t, err)
	assert.False(t, cached, "a missing artifact reads as uncached")
}

func TestNew_RequiresCacheDir(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	_, err = New(db, "", DefaultConfig(), &fakeNormalizer{})
	assert.ErrorIs(t, err, models.ErrNoCacheDir)
}
