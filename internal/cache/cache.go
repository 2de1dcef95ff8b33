// Package cache implements the content-addressed store of pre-normalized
// media: given a source file and a normalize target, it either returns a
// previously-produced file or runs the transcode once and records the
// result, so the same (source, config) pair is never normalized twice.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/olbboy/streviz-engine/internal/models"
)

// Entry is the persisted record of one normalized artifact.
type Entry struct {
	models.BaseModel

	SourceFileID    string `gorm:"index;not null;size:26"`
	CacheKey        string `gorm:"uniqueIndex;not null;size:16"`
	CachePath       string `gorm:"not null;size:1024"`
	SizeBytes       int64  `gorm:"not null"`
	NormalizeConfig string `gorm:"type:text"`
	LastAccessed    time.Time
}

func (Entry) TableName() string { return "cache_files" }

// Config controls retention: an absolute size ceiling, a max age, and the
// percentage at which callers should be warned before enforcement kicks in.
type Config struct {
	MaxSizeBytes          int64
	MaxAge                time.Duration
	WarnThresholdPercent  int
	// cleanupTargetPercent is the fraction of MaxSizeBytes enforcement
	// trims down to, so a single cleanup doesn't immediately re-trigger.
	cleanupTargetPercent float64
}

// DefaultConfig matches the original cache's conservative defaults: 50GB,
// 30 days, warn at 80%.
func DefaultConfig() Config {
	return Config{
		MaxSizeBytes:         50 * 1024 * 1024 * 1024,
		MaxAge:               30 * 24 * time.Hour,
		WarnThresholdPercent: 80,
		cleanupTargetPercent: 0.8,
	}
}

// Normalizer is the capability the cache calls to actually produce a
// normalized file; the caller wires this to the merge package so the
// cache itself has no ffmpeg-invocation knowledge.
type Normalizer interface {
	NormalizeToFile(sourcePath string, configFingerprint string, outputPath string) error
}

// Manager persists cache entries via GORM and manages the on-disk
// artifacts they point to.
type Manager struct {
	db        *gorm.DB
	cacheDir  string
	config    Config
	normalize Normalizer
}

// New builds a cache Manager. cacheDir is created if it doesn't exist.
func New(db *gorm.DB, cacheDir string, config Config, normalize Normalizer) (*Manager, error) {
	if cacheDir == "" {
		return nil, models.ErrNoCacheDir
	}
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("migrating cache schema: %w", err)
	}
	return &Manager{db: db, cacheDir: cacheDir, config: config, normalize: normalize}, nil
}

// ComputeCacheKey derives the content-addressed key for a (source path,
// normalize config) pair: the first 16 hex characters of the SHA-256 of
// their concatenation.
func ComputeCacheKey(sourcePath, configFingerprint string) string {
	h := sha256.New()
	h.Write([]byte(sourcePath))
	h.Write([]byte(configFingerprint))
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// GetOrNormalize returns the cached normalized file for (sourceFileID,
// sourcePath, configFingerprint), producing and recording it if absent. A
// recorded entry whose on-disk artifact has gone missing is treated as a
// cache miss: the stale row is removed and normalization runs again.
func (m *Manager) GetOrNormalize(sourceFileID, sourcePath, configFingerprint string) (string, error) {
	cacheKey := ComputeCacheKey(sourcePath, configFingerprint)

	entry, err := m.lookup(cacheKey)
	if err != nil {
		return "", err
	}
	if entry != nil {
		if err := m.touch(entry.ID); err != nil {
			return "", err
		}
		return entry.CachePath, nil
	}

	cachePath := filepath.Join(m.cacheDir, cacheKey+".ts")
	if err := m.normalize.NormalizeToFile(sourcePath, configFingerprint, cachePath); err != nil {
		return "", fmt.Errorf("normalizing %s: %w", sourcePath, err)
	}

	info, err := os.Stat(cachePath)
	if err != nil {
		return "", fmt.Errorf("stat normalized file: %w", err)
	}

	now := time.Now()
	newEntry := Entry{
		BaseModel:       models.BaseModel{},
		SourceFileID:    sourceFileID,
		CacheKey:        cacheKey,
		CachePath:       cachePath,
		SizeBytes:       info.Size(),
		NormalizeConfig: configFingerprint,
		LastAccessed:    now,
	}
	if err := m.db.Create(&newEntry).Error; err != nil {
		return "", fmt.Errorf("recording cache entry: %w", err)
	}

	return cachePath, nil
}

// lookup fetches the entry for cacheKey, purging it if the artifact behind
// it no longer exists on disk.
func (m *Manager) lookup(cacheKey string) (*Entry, error) {
	var entry Entry
	err := m.db.Where("cache_key = ?", cacheKey).First(&entry).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying cache entry: %w", err)
	}

	if _, statErr := os.Stat(entry.CachePath); statErr != nil {
		if delErr := m.delete(entry.ID); delErr != nil {
			return nil, delErr
		}
		return nil, nil
	}
	return &entry, nil
}

func (m *Manager) touch(id models.ULID) error {
	return m.db.Model(&Entry{}).Where("id = ?", id).Update("last_accessed", time.Now()).Error
}

func (m *Manager) delete(id models.ULID) error {
	return m.db.Unscoped().Delete(&Entry{}, "id = ?", id).Error
}

// CleanupResult summarizes a cleanup pass.
type CleanupResult struct {
	FreedBytes   int64
	FilesRemoved int
}

// ClearOldCache removes every entry older than Config.MaxAge, deleting
// both the database row and the on-disk artifact.
func (m *Manager) ClearOldCache() (CleanupResult, error) {
	cutoff := time.Now().Add(-m.config.MaxAge)

	var stale []Entry
	if err := m.db.Where("created_at < ?", cutoff).Find(&stale).Error; err != nil {
		return CleanupResult{}, fmt.Errorf("querying stale cache entries: %w", err)
	}

	return m.purge(stale)
}

// EnforceSizeLimit evicts entries oldest-accessed-first until total usage
// is back at cleanupTargetPercent of MaxSizeBytes. It is a no-op if usage
// is already within budget.
func (m *Manager) EnforceSizeLimit() (CleanupResult, error) {
	total, err := m.TotalSize()
	if err != nil {
		return CleanupResult{}, err
	}
	if total <= m.config.MaxSizeBytes {
		return CleanupResult{}, nil
	}

	target := int64(float64(m.config.MaxSizeBytes) * m.config.cleanupTargetPercent)
	toFree := total - target

	var entries []Entry
	if err := m.db.Order("last_accessed ASC").Find(&entries).Error; err != nil {
		return CleanupResult{}, fmt.Errorf("querying cache entries for eviction: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].LastAccessed.Before(entries[j].LastAccessed) })

	var toEvict []Entry
	var freed int64
	for _, e := range entries {
		if freed >= toFree {
			break
		}
		toEvict = append(toEvict, e)
		freed += e.SizeBytes
	}

	return m.purge(toEvict)
}

// ClearAll removes every cache entry and artifact.
func (m *Manager) ClearAll() (CleanupResult, error) {
	var all []Entry
	if err := m.db.Find(&all).Error; err != nil {
		return CleanupResult{}, fmt.Errorf("querying cache entries: %w", err)
	}
	return m.purge(all)
}

func (m *Manager) purge(entries []Entry) (CleanupResult, error) {
	var result CleanupResult
	for _, e := range entries {
		if err := os.Remove(e.CachePath); err == nil {
			result.FreedBytes += e.SizeBytes
			result.FilesRemoved++
		}
		if err := m.delete(e.ID); err != nil {
			return result, err
		}
	}
	return result, nil
}

// TotalSize sums SizeBytes across every recorded entry.
func (m *Manager) TotalSize() (int64, error) {
	var total int64
	err := m.db.Model(&Entry{}).Select("COALESCE(SUM(size_bytes), 0)").Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("summing cache size: %w", err)
	}
	return total, nil
}

// Stats is a point-in-time usage snapshot.
type Stats struct {
	TotalSizeBytes int64
	FileCount      int64
	MaxSizeBytes   int64
	UsagePercent   int
	Warning        bool
}

// Stats reports current usage against configured limits.
func (m *Manager) Stats() (Stats, error) {
	total, err := m.TotalSize()
	if err != nil {
		return Stats{}, err
	}

	var count int64
	if err := m.db.Model(&Entry{}).Count(&count).Error; err != nil {
		return Stats{}, fmt.Errorf("counting cache entries: %w", err)
	}

	var usagePercent int
	if m.config.MaxSizeBytes > 0 {
		usagePercent = int(float64(total) / float64(m.config.MaxSizeBytes) * 100)
	}

	return Stats{
		TotalSizeBytes: total,
		FileCount:      count,
		MaxSizeBytes:   m.config.MaxSizeBytes,
		UsagePercent:   usagePercent,
		Warning:        usagePercent >= m.config.WarnThresholdPercent,
	}, nil
}

// IsCached reports whether a (sourcePath, configFingerprint) pair has a
// live cache entry, without triggering normalization.
func (m *Manager) IsCached(sourcePath, configFingerprint string) (bool, error) {
	entry, err := m.lookup(ComputeCacheKey(sourcePath, configFingerprint))
	if err != nil {
		return false, err
	}
	return entry != nil, nil
}
