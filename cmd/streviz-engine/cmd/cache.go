package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	strevizcache "github.com/olbboy/streviz-engine/internal/cache"
	"github.com/olbboy/streviz-engine/internal/database"
	"github.com/olbboy/streviz-engine/internal/merge"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the normalize cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print normalize cache usage and warning state",
	RunE: func(_ *cobra.Command, _ []string) error {
		mgr, cleanup, err := openCacheManager()
		if err != nil {
			return err
		}
		defer cleanup()

		stats, err := mgr.Stats()
		if err != nil {
			return fmt.Errorf("reading cache stats: %w", err)
		}

		fmt.Printf("files:          %d\n", stats.FileCount)
		fmt.Printf("total_size:     %d bytes\n", stats.TotalSizeBytes)
		fmt.Printf("max_size:       %d bytes\n", stats.MaxSizeBytes)
		fmt.Printf("usage_percent:  %d%%\n", stats.UsagePercent)
		fmt.Printf("warning:        %v\n", stats.Warning)
		return nil
	},
}

var cacheCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Delete cache entries older than the configured max age, then enforce the size limit",
	RunE: func(_ *cobra.Command, _ []string) error {
		mgr, cleanup, err := openCacheManager()
		if err != nil {
			return err
		}
		defer cleanup()

		aged, err := mgr.ClearOldCache()
		if err != nil {
			return fmt.Errorf("clearing old cache entries: %w", err)
		}
		fmt.Printf("age-based cleanup: freed %d bytes across %d files\n", aged.FreedBytes, aged.FilesRemoved)

		sized, err := mgr.EnforceSizeLimit()
		if err != nil {
			return fmt.Errorf("enforcing cache size limit: %w", err)
		}
		fmt.Printf("size-limit cleanup: freed %d bytes across %d files\n", sized.FreedBytes, sized.FilesRemoved)
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Unconditionally purge every cache entry and its on-disk artifact",
	RunE: func(_ *cobra.Command, _ []string) error {
		mgr, cleanup, err := openCacheManager()
		if err != nil {
			return err
		}
		defer cleanup()

		result, err := mgr.ClearAll()
		if err != nil {
			return fmt.Errorf("clearing cache: %w", err)
		}
		fmt.Printf("cleared: freed %d bytes across %d files\n", result.FreedBytes, result.FilesRemoved)
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd, cacheCleanCmd, cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}

// openCacheManager wires a cache.Manager from the resolved config: the
// configured database for the persisted index and the merge package's
// Executor as the Normalizer that produces artifacts on a miss.
func openCacheManager() (*strevizcache.Manager, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	db, err := database.New(cfg.Database, nil, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}

	normalizeCfg := merge.DefaultNormalizeConfig()
	executor := merge.Executor{Binary: cfg.Encoder.BinaryName, Config: normalizeCfg}

	cacheCfg := strevizcache.DefaultConfig()
	cacheCfg.MaxSizeBytes = cfg.Cache.MaxSize.Int64()
	cacheCfg.MaxAge = cfg.Cache.MaxAge.Duration()
	cacheCfg.WarnThresholdPercent = cfg.Cache.WarnThresholdPercent
	mgr, err := strevizcache.New(db.DB, cfg.Cache.Dir, cacheCfg, executor)
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("opening cache manager: %w", err)
	}

	return mgr, func() { _ = db.Close() }, nil
}
