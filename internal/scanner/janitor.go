// Package scanner provides periodic maintenance jobs for the scheduling
// engine, currently limited to the normalize cache janitor.
package scanner

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/olbboy/streviz-engine/internal/cache"
)

// CacheJanitor runs the normalize cache's age-based and size-based cleanup
// on a cron schedule.
type CacheJanitor struct {
	mu sync.Mutex

	cache  *cache.Manager
	logger *slog.Logger

	parser cron.Parser
	cron   *cron.Cron
	entry  cron.EntryID
}

// NewCacheJanitor builds a janitor bound to mgr. It does not start running
// until Start is called with a valid cron expression.
func NewCacheJanitor(mgr *cache.Manager, logger *slog.Logger) *CacheJanitor {
	if logger == nil {
		logger = slog.Default()
	}

	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

	return &CacheJanitor{
		cache:  mgr,
		logger: logger,
		parser: parser,
		cron:   cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger))),
	}
}

// Start validates cronExpr and schedules the cleanup job, then starts the
// underlying cron engine. It is an error to call Start twice without an
// intervening Stop.
func (j *CacheJanitor) Start(cronExpr string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.entry != 0 {
		return fmt.Errorf("cache janitor already started")
	}

	schedule, err := j.parser.Parse(cronExpr)
	if err != nil {
		return fmt.Errorf("invalid janitor cron expression %q: %w", cronExpr, err)
	}

	entryID := j.cron.Schedule(schedule, cron.FuncJob(j.runOnce))
	j.entry = entryID
	j.cron.Start()

	j.logger.Info("cache janitor started",
		slog.String("cron", cronExpr),
		slog.Time("next_run", schedule.Next(time.Now())))

	return nil
}

// Stop cancels the scheduled job and waits for any in-flight run to finish.
func (j *CacheJanitor) Stop() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.entry == 0 {
		return
	}
	stopCtx := j.cron.Stop()
	<-stopCtx.Done()
	j.entry = 0
	j.logger.Info("cache janitor stopped")
}

// RunOnce performs a single age-based cleanup followed by size-limit
// enforcement, logging freed bytes and file counts. It is exported so a
// sweep can be run outside the cron schedule; the CLI's `cache clean`
// command runs the same two steps by calling the cache manager directly.
func (j *CacheJanitor) RunOnce() {
	j.runOnce()
}

func (j *CacheJanitor) runOnce() {
	aged, err := j.cache.ClearOldCache()
	if err != nil {
		j.logger.Error("cache janitor: age-based cleanup failed", slog.Any("error", err))
	} else if aged.FilesRemoved > 0 {
		j.logger.Info("cache janitor: removed aged entries",
			slog.Int64("freed_bytes", aged.FreedBytes),
			slog.Int("files_removed", aged.FilesRemoved))
	}

	sized, err := j.cache.EnforceSizeLimit()
	if err != nil {
		j.logger.Error("cache janitor: size-limit enforcement failed", slog.Any("error", err))
	} else if sized.FilesRemoved > 0 {
		j.logger.Info("cache janitor: enforced size limit",
			slog.Int64("freed_bytes", sized.FreedBytes),
			slog.Int("files_removed", sized.FilesRemoved))
	}
}
