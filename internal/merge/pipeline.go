package merge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/olbboy/streviz-engine/internal/cache"
	"github.com/olbboy/streviz-engine/internal/ffmpeg"
	"github.com/olbboy/streviz-engine/internal/models"
)

// Executor implements cache.Normalizer by invoking the encoder binary
// with the normalize-to-file argument vector PlanNormalizeToFile builds.
// The cache package calls this synchronously and records the resulting
// artifact; Executor has no knowledge of caching itself.
type Executor struct {
	Binary string
	Config NormalizeConfig
}

// ConfigFingerprint serializes c so callers can pass it as the cache's
// configFingerprint, keying cache entries to the exact normalize target
// so a changed preset never reuses a stale artifact.
func ConfigFingerprint(c NormalizeConfig) string {
	b, err := json.Marshal(c)
	if err != nil {
		return fmt.Sprintf("%+v", c)
	}
	return string(b)
}

// NormalizeToFile runs the encoder synchronously and returns once the
// output file is fully written, or the encoder's error.
func (e Executor) NormalizeToFile(sourcePath, _, outputPath string) error {
	args := PlanNormalizeToFile(sourcePath, e.Config, outputPath)
	cmd := &ffmpeg.Command{Binary: e.Binary, Args: args}
	if err := cmd.Run(context.Background()); err != nil {
		return fmt.Errorf("normalizing %s: %w", sourcePath, err)
	}
	return nil
}

// Pipeline orchestrates the merge decision end to end: check
// compatibility, normalize through the cache when the files diverge, then
// build the concat-copy invocation the caller hands to the supervisor. It
// persists a MergeJob row so progress and outcome survive beyond the call.
type Pipeline struct {
	db    *gorm.DB
	cache *cache.Manager
}

// NewPipeline builds a Pipeline, migrating the merge_jobs table.
func NewPipeline(db *gorm.DB, cacheMgr *cache.Manager) (*Pipeline, error) {
	if err := db.AutoMigrate(&models.MergeJob{}); err != nil {
		return nil, fmt.Errorf("migrating merge job schema: %w", err)
	}
	return &Pipeline{db: db, cache: cacheMgr}, nil
}

// Plan runs the merge pipeline for one stream's file list and returns the
// concat-copy invocation ready to hand to the supervisor. files must carry
// populated Path fields; their order is preserved in the concat manifest.
// normalizeCfg is only consulted when the compatibility check selects
// TranscodeNormalize.
func (p *Pipeline) Plan(ctx context.Context, streamID string, files []models.MediaFile, profile models.Profile, opts Options, normalizeCfg NormalizeConfig) (ConcatPlan, Strategy, error) {
	strategy := CheckCompatibility(files)

	job := &models.MergeJob{
		StreamID: streamID,
		Strategy: models.Strategy(strategy),
		FileIDs:  fileIDsOf(files),
		Status:   models.MergeStatusRunning,
	}
	if err := p.db.Create(job).Error; err != nil {
		return ConcatPlan{}, strategy, fmt.Errorf("recording merge job: %w", err)
	}

	switch strategy {
	case StrategyEmpty:
		p.fail(job, models.ErrEmptyFileList)
		return ConcatPlan{}, strategy, models.ErrEmptyFileList

	case StrategyConcatCopy:
		paths := make([]string, len(files))
		for i, f := range files {
			paths[i] = f.Path
		}
		plan, err := PlanConcatStream(paths, profile, opts)
		if err != nil {
			p.fail(job, err)
			return ConcatPlan{}, strategy, err
		}
		p.complete(job)
		return plan, strategy, nil

	case StrategyTranscodeNormalize:
		if p.cache == nil {
			err := fmt.Errorf("merge: transcode_normalize strategy requires a cache manager")
			p.fail(job, err)
			return ConcatPlan{}, strategy, err
		}

		fingerprint := ConfigFingerprint(normalizeCfg)
		normalizedPaths := make([]string, len(files))
		for i, f := range files {
			path, err := p.cache.GetOrNormalize(f.ID, f.Path, fingerprint)
			if err != nil {
				p.fail(job, err)
				return ConcatPlan{}, strategy, err
			}
			normalizedPaths[i] = path
			p.progress(job, float64(i+1)/float64(len(files)))
		}

		plan, err := PlanConcatStream(normalizedPaths, profile, opts)
		if err != nil {
			p.fail(job, err)
			return ConcatPlan{}, strategy, err
		}
		p.complete(job)
		return plan, strategy, nil

	default:
		err := fmt.Errorf("merge: unknown strategy %q", strategy)
		p.fail(job, err)
		return ConcatPlan{}, strategy, err
	}
}

func fileIDsOf(files []models.MediaFile) models.FileIDList {
	ids := make(models.FileIDList, len(files))
	for i, f := range files {
		ids[i] = f.ID
	}
	return ids
}

func (p *Pipeline) progress(job *models.MergeJob, pct float64) {
	job.Progress = pct
	_ = p.db.Model(job).Updates(map[string]interface{}{"progress": pct}).Error
}

func (p *Pipeline) complete(job *models.MergeJob) {
	now := time.Now()
	job.Status = models.MergeStatusDone
	job.Progress = 1
	job.CompletedAt = &now
	_ = p.db.Model(job).Updates(map[string]interface{}{
		"status":       models.MergeStatusDone,
		"progress":     1,
		"completed_at": now,
	}).Error
}

func (p *Pipeline) fail(job *models.MergeJob, err error) {
	now := time.Now()
	job.Status = models.MergeStatusError
	job.ErrorMessage = err.Error()
	job.CompletedAt = &now
	_ = p.db.Model(job).Updates(map[string]interface{}{
		"status":        models.MergeStatusError,
		"error_message": err.Error(),
		"completed_at":  now,
	}).Error
}

// Job fetches a merge job's current status by id, for callers polling
// progress (e.g. the CLI).
func (p *Pipeline) Job(id string) (*models.MergeJob, error) {
	var job models.MergeJob
	if err := p.db.Where("id = ?", id).First(&job).Error; err != nil {
		return nil, fmt.Errorf("fetching merge job %s: %w", id, err)
	}
	return &job, nil
}
