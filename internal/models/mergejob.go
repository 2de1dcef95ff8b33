package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// MergeStatus is the lifecycle of one merge job.
type MergeStatus string

const (
	MergeStatusPending MergeStatus = "pending"
	MergeStatusRunning MergeStatus = "running"
	MergeStatusDone    MergeStatus = "done"
	MergeStatusError   MergeStatus = "error"
)

// FileIDList is an ordered list of media file ids, persisted as a JSON
// array so GORM can round-trip it through a single text/JSON column
// without a join table.
type FileIDList []string

// Value implements driver.Valuer.
func (l FileIDList) Value() (driver.Value, error) {
	b, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("marshaling file id list: %w", err)
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (l *FileIDList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported type for FileIDList: %T", value)
	}
	if len(raw) == 0 {
		*l = nil
		return nil
	}
	return json.Unmarshal(raw, l)
}

// MergeJob is the persisted record of one merge pipeline run: the file
// list it was asked to join, the strategy the compatibility checker
// chose, and the status/progress a caller polls while it runs.
type MergeJob struct {
	BaseModel

	StreamID     string      `gorm:"index;not null;size:64"`
	Strategy     Strategy    `gorm:"not null;size:32"`
	FileIDs      FileIDList  `gorm:"type:text;not null"`
	Status       MergeStatus `gorm:"not null;size:16;default:pending"`
	Progress     float64     `gorm:"not null;default:0"`
	ErrorMessage string      `gorm:"type:text"`
	CompletedAt  *time.Time
}

func (MergeJob) TableName() string { return "merge_jobs" }

// Strategy mirrors merge.Strategy's string values without importing the
// merge package here, avoiding an import cycle (merge already imports
// models for MediaFile/FPSTolerance/etc).
type Strategy string

const (
	StrategyEmpty              Strategy = "empty"
	StrategyConcatCopy         Strategy = "concat_copy"
	StrategyTranscodeNormalize Strategy = "transcode_normalize"
)
