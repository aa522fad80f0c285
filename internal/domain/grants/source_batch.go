package grants

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	BatchStatusRunning  = "running"
	BatchStatusDone     = "done"
	BatchStatusFailed   = "failed"
	BatchStatusCanceled = "canceled"
)

// SourceBatch records one ingest run of one source: freshness tracking plus
// the per-outcome counters that back the status report.
type SourceBatch struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`

	SourceID string `gorm:"column:source_id;not null;index" json:"source_id"`
	Status   string `gorm:"column:status;not null;default:'running'" json:"status"`

	FetchedAt   *time.Time `gorm:"column:fetched_at" json:"fetched_at,omitempty"`
	StartedAt   time.Time  `gorm:"column:started_at;not null" json:"started_at"`
	FinishedAt  *time.Time `gorm:"column:finished_at" json:"finished_at,omitempty"`
	RecordCount int        `gorm:"column:record_count;not null;default:0" json:"record_count"`

	Inserted int `gorm:"column:inserted;not null;default:0" json:"inserted"`
	Merged   int `gorm:"column:merged;not null;default:0" json:"merged"`
	Updated  int `gorm:"column:updated;not null;default:0" json:"updated"`
	Rejected int `gorm:"column:rejected;not null;default:0" json:"rejected"`
	Flagged  int `gorm:"column:flagged;not null;default:0" json:"flagged"`

	Notes datatypes.JSON `gorm:"column:notes;type:jsonb" json:"notes,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (SourceBatch) TableName() string { return "source_batch" }
