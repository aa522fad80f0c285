package grants

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ReviewFlag queues a record for manual review instead of guessing: ambiguous
// matches, merge conflicts, and duplicate strong identifiers all land here.
type ReviewFlag struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`

	SourceID string     `gorm:"column:source_id;not null;index" json:"source_id"`
	BatchID  *uuid.UUID `gorm:"column:batch_id;type:uuid;index" json:"batch_id,omitempty"`

	Reason     string         `gorm:"column:reason;not null" json:"reason"`
	EntityKind string         `gorm:"column:entity_kind;not null" json:"entity_kind"`
	Payload    datatypes.JSON `gorm:"column:payload;type:jsonb;not null" json:"payload"`
	Notes      datatypes.JSON `gorm:"column:notes;type:jsonb" json:"notes,omitempty"`

	Resolved bool `gorm:"column:resolved;not null;default:false" json:"resolved"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (ReviewFlag) TableName() string { return "review_flag" }
