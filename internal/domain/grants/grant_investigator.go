package grants

import (
	"time"

	"github.com/google/uuid"
)

// GrantInvestigator links a grant to an investigator with a grant-specific
// role. One row per (grant, investigator) pair; re-ingestion updates Role in
// place rather than inserting a duplicate.
type GrantInvestigator struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`

	GrantProjectID uuid.UUID     `gorm:"column:grant_project_id;type:uuid;not null;uniqueIndex:idx_grant_investigator_pair" json:"grant_project_id"`
	GrantProject   *GrantProject `gorm:"constraint:OnDelete:CASCADE;foreignKey:GrantProjectID;references:ID" json:"grant_project,omitempty"`

	InvestigatorID uuid.UUID     `gorm:"column:investigator_id;type:uuid;not null;uniqueIndex:idx_grant_investigator_pair" json:"investigator_id"`
	Investigator   *Investigator `gorm:"constraint:OnDelete:CASCADE;foreignKey:InvestigatorID;references:ID" json:"investigator,omitempty"`

	Role InvestigatorRole `gorm:"column:role;not null" json:"role"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (GrantInvestigator) TableName() string { return "grant_investigator" }
