package grants

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// TitleText is one language-tagged title string. Titles keep source order.
type TitleText struct {
	Text string `json:"text"`
	Lang string `json:"lang,omitempty"`
}

type GrantProject struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`

	AwardNumber string  `gorm:"column:award_number;not null;uniqueIndex:idx_grant_award_funder" json:"award_number"`
	FunderID    string  `gorm:"column:funder_id;not null;uniqueIndex:idx_grant_award_funder" json:"funder_id"`
	DOI         *string `gorm:"column:doi;uniqueIndex" json:"doi,omitempty"`

	Resource            string         `gorm:"column:resource;not null" json:"resource"`
	Titles              datatypes.JSON `gorm:"column:titles;type:jsonb;not null" json:"titles"`
	Description         string         `gorm:"column:description" json:"description,omitempty"`
	FunderName          string         `gorm:"column:funder_name;not null" json:"funder_name"`
	FundingType         FundingType    `gorm:"column:funding_type;not null" json:"funding_type"`
	FundingScheme       string         `gorm:"column:funding_scheme" json:"funding_scheme,omitempty"`
	InternalAwardNumber string         `gorm:"column:internal_award_number;not null" json:"internal_award_number"`

	StartDate *time.Time `gorm:"column:start_date;type:date" json:"start_date,omitempty"`
	EndDate   *time.Time `gorm:"column:end_date;type:date" json:"end_date,omitempty"`

	// Currency must be set iff Amount is set (validated upstream, never here).
	Amount            *float64 `gorm:"column:amount;type:numeric" json:"amount,omitempty"`
	Currency          *string  `gorm:"column:currency;type:varchar(3)" json:"currency,omitempty"`
	FundingPercentage *float64 `gorm:"column:funding_percentage" json:"funding_percentage,omitempty"`

	FunderOrgID *uuid.UUID    `gorm:"column:funder_org_id;type:uuid;index" json:"funder_org_id,omitempty"`
	FunderOrg   *Organization `gorm:"foreignKey:FunderOrgID;references:ID" json:"funder_org,omitempty"`

	SourceID string `gorm:"column:source_id;not null;index" json:"source_id"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (GrantProject) TableName() string { return "grant_project" }
