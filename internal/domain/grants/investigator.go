package grants

import (
	"time"

	"github.com/google/uuid"
)

type Investigator struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`

	// Affiliation is weak: an investigator can exist without a known organization.
	OrganizationID *uuid.UUID    `gorm:"column:organization_id;type:uuid;index" json:"organization_id,omitempty"`
	Organization   *Organization `gorm:"foreignKey:OrganizationID;references:ID" json:"organization,omitempty"`

	GivenName     *string `gorm:"column:given_name" json:"given_name,omitempty"`
	FamilyName    *string `gorm:"column:family_name" json:"family_name,omitempty"`
	AlternateName *string `gorm:"column:alternate_name" json:"alternate_name,omitempty"`

	ORCID *string `gorm:"column:orcid;uniqueIndex" json:"orcid,omitempty"`

	// NameKey is the normalized full name used by tier-2/3 resolution.
	NameKey string `gorm:"column:name_key;not null;index" json:"-"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Investigator) TableName() string { return "investigator" }
