package grants

import (
	"time"

	"github.com/google/uuid"
)

type Organization struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`

	Name string `gorm:"column:name;not null" json:"name"`

	// ROR is globally unique when present; two rows sharing one are the same
	// real-world entity and must never both exist.
	ROR         *string `gorm:"column:ror;uniqueIndex" json:"ror,omitempty"`
	CountryCode *string `gorm:"column:country_code;type:varchar(2)" json:"country_code,omitempty"`

	// NameKey is the case-folded, diacritics-stripped, whitespace-collapsed
	// form of Name used by tier-2 resolution.
	NameKey string `gorm:"column:name_key;not null;index" json:"-"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Organization) TableName() string { return "organization" }
