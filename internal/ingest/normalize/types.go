package normalize

import (
	"time"

	types "github.com/openjordi/openjordi-backend/internal/domain"
	"github.com/openjordi/openjordi-backend/internal/ingest/source"
)

// Field origins recorded in provenance.
const (
	OriginDirect   = "direct"
	OriginLLM      = "llm"
	OriginDefault  = "source_default"
	OriginInferred = "inferred"
)

// Provenance traces where one canonical field's value came from, so audits
// can follow every field back to its source.
type Provenance struct {
	Field      string  `json:"field"`
	SourceID   string  `json:"source_id"`
	Origin     string  `json:"origin"`
	RawKey     string  `json:"raw_key,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

// GrantFields is the canonical Grant_Project field set after normalization.
type GrantFields struct {
	AwardNumber         string            `json:"award_number"`
	DOI                 *string           `json:"doi,omitempty"`
	Resource            string            `json:"resource"`
	Titles              []types.TitleText `json:"titles"`
	Description         string            `json:"description,omitempty"`
	FunderName          string            `json:"funder_name"`
	FunderID            string            `json:"funder_id"`
	FundingType         types.FundingType `json:"funding_type"`
	FundingScheme       string            `json:"funding_scheme,omitempty"`
	InternalAwardNumber string            `json:"internal_award_number"`
	StartDate           *time.Time        `json:"start_date,omitempty"`
	EndDate             *time.Time        `json:"end_date,omitempty"`
	Amount              *float64          `json:"amount,omitempty"`
	Currency            *string           `json:"currency,omitempty"`
	FundingPercentage   *float64          `json:"funding_percentage,omitempty"`
}

// OrgCandidate is one organization asserted by the record.
type OrgCandidate struct {
	Name        string  `json:"name"`
	NameKey     string  `json:"name_key"`
	ROR         *string `json:"ror,omitempty"`
	CountryCode *string `json:"country_code,omitempty"`
}

// InvCandidate is one investigator asserted by the record. OrgIndex points
// into Candidate.Orgs, -1 when the affiliation is unknown.
type InvCandidate struct {
	GivenName     *string                `json:"given_name,omitempty"`
	FamilyName    *string                `json:"family_name,omitempty"`
	AlternateName *string                `json:"alternate_name,omitempty"`
	ORCID         *string                `json:"orcid,omitempty"`
	Role          types.InvestigatorRole `json:"role"`
	NameKey       string                 `json:"name_key"`
	OrgIndex      int                    `json:"org_index"`
}

// Candidate is the normalized form of one raw record: the structured triple
// plus provenance and soft warnings. It is pure data; nothing here has
// touched the store yet.
type Candidate struct {
	SourceID      string           `json:"source_id"`
	Raw           source.RawRecord `json:"raw"`
	Grant         GrantFields      `json:"grant"`
	Orgs          []OrgCandidate   `json:"organizations"`
	Investigators []InvCandidate   `json:"investigators"`
	Provenance    []Provenance     `json:"provenance"`
	Warnings      []string         `json:"warnings,omitempty"`
}

// FunderOrgIndex is the index of the funder organization candidate in
// Candidate.Orgs; it is always present.
const FunderOrgIndex = 0
