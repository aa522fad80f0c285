// Package ontology declares the canonical grant field set every source is
// mapped onto. Field names are the persisted contract shared by the mapping
// configs, the LLM aligner, and the normalizer.
package ontology

// Canonical Grant_Project fields.
const (
	FieldAwardNumber         = "award_number"
	FieldDOI                 = "doi"
	FieldResource            = "resource"
	FieldProjectTitle        = "project_title"
	FieldProjectDescription  = "project_description"
	FieldFunderName          = "funder_name"
	FieldFunderID            = "funder_id"
	FieldFundingType         = "funding_type"
	FieldFundingScheme       = "funding_scheme"
	FieldInternalAwardNumber = "internal_award_number"
	FieldStartDate           = "start_date"
	FieldEndDate             = "end_date"
	FieldAmount              = "amount"
	FieldCurrency            = "currency"
	FieldFundingPercentage   = "funding_percentage"
	FieldTitleLang           = "title_lang"
)

// Canonical Organization candidate fields.
const (
	FieldOrgName    = "organization_name"
	FieldOrgROR     = "organization_ror"
	FieldOrgCountry = "organization_country"
)

// Canonical Investigator candidate fields. The lead investigator is flat on
// the record; co-investigators arrive as a delimited list.
const (
	FieldLeadName        = "lead_investigator"
	FieldLeadGivenName   = "lead_given_name"
	FieldLeadFamilyName  = "lead_family_name"
	FieldLeadORCID       = "lead_orcid"
	FieldCoInvestigators = "co_investigators"
)

type Field struct {
	Name        string
	Description string
	Required    bool
}

var schema = []Field{
	{FieldAwardNumber, "Funder-assigned award or grant number", true},
	{FieldDOI, "Grant DOI registered with CrossRef", true},
	{FieldResource, "Landing page URL for the award", true},
	{FieldProjectTitle, "Project title as published by the funder", true},
	{FieldProjectDescription, "Abstract or lay summary of the project", false},
	{FieldFunderName, "Display name of the funding organization", true},
	{FieldFunderID, "Stable identifier of the funding organization", true},
	{FieldFundingType, "One of grant, award, contract, other", true},
	{FieldFundingScheme, "Funder-specific call or programme name", false},
	{FieldInternalAwardNumber, "Funder-internal award reference", true},
	{FieldStartDate, "Award start date", false},
	{FieldEndDate, "Award end date", false},
	{FieldAmount, "Awarded amount as a decimal number", false},
	{FieldCurrency, "ISO 4217 currency code, required with amount", false},
	{FieldFundingPercentage, "Share of the project this award funds, 0-100", false},
	{FieldTitleLang, "BCP-47 language tag of the project title", false},
	{FieldOrgName, "Host or funder organization name", false},
	{FieldOrgROR, "ROR identifier of the organization", false},
	{FieldOrgCountry, "ISO 3166-1 alpha-2 country of the organization", false},
	{FieldLeadName, "Lead investigator full name", false},
	{FieldLeadGivenName, "Lead investigator given name", false},
	{FieldLeadFamilyName, "Lead investigator family name", false},
	{FieldLeadORCID, "Lead investigator ORCID", false},
	{FieldCoInvestigators, "Additional investigators, semicolon separated", false},
}

var byName = func() map[string]Field {
	m := make(map[string]Field, len(schema))
	for _, f := range schema {
		m[f.Name] = f
	}
	return m
}()

// Schema returns the canonical field list in declaration order.
func Schema() []Field {
	out := make([]Field, len(schema))
	copy(out, schema)
	return out
}

// Valid reports whether name is a canonical field.
func Valid(name string) bool {
	_, ok := byName[name]
	return ok
}

// RequiredGrantFields lists the Grant_Project fields a normalized record must
// carry. DOI is intentionally absent: the stored schema treats it as the
// stronger-but-optional key, so a missing DOI demotes to a warning while the
// (award_number, funder_id) pair remains the fallback identity.
func RequiredGrantFields() []string {
	return []string{
		FieldAwardNumber,
		FieldResource,
		FieldProjectTitle,
		FieldFunderName,
		FieldFunderID,
		FieldFundingType,
		FieldInternalAwardNumber,
	}
}
