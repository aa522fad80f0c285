package grants

// FundingType classifies how a Grant_Project row was funded.
type FundingType string

const (
	FundingTypeGrant    FundingType = "grant"
	FundingTypeAward    FundingType = "award"
	FundingTypeContract FundingType = "contract"
	FundingTypeOther    FundingType = "other"
)

func ParseFundingType(s string) FundingType {
	switch FundingType(s) {
	case FundingTypeGrant, FundingTypeAward, FundingTypeContract:
		return FundingType(s)
	default:
		return FundingTypeOther
	}
}

// InvestigatorRole is grant-specific: it lives on the grant↔investigator
// association, not on the investigator row.
type InvestigatorRole string

const (
	RoleLeadInvestigator InvestigatorRole = "lead_investigator"
	RoleCoLead           InvestigatorRole = "co_lead"
	RoleInvestigator     InvestigatorRole = "investigator"
)

func ValidRole(r InvestigatorRole) bool {
	switch r {
	case RoleLeadInvestigator, RoleCoLead, RoleInvestigator:
		return true
	default:
		return false
	}
}
