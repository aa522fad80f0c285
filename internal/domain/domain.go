package domain

import (
	"github.com/openjordi/openjordi-backend/internal/domain/grants"
)

type GrantProject = grants.GrantProject
type Organization = grants.Organization
type Investigator = grants.Investigator
type GrantInvestigator = grants.GrantInvestigator
type SourceBatch = grants.SourceBatch
type ReviewFlag = grants.ReviewFlag

type TitleText = grants.TitleText
type FundingType = grants.FundingType
type InvestigatorRole = grants.InvestigatorRole

const (
	FundingTypeGrant    = grants.FundingTypeGrant
	FundingTypeAward    = grants.FundingTypeAward
	FundingTypeContract = grants.FundingTypeContract
	FundingTypeOther    = grants.FundingTypeOther

	RoleLeadInvestigator = grants.RoleLeadInvestigator
	RoleCoLead           = grants.RoleCoLead
	RoleInvestigator     = grants.RoleInvestigator

	BatchStatusRunning  = grants.BatchStatusRunning
	BatchStatusDone     = grants.BatchStatusDone
	BatchStatusFailed   = grants.BatchStatusFailed
	BatchStatusCanceled = grants.BatchStatusCanceled
)

var (
	ParseFundingType = grants.ParseFundingType
	ValidRole        = grants.ValidRole
)
