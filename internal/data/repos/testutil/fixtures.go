package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/openjordi/openjordi-backend/internal/domain"
)

func strPtr(s string) *string { return &s }

func SeedOrganization(tb testing.TB, ctx context.Context, tx *gorm.DB, name, nameKey string, ror *string) *types.Organization {
	tb.Helper()
	org := &types.Organization{
		ID:      uuid.New(),
		Name:    name,
		NameKey: nameKey,
		ROR:     ror,
	}
	if err := tx.WithContext(ctx).Create(org).Error; err != nil {
		tb.Fatalf("seed organization: %v", err)
	}
	return org
}

func SeedInvestigator(tb testing.TB, ctx context.Context, tx *gorm.DB, familyName, nameKey string, orgID *uuid.UUID) *types.Investigator {
	tb.Helper()
	inv := &types.Investigator{
		ID:             uuid.New(),
		OrganizationID: orgID,
		FamilyName:     strPtr(familyName),
		NameKey:        nameKey,
	}
	if err := tx.WithContext(ctx).Create(inv).Error; err != nil {
		tb.Fatalf("seed investigator: %v", err)
	}
	return inv
}

func SeedGrantProject(tb testing.TB, ctx context.Context, tx *gorm.DB, awardNumber, funderID string) *types.GrantProject {
	tb.Helper()
	g := &types.GrantProject{
		ID:                  uuid.New(),
		AwardNumber:         awardNumber,
		FunderID:            funderID,
		Resource:            "https://example.org/grants/" + awardNumber,
		Titles:              datatypes.JSON([]byte(`[{"text":"grant"}]`)),
		FunderName:          "funder",
		FundingType:         types.FundingTypeGrant,
		InternalAwardNumber: awardNumber,
		SourceID:            "test_source",
	}
	if err := tx.WithContext(ctx).Create(g).Error; err != nil {
		tb.Fatalf("seed grant project: %v", err)
	}
	return g
}

func SeedSourceBatch(tb testing.TB, ctx context.Context, tx *gorm.DB, sourceID, status string) *types.SourceBatch {
	tb.Helper()
	b := &types.SourceBatch{
		ID:        uuid.New(),
		SourceID:  sourceID,
		Status:    status,
		StartedAt: time.Now().UTC(),
	}
	if err := tx.WithContext(ctx).Create(b).Error; err != nil {
		tb.Fatalf("seed source batch: %v", err)
	}
	return b
}
