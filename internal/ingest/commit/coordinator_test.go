package commit

import (
	"context"
	"testing"

	"gorm.io/gorm"

	grantsrepo "github.com/openjordi/openjordi-backend/internal/data/repos/grants"
	"github.com/openjordi/openjordi-backend/internal/data/repos/testutil"
	types "github.com/openjordi/openjordi-backend/internal/domain"
	"github.com/openjordi/openjordi-backend/internal/ingest/ingesterr"
	"github.com/openjordi/openjordi-backend/internal/ingest/normalize"
	"github.com/openjordi/openjordi-backend/internal/ingest/resolve"
)

func strPtr(s string) *string { return &s }
func f64Ptr(f float64) *float64 { return &f }

func testCoordinator(t *testing.T) (*Coordinator, *gorm.DB) {
	t.Helper()
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	log := testutil.Logger(t)
	orgs := grantsrepo.NewOrganizationRepo(tx, log)
	invs := grantsrepo.NewInvestigatorRepo(tx, log)
	grants := grantsrepo.NewGrantProjectRepo(tx, log)
	links := grantsrepo.NewGrantInvestigatorRepo(tx, log)
	r := resolve.New(orgs, invs, 0, log)
	return New(tx, r, orgs, invs, grants, links, log), tx
}

func candidate() *normalize.Candidate {
	return &normalize.Candidate{
		SourceID: "irc",
		Grant: normalize.GrantFields{
			AwardNumber:         "GOIPG/2023/112",
			FunderID:            "irc",
			FunderName:          "Irish Research Council",
			Resource:            "https://research.ie/awards/112",
			Titles:              []types.TitleText{{Text: "Coastal erosion monitoring", Lang: "en"}},
			FundingType:         types.FundingTypeGrant,
			InternalAwardNumber: "GOIPG/2023/112",
		},
		Orgs: []normalize.OrgCandidate{
			{Name: "Irish Research Council", NameKey: "irish research council", CountryCode: strPtr("IE")},
			{Name: "Trinity College Dublin", NameKey: "trinity college dublin"},
		},
		Investigators: []normalize.InvCandidate{
			{GivenName: strPtr("Síofra"), FamilyName: strPtr("Ó Briain"), NameKey: "siofra o briain",
				Role: types.RoleLeadInvestigator, OrgIndex: 1},
			{GivenName: strPtr("Pat"), FamilyName: strPtr("Murphy"), NameKey: "pat murphy",
				Role: types.RoleInvestigator, OrgIndex: 1},
		},
	}
}

func TestApplyInsertsWholeRecord(t *testing.T) {
	c, tx := testCoordinator(t)
	ctx := context.Background()

	out, err := c.Apply(ctx, candidate())
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if out.Kind != OutcomeInserted {
		t.Fatalf("kind: %s", out.Kind)
	}
	if len(out.OrgIDs) != 2 || len(out.InvestigatorIDs) != 2 {
		t.Fatalf("resolved ids: %d orgs, %d investigators", len(out.OrgIDs), len(out.InvestigatorIDs))
	}

	var links int64
	if err := tx.Model(&types.GrantInvestigator{}).Where("grant_project_id = ?", out.GrantID).Count(&links).Error; err != nil {
		t.Fatalf("count links: %v", err)
	}
	if links != 2 {
		t.Fatalf("association rows: got %d, want 2", links)
	}

	var grant types.GrantProject
	if err := tx.First(&grant, "id = ?", out.GrantID).Error; err != nil {
		t.Fatalf("load grant: %v", err)
	}
	if grant.FunderOrgID == nil || *grant.FunderOrgID != out.OrgIDs[normalize.FunderOrgIndex] {
		t.Fatalf("funder org not linked: %v", grant.FunderOrgID)
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	c, tx := testCoordinator(t)
	ctx := context.Background()

	first, err := c.Apply(ctx, candidate())
	if err != nil {
		t.Fatalf("first apply: %v", err)
	}
	second, err := c.Apply(ctx, candidate())
	if err != nil {
		t.Fatalf("second apply: %v", err)
	}
	if second.Kind != OutcomeMerged {
		t.Fatalf("re-ingest kind: %s", second.Kind)
	}
	if second.GrantID != first.GrantID {
		t.Fatalf("re-ingest bound a different grant")
	}

	var grants, orgs, invs, links int64
	tx.Model(&types.GrantProject{}).Count(&grants)
	tx.Model(&types.Organization{}).Count(&orgs)
	tx.Model(&types.Investigator{}).Count(&invs)
	tx.Model(&types.GrantInvestigator{}).Count(&links)
	if grants != 1 || orgs != 2 || invs != 2 || links != 2 {
		t.Fatalf("row counts after re-ingest: grants=%d orgs=%d invs=%d links=%d", grants, orgs, invs, links)
	}
}

func TestApplyFillsNullFields(t *testing.T) {
	c, tx := testCoordinator(t)
	ctx := context.Background()

	if _, err := c.Apply(ctx, candidate()); err != nil {
		t.Fatalf("first apply: %v", err)
	}

	richer := candidate()
	richer.Grant.Amount = f64Ptr(110000)
	richer.Grant.Currency = strPtr("EUR")
	richer.Grant.Description = "Monitoring of coastal erosion rates"
	richer.Orgs[1].ROR = strPtr("01abc9922")

	out, err := c.Apply(ctx, richer)
	if err != nil {
		t.Fatalf("second apply: %v", err)
	}
	if out.Kind != OutcomeUpdated {
		t.Fatalf("kind: %s", out.Kind)
	}

	var grant types.GrantProject
	if err := tx.First(&grant, "id = ?", out.GrantID).Error; err != nil {
		t.Fatalf("load grant: %v", err)
	}
	if grant.Amount == nil || *grant.Amount != 110000 || grant.Currency == nil || *grant.Currency != "EUR" {
		t.Fatalf("amount not filled: %v %v", grant.Amount, grant.Currency)
	}
	if grant.Description != "Monitoring of coastal erosion rates" {
		t.Fatalf("description not filled: %q", grant.Description)
	}

	var host types.Organization
	if err := tx.First(&host, "id = ?", out.OrgIDs[1]).Error; err != nil {
		t.Fatalf("load host org: %v", err)
	}
	if host.ROR == nil || *host.ROR != "01abc9922" {
		t.Fatalf("host ROR not filled: %v", host.ROR)
	}
}

func TestApplyNeverOverwritesPopulatedField(t *testing.T) {
	c, tx := testCoordinator(t)
	ctx := context.Background()

	if _, err := c.Apply(ctx, candidate()); err != nil {
		t.Fatalf("first apply: %v", err)
	}

	disagreeing := candidate()
	disagreeing.Orgs[0].CountryCode = strPtr("BR")

	_, err := c.Apply(ctx, disagreeing)
	if !ingesterr.IsConflict(err) || ingesterr.CodeOf(err) != ingesterr.CodeMergeConflict {
		t.Fatalf("want merge_conflict, got %v", err)
	}

	var funder types.Organization
	if err := tx.First(&funder, "name_key = ?", "irish research council").Error; err != nil {
		t.Fatalf("load funder: %v", err)
	}
	if funder.CountryCode == nil || *funder.CountryCode != "IE" {
		t.Fatalf("stored country must survive the conflict: %v", funder.CountryCode)
	}
}

func TestApplyConflictingFundingPercentage(t *testing.T) {
	c, _ := testCoordinator(t)
	ctx := context.Background()

	first := candidate()
	first.Grant.FundingPercentage = f64Ptr(100)
	if _, err := c.Apply(ctx, first); err != nil {
		t.Fatalf("first apply: %v", err)
	}

	second := candidate()
	second.Grant.FundingPercentage = f64Ptr(50)
	_, err := c.Apply(ctx, second)
	if ingesterr.CodeOf(err) != ingesterr.CodeMergeConflict {
		t.Fatalf("want merge_conflict on funding_percentage, got %v", err)
	}
}

func TestApplyConflictRollsBackWholeRecord(t *testing.T) {
	c, tx := testCoordinator(t)
	ctx := context.Background()

	if _, err := c.Apply(ctx, candidate()); err != nil {
		t.Fatalf("first apply: %v", err)
	}

	// The grant commits after the investigators, so a grant-stage conflict
	// must also roll the new investigator row back.
	bad := candidate()
	bad.Grant.Resource = "https://research.ie/awards/999"
	bad.Investigators = append(bad.Investigators, normalize.InvCandidate{
		FamilyName: strPtr("Nowak"), NameKey: "ewa nowak", Role: types.RoleInvestigator, OrgIndex: 1,
	})
	if _, err := c.Apply(ctx, bad); err == nil {
		t.Fatalf("expected conflict")
	}

	var invs int64
	tx.Model(&types.Investigator{}).Count(&invs)
	if invs != 2 {
		t.Fatalf("rejected record must leave no partial writes, investigators=%d", invs)
	}
}

func TestApplyUnresolvedOrgIndex(t *testing.T) {
	c, _ := testCoordinator(t)
	ctx := context.Background()

	broken := candidate()
	broken.Investigators[0].OrgIndex = 7

	_, err := c.Apply(ctx, broken)
	if !ingesterr.IsConsistency(err) || ingesterr.CodeOf(err) != ingesterr.CodeForeignKeyUnresolved {
		t.Fatalf("want foreign_key_unresolved, got %v", err)
	}
}

func TestApplyMatchesByDOIFirst(t *testing.T) {
	c, _ := testCoordinator(t)
	ctx := context.Background()

	first := candidate()
	first.Grant.DOI = strPtr("10.1234/irc.112")
	if _, err := c.Apply(ctx, first); err != nil {
		t.Fatalf("first apply: %v", err)
	}

	// Same DOI reported by another portal with its own award numbering.
	same := candidate()
	same.Grant.DOI = strPtr("10.1234/irc.112")
	same.Grant.AwardNumber = "IRC-112-2023"
	same.Grant.InternalAwardNumber = "IRC-112-2023"

	out, err := c.Apply(ctx, same)
	if err != nil {
		t.Fatalf("second apply: %v", err)
	}
	if out.Kind == OutcomeInserted {
		t.Fatalf("same DOI must not insert a second grant")
	}
}
