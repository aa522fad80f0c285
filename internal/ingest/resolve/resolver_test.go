package resolve

import (
	"context"
	"testing"

	grantsrepo "github.com/openjordi/openjordi-backend/internal/data/repos/grants"
	"github.com/openjordi/openjordi-backend/internal/data/repos/testutil"
	types "github.com/openjordi/openjordi-backend/internal/domain"
	"github.com/openjordi/openjordi-backend/internal/ingest/ingesterr"
	"github.com/openjordi/openjordi-backend/internal/ingest/normalize"
	"github.com/openjordi/openjordi-backend/internal/platform/dbctx"
)

func strPtr(s string) *string { return &s }

func testResolver(t *testing.T) (*Resolver, dbctx.Context) {
	t.Helper()
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	log := testutil.Logger(t)
	r := New(grantsrepo.NewOrganizationRepo(db, log), grantsrepo.NewInvestigatorRepo(db, log), 0, log)
	return r, dbctx.Context{Ctx: context.Background(), Tx: tx}
}

func TestResolveOrganizationByROR(t *testing.T) {
	r, dbc := testResolver(t)
	org := testutil.SeedOrganization(t, dbc.Ctx, dbc.Tx, "Trinity College Dublin", "trinity college dublin", strPtr("01abc9922"))

	v, err := r.ResolveOrganization(dbc, normalize.OrgCandidate{
		Name:    "TCD",
		NameKey: "tcd",
		ROR:     strPtr("01abc9922"),
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if v.Action != ActionMatch || v.TargetID != org.ID {
		t.Fatalf("want strong match on %s, got %+v", org.ID, v)
	}
}

func TestResolveOrganizationByNameKey(t *testing.T) {
	r, dbc := testResolver(t)
	org := testutil.SeedOrganization(t, dbc.Ctx, dbc.Tx, "Universidad de Navarra", "universidad de navarra", nil)

	v, err := r.ResolveOrganization(dbc, normalize.OrgCandidate{
		Name:    "UNIVERSIDAD DE NAVARRA",
		NameKey: "universidad de navarra",
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if v.Action != ActionMerge || v.TargetID != org.ID {
		t.Fatalf("want name-key merge, got %+v", v)
	}
}

func TestResolveOrganizationRORConflictBlocksWeakMatch(t *testing.T) {
	r, dbc := testResolver(t)
	testutil.SeedOrganization(t, dbc.Ctx, dbc.Tx, "Science Foundation", "science foundation", strPtr("02one1111"))

	// Same normalized name, different ROR: these are different entities.
	v, err := r.ResolveOrganization(dbc, normalize.OrgCandidate{
		Name:    "Science Foundation",
		NameKey: "science foundation",
		ROR:     strPtr("03two2222"),
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if v.Action != ActionCreate {
		t.Fatalf("conflicting ROR must create, got %+v", v)
	}
}

func TestResolveOrganizationAmbiguous(t *testing.T) {
	r, dbc := testResolver(t)
	testutil.SeedOrganization(t, dbc.Ctx, dbc.Tx, "Institute of Physics", "institute of physics", nil)
	testutil.SeedOrganization(t, dbc.Ctx, dbc.Tx, "Institute of physics", "institute of physics", nil)

	_, err := r.ResolveOrganization(dbc, normalize.OrgCandidate{
		Name:    "Institute of Physics",
		NameKey: "institute of physics",
	})
	if !ingesterr.IsAmbiguous(err) {
		t.Fatalf("want ambiguous-match error, got %v", err)
	}
}

func TestResolveOrganizationFuzzy(t *testing.T) {
	r, dbc := testResolver(t)
	org := testutil.SeedOrganization(t, dbc.Ctx, dbc.Tx, "University College Dublin", "university college dublin", nil)

	// Word reordering still lands on the same row through token overlap.
	v, err := r.ResolveOrganization(dbc, normalize.OrgCandidate{
		Name:    "Dublin University College",
		NameKey: "dublin university college",
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if v.Action != ActionMerge || v.TargetID != org.ID || v.Evidence != "fuzzy_name" {
		t.Fatalf("want fuzzy merge, got %+v", v)
	}
}

func TestResolveInvestigatorByORCID(t *testing.T) {
	r, dbc := testResolver(t)
	inv := testutil.SeedInvestigator(t, dbc.Ctx, dbc.Tx, "Murphy", "pat murphy", nil)
	if err := dbc.Tx.Model(&types.Investigator{}).Where("id = ?", inv.ID).
		Update("orcid", "0000-0001-0002-0003").Error; err != nil {
		t.Fatalf("set orcid: %v", err)
	}

	v, err := r.ResolveInvestigator(dbc, normalize.InvCandidate{
		FamilyName: strPtr("Murphy"),
		ORCID:      strPtr("0000-0001-0002-0003"),
		NameKey:    "patrick murphy",
		OrgIndex:   -1,
	}, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if v.Action != ActionMatch || v.TargetID != inv.ID {
		t.Fatalf("want ORCID match, got %+v", v)
	}
}

func TestResolveInvestigatorByNameKeyWithinOrg(t *testing.T) {
	r, dbc := testResolver(t)
	org := testutil.SeedOrganization(t, dbc.Ctx, dbc.Tx, "Host Org", "host org", nil)
	inv := testutil.SeedInvestigator(t, dbc.Ctx, dbc.Tx, "Chen", "wei chen", &org.ID)
	other := testutil.SeedOrganization(t, dbc.Ctx, dbc.Tx, "Other Org", "other org", nil)
	testutil.SeedInvestigator(t, dbc.Ctx, dbc.Tx, "Chen", "wei chen", &other.ID)

	v, err := r.ResolveInvestigator(dbc, normalize.InvCandidate{
		FamilyName: strPtr("Chen"),
		NameKey:    "wei chen",
		OrgIndex:   1,
	}, &org.ID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if v.Action != ActionMerge || v.TargetID != inv.ID {
		t.Fatalf("affiliation should disambiguate the namesakes, got %+v", v)
	}
}

func TestResolveInvestigatorAmbiguousNamesakes(t *testing.T) {
	r, dbc := testResolver(t)
	testutil.SeedInvestigator(t, dbc.Ctx, dbc.Tx, "Silva", "maria silva", nil)
	testutil.SeedInvestigator(t, dbc.Ctx, dbc.Tx, "Silva", "maria silva", nil)

	_, err := r.ResolveInvestigator(dbc, normalize.InvCandidate{
		FamilyName: strPtr("Silva"),
		NameKey:    "maria silva",
		OrgIndex:   -1,
	}, nil)
	if !ingesterr.IsAmbiguous(err) {
		t.Fatalf("want ambiguous-match error, got %v", err)
	}
}

func TestResolveInvestigatorNoFuzzyWithoutAffiliation(t *testing.T) {
	r, dbc := testResolver(t)
	testutil.SeedInvestigator(t, dbc.Ctx, dbc.Tx, "Connor", "sean oconnor", nil)

	v, err := r.ResolveInvestigator(dbc, normalize.InvCandidate{
		FamilyName: strPtr("O'Connor"),
		NameKey:    "sean o connor",
		OrgIndex:   -1,
	}, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if v.Action != ActionCreate {
		t.Fatalf("fuzzy person matching needs a shared affiliation, got %+v", v)
	}
}

func TestSimilarity(t *testing.T) {
	if s := Similarity("trinity college dublin", "trinity college dublin"); s != 1 {
		t.Fatalf("identical keys: %v", s)
	}
	if s := Similarity("university college dublin", "dublin university college"); s < 0.9 {
		t.Fatalf("reordered tokens should score high: %v", s)
	}
	if s := Similarity("science foundation ireland", "health research board"); s > 0.5 {
		t.Fatalf("unrelated names should score low: %v", s)
	}
	if s := Similarity("", "anything"); s != 0 {
		t.Fatalf("empty key: %v", s)
	}
}
