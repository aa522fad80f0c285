package commit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	grantsrepo "github.com/openjordi/openjordi-backend/internal/data/repos/grants"
	types "github.com/openjordi/openjordi-backend/internal/domain"
	"github.com/openjordi/openjordi-backend/internal/ingest/ingesterr"
	"github.com/openjordi/openjordi-backend/internal/ingest/normalize"
	"github.com/openjordi/openjordi-backend/internal/ingest/resolve"
	"github.com/openjordi/openjordi-backend/internal/platform/dbctx"
	"github.com/openjordi/openjordi-backend/internal/platform/logger"
)

// OutcomeKind classifies what one record did to the store.
type OutcomeKind string

const (
	// OutcomeInserted: a new grant row was created.
	OutcomeInserted OutcomeKind = "inserted"
	// OutcomeMerged: the grant matched an existing row and asserted nothing new.
	OutcomeMerged OutcomeKind = "merged"
	// OutcomeUpdated: the grant matched an existing row and filled fields in.
	OutcomeUpdated OutcomeKind = "updated"
)

// Outcome reports what Apply did. OrgIDs is index-aligned with the
// candidate's organizations, InvestigatorIDs with its investigators.
type Outcome struct {
	Kind            OutcomeKind
	GrantID         uuid.UUID
	OrgIDs          []uuid.UUID
	InvestigatorIDs []uuid.UUID
	Notes           []string
}

// Coordinator applies one normalized candidate to the store inside a single
// transaction: organizations first, then investigators, then the grant, then
// the grant-investigator association rows. Any error rolls the whole record
// back; the store never holds a half-applied record.
type Coordinator struct {
	db       *gorm.DB
	resolver *resolve.Resolver
	orgs     grantsrepo.OrganizationRepo
	invs     grantsrepo.InvestigatorRepo
	grants   grantsrepo.GrantProjectRepo
	links    grantsrepo.GrantInvestigatorRepo
	log      *logger.Logger
}

func New(
	db *gorm.DB,
	resolver *resolve.Resolver,
	orgs grantsrepo.OrganizationRepo,
	invs grantsrepo.InvestigatorRepo,
	grants grantsrepo.GrantProjectRepo,
	links grantsrepo.GrantInvestigatorRepo,
	baseLog *logger.Logger,
) *Coordinator {
	return &Coordinator{
		db:       db,
		resolver: resolver,
		orgs:     orgs,
		invs:     invs,
		grants:   grants,
		links:    links,
		log:      baseLog.With("component", "UpsertCoordinator"),
	}
}

// Apply commits one candidate. Resolution runs inside the same transaction so
// the verdicts and the writes see one consistent snapshot.
func (c *Coordinator) Apply(ctx context.Context, cand *normalize.Candidate) (*Outcome, error) {
	out := &Outcome{}
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}

		orgIDs := make([]uuid.UUID, len(cand.Orgs))
		for i, oc := range cand.Orgs {
			id, err := c.applyOrganization(dbc, oc, out)
			if err != nil {
				return err
			}
			orgIDs[i] = id
		}
		out.OrgIDs = orgIDs

		invIDs := make([]uuid.UUID, len(cand.Investigators))
		for i, ic := range cand.Investigators {
			var orgID *uuid.UUID
			if ic.OrgIndex >= 0 {
				if ic.OrgIndex >= len(orgIDs) {
					return ingesterr.Consistency(ingesterr.CodeForeignKeyUnresolved,
						"investigator %q references organization %d of %d", ic.NameKey, ic.OrgIndex, len(orgIDs))
				}
				orgID = &orgIDs[ic.OrgIndex]
			}
			id, err := c.applyInvestigator(dbc, ic, orgID, out)
			if err != nil {
				return err
			}
			invIDs[i] = id
		}
		out.InvestigatorIDs = invIDs

		if len(orgIDs) == 0 {
			return ingesterr.Consistency(ingesterr.CodeForeignKeyUnresolved,
				"record for award %q carries no funder organization", cand.Grant.AwardNumber)
		}
		grantID, kind, err := c.applyGrant(dbc, cand, orgIDs[normalize.FunderOrgIndex], out)
		if err != nil {
			return err
		}
		out.GrantID = grantID
		out.Kind = kind

		rows := make([]*types.GrantInvestigator, 0, len(invIDs))
		for i, invID := range invIDs {
			rows = append(rows, &types.GrantInvestigator{
				ID:             uuid.New(),
				GrantProjectID: grantID,
				InvestigatorID: invID,
				Role:           cand.Investigators[i].Role,
			})
		}
		_, err = c.links.Upsert(dbc, rows)
		return err
	})
	if err != nil {
		return nil, err
	}
	c.log.Debug("record applied",
		"source_id", cand.SourceID, "grant_id", out.GrantID, "outcome", out.Kind)
	return out, nil
}

func (c *Coordinator) applyOrganization(dbc dbctx.Context, oc normalize.OrgCandidate, out *Outcome) (uuid.UUID, error) {
	v, err := c.resolver.ResolveOrganization(dbc, oc)
	if err != nil {
		return uuid.Nil, err
	}
	if v.Action == resolve.ActionCreate {
		org := &types.Organization{
			ID:          uuid.New(),
			Name:        oc.Name,
			NameKey:     oc.NameKey,
			ROR:         oc.ROR,
			CountryCode: oc.CountryCode,
		}
		if _, err := c.orgs.Create(dbc, []*types.Organization{org}); err != nil {
			return uuid.Nil, err
		}
		return org.ID, nil
	}

	existing, err := c.getOrganization(dbc, v.TargetID)
	if err != nil {
		return uuid.Nil, err
	}
	updates := map[string]interface{}{}
	if oc.ROR != nil && existing.ROR == nil {
		updates["ror"] = *oc.ROR
	}
	if oc.CountryCode != nil {
		switch {
		case existing.CountryCode == nil:
			updates["country_code"] = *oc.CountryCode
		case *existing.CountryCode != *oc.CountryCode:
			// Stored value wins; the disagreement goes to review.
			return uuid.Nil, ingesterr.Conflict(ingesterr.CodeMergeConflict,
				"organization %q: incoming country_code %s disagrees with stored %s",
				existing.Name, *oc.CountryCode, *existing.CountryCode)
		}
	}
	if len(updates) > 0 {
		if err := c.orgs.UpdateFields(dbc, existing.ID, updates); err != nil {
			return uuid.Nil, err
		}
		out.Notes = append(out.Notes, fmt.Sprintf("organization %q enriched (%s)", existing.Name, v.Evidence))
	}
	return existing.ID, nil
}

func (c *Coordinator) applyInvestigator(dbc dbctx.Context, ic normalize.InvCandidate, orgID *uuid.UUID, out *Outcome) (uuid.UUID, error) {
	v, err := c.resolver.ResolveInvestigator(dbc, ic, orgID)
	if err != nil {
		return uuid.Nil, err
	}
	if v.Action == resolve.ActionCreate {
		inv := &types.Investigator{
			ID:             uuid.New(),
			OrganizationID: orgID,
			GivenName:      ic.GivenName,
			FamilyName:     ic.FamilyName,
			AlternateName:  ic.AlternateName,
			ORCID:          ic.ORCID,
			NameKey:        ic.NameKey,
		}
		if _, err := c.invs.Create(dbc, []*types.Investigator{inv}); err != nil {
			return uuid.Nil, err
		}
		return inv.ID, nil
	}

	existing, err := c.getInvestigator(dbc, v.TargetID)
	if err != nil {
		return uuid.Nil, err
	}
	updates := map[string]interface{}{}
	if ic.ORCID != nil && existing.ORCID == nil {
		updates["orcid"] = *ic.ORCID
	}
	if ic.GivenName != nil && existing.GivenName == nil {
		updates["given_name"] = *ic.GivenName
	}
	if ic.FamilyName != nil && existing.FamilyName == nil {
		updates["family_name"] = *ic.FamilyName
	}
	// Name variants are not conflicts; the first unseen variant is kept as
	// the alternate form.
	if existing.AlternateName == nil && ic.NameKey != existing.NameKey && ic.NameKey != "" {
		if alt := fullName(ic); alt != "" {
			updates["alternate_name"] = alt
		}
	}
	if orgID != nil {
		switch {
		case existing.OrganizationID == nil:
			updates["organization_id"] = *orgID
		case *existing.OrganizationID != *orgID:
			// Affiliations move over time. Keep the stored one and note it.
			out.Notes = append(out.Notes, fmt.Sprintf(
				"investigator %q asserted a different affiliation; stored one kept", existing.NameKey))
		}
	}
	if len(updates) > 0 {
		if err := c.invs.UpdateFields(dbc, existing.ID, updates); err != nil {
			return uuid.Nil, err
		}
	}
	return existing.ID, nil
}

// applyGrant looks the grant up by DOI first, then by the
// (award_number, funder_id) pair, and either inserts it or merges into the
// existing row. Merging fills empty fields only: a populated field that
// disagrees with the incoming value is a conflict, and the stored value stays.
func (c *Coordinator) applyGrant(dbc dbctx.Context, cand *normalize.Candidate, funderOrgID uuid.UUID, out *Outcome) (uuid.UUID, OutcomeKind, error) {
	g := cand.Grant

	var existing *types.GrantProject
	var err error
	if g.DOI != nil {
		existing, err = c.grants.GetByDOI(dbc, *g.DOI)
		if err != nil {
			return uuid.Nil, "", err
		}
	}
	if existing == nil {
		existing, err = c.grants.GetByAwardFunder(dbc, g.AwardNumber, g.FunderID)
		if err != nil {
			return uuid.Nil, "", err
		}
	}

	if existing == nil {
		titles, err := json.Marshal(g.Titles)
		if err != nil {
			return uuid.Nil, "", err
		}
		row := &types.GrantProject{
			ID:                  uuid.New(),
			AwardNumber:         g.AwardNumber,
			FunderID:            g.FunderID,
			DOI:                 g.DOI,
			Resource:            g.Resource,
			Titles:              datatypes.JSON(titles),
			Description:         g.Description,
			FunderName:          g.FunderName,
			FundingType:         g.FundingType,
			FundingScheme:       g.FundingScheme,
			InternalAwardNumber: g.InternalAwardNumber,
			StartDate:           g.StartDate,
			EndDate:             g.EndDate,
			Amount:              g.Amount,
			Currency:            g.Currency,
			FundingPercentage:   g.FundingPercentage,
			FunderOrgID:         &funderOrgID,
			SourceID:            cand.SourceID,
		}
		if _, err := c.grants.Create(dbc, row); err != nil {
			return uuid.Nil, "", err
		}
		return row.ID, OutcomeInserted, nil
	}

	updates := map[string]interface{}{}
	conflict := func(field string, stored, incoming interface{}) error {
		return ingesterr.Conflict(ingesterr.CodeMergeConflict,
			"grant %s/%s: incoming %s %v disagrees with stored %v",
			g.FunderID, g.AwardNumber, field, incoming, stored)
	}

	if g.DOI != nil {
		switch {
		case existing.DOI == nil:
			updates["doi"] = *g.DOI
		case *existing.DOI != *g.DOI:
			return uuid.Nil, "", conflict("doi", *existing.DOI, *g.DOI)
		}
	}
	if err := mergeString(updates, "resource", existing.Resource, g.Resource, conflict); err != nil {
		return uuid.Nil, "", err
	}
	if err := mergeString(updates, "description", existing.Description, g.Description, conflict); err != nil {
		return uuid.Nil, "", err
	}
	if err := mergeString(updates, "funding_scheme", existing.FundingScheme, g.FundingScheme, conflict); err != nil {
		return uuid.Nil, "", err
	}
	if g.FundingType != "" && existing.FundingType != "" && g.FundingType != existing.FundingType {
		return uuid.Nil, "", conflict("funding_type", existing.FundingType, g.FundingType)
	}
	if g.StartDate != nil {
		switch {
		case existing.StartDate == nil:
			updates["start_date"] = *g.StartDate
		case !existing.StartDate.Equal(*g.StartDate):
			return uuid.Nil, "", conflict("start_date", existing.StartDate, g.StartDate)
		}
	}
	if g.EndDate != nil {
		switch {
		case existing.EndDate == nil:
			updates["end_date"] = *g.EndDate
		case !existing.EndDate.Equal(*g.EndDate):
			return uuid.Nil, "", conflict("end_date", existing.EndDate, g.EndDate)
		}
	}
	if g.Amount != nil {
		switch {
		case existing.Amount == nil:
			updates["amount"] = *g.Amount
			if g.Currency != nil {
				updates["currency"] = *g.Currency
			}
		case *existing.Amount != *g.Amount:
			return uuid.Nil, "", conflict("amount", *existing.Amount, *g.Amount)
		case existing.Currency != nil && g.Currency != nil && *existing.Currency != *g.Currency:
			return uuid.Nil, "", conflict("currency", *existing.Currency, *g.Currency)
		}
	}
	if g.FundingPercentage != nil {
		switch {
		case existing.FundingPercentage == nil:
			updates["funding_percentage"] = *g.FundingPercentage
		case *existing.FundingPercentage != *g.FundingPercentage:
			return uuid.Nil, "", conflict("funding_percentage", *existing.FundingPercentage, *g.FundingPercentage)
		}
	}
	if existing.FunderOrgID == nil {
		updates["funder_org_id"] = funderOrgID
	}

	merged, changed, err := mergeTitles(existing.Titles, g.Titles)
	if err != nil {
		return uuid.Nil, "", err
	}
	if changed {
		updates["titles"] = merged
	}

	if len(updates) == 0 {
		return existing.ID, OutcomeMerged, nil
	}
	if err := c.grants.UpdateFields(dbc, existing.ID, updates); err != nil {
		return uuid.Nil, "", err
	}
	out.Notes = append(out.Notes, fmt.Sprintf("grant %s/%s enriched", g.FunderID, g.AwardNumber))
	return existing.ID, OutcomeUpdated, nil
}

func (c *Coordinator) getOrganization(dbc dbctx.Context, id uuid.UUID) (*types.Organization, error) {
	rows, err := c.orgs.GetByIDs(dbc, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ingesterr.Consistency(ingesterr.CodeForeignKeyUnresolved, "organization %s vanished mid-commit", id)
	}
	return rows[0], nil
}

func (c *Coordinator) getInvestigator(dbc dbctx.Context, id uuid.UUID) (*types.Investigator, error) {
	rows, err := c.invs.GetByIDs(dbc, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ingesterr.Consistency(ingesterr.CodeForeignKeyUnresolved, "investigator %s vanished mid-commit", id)
	}
	return rows[0], nil
}

// mergeString fills an empty stored value and conflicts on a differing
// populated one.
func mergeString(updates map[string]interface{}, field, stored, incoming string, conflict func(string, interface{}, interface{}) error) error {
	if incoming == "" || stored == incoming {
		return nil
	}
	if stored == "" {
		updates[field] = incoming
		return nil
	}
	return conflict(field, stored, incoming)
}

// mergeTitles unions by (text, lang), keeping stored order first.
func mergeTitles(stored datatypes.JSON, incoming []types.TitleText) (datatypes.JSON, bool, error) {
	var have []types.TitleText
	if len(stored) > 0 {
		if err := json.Unmarshal(stored, &have); err != nil {
			return nil, false, err
		}
	}
	seen := make(map[string]struct{}, len(have))
	for _, t := range have {
		seen[t.Lang+"\x00"+t.Text] = struct{}{}
	}
	changed := false
	for _, t := range incoming {
		if t.Text == "" {
			continue
		}
		if _, ok := seen[t.Lang+"\x00"+t.Text]; ok {
			continue
		}
		have = append(have, t)
		seen[t.Lang+"\x00"+t.Text] = struct{}{}
		changed = true
	}
	if !changed {
		return stored, false, nil
	}
	buf, err := json.Marshal(have)
	if err != nil {
		return nil, false, err
	}
	return datatypes.JSON(buf), true, nil
}

func fullName(ic normalize.InvCandidate) string {
	switch {
	case ic.GivenName != nil && ic.FamilyName != nil:
		return *ic.GivenName + " " + *ic.FamilyName
	case ic.FamilyName != nil:
		return *ic.FamilyName
	case ic.GivenName != nil:
		return *ic.GivenName
	}
	return ""
}
