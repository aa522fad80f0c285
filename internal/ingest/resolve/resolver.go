package resolve

import (
	"github.com/google/uuid"

	grantsrepo "github.com/openjordi/openjordi-backend/internal/data/repos/grants"
	types "github.com/openjordi/openjordi-backend/internal/domain"
	"github.com/openjordi/openjordi-backend/internal/ingest/ingesterr"
	"github.com/openjordi/openjordi-backend/internal/ingest/normalize"
	"github.com/openjordi/openjordi-backend/internal/platform/dbctx"
	"github.com/openjordi/openjordi-backend/internal/platform/logger"
)

// Action says what the upsert stage should do with a candidate entity.
type Action string

const (
	// ActionCreate: no acceptable match, insert a new row.
	ActionCreate Action = "create"
	// ActionMatch: a strong identifier (ROR, ORCID) pinned an existing row.
	ActionMatch Action = "match"
	// ActionMerge: a weak-evidence match; merge fills nulls, never overwrites.
	ActionMerge Action = "merge"
)

// Verdict is one resolution decision. TargetID is set unless Action is
// ActionCreate. Evidence records which tier decided, for flag payloads.
type Verdict struct {
	Action   Action
	TargetID uuid.UUID
	Evidence string
}

// Resolver decides whether a candidate organization or investigator is an
// entity the store already knows. Matching runs in three tiers: strong
// identifiers, then exact normalized names, then fuzzy names. A tie at tier
// two or three is never guessed at; it comes back as an ambiguous-match error.
type Resolver struct {
	orgs      grantsrepo.OrganizationRepo
	invs      grantsrepo.InvestigatorRepo
	threshold float64
	log       *logger.Logger
}

// DefaultFuzzyThreshold is the minimum name similarity accepted at tier three.
const DefaultFuzzyThreshold = 0.90

func New(orgs grantsrepo.OrganizationRepo, invs grantsrepo.InvestigatorRepo, threshold float64, baseLog *logger.Logger) *Resolver {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultFuzzyThreshold
	}
	return &Resolver{
		orgs:      orgs,
		invs:      invs,
		threshold: threshold,
		log:       baseLog.With("component", "Resolver"),
	}
}

// ResolveOrganization matches one organization candidate against the store.
func (r *Resolver) ResolveOrganization(dbc dbctx.Context, cand normalize.OrgCandidate) (Verdict, error) {
	// Tier 1: ROR is authoritative.
	if cand.ROR != nil {
		existing, err := r.orgs.GetByROR(dbc, *cand.ROR)
		if err != nil {
			return Verdict{}, err
		}
		if existing != nil {
			return Verdict{Action: ActionMatch, TargetID: existing.ID, Evidence: "ror"}, nil
		}
	}

	// Tier 2: exact normalized name, country-compatible, no ROR conflict.
	exact, err := r.orgs.GetByNameKey(dbc, cand.NameKey)
	if err != nil {
		return Verdict{}, err
	}
	matches := filterOrgs(exact, cand)
	if len(matches) > 1 {
		return Verdict{}, ingesterr.Ambiguous(
			"organization %q matches %d existing rows by normalized name", cand.Name, len(matches))
	}
	if len(matches) == 1 {
		return Verdict{Action: ActionMerge, TargetID: matches[0].ID, Evidence: "name_key"}, nil
	}

	// Tier 3: fuzzy name similarity above the threshold. The token prefilter
	// narrows the scan to rows sharing at least one name word.
	nearby, err := r.orgs.ListByNameTokens(dbc, normalize.Tokens(cand.NameKey))
	if err != nil {
		return Verdict{}, err
	}
	var fuzzy []*types.Organization
	for _, org := range filterOrgs(nearby, cand) {
		if Similarity(cand.NameKey, org.NameKey) >= r.threshold {
			fuzzy = append(fuzzy, org)
		}
	}
	if len(fuzzy) > 1 {
		return Verdict{}, ingesterr.Ambiguous(
			"organization %q is near-identical to %d existing rows", cand.Name, len(fuzzy))
	}
	if len(fuzzy) == 1 {
		r.log.Debug("fuzzy organization match", "candidate", cand.Name, "target", fuzzy[0].Name)
		return Verdict{Action: ActionMerge, TargetID: fuzzy[0].ID, Evidence: "fuzzy_name"}, nil
	}
	return Verdict{Action: ActionCreate}, nil
}

// ResolveInvestigator matches one investigator candidate. orgID is the
// already-resolved affiliation, nil when unknown.
func (r *Resolver) ResolveInvestigator(dbc dbctx.Context, cand normalize.InvCandidate, orgID *uuid.UUID) (Verdict, error) {
	// Tier 1: ORCID is authoritative.
	if cand.ORCID != nil {
		existing, err := r.invs.GetByORCID(dbc, *cand.ORCID)
		if err != nil {
			return Verdict{}, err
		}
		if existing != nil {
			return Verdict{Action: ActionMatch, TargetID: existing.ID, Evidence: "orcid"}, nil
		}
	}

	// Tier 2: exact normalized name, affiliation-compatible, no ORCID conflict.
	exact, err := r.invs.GetByNameKey(dbc, cand.NameKey)
	if err != nil {
		return Verdict{}, err
	}
	matches := filterInvs(exact, cand, orgID)
	if len(matches) > 1 {
		return Verdict{}, ingesterr.Ambiguous(
			"investigator %q matches %d existing rows by normalized name", cand.NameKey, len(matches))
	}
	if len(matches) == 1 {
		return Verdict{Action: ActionMerge, TargetID: matches[0].ID, Evidence: "name_key"}, nil
	}

	// Tier 3 only inside a known organization: fuzzy person matching without
	// a shared affiliation conflates too easily.
	if orgID == nil {
		return Verdict{Action: ActionCreate}, nil
	}
	peers, err := r.invs.GetByOrganizationID(dbc, *orgID)
	if err != nil {
		return Verdict{}, err
	}
	var fuzzy []*types.Investigator
	for _, inv := range filterInvs(peers, cand, orgID) {
		if Similarity(cand.NameKey, inv.NameKey) >= r.threshold {
			fuzzy = append(fuzzy, inv)
		}
	}
	if len(fuzzy) > 1 {
		return Verdict{}, ingesterr.Ambiguous(
			"investigator %q is near-identical to %d colleagues", cand.NameKey, len(fuzzy))
	}
	if len(fuzzy) == 1 {
		return Verdict{Action: ActionMerge, TargetID: fuzzy[0].ID, Evidence: "fuzzy_name"}, nil
	}
	return Verdict{Action: ActionCreate}, nil
}

// filterOrgs drops rows a weak-evidence match must not bind to: a different
// ROR on either side, or an incompatible country.
func filterOrgs(orgs []*types.Organization, cand normalize.OrgCandidate) []*types.Organization {
	var out []*types.Organization
	for _, org := range orgs {
		if cand.ROR != nil && org.ROR != nil && *cand.ROR != *org.ROR {
			continue
		}
		if cand.CountryCode != nil && org.CountryCode != nil && *cand.CountryCode != *org.CountryCode {
			continue
		}
		out = append(out, org)
	}
	return out
}

func filterInvs(invs []*types.Investigator, cand normalize.InvCandidate, orgID *uuid.UUID) []*types.Investigator {
	var out []*types.Investigator
	for _, inv := range invs {
		if cand.ORCID != nil && inv.ORCID != nil && *cand.ORCID != *inv.ORCID {
			continue
		}
		if orgID != nil && inv.OrganizationID != nil && *orgID != *inv.OrganizationID {
			continue
		}
		out = append(out, inv)
	}
	return out
}
