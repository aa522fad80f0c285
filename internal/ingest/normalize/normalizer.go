package normalize

import (
	"strconv"
	"strings"

	types "github.com/openjordi/openjordi-backend/internal/domain"
	"github.com/openjordi/openjordi-backend/internal/ingest/align"
	"github.com/openjordi/openjordi-backend/internal/ingest/ingesterr"
	"github.com/openjordi/openjordi-backend/internal/ingest/ontology"
	"github.com/openjordi/openjordi-backend/internal/ingest/source"
	"github.com/openjordi/openjordi-backend/internal/platform/logger"
)

// Normalizer maps raw source records onto the canonical candidate triple.
// It is a pure transform: every decision it makes is returned as data.
type Normalizer struct {
	floor float64
	log   *logger.Logger
}

// New builds a Normalizer. confidenceFloor is the minimum aligner confidence
// accepted for LLM-mapped fields; lower values pass through as absent plus a
// warning.
func New(confidenceFloor float64, baseLog *logger.Logger) *Normalizer {
	return &Normalizer{
		floor: confidenceFloor,
		log:   baseLog.With("component", "Normalizer"),
	}
}

type fieldValue struct {
	value string
	prov  Provenance
}

// Normalize maps one raw record through the source's declared field mapping
// and the aligner's candidates, validates the result, and extracts the
// organization/investigator sub-records.
func (n *Normalizer) Normalize(cfg *source.Config, rec source.RawRecord, aligned []align.AlignedField) (*Candidate, error) {
	if cfg == nil {
		return nil, ingesterr.Validation(ingesterr.CodeMissingRequiredField, "no source config")
	}

	cand := &Candidate{SourceID: cfg.ID, Raw: rec}
	values := map[string]fieldValue{}

	// Declared mapping first: direct-mapped values always win.
	for rawKey, field := range cfg.Mapping {
		if !ontology.Valid(field) {
			cand.Warnings = append(cand.Warnings, "mapping target "+field+" is not a canonical field")
			continue
		}
		v := strings.TrimSpace(rec[rawKey])
		if v == "" {
			continue
		}
		values[field] = fieldValue{
			value: v,
			prov: Provenance{
				Field:    field,
				SourceID: cfg.ID,
				Origin:   OriginDirect,
				RawKey:   rawKey,
			},
		}
	}

	// Aligner candidates fill the gaps, subject to the confidence floor.
	for _, af := range aligned {
		if _, taken := values[af.Field]; taken {
			continue
		}
		if !ontology.Valid(af.Field) || af.Value == "" {
			continue
		}
		if af.Confidence < n.floor {
			cand.Warnings = append(cand.Warnings,
				"low-confidence alignment dropped for "+af.Field+" (raw key "+af.RawKey+")")
			continue
		}
		values[af.Field] = fieldValue{
			value: af.Value,
			prov: Provenance{
				Field:      af.Field,
				SourceID:   cfg.ID,
				Origin:     OriginLLM,
				RawKey:     af.RawKey,
				Confidence: af.Confidence,
			},
		}
	}

	// Source-level defaults for funder identity.
	if _, ok := values[ontology.FieldFunderName]; !ok && cfg.Funder != "" {
		values[ontology.FieldFunderName] = fieldValue{
			value: cfg.Funder,
			prov:  Provenance{Field: ontology.FieldFunderName, SourceID: cfg.ID, Origin: OriginDefault},
		}
	}
	if _, ok := values[ontology.FieldFunderID]; !ok && cfg.FunderID != "" {
		values[ontology.FieldFunderID] = fieldValue{
			value: cfg.FunderID,
			prov:  Provenance{Field: ontology.FieldFunderID, SourceID: cfg.ID, Origin: OriginDefault},
		}
	}
	// The currency default pairs with an amount; without one it must stay
	// absent or it would violate the amount-iff-currency rule.
	if _, ok := values[ontology.FieldCurrency]; !ok && cfg.Currency != "" {
		if _, hasAmount := values[ontology.FieldAmount]; hasAmount {
			values[ontology.FieldCurrency] = fieldValue{
				value: cfg.Currency,
				prov:  Provenance{Field: ontology.FieldCurrency, SourceID: cfg.ID, Origin: OriginDefault},
			}
		}
	}
	if _, ok := values[ontology.FieldFundingType]; !ok && cfg.Type != "" {
		values[ontology.FieldFundingType] = fieldValue{
			value: string(types.ParseFundingType(strings.ToLower(cfg.Type))),
			prov:  Provenance{Field: ontology.FieldFundingType, SourceID: cfg.ID, Origin: OriginDefault},
		}
	}

	// Inferences for required fields the source does not carry explicitly.
	if _, ok := values[ontology.FieldInternalAwardNumber]; !ok {
		if award, has := values[ontology.FieldAwardNumber]; has {
			values[ontology.FieldInternalAwardNumber] = fieldValue{
				value: award.value,
				prov:  Provenance{Field: ontology.FieldInternalAwardNumber, SourceID: cfg.ID, Origin: OriginInferred},
			}
		}
	}
	if _, ok := values[ontology.FieldDOI]; !ok {
		if res, has := values[ontology.FieldResource]; has {
			if doi := doiFromURL(res.value); doi != "" {
				values[ontology.FieldDOI] = fieldValue{
					value: doi,
					prov:  Provenance{Field: ontology.FieldDOI, SourceID: cfg.ID, Origin: OriginInferred},
				}
			}
		}
	}

	var missing []string
	for _, f := range ontology.RequiredGrantFields() {
		if _, ok := values[f]; !ok {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return nil, ingesterr.Validation(ingesterr.CodeMissingRequiredField,
			"source %s: missing required fields %s", cfg.ID, strings.Join(missing, ", "))
	}

	if err := n.buildGrant(cfg, cand, values); err != nil {
		return nil, err
	}
	n.buildOrganizations(cfg, cand, values)
	n.buildInvestigators(cand, values)

	for _, fv := range values {
		cand.Provenance = append(cand.Provenance, fv.prov)
	}
	return cand, nil
}

func (n *Normalizer) buildGrant(cfg *source.Config, cand *Candidate, values map[string]fieldValue) error {
	get := func(f string) string { return values[f].value }

	g := &cand.Grant
	g.AwardNumber = get(ontology.FieldAwardNumber)
	g.Resource = get(ontology.FieldResource)
	g.Description = get(ontology.FieldProjectDescription)
	g.FunderName = get(ontology.FieldFunderName)
	g.FunderID = get(ontology.FieldFunderID)
	g.FundingScheme = get(ontology.FieldFundingScheme)
	g.InternalAwardNumber = get(ontology.FieldInternalAwardNumber)
	g.FundingType = types.ParseFundingType(strings.ToLower(get(ontology.FieldFundingType)))

	if doi := normalizeDOI(get(ontology.FieldDOI)); doi != "" {
		g.DOI = &doi
	} else {
		cand.Warnings = append(cand.Warnings, "no DOI; keyed by award_number + funder_id")
	}

	g.Titles = []types.TitleText{{
		Text: get(ontology.FieldProjectTitle),
		Lang: strings.ToLower(get(ontology.FieldTitleLang)),
	}}

	if raw := get(ontology.FieldStartDate); raw != "" {
		if t, ok := ParseDate(raw); ok {
			g.StartDate = &t
		} else {
			cand.Warnings = append(cand.Warnings, "unparseable start_date "+strconv.Quote(raw))
		}
	}
	if raw := get(ontology.FieldEndDate); raw != "" {
		if t, ok := ParseDate(raw); ok {
			g.EndDate = &t
		} else {
			cand.Warnings = append(cand.Warnings, "unparseable end_date "+strconv.Quote(raw))
		}
	}

	if raw := get(ontology.FieldAmount); raw != "" {
		if amt, ok := parseAmount(raw); ok {
			g.Amount = &amt
		} else {
			cand.Warnings = append(cand.Warnings, "unparseable amount "+strconv.Quote(raw))
		}
	}
	if raw := get(ontology.FieldCurrency); raw != "" {
		if cur, ok := parseCurrency(raw); ok {
			g.Currency = &cur
		} else {
			cand.Warnings = append(cand.Warnings, "invalid currency code "+strconv.Quote(raw))
		}
	}
	if (g.Amount == nil) != (g.Currency == nil) {
		return ingesterr.Validation(ingesterr.CodeInvalidAmountCurrencyPair,
			"source %s award %s: currency must be present iff amount is present", cfg.ID, g.AwardNumber)
	}

	if raw := get(ontology.FieldFundingPercentage); raw != "" {
		pct, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(raw), "%"), 64)
		if err != nil {
			cand.Warnings = append(cand.Warnings, "unparseable funding_percentage "+strconv.Quote(raw))
		} else if pct < 0 || pct > 100 {
			return ingesterr.Validation(ingesterr.CodeInvalidFundingPercentage,
				"source %s award %s: funding_percentage %v outside 0-100", cfg.ID, g.AwardNumber, pct)
		} else {
			g.FundingPercentage = &pct
		}
	}
	return nil
}

// buildOrganizations extracts the funder organization (always present, index
// FunderOrgIndex) and, when the record names a distinct host institution, a
// second candidate.
func (n *Normalizer) buildOrganizations(cfg *source.Config, cand *Candidate, values map[string]fieldValue) {
	funder := OrgCandidate{
		Name:    cand.Grant.FunderName,
		NameKey: NameKey(cand.Grant.FunderName),
	}
	if code, ok := countryCode(cfg.Country); ok {
		funder.CountryCode = &code
	}

	orgName := values[ontology.FieldOrgName].value
	orgKey := NameKey(orgName)

	ror := normalizeROR(values[ontology.FieldOrgROR].value)
	country, hasCountry := countryCode(values[ontology.FieldOrgCountry].value)

	if orgName == "" || orgKey == funder.NameKey {
		// Record-level org attributes describe the funder itself.
		if ror != "" {
			funder.ROR = &ror
		}
		if hasCountry {
			funder.CountryCode = &country
		}
		cand.Orgs = []OrgCandidate{funder}
		return
	}

	host := OrgCandidate{Name: orgName, NameKey: orgKey}
	if ror != "" {
		host.ROR = &ror
	}
	if hasCountry {
		host.CountryCode = &country
	}
	cand.Orgs = []OrgCandidate{funder, host}
}

func (n *Normalizer) buildInvestigators(cand *Candidate, values map[string]fieldValue) {
	// Investigators affiliate with the host institution when the record names
	// one, otherwise their affiliation stays unknown.
	orgIndex := -1
	if len(cand.Orgs) > 1 {
		orgIndex = 1
	}

	given := values[ontology.FieldLeadGivenName].value
	family := values[ontology.FieldLeadFamilyName].value
	full := values[ontology.FieldLeadName].value
	if given == "" && family == "" && full != "" {
		given, family = splitPersonName(full)
	}
	if given != "" || family != "" {
		lead := InvCandidate{
			Role:     types.RoleLeadInvestigator,
			OrgIndex: orgIndex,
			NameKey:  NameKey(strings.TrimSpace(given + " " + family)),
		}
		if given != "" {
			lead.GivenName = &given
		}
		if family != "" {
			lead.FamilyName = &family
		}
		if orcid := normalizeORCID(values[ontology.FieldLeadORCID].value); orcid != "" {
			lead.ORCID = &orcid
		}
		cand.Investigators = append(cand.Investigators, lead)
	}

	for _, name := range strings.Split(values[ontology.FieldCoInvestigators].value, ";") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		g, f := splitPersonName(name)
		co := InvCandidate{
			Role:     types.RoleInvestigator,
			OrgIndex: orgIndex,
			NameKey:  NameKey(strings.TrimSpace(g + " " + f)),
		}
		if g != "" {
			co.GivenName = &g
		}
		if f != "" {
			co.FamilyName = &f
		}
		if co.NameKey != "" {
			cand.Investigators = append(cand.Investigators, co)
		}
	}
}

func normalizeDOI(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "https://doi.org/")
	raw = strings.TrimPrefix(raw, "http://doi.org/")
	raw = strings.TrimPrefix(raw, "doi:")
	return strings.ToLower(strings.TrimSpace(raw))
}

func doiFromURL(url string) string {
	for _, prefix := range []string{"https://doi.org/", "http://doi.org/", "https://dx.doi.org/"} {
		if rest, ok := strings.CutPrefix(url, prefix); ok {
			return normalizeDOI(rest)
		}
	}
	return ""
}

func normalizeROR(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "https://ror.org/")
	raw = strings.TrimPrefix(raw, "http://ror.org/")
	return strings.ToLower(raw)
}

func normalizeORCID(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "https://orcid.org/")
	raw = strings.TrimPrefix(raw, "http://orcid.org/")
	return strings.ToUpper(raw)
}

// countryCode accepts ISO 3166-1 alpha-2 codes only; anything else (country
// names included) is treated as unknown rather than guessed.
func countryCode(raw string) (string, bool) {
	raw = strings.ToUpper(strings.TrimSpace(raw))
	if len(raw) != 2 {
		return "", false
	}
	for _, r := range raw {
		if r < 'A' || r > 'Z' {
			return "", false
		}
	}
	return raw, true
}

// splitPersonName handles "Family, Given" and "Given Middle Family".
func splitPersonName(full string) (given, family string) {
	full = strings.TrimSpace(full)
	if full == "" {
		return "", ""
	}
	if idx := strings.Index(full, ","); idx >= 0 {
		return strings.TrimSpace(full[idx+1:]), strings.TrimSpace(full[:idx])
	}
	parts := strings.Fields(full)
	if len(parts) == 1 {
		return "", parts[0]
	}
	return strings.Join(parts[:len(parts)-1], " "), parts[len(parts)-1]
}

// parseAmount reads a money value in decimal-point or decimal-comma notation.
// With both separators present the last one is the decimal mark and the other
// groups thousands. A lone separator is a decimal mark only when one or two
// digits follow it; a three-digit tail reads as grouping ("50.000" is fifty
// thousand, not fifty).
func parseAmount(raw string) (float64, bool) {
	s := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\u00a0', '€', '$', '£':
			return -1
		}
		return r
	}, strings.TrimSpace(raw))

	lastDot := strings.LastIndexByte(s, '.')
	lastComma := strings.LastIndexByte(s, ',')
	switch {
	case lastDot >= 0 && lastComma >= 0:
		dec := max(lastDot, lastComma)
		whole := strings.NewReplacer(".", "", ",", "").Replace(s[:dec])
		s = whole + "." + s[dec+1:]
	case lastComma >= 0:
		if strings.Count(s, ",") == 1 && len(s)-lastComma-1 <= 2 {
			s = s[:lastComma] + "." + s[lastComma+1:]
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastDot >= 0:
		if strings.Count(s, ".") > 1 || len(s)-lastDot-1 == 3 {
			s = strings.ReplaceAll(s, ".", "")
		}
	}

	amt, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return amt, true
}

func parseCurrency(raw string) (string, bool) {
	cur := strings.ToUpper(strings.TrimSpace(raw))
	if len(cur) != 3 {
		return "", false
	}
	for _, r := range cur {
		if r < 'A' || r > 'Z' {
			return "", false
		}
	}
	return cur, true
}
