package pipeline

import (
	"context"
	"fmt"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	grantsrepo "github.com/openjordi/openjordi-backend/internal/data/repos/grants"
	"github.com/openjordi/openjordi-backend/internal/data/repos/testutil"
	types "github.com/openjordi/openjordi-backend/internal/domain"
	"github.com/openjordi/openjordi-backend/internal/ingest/align"
	"github.com/openjordi/openjordi-backend/internal/ingest/commit"
	"github.com/openjordi/openjordi-backend/internal/ingest/ingesterr"
	"github.com/openjordi/openjordi-backend/internal/ingest/normalize"
	"github.com/openjordi/openjordi-backend/internal/ingest/ontology"
	"github.com/openjordi/openjordi-backend/internal/ingest/resolve"
	"github.com/openjordi/openjordi-backend/internal/ingest/source"
)

// The test pipeline runs single-worker because all repos share one test
// transaction; production hands the coordinator a connection pool.
func testPipeline(t *testing.T, aligner align.Aligner) (*Pipeline, *gorm.DB) {
	t.Helper()
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	log := testutil.Logger(t)
	orgs := grantsrepo.NewOrganizationRepo(tx, log)
	invs := grantsrepo.NewInvestigatorRepo(tx, log)
	grants := grantsrepo.NewGrantProjectRepo(tx, log)
	links := grantsrepo.NewGrantInvestigatorRepo(tx, log)
	batches := grantsrepo.NewSourceBatchRepo(tx, log)
	flags := grantsrepo.NewReviewFlagRepo(tx, log)
	r := resolve.New(orgs, invs, 0, log)
	coord := commit.New(tx, r, orgs, invs, grants, links, log)
	norm := normalize.New(0.7, log)
	return New(norm, aligner, coord, batches, flags, 1, log), tx
}

func testSource() *source.Config {
	return &source.Config{
		ID:       "irc",
		Funder:   "Irish Research Council",
		FunderID: "irc",
		Country:  "IE",
		Type:     "grant",
		Format:   source.FormatCSV,
		DataLink: "https://research.ie/awards.csv",
		Mapping: map[string]string{
			"Project ID": ontology.FieldAwardNumber,
			"Title":      ontology.FieldProjectTitle,
			"Link":       ontology.FieldResource,
			"Awardee":    ontology.FieldLeadName,
			"Host Body":  ontology.FieldOrgName,
			"ROR":        ontology.FieldOrgROR,
		},
	}
}

func record(award, title, awardee, host string) source.RawRecord {
	return source.RawRecord{
		"Project ID": award,
		"Title":      title,
		"Link":       "https://research.ie/awards/" + award,
		"Awardee":    awardee,
		"Host Body":  host,
	}
}

func TestIngestBatchReportAndCounters(t *testing.T) {
	p, tx := testPipeline(t, nil)
	ctx := context.Background()

	records := []source.RawRecord{
		record("A-1", "Wave modelling", "Pat Murphy", "Trinity College Dublin"),
		record("A-2", "Peatland carbon", "Wei Chen", "University College Cork"),
		{"Title": "no award number here"},
	}
	report, err := p.IngestBatch(ctx, testSource(), records, time.Now().UTC())
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if report.Inserted != 2 || report.Rejected != 1 {
		t.Fatalf("report: %+v", report)
	}
	if report.Status != types.BatchStatusDone {
		t.Fatalf("batch status: %s", report.Status)
	}
	if report.Records[2].Reason != ingesterr.CodeMissingRequiredField {
		t.Fatalf("rejected record must carry a reason code, got %q", report.Records[2].Reason)
	}

	// Both records name the same funder: tier-2 resolution collapses it to
	// one row, so the store holds funder + two host bodies.
	var orgs int64
	tx.Model(&types.Organization{}).Count(&orgs)
	if orgs != 3 {
		t.Fatalf("organizations: got %d, want 3", orgs)
	}

	var batch types.SourceBatch
	if err := tx.First(&batch, "id = ?", report.BatchID).Error; err != nil {
		t.Fatalf("load batch: %v", err)
	}
	if batch.Status != types.BatchStatusDone || batch.Inserted != 2 || batch.Rejected != 1 || batch.RecordCount != 3 {
		t.Fatalf("persisted batch: %+v", batch)
	}
	if batch.FinishedAt == nil {
		t.Fatalf("finished_at not set")
	}
}

func TestIngestBatchIsIdempotent(t *testing.T) {
	p, tx := testPipeline(t, nil)
	ctx := context.Background()

	records := []source.RawRecord{
		record("A-1", "Wave modelling", "Pat Murphy", "Trinity College Dublin"),
		record("A-2", "Peatland carbon", "Wei Chen", "University College Cork"),
	}
	if _, err := p.IngestBatch(ctx, testSource(), records, time.Now().UTC()); err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	second, err := p.IngestBatch(ctx, testSource(), records, time.Now().UTC())
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	if second.Merged != 2 || second.Inserted != 0 {
		t.Fatalf("re-ingest report: %+v", second)
	}

	var grants, orgs, invs, links int64
	tx.Model(&types.GrantProject{}).Count(&grants)
	tx.Model(&types.Organization{}).Count(&orgs)
	tx.Model(&types.Investigator{}).Count(&invs)
	tx.Model(&types.GrantInvestigator{}).Count(&links)
	if grants != 2 || orgs != 3 || invs != 2 || links != 2 {
		t.Fatalf("row counts after re-ingest: grants=%d orgs=%d invs=%d links=%d", grants, orgs, invs, links)
	}
}

func TestIngestBatchDuplicateStrongIdentifier(t *testing.T) {
	p, tx := testPipeline(t, nil)
	ctx := context.Background()

	a := record("A-1", "Wave modelling", "Pat Murphy", "Trinity College Dublin")
	a["ROR"] = "01abc9922"
	b := record("A-2", "Peatland carbon", "Wei Chen", "University College Cork")
	b["ROR"] = "01abc9922"

	report, err := p.IngestBatch(ctx, testSource(), []source.RawRecord{a, b}, time.Now().UTC())
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if report.Rejected != 2 {
		t.Fatalf("both claimants must be rejected: %+v", report)
	}
	for _, res := range report.Records {
		if res.Reason != ingesterr.CodeDuplicateStrongIdentifier {
			t.Fatalf("record %d reason: %q", res.Index, res.Reason)
		}
	}

	var flags int64
	tx.Model(&types.ReviewFlag{}).Where("reason = ?", ingesterr.CodeDuplicateStrongIdentifier).Count(&flags)
	if flags != 2 {
		t.Fatalf("review flags: got %d, want 2", flags)
	}
	var orgs int64
	tx.Model(&types.Organization{}).Count(&orgs)
	if orgs != 0 {
		t.Fatalf("rejected records must not create rows, orgs=%d", orgs)
	}
}

func TestIngestBatchFlagsMergeConflict(t *testing.T) {
	p, tx := testPipeline(t, nil)
	ctx := context.Background()

	first := record("A-1", "Wave modelling", "Pat Murphy", "Trinity College Dublin")
	if _, err := p.IngestBatch(ctx, testSource(), []source.RawRecord{first}, time.Now().UTC()); err != nil {
		t.Fatalf("first ingest: %v", err)
	}

	conflicting := record("A-1", "Wave modelling", "Pat Murphy", "Trinity College Dublin")
	conflicting["Link"] = "https://research.ie/awards/other-link"

	report, err := p.IngestBatch(ctx, testSource(), []source.RawRecord{conflicting}, time.Now().UTC())
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	if report.Flagged != 1 {
		t.Fatalf("conflict must flag, not reject: %+v", report)
	}
	if report.Records[0].Reason != ingesterr.CodeMergeConflict {
		t.Fatalf("reason: %q", report.Records[0].Reason)
	}

	var flag types.ReviewFlag
	if err := tx.First(&flag, "reason = ?", ingesterr.CodeMergeConflict).Error; err != nil {
		t.Fatalf("load flag: %v", err)
	}
	if flag.SourceID != "irc" || flag.BatchID == nil || *flag.BatchID != report.BatchID {
		t.Fatalf("flag attribution: %+v", flag)
	}
}

// stubAligner maps one fixed raw column deterministically.
type stubAligner struct{}

func (stubAligner) Align(_ context.Context, _ string, rec source.RawRecord, _ []ontology.Field) ([]align.AlignedField, error) {
	if v, ok := rec["Beschreibung"]; ok {
		return []align.AlignedField{
			{Field: ontology.FieldProjectDescription, Value: v, RawKey: "Beschreibung", Confidence: 0.95},
		}, nil
	}
	return nil, nil
}

func TestIngestBatchUsesAlignedFields(t *testing.T) {
	p, tx := testPipeline(t, stubAligner{})
	ctx := context.Background()

	rec := record("A-1", "Wave modelling", "Pat Murphy", "Trinity College Dublin")
	rec["Beschreibung"] = "Modellierung von Küstenwellen"

	report, err := p.IngestBatch(ctx, testSource(), []source.RawRecord{rec}, time.Now().UTC())
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if report.Inserted != 1 {
		t.Fatalf("report: %+v", report)
	}
	var grant types.GrantProject
	if err := tx.First(&grant, "id = ?", report.Records[0].GrantID).Error; err != nil {
		t.Fatalf("load grant: %v", err)
	}
	if grant.Description != "Modellierung von Küstenwellen" {
		t.Fatalf("aligned description not applied: %q", grant.Description)
	}
}

// poolPipeline wires the pipeline against a file-backed store so commits from
// different workers run as real concurrent transactions instead of sharing
// one test transaction.
func poolPipeline(t *testing.T, workers int) (*Pipeline, *gorm.DB) {
	t.Helper()
	db := testutil.FileDB(t)
	log := testutil.Logger(t)
	orgs := grantsrepo.NewOrganizationRepo(db, log)
	invs := grantsrepo.NewInvestigatorRepo(db, log)
	grants := grantsrepo.NewGrantProjectRepo(db, log)
	links := grantsrepo.NewGrantInvestigatorRepo(db, log)
	batches := grantsrepo.NewSourceBatchRepo(db, log)
	flags := grantsrepo.NewReviewFlagRepo(db, log)
	r := resolve.New(orgs, invs, 0, log)
	coord := commit.New(db, r, orgs, invs, grants, links, log)
	norm := normalize.New(0.7, log)
	return New(norm, nil, coord, batches, flags, workers, log), db
}

func TestIngestBatchConcurrentWorkersShareOneOrganization(t *testing.T) {
	p, db := poolPipeline(t, 4)
	ctx := context.Background()

	// Every record asserts the same new organization by ROR; without the
	// identity locks the workers would race create-vs-create.
	var records []source.RawRecord
	for i := 0; i < 12; i++ {
		rec := record(fmt.Sprintf("C-%d", i), fmt.Sprintf("Project %d", i), "Pat Murphy", "Trinity College Dublin")
		rec["ROR"] = "02tyrky19"
		records = append(records, rec)
	}
	report, err := p.IngestBatch(ctx, testSource(), records, time.Now().UTC())
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if report.Inserted != 12 || report.Rejected != 0 || report.Flagged != 0 {
		t.Fatalf("report: %+v", report)
	}

	var withROR int64
	db.Model(&types.Organization{}).Where("ror = ?", "02tyrky19").Count(&withROR)
	if withROR != 1 {
		t.Fatalf("organizations holding the shared ROR: got %d, want 1", withROR)
	}
	var orgs, invs, grants int64
	db.Model(&types.Organization{}).Count(&orgs)
	db.Model(&types.Investigator{}).Count(&invs)
	db.Model(&types.GrantProject{}).Count(&grants)
	if orgs != 2 || invs != 1 || grants != 12 {
		t.Fatalf("rows: orgs=%d invs=%d grants=%d", orgs, invs, grants)
	}
}

func TestIngestConcurrentBatchesShareOneOrganization(t *testing.T) {
	p, db := poolPipeline(t, 2)
	ctx := context.Background()

	cfgA := testSource()
	cfgB := testSource()
	cfgB.ID = "irc_archive"

	batch := func(prefix string) []source.RawRecord {
		var recs []source.RawRecord
		for i := 0; i < 6; i++ {
			rec := record(fmt.Sprintf("%s-%d", prefix, i), fmt.Sprintf("%s project %d", prefix, i), "Wei Chen", "University College Cork")
			rec["ROR"] = "03bea9k73"
			recs = append(recs, rec)
		}
		return recs
	}

	var g errgroup.Group
	g.Go(func() error {
		_, err := p.IngestBatch(ctx, cfgA, batch("A"), time.Now().UTC())
		return err
	})
	g.Go(func() error {
		_, err := p.IngestBatch(ctx, cfgB, batch("B"), time.Now().UTC())
		return err
	})
	if err := g.Wait(); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	var withROR int64
	db.Model(&types.Organization{}).Where("ror = ?", "03bea9k73").Count(&withROR)
	if withROR != 1 {
		t.Fatalf("organizations holding the shared ROR: got %d, want 1", withROR)
	}
	var grants int64
	db.Model(&types.GrantProject{}).Count(&grants)
	if grants != 12 {
		t.Fatalf("grants: got %d, want 12", grants)
	}
}

func TestIngestBatchCancellation(t *testing.T) {
	p, _ := testPipeline(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	records := []source.RawRecord{
		record("A-1", "Wave modelling", "Pat Murphy", "Trinity College Dublin"),
	}
	report, err := p.IngestBatch(ctx, testSource(), records, time.Now().UTC())
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if report.Status != types.BatchStatusCanceled {
		t.Fatalf("batch status: %s", report.Status)
	}
	if report.Records[0].Status != StatusSkipped {
		t.Fatalf("record status: %s", report.Records[0].Status)
	}
}
