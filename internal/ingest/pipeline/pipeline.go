package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	grantsrepo "github.com/openjordi/openjordi-backend/internal/data/repos/grants"
	types "github.com/openjordi/openjordi-backend/internal/domain"
	"github.com/openjordi/openjordi-backend/internal/ingest/align"
	"github.com/openjordi/openjordi-backend/internal/ingest/commit"
	"github.com/openjordi/openjordi-backend/internal/ingest/ingesterr"
	"github.com/openjordi/openjordi-backend/internal/ingest/normalize"
	"github.com/openjordi/openjordi-backend/internal/ingest/ontology"
	"github.com/openjordi/openjordi-backend/internal/ingest/source"
	"github.com/openjordi/openjordi-backend/internal/platform/dbctx"
	"github.com/openjordi/openjordi-backend/internal/platform/logger"
)

// RecordStatus is the terminal state of one record in a batch.
type RecordStatus string

const (
	StatusInserted RecordStatus = "inserted"
	StatusMerged   RecordStatus = "merged"
	StatusUpdated  RecordStatus = "updated"
	StatusRejected RecordStatus = "rejected"
	StatusFlagged  RecordStatus = "flagged"
	StatusSkipped  RecordStatus = "skipped"
)

// RecordResult is one record's outcome. No record leaves the pipeline without
// a status and, for anything except a clean commit, a reason code.
type RecordResult struct {
	Index    int          `json:"index"`
	Status   RecordStatus `json:"status"`
	Reason   string       `json:"reason,omitempty"`
	Detail   string       `json:"detail,omitempty"`
	GrantID  uuid.UUID    `json:"grant_id,omitempty"`
	Warnings []string     `json:"warnings,omitempty"`
}

// BatchReport is what IngestBatch hands back to the caller.
type BatchReport struct {
	BatchID  uuid.UUID      `json:"batch_id"`
	SourceID string         `json:"source_id"`
	Status   string         `json:"status"`
	Records  []RecordResult `json:"records"`
	Inserted int            `json:"inserted"`
	Merged   int            `json:"merged"`
	Updated  int            `json:"updated"`
	Rejected int            `json:"rejected"`
	Flagged  int            `json:"flagged"`
}

// Pipeline drives one batch through Normalizing, Resolving and Committing.
// Normalization fans out on a bounded worker pool; resolve-and-commit holds
// the record's identity-key locks so two records (or two concurrent batches)
// asserting the same new entity cannot both decide to create it.
type Pipeline struct {
	norm    *normalize.Normalizer
	aligner align.Aligner
	coord   *commit.Coordinator
	batches grantsrepo.SourceBatchRepo
	flags   grantsrepo.ReviewFlagRepo
	locks   *keyedMutex
	workers int
	log     *logger.Logger
}

// New builds a Pipeline. aligner may be nil when no field alignment is
// configured; sources then rely on their declared mapping alone.
func New(
	norm *normalize.Normalizer,
	aligner align.Aligner,
	coord *commit.Coordinator,
	batches grantsrepo.SourceBatchRepo,
	flags grantsrepo.ReviewFlagRepo,
	workers int,
	baseLog *logger.Logger,
) *Pipeline {
	if workers < 1 {
		workers = 4
	}
	return &Pipeline{
		norm:    norm,
		aligner: aligner,
		coord:   coord,
		batches: batches,
		flags:   flags,
		locks:   newKeyedMutex(),
		workers: workers,
		log:     baseLog.With("component", "Pipeline"),
	}
}

// IngestBatch processes one fetched batch for one source. Record failures are
// contained: the returned error covers batch-level problems only (bookkeeping
// writes, not record content). Cancellation is honored between records;
// in-flight record transactions run to completion first.
func (p *Pipeline) IngestBatch(ctx context.Context, cfg *source.Config, records []source.RawRecord, fetchedAt time.Time) (*BatchReport, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil source config")
	}
	log := p.log.With("source_id", cfg.ID, "records", len(records))
	log.Info("batch started")

	batch := &types.SourceBatch{
		ID:          uuid.New(),
		SourceID:    cfg.ID,
		Status:      types.BatchStatusRunning,
		FetchedAt:   &fetchedAt,
		StartedAt:   time.Now().UTC(),
		RecordCount: len(records),
	}
	if _, err := p.batches.Create(dbctx.Context{Ctx: context.WithoutCancel(ctx)}, batch); err != nil {
		return nil, fmt.Errorf("create source batch: %w", err)
	}

	report := &BatchReport{
		BatchID:  batch.ID,
		SourceID: cfg.ID,
		Records:  make([]RecordResult, len(records)),
	}
	for i := range report.Records {
		report.Records[i].Index = i
	}

	cands := p.normalizeStage(ctx, cfg, records, report)
	p.rejectDuplicateStrongIDs(ctx, batch, records, cands, report)
	canceled := p.commitStage(ctx, batch, records, cands, report)

	for _, res := range report.Records {
		switch res.Status {
		case StatusInserted:
			report.Inserted++
		case StatusMerged:
			report.Merged++
		case StatusUpdated:
			report.Updated++
		case StatusRejected:
			report.Rejected++
		case StatusFlagged:
			report.Flagged++
		}
	}

	report.Status = types.BatchStatusDone
	if canceled {
		report.Status = types.BatchStatusCanceled
	}

	// Bookkeeping must land even when the caller's context is gone.
	finCtx := context.WithoutCancel(ctx)
	now := time.Now().UTC()
	err := p.batches.UpdateFields(dbctx.Context{Ctx: finCtx}, batch.ID, map[string]interface{}{
		"status":      report.Status,
		"finished_at": now,
		"inserted":    report.Inserted,
		"merged":      report.Merged,
		"updated":     report.Updated,
		"rejected":    report.Rejected,
		"flagged":     report.Flagged,
	})
	if err != nil {
		return report, fmt.Errorf("finalize source batch: %w", err)
	}
	log.Info("batch finished",
		"status", report.Status,
		"inserted", report.Inserted, "merged", report.Merged, "updated", report.Updated,
		"rejected", report.Rejected, "flagged", report.Flagged)
	return report, nil
}

// normalizeStage runs the pure transform on the worker pool. cands is
// index-aligned with records; a nil entry means the record already reached a
// terminal status.
func (p *Pipeline) normalizeStage(ctx context.Context, cfg *source.Config, records []source.RawRecord, report *BatchReport) []*normalize.Candidate {
	cands := make([]*normalize.Candidate, len(records))
	schema := ontology.Schema()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i := range records {
		g.Go(func() error {
			var aligned []align.AlignedField
			if p.aligner != nil {
				var err error
				aligned, err = p.aligner.Align(gctx, cfg.ID, records[i], schema)
				if err != nil {
					// Alignment is best-effort; the declared mapping still applies.
					p.log.Warn("field alignment failed", "source_id", cfg.ID, "index", i, "err", err)
				}
			}
			cand, err := p.norm.Normalize(cfg, records[i], aligned)
			if err != nil {
				report.Records[i].Status = StatusRejected
				report.Records[i].Reason = ingesterr.CodeOf(err)
				report.Records[i].Detail = err.Error()
				return nil
			}
			cands[i] = cand
			report.Records[i].Warnings = cand.Warnings
			return nil
		})
	}
	// Workers only report per-record outcomes; the group never fails.
	_ = g.Wait()
	return cands
}

// rejectDuplicateStrongIDs rejects every record in the batch that claims a
// strong identifier (ROR, ORCID) some other record binds to a different
// entity. Both sides get rejected and flagged; resolution never sees them.
func (p *Pipeline) rejectDuplicateStrongIDs(ctx context.Context, batch *types.SourceBatch, records []source.RawRecord, cands []*normalize.Candidate, report *BatchReport) {
	type claim struct {
		nameKeys map[string]struct{}
		indices  map[int]struct{}
	}
	collect := func(byID map[string]*claim, id, nameKey string, idx int) {
		c, ok := byID[id]
		if !ok {
			c = &claim{nameKeys: map[string]struct{}{}, indices: map[int]struct{}{}}
			byID[id] = c
		}
		c.nameKeys[nameKey] = struct{}{}
		c.indices[idx] = struct{}{}
	}

	rors := map[string]*claim{}
	orcids := map[string]*claim{}
	for i, cand := range cands {
		if cand == nil {
			continue
		}
		for _, oc := range cand.Orgs {
			if oc.ROR != nil {
				collect(rors, *oc.ROR, oc.NameKey, i)
			}
		}
		for _, ic := range cand.Investigators {
			if ic.ORCID != nil {
				collect(orcids, *ic.ORCID, ic.NameKey, i)
			}
		}
	}

	reject := func(byID map[string]*claim, kind, idName string) {
		for id, c := range byID {
			if len(c.nameKeys) < 2 {
				continue
			}
			for idx := range c.indices {
				if cands[idx] == nil {
					continue
				}
				detail := fmt.Sprintf("%s %s claimed by %d distinct %ss in one batch", idName, id, len(c.nameKeys), kind)
				report.Records[idx].Status = StatusRejected
				report.Records[idx].Reason = ingesterr.CodeDuplicateStrongIdentifier
				report.Records[idx].Detail = detail
				p.flag(ctx, batch, kind, ingesterr.CodeDuplicateStrongIdentifier, detail, records[idx])
				cands[idx] = nil
			}
		}
	}
	reject(rors, "organization", "ROR")
	reject(orcids, "investigator", "ORCID")
}

// commitStage resolves and commits the surviving candidates. Records whose
// identity keys are disjoint proceed concurrently; shared keys serialize.
// Returns true when the batch stopped early on cancellation.
func (p *Pipeline) commitStage(ctx context.Context, batch *types.SourceBatch, records []source.RawRecord, cands []*normalize.Candidate, report *BatchReport) bool {
	canceled := false

	var g errgroup.Group
	g.SetLimit(p.workers)
	for i, cand := range cands {
		if cand == nil {
			continue
		}
		if ctx.Err() != nil {
			canceled = true
			report.Records[i].Status = StatusSkipped
			report.Records[i].Reason = "batch_canceled"
			continue
		}
		g.Go(func() error {
			unlock := p.locks.LockAll(identityKeys(cand))
			defer unlock()

			// The record transaction runs to completion even if the batch is
			// cancelled underneath it.
			out, err := p.coord.Apply(context.WithoutCancel(ctx), cand)
			if err != nil {
				p.recordFailure(ctx, batch, records[i], &report.Records[i], err)
				return nil
			}
			report.Records[i].Status = RecordStatus(out.Kind)
			report.Records[i].GrantID = out.GrantID
			if len(out.Notes) > 0 {
				report.Records[i].Warnings = append(report.Records[i].Warnings, out.Notes...)
			}
			return nil
		})
	}
	_ = g.Wait()
	return canceled
}

func (p *Pipeline) recordFailure(ctx context.Context, batch *types.SourceBatch, rec source.RawRecord, res *RecordResult, err error) {
	res.Reason = ingesterr.CodeOf(err)
	res.Detail = err.Error()
	switch {
	case ingesterr.IsConflict(err), ingesterr.IsAmbiguous(err):
		res.Status = StatusFlagged
		p.flag(ctx, batch, "record", res.Reason, err.Error(), rec)
	case ingesterr.IsConsistency(err):
		// A consistency failure is a logic defect, not bad input.
		res.Status = StatusRejected
		p.log.Error("consistency failure", "batch_id", batch.ID, "err", err)
	default:
		res.Status = StatusRejected
		p.log.Warn("record rejected", "batch_id", batch.ID, "err", err)
	}
}

func (p *Pipeline) flag(ctx context.Context, batch *types.SourceBatch, entityKind, reason, detail string, rec source.RawRecord) {
	payload, err := json.Marshal(rec)
	if err != nil {
		payload = []byte(`{}`)
	}
	notes, _ := json.Marshal([]string{detail})
	_, err = p.flags.Create(dbctx.Context{Ctx: context.WithoutCancel(ctx)}, []*types.ReviewFlag{{
		ID:         uuid.New(),
		SourceID:   batch.SourceID,
		BatchID:    &batch.ID,
		Reason:     reason,
		EntityKind: entityKind,
		Payload:    datatypes.JSON(payload),
		Notes:      datatypes.JSON(notes),
	}})
	if err != nil {
		p.log.Error("persist review flag", "batch_id", batch.ID, "err", err)
	}
}

// identityKeys names everything a record could create or merge into. Locking
// these serializes the resolve-then-commit sequence per identity.
func identityKeys(cand *normalize.Candidate) []string {
	var keys []string
	for _, oc := range cand.Orgs {
		if oc.ROR != nil {
			keys = append(keys, "org:ror:"+*oc.ROR)
		}
		keys = append(keys, "org:name:"+oc.NameKey)
	}
	for _, ic := range cand.Investigators {
		if ic.ORCID != nil {
			keys = append(keys, "inv:orcid:"+*ic.ORCID)
		}
		keys = append(keys, "inv:name:"+ic.NameKey)
	}
	if cand.Grant.DOI != nil {
		keys = append(keys, "grant:doi:"+*cand.Grant.DOI)
	}
	keys = append(keys, "grant:award:"+cand.Grant.FunderID+"|"+cand.Grant.AwardNumber)
	return keys
}
