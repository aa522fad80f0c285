package grants

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/openjordi/openjordi-backend/internal/domain"
	"github.com/openjordi/openjordi-backend/internal/platform/dbctx"
	"github.com/openjordi/openjordi-backend/internal/platform/logger"
)

// BatchSummary is one row of the per-source status report.
type BatchSummary struct {
	SourceID    string `json:"source_id"`
	Batches     int    `json:"batches"`
	LastStatus  string `json:"last_status"`
	RecordCount int    `json:"record_count"`
	Inserted    int    `json:"inserted"`
	Merged      int    `json:"merged"`
	Updated     int    `json:"updated"`
	Rejected    int    `json:"rejected"`
	Flagged     int    `json:"flagged"`
}

type SourceBatchRepo interface {
	Create(dbc dbctx.Context, batch *types.SourceBatch) (*types.SourceBatch, error)
	LatestBySourceID(dbc dbctx.Context, sourceID string) (*types.SourceBatch, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	Summaries(dbc dbctx.Context) ([]*BatchSummary, error)
}

type sourceBatchRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSourceBatchRepo(db *gorm.DB, baseLog *logger.Logger) SourceBatchRepo {
	repoLog := baseLog.With("repo", "SourceBatchRepo")
	return &sourceBatchRepo{db: db, log: repoLog}
}

func (r *sourceBatchRepo) Create(dbc dbctx.Context, batch *types.SourceBatch) (*types.SourceBatch, error) {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	if batch == nil {
		return nil, errors.New("nil source batch")
	}
	if err := tx.WithContext(dbc.Ctx).Create(batch).Error; err != nil {
		return nil, err
	}
	return batch, nil
}

func (r *sourceBatchRepo) LatestBySourceID(dbc dbctx.Context, sourceID string) (*types.SourceBatch, error) {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	var batch types.SourceBatch
	err := tx.WithContext(dbc.Ctx).
		Where("source_id = ?", sourceID).
		Order("started_at DESC").
		First(&batch).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

func (r *sourceBatchRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	if len(updates) == 0 {
		return nil
	}
	return tx.WithContext(dbc.Ctx).
		Model(&types.SourceBatch{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *sourceBatchRepo) Summaries(dbc dbctx.Context) ([]*BatchSummary, error) {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}

	var batches []*types.SourceBatch
	if err := tx.WithContext(dbc.Ctx).
		Order("source_id ASC, started_at ASC").
		Find(&batches).Error; err != nil {
		return nil, err
	}

	bySource := map[string]*BatchSummary{}
	order := []string{}
	for _, b := range batches {
		s, ok := bySource[b.SourceID]
		if !ok {
			s = &BatchSummary{SourceID: b.SourceID}
			bySource[b.SourceID] = s
			order = append(order, b.SourceID)
		}
		s.Batches++
		s.LastStatus = b.Status
		s.RecordCount += b.RecordCount
		s.Inserted += b.Inserted
		s.Merged += b.Merged
		s.Updated += b.Updated
		s.Rejected += b.Rejected
		s.Flagged += b.Flagged
	}

	out := make([]*BatchSummary, 0, len(order))
	for _, id := range order {
		out = append(out, bySource[id])
	}
	return out, nil
}
