package grants

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/openjordi/openjordi-backend/internal/domain"
	"github.com/openjordi/openjordi-backend/internal/platform/dbctx"
	"github.com/openjordi/openjordi-backend/internal/platform/logger"
)

type ReviewFlagRepo interface {
	Create(dbc dbctx.Context, flags []*types.ReviewFlag) ([]*types.ReviewFlag, error)
	ListUnresolved(dbc dbctx.Context, sourceID string) ([]*types.ReviewFlag, error)
	MarkResolved(dbc dbctx.Context, ids []uuid.UUID) error
}

type reviewFlagRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewReviewFlagRepo(db *gorm.DB, baseLog *logger.Logger) ReviewFlagRepo {
	repoLog := baseLog.With("repo", "ReviewFlagRepo")
	return &reviewFlagRepo{db: db, log: repoLog}
}

func (r *reviewFlagRepo) Create(dbc dbctx.Context, flags []*types.ReviewFlag) ([]*types.ReviewFlag, error) {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	if len(flags) == 0 {
		return []*types.ReviewFlag{}, nil
	}
	if err := tx.WithContext(dbc.Ctx).Create(&flags).Error; err != nil {
		return nil, err
	}
	return flags, nil
}

func (r *reviewFlagRepo) ListUnresolved(dbc dbctx.Context, sourceID string) ([]*types.ReviewFlag, error) {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	q := tx.WithContext(dbc.Ctx).Where("resolved = ?", false)
	if sourceID != "" {
		q = q.Where("source_id = ?", sourceID)
	}
	var results []*types.ReviewFlag
	if err := q.Order("created_at ASC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *reviewFlagRepo) MarkResolved(dbc dbctx.Context, ids []uuid.UUID) error {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	if len(ids) == 0 {
		return nil
	}
	return tx.WithContext(dbc.Ctx).
		Model(&types.ReviewFlag{}).
		Where("id IN ?", ids).
		Update("resolved", true).Error
}
