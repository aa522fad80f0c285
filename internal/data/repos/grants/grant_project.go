package grants

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/openjordi/openjordi-backend/internal/domain"
	"github.com/openjordi/openjordi-backend/internal/platform/dbctx"
	"github.com/openjordi/openjordi-backend/internal/platform/logger"
)

type GrantProjectRepo interface {
	Create(dbc dbctx.Context, grant *types.GrantProject) (*types.GrantProject, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.GrantProject, error)
	GetByDOI(dbc dbctx.Context, doi string) (*types.GrantProject, error)
	GetByAwardFunder(dbc dbctx.Context, awardNumber, funderID string) (*types.GrantProject, error)
	GetBySourceID(dbc dbctx.Context, sourceID string) ([]*types.GrantProject, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
}

type grantProjectRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewGrantProjectRepo(db *gorm.DB, baseLog *logger.Logger) GrantProjectRepo {
	repoLog := baseLog.With("repo", "GrantProjectRepo")
	return &grantProjectRepo{db: db, log: repoLog}
}

func (r *grantProjectRepo) Create(dbc dbctx.Context, grant *types.GrantProject) (*types.GrantProject, error) {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	if grant == nil {
		return nil, errors.New("nil grant project")
	}
	if err := tx.WithContext(dbc.Ctx).Create(grant).Error; err != nil {
		return nil, err
	}
	return grant, nil
}

func (r *grantProjectRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.GrantProject, error) {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	var results []*types.GrantProject
	if len(ids) == 0 {
		return results, nil
	}
	if err := tx.WithContext(dbc.Ctx).
		Where("id IN ?", ids).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *grantProjectRepo) GetByDOI(dbc dbctx.Context, doi string) (*types.GrantProject, error) {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	var grant types.GrantProject
	err := tx.WithContext(dbc.Ctx).
		Where("doi = ?", doi).
		First(&grant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &grant, nil
}

func (r *grantProjectRepo) GetByAwardFunder(dbc dbctx.Context, awardNumber, funderID string) (*types.GrantProject, error) {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	var grant types.GrantProject
	err := tx.WithContext(dbc.Ctx).
		Where("award_number = ? AND funder_id = ?", awardNumber, funderID).
		First(&grant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &grant, nil
}

func (r *grantProjectRepo) GetBySourceID(dbc dbctx.Context, sourceID string) ([]*types.GrantProject, error) {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	var results []*types.GrantProject
	if err := tx.WithContext(dbc.Ctx).
		Where("source_id = ?", sourceID).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *grantProjectRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	if len(updates) == 0 {
		return nil
	}
	return tx.WithContext(dbc.Ctx).
		Model(&types.GrantProject{}).
		Where("id = ?", id).
		Updates(updates).Error
}
