package grants

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/openjordi/openjordi-backend/internal/domain"
	"github.com/openjordi/openjordi-backend/internal/platform/dbctx"
	"github.com/openjordi/openjordi-backend/internal/platform/logger"
)

type InvestigatorRepo interface {
	Create(dbc dbctx.Context, invs []*types.Investigator) ([]*types.Investigator, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Investigator, error)
	GetByORCID(dbc dbctx.Context, orcid string) (*types.Investigator, error)
	GetByNameKey(dbc dbctx.Context, nameKey string) ([]*types.Investigator, error)
	GetByOrganizationID(dbc dbctx.Context, orgID uuid.UUID) ([]*types.Investigator, error)
	All(dbc dbctx.Context) ([]*types.Investigator, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
}

type investigatorRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewInvestigatorRepo(db *gorm.DB, baseLog *logger.Logger) InvestigatorRepo {
	repoLog := baseLog.With("repo", "InvestigatorRepo")
	return &investigatorRepo{db: db, log: repoLog}
}

func (r *investigatorRepo) Create(dbc dbctx.Context, invs []*types.Investigator) ([]*types.Investigator, error) {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	if len(invs) == 0 {
		return []*types.Investigator{}, nil
	}
	if err := tx.WithContext(dbc.Ctx).Create(&invs).Error; err != nil {
		return nil, err
	}
	return invs, nil
}

func (r *investigatorRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Investigator, error) {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	var results []*types.Investigator
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

func (r *investigatorRepo) GetByORCID(dbc dbctx.Context, orcid string) (*types.Investigator, error) {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	var inv types.Investigator
	err := tx.WithContext(dbc.Ctx).
		Where("orcid = ?", orcid).
		First(&inv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *investigatorRepo) GetByNameKey(dbc dbctx.Context, nameKey string) ([]*types.Investigator, error) {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	var results []*types.Investigator
	if err := tx.WithContext(dbc.Ctx).
		Where("name_key = ?", nameKey).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *investigatorRepo) GetByOrganizationID(dbc dbctx.Context, orgID uuid.UUID) ([]*types.Investigator, error) {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	var results []*types.Investigator
	if err := tx.WithContext(dbc.Ctx).
		Where("organization_id = ?", orgID).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *investigatorRepo) All(dbc dbctx.Context) ([]*types.Investigator, error) {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	var results []*types.Investigator
	if err := tx.WithContext(dbc.Ctx).
		Order("created_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *investigatorRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	if len(updates) == 0 {
		return nil
	}
	return tx.WithContext(dbc.Ctx).
		Model(&types.Investigator{}).
		Where("id = ?", id).
		Updates(updates).Error
}
