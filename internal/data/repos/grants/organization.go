package grants

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/openjordi/openjordi-backend/internal/domain"
	"github.com/openjordi/openjordi-backend/internal/platform/dbctx"
	"github.com/openjordi/openjordi-backend/internal/platform/logger"
)

type OrganizationRepo interface {
	Create(dbc dbctx.Context, orgs []*types.Organization) ([]*types.Organization, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Organization, error)
	GetByROR(dbc dbctx.Context, ror string) (*types.Organization, error)
	GetByNameKey(dbc dbctx.Context, nameKey string) ([]*types.Organization, error)
	ListByNameTokens(dbc dbctx.Context, tokens []string) ([]*types.Organization, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
}

type organizationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewOrganizationRepo(db *gorm.DB, baseLog *logger.Logger) OrganizationRepo {
	repoLog := baseLog.With("repo", "OrganizationRepo")
	return &organizationRepo{db: db, log: repoLog}
}

func (r *organizationRepo) Create(dbc dbctx.Context, orgs []*types.Organization) ([]*types.Organization, error) {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	if len(orgs) == 0 {
		return []*types.Organization{}, nil
	}
	if err := tx.WithContext(dbc.Ctx).Create(&orgs).Error; err != nil {
		return nil, err
	}
	return orgs, nil
}

func (r *organizationRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Organization, error) {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	var results []*types.Organization
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

func (r *organizationRepo) GetByROR(dbc dbctx.Context, ror string) (*types.Organization, error) {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	var org types.Organization
	err := tx.WithContext(dbc.Ctx).
		Where("ror = ?", ror).
		First(&org).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &org, nil
}

func (r *organizationRepo) GetByNameKey(dbc dbctx.Context, nameKey string) ([]*types.Organization, error) {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	var results []*types.Organization
	if err := tx.WithContext(dbc.Ctx).
		Where("name_key = ?", nameKey).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// ListByNameTokens returns organizations whose name key contains any of the
// given tokens. It is the candidate pool for fuzzy matching; a full scan would
// not survive the store growing past a few thousand organizations.
func (r *organizationRepo) ListByNameTokens(dbc dbctx.Context, tokens []string) ([]*types.Organization, error) {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	var results []*types.Organization
	if len(tokens) == 0 {
		return results, nil
	}
	cond := tx.Where("name_key LIKE ?", "%"+tokens[0]+"%")
	for _, tok := range tokens[1:] {
		cond = cond.Or("name_key LIKE ?", "%"+tok+"%")
	}
	if err := tx.WithContext(dbc.Ctx).
		Where(cond).
		Order("created_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *organizationRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	if len(updates) == 0 {
		return nil
	}
	return tx.WithContext(dbc.Ctx).
		Model(&types.Organization{}).
		Where("id = ?", id).
		Updates(updates).Error
}
