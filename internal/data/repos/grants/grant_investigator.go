package grants

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/openjordi/openjordi-backend/internal/domain"
	"github.com/openjordi/openjordi-backend/internal/platform/dbctx"
	"github.com/openjordi/openjordi-backend/internal/platform/logger"
)

type GrantInvestigatorRepo interface {
	Upsert(dbc dbctx.Context, rows []*types.GrantInvestigator) ([]*types.GrantInvestigator, error)
	GetByGrantProjectIDs(dbc dbctx.Context, grantIDs []uuid.UUID) ([]*types.GrantInvestigator, error)
	GetByInvestigatorIDs(dbc dbctx.Context, invIDs []uuid.UUID) ([]*types.GrantInvestigator, error)
}

type grantInvestigatorRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewGrantInvestigatorRepo(db *gorm.DB, baseLog *logger.Logger) GrantInvestigatorRepo {
	repoLog := baseLog.With("repo", "GrantInvestigatorRepo")
	return &grantInvestigatorRepo{db: db, log: repoLog}
}

// Upsert dedupes by (grant_project_id, investigator_id): a repeat ingestion of
// the same pair updates role in place instead of inserting a second relation.
func (r *grantInvestigatorRepo) Upsert(dbc dbctx.Context, rows []*types.GrantInvestigator) ([]*types.GrantInvestigator, error) {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	if len(rows) == 0 {
		return []*types.GrantInvestigator{}, nil
	}
	if err := tx.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "grant_project_id"}, {Name: "investigator_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"role",
				"updated_at",
			}),
		}).
		Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *grantInvestigatorRepo) GetByGrantProjectIDs(dbc dbctx.Context, grantIDs []uuid.UUID) ([]*types.GrantInvestigator, error) {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	var results []*types.GrantInvestigator
	if len(grantIDs) == 0 {
		return results, nil
	}
	if err := tx.WithContext(dbc.Ctx).
		Where("grant_project_id IN ?", grantIDs).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *grantInvestigatorRepo) GetByInvestigatorIDs(dbc dbctx.Context, invIDs []uuid.UUID) ([]*types.GrantInvestigator, error) {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	var results []*types.GrantInvestigator
	if len(invIDs) == 0 {
		return results, nil
	}
	if err := tx.WithContext(dbc.Ctx).
		Where("investigator_id IN ?", invIDs).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
