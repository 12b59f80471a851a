package repositories

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"eco-challenge-engine/logger"
	"eco-challenge-engine/models"
)

type OrganizationRepo interface {
	AddMember(ctx context.Context, tx *gorm.DB, m *models.OrganizationMember) error
	HasMemberWithRole(ctx context.Context, tx *gorm.DB, organizationID, userID string, roles []string) (bool, error)
}

type organizationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewOrganizationRepo(db *gorm.DB, baseLog *logger.Logger) OrganizationRepo {
	return &organizationRepo{db: db, log: baseLog.With("repo", "OrganizationRepo")}
}

func (r *organizationRepo) AddMember(ctx context.Context, tx *gorm.DB, m *models.OrganizationMember) error {
	return pick(ctx, r.db, tx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "organization_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"role"}),
	}).Create(m).Error
}

func (r *organizationRepo) HasMemberWithRole(ctx context.Context, tx *gorm.DB, organizationID, userID string, roles []string) (bool, error) {
	if organizationID == "" || userID == "" {
		return false, nil
	}
	var count int64
	q := pick(ctx, r.db, tx).Model(&models.OrganizationMember{}).
		Where("organization_id = ? AND user_id = ?", organizationID, userID)
	if len(roles) > 0 {
		q = q.Where("role IN ?", roles)
	}
	if err := q.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
