package repositories

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"eco-challenge-engine/logger"
	"eco-challenge-engine/models"
)

type SchoolRepo interface {
	UpsertSchool(ctx context.Context, tx *gorm.DB, s *models.School) error
	UpsertMemberships(ctx context.Context, tx *gorm.DB, rows []models.SchoolMembership) error
	SchoolOf(ctx context.Context, tx *gorm.DB, userID string) (string, error)
	StudentsOf(ctx context.Context, tx *gorm.DB, schoolID string) ([]string, error)
	LastSyncedAt(ctx context.Context, tx *gorm.DB) (time.Time, error)
}

type schoolRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSchoolRepo(db *gorm.DB, baseLog *logger.Logger) SchoolRepo {
	return &schoolRepo{db: db, log: baseLog.With("repo", "SchoolRepo")}
}

func (r *schoolRepo) UpsertSchool(ctx context.Context, tx *gorm.DB, s *models.School) error {
	return pick(ctx, r.db, tx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name"}),
	}).Create(s).Error
}

func (r *schoolRepo) UpsertMemberships(ctx context.Context, tx *gorm.DB, rows []models.SchoolMembership) error {
	if len(rows) == 0 {
		return nil
	}
	return pick(ctx, r.db, tx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"school_id", "updated_at"}),
	}).Create(&rows).Error
}

func (r *schoolRepo) SchoolOf(ctx context.Context, tx *gorm.DB, userID string) (string, error) {
	m, err := firstOrNil[models.SchoolMembership](pick(ctx, r.db, tx).Where("user_id = ?", userID))
	if err != nil || m == nil {
		return "", err
	}
	return m.SchoolID, nil
}

func (r *schoolRepo) StudentsOf(ctx context.Context, tx *gorm.DB, schoolID string) ([]string, error) {
	var ids []string
	err := pick(ctx, r.db, tx).Model(&models.SchoolMembership{}).
		Where("school_id = ?", schoolID).
		Order("user_id ASC").
		Pluck("user_id", &ids).Error
	return ids, err
}

func (r *schoolRepo) LastSyncedAt(ctx context.Context, tx *gorm.DB) (time.Time, error) {
	m, err := firstOrNil[models.SchoolMembership](pick(ctx, r.db, tx).Order("updated_at DESC"))
	if err != nil || m == nil {
		return time.Time{}, err
	}
	return m.UpdatedAt, nil
}
