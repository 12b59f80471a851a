package repositories

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"eco-challenge-engine/logger"
	"eco-challenge-engine/models"
)

type EnrollmentRepo interface {
	// CreateIfAbsent inserts e unless (user, challenge) already exists.
	CreateIfAbsent(ctx context.Context, tx *gorm.DB, e *models.Enrollment) (bool, error)
	GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.Enrollment, error)
	GetByUserAndChallenge(ctx context.Context, tx *gorm.DB, userID, challengeID string) (*models.Enrollment, error)
	ListByUser(ctx context.Context, tx *gorm.DB, userID string) ([]models.Enrollment, error)
	// TransitionState moves id from → to only if it is still in from.
	TransitionState(ctx context.Context, tx *gorm.DB, id string, from, to models.EnrollmentState) (bool, error)
}

type enrollmentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEnrollmentRepo(db *gorm.DB, baseLog *logger.Logger) EnrollmentRepo {
	return &enrollmentRepo{db: db, log: baseLog.With("repo", "EnrollmentRepo")}
}

func (r *enrollmentRepo) CreateIfAbsent(ctx context.Context, tx *gorm.DB, e *models.Enrollment) (bool, error) {
	res := pick(ctx, r.db, tx).Clauses(clause.OnConflict{DoNothing: true}).Create(e)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *enrollmentRepo) GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.Enrollment, error) {
	if id == "" {
		return nil, nil
	}
	return firstOrNil[models.Enrollment](pick(ctx, r.db, tx).Where("id = ?", id))
}

func (r *enrollmentRepo) GetByUserAndChallenge(ctx context.Context, tx *gorm.DB, userID, challengeID string) (*models.Enrollment, error) {
	return firstOrNil[models.Enrollment](pick(ctx, r.db, tx).
		Where("user_id = ? AND challenge_id = ?", userID, challengeID))
}

func (r *enrollmentRepo) ListByUser(ctx context.Context, tx *gorm.DB, userID string) ([]models.Enrollment, error) {
	var out []models.Enrollment
	err := pick(ctx, r.db, tx).
		Preload("Challenge").
		Where("user_id = ?", userID).
		Order("enrolled_at DESC, id ASC").
		Find(&out).Error
	return out, err
}

func (r *enrollmentRepo) TransitionState(ctx context.Context, tx *gorm.DB, id string, from, to models.EnrollmentState) (bool, error) {
	res := pick(ctx, r.db, tx).Model(&models.Enrollment{}).
		Where("id = ? AND state = ?", id, from).
		Update("state", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
