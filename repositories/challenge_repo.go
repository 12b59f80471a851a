package repositories

import (
	"context"
	"time"

	"gorm.io/gorm"

	"eco-challenge-engine/logger"
	"eco-challenge-engine/models"
)

type ChallengeRepo interface {
	Create(ctx context.Context, tx *gorm.DB, c *models.Challenge) error
	GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.Challenge, error)
	SlugExists(ctx context.Context, tx *gorm.DB, slug string) (bool, error)
	Update(ctx context.Context, tx *gorm.DB, c *models.Challenge) error
	ListOpen(ctx context.Context, tx *gorm.DB, now time.Time) ([]models.Challenge, error)
	DeactivateEnded(ctx context.Context, tx *gorm.DB, now time.Time) (int64, error)
}

type challengeRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChallengeRepo(db *gorm.DB, baseLog *logger.Logger) ChallengeRepo {
	return &challengeRepo{db: db, log: baseLog.With("repo", "ChallengeRepo")}
}

func (r *challengeRepo) Create(ctx context.Context, tx *gorm.DB, c *models.Challenge) error {
	return pick(ctx, r.db, tx).Create(c).Error
}

func (r *challengeRepo) GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.Challenge, error) {
	if id == "" {
		return nil, nil
	}
	return firstOrNil[models.Challenge](pick(ctx, r.db, tx).Where("id = ?", id))
}

func (r *challengeRepo) SlugExists(ctx context.Context, tx *gorm.DB, slug string) (bool, error) {
	var count int64
	if err := pick(ctx, r.db, tx).Model(&models.Challenge{}).Where("slug = ?", slug).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *challengeRepo) Update(ctx context.Context, tx *gorm.DB, c *models.Challenge) error {
	return pick(ctx, r.db, tx).Save(c).Error
}

func (r *challengeRepo) ListOpen(ctx context.Context, tx *gorm.DB, now time.Time) ([]models.Challenge, error) {
	var out []models.Challenge
	err := pick(ctx, r.db, tx).
		Where("active = ? AND starts_at <= ?", true, now).
		Where("ends_at IS NULL OR ends_at >= ?", now).
		Order("starts_at DESC, id ASC").
		Find(&out).Error
	return out, err
}

func (r *challengeRepo) DeactivateEnded(ctx context.Context, tx *gorm.DB, now time.Time) (int64, error) {
	res := pick(ctx, r.db, tx).Model(&models.Challenge{}).
		Where("active = ? AND ends_at IS NOT NULL AND ends_at < ?", true, now).
		Update("active", false)
	return res.RowsAffected, res.Error
}
