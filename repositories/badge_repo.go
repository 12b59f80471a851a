package repositories

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"eco-challenge-engine/logger"
	"eco-challenge-engine/models"
)

type BadgeRepo interface {
	SeedCatalog(ctx context.Context, tx *gorm.DB, badges []models.Badge) error
	Catalog(ctx context.Context, tx *gorm.DB) ([]models.Badge, error)
	GetByCode(ctx context.Context, tx *gorm.DB, code string) (*models.Badge, error)
	GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.Badge, error)
	HeldBadgeIDs(ctx context.Context, tx *gorm.DB, userID string) (map[string]struct{}, error)
	// InsertGrant reports false when the (user, badge) pair already exists.
	InsertGrant(ctx context.Context, tx *gorm.DB, ub *models.UserBadge) (bool, error)
	ListUserBadges(ctx context.Context, tx *gorm.DB, userID string) ([]models.UserBadge, error)
}

type badgeRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewBadgeRepo(db *gorm.DB, baseLog *logger.Logger) BadgeRepo {
	return &badgeRepo{db: db, log: baseLog.With("repo", "BadgeRepo")}
}

func (r *badgeRepo) SeedCatalog(ctx context.Context, tx *gorm.DB, badges []models.Badge) error {
	if len(badges) == 0 {
		return nil
	}
	rows := make([]models.Badge, len(badges))
	copy(rows, badges)
	return pick(ctx, r.db, tx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "code"}}, DoNothing: true}).
		Create(&rows).Error
}

func (r *badgeRepo) Catalog(ctx context.Context, tx *gorm.DB) ([]models.Badge, error) {
	var out []models.Badge
	err := pick(ctx, r.db, tx).Order("code ASC").Find(&out).Error
	return out, err
}

func (r *badgeRepo) GetByCode(ctx context.Context, tx *gorm.DB, code string) (*models.Badge, error) {
	return firstOrNil[models.Badge](pick(ctx, r.db, tx).Where("code = ?", code))
}

func (r *badgeRepo) GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.Badge, error) {
	return firstOrNil[models.Badge](pick(ctx, r.db, tx).Where("id = ?", id))
}

func (r *badgeRepo) HeldBadgeIDs(ctx context.Context, tx *gorm.DB, userID string) (map[string]struct{}, error) {
	var ids []string
	if err := pick(ctx, r.db, tx).Model(&models.UserBadge{}).
		Where("user_id = ?", userID).
		Pluck("badge_id", &ids).Error; err != nil {
		return nil, err
	}
	held := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		held[id] = struct{}{}
	}
	return held, nil
}

func (r *badgeRepo) InsertGrant(ctx context.Context, tx *gorm.DB, ub *models.UserBadge) (bool, error) {
	res := pick(ctx, r.db, tx).Clauses(clause.OnConflict{DoNothing: true}).Create(ub)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return false, nil
		}
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *badgeRepo) ListUserBadges(ctx context.Context, tx *gorm.DB, userID string) ([]models.UserBadge, error) {
	var out []models.UserBadge
	err := pick(ctx, r.db, tx).
		Preload("Badge").
		Where("user_id = ?", userID).
		Order("awarded_at ASC, id ASC").
		Find(&out).Error
	return out, err
}
