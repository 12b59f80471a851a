package repositories

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"eco-challenge-engine/logger"
	"eco-challenge-engine/models"
)

// PointsLedgerRepo is append-only: there is deliberately no update or delete.
type PointsLedgerRepo interface {
	// Append inserts e. It reports false when e's idempotency key is taken.
	Append(ctx context.Context, tx *gorm.DB, e *models.PointsEntry) (bool, error)
	GetByIdempotencyKey(ctx context.Context, tx *gorm.DB, key string) (*models.PointsEntry, error)
	SumByUser(ctx context.Context, tx *gorm.DB, userID string) (int64, error)
	ListByUser(ctx context.Context, tx *gorm.DB, userID string, limit int) ([]models.PointsEntry, error)
}

type pointsLedgerRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPointsLedgerRepo(db *gorm.DB, baseLog *logger.Logger) PointsLedgerRepo {
	return &pointsLedgerRepo{db: db, log: baseLog.With("repo", "PointsLedgerRepo")}
}

func (r *pointsLedgerRepo) Append(ctx context.Context, tx *gorm.DB, e *models.PointsEntry) (bool, error) {
	q := pick(ctx, r.db, tx)
	if e.IdempotencyKey != nil {
		q = q.Clauses(clause.OnConflict{DoNothing: true})
	}
	res := q.Create(e)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *pointsLedgerRepo) GetByIdempotencyKey(ctx context.Context, tx *gorm.DB, key string) (*models.PointsEntry, error) {
	return firstOrNil[models.PointsEntry](pick(ctx, r.db, tx).Where("idempotency_key = ?", key))
}

func (r *pointsLedgerRepo) SumByUser(ctx context.Context, tx *gorm.DB, userID string) (int64, error) {
	var total int64
	err := pick(ctx, r.db, tx).Model(&models.PointsEntry{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("user_id = ?", userID).
		Scan(&total).Error
	return total, err
}

func (r *pointsLedgerRepo) ListByUser(ctx context.Context, tx *gorm.DB, userID string, limit int) ([]models.PointsEntry, error) {
	var out []models.PointsEntry
	q := pick(ctx, r.db, tx).
		Where("user_id = ?", userID).
		Order("awarded_at DESC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}
