package repositories

import (
	"context"
	"time"

	"gorm.io/gorm"

	"eco-challenge-engine/logger"
	"eco-challenge-engine/models"
)

// UserTotal is one user's summed points inside a window.
type UserTotal struct {
	UserID   string
	Points   int64
	SchoolID *string
}

// StandingsRepo serves the read-only aggregates behind leaderboards.
type StandingsRepo interface {
	// UserTotals sums entries with awarded_at >= since (nil = all time).
	// A non-empty userIDs restricts the result to those users.
	UserTotals(ctx context.Context, tx *gorm.DB, since *time.Time, userIDs []string) ([]UserTotal, error)
	BadgeCounts(ctx context.Context, tx *gorm.DB, userIDs []string) (map[string]int64, error)
	SchoolStudentCounts(ctx context.Context, tx *gorm.DB) (map[string]int64, error)
}

type standingsRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewStandingsRepo(db *gorm.DB, baseLog *logger.Logger) StandingsRepo {
	return &standingsRepo{db: db, log: baseLog.With("repo", "StandingsRepo")}
}

func (r *standingsRepo) UserTotals(ctx context.Context, tx *gorm.DB, since *time.Time, userIDs []string) ([]UserTotal, error) {
	q := pick(ctx, r.db, tx).
		Table("points_entries AS p").
		Select("p.user_id AS user_id, SUM(p.amount) AS points, m.school_id AS school_id").
		Joins("LEFT JOIN school_memberships m ON m.user_id = p.user_id").
		Group("p.user_id, m.school_id")
	if since != nil {
		q = q.Where("p.awarded_at >= ?", *since)
	}
	if len(userIDs) > 0 {
		q = q.Where("p.user_id IN ?", userIDs)
	}
	var out []UserTotal
	if err := q.Scan(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *standingsRepo) BadgeCounts(ctx context.Context, tx *gorm.DB, userIDs []string) (map[string]int64, error) {
	var rows []struct {
		UserID string
		Badges int64
	}
	q := pick(ctx, r.db, tx).Model(&models.UserBadge{}).
		Select("user_id, COUNT(*) AS badges").
		Group("user_id")
	if len(userIDs) > 0 {
		q = q.Where("user_id IN ?", userIDs)
	}
	if err := q.Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.UserID] = row.Badges
	}
	return out, nil
}

func (r *standingsRepo) SchoolStudentCounts(ctx context.Context, tx *gorm.DB) (map[string]int64, error) {
	var rows []struct {
		SchoolID string
		Students int64
	}
	if err := pick(ctx, r.db, tx).Model(&models.SchoolMembership{}).
		Select("school_id, COUNT(DISTINCT user_id) AS students").
		Group("school_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.SchoolID] = row.Students
	}
	return out, nil
}
