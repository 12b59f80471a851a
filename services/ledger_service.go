package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"

	"eco-challenge-engine/cache"
	"eco-challenge-engine/logger"
	"eco-challenge-engine/models"
	"eco-challenge-engine/repositories"
)

// PointsGrant describes one ledger append.
type PointsGrant struct {
	UserID         string              `json:"user_id" validate:"required,max=64"`
	Amount         int64               `json:"amount" validate:"ne=0"`
	ActivityType   models.ActivityType `json:"activity_type" validate:"required,oneof=lesson quiz challenge login community adjustment"`
	SourceRef      string              `json:"source_ref" validate:"max=128"`
	Reason         string              `json:"reason" validate:"max=255"`
	IdempotencyKey string              `json:"idempotency_key" validate:"max=128"`
}

// Notification is the payload handed to the notification surface.
type Notification struct {
	BadgeGranted  bool     `json:"badgeGranted"`
	BadgeName     string   `json:"badgeName,omitempty"`
	BadgeNames    []string `json:"badgeNames,omitempty"`
	PointsAwarded int64    `json:"pointsAwarded"`
}

func newNotification(points int64, badges []models.Badge) Notification {
	n := Notification{PointsAwarded: points, BadgeGranted: len(badges) > 0}
	for _, b := range badges {
		n.BadgeNames = append(n.BadgeNames, b.Name)
	}
	if n.BadgeGranted {
		n.BadgeName = badges[0].Name
	}
	return n
}

// AwardResult is what an activity producer gets back from AwardActivity.
type AwardResult struct {
	Entry        *models.PointsEntry `json:"entry"`
	NewBadges    []models.Badge      `json:"new_badges"`
	TotalPoints  int64               `json:"total_points"`
	Notification Notification        `json:"notification"`
}

type LedgerService struct {
	DB     *gorm.DB
	Repos  *repositories.Repos
	Badges *BadgeService
	Cache  cache.LeaderboardCache
	Clock  clockwork.Clock
	log    *logger.Logger
}

func NewLedgerService(db *gorm.DB, repos *repositories.Repos, badges *BadgeService, c cache.LeaderboardCache, clock clockwork.Clock, log *logger.Logger) *LedgerService {
	return &LedgerService{DB: db, Repos: repos, Badges: badges, Cache: c, Clock: clock, log: log.With("service", "LedgerService")}
}

// AppendPoints is a pure append. With an idempotency key that is already
// used, the existing entry is returned together with ErrDuplicateGrant.
func (s *LedgerService) AppendPoints(ctx context.Context, tx *gorm.DB, g PointsGrant) (*models.PointsEntry, error) {
	if err := validateStruct(g); err != nil {
		return nil, err
	}
	entry := &models.PointsEntry{
		UserID:       g.UserID,
		Amount:       g.Amount,
		ActivityType: g.ActivityType,
		SourceRef:    g.SourceRef,
		Reason:       g.Reason,
		AwardedAt:    s.Clock.Now().UTC(),
	}
	if g.IdempotencyKey != "" {
		key := g.IdempotencyKey
		entry.IdempotencyKey = &key
	}

	inserted, err := s.Repos.Ledger.Append(ctx, tx, entry)
	if err != nil {
		return nil, storageErr("append points", err)
	}
	if !inserted {
		existing, err := s.Repos.Ledger.GetByIdempotencyKey(ctx, tx, g.IdempotencyKey)
		if err != nil {
			return nil, storageErr("load points entry", err)
		}
		return existing, fmt.Errorf("%w: %s", ErrDuplicateGrant, g.IdempotencyKey)
	}

	s.log.Info("points appended",
		"user_id", g.UserID, "amount", g.Amount, "activity", g.ActivityType, "source", g.SourceRef)
	return entry, nil
}

// AwardActivity appends points for an activity outside the challenge flow and
// runs the badge detector, all in one transaction.
func (s *LedgerService) AwardActivity(ctx context.Context, g PointsGrant) (*AwardResult, error) {
	var result AwardResult
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entry, err := s.AppendPoints(ctx, tx, g)
		if err != nil {
			return err
		}
		badges, err := s.Badges.DetectAndGrantBadges(ctx, tx, g.UserID)
		if err != nil {
			return err
		}
		total, err := s.Repos.Ledger.SumByUser(ctx, tx, g.UserID)
		if err != nil {
			return storageErr("sum points", err)
		}
		result = AwardResult{
			Entry:        entry,
			NewBadges:    badges,
			TotalPoints:  total,
			Notification: newNotification(entry.Amount, badges),
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateGrant) {
			return nil, err
		}
		return nil, storageErr("award activity", err)
	}
	if late := s.settleBadges(ctx, g.UserID); len(late) > 0 {
		result.NewBadges = append(result.NewBadges, late...)
		result.Notification = newNotification(result.Entry.Amount, result.NewBadges)
	}
	s.ledgerChanged(ctx)
	return &result, nil
}

// GetUserTotalPoints is always computed from the ledger.
func (s *LedgerService) GetUserTotalPoints(ctx context.Context, userID string) (int64, error) {
	total, err := s.Repos.Ledger.SumByUser(ctx, nil, userID)
	if err != nil {
		return 0, storageErr("sum points", err)
	}
	return total, nil
}

func (s *LedgerService) ListEntries(ctx context.Context, userID string, limit int) ([]models.PointsEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.Repos.Ledger.ListByUser(ctx, nil, userID, limit)
	if err != nil {
		return nil, storageErr("list points", err)
	}
	return rows, nil
}

// settleBadges runs the detector again once the appending transaction has
// committed. Two concurrent appends for one user each see only their own
// entry in-transaction, so a threshold crossed by their sum is first visible
// here. Failures are logged: the points are already durable and the next
// ledger mutation detects again.
func (s *LedgerService) settleBadges(ctx context.Context, userID string) []models.Badge {
	badges, err := s.Badges.DetectAndGrantBadges(ctx, nil, userID)
	if err != nil {
		s.log.Warn("post-commit badge detection failed", "user_id", userID, "error", err)
		return nil
	}
	return badges
}

// ledgerChanged must only be called after the appending transaction committed.
func (s *LedgerService) ledgerChanged(ctx context.Context) {
	if s.Cache == nil {
		return
	}
	if err := s.Cache.Bump(ctx); err != nil {
		s.log.Warn("leaderboard cache bump failed", "error", err)
	}
}
