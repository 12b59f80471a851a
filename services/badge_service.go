package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"

	"eco-challenge-engine/logger"
	"eco-challenge-engine/models"
	"eco-challenge-engine/repositories"
)

// GrantOutcome is the result of one optimistic badge insert.
type GrantOutcome int

const (
	Granted GrantOutcome = iota + 1
	AlreadyHeld
)

func (o GrantOutcome) String() string {
	switch o {
	case Granted:
		return "granted"
	case AlreadyHeld:
		return "already_held"
	}
	return "unknown"
}

type BadgeService struct {
	DB    *gorm.DB
	Repos *repositories.Repos
	Clock clockwork.Clock
	log   *logger.Logger
}

func NewBadgeService(db *gorm.DB, repos *repositories.Repos, clock clockwork.Clock, log *logger.Logger) *BadgeService {
	return &BadgeService{DB: db, Repos: repos, Clock: clock, log: log.With("service", "BadgeService")}
}

// DetectAndGrantBadges checks every threshold badge against the user's ledger
// total and grants the ones newly crossed. Only badges this call actually
// inserted are returned; grants lost to a concurrent winner are dropped.
// It must run inside the caller's transaction when one exists.
func (s *BadgeService) DetectAndGrantBadges(ctx context.Context, tx *gorm.DB, userID string) ([]models.Badge, error) {
	total, err := s.Repos.Ledger.SumByUser(ctx, tx, userID)
	if err != nil {
		return nil, storageErr("sum points", err)
	}
	held, err := s.Repos.Badges.HeldBadgeIDs(ctx, tx, userID)
	if err != nil {
		return nil, storageErr("load held badges", err)
	}
	catalog, err := s.Repos.Badges.Catalog(ctx, tx)
	if err != nil {
		return nil, storageErr("load badge catalog", err)
	}
	sortByThreshold(catalog)

	var awarded []models.Badge
	for _, badge := range catalog {
		if badge.PointsThreshold == nil || *badge.PointsThreshold > total {
			continue
		}
		// The held set only saves a round trip; the unique index decides.
		if _, ok := held[badge.ID]; ok {
			continue
		}
		outcome, err := s.GrantBadge(ctx, tx, userID, badge)
		if err != nil {
			return nil, err
		}
		if outcome == Granted {
			awarded = append(awarded, badge)
		}
	}
	return awarded, nil
}

// GrantBadge inserts a (user, badge) row. A conflict on the unique pair means
// someone else already granted it and is reported as AlreadyHeld.
func (s *BadgeService) GrantBadge(ctx context.Context, tx *gorm.DB, userID string, badge models.Badge) (GrantOutcome, error) {
	ub := &models.UserBadge{
		UserID:    userID,
		BadgeID:   badge.ID,
		AwardedAt: s.Clock.Now().UTC(),
	}
	inserted, err := s.Repos.Badges.InsertGrant(ctx, tx, ub)
	if err != nil {
		return 0, storageErr("insert badge grant", err)
	}
	if !inserted {
		s.log.Debug("badge already held", "user_id", userID, "badge", badge.Code)
		return AlreadyHeld, nil
	}
	s.log.Info("badge awarded", "user_id", userID, "badge", badge.Code)
	return Granted, nil
}

// GrantBadgeByCode is the entry point for non-points criteria ("first lesson
// completed", ...) evaluated by other activity producers.
func (s *BadgeService) GrantBadgeByCode(ctx context.Context, tx *gorm.DB, userID, code string) (GrantOutcome, *models.Badge, error) {
	badge, err := s.Repos.Badges.GetByCode(ctx, tx, code)
	if err != nil {
		return 0, nil, storageErr("load badge", err)
	}
	if badge == nil {
		return 0, nil, fmt.Errorf("%w: badge %q", ErrNotFound, code)
	}
	outcome, err := s.GrantBadge(ctx, tx, userID, *badge)
	if err != nil {
		return 0, nil, err
	}
	return outcome, badge, nil
}

func (s *BadgeService) GetUserBadges(ctx context.Context, userID string) ([]models.UserBadge, error) {
	rows, err := s.Repos.Badges.ListUserBadges(ctx, nil, userID)
	if err != nil {
		return nil, storageErr("list user badges", err)
	}
	return rows, nil
}

func (s *BadgeService) Catalog(ctx context.Context) ([]models.Badge, error) {
	rows, err := s.Repos.Badges.Catalog(ctx, nil)
	if err != nil {
		return nil, storageErr("load badge catalog", err)
	}
	sortByThreshold(rows)
	return rows, nil
}

// SeedCatalog inserts missing catalog entries; existing codes are kept as is.
func (s *BadgeService) SeedCatalog(ctx context.Context, badges []models.Badge) error {
	if err := s.Repos.Badges.SeedCatalog(ctx, nil, badges); err != nil {
		return storageErr("seed badge catalog", err)
	}
	return nil
}

// sortByThreshold orders threshold badges ascending, then the rest, by code.
func sortByThreshold(badges []models.Badge) {
	sort.SliceStable(badges, func(i, j int) bool {
		a, b := badges[i].PointsThreshold, badges[j].PointsThreshold
		switch {
		case a != nil && b != nil && *a != *b:
			return *a < *b
		case a != nil && b == nil:
			return true
		case a == nil && b != nil:
			return false
		}
		return badges[i].Code < badges[j].Code
	})
}
