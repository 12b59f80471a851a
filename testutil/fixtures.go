package testutil

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"eco-challenge-engine/models"
)

func SeedChallenge(tb testing.TB, db *gorm.DB, orgID string, points int64) *models.Challenge {
	tb.Helper()
	ch := &models.Challenge{
		Slug:             "plant-a-tree-" + uuid.NewString()[:8],
		Title:            "Plant a tree",
		PointValue:       points,
		VerificationMode: models.VerificationTeacherConfirmed,
		StartsAt:         Epoch.Add(-24 * time.Hour),
		OrganizationID:   orgID,
		CreatedBy:        "owner-" + orgID,
		Active:           true,
	}
	if err := db.Create(ch).Error; err != nil {
		tb.Fatalf("seed challenge: %v", err)
	}
	return ch
}

func SeedMember(tb testing.TB, db *gorm.DB, orgID, userID, role string) {
	tb.Helper()
	m := &models.OrganizationMember{OrganizationID: orgID, UserID: userID, Role: role}
	if err := db.Create(m).Error; err != nil {
		tb.Fatalf("seed member: %v", err)
	}
}

// SeedBadges installs the default catalog and returns it keyed by code.
func SeedBadges(tb testing.TB, db *gorm.DB) map[string]models.Badge {
	tb.Helper()
	catalog := models.DefaultBadgeCatalog()
	if err := db.Create(&catalog).Error; err != nil {
		tb.Fatalf("seed badges: %v", err)
	}
	out := make(map[string]models.Badge, len(catalog))
	for _, b := range catalog {
		out[b.Code] = b
	}
	return out
}

// SeedPoints appends a raw ledger entry at the given time.
func SeedPoints(tb testing.TB, db *gorm.DB, userID string, amount int64, at time.Time) *models.PointsEntry {
	tb.Helper()
	e := &models.PointsEntry{
		UserID:       userID,
		Amount:       amount,
		ActivityType: models.ActivityLesson,
		SourceRef:    "fixture",
		AwardedAt:    at.UTC(),
	}
	if err := db.Create(e).Error; err != nil {
		tb.Fatalf("seed points: %v", err)
	}
	return e
}

func SeedUserBadge(tb testing.TB, db *gorm.DB, userID, badgeID string) {
	tb.Helper()
	ub := &models.UserBadge{UserID: userID, BadgeID: badgeID, AwardedAt: Epoch}
	if err := db.Create(ub).Error; err != nil {
		tb.Fatalf("seed user badge: %v", err)
	}
}

func SeedMembership(tb testing.TB, db *gorm.DB, userID, schoolID string) {
	tb.Helper()
	if err := db.Save(&models.School{ID: schoolID, Name: "School " + schoolID}).Error; err != nil {
		tb.Fatalf("seed school: %v", err)
	}
	m := &models.SchoolMembership{UserID: userID, SchoolID: schoolID, UpdatedAt: Epoch}
	if err := db.Create(m).Error; err != nil {
		tb.Fatalf("seed membership: %v", err)
	}
}
