// models/badge.go
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Badge: static catalog entry. A nil PointsThreshold means the badge is
// granted by some other criterion (first lesson, streaks, ...).
type Badge struct {
	ID              string    `json:"id" gorm:"primaryKey;type:uuid"`
	Code            string    `json:"code" gorm:"uniqueIndex;not null"` // e.g., "SEEDLING"
	Name            string    `json:"name" gorm:"not null"`
	Description     string    `json:"description"`
	ArtworkRef      string    `json:"artwork_ref" gorm:"type:text"`
	PointsThreshold *int64    `json:"points_threshold,omitempty"`
	Category        string    `json:"category" gorm:"type:varchar(32);default:'milestone'"`
	CreatedAt       time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (b *Badge) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}

// UserBadge: awarded instance. The unique (user_id, badge_id) index is what
// makes a grant exactly-once when detectors race.
type UserBadge struct {
	ID        string    `json:"id" gorm:"primaryKey;type:uuid"`
	UserID    string    `json:"user_id" gorm:"not null;uniqueIndex:idx_user_badge,priority:1"`
	BadgeID   string    `json:"badge_id" gorm:"not null;uniqueIndex:idx_user_badge,priority:2"`
	AwardedAt time.Time `json:"awarded_at" gorm:"not null"`

	Badge *Badge `json:"badge,omitempty" gorm:"foreignKey:BadgeID"`
}

func (ub *UserBadge) BeforeCreate(tx *gorm.DB) error {
	if ub.ID == "" {
		ub.ID = uuid.NewString()
	}
	return nil
}

func threshold(v int64) *int64 { return &v }

// DefaultBadgeCatalog is seeded at startup. Existing codes are left untouched.
func DefaultBadgeCatalog() []Badge {
	return []Badge{
		{
			Code:            "SEEDLING",
			Name:            "Seedling",
			Description:     "Earned your first 50 points",
			Category:        "milestone",
			PointsThreshold: threshold(50),
		},
		{
			Code:            "SAPLING",
			Name:            "Sapling",
			Description:     "Reached 250 points",
			Category:        "milestone",
			PointsThreshold: threshold(250),
		},
		{
			Code:            "FOREST_GUARDIAN",
			Name:            "Forest Guardian",
			Description:     "Reached 1,000 points",
			Category:        "milestone",
			PointsThreshold: threshold(1000),
		},
		{
			Code:            "CLIMATE_CHAMPION",
			Name:            "Climate Champion",
			Description:     "Reached 5,000 points",
			Category:        "milestone",
			PointsThreshold: threshold(5000),
		},
		{
			Code:        "FIRST_LESSON",
			Name:        "Curious Mind",
			Description: "Completed your first lesson",
			Category:    "learning",
		},
	}
}
