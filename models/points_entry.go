// models/points_entry.go
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ActivityType tags what earned a points entry.
type ActivityType string

const (
	ActivityLesson     ActivityType = "lesson"
	ActivityQuiz       ActivityType = "quiz"
	ActivityChallenge  ActivityType = "challenge"
	ActivityLogin      ActivityType = "login"
	ActivityCommunity  ActivityType = "community"
	ActivityAdjustment ActivityType = "adjustment"
)

func (a ActivityType) Valid() bool {
	switch a {
	case ActivityLesson, ActivityQuiz, ActivityChallenge, ActivityLogin, ActivityCommunity, ActivityAdjustment:
		return true
	}
	return false
}

// PointsEntry is one row of the append-only points ledger. A user's total is
// always SUM(amount) over their entries.
type PointsEntry struct {
	ID             string       `json:"id" gorm:"primaryKey;type:uuid"`
	UserID         string       `json:"user_id" gorm:"index;not null"`
	Amount         int64        `json:"amount" gorm:"not null"`
	ActivityType   ActivityType `json:"activity_type" gorm:"type:varchar(32);not null"`
	SourceRef      string       `json:"source_ref"`
	Reason         string       `json:"reason"`
	AwardedAt      time.Time    `json:"awarded_at" gorm:"index;not null"`
	IdempotencyKey *string      `json:"-" gorm:"uniqueIndex"`
}

func (p *PointsEntry) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}
