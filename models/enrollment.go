// models/enrollment.go
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EnrollmentState is the lifecycle bucket of a participation record.
type EnrollmentState string

const (
	EnrollmentEnrolled  EnrollmentState = "enrolled"
	EnrollmentSubmitted EnrollmentState = "submitted"
	EnrollmentVerified  EnrollmentState = "verified"
	EnrollmentRejected  EnrollmentState = "rejected"
)

// Enrollment is a user's participation in one challenge.
// (user_id, challenge_id) is unique.
type Enrollment struct {
	ID          string          `json:"id" gorm:"primaryKey;type:uuid"`
	UserID      string          `json:"user_id" gorm:"not null;uniqueIndex:idx_enrollment_user_challenge,priority:1"`
	ChallengeID string          `json:"challenge_id" gorm:"not null;uniqueIndex:idx_enrollment_user_challenge,priority:2;index"`
	State       EnrollmentState `json:"state" gorm:"type:varchar(16);not null;default:'enrolled'"`
	EnrolledAt  time.Time       `json:"enrolled_at" gorm:"not null"`
	UpdatedAt   time.Time       `json:"updated_at" gorm:"autoUpdateTime"`

	Challenge *Challenge `json:"challenge,omitempty" gorm:"foreignKey:ChallengeID"`
}

func (e *Enrollment) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}
