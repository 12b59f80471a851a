// models/challenge.go
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// VerificationMode says who is expected to confirm a proof for a challenge.
type VerificationMode string

const (
	VerificationSelfReported     VerificationMode = "self_reported"
	VerificationTeacherConfirmed VerificationMode = "teacher_confirmed"
	VerificationPartnerVerified  VerificationMode = "partner_verified"
)

func (m VerificationMode) Valid() bool {
	switch m {
	case VerificationSelfReported, VerificationTeacherConfirmed, VerificationPartnerVerified:
		return true
	}
	return false
}

// Challenge is a real-world task proposed by a partner organization.
// Challenges are never hard-deleted; owners deactivate them instead.
type Challenge struct {
	ID               string           `json:"id" gorm:"primaryKey;type:uuid"`
	Slug             string           `json:"slug" gorm:"uniqueIndex;not null"`
	Title            string           `json:"title" gorm:"not null"`
	Description      string           `json:"description" gorm:"type:text"`
	PointValue       int64            `json:"point_value" gorm:"not null"`
	VerificationMode VerificationMode `json:"verification_mode" gorm:"type:varchar(32);not null"`
	CO2ReductionKg   *float64         `json:"co2_reduction_kg,omitempty"`
	StartsAt         time.Time        `json:"starts_at" gorm:"not null"`
	EndsAt           *time.Time       `json:"ends_at,omitempty" gorm:"index"`
	OrganizationID   string           `json:"organization_id" gorm:"index;not null"`
	CreatedBy        string           `json:"created_by"`
	Active           bool             `json:"active" gorm:"default:true;index"`
	CreatedAt        time.Time        `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt        time.Time        `json:"updated_at" gorm:"autoUpdateTime"`
}

func (c *Challenge) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// OpenAt reports whether enrollment is possible at t.
func (c *Challenge) OpenAt(t time.Time) bool {
	if !c.Active {
		return false
	}
	if t.Before(c.StartsAt) {
		return false
	}
	if c.EndsAt != nil && t.After(*c.EndsAt) {
		return false
	}
	return true
}
