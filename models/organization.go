// models/organization.go
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	OrgRoleOwner    = "owner"
	OrgRoleVerifier = "verifier"
	OrgRoleTeacher  = "teacher"
	OrgRoleMember   = "member"
)

// OrganizationMember links a user to a partner organization (or school staff).
type OrganizationMember struct {
	ID             string    `json:"id" gorm:"primaryKey;type:uuid"`
	OrganizationID string    `json:"organization_id" gorm:"not null;uniqueIndex:idx_org_member,priority:1"`
	UserID         string    `json:"user_id" gorm:"not null;uniqueIndex:idx_org_member,priority:2;index"`
	Role           string    `json:"role" gorm:"type:varchar(16);not null;default:'member'"`
	CreatedAt      time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (m *OrganizationMember) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// AllModels is the migration set, in dependency order.
func AllModels() []interface{} {
	return []interface{}{
		&Challenge{},
		&Enrollment{},
		&Proof{},
		&PointsEntry{},
		&Badge{},
		&UserBadge{},
		&School{},
		&SchoolMembership{},
		&OrganizationMember{},
	}
}
