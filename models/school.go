// models/school.go
package models

import "time"

type School struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name" gorm:"not null"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// SchoolMembership places a student in exactly one school. Mirrored from the
// identity service by the roster sync worker.
type SchoolMembership struct {
	UserID    string    `json:"user_id" gorm:"primaryKey"`
	SchoolID  string    `json:"school_id" gorm:"index;not null"`
	UpdatedAt time.Time `json:"updated_at"`
}
