// models/proof.go
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Verdict is a verifier's decision on a proof.
type Verdict string

const (
	VerdictPending  Verdict = "pending"
	VerdictApproved Verdict = "approved"
	VerdictRejected Verdict = "rejected"
)

// ProofMetadata is the free-form part of a submission, stored as JSON.
type ProofMetadata struct {
	Description      string    `json:"description,omitempty"`
	OriginalFilename string    `json:"original_filename,omitempty"`
	SizeBytes        int64     `json:"size_bytes"`
	ContentType      string    `json:"content_type"`
	SubmittedAt      time.Time `json:"submitted_at"`
}

// Proof is one submission attempt against an enrollment. Proofs are
// append-only: a rejected proof is superseded by a newer one, never removed.
type Proof struct {
	ID           string                            `json:"id" gorm:"primaryKey;type:uuid"`
	EnrollmentID string                            `json:"enrollment_id" gorm:"index;not null"`
	ArtifactRef  string                            `json:"artifact_ref" gorm:"type:text;not null"`
	Metadata     datatypes.JSONType[ProofMetadata] `json:"metadata"`
	SubmittedAt  time.Time                         `json:"submitted_at" gorm:"not null"`
	Verdict      Verdict                           `json:"verdict" gorm:"type:varchar(16);not null;default:'pending';index"`
	VerifierID   *string                           `json:"verifier_id,omitempty"`
	VerifiedAt   *time.Time                        `json:"verified_at,omitempty"`
	Note         string                            `json:"note,omitempty" gorm:"type:text"`
	IsLatest     bool                              `json:"is_latest" gorm:"not null;default:true"`

	// Badges granted by the approval that decided this proof.
	BadgeCodes datatypes.JSONSlice[string] `json:"badge_codes,omitempty"`
}

func (p *Proof) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}
