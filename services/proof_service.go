package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jonboulle/clockwork"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"eco-challenge-engine/logger"
	"eco-challenge-engine/models"
	"eco-challenge-engine/repositories"
	"eco-challenge-engine/storage"
)

// ProofInput describes an artifact that is already in the artifact store.
type ProofInput struct {
	ArtifactRef      string `json:"artifact_ref"`
	Description      string `json:"description" validate:"max=2000"`
	OriginalFilename string `json:"original_filename" validate:"max=255"`
	SizeBytes        int64  `json:"size_bytes"`
	ContentType      string `json:"content_type"`
}

type ProofService struct {
	DB         *gorm.DB
	Repos      *repositories.Repos
	Artifacts  storage.ArtifactStore
	Policy     storage.UploadPolicy
	Authorizer VerifierAuthorizer
	Clock      clockwork.Clock
	log        *logger.Logger
}

func NewProofService(db *gorm.DB, repos *repositories.Repos, artifacts storage.ArtifactStore, policy storage.UploadPolicy, auth VerifierAuthorizer, clock clockwork.Clock, log *logger.Logger) *ProofService {
	return &ProofService{
		DB:         db,
		Repos:      repos,
		Artifacts:  artifacts,
		Policy:     policy,
		Authorizer: auth,
		Clock:      clock,
		log:        log.With("service", "ProofService"),
	}
}

// ownEnrollment loads an enrollment and checks it belongs to the caller.
func (s *ProofService) ownEnrollment(ctx context.Context, caller Caller, enrollmentID string) (*models.Enrollment, error) {
	if caller.Anonymous() {
		return nil, fmt.Errorf("%w: proof submission requires a user", ErrForbidden)
	}
	if err := knownID("enrollment", enrollmentID); err != nil {
		return nil, fmt.Errorf("%w: enrollment %q", ErrNotEnrolled, enrollmentID)
	}
	e, err := s.Repos.Enrollments.GetByID(ctx, nil, enrollmentID)
	if err != nil {
		return nil, storageErr("load enrollment", err)
	}
	if e == nil || e.UserID != caller.UserID {
		return nil, fmt.Errorf("%w: enrollment %s", ErrNotEnrolled, enrollmentID)
	}
	return e, nil
}

// SubmitProof records a new attempt and moves the enrollment to submitted.
// Earlier attempts stay in place, marked as superseded.
func (s *ProofService) SubmitProof(ctx context.Context, caller Caller, enrollmentID string, in ProofInput) (*models.Proof, error) {
	e, err := s.ownEnrollment(ctx, caller, enrollmentID)
	if err != nil {
		return nil, err
	}
	if err := Transition(e.State, models.EnrollmentSubmitted); err != nil {
		return nil, err
	}
	if err := s.checkArtifact(in); err != nil {
		return nil, err
	}

	now := s.Clock.Now().UTC()
	proof := &models.Proof{
		EnrollmentID: e.ID,
		ArtifactRef:  strings.TrimSpace(in.ArtifactRef),
		Metadata: datatypes.NewJSONType(models.ProofMetadata{
			Description:      in.Description,
			OriginalFilename: in.OriginalFilename,
			SizeBytes:        in.SizeBytes,
			ContentType:      in.ContentType,
			SubmittedAt:      now,
		}),
		SubmittedAt: now,
		Verdict:     models.VerdictPending,
		IsLatest:    true,
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.Repos.Proofs.SupersedeLatest(ctx, tx, e.ID); err != nil {
			return err
		}
		if err := s.Repos.Proofs.Create(ctx, tx, proof); err != nil {
			return err
		}
		moved, err := s.Repos.Enrollments.TransitionState(ctx, tx, e.ID, e.State, models.EnrollmentSubmitted)
		if err != nil {
			return err
		}
		if !moved {
			// Another submission or a verdict got there first.
			return fmt.Errorf("%w: enrollment %s is no longer %s", ErrIllegalTransition, e.ID, e.State)
		}
		return nil
	})
	if err != nil {
		return nil, storageErr("submit proof", err)
	}

	s.log.Info("proof submitted", "proof_id", proof.ID, "enrollment_id", e.ID, "user_id", caller.UserID)
	return proof, nil
}

func (s *ProofService) checkArtifact(in ProofInput) error {
	if strings.TrimSpace(in.ArtifactRef) == "" {
		return fmt.Errorf("%w: artifact reference is empty", ErrInvalidArtifact)
	}
	if err := validateStruct(in); err != nil {
		return err
	}
	if err := s.Policy.Allows(in.ContentType, in.SizeBytes); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArtifact, err)
	}
	return nil
}

// Upload is a raw file coming from the HTTP layer.
type Upload struct {
	storage.Upload
	Description string
}

// SubmitUpload stores the artifact first and then submits it. If the
// submission fails the stored object is removed again.
func (s *ProofService) SubmitUpload(ctx context.Context, caller Caller, enrollmentID string, up Upload) (*models.Proof, error) {
	e, err := s.ownEnrollment(ctx, caller, enrollmentID)
	if err != nil {
		return nil, err
	}
	if err := Transition(e.State, models.EnrollmentSubmitted); err != nil {
		return nil, err
	}
	if s.Artifacts == nil {
		return nil, fmt.Errorf("%w: no artifact store configured", ErrInvalidArtifact)
	}

	if up.Prefix == "" {
		up.Prefix = "proofs/" + e.ChallengeID
	}
	stored, err := s.Artifacts.Store(ctx, up.Upload)
	if err != nil {
		if errors.Is(err, storage.ErrRejected) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidArtifact, err)
		}
		return nil, storageErr("store artifact", err)
	}

	proof, err := s.SubmitProof(ctx, caller, enrollmentID, ProofInput{
		ArtifactRef:      stored.Ref,
		Description:      up.Description,
		OriginalFilename: stored.OriginalFilename,
		SizeBytes:        stored.Size,
		ContentType:      stored.ContentType,
	})
	if err != nil {
		if derr := s.Artifacts.Delete(ctx, stored.Key); derr != nil {
			s.log.Warn("orphaned artifact", "key", stored.Key, "error", derr)
		}
		return nil, err
	}
	return proof, nil
}

// ListProofs returns the attempt history of an enrollment, oldest first.
// Only the enrolled user and authorized verifiers may read it.
func (s *ProofService) ListProofs(ctx context.Context, caller Caller, enrollmentID string) ([]models.Proof, error) {
	if caller.Anonymous() {
		return nil, ErrForbidden
	}
	if err := knownID("enrollment", enrollmentID); err != nil {
		return nil, err
	}
	e, err := s.Repos.Enrollments.GetByID(ctx, nil, enrollmentID)
	if err != nil {
		return nil, storageErr("load enrollment", err)
	}
	if e == nil {
		return nil, fmt.Errorf("%w: enrollment %s", ErrNotFound, enrollmentID)
	}
	if e.UserID != caller.UserID {
		ok, err := s.isVerifierFor(ctx, caller, e)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrForbidden
		}
	}

	rows, err := s.Repos.Proofs.ListByEnrollment(ctx, nil, e.ID)
	if err != nil {
		return nil, storageErr("list proofs", err)
	}
	return rows, nil
}

func (s *ProofService) isVerifierFor(ctx context.Context, caller Caller, e *models.Enrollment) (bool, error) {
	if caller.HasRole(RoleAdmin) {
		return true, nil
	}
	if s.Authorizer == nil {
		return false, nil
	}
	ch, err := s.Repos.Challenges.GetByID(ctx, nil, e.ChallengeID)
	if err != nil {
		return false, storageErr("load challenge", err)
	}
	if ch == nil {
		return false, nil
	}
	return s.Authorizer.IsAuthorizedVerifier(ctx, caller.UserID, ch.OrganizationID)
}
