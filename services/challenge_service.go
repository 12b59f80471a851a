package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"

	"eco-challenge-engine/logger"
	"eco-challenge-engine/models"
	"eco-challenge-engine/repositories"
)

const DefaultChallengeMaxPoints = 500

// ChallengeInput is the writable part of a challenge.
type ChallengeInput struct {
	Title            string                  `json:"title" validate:"required,max=200"`
	Description      string                  `json:"description" validate:"max=5000"`
	PointValue       int64                   `json:"point_value" validate:"required,min=1"`
	VerificationMode models.VerificationMode `json:"verification_mode" validate:"required,oneof=self_reported teacher_confirmed partner_verified"`
	CO2ReductionKg   *float64                `json:"co2_reduction_kg" validate:"omitempty,gte=0"`
	StartsAt         *time.Time              `json:"starts_at"`
	EndsAt           *time.Time              `json:"ends_at"`
}

type ChallengeService struct {
	DB        *gorm.DB
	Repos     *repositories.Repos
	Clock     clockwork.Clock
	MaxPoints int64
	log       *logger.Logger
}

func NewChallengeService(db *gorm.DB, repos *repositories.Repos, clock clockwork.Clock, maxPoints int64, log *logger.Logger) *ChallengeService {
	if maxPoints <= 0 {
		maxPoints = DefaultChallengeMaxPoints
	}
	return &ChallengeService{
		DB:        db,
		Repos:     repos,
		Clock:     clock,
		MaxPoints: maxPoints,
		log:       log.With("service", "ChallengeService"),
	}
}

func (s *ChallengeService) validateInput(in ChallengeInput) error {
	if err := validateStruct(in); err != nil {
		return err
	}
	if in.PointValue > s.MaxPoints {
		return validationErr("point_value must be at most %d", s.MaxPoints)
	}
	if in.StartsAt != nil && in.EndsAt != nil && !in.EndsAt.After(*in.StartsAt) {
		return validationErr("ends_at must be after starts_at")
	}
	return nil
}

// CreateChallenge registers a challenge owned by the caller's organization.
func (s *ChallengeService) CreateChallenge(ctx context.Context, caller Caller, in ChallengeInput) (*models.Challenge, error) {
	if caller.Anonymous() || caller.OrganizationID == "" {
		return nil, fmt.Errorf("%w: challenges are created on behalf of an organization", ErrForbidden)
	}
	if err := s.validateInput(in); err != nil {
		return nil, err
	}

	now := s.Clock.Now().UTC()
	ch := &models.Challenge{
		Title:            strings.TrimSpace(in.Title),
		Description:      in.Description,
		PointValue:       in.PointValue,
		VerificationMode: in.VerificationMode,
		CO2ReductionKg:   in.CO2ReductionKg,
		StartsAt:         now,
		OrganizationID:   caller.OrganizationID,
		CreatedBy:        caller.UserID,
		Active:           true,
	}
	if in.StartsAt != nil {
		ch.StartsAt = in.StartsAt.UTC()
	}
	if in.EndsAt != nil {
		end := in.EndsAt.UTC()
		ch.EndsAt = &end
	}

	base := slug.Make(ch.Title)
	if base == "" {
		base = "challenge"
	}
	ch.Slug = base
	exists, err := s.Repos.Challenges.SlugExists(ctx, nil, base)
	if err != nil {
		return nil, storageErr("check slug", err)
	}
	if exists {
		ch.Slug = base + "-" + uuid.NewString()[:8]
	}

	if err := s.Repos.Challenges.Create(ctx, nil, ch); err != nil {
		return nil, storageErr("create challenge", err)
	}
	s.log.Info("challenge created", "challenge_id", ch.ID, "slug", ch.Slug, "organization_id", ch.OrganizationID)
	return ch, nil
}

func (s *ChallengeService) ownedChallenge(ctx context.Context, caller Caller, id string) (*models.Challenge, error) {
	ch, err := s.GetChallenge(ctx, id)
	if err != nil {
		return nil, err
	}
	if caller.Anonymous() || (ch.OrganizationID != caller.OrganizationID && !caller.HasRole(RoleAdmin)) {
		return nil, fmt.Errorf("%w: challenge belongs to another organization", ErrForbidden)
	}
	return ch, nil
}

// UpdateChallenge rewrites the editable fields. The slug is kept stable.
func (s *ChallengeService) UpdateChallenge(ctx context.Context, caller Caller, id string, in ChallengeInput) (*models.Challenge, error) {
	ch, err := s.ownedChallenge(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	if err := s.validateInput(in); err != nil {
		return nil, err
	}

	ch.Title = strings.TrimSpace(in.Title)
	ch.Description = in.Description
	ch.PointValue = in.PointValue
	ch.VerificationMode = in.VerificationMode
	ch.CO2ReductionKg = in.CO2ReductionKg
	if in.StartsAt != nil {
		ch.StartsAt = in.StartsAt.UTC()
	}
	ch.EndsAt = nil
	if in.EndsAt != nil {
		end := in.EndsAt.UTC()
		ch.EndsAt = &end
	}
	if ch.EndsAt != nil && !ch.EndsAt.After(ch.StartsAt) {
		return nil, validationErr("ends_at must be after starts_at")
	}

	if err := s.Repos.Challenges.Update(ctx, nil, ch); err != nil {
		return nil, storageErr("update challenge", err)
	}
	s.log.Info("challenge updated", "challenge_id", ch.ID)
	return ch, nil
}

// DeactivateChallenge closes a challenge for new enrollments. Existing
// enrollments and their proofs stay verifiable.
func (s *ChallengeService) DeactivateChallenge(ctx context.Context, caller Caller, id string) (*models.Challenge, error) {
	ch, err := s.ownedChallenge(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	if !ch.Active {
		return ch, nil
	}
	ch.Active = false
	if err := s.Repos.Challenges.Update(ctx, nil, ch); err != nil {
		return nil, storageErr("deactivate challenge", err)
	}
	s.log.Info("challenge deactivated", "challenge_id", ch.ID)
	return ch, nil
}

func (s *ChallengeService) GetChallenge(ctx context.Context, id string) (*models.Challenge, error) {
	if err := knownID("challenge", id); err != nil {
		return nil, err
	}
	ch, err := s.Repos.Challenges.GetByID(ctx, nil, id)
	if err != nil {
		return nil, storageErr("load challenge", err)
	}
	if ch == nil {
		return nil, fmt.Errorf("%w: challenge %s", ErrNotFound, id)
	}
	return ch, nil
}

func (s *ChallengeService) ListActiveChallenges(ctx context.Context) ([]models.Challenge, error) {
	rows, err := s.Repos.Challenges.ListOpen(ctx, nil, s.Clock.Now().UTC())
	if err != nil {
		return nil, storageErr("list challenges", err)
	}
	return rows, nil
}

// Enroll creates the caller's participation record. An existing record is
// returned together with ErrAlreadyEnrolled, even once the challenge closed.
func (s *ChallengeService) Enroll(ctx context.Context, caller Caller, challengeID string) (*models.Enrollment, error) {
	if caller.Anonymous() {
		return nil, fmt.Errorf("%w: enrollment requires a user", ErrForbidden)
	}
	ch, err := s.GetChallenge(ctx, challengeID)
	if err != nil {
		return nil, err
	}

	existing, err := s.Repos.Enrollments.GetByUserAndChallenge(ctx, nil, caller.UserID, ch.ID)
	if err != nil {
		return nil, storageErr("load enrollment", err)
	}
	if existing != nil {
		return existing, ErrAlreadyEnrolled
	}

	now := s.Clock.Now().UTC()
	if !ch.OpenAt(now) {
		return nil, fmt.Errorf("%w: %s", ErrChallengeInactive, ch.ID)
	}

	e := &models.Enrollment{
		UserID:      caller.UserID,
		ChallengeID: ch.ID,
		State:       models.EnrollmentEnrolled,
		EnrolledAt:  now,
	}
	created, err := s.Repos.Enrollments.CreateIfAbsent(ctx, nil, e)
	if err != nil {
		return nil, storageErr("create enrollment", err)
	}
	if !created {
		// Lost the race against a concurrent enroll of the same pair.
		existing, err := s.Repos.Enrollments.GetByUserAndChallenge(ctx, nil, caller.UserID, ch.ID)
		if err != nil {
			return nil, storageErr("load enrollment", err)
		}
		return existing, ErrAlreadyEnrolled
	}

	s.log.Info("user enrolled", "user_id", caller.UserID, "challenge_id", ch.ID, "enrollment_id", e.ID)
	return e, nil
}

// ListEnrollments returns the caller's enrollments with their challenges.
func (s *ChallengeService) ListEnrollments(ctx context.Context, userID string) ([]models.Enrollment, error) {
	rows, err := s.Repos.Enrollments.ListByUser(ctx, nil, userID)
	if err != nil {
		return nil, storageErr("list enrollments", err)
	}
	return rows, nil
}

// CloseExpiredChallenges deactivates every active challenge whose end passed.
func (s *ChallengeService) CloseExpiredChallenges(ctx context.Context) (int64, error) {
	n, err := s.Repos.Challenges.DeactivateEnded(ctx, nil, s.Clock.Now().UTC())
	if err != nil {
		return 0, storageErr("close expired challenges", err)
	}
	if n > 0 {
		s.log.Info("expired challenges closed", "count", n)
	}
	return n, nil
}
