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
)

// VerificationResult is everything a verifier's decision produced.
type VerificationResult struct {
	Proof         *models.Proof      `json:"proof"`
	Enrollment    *models.Enrollment `json:"enrollment"`
	PointsAwarded int64              `json:"points_awarded"`
	NewBadges     []models.Badge     `json:"new_badges"`
	Notification  Notification       `json:"notification"`
}

type VerificationService struct {
	DB         *gorm.DB
	Repos      *repositories.Repos
	Ledger     *LedgerService
	Badges     *BadgeService
	Authorizer VerifierAuthorizer
	Clock      clockwork.Clock
	log        *logger.Logger
}

func NewVerificationService(db *gorm.DB, repos *repositories.Repos, ledger *LedgerService, badges *BadgeService, auth VerifierAuthorizer, clock clockwork.Clock, log *logger.Logger) *VerificationService {
	return &VerificationService{
		DB:         db,
		Repos:      repos,
		Ledger:     ledger,
		Badges:     badges,
		Authorizer: auth,
		Clock:      clock,
		log:        log.With("service", "VerificationService"),
	}
}

// ChallengeIdempotencyKey is the ledger key for a challenge completion.
// One enrollment can be credited at most once, however many times the
// approval is replayed.
func ChallengeIdempotencyKey(enrollmentID string) string {
	return "challenge:" + enrollmentID
}

// VerifyProof records a verdict on the latest pending proof of an enrollment.
// On approval the points entry and any badges crossed are written in the same
// transaction as the verdict, so either all of it is visible or none of it.
func (s *VerificationService) VerifyProof(ctx context.Context, caller Caller, proofID string, verdict models.Verdict, note string) (*VerificationResult, error) {
	if caller.Anonymous() {
		return nil, fmt.Errorf("%w: verification requires a user", ErrForbidden)
	}
	if err := knownID("proof", proofID); err != nil {
		return nil, err
	}

	proof, err := s.Repos.Proofs.GetByID(ctx, nil, proofID)
	if err != nil {
		return nil, storageErr("load proof", err)
	}
	if proof == nil {
		return nil, fmt.Errorf("%w: proof %s", ErrNotFound, proofID)
	}
	enrollment, err := s.Repos.Enrollments.GetByID(ctx, nil, proof.EnrollmentID)
	if err != nil {
		return nil, storageErr("load enrollment", err)
	}
	if enrollment == nil {
		return nil, fmt.Errorf("%w: enrollment %s", ErrNotFound, proof.EnrollmentID)
	}
	challenge, err := s.Repos.Challenges.GetByID(ctx, nil, enrollment.ChallengeID)
	if err != nil {
		return nil, storageErr("load challenge", err)
	}
	if challenge == nil {
		return nil, fmt.Errorf("%w: challenge %s", ErrNotFound, enrollment.ChallengeID)
	}

	if err := s.authorize(ctx, caller, enrollment, challenge); err != nil {
		return nil, err
	}
	target, err := stateForVerdict(verdict)
	if err != nil {
		return nil, err
	}
	if proof.Verdict != models.VerdictPending || !proof.IsLatest {
		return nil, fmt.Errorf("%w: proof %s is %s", ErrAlreadyDecided, proof.ID, proof.Verdict)
	}

	now := s.Clock.Now().UTC()
	note = strings.TrimSpace(note)
	result := &VerificationResult{}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		decided, err := s.Repos.Proofs.Decide(ctx, tx, proof.ID, repositories.Decision{
			Verdict:    verdict,
			VerifierID: caller.UserID,
			DecidedAt:  now,
			Note:       note,
		})
		if err != nil {
			return err
		}
		if !decided {
			return fmt.Errorf("%w: proof %s", ErrAlreadyDecided, proof.ID)
		}

		if err := Transition(enrollment.State, target); err != nil {
			return err
		}
		moved, err := s.Repos.Enrollments.TransitionState(ctx, tx, enrollment.ID, models.EnrollmentSubmitted, target)
		if err != nil {
			return err
		}
		if !moved {
			return fmt.Errorf("%w: enrollment %s is not awaiting a verdict", ErrIllegalTransition, enrollment.ID)
		}

		if verdict != models.VerdictApproved {
			return nil
		}

		entry, err := s.Ledger.AppendPoints(ctx, tx, PointsGrant{
			UserID:         enrollment.UserID,
			Amount:         challenge.PointValue,
			ActivityType:   models.ActivityChallenge,
			SourceRef:      challenge.ID,
			Reason:         truncate(challenge.Title, 255),
			IdempotencyKey: ChallengeIdempotencyKey(enrollment.ID),
		})
		if errors.Is(err, ErrDuplicateGrant) {
			// The enrollment was credited by an earlier approval; treat this
			// decision as a replay.
			return fmt.Errorf("%w: enrollment %s already credited", ErrAlreadyDecided, enrollment.ID)
		}
		if err != nil {
			return err
		}
		result.PointsAwarded = entry.Amount

		badges, err := s.Badges.DetectAndGrantBadges(ctx, tx, enrollment.UserID)
		if err != nil {
			return err
		}
		result.NewBadges = badges
		if len(badges) == 0 {
			return nil
		}
		return s.Repos.Proofs.RecordBadges(ctx, tx, proof.ID, badgeCodes(badges))
	})
	if err != nil {
		return nil, storageErr("verify proof", err)
	}

	if verdict == models.VerdictApproved {
		if late := s.Ledger.settleBadges(ctx, enrollment.UserID); len(late) > 0 {
			result.NewBadges = append(result.NewBadges, late...)
			if err := s.Repos.Proofs.RecordBadges(ctx, nil, proof.ID, badgeCodes(result.NewBadges)); err != nil {
				s.log.Warn("failed to record late badges on proof", "proof_id", proof.ID, "error", err)
			}
		}
		s.Ledger.ledgerChanged(ctx)
	}

	verifierID := caller.UserID
	proof.Verdict = verdict
	proof.VerifierID = &verifierID
	proof.VerifiedAt = &now
	proof.Note = note
	if len(result.NewBadges) > 0 {
		proof.BadgeCodes = datatypes.NewJSONSlice(badgeCodes(result.NewBadges))
	}
	enrollment.State = target
	enrollment.UpdatedAt = now

	result.Proof = proof
	result.Enrollment = enrollment
	result.Notification = newNotification(result.PointsAwarded, result.NewBadges)

	s.log.Info("proof verified",
		"proof_id", proof.ID,
		"enrollment_id", enrollment.ID,
		"verdict", verdict,
		"verifier_id", caller.UserID,
		"points", result.PointsAwarded,
		"badges", len(result.NewBadges),
	)
	return result, nil
}

// RecordedDecision rebuilds the result of a verdict the caller already
// recorded on proofID. It returns nil when the proof is still pending, carries
// another verdict, or was decided by someone else.
func (s *VerificationService) RecordedDecision(ctx context.Context, caller Caller, proofID string, verdict models.Verdict) (*VerificationResult, error) {
	if caller.Anonymous() {
		return nil, nil
	}
	proof, err := s.Repos.Proofs.GetByID(ctx, nil, proofID)
	if err != nil {
		return nil, storageErr("load proof", err)
	}
	if proof == nil || proof.Verdict != verdict || proof.VerifierID == nil || *proof.VerifierID != caller.UserID {
		return nil, nil
	}
	enrollment, err := s.Repos.Enrollments.GetByID(ctx, nil, proof.EnrollmentID)
	if err != nil {
		return nil, storageErr("load enrollment", err)
	}
	if enrollment == nil {
		return nil, fmt.Errorf("%w: enrollment %s", ErrNotFound, proof.EnrollmentID)
	}

	result := &VerificationResult{Proof: proof, Enrollment: enrollment}
	if verdict == models.VerdictApproved {
		entry, err := s.Repos.Ledger.GetByIdempotencyKey(ctx, nil, ChallengeIdempotencyKey(enrollment.ID))
		if err != nil {
			return nil, storageErr("load points entry", err)
		}
		if entry != nil {
			result.PointsAwarded = entry.Amount
		}
		for _, code := range proof.BadgeCodes {
			badge, err := s.Repos.Badges.GetByCode(ctx, nil, code)
			if err != nil {
				return nil, storageErr("load badge", err)
			}
			if badge != nil {
				result.NewBadges = append(result.NewBadges, *badge)
			}
		}
	}
	result.Notification = newNotification(result.PointsAwarded, result.NewBadges)
	return result, nil
}

func badgeCodes(badges []models.Badge) []string {
	codes := make([]string, 0, len(badges))
	for _, b := range badges {
		codes = append(codes, b.Code)
	}
	return codes
}

func (s *VerificationService) authorize(ctx context.Context, caller Caller, e *models.Enrollment, ch *models.Challenge) error {
	if caller.UserID == e.UserID {
		return fmt.Errorf("%w: users cannot verify their own proof", ErrForbidden)
	}
	if caller.HasRole(RoleAdmin) {
		return nil
	}
	if s.Authorizer == nil {
		return fmt.Errorf("%w: no verifier policy configured", ErrForbidden)
	}
	ok, err := s.Authorizer.IsAuthorizedVerifier(ctx, caller.UserID, ch.OrganizationID)
	if err != nil {
		return storageErr("authorize verifier", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s may not verify proofs for organization %s", ErrForbidden, caller.UserID, ch.OrganizationID)
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
