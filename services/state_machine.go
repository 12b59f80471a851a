package services

import (
	"fmt"

	"eco-challenge-engine/models"
)

// enrollmentTransitions is the complete set of legal enrollment moves.
// verified has no outgoing edge.
var enrollmentTransitions = map[models.EnrollmentState][]models.EnrollmentState{
	models.EnrollmentEnrolled:  {models.EnrollmentSubmitted},
	models.EnrollmentRejected:  {models.EnrollmentSubmitted},
	models.EnrollmentSubmitted: {models.EnrollmentVerified, models.EnrollmentRejected},
}

// CanTransition reports whether from → to is in the transition table.
func CanTransition(from, to models.EnrollmentState) bool {
	for _, next := range enrollmentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition validates a move and returns ErrIllegalTransition otherwise.
func Transition(from, to models.EnrollmentState) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s → %s", ErrIllegalTransition, from, to)
	}
	return nil
}

// IsTerminal reports states with no outgoing transition.
func IsTerminal(s models.EnrollmentState) bool {
	return len(enrollmentTransitions[s]) == 0
}

// stateForVerdict maps a verifier decision to the enrollment state it drives.
func stateForVerdict(v models.Verdict) (models.EnrollmentState, error) {
	switch v {
	case models.VerdictApproved:
		return models.EnrollmentVerified, nil
	case models.VerdictRejected:
		return models.EnrollmentRejected, nil
	}
	return "", validationErr("verdict must be %q or %q, got %q", models.VerdictApproved, models.VerdictRejected, v)
}
