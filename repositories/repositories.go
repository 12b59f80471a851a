// Package repositories holds one narrow gorm-backed repository per entity.
// Every method takes an optional transaction; nil means "use the base handle".
package repositories

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"eco-challenge-engine/logger"
)

type Repos struct {
	Challenges    ChallengeRepo
	Enrollments   EnrollmentRepo
	Proofs        ProofRepo
	Ledger        PointsLedgerRepo
	Badges        BadgeRepo
	Standings     StandingsRepo
	Organizations OrganizationRepo
	Schools       SchoolRepo
}

func New(db *gorm.DB, log *logger.Logger) *Repos {
	return &Repos{
		Challenges:    NewChallengeRepo(db, log),
		Enrollments:   NewEnrollmentRepo(db, log),
		Proofs:        NewProofRepo(db, log),
		Ledger:        NewPointsLedgerRepo(db, log),
		Badges:        NewBadgeRepo(db, log),
		Standings:     NewStandingsRepo(db, log),
		Organizations: NewOrganizationRepo(db, log),
		Schools:       NewSchoolRepo(db, log),
	}
}

func pick(ctx context.Context, db, tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx.WithContext(ctx)
	}
	return db.WithContext(ctx)
}

// firstOrNil maps "no row" to (nil, nil).
func firstOrNil[T any](q *gorm.DB) (*T, error) {
	var out T
	if err := q.First(&out).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}
