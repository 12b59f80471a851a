package repositories

import (
	"context"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"eco-challenge-engine/logger"
	"eco-challenge-engine/models"
)

type ProofRepo interface {
	Create(ctx context.Context, tx *gorm.DB, p *models.Proof) error
	GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.Proof, error)
	ListByEnrollment(ctx context.Context, tx *gorm.DB, enrollmentID string) ([]models.Proof, error)
	// SupersedeLatest clears is_latest on every proof of the enrollment.
	SupersedeLatest(ctx context.Context, tx *gorm.DB, enrollmentID string) error
	// Decide records a verdict only if the proof is still the latest pending one.
	Decide(ctx context.Context, tx *gorm.DB, id string, d Decision) (bool, error)
	RecordBadges(ctx context.Context, tx *gorm.DB, id string, codes []string) error
}

type Decision struct {
	Verdict    models.Verdict
	VerifierID string
	DecidedAt  time.Time
	Note       string
}

type proofRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProofRepo(db *gorm.DB, baseLog *logger.Logger) ProofRepo {
	return &proofRepo{db: db, log: baseLog.With("repo", "ProofRepo")}
}

func (r *proofRepo) Create(ctx context.Context, tx *gorm.DB, p *models.Proof) error {
	return pick(ctx, r.db, tx).Create(p).Error
}

func (r *proofRepo) GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.Proof, error) {
	if id == "" {
		return nil, nil
	}
	return firstOrNil[models.Proof](pick(ctx, r.db, tx).Where("id = ?", id))
}

func (r *proofRepo) ListByEnrollment(ctx context.Context, tx *gorm.DB, enrollmentID string) ([]models.Proof, error) {
	var out []models.Proof
	err := pick(ctx, r.db, tx).
		Where("enrollment_id = ?", enrollmentID).
		Order("submitted_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

func (r *proofRepo) SupersedeLatest(ctx context.Context, tx *gorm.DB, enrollmentID string) error {
	return pick(ctx, r.db, tx).Model(&models.Proof{}).
		Where("enrollment_id = ? AND is_latest = ?", enrollmentID, true).
		Update("is_latest", false).Error
}

func (r *proofRepo) Decide(ctx context.Context, tx *gorm.DB, id string, d Decision) (bool, error) {
	res := pick(ctx, r.db, tx).Model(&models.Proof{}).
		Where("id = ? AND verdict = ? AND is_latest = ?", id, models.VerdictPending, true).
		Updates(map[string]interface{}{
			"verdict":     d.Verdict,
			"verifier_id": d.VerifierID,
			"verified_at": d.DecidedAt,
			"note":        d.Note,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *proofRepo) RecordBadges(ctx context.Context, tx *gorm.DB, id string, codes []string) error {
	return pick(ctx, r.db, tx).Model(&models.Proof{}).
		Where("id = ?", id).
		Update("badge_codes", datatypes.NewJSONSlice(codes)).Error
}
