package services

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eco-challenge-engine/models"
	"eco-challenge-engine/storage"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

func TestSubmitProofMovesEnrollmentToSubmitted(t *testing.T) {
	env := newTestEnv(t)
	_, en := env.enrolled(t, studentID, 50)

	p, err := env.proofs.SubmitProof(env.ctx, student(studentID), en.ID, validPNG())
	require.NoError(t, err)
	assert.Equal(t, models.VerdictPending, p.Verdict)
	assert.True(t, p.IsLatest)
	assert.Equal(t, "planted an oak", p.Metadata.Data().Description)

	got, err := env.repos.Enrollments.GetByID(env.ctx, nil, en.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentSubmitted, got.State)
}

func TestSubmitProofRejectsWrongOwnerAndState(t *testing.T) {
	env := newTestEnv(t)
	_, en := env.enrolled(t, studentID, 50)

	_, err := env.proofs.SubmitProof(env.ctx, student("someone-else"), en.ID, validPNG())
	assert.ErrorIs(t, err, ErrNotEnrolled)

	_, err = env.proofs.SubmitProof(env.ctx, student(studentID), "nope", validPNG())
	assert.ErrorIs(t, err, ErrNotEnrolled)

	_, err = env.proofs.SubmitProof(env.ctx, student(studentID), en.ID, validPNG())
	require.NoError(t, err)

	// Already submitted: a second proof must wait for a verdict.
	_, err = env.proofs.SubmitProof(env.ctx, student(studentID), en.ID, validPNG())
	assert.ErrorIs(t, err, ErrIllegalTransition)
}

func TestSubmitProofValidatesArtifact(t *testing.T) {
	env := newTestEnv(t)
	_, en := env.enrolled(t, studentID, 50)

	in := validPNG()
	in.ArtifactRef = "  "
	_, err := env.proofs.SubmitProof(env.ctx, student(studentID), en.ID, in)
	assert.ErrorIs(t, err, ErrInvalidArtifact)

	in = validPNG()
	in.ContentType = "application/x-msdownload"
	_, err = env.proofs.SubmitProof(env.ctx, student(studentID), en.ID, in)
	assert.ErrorIs(t, err, ErrInvalidArtifact)

	in = validPNG()
	in.SizeBytes = 2 << 20
	_, err = env.proofs.SubmitProof(env.ctx, student(studentID), en.ID, in)
	assert.ErrorIs(t, err, ErrInvalidArtifact)

	got, err := env.repos.Enrollments.GetByID(env.ctx, nil, en.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentEnrolled, got.State)
}

func TestResubmitAfterRejectionSupersedesOldProof(t *testing.T) {
	env := newTestEnv(t)
	_, en, first := env.submitted(t, studentID, 50)

	_, err := env.verification.VerifyProof(env.ctx, verifier(), first.ID, models.VerdictRejected, "blurry photo")
	require.NoError(t, err)

	second, err := env.proofs.SubmitProof(env.ctx, student(studentID), en.ID, validPNG())
	require.NoError(t, err)

	history, err := env.proofs.ListProofs(env.ctx, student(studentID), en.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	for _, p := range history {
		if p.ID == second.ID {
			assert.True(t, p.IsLatest)
			assert.Equal(t, models.VerdictPending, p.Verdict)
		} else {
			assert.False(t, p.IsLatest)
			assert.Equal(t, models.VerdictRejected, p.Verdict)
			assert.Equal(t, "blurry photo", p.Note)
		}
	}
}

func TestListProofsAccess(t *testing.T) {
	env := newTestEnv(t)
	_, en, _ := env.submitted(t, studentID, 50)

	rows, err := env.proofs.ListProofs(env.ctx, verifier(), en.ID)
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	_, err = env.proofs.ListProofs(env.ctx, student("nosy"), en.ID)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestSubmitUploadStoresThenSubmits(t *testing.T) {
	env := newTestEnv(t)
	_, en := env.enrolled(t, studentID, 50)

	p, err := env.proofs.SubmitUpload(env.ctx, student(studentID), en.ID, Upload{
		Upload: storage.Upload{
			Reader:   bytes.NewReader(pngHeader),
			Filename: "Árbol plantado.png",
		},
		Description: "tree",
	})
	require.NoError(t, err)
	assert.Contains(t, p.ArtifactRef, "/uploads/proofs/")
	assert.Contains(t, p.ArtifactRef, "Arbol-plantado.png")
	assert.Equal(t, "image/png", p.Metadata.Data().ContentType)
	assert.Equal(t, int64(len(pngHeader)), p.Metadata.Data().SizeBytes)
}

func TestSubmitUploadRejectsDisallowedBytes(t *testing.T) {
	env := newTestEnv(t)
	_, en := env.enrolled(t, studentID, 50)

	_, err := env.proofs.SubmitUpload(env.ctx, student(studentID), en.ID, Upload{
		Upload: storage.Upload{
			Reader:   bytes.NewReader([]byte("MZ\x90\x00 definitely not a photo")),
			Filename: "tree.png",
		},
	})
	assert.ErrorIs(t, err, ErrInvalidArtifact)
}

type recordingStore struct{ deleted []string }

func (f *recordingStore) Store(_ context.Context, u storage.Upload) (storage.StoredArtifact, error) {
	return storage.StoredArtifact{Ref: "mem://x", Key: "x", ContentType: "image/png", Size: 10, OriginalFilename: u.Filename}, nil
}

func (f *recordingStore) Delete(_ context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	return nil
}

func TestSubmitUploadCleansUpOnFailure(t *testing.T) {
	env := newTestEnv(t)
	_, en := env.enrolled(t, studentID, 50)
	store := &recordingStore{}
	env.proofs.Artifacts = store
	// Storage accepted it but the policy on metadata does not.
	env.proofs.Policy = storage.UploadPolicy{MaxBytes: 5, AllowedTypes: []string{"image/png"}}

	_, err := env.proofs.SubmitUpload(env.ctx, student(studentID), en.ID, Upload{
		Upload: storage.Upload{Reader: bytes.NewReader(pngHeader), Filename: "a.png"},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidArtifact))
	assert.Equal(t, []string{"x"}, store.deleted)
}
