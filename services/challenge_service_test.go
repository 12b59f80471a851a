package services

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eco-challenge-engine/models"
	"eco-challenge-engine/testutil"
)

func challengeInput(title string, points int64) ChallengeInput {
	return ChallengeInput{
		Title:            title,
		PointValue:       points,
		VerificationMode: models.VerificationTeacherConfirmed,
	}
}

func TestCreateChallenge(t *testing.T) {
	env := newTestEnv(t)

	ch, err := env.challenges.CreateChallenge(env.ctx, owner(), challengeInput("Bike to School Week", 40))
	require.NoError(t, err)
	assert.Equal(t, "bike-to-school-week", ch.Slug)
	assert.Equal(t, orgID, ch.OrganizationID)
	assert.True(t, ch.Active)
	assert.True(t, ch.StartsAt.Equal(testutil.Epoch))

	again, err := env.challenges.CreateChallenge(env.ctx, owner(), challengeInput("Bike to School Week", 40))
	require.NoError(t, err)
	assert.NotEqual(t, ch.Slug, again.Slug)
	assert.Contains(t, again.Slug, "bike-to-school-week-")
}

func TestCreateChallengeValidation(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.challenges.CreateChallenge(env.ctx, owner(), challengeInput("", 40))
	assert.ErrorIs(t, err, ErrValidation)

	_, err = env.challenges.CreateChallenge(env.ctx, owner(), challengeInput("Too generous", 501))
	assert.ErrorIs(t, err, ErrValidation)

	_, err = env.challenges.CreateChallenge(env.ctx, owner(), challengeInput("Nothing", 0))
	assert.ErrorIs(t, err, ErrValidation)

	in := challengeInput("Bad mode", 10)
	in.VerificationMode = "telepathy"
	_, err = env.challenges.CreateChallenge(env.ctx, owner(), in)
	assert.ErrorIs(t, err, ErrValidation)

	in = challengeInput("Backwards", 10)
	start := testutil.Epoch
	end := start.Add(-time.Hour)
	in.StartsAt, in.EndsAt = &start, &end
	_, err = env.challenges.CreateChallenge(env.ctx, owner(), in)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = env.challenges.CreateChallenge(env.ctx, student("s"), challengeInput("No org", 10))
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestUpdateAndDeactivateRequireOwner(t *testing.T) {
	env := newTestEnv(t)
	ch, err := env.challenges.CreateChallenge(env.ctx, owner(), challengeInput("Litter pick", 30))
	require.NoError(t, err)

	other := Caller{UserID: "x", OrganizationID: "org-other"}
	_, err = env.challenges.UpdateChallenge(env.ctx, other, ch.ID, challengeInput("Mine now", 30))
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = env.challenges.DeactivateChallenge(env.ctx, other, ch.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	updated, err := env.challenges.UpdateChallenge(env.ctx, owner(), ch.ID, challengeInput("Litter pick XL", 60))
	require.NoError(t, err)
	assert.Equal(t, int64(60), updated.PointValue)
	assert.Equal(t, ch.Slug, updated.Slug)

	off, err := env.challenges.DeactivateChallenge(env.ctx, owner(), ch.ID)
	require.NoError(t, err)
	assert.False(t, off.Active)

	_, err = env.challenges.Enroll(env.ctx, student(studentID), ch.ID)
	assert.ErrorIs(t, err, ErrChallengeInactive)
}

func TestGetChallengeNotFound(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.challenges.GetChallenge(env.ctx, "not-a-uuid")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = env.challenges.GetChallenge(env.ctx, "6f1c5f0e-9d55-4a53-9a59-1df3c0a3f001")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEnrollIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ch := testutil.SeedChallenge(t, env.db, orgID, 50)

	first, err := env.challenges.Enroll(env.ctx, student(studentID), ch.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentEnrolled, first.State)

	second, err := env.challenges.Enroll(env.ctx, student(studentID), ch.ID)
	assert.ErrorIs(t, err, ErrAlreadyEnrolled)
	require.NotNil(t, second)
	assert.Equal(t, first.ID, second.ID)
	assert.True(t, IsSuccessEquivalent(err))
}

func TestConcurrentEnrollConverges(t *testing.T) {
	env := newTestEnv(t)
	ch := testutil.SeedChallenge(t, env.db, orgID, 50)

	const n = 8
	ids := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e, err := env.challenges.Enroll(env.ctx, student(studentID), ch.ID)
			errs[i] = err
			if e != nil {
				ids[i] = e.ID
			}
		}(i)
	}
	wg.Wait()

	created := 0
	for i := 0; i < n; i++ {
		if errs[i] == nil {
			created++
		} else {
			assert.ErrorIs(t, errs[i], ErrAlreadyEnrolled)
		}
		assert.Equal(t, ids[0], ids[i])
	}
	assert.Equal(t, 1, created)

	var count int64
	require.NoError(t, env.db.Model(&models.Enrollment{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestEnrollOutsideWindow(t *testing.T) {
	env := newTestEnv(t)

	in := challengeInput("Spring clean", 20)
	start := testutil.Epoch.Add(48 * time.Hour)
	in.StartsAt = &start
	future, err := env.challenges.CreateChallenge(env.ctx, owner(), in)
	require.NoError(t, err)

	_, err = env.challenges.Enroll(env.ctx, student(studentID), future.ID)
	assert.ErrorIs(t, err, ErrChallengeInactive)

	env.clock.Advance(72 * time.Hour)
	_, err = env.challenges.Enroll(env.ctx, student(studentID), future.ID)
	assert.NoError(t, err)
}

func TestCloseExpiredChallenges(t *testing.T) {
	env := newTestEnv(t)

	in := challengeInput("Short one", 20)
	end := testutil.Epoch.Add(time.Hour)
	in.EndsAt = &end
	ch, err := env.challenges.CreateChallenge(env.ctx, owner(), in)
	require.NoError(t, err)
	open, err := env.challenges.CreateChallenge(env.ctx, owner(), challengeInput("Open ended", 20))
	require.NoError(t, err)

	n, err := env.challenges.CloseExpiredChallenges(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	env.clock.Advance(2 * time.Hour)
	n, err = env.challenges.CloseExpiredChallenges(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := env.challenges.GetChallenge(env.ctx, ch.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)

	active, err := env.challenges.ListActiveChallenges(env.ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, open.ID, active[0].ID)
}

func TestExpirySchedulerStartsAndStops(t *testing.T) {
	env := newTestEnv(t)
	sched, err := env.challenges.StartExpiryScheduler(env.ctx, time.Minute)
	require.NoError(t, err)
	assert.Len(t, sched.Jobs(), 1)
	require.NoError(t, sched.Shutdown())
}

func TestListEnrollmentsIncludesChallenge(t *testing.T) {
	env := newTestEnv(t)
	ch, en := env.enrolled(t, studentID, 40)
	env.enrolled(t, "someone-else", 40)

	rows, err := env.challenges.ListEnrollments(env.ctx, studentID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, en.ID, rows[0].ID)
	require.NotNil(t, rows[0].Challenge)
	assert.Equal(t, ch.ID, rows[0].Challenge.ID)
}
