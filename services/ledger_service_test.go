package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"eco-challenge-engine/models"
)

func TestAppendPointsSumsSignedAmounts(t *testing.T) {
	env := newTestEnv(t)

	for _, amount := range []int64{40, 25, -15} {
		activity := models.ActivityLesson
		if amount < 0 {
			activity = models.ActivityAdjustment
		}
		_, err := env.ledger.AppendPoints(env.ctx, nil, PointsGrant{UserID: studentID, Amount: amount, ActivityType: activity})
		require.NoError(t, err)
	}

	total, err := env.ledger.GetUserTotalPoints(env.ctx, studentID)
	require.NoError(t, err)
	assert.Equal(t, int64(50), total)

	none, err := env.ledger.GetUserTotalPoints(env.ctx, "nobody")
	require.NoError(t, err)
	assert.Zero(t, none)
}

func TestAppendPointsDuplicateKey(t *testing.T) {
	env := newTestEnv(t)
	g := PointsGrant{UserID: studentID, Amount: 20, ActivityType: models.ActivityQuiz, SourceRef: "quiz-7", IdempotencyKey: "quiz:quiz-7:student-1"}

	first, err := env.ledger.AppendPoints(env.ctx, nil, g)
	require.NoError(t, err)

	g.Amount = 99
	again, err := env.ledger.AppendPoints(env.ctx, nil, g)
	assert.ErrorIs(t, err, ErrDuplicateGrant)
	assert.True(t, IsSuccessEquivalent(err))
	require.NotNil(t, again)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, int64(20), again.Amount)

	total, err := env.ledger.GetUserTotalPoints(env.ctx, studentID)
	require.NoError(t, err)
	assert.Equal(t, int64(20), total)
}

func TestAppendPointsValidation(t *testing.T) {
	env := newTestEnv(t)

	cases := map[string]PointsGrant{
		"zero amount":      {UserID: studentID, Amount: 0, ActivityType: models.ActivityLesson},
		"missing user":     {Amount: 5, ActivityType: models.ActivityLesson},
		"unknown activity": {UserID: studentID, Amount: 5, ActivityType: "gardening"},
	}
	for name, g := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := env.ledger.AppendPoints(env.ctx, nil, g)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestAwardActivityGrantsBadgesAndBumpsCache(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.ledger.AppendPoints(env.ctx, nil, PointsGrant{UserID: studentID, Amount: 30, ActivityType: models.ActivityLesson})
	require.NoError(t, err)

	res, err := env.ledger.AwardActivity(env.ctx, PointsGrant{
		UserID:         studentID,
		Amount:         25,
		ActivityType:   models.ActivityQuiz,
		SourceRef:      "quiz-1",
		IdempotencyKey: "quiz:quiz-1:" + studentID,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(55), res.TotalPoints)
	require.Len(t, res.NewBadges, 1)
	assert.Equal(t, "SEEDLING", res.NewBadges[0].Code)
	assert.True(t, res.Notification.BadgeGranted)
	assert.Equal(t, int64(25), res.Notification.PointsAwarded)
	assert.Equal(t, 1, env.cache.Bumps())

	_, err = env.ledger.AwardActivity(env.ctx, PointsGrant{
		UserID:         studentID,
		Amount:         25,
		ActivityType:   models.ActivityQuiz,
		SourceRef:      "quiz-1",
		IdempotencyKey: "quiz:quiz-1:" + studentID,
	})
	assert.ErrorIs(t, err, ErrDuplicateGrant)
	assert.Equal(t, 1, env.cache.Bumps())
}

func TestAwardActivityWithoutNewBadge(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.ledger.AwardActivity(env.ctx, PointsGrant{UserID: studentID, Amount: 10, ActivityType: models.ActivityLogin})
	require.NoError(t, err)
	assert.Empty(t, res.NewBadges)
	assert.Equal(t, Notification{PointsAwarded: 10}, res.Notification)
}

func TestListEntriesNewestFirst(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < 3; i++ {
		_, err := env.ledger.AppendPoints(env.ctx, nil, PointsGrant{UserID: studentID, Amount: int64(i + 1), ActivityType: models.ActivityLesson})
		require.NoError(t, err)
		env.clock.Advance(time.Minute)
	}

	rows, err := env.ledger.ListEntries(env.ctx, studentID, 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(3), rows[0].Amount)
	assert.Equal(t, int64(2), rows[1].Amount)

	rows, err = env.ledger.ListEntries(env.ctx, studentID, 0)
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestSettleBadgesAfterSeparateAppends(t *testing.T) {
	env := newTestEnv(t)

	// Two appends committed on their own, neither running the detector.
	for _, quiz := range []string{"quiz-1", "quiz-2"} {
		err := env.db.Transaction(func(tx *gorm.DB) error {
			_, err := env.ledger.AppendPoints(env.ctx, tx, PointsGrant{UserID: studentID, Amount: 30, ActivityType: models.ActivityQuiz, SourceRef: quiz})
			return err
		})
		require.NoError(t, err)
	}
	held, err := env.badges.GetUserBadges(env.ctx, studentID)
	require.NoError(t, err)
	assert.Empty(t, held)

	late := env.ledger.settleBadges(env.ctx, studentID)
	require.Len(t, late, 1)
	assert.Equal(t, "SEEDLING", late[0].Code)

	assert.Empty(t, env.ledger.settleBadges(env.ctx, studentID))
	held, err = env.badges.GetUserBadges(env.ctx, studentID)
	require.NoError(t, err)
	assert.Len(t, held, 1)
}
