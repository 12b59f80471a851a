package services

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eco-challenge-engine/models"
	"eco-challenge-engine/testutil"
)

func TestGrantBadgeIsExactlyOnce(t *testing.T) {
	env := newTestEnv(t)
	badge := env.catalog["SAPLING"]

	const n = 8
	outcomes := make([]GrantOutcome, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := env.badges.GrantBadge(env.ctx, nil, studentID, badge)
			assert.NoError(t, err)
			outcomes[i] = out
		}(i)
	}
	wg.Wait()

	granted := 0
	for _, o := range outcomes {
		if o == Granted {
			granted++
		} else {
			assert.Equal(t, AlreadyHeld, o)
		}
	}
	assert.Equal(t, 1, granted)

	held, err := env.badges.GetUserBadges(env.ctx, studentID)
	require.NoError(t, err)
	require.Len(t, held, 1)
	require.NotNil(t, held[0].Badge)
	assert.Equal(t, "SAPLING", held[0].Badge.Code)
}

func TestDetectGrantsEveryCrossedThresholdOnce(t *testing.T) {
	env := newTestEnv(t)
	testutil.SeedPoints(t, env.db, studentID, 300, testutil.Epoch)

	got, err := env.badges.DetectAndGrantBadges(env.ctx, nil, studentID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "SEEDLING", got[0].Code)
	assert.Equal(t, "SAPLING", got[1].Code)

	again, err := env.badges.DetectAndGrantBadges(env.ctx, nil, studentID)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestDetectSkipsHeldAndNonThresholdBadges(t *testing.T) {
	env := newTestEnv(t)
	testutil.SeedPoints(t, env.db, studentID, 60, testutil.Epoch)
	testutil.SeedUserBadge(t, env.db, studentID, env.catalog["SEEDLING"].ID)

	got, err := env.badges.DetectAndGrantBadges(env.ctx, nil, studentID)
	require.NoError(t, err)
	assert.Empty(t, got)

	held, err := env.badges.GetUserBadges(env.ctx, studentID)
	require.NoError(t, err)
	for _, ub := range held {
		assert.NotEqual(t, "FIRST_LESSON", ub.Badge.Code)
	}
}

func TestGrantBadgeByCode(t *testing.T) {
	env := newTestEnv(t)

	out, badge, err := env.badges.GrantBadgeByCode(env.ctx, nil, studentID, "FIRST_LESSON")
	require.NoError(t, err)
	assert.Equal(t, Granted, out)
	assert.Equal(t, "Curious Mind", badge.Name)

	out, _, err = env.badges.GrantBadgeByCode(env.ctx, nil, studentID, "FIRST_LESSON")
	require.NoError(t, err)
	assert.Equal(t, AlreadyHeld, out)
	assert.Equal(t, "already_held", out.String())

	_, _, err = env.badges.GrantBadgeByCode(env.ctx, nil, studentID, "NOPE")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCatalogOrderAndSeedIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.badges.SeedCatalog(env.ctx, models.DefaultBadgeCatalog()))

	catalog, err := env.badges.Catalog(env.ctx)
	require.NoError(t, err)
	require.Len(t, catalog, len(models.DefaultBadgeCatalog()))

	codes := make([]string, len(catalog))
	for i, b := range catalog {
		codes[i] = b.Code
	}
	assert.Equal(t, []string{"SEEDLING", "SAPLING", "FOREST_GUARDIAN", "CLIMATE_CHAMPION", "FIRST_LESSON"}, codes)
}
