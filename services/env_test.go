package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"eco-challenge-engine/models"
	"eco-challenge-engine/repositories"
	"eco-challenge-engine/storage"
	"eco-challenge-engine/testutil"
)

const (
	orgID      = "org-green"
	verifierID = "teacher-1"
	studentID  = "student-1"
)

// countingCache records bumps and otherwise behaves like a map.
type countingCache struct {
	mu    sync.Mutex
	gen   int64
	items map[string][]Standing
	bumps int
}

func (c *countingCache) Get(_ context.Context, key string, dst interface{}) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.items[key]
	if !ok {
		return false, nil
	}
	*(dst.(*[]Standing)) = append([]Standing(nil), v...)
	return true, nil
}

func (c *countingCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.items == nil {
		c.items = map[string][]Standing{}
	}
	c.items[key] = append([]Standing(nil), value.([]Standing)...)
	return nil
}

func (c *countingCache) Generation(context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen, nil
}

func (c *countingCache) Bump(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.bumps++
	return nil
}

func (c *countingCache) Bumps() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bumps
}

type testEnv struct {
	ctx          context.Context
	db           *gorm.DB
	clock        *clockwork.FakeClock
	repos        *repositories.Repos
	cache        *countingCache
	badges       *BadgeService
	ledger       *LedgerService
	challenges   *ChallengeService
	proofs       *ProofService
	verification *VerificationService
	leaderboard  *LeaderboardService
	orgs         *OrganizationService
	catalog      map[string]models.Badge
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	clock := testutil.Clock()
	repos := repositories.New(db, log)
	c := &countingCache{}

	auth := MembershipAuthorizer{Orgs: repos.Organizations}
	policy := storage.UploadPolicy{MaxBytes: 1 << 20, AllowedTypes: []string{"image/png", "image/jpeg", "application/pdf"}}
	store, err := storage.NewLocalStore(t.TempDir(), "/uploads", policy, log)
	require.NoError(t, err)

	badges := NewBadgeService(db, repos, clock, log)
	ledger := NewLedgerService(db, repos, badges, c, clock, log)
	env := &testEnv{
		ctx:          context.Background(),
		db:           db,
		clock:        clock,
		repos:        repos,
		cache:        c,
		badges:       badges,
		ledger:       ledger,
		challenges:   NewChallengeService(db, repos, clock, 500, log),
		proofs:       NewProofService(db, repos, store, policy, auth, clock, log),
		verification: NewVerificationService(db, repos, ledger, badges, auth, clock, log),
		leaderboard:  NewLeaderboardService(repos, c, clock, time.UTC, time.Minute, log),
		orgs:         NewOrganizationService(repos, log),
		catalog:      testutil.SeedBadges(t, db),
	}
	testutil.SeedMember(t, db, orgID, verifierID, models.OrgRoleTeacher)
	return env
}

func student(id string) Caller { return Caller{UserID: id} }

func verifier() Caller { return Caller{UserID: verifierID} }

func owner() Caller { return Caller{UserID: "owner-1", OrganizationID: orgID} }

func validPNG() ProofInput {
	return ProofInput{
		ArtifactRef: "https://cdn.example.org/proofs/tree.png",
		Description: "planted an oak",
		SizeBytes:   2048,
		ContentType: "image/png",
	}
}

// enrolled creates a challenge worth points and enrolls the user in it.
func (e *testEnv) enrolled(t *testing.T, userID string, points int64) (*models.Challenge, *models.Enrollment) {
	t.Helper()
	ch := testutil.SeedChallenge(t, e.db, orgID, points)
	en, err := e.challenges.Enroll(e.ctx, student(userID), ch.ID)
	require.NoError(t, err)
	return ch, en
}

// submitted goes one step further and returns the pending proof.
func (e *testEnv) submitted(t *testing.T, userID string, points int64) (*models.Challenge, *models.Enrollment, *models.Proof) {
	t.Helper()
	ch, en := e.enrolled(t, userID, points)
	p, err := e.proofs.SubmitProof(e.ctx, student(userID), en.ID, validPNG())
	require.NoError(t, err)
	return ch, en, p
}
