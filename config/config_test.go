package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupFrom(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestFromLookupDefaults(t *testing.T) {
	cfg, err := FromLookup(lookupFrom(map[string]string{
		"DATABASE_URL":  "postgres://localhost/eco",
		"SERVICE_TOKEN": "secret",
	}))
	require.NoError(t, err)

	assert.Equal(t, "5200", cfg.Port)
	assert.Equal(t, int64(500), cfg.ChallengeMaxPoints)
	assert.Equal(t, int64(10<<20), cfg.Upload.MaxBytes)
	assert.Equal(t, DefaultAllowedTypes, cfg.Upload.AllowedTypes)
	assert.Equal(t, "local", cfg.Upload.Backend)
	assert.Equal(t, 30*time.Second, cfg.LeaderboardTTL)
	assert.Equal(t, time.UTC, cfg.LeaderboardZone)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.AllowedOrigins)
	assert.Empty(t, cfg.VerifierPolicyURL)
	assert.False(t, cfg.IsProduction())
}

func TestFromLookupRequiresDatabaseAndToken(t *testing.T) {
	_, err := FromLookup(lookupFrom(map[string]string{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
	assert.Contains(t, err.Error(), "SERVICE_TOKEN")
}

func TestFromLookupRejectsBadValues(t *testing.T) {
	_, err := FromLookup(lookupFrom(map[string]string{
		"DATABASE_URL":         "postgres://localhost/eco",
		"SERVICE_TOKEN":        "secret",
		"CHALLENGE_MAX_POINTS": "-3",
		"ARTIFACT_BACKEND":     "ftp",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CHALLENGE_MAX_POINTS")
	assert.Contains(t, err.Error(), "ARTIFACT_BACKEND")
}

func TestFromLookupR2NeedsBucket(t *testing.T) {
	_, err := FromLookup(lookupFrom(map[string]string{
		"DATABASE_URL":     "postgres://localhost/eco",
		"SERVICE_TOKEN":    "secret",
		"ARTIFACT_BACKEND": "r2",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "R2_BUCKET_NAME")
}

func TestSplitListTrims(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitList(" a , ,b "))
}
