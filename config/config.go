// config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env            string
	Port           string
	DatabaseURL    string
	ServiceToken   string
	AllowedOrigins []string

	ChallengeMaxPoints int64

	Upload UploadConfig
	R2     R2Config

	RedisURL         string
	LeaderboardTTL   time.Duration
	LeaderboardZone  *time.Location
	RosterSyncURL    string
	RosterSyncPeriod time.Duration

	VerifierPolicyURL string
}

type UploadConfig struct {
	Backend      string // "r2" or "local"
	LocalDir     string
	MaxBytes     int64
	AllowedTypes []string
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
	CDNBaseURL      string
}

var DefaultAllowedTypes = []string{
	"image/jpeg",
	"image/png",
	"image/webp",
	"application/pdf",
	"video/mp4",
}

// Load reads a .env file when present and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from any lookup function, which keeps tests off
// the real environment.
func FromLookup(lookup func(string) (string, bool)) (*Config, error) {
	get := func(key, def string) string {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return def
	}

	var errs []error

	cfg := &Config{
		Env:            strings.ToLower(get("APP_ENV", "dev")),
		Port:           get("PORT", "5200"),
		DatabaseURL:    get("DATABASE_URL", ""),
		ServiceToken:   get("SERVICE_TOKEN", ""),
		AllowedOrigins: splitList(get("ALLOWED_ORIGINS", "http://localhost:3000")),
		RedisURL:       get("REDIS_URL", ""),
		RosterSyncURL:  get("ROSTER_SYNC_URL", ""),

		VerifierPolicyURL: get("VERIFIER_POLICY_URL", ""),

		Upload: UploadConfig{
			Backend:      strings.ToLower(get("ARTIFACT_BACKEND", "local")),
			LocalDir:     get("UPLOAD_DIR", "uploads"),
			AllowedTypes: splitList(get("UPLOAD_ALLOWED_TYPES", strings.Join(DefaultAllowedTypes, ","))),
		},
		R2: R2Config{
			AccountID:       get("CLOUDFLARE_ACCOUNT_ID", ""),
			AccessKeyID:     get("R2_ACCESS_KEY_ID", ""),
			AccessKeySecret: get("R2_ACCESS_KEY_SECRET", ""),
			Bucket:          get("R2_BUCKET_NAME", ""),
			CDNBaseURL:      get("CDN_BASE_URL", ""),
		},
	}

	if cfg.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if cfg.ServiceToken == "" {
		errs = append(errs, errors.New("SERVICE_TOKEN is required"))
	}

	var err error
	if cfg.ChallengeMaxPoints, err = strconv.ParseInt(get("CHALLENGE_MAX_POINTS", "500"), 10, 64); err != nil || cfg.ChallengeMaxPoints < 1 {
		errs = append(errs, fmt.Errorf("CHALLENGE_MAX_POINTS must be a positive integer"))
	}
	if cfg.Upload.MaxBytes, err = strconv.ParseInt(get("UPLOAD_MAX_BYTES", "10485760"), 10, 64); err != nil || cfg.Upload.MaxBytes < 1 {
		errs = append(errs, fmt.Errorf("UPLOAD_MAX_BYTES must be a positive integer"))
	}
	if cfg.LeaderboardTTL, err = time.ParseDuration(get("LEADERBOARD_CACHE_TTL", "30s")); err != nil {
		errs = append(errs, fmt.Errorf("LEADERBOARD_CACHE_TTL: %w", err))
	}
	if cfg.RosterSyncPeriod, err = time.ParseDuration(get("ROSTER_SYNC_INTERVAL", "1m")); err != nil || cfg.RosterSyncPeriod <= 0 {
		errs = append(errs, fmt.Errorf("ROSTER_SYNC_INTERVAL must be a positive duration"))
	}
	if cfg.LeaderboardZone, err = time.LoadLocation(get("LEADERBOARD_TIMEZONE", "UTC")); err != nil {
		errs = append(errs, fmt.Errorf("LEADERBOARD_TIMEZONE: %w", err))
	}

	switch cfg.Upload.Backend {
	case "local":
	case "r2":
		if cfg.R2.AccountID == "" || cfg.R2.Bucket == "" {
			errs = append(errs, errors.New("ARTIFACT_BACKEND=r2 requires CLOUDFLARE_ACCOUNT_ID and R2_BUCKET_NAME"))
		}
	default:
		errs = append(errs, fmt.Errorf("ARTIFACT_BACKEND must be r2 or local, got %q", cfg.Upload.Backend))
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "prod" || c.Env == "production"
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
