package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jonboulle/clockwork"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"eco-challenge-engine/cache"
	"eco-challenge-engine/config"
	"eco-challenge-engine/handlers"
	"eco-challenge-engine/logger"
	"eco-challenge-engine/middleware"
	"eco-challenge-engine/models"
	"eco-challenge-engine/repositories"
	"eco-challenge-engine/services"
	"eco-challenge-engine/storage"
	"eco-challenge-engine/workers"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// The logger is not configured yet.
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Env)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to build logger:", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		log.Fatal("failed to connect to database", "error", err)
	}
	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		log.Fatal("failed to migrate database", "error", err)
	}

	clock := clockwork.NewRealClock()
	repos := repositories.New(db, log)

	var leaderboardCache cache.LeaderboardCache = cache.Nop{}
	if cfg.RedisURL != "" {
		rc, err := cache.NewRedisFromURL(ctx, cfg.RedisURL)
		if err != nil {
			log.Warn("redis unavailable, leaderboard cache disabled", "error", err)
		} else {
			defer rc.Close()
			leaderboardCache = rc
		}
	}

	policy := storage.UploadPolicy{MaxBytes: cfg.Upload.MaxBytes, AllowedTypes: cfg.Upload.AllowedTypes}
	artifacts, err := newArtifactStore(ctx, cfg, policy, log)
	if err != nil {
		log.Fatal("failed to initialize artifact store", "error", err)
	}

	var authorizer services.VerifierAuthorizer = services.MembershipAuthorizer{Orgs: repos.Organizations}
	if cfg.VerifierPolicyURL != "" {
		authorizer = services.NewPolicyServiceClient(cfg.VerifierPolicyURL, cfg.ServiceToken)
	}
	badgeService := services.NewBadgeService(db, repos, clock, log)
	ledgerService := services.NewLedgerService(db, repos, badgeService, leaderboardCache, clock, log)
	challengeService := services.NewChallengeService(db, repos, clock, cfg.ChallengeMaxPoints, log)
	proofService := services.NewProofService(db, repos, artifacts, policy, authorizer, clock, log)
	verificationService := services.NewVerificationService(db, repos, ledgerService, badgeService, authorizer, clock, log)
	leaderboardService := services.NewLeaderboardService(repos, leaderboardCache, clock, cfg.LeaderboardZone, cfg.LeaderboardTTL, log)
	orgService := services.NewOrganizationService(repos, log)

	if err := badgeService.SeedCatalog(ctx, models.DefaultBadgeCatalog()); err != nil {
		log.Fatal("failed to seed badge catalog", "error", err)
	}

	sched, err := challengeService.StartExpiryScheduler(ctx, time.Minute)
	if err != nil {
		log.Fatal("failed to start challenge scheduler", "error", err)
	}
	defer func() { _ = sched.Shutdown() }()

	if cfg.RosterSyncURL != "" {
		workers.NewRosterSyncWorker(repos.Schools, cfg.RosterSyncURL, cfg.ServiceToken, cfg.RosterSyncPeriod, log).Start(ctx)
	} else {
		log.Warn("ROSTER_SYNC_URL not set, school leaderboards rely on existing memberships")
	}

	app := fiber.New(fiber.Config{
		BodyLimit: int(cfg.Upload.MaxBytes) + 1<<20,
		AppName:   "eco-challenge-engine",
	})
	app.Use(recover.New())
	app.Use(fiberlogger.New())

	// Only gateway requests are allowed, no exceptions.
	app.Use(middleware.GatewayAuthMiddleware(cfg.ServiceToken, log))
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(cfg.AllowedOrigins, ","),
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, X-User-ID, X-User-Roles, X-Organization-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))
	app.Use(middleware.UserContextMiddleware(log))

	handlers.SetupChallengeRoutes(app, challengeService)
	handlers.SetupProofRoutes(app, proofService, verificationService, services.DefaultRetryPolicy)
	handlers.SetupProgressionRoutes(app, ledgerService, badgeService, orgService)
	handlers.SetupLeaderboardRoutes(app, leaderboardService)

	if cfg.Upload.Backend == "local" {
		app.Static("/uploads", cfg.Upload.LocalDir)
	}

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Error("server error", "error", err)
			stop()
		}
	}()
	log.Info("server running", "port", cfg.Port, "artifact_backend", cfg.Upload.Backend, "origins", cfg.AllowedOrigins)

	<-ctx.Done()
	log.Info("shutting down server")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Error("server shutdown failed", "error", err)
	}
}

func newArtifactStore(ctx context.Context, cfg *config.Config, policy storage.UploadPolicy, log *logger.Logger) (storage.ArtifactStore, error) {
	if cfg.Upload.Backend == "r2" {
		return storage.NewR2Store(ctx, storage.R2Config{
			AccountID:       cfg.R2.AccountID,
			AccessKeyID:     cfg.R2.AccessKeyID,
			AccessKeySecret: cfg.R2.AccessKeySecret,
			Bucket:          cfg.R2.Bucket,
			CDNBaseURL:      cfg.R2.CDNBaseURL,
		}, policy, log)
	}
	return storage.NewLocalStore(cfg.Upload.LocalDir, "/uploads", policy, log)
}
