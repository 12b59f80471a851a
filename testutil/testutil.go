// Package testutil opens throwaway stores for package tests.
package testutil

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"eco-challenge-engine/logger"
	"eco-challenge-engine/models"
)

// Epoch is a Wednesday; fixtures and fake clocks start here.
var Epoch = time.Date(2026, time.March, 18, 10, 0, 0, 0, time.UTC)

func Logger(tb testing.TB) *logger.Logger {
	tb.Helper()
	return logger.NewNop()
}

func Clock() *clockwork.FakeClock {
	return clockwork.NewFakeClockAt(Epoch)
}

// DB opens a private in-memory SQLite database with every model migrated.
// A single connection serializes transactions the way row locks would on
// Postgres for the contended rows the tests exercise.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(tb.Name()) + "_" + uuid.NewString()[:8]
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", name)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		tb.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		tb.Fatalf("sqlite handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	tb.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		tb.Fatalf("migrate: %v", err)
	}
	return db
}
