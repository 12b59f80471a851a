// Package cache holds derived leaderboard results. Entries are keyed by a
// generation counter so a ledger append makes every older entry unreachable.
package cache

import (
	"context"
	"time"
)

type LeaderboardCache interface {
	// Get decodes a cached value into dst and reports whether it was present.
	Get(ctx context.Context, key string, dst interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	// Generation is the current ledger generation to embed in keys.
	Generation(ctx context.Context) (int64, error)
	// Bump invalidates everything cached under older generations.
	Bump(ctx context.Context) error
}

// Nop caches nothing; used when no Redis is configured.
type Nop struct{}

func (Nop) Get(context.Context, string, interface{}) (bool, error) { return false, nil }

func (Nop) Set(context.Context, string, interface{}, time.Duration) error { return nil }

func (Nop) Generation(context.Context) (int64, error) { return 0, nil }

func (Nop) Bump(context.Context) error { return nil }
