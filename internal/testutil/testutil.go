// Package testutil provides helpers shared by integration tests.
package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sentra/sentra/internal/model"
)

// RequireEnv returns an environment variable or skips the test if missing.
func RequireEnv(t testing.TB, key string) string {
	t.Helper()
	value := os.Getenv(key)
	if value == "" {
		t.Skipf("%s not set", key)
	}
	return value
}

const advisoryLockID int64 = 730731

// AcquireDBLock grabs a global advisory lock to serialize DB tests.
func AcquireDBLock(ctx context.Context, pool *pgxpool.Pool) (func() error, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", advisoryLockID); err != nil {
		conn.Release()
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	unlock := func() error {
		defer conn.Release()
		if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", advisoryLockID); err != nil {
			return fmt.Errorf("release advisory lock: %w", err)
		}
		return nil
	}

	return unlock, nil
}

// ResetCoreSchema drops and recreates the core schema for tests.
func ResetCoreSchema(ctx context.Context, pool *pgxpool.Pool) error {
	root, err := ProjectRoot()
	if err != nil {
		return err
	}

	downPath := filepath.Join(root, "migrations", "000001_core.down.sql")
	upPath := filepath.Join(root, "migrations", "000001_core.up.sql")

	downSQL, err := os.ReadFile(downPath)
	if err != nil {
		return fmt.Errorf("read down migration: %w", err)
	}
	if _, err := pool.Exec(ctx, string(downSQL)); err != nil {
		return fmt.Errorf("apply down migration: %w", err)
	}

	upSQL, err := os.ReadFile(upPath)
	if err != nil {
		return fmt.Errorf("read up migration: %w", err)
	}
	if _, err := pool.Exec(ctx, string(upSQL)); err != nil {
		return fmt.Errorf("apply up migration: %w", err)
	}

	return nil
}

// FlushRedis clears the current Redis database.
func FlushRedis(ctx context.Context, client *redis.Client) error {
	return client.FlushDB(ctx).Err()
}

// ProjectRoot returns the project root directory.
func ProjectRoot() (string, error) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return "", fmt.Errorf("failed to resolve testutil path")
	}
	root := filepath.Clean(filepath.Join(filepath.Dir(filename), "..", ".."))
	return root, nil
}

// ============================================================================
// Test Data Factories
// ============================================================================

// NewTestSite creates a test site with sensible defaults.
func NewTestSite(t testing.TB, apiKey string) *model.Site {
	t.Helper()
	now := time.Now().UTC()
	return &model.Site{
		ID:                  UniqueID("site"),
		APIKey:              apiKey,
		UserID:              UniqueID("user"),
		AutoBlock:           false,
		RiskThreshold:       70,
		AutoBlockTrialAbuse: false,
		TrialAbuseThreshold: model.DefaultTrialAbuseThreshold,
		ShareReputation:     false,
		SecretHash:          "$argon2id$v=19$m=65536,t=3,p=4$c2FsdHNhbHRzYWx0c2FsdA$aGFzaGhhc2hoYXNoaGFzaGhhc2hoYXNoaGFzaGhhc2g",
		CreatedAt:           now,
	}
}

// NewTestVisitor creates a test visitor with sensible defaults.
func NewTestVisitor(t testing.TB, siteID, visitorID, fingerprint string) *model.Visitor {
	t.Helper()
	now := time.Now().UTC()
	return &model.Visitor{
		ID:               visitorID,
		SiteID:           siteID,
		Fingerprint:      fingerprint,
		UserAgent:        "Mozilla/5.0 (test)",
		ScreenResolution: "1920x1080",
		Timezone:         "America/New_York",
		Language:         "en-US",
		IPAddress:        "203.0.113.10",
		Country:          "US",
		City:             "New York",
		Region:           "New York",
		ISP:              "AS64500 Example Net",
		LastSeen:         now,
		CreatedAt:        now,
	}
}

// NewTestBlock creates a test IP block with sensible defaults.
func NewTestBlock(t testing.TB, siteKey, ip string) *model.ManualBlock {
	t.Helper()
	return &model.ManualBlock{
		ID:        UniqueID("block"),
		SiteKey:   siteKey,
		IP:        ip,
		Reason:    "manual review",
		CreatedAt: time.Now().UTC(),
	}
}

// UniqueID generates a unique ID for tests.
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}
