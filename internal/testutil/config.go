package testutil

import (
	"context"
	"os"
	"strconv"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

const (
	// TestDatabaseURL names the DSN used by database-backed tests.
	TestDatabaseURL = "TEST_DATABASE_URL"
	// TestBackendURL names a live backend for HTTP ledger smoke tests.
	TestBackendURL = "TEST_BACKEND_URL"
)

// EnvOr returns the environment variable or fallback when unset.
func EnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// IsShortMode reports whether slow or external tests should be skipped,
// either via -short or TEST_SHORT=true.
func IsShortMode() bool {
	if testing.Short() {
		return true
	}
	enabled, _ := strconv.ParseBool(os.Getenv("TEST_SHORT"))
	return enabled
}

// SetupPool connects to TEST_DATABASE_URL, skipping the test when it is not
// configured. The pool is closed on cleanup.
func SetupPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	_ = godotenv.Load("../../.env")

	dsn := os.Getenv(TestDatabaseURL)
	if dsn == "" || IsShortMode() {
		t.Skipf("%s not set; skipping database test", TestDatabaseURL)
	}

	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { pool.Close() })
	return pool
}
