// Package dbtest connects repository tests to a migrated Postgres database.
// Tests are skipped when the database is unreachable.
package dbtest

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/vasiliy-maslov/ecommerce-backend/internal/config"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/db"
)

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Config reads TEST_DB_* variables with local development defaults.
func Config() config.PostgresConfig {
	_, file, _, _ := runtime.Caller(0)
	root := filepath.Join(filepath.Dir(file), "..", "..", "..")

	return config.PostgresConfig{
		Host:            getenv("TEST_DB_HOST", "localhost"),
		Port:            getenv("TEST_DB_PORT", "5432"),
		User:            getenv("TEST_DB_USER", "postgres"),
		Password:        getenv("TEST_DB_PASSWORD", "123456"),
		DBName:          getenv("TEST_DB_NAME", "ecommerce_test"),
		SSLMode:         getenv("TEST_DB_SSLMODE", "disable"),
		MaxConns:        5,
		MinConns:        1,
		MaxConnLifetime: 5 * time.Minute,
		MigrationsPath:  filepath.Join(root, "migrations"),
	}
}

// New returns a migrated database with the given tables truncated before and
// after the test.
func New(t *testing.T, tables ...string) *db.Postgres {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping database test in short mode")
	}

	cfg := Config()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pg, err := db.New(ctx, cfg)
	if err != nil {
		t.Skipf("postgres not available: %v", err)
	}
	if err := db.Migrate(cfg); err != nil {
		pg.Close()
		t.Fatalf("failed to migrate test database: %v", err)
	}

	truncate := func() {
		if len(tables) == 0 {
			return
		}
		_, err := pg.Pool.Exec(context.Background(), "TRUNCATE TABLE "+strings.Join(tables, ", ")+" RESTART IDENTITY CASCADE")
		if err != nil {
			t.Fatalf("failed to truncate tables: %v", err)
		}
	}
	truncate()
	t.Cleanup(func() {
		truncate()
		pg.Close()
	})
	return pg
}
