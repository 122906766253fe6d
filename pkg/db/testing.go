package db

import (
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// NewTest opens an isolated in-memory SQLite database for a single test and
// migrates the given models into it. The pool is pinned to one connection so
// concurrent transactions queue instead of failing with SQLITE_BUSY.
func NewTest(t testing.TB, models ...any) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: Silent(),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("test db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if len(models) > 0 {
		if err := conn.AutoMigrate(models...); err != nil {
			t.Fatalf("migrate test db: %v", err)
		}
	}
	return conn
}

// PostgresTestDSNEnv names the variable holding a postgres DSN for tests that
// need real row locking. Those tests are skipped when it is unset.
const PostgresTestDSNEnv = "PLANTOPS_TEST_POSTGRES_DSN"

// NewPostgresTest creates a throwaway schema in the database named by
// PostgresTestDSNEnv, migrates models into it and drops it on cleanup. The
// pool is left unbounded so transactions really run concurrently.
func NewPostgresTest(t testing.TB, models ...any) *gorm.DB {
	t.Helper()

	dsn := strings.TrimSpace(os.Getenv(PostgresTestDSNEnv))
	if dsn == "" {
		t.Skipf("%s not set", PostgresTestDSNEnv)
	}

	admin, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: Silent()})
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	schema := "test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := admin.Exec(fmt.Sprintf(`CREATE SCHEMA %q`, schema)).Error; err != nil {
		t.Fatalf("create schema: %v", err)
	}

	conn, err := gorm.Open(postgres.Open(withSearchPath(dsn, schema)), &gorm.Config{
		Logger: Silent(),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		t.Fatalf("open postgres schema: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("postgres handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(16)

	t.Cleanup(func() {
		_ = sqlDB.Close()
		_ = admin.Exec(fmt.Sprintf(`DROP SCHEMA %q CASCADE`, schema)).Error
		if adminDB, err := admin.DB(); err == nil {
			_ = adminDB.Close()
		}
	})

	if len(models) > 0 {
		if err := conn.AutoMigrate(models...); err != nil {
			t.Fatalf("migrate postgres schema: %v", err)
		}
	}
	return conn
}

// withSearchPath appends search_path as a runtime parameter to either DSN
// form pgx accepts.
func withSearchPath(dsn, schema string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		return dsn + sep + "search_path=" + schema
	}
	return dsn + " search_path=" + schema
}
