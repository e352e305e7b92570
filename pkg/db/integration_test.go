//go:build integration

package db

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/morezero/httpserver-provider/pkg/codec"
)

const dbIntegrationPrefix = "db:integration_test"

// testDBEnv returns the database URL for integration tests; skips the test if not set.
func testDBEnv(t *testing.T) string {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("db:integration_test - DATABASE_URL not set, skipping")
	}
	return url
}

// setupIntegrationDB creates a pool, runs migrations, and returns an empty repository.
func setupIntegrationDB(t *testing.T) (context.Context, *BindingRepository) {
	t.Helper()
	ctx := context.Background()

	pool, err := NewPool(ctx, testDBEnv(t))
	if err != nil {
		t.Fatalf("%s - NewPool failed: %v", dbIntegrationPrefix, err)
	}
	t.Cleanup(pool.Close)

	migrations, err := LoadMigrationFiles(filepath.Join("..", "..", "migrations"))
	if err != nil {
		t.Fatalf("%s - LoadMigrationFiles failed: %v", dbIntegrationPrefix, err)
	}
	if _, err := RunMigrations(ctx, pool, migrations); err != nil {
		t.Fatalf("%s - RunMigrations failed: %v", dbIntegrationPrefix, err)
	}

	repo := NewBindingRepository(pool)
	if err := repo.Clear(ctx); err != nil {
		t.Fatalf("%s - Clear failed: %v", dbIntegrationPrefix, err)
	}
	return ctx, repo
}

func TestIntegration_RunMigrationsIsIdempotent(t *testing.T) {
	ctx, repo := setupIntegrationDB(t)

	migrations, err := LoadMigrationFiles(filepath.Join("..", "..", "migrations"))
	if err != nil {
		t.Fatalf("%s - LoadMigrationFiles failed: %v", dbIntegrationPrefix, err)
	}
	n, err := RunMigrations(ctx, repo.pool, migrations)
	if err != nil {
		t.Fatalf("%s - second RunMigrations failed: %v", dbIntegrationPrefix, err)
	}
	if n != 0 {
		t.Errorf("%s - expected 0 migrations applied on rerun, got %d", dbIntegrationPrefix, n)
	}
}

func TestIntegration_SaveListDelete(t *testing.T) {
	ctx, repo := setupIntegrationDB(t)

	if err := repo.SaveBinding(ctx, &codec.CapabilityConfiguration{Module: "m2", Values: map[string]string{"PORT": "9101"}}); err != nil {
		t.Fatalf("%s - SaveBinding failed: %v", dbIntegrationPrefix, err)
	}
	if err := repo.SaveBinding(ctx, &codec.CapabilityConfiguration{Module: "m1", Values: map[string]string{"PORT": "9100"}}); err != nil {
		t.Fatalf("%s - SaveBinding failed: %v", dbIntegrationPrefix, err)
	}
	// Rebinding replaces the stored values.
	if err := repo.SaveBinding(ctx, &codec.CapabilityConfiguration{Module: "m1", Values: map[string]string{"PORT": "9200", "HOST": "127.0.0.1"}}); err != nil {
		t.Fatalf("%s - SaveBinding failed: %v", dbIntegrationPrefix, err)
	}

	list, err := repo.ListBindings(ctx)
	if err != nil {
		t.Fatalf("%s - ListBindings failed: %v", dbIntegrationPrefix, err)
	}
	if len(list) != 2 {
		t.Fatalf("%s - expected 2 bindings, got %d", dbIntegrationPrefix, len(list))
	}
	if list[0].Module != "m1" || list[0].Values["PORT"] != "9200" || list[0].Values["HOST"] != "127.0.0.1" {
		t.Errorf("%s - unexpected first binding %+v", dbIntegrationPrefix, list[0])
	}

	if err := repo.DeleteBinding(ctx, "m1"); err != nil {
		t.Fatalf("%s - DeleteBinding failed: %v", dbIntegrationPrefix, err)
	}
	if err := repo.DeleteBinding(ctx, "never-bound"); err != nil {
		t.Fatalf("%s - DeleteBinding of missing module failed: %v", dbIntegrationPrefix, err)
	}

	rows, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("%s - List failed: %v", dbIntegrationPrefix, err)
	}
	if len(rows) != 1 || rows[0].Module != "m2" || rows[0].UpdatedAt.IsZero() {
		t.Errorf("%s - unexpected rows after delete %+v", dbIntegrationPrefix, rows)
	}
}
