// Package itf holds integration test fixtures: a per-test database created
// from the baseline migration, tenant bootstrap, and tenant-scoped tx helpers.
// Tests skip when postgres is unreachable unless running in CI.
package itf

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/coverline/agency-sdk/pkg/composables"
	"github.com/coverline/agency-sdk/pkg/configuration"
)

func inCI() bool {
	return strings.TrimSpace(os.Getenv("CI")) != "" ||
		strings.EqualFold(strings.TrimSpace(os.Getenv("GITHUB_ACTIONS")), "true")
}

// NewTestDB creates a fresh database named after the test, applies the
// baseline migration and returns a pool bound to it. The database is dropped
// on cleanup. migrationsRel is the path from the test package to migrations/.
func NewTestDB(tb testing.TB, ctx context.Context, migrationsRel string) *pgxpool.Pool {
	tb.Helper()

	conf := configuration.Use()
	host := strings.TrimSpace(conf.Database.Host)
	if host == "" {
		host = "localhost"
	}
	port := strings.TrimSpace(conf.Database.Port)
	if port == "" {
		port = "5432"
	}
	user := strings.TrimSpace(conf.Database.User)
	if user == "" {
		user = "postgres"
	}
	password := conf.Database.Password

	adminDSN := "postgres://" + user + ":" + password + "@" + host + ":" + port + "/postgres?sslmode=disable"
	adminConn, err := pgx.Connect(ctx, adminDSN)
	if err != nil {
		if inCI() {
			require.NoError(tb, err)
		}
		tb.Skip("postgres is not reachable; skipping integration test")
	}
	tb.Cleanup(func() { _ = adminConn.Close(ctx) })

	dbName := "itf_" + strings.ToLower(strings.ReplaceAll(tb.Name(), "/", "_"))
	dbName = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			return r
		}
		return '_'
	}, dbName)

	_, _ = adminConn.Exec(ctx, "DROP DATABASE IF EXISTS "+dbName)
	if _, err := adminConn.Exec(ctx, "CREATE DATABASE "+dbName); err != nil {
		if inCI() {
			require.NoError(tb, err)
		}
		tb.Skip("failed to create test database; skipping integration test")
	}

	pool, err := pgxpool.New(ctx, "postgres://"+user+":"+password+"@"+host+":"+port+"/"+dbName+"?sslmode=disable")
	require.NoError(tb, err)

	ApplyGooseUpSQL(tb, ctx, pool, filepath.Join(migrationsRel, "agency", "00001_agency_baseline.sql"))

	tb.Cleanup(func() {
		pool.Close()
		_, _ = adminConn.Exec(ctx, "DROP DATABASE IF EXISTS "+dbName)
	})
	return pool
}

// ApplyGooseUpSQL executes the Up section of a goose migration file.
func ApplyGooseUpSQL(tb testing.TB, ctx context.Context, pool *pgxpool.Pool, relPath string) {
	tb.Helper()
	raw, err := os.ReadFile(filepath.Clean(relPath))
	require.NoError(tb, err)
	sql := extractGooseUp(string(raw))
	require.NotEmpty(tb, strings.TrimSpace(sql))
	_, err = pool.Exec(ctx, sql, pgx.QueryExecModeSimpleProtocol)
	require.NoError(tb, err)
}

func extractGooseUp(raw string) string {
	const up = "-- +goose Up"
	const down = "-- +goose Down"
	start := strings.Index(raw, up)
	if start < 0 {
		return raw
	}
	raw = raw[start+len(up):]
	if end := strings.Index(raw, down); end >= 0 {
		raw = raw[:end]
	}
	return raw
}

// CreateTenant inserts a tenant row and returns its id.
func CreateTenant(tb testing.TB, ctx context.Context, pool *pgxpool.Pool) uuid.UUID {
	tb.Helper()
	id := uuid.New()
	_, err := pool.Exec(ctx, `INSERT INTO tenants (id, name) VALUES ($1, $2)`, id, "test-"+id.String()[:8])
	require.NoError(tb, err)
	return id
}

// Context returns a pool-carrying, tenant-scoped context, the shape services
// expect from their callers.
func Context(ctx context.Context, pool *pgxpool.Pool, tenantID uuid.UUID) context.Context {
	return composables.WithTenantID(composables.WithPool(ctx, pool), tenantID)
}

// WithTenantTx runs fn inside one committed tenant transaction.
func WithTenantTx[T any](tb testing.TB, ctx context.Context, pool *pgxpool.Pool, tenantID uuid.UUID, fn func(txCtx context.Context) T) T {
	tb.Helper()
	tx, err := pool.Begin(ctx)
	require.NoError(tb, err)
	defer func() { _ = tx.Rollback(ctx) }()

	txCtx := composables.WithTx(ctx, tx)
	txCtx = composables.WithTenantID(txCtx, tenantID)

	out := fn(txCtx)
	require.NoError(tb, tx.Commit(ctx))
	return out
}
