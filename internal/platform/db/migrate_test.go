package db

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationNamesAreOrdered(t *testing.T) {
	files, err := migrationNames(migrationFiles)
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_idempotency_keys.sql", "0002_job_runs.sql", "0003_audit_events.sql"}, files)
}

func TestMigrateIsRepeatable(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := Connect(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()

	require.NoError(t, Migrate(ctx, pool))
	require.NoError(t, Migrate(ctx, pool))

	var count int
	require.NoError(t, pool.QueryRow(ctx, "SELECT COUNT(1) FROM schema_migrations WHERE version IN ('0001_idempotency_keys', '0002_job_runs')").Scan(&count))
	assert.Equal(t, 2, count)
}
