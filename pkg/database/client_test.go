package database

import (
	"context"
	"testing"
	"time"

	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/sql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/codeready-toolchain/deepsoc/pkg/config"
)

func testConfig(host string, port int) config.DatabaseConfig {
	return config.DatabaseConfig{
		Host:            host,
		Port:            port,
		User:            "deepsoc",
		Password:        "deepsoc",
		Database:        "deepsoc_test",
		SSLMode:         "disable",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 15 * time.Minute,
	}
}

// newInlineTestClient spins up a throwaway Postgres directly (avoiding an
// import cycle with test/database, which itself imports this package) and
// runs the real embedded migrations against it through NewClient.
func newInlineTestClient(t *testing.T) *Client {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("deepsoc_test"),
		postgres.WithUsername("deepsoc"),
		postgres.WithPassword("deepsoc"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Skipf("skipping: could not start a testcontainers postgres: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(pgContainer); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	cfg := testConfig(host, port.Int())
	client, err := NewClient(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestNewClient_RunsMigrationsAndIndexes(t *testing.T) {
	client := newInlineTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.DB().PingContext(ctx))

	var exists bool
	err := client.DB().QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = 'events')`,
	).Scan(&exists)
	require.NoError(t, err)
	assert.True(t, exists, "events table should exist after migrations")

	var indexExists bool
	err = client.DB().QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM pg_indexes WHERE indexname = 'idx_events_message_gin')`,
	).Scan(&indexExists)
	require.NoError(t, err)
	assert.True(t, indexExists, "full-text search index should exist after NewClient")
}

func TestNewClient_IsIdempotent(t *testing.T) {
	client := newInlineTestClient(t)
	ctx := context.Background()

	// Re-running migrations and index creation against an already
	// initialized database (the second call NewClient makes internally
	// on every process start) must not error.
	require.NoError(t, runMigrations(ctx, client.DB(), "deepsoc_test"))
	require.NoError(t, CreateSearchIndexes(ctx, sql.OpenDB(dialect.Postgres, client.DB())))
}

func TestHealth(t *testing.T) {
	client := newInlineTestClient(t)
	ctx := context.Background()

	health, err := Health(ctx, client.DB())
	require.NoError(t, err)
	assert.Equal(t, "healthy", health.Status)
	assert.Greater(t, health.MaxOpenConns, 0)
}

func TestFullTextSearch(t *testing.T) {
	client := newInlineTestClient(t)
	ctx := context.Background()

	_, err := client.Event.Create().
		SetID("evt-1").
		SetMessage("Critical disk failure on production database node").
		Save(ctx)
	require.NoError(t, err)

	_, err = client.Event.Create().
		SetID("evt-2").
		SetMessage("Routine memory usage above average threshold").
		Save(ctx)
	require.NoError(t, err)

	rows, err := client.DB().QueryContext(ctx,
		`SELECT event_id FROM events
		WHERE to_tsvector('english', message) @@ to_tsquery('english', $1)`,
		"disk & failure",
	)
	require.NoError(t, err)
	defer rows.Close()

	var matched []string
	for rows.Next() {
		var id string
		require.NoError(t, rows.Scan(&id))
		matched = append(matched, id)
	}
	require.Len(t, matched, 1)
	assert.Equal(t, "evt-1", matched[0])
}
