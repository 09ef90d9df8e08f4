package repository

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"gotus/internal/database"
)

func TestMongoAccountRepository(t *testing.T) {
	uri := os.Getenv("GOTUS_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("GOTUS_TEST_MONGO_URI not set")
	}

	ctx := context.Background()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	runAccountRepositoryContract(t, func(t *testing.T) AccountRepository {
		name := "gotus_test_" + strings.ToLower(strings.NewReplacer("/", "_", " ", "_").Replace(t.Name()))
		if len(name) > 60 {
			name = name[:60]
		}
		db := client.Database(name)
		require.NoError(t, db.Drop(ctx))
		t.Cleanup(func() { _ = db.Drop(context.Background()) })

		repo, err := NewMongoAccountRepository(ctx, db)
		require.NoError(t, err)
		return repo
	})
}

func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("GOTUS_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("GOTUS_TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, database.Migrate(ctx, pool))
	return pool
}

func TestPostgresAccountRepository(t *testing.T) {
	pool := newTestPool(t)

	runAccountRepositoryContract(t, func(t *testing.T) AccountRepository {
		_, err := pool.Exec(context.Background(), `TRUNCATE accounts`)
		require.NoError(t, err)
		return NewPostgresAccountRepository(pool)
	})
}

func TestPostgresRevocationRepository(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	_, err := pool.Exec(ctx, `TRUNCATE revoked_tokens`)
	require.NoError(t, err)

	repo := NewPostgresRevocationRepository(pool)

	revoked, err := repo.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, repo.Revoke(ctx, "jti-1", time.Now().Add(time.Hour)))
	require.NoError(t, repo.Revoke(ctx, "jti-lapsed", time.Now().Add(-time.Hour)))

	revoked, err = repo.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = repo.IsRevoked(ctx, "jti-lapsed")
	require.NoError(t, err)
	assert.True(t, revoked, "a lapsed deadline is still recorded")

	_, err = pool.Exec(ctx, `INSERT INTO revoked_tokens (jti, retain_until) VALUES ('jti-old', NOW() - INTERVAL '1 hour')`)
	require.NoError(t, err)
	revoked, err = repo.IsRevoked(ctx, "jti-old")
	require.NoError(t, err)
	assert.False(t, revoked)

	purged, err := repo.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, purged)
}
