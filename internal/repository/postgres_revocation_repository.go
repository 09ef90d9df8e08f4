package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// minRetention mirrors cache.MinRevocationRetention: a revocation whose
// deadline already passed is still written and kept briefly.
const minRetention = time.Minute

// PostgresRevocationRepository records signed-out token ids so they are
// refused until the token can no longer be verified or refreshed.
type PostgresRevocationRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRevocationRepository(pool *pgxpool.Pool) *PostgresRevocationRepository {
	return &PostgresRevocationRepository{pool: pool}
}

func (r *PostgresRevocationRepository) Revoke(ctx context.Context, jti string, retainUntil time.Time) error {
	const query = `
		INSERT INTO revoked_tokens (jti, revoked_at, retain_until)
		VALUES ($1, NOW(), GREATEST($2, NOW() + $3::interval))
		ON CONFLICT (jti) DO UPDATE SET retain_until = GREATEST(revoked_tokens.retain_until, EXCLUDED.retain_until)
	`
	_, err := r.pool.Exec(ctx, query, jti, retainUntil.UTC(), minRetention)
	return err
}

func (r *PostgresRevocationRepository) IsRevoked(ctx context.Context, jti string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM revoked_tokens WHERE jti = $1 AND retain_until > NOW())`
	var revoked bool
	if err := r.pool.QueryRow(ctx, query, jti).Scan(&revoked); err != nil {
		return false, err
	}
	return revoked, nil
}

// PurgeExpired drops entries whose tokens are past their refresh grace and
// would be refused anyway.
func (r *PostgresRevocationRepository) PurgeExpired(ctx context.Context) (int64, error) {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM revoked_tokens WHERE retain_until <= NOW()`)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}
