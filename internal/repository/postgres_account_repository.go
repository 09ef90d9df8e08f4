package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"gotus/internal/models"
)

const uniqueViolation = "23505"

const accountColumns = `
	id, email, password_hash, role, first_name, last_name, is_active,
	department, institution_name, address, location, permissions,
	created_by, created_at, updated_at, last_login
`

type PostgresAccountRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresAccountRepository(pool *pgxpool.Pool) *PostgresAccountRepository {
	return &PostgresAccountRepository{pool: pool}
}

func (r *PostgresAccountRepository) Create(ctx context.Context, account *models.Account) error {
	const query = `
		INSERT INTO accounts (` + accountColumns + `) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16
		)
	`

	_, err := r.pool.Exec(ctx, query,
		account.ID,
		account.Email,
		account.PasswordHash,
		account.Role,
		account.FirstName,
		account.LastName,
		account.IsActive,
		account.Department,
		account.InstitutionName,
		account.Address,
		account.Location,
		permissionsOrEmpty(account.Permissions),
		account.CreatedBy,
		account.CreatedAt,
		account.UpdatedAt,
		account.LastLogin,
	)
	return mapPgError(err)
}

func (r *PostgresAccountRepository) FindByID(ctx context.Context, id string) (*models.Account, error) {
	const query = `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccount(r.pool.QueryRow(ctx, query, id))
}

func (r *PostgresAccountRepository) FindByEmail(ctx context.Context, email string, activeOnly bool) (*models.Account, error) {
	const query = `
		SELECT ` + accountColumns + ` FROM accounts
		WHERE lower(email) = lower($1) AND (NOT $2 OR is_active)
	`
	return scanAccount(r.pool.QueryRow(ctx, query, email, activeOnly))
}

func (r *PostgresAccountRepository) Update(ctx context.Context, account *models.Account) error {
	const query = `
		UPDATE accounts SET
			email = $2,
			password_hash = $3,
			role = $4,
			first_name = $5,
			last_name = $6,
			department = $7,
			institution_name = $8,
			address = $9,
			location = $10,
			permissions = $11,
			updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at, is_active
	`

	row := r.pool.QueryRow(ctx, query,
		account.ID,
		account.Email,
		account.PasswordHash,
		account.Role,
		account.FirstName,
		account.LastName,
		account.Department,
		account.InstitutionName,
		account.Address,
		account.Location,
		permissionsOrEmpty(account.Permissions),
	)
	if err := row.Scan(&account.UpdatedAt, &account.IsActive); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrAccountNotFound
		}
		return mapPgError(err)
	}
	return nil
}

func (r *PostgresAccountRepository) SetActive(ctx context.Context, id string, active bool) error {
	const query = `UPDATE accounts SET is_active = $2, updated_at = NOW() WHERE id = $1`
	cmd, err := r.pool.Exec(ctx, query, id, active)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (r *PostgresAccountRepository) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE accounts SET last_login = $2 WHERE id = $1`
	cmd, err := r.pool.Exec(ctx, query, id, at.UTC())
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (r *PostgresAccountRepository) List(ctx context.Context, filter AccountFilter, offset, limit int) ([]models.Account, error) {
	where, args := pgWhere(filter)
	query := `SELECT ` + accountColumns + ` FROM accounts` + where + ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if offset > 0 {
		args = append(args, offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := []models.Account{}
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *account)
	}
	return accounts, rows.Err()
}

func (r *PostgresAccountRepository) Count(ctx context.Context, filter AccountFilter) (int64, error) {
	where, args := pgWhere(filter)
	var count int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM accounts`+where, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *PostgresAccountRepository) FindProfiles(ctx context.Context, ids []string) (map[string]models.ShortProfile, error) {
	out := make(map[string]models.ShortProfile, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	const query = `SELECT id, email, first_name, last_name, role FROM accounts WHERE id = ANY($1)`
	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var p models.ShortProfile
		if err := rows.Scan(&p.ID, &p.Email, &p.FirstName, &p.LastName, &p.Role); err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

func (r *PostgresAccountRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func scanAccount(row pgx.Row) (*models.Account, error) {
	var a models.Account
	if err := row.Scan(
		&a.ID,
		&a.Email,
		&a.PasswordHash,
		&a.Role,
		&a.FirstName,
		&a.LastName,
		&a.IsActive,
		&a.Department,
		&a.InstitutionName,
		&a.Address,
		&a.Location,
		&a.Permissions,
		&a.CreatedBy,
		&a.CreatedAt,
		&a.UpdatedAt,
		&a.LastLogin,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &a, nil
}

func pgWhere(filter AccountFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if filter.Role != "" {
		args = append(args, filter.Role)
		clauses = append(clauses, fmt.Sprintf("role = $%d", len(args)))
	}
	if filter.Active != nil {
		args = append(args, *filter.Active)
		clauses = append(clauses, fmt.Sprintf("is_active = $%d", len(args)))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+escapeLike(search)+"%")
		n := len(args)
		clauses = append(clauses, fmt.Sprintf("(first_name ILIKE $%d OR last_name ILIKE $%d OR email ILIKE $%d)", n, n, n))
	}
	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func permissionsOrEmpty(p []string) []string {
	if p == nil {
		return []string{}
	}
	return p
}

func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrEmailTaken
	}
	return err
}
