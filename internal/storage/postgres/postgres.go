package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"auth_service/internal/config"
	"auth_service/internal/models"
	"auth_service/internal/storage"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresRepo struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, cfg *config.Config) (*PostgresRepo, error) {
	const op = "storage.postgres.New"

	dsn := dsn(cfg)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse config: %w", op, err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = time.Minute * 30

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create pool: %w", op, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: failed to ping database: %w", op, err)
	}

	return &PostgresRepo{pool: pool}, nil
}

// SaveUser inserts a disabled account together with its role grants in one
// transaction. A unique violation on username or email maps to ErrUserExists.
func (r *PostgresRepo) SaveUser(ctx context.Context, user models.User) (uuid.UUID, error) {
	const op = "storage.postgres.SaveUser"

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s: failed to begin tx: %w", op, err)
	}
	defer tx.Rollback(ctx)

	const userQuery = `
		INSERT INTO users (id, username, first_name, last_name, email, password_hash, enabled, verification_code, verification_code_expiry)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id;
	`

	var id uuid.UUID

	err = tx.QueryRow(ctx, userQuery,
		user.ID,
		user.Username,
		user.FirstName,
		user.LastName,
		user.Email,
		string(user.PassHash),
		user.Enabled,
		user.Code,
		user.CodeExpiry,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return uuid.Nil, storage.ErrUserExists
		}

		return uuid.Nil, fmt.Errorf("%s: failed to save user: %w", op, err)
	}

	const roleQuery = `
		INSERT INTO user_roles (user_id, role_id)
		SELECT $1, id FROM roles WHERE authority = $2;
	`

	for _, role := range user.Roles {
		tag, err := tx.Exec(ctx, roleQuery, id, role)
		if err != nil {
			return uuid.Nil, fmt.Errorf("%s: failed to grant role: %w", op, err)
		}
		if tag.RowsAffected() == 0 {
			return uuid.Nil, storage.ErrRoleNotFound
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("%s: failed to commit: %w", op, err)
	}

	return id, nil
}

// UserByLogin resolves a user by username or email, whichever matches.
func (r *PostgresRepo) UserByLogin(ctx context.Context, login string) (models.User, error) {
	const query = `
		SELECT u.id, u.username, u.first_name, u.last_name, u.email, u.password_hash, u.enabled,
		       u.verification_code, u.verification_code_expiry,
		       COALESCE(array_agg(ro.authority) FILTER (WHERE ro.authority IS NOT NULL), '{}')
		FROM users u
		LEFT JOIN user_roles ur ON ur.user_id = u.id
		LEFT JOIN roles ro ON ro.id = ur.role_id
		WHERE u.username = $1 OR u.email = $1
		GROUP BY u.id;
	`

	return r.scanUser(r.pool.QueryRow(ctx, query, login))
}

func (r *PostgresRepo) UserByEmail(ctx context.Context, email string) (models.User, error) {
	const query = `
		SELECT u.id, u.username, u.first_name, u.last_name, u.email, u.password_hash, u.enabled,
		       u.verification_code, u.verification_code_expiry,
		       COALESCE(array_agg(ro.authority) FILTER (WHERE ro.authority IS NOT NULL), '{}')
		FROM users u
		LEFT JOIN user_roles ur ON ur.user_id = u.id
		LEFT JOIN roles ro ON ro.id = ur.role_id
		WHERE u.email = $1
		GROUP BY u.id;
	`

	return r.scanUser(r.pool.QueryRow(ctx, query, email))
}

func (r *PostgresRepo) UserByID(ctx context.Context, id uuid.UUID) (models.User, error) {
	const query = `
		SELECT u.id, u.username, u.first_name, u.last_name, u.email, u.password_hash, u.enabled,
		       u.verification_code, u.verification_code_expiry,
		       COALESCE(array_agg(ro.authority) FILTER (WHERE ro.authority IS NOT NULL), '{}')
		FROM users u
		LEFT JOIN user_roles ur ON ur.user_id = u.id
		LEFT JOIN roles ro ON ro.id = ur.role_id
		WHERE u.id = $1
		GROUP BY u.id;
	`

	return r.scanUser(r.pool.QueryRow(ctx, query, id))
}

func (r *PostgresRepo) scanUser(row pgx.Row) (models.User, error) {
	var u models.User

	err := row.Scan(
		&u.ID,
		&u.Username,
		&u.FirstName,
		&u.LastName,
		&u.Email,
		&u.PassHash,
		&u.Enabled,
		&u.Code,
		&u.CodeExpiry,
		&u.Roles,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, storage.ErrUserNotFound
		}

		return models.User{}, err
	}

	return u, nil
}

// UpdateVerification replaces the pending verification code and its expiry.
func (r *PostgresRepo) UpdateVerification(ctx context.Context, userID uuid.UUID, code int32, expiry time.Time) error {
	const op = "storage.postgres.UpdateVerification"

	const query = `
		UPDATE users
		SET verification_code = $1, verification_code_expiry = $2
		WHERE id = $3;
	`

	tag, err := r.pool.Exec(ctx, query, code, expiry, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrUserNotFound
	}

	return nil
}

// SetVerified enables the account and clears the code and expiry for good.
func (r *PostgresRepo) SetVerified(ctx context.Context, userID uuid.UUID) error {
	const op = "storage.postgres.SetVerified"

	const query = `
		UPDATE users
		SET enabled = TRUE, verification_code = NULL, verification_code_expiry = NULL
		WHERE id = $1;
	`

	tag, err := r.pool.Exec(ctx, query, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrUserNotFound
	}

	return nil
}

func (r *PostgresRepo) SaveRefreshToken(ctx context.Context, record models.RefreshTokenRecord) error {
	const op = "storage.postgres.SaveRefreshToken"

	const query = `
		INSERT INTO refresh_tokens (token_id, token_hash, expires_at)
		VALUES ($1, $2, $3);
	`

	_, err := r.pool.Exec(ctx, query, record.TokenID, record.TokenHash, record.ExpiresAt)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (r *PostgresRepo) RefreshTokenByID(ctx context.Context, tokenID uuid.UUID) (models.RefreshTokenRecord, error) {
	const query = `
		SELECT token_id, token_hash, expires_at
		FROM refresh_tokens
		WHERE token_id = $1;
	`

	var rec models.RefreshTokenRecord

	err := r.pool.QueryRow(ctx, query, tokenID).Scan(&rec.TokenID, &rec.TokenHash, &rec.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.RefreshTokenRecord{}, storage.ErrRefreshTokenNotFound
		}

		return models.RefreshTokenRecord{}, err
	}

	return rec, nil
}

func (r *PostgresRepo) DeleteRefreshToken(ctx context.Context, tokenID uuid.UUID) error {
	const op = "storage.postgres.DeleteRefreshToken"

	const query = `DELETE FROM refresh_tokens WHERE token_id = $1;`

	tag, err := r.pool.Exec(ctx, query, tokenID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrRefreshTokenNotFound
	}

	return nil
}

// RotateRefreshToken deletes the old ledger record and inserts the new one as
// one transaction. If the old record is already gone (a concurrent rotation won
// the race) the whole rotation fails with ErrRefreshTokenNotFound and nothing
// is written.
func (r *PostgresRepo) RotateRefreshToken(ctx context.Context, oldTokenID uuid.UUID, newRecord models.RefreshTokenRecord) error {
	const op = "storage.postgres.RotateRefreshToken"

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%s: failed to begin tx: %w", op, err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `DELETE FROM refresh_tokens WHERE token_id = $1;`, oldTokenID)
	if err != nil {
		return fmt.Errorf("%s: failed to delete old record: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrRefreshTokenNotFound
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO refresh_tokens (token_id, token_hash, expires_at) VALUES ($1, $2, $3);`,
		newRecord.TokenID, newRecord.TokenHash, newRecord.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("%s: failed to insert new record: %w", op, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%s: failed to commit: %w", op, err)
	}

	return nil
}

// DeleteExpiredRefreshTokens is the optional hygiene sweep. Expired rows are
// already unusable because ParseRefresh rejects expired tokens first.
func (r *PostgresRepo) DeleteExpiredRefreshTokens(ctx context.Context) (int64, error) {
	const op = "storage.postgres.DeleteExpiredRefreshTokens"

	tag, err := r.pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at < NOW();`)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return tag.RowsAffected(), nil
}

func (r *PostgresRepo) Close() {
	r.pool.Close()
}

func dsn(cfg *config.Config) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s database=%s sslmode=%s",
		cfg.Postgres.Host,
		cfg.Postgres.Port,
		cfg.Postgres.User,
		cfg.Postgres.Password,
		cfg.Postgres.DBName,
		cfg.Postgres.SSLMode,
	)
}
