package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/ayush/tasktracker/backend/internal/auth"
	"github.com/ayush/tasktracker/backend/internal/models"
)

// poolIface is the subset of *pgxpool.Pool used by the stores.
// pgxmock.PgxPoolIface satisfies it in tests.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const userColumns = `id::text, name, email, password_hash, reset_token_hash, reset_expires_at, created_at, updated_at`

// PostgresStore handles user CRUD against PostgreSQL.
type PostgresStore struct {
	pool poolIface
}

func NewPostgresStore(pool poolIface) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Create inserts a user. The unique index on LOWER(email) rejects duplicates.
func (s *PostgresStore) Create(ctx context.Context, u *models.User) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, name, email, password_hash, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		u.ID, u.Name, u.Email, u.PasswordHash, u.CreatedAt, u.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return oops.Code("USER_DUPLICATE_EMAIL").With("email", u.Email).Wrap(auth.ErrDuplicateEmail)
	}
	if err != nil {
		return oops.Code("USER_CREATE_FAILED").With("operation", "insert user").Wrap(err)
	}
	return nil
}

func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1)`, email,
	), "find user by email")
}

// FindByName matches case-insensitively. When several users share a name the
// earliest registered wins.
func (s *PostgresStore) FindByName(ctx context.Context, name string) (*models.User, error) {
	return s.scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE LOWER(name) = LOWER($1)
		 ORDER BY created_at ASC LIMIT 1`, name,
	), "find user by name")
}

func (s *PostgresStore) FindByID(ctx context.Context, id string, includeSecret bool) (*models.User, error) {
	u, err := s.scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1::uuid`, id,
	), "find user by id")
	if err != nil {
		return nil, err
	}
	if !includeSecret {
		u.PasswordHash = ""
	}
	return u, nil
}

func (s *PostgresStore) FindByResetTokenHash(ctx context.Context, tokenHash string, now time.Time) (*models.User, error) {
	return s.scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE reset_token_hash = $1 AND reset_expires_at > $2`, tokenHash, now,
	), "find user by reset token")
}

// Update overwrites every mutable column of the user row.
func (s *PostgresStore) Update(ctx context.Context, u *models.User) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users
		 SET name = $2, email = $3, password_hash = $4,
		     reset_token_hash = $5, reset_expires_at = $6, updated_at = $7
		 WHERE id = $1::uuid`,
		u.ID, u.Name, u.Email, u.PasswordHash, u.ResetTokenHash, u.ResetExpiresAt, u.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return oops.Code("USER_DUPLICATE_EMAIL").With("email", u.Email).Wrap(auth.ErrDuplicateEmail)
	}
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").With("operation", "update user").With("user_id", u.ID).Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").With("user_id", u.ID).Wrap(auth.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) scanUser(row pgx.Row, operation string) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash,
		&u.ResetTokenHash, &u.ResetExpiresAt, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) || isInvalidText(err) {
		return nil, oops.Code("USER_NOT_FOUND").With("operation", operation).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_QUERY_FAILED").With("operation", operation).Wrap(err)
	}
	return &u, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

// isInvalidText reports a value Postgres could not parse, such as a malformed uuid.
func isInvalidText(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.InvalidTextRepresentation
}
