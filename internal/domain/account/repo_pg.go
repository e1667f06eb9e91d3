package account

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/healthguard/healthguard/internal/platform/apperr"
	"github.com/healthguard/healthguard/internal/platform/db"
)

type userRepoPG struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) UserRepository {
	return &userRepoPG{pool: pool}
}

func (r *userRepoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const userCols = `id, first_name, last_name, email, password_hash, role,
	password_reset_hash, password_reset_expires_at, created_at, updated_at`

func (r *userRepoPG) Create(ctx context.Context, u *User) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO users (first_name, last_name, email, password_hash, role)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`,
		u.FirstName, u.LastName, u.Email, u.PasswordHash, u.Role,
	).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return translate(err, "user create")
	}
	return nil
}

func (r *userRepoPG) GetByID(ctx context.Context, id int64) (*User, error) {
	u, err := scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, translate(err, "user get by id")
	}
	return u, nil
}

func (r *userRepoPG) GetByEmail(ctx context.Context, email string) (*User, error) {
	u, err := scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE email = $1`, email))
	if err != nil {
		return nil, translate(err, "user get by email")
	}
	return u, nil
}

func (r *userRepoPG) UpdateProfile(ctx context.Context, u *User) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE users SET first_name = $2, last_name = $3, email = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		u.ID, u.FirstName, u.LastName, u.Email,
	).Scan(&u.UpdatedAt)
	if err != nil {
		return translate(err, "user update profile")
	}
	return nil
}

func (r *userRepoPG) UpdatePassword(ctx context.Context, id int64, hash string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE users SET password_hash = $2, password_reset_hash = NULL,
			password_reset_expires_at = NULL, password_reset_attempts = 0, updated_at = NOW()
		WHERE id = $1`, id, hash)
	if err != nil {
		return fmt.Errorf("user update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("user not found")
	}
	return nil
}

func (r *userRepoPG) SetResetCode(ctx context.Context, id int64, hash string, expiresAt time.Time) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE users SET password_reset_hash = $2, password_reset_expires_at = $3,
			password_reset_attempts = 0, updated_at = NOW()
		WHERE id = $1`, id, hash, expiresAt)
	if err != nil {
		return fmt.Errorf("user set reset code: %w", err)
	}
	return nil
}

func (r *userRepoPG) ClaimResetAttempt(ctx context.Context, id int64, maxAttempts int) (ResetClaim, error) {
	var c ResetClaim
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE users SET password_reset_attempts = password_reset_attempts + 1
		WHERE id = $1 AND password_reset_hash IS NOT NULL
			AND password_reset_expires_at IS NOT NULL
			AND password_reset_attempts < $2
		RETURNING password_reset_hash, password_reset_expires_at, password_reset_attempts`,
		id, maxAttempts,
	).Scan(&c.Hash, &c.ExpiresAt, &c.Attempts)
	if err != nil {
		if db.IsNoRows(err) {
			return c, apperr.NotFound("no pending reset code")
		}
		return c, fmt.Errorf("user claim reset attempt: %w", err)
	}
	return c, nil
}

func (r *userRepoPG) ClearResetCode(ctx context.Context, id int64) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE users SET password_reset_hash = NULL, password_reset_expires_at = NULL, updated_at = NOW()
		WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("user clear reset code: %w", err)
	}
	return nil
}

// Delete removes the user. The patients and diagnoses foreign keys cascade.
func (r *userRepoPG) Delete(ctx context.Context, id int64) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("user delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("user not found")
	}
	return nil
}

func translate(err error, op string) error {
	switch {
	case db.IsNoRows(err):
		return apperr.NotFound("user not found")
	case db.IsUniqueViolation(err) && db.ConstraintName(err) == "users_email_key":
		return apperr.Conflict("email is already registered")
	}
	return fmt.Errorf("%s: %w", op, err)
}

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(
		&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.PasswordHash, &u.Role,
		&u.PasswordResetHash, &u.PasswordResetExpiresAt, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}
