package account

import (
	"context"
	"time"
)

type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	UpdateProfile(ctx context.Context, u *User) error
	// UpdatePassword stores a new hash and clears any pending reset code.
	UpdatePassword(ctx context.Context, id int64, hash string) error
	// SetResetCode stores a new pending code and zeroes its attempt count.
	SetResetCode(ctx context.Context, id int64, hash string, expiresAt time.Time) error
	// ClaimResetAttempt counts one guess against the pending code and returns
	// it with the attempts used so far. It fails with NotFound when no code
	// is pending or maxAttempts guesses were already made.
	ClaimResetAttempt(ctx context.Context, id int64, maxAttempts int) (ResetClaim, error)
	ClearResetCode(ctx context.Context, id int64) error
	Delete(ctx context.Context, id int64) error
}

// ResetClaim is a pending reset code after one attempt was counted.
type ResetClaim struct {
	Hash      string
	ExpiresAt time.Time
	Attempts  int
}
