package account

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/healthguard/healthguard/internal/platform/apperr"
	"github.com/healthguard/healthguard/internal/platform/auth"
	"github.com/healthguard/healthguard/internal/platform/notification"
)

const (
	// ResetCodeTTL bounds how long an emailed reset code stays valid.
	ResetCodeTTL = 15 * time.Minute
	// MaxResetAttempts is how many guesses one reset code allows before it
	// is discarded.
	MaxResetAttempts = 5
	// bcrypt ignores input past 72 bytes.
	maxPasswordLength = 72
)

var errBadCredentials = apperr.Unauthenticated("invalid email or password")

type Service struct {
	users  UserRepository
	tokens *auth.TokenIssuer
	mailer notification.PasswordResetMailer
	logger zerolog.Logger
	now    func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

func NewService(users UserRepository, tokens *auth.TokenIssuer, mailer notification.PasswordResetMailer, logger zerolog.Logger) *Service {
	return &Service{
		users:  users,
		tokens: tokens,
		mailer: mailer,
		logger: logger,
		now:    time.Now,
	}
}

// Register creates a Patient or Doctor account. Admins are created with
// CreateAdmin only.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	role, err := auth.ParseRole(in.Role)
	if err != nil {
		return nil, apperr.Validation("role must be Patient or Doctor")
	}
	if role == auth.RoleAdmin {
		return nil, apperr.Forbidden("admin accounts cannot be self-registered")
	}
	return s.create(ctx, in, role)
}

// CreateAdmin creates an Admin account. It is reachable from the CLI only.
func (s *Service) CreateAdmin(ctx context.Context, in RegisterInput) (*User, error) {
	return s.create(ctx, in, auth.RoleAdmin)
}

func (s *Service) create(ctx context.Context, in RegisterInput, role auth.Role) (*User, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	firstName := strings.TrimSpace(in.FirstName)
	lastName := strings.TrimSpace(in.LastName)
	if firstName == "" || lastName == "" {
		return nil, apperr.Validation("first_name and last_name are required")
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, apperr.Conflict("email is already registered")
	} else if !apperr.Is(err, apperr.KindNotFound) {
		return nil, err
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	u := &User{
		FirstName:    firstName,
		LastName:     lastName,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Login verifies credentials and issues a bearer token. Unknown emails and
// wrong passwords produce the same error.
func (s *Service) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil || in.Password == "" {
		return nil, errBadCredentials
	}

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			auth.CheckPassword(s.timingHash(), in.Password)
			return nil, errBadCredentials
		}
		return nil, err
	}
	if !auth.CheckPassword(u.PasswordHash, in.Password) {
		return nil, errBadCredentials
	}

	token, expiresAt, err := s.tokens.Issue(u.Subject(), in.RememberMe)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "issue token", err)
	}
	return &LoginResult{
		Token:     token,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     u.Email,
		Role:      u.Role,
		ExpiresAt: expiresAt,
	}, nil
}

// Me returns the caller's account.
func (s *Service) Me(ctx context.Context, p auth.Principal) (*User, error) {
	return s.users.GetByID(ctx, p.UserID)
}

func (s *Service) EditProfile(ctx context.Context, p auth.Principal, in ProfileInput) (*User, error) {
	u, err := s.users.GetByID(ctx, p.UserID)
	if err != nil {
		return nil, err
	}

	if in.FirstName != nil {
		if u.FirstName = strings.TrimSpace(*in.FirstName); u.FirstName == "" {
			return nil, apperr.Validation("first_name cannot be empty")
		}
	}
	if in.LastName != nil {
		if u.LastName = strings.TrimSpace(*in.LastName); u.LastName == "" {
			return nil, apperr.Validation("last_name cannot be empty")
		}
	}
	if in.Email != nil {
		email, err := normalizeEmail(*in.Email)
		if err != nil {
			return nil, err
		}
		if email != u.Email {
			if _, err := s.users.GetByEmail(ctx, email); err == nil {
				return nil, apperr.Conflict("email is already registered")
			} else if !apperr.Is(err, apperr.KindNotFound) {
				return nil, err
			}
			u.Email = email
		}
	}

	if err := s.users.UpdateProfile(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// DeleteAccount removes the caller. The patient record and its diagnoses go
// with it.
func (s *Service) DeleteAccount(ctx context.Context, p auth.Principal) error {
	return s.users.Delete(ctx, p.UserID)
}

// RequestPasswordReset emails a one-time code when the address belongs to an
// account. The outcome is never reported to the caller.
func (s *Service) RequestPasswordReset(ctx context.Context, in ForgotPasswordInput) error {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return err
	}

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			s.logger.Info().Msg("password reset requested for unknown email")
			return nil
		}
		return err
	}

	code, err := generateResetCode()
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "generate reset code", err)
	}
	hash, err := auth.HashPassword(code)
	if err != nil {
		return err
	}
	if err := s.users.SetResetCode(ctx, u.ID, hash, s.now().Add(ResetCodeTTL)); err != nil {
		return err
	}

	if err := s.mailer.SendPasswordReset(ctx, u.Email, code, ResetCodeTTL); err != nil {
		s.logger.Warn().Err(err).Int64("user_id", u.ID).Msg("password reset email failed")
	}
	return nil
}

func (s *Service) ResetPassword(ctx context.Context, in ResetPasswordInput) error {
	invalid := apperr.Validation("invalid or expired reset code")

	email, err := normalizeEmail(in.Email)
	if err != nil {
		return invalid
	}
	if err := validatePassword(in.NewPassword); err != nil {
		return err
	}

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return invalid
		}
		return err
	}
	claim, err := s.users.ClaimResetAttempt(ctx, u.ID, MaxResetAttempts)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return invalid
		}
		return err
	}
	if s.now().After(claim.ExpiresAt) {
		return invalid
	}
	if !auth.CheckPassword(claim.Hash, strings.TrimSpace(in.Code)) {
		if claim.Attempts >= MaxResetAttempts {
			if err := s.users.ClearResetCode(ctx, u.ID); err != nil {
				return err
			}
			s.logger.Warn().Int64("user_id", u.ID).Msg("reset code discarded after too many attempts")
		}
		return invalid
	}

	hash, err := auth.HashPassword(in.NewPassword)
	if err != nil {
		return err
	}
	return s.users.UpdatePassword(ctx, u.ID, hash)
}

// timingHash is compared against when the email is unknown so both login
// failure paths cost one bcrypt comparison.
func (s *Service) timingHash() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = auth.HashPassword("healthguard-timing-equalizer")
	})
	return s.dummyHash
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", apperr.Validation("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", apperr.Validation("email %q is not a valid address", raw)
	}
	return email, nil
}

func validatePassword(pw string) error {
	if len(pw) < auth.MinPasswordLength {
		return apperr.Validation("password must be at least %d characters", auth.MinPasswordLength)
	}
	if len(pw) > maxPasswordLength {
		return apperr.Validation("password must be at most %d bytes", maxPasswordLength)
	}
	return nil
}

func generateResetCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
