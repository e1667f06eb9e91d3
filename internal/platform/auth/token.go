package auth

import (
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	DefaultTokenTTL    = 7 * 24 * time.Hour
	RememberMeTokenTTL = 30 * 24 * time.Hour
)

// Subject is the identity a token is issued for.
type Subject struct {
	UserID    int64
	Role      Role
	Email     string
	FirstName string
	LastName  string
}

// TokenIssuer signs HS256 access tokens accepted by JWTMiddleware.
type TokenIssuer struct {
	key    []byte
	issuer string
	now    func() time.Time
}

func NewTokenIssuer(key []byte, issuer string) *TokenIssuer {
	return &TokenIssuer{key: key, issuer: issuer, now: time.Now}
}

// Issue returns a signed token and its expiry. rememberMe extends the
// lifetime from 7 to 30 days.
func (i *TokenIssuer) Issue(s Subject, rememberMe bool) (string, time.Time, error) {
	ttl := DefaultTokenTTL
	if rememberMe {
		ttl = RememberMeTokenTTL
	}
	now := i.now().UTC()
	expiresAt := now.Add(ttl)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatInt(s.UserID, 10),
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Role:      s.Role,
		Email:     s.Email,
		FirstName: s.FirstName,
		LastName:  s.LastName,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}
