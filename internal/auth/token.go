package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/samber/oops"
)

// DefaultTokenTTL is how long a session token stays valid.
const DefaultTokenTTL = 7 * 24 * time.Hour

// Claims binds a session token to a user. The user id travels in the subject.
type Claims struct {
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies stateless HS256 session tokens.
// Verification never touches storage, so a token stays valid until it expires.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer creates an issuer. The secret is copied; it is read-only afterwards.
func NewTokenIssuer(secret []byte, ttl time.Duration) (*TokenIssuer, error) {
	if len(secret) == 0 {
		return nil, oops.Code("AUTH_TOKEN_SECRET_EMPTY").Errorf("token signing secret cannot be empty")
	}
	return &TokenIssuer{
		secret: append([]byte(nil), secret...),
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// Issue returns a signed token for userID expiring ttl from now.
func (t *TokenIssuer) Issue(userID string) (string, error) {
	now := t.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	})

	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", oops.Code("AUTH_TOKEN_SIGN_FAILED").With("user_id", userID).Wrap(err)
	}
	return signed, nil
}

// Verify checks the signature and expiry and returns the user id.
// It fails with ErrExpiredToken past expiry and ErrInvalidToken otherwise.
func (t *TokenIssuer) Verify(tokenString string) (string, error) {
	if tokenString == "" {
		return "", oops.Code("AUTH_TOKEN_EMPTY").Wrap(ErrInvalidToken)
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", oops.Code("AUTH_TOKEN_EXPIRED").Wrap(ErrExpiredToken)
		}
		return "", oops.Code("AUTH_TOKEN_INVALID").With("cause", err.Error()).Wrap(ErrInvalidToken)
	}

	if claims.Subject == "" {
		return "", oops.Code("AUTH_TOKEN_INVALID").Errorf("token has no subject: %w", ErrInvalidToken)
	}
	return claims.Subject, nil
}
