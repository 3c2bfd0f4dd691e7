package auth

import (
	"errors"

	"github.com/samber/oops"
	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost is the work factor used when none is configured.
const DefaultBcryptCost = 10

// PasswordCodec hashes passwords one way and verifies candidates against a digest.
type PasswordCodec interface {
	// Hash returns a salted digest; two calls with the same input differ.
	Hash(plaintext string) (string, error)

	// Verify returns (true, nil) on match and (false, nil) on mismatch.
	// A malformed digest returns false together with ErrCorruptCredential.
	Verify(plaintext, digest string) (bool, error)
}

// BcryptCodec implements PasswordCodec with bcrypt.
type BcryptCodec struct {
	cost int
}

// NewBcryptCodec creates a codec with the given cost, falling back to
// DefaultBcryptCost when cost is outside bcrypt's accepted range.
func NewBcryptCodec(cost int) *BcryptCodec {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultBcryptCost
	}
	return &BcryptCodec{cost: cost}
}

func (c *BcryptCodec) Hash(plaintext string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(plaintext), c.cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", oops.Code("AUTH_PASSWORD_TOO_LONG").Wrap(ErrPasswordTooLong)
	}
	if err != nil {
		return "", oops.Code("AUTH_HASH_FAILED").Wrap(err)
	}
	return string(digest), nil
}

func (c *BcryptCodec) Verify(plaintext, digest string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, oops.Code("AUTH_CORRUPT_CREDENTIAL").
			With("cause", err.Error()).
			Wrap(ErrCorruptCredential)
	}
}
