package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/samber/oops"

	"github.com/ayush/tasktracker/backend/internal/models"
)

// Reset token configuration.
const (
	ResetTokenBytes  = 32 // 256 bits, 64 hex chars
	ResetTokenExpiry = time.Hour
)

// GenerateResetToken creates a random token and its hash.
// The plaintext goes to the user out of band; only the hash is stored.
func GenerateResetToken() (token, hash string, err error) {
	b := make([]byte, ResetTokenBytes)
	if _, err = rand.Read(b); err != nil {
		return "", "", oops.Code("RESET_TOKEN_GENERATE_FAILED").Wrap(err)
	}
	token = hex.EncodeToString(b)
	return token, HashResetToken(token), nil
}

// HashResetToken returns the hex sha256 of token.
func HashResetToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// VerifyResetToken reports whether token hashes to hash, in constant time.
func VerifyResetToken(token, hash string) bool {
	if token == "" || hash == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(HashResetToken(token)), []byte(hash)) == 1
}

// ResetNotifier delivers a plaintext reset token to the account owner.
type ResetNotifier interface {
	SendResetToken(ctx context.Context, user *models.User, token string, expiresAt time.Time) error
}

// LogNotifier writes reset tokens to the operational log. It stands in for an
// email sender; the token never appears in an HTTP response.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) SendResetToken(ctx context.Context, user *models.User, token string, expiresAt time.Time) error {
	n.logger.WarnContext(ctx, "password reset token generated",
		"user_id", user.ID,
		"email", user.Email,
		"token", token,
		"expires_at", expiresAt,
	)
	return nil
}
