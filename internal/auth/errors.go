package auth

import (
	"errors"
	"fmt"
	"net/http"
)

// Error kinds. Callers match them with errors.Is; the oops wrappers around them
// carry the code, context and public message.
var (
	ErrValidation         = errors.New("validation error")
	ErrDuplicateEmail     = errors.New("duplicate email")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidToken       = errors.New("invalid token")
	ErrExpiredToken       = errors.New("token expired")
	ErrWeakPassword       = errors.New("weak password")
	ErrSamePassword       = errors.New("same password")
	ErrNotFound           = errors.New("not found")
	ErrCorruptCredential  = errors.New("corrupt credential")
	ErrResetTokenInvalid  = errors.New("reset token invalid")
	ErrRateLimited        = errors.New("rate limited")

	// ErrPasswordTooLong is a weak password the codec cannot hash.
	ErrPasswordTooLong = fmt.Errorf("%w: password too long", ErrWeakPassword)
)

// HTTPStatus maps an error kind to its response status. Anything unknown is a 500.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrWeakPassword),
		errors.Is(err, ErrSamePassword),
		errors.Is(err, ErrResetTokenInvalid):
		return http.StatusBadRequest
	case errors.Is(err, ErrDuplicateEmail):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrUnauthorized),
		errors.Is(err, ErrInvalidToken),
		errors.Is(err, ErrExpiredToken):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
