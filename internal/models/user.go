package models

import "time"

// User represents a row in the PostgreSQL users table.
type User struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Email          string     `json:"email"`
	PasswordHash   string     `json:"-"` // never serialize
	ResetTokenHash *string    `json:"-"`
	ResetExpiresAt *time.Time `json:"-"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// PublicUser is the only user shape returned to clients.
type PublicUser struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (u *User) Public() PublicUser {
	return PublicUser{ID: u.ID, Name: u.Name, Email: u.Email}
}

// HasActiveReset reports whether a reset token is set and not yet expired at now.
// A token past its expiry counts as absent.
func (u *User) HasActiveReset(now time.Time) bool {
	return u.ResetTokenHash != nil && u.ResetExpiresAt != nil && now.Before(*u.ResetExpiresAt)
}

// SetReset stores a reset token hash together with its expiry.
func (u *User) SetReset(tokenHash string, expiresAt time.Time) {
	u.ResetTokenHash = &tokenHash
	u.ResetExpiresAt = &expiresAt
}

// ClearReset drops both reset fields.
func (u *User) ClearReset() {
	u.ResetTokenHash = nil
	u.ResetExpiresAt = nil
}

// RegisterRequest is the JSON body for POST /api/auth/register.
type RegisterRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginRequest is the JSON body for POST /api/auth/login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// ForgotPasswordRequest is the JSON body for POST /api/auth/forgot-password.
type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

// RecoverEmailRequest is the JSON body for POST /api/auth/recover-email.
type RecoverEmailRequest struct {
	Name string `json:"name"`
}

// ChangePasswordRequest is the JSON body for PUT /api/auth/change-password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required"`
}

// ResetPasswordRequest is the JSON body for POST /api/auth/reset-password.
type ResetPasswordRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required"`
}

// AuthResponse is returned by register and login.
type AuthResponse struct {
	Token string     `json:"token"`
	User  PublicUser `json:"user"`
}
