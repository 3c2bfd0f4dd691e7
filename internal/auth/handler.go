package auth

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/ayush/tasktracker/backend/internal/audit"
	"github.com/ayush/tasktracker/backend/internal/httpx"
	"github.com/ayush/tasktracker/backend/internal/middleware"
	"github.com/ayush/tasktracker/backend/internal/models"
)

// Response messages.
const (
	msgServerError      = "Server error"
	msgResetAck         = "If an account exists, reset instructions have been generated."
	msgNoMatch          = "No matching account found."
	msgPasswordUpdated  = "Password updated successfully."
	msgPasswordReset    = "Password has been reset."
	msgUserNotFound     = "User not found."
	msgNewPasswordShort = "New password must be at least 8 characters long."
	msgNewPasswordLong  = "New password is too long."
)

type errorMessage struct {
	kind error
	msg  string
}

// Per-operation messages for expected error kinds. Anything unlisted, and
// every 500, is answered with msgServerError.
var (
	registerMessages = []errorMessage{
		{ErrValidation, "Name, email and password are required."},
		{ErrDuplicateEmail, "Email already in use."},
		{ErrPasswordTooLong, "Password is too long."},
	}
	loginMessages = []errorMessage{
		{ErrValidation, "Email and password are required."},
		{ErrInvalidCredentials, "Invalid credentials."},
	}
	changePasswordMessages = []errorMessage{
		{ErrValidation, "Current password and new password are required."},
		{ErrPasswordTooLong, msgNewPasswordLong},
		{ErrWeakPassword, msgNewPasswordShort},
		{ErrNotFound, msgUserNotFound},
		{ErrInvalidCredentials, "Current password is incorrect."},
		{ErrSamePassword, "New password must be different from current password."},
	}
	resetPasswordMessages = []errorMessage{
		{ErrValidation, "Token and new password are required."},
		{ErrPasswordTooLong, msgNewPasswordLong},
		{ErrWeakPassword, msgNewPasswordShort},
		{ErrResetTokenInvalid, "Reset token is invalid or has expired."},
	}
	meMessages = []errorMessage{
		{ErrNotFound, msgUserNotFound},
	}
)

// Handler holds auth-related HTTP handlers.
type Handler struct {
	svc    *Service
	logger *slog.Logger
}

func NewHandler(svc *Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Register creates a new user.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	h.decode(r, &req)

	resp, err := h.svc.Register(auditContext(r), req)
	if err != nil {
		h.writeError(w, err, registerMessages)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, resp)
}

// Login authenticates a user and issues a token.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	h.decode(r, &req)

	resp, err := h.svc.Login(auditContext(r), req)
	if err != nil {
		h.writeError(w, err, loginMessages)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// ForgotPassword answers identically whether or not the account exists.
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req models.ForgotPasswordRequest
	h.decode(r, &req)

	if err := h.svc.ForgotPassword(auditContext(r), req); err != nil {
		h.writeError(w, err, nil)
		return
	}
	httpx.WriteMessage(w, http.StatusOK, msgResetAck)
}

// RecoverEmail reveals the email registered under a name.
func (h *Handler) RecoverEmail(w http.ResponseWriter, r *http.Request) {
	var req models.RecoverEmailRequest
	h.decode(r, &req)

	email, found, err := h.svc.RecoverEmail(auditContext(r), req)
	if err != nil {
		h.writeError(w, err, nil)
		return
	}
	if !found {
		httpx.WriteMessage(w, http.StatusOK, msgNoMatch)
		return
	}
	httpx.WriteMessage(w, http.StatusOK, "Account email: "+email)
}

// ChangePassword updates the password of the authenticated user.
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFrom(r.Context())
	if !ok {
		httpx.WriteMessage(w, http.StatusUnauthorized, "No token provided.")
		return
	}

	var req models.ChangePasswordRequest
	h.decode(r, &req)

	if err := h.svc.ChangePassword(auditContext(r), userID, req); err != nil {
		h.writeError(w, err, changePasswordMessages)
		return
	}
	httpx.WriteMessage(w, http.StatusOK, msgPasswordUpdated)
}

// ResetPassword sets a new password using a reset token.
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req models.ResetPasswordRequest
	h.decode(r, &req)

	if err := h.svc.ResetPassword(auditContext(r), req); err != nil {
		h.writeError(w, err, resetPasswordMessages)
		return
	}
	httpx.WriteMessage(w, http.StatusOK, msgPasswordReset)
}

// Me returns the currently authenticated user.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFrom(r.Context())
	if !ok {
		httpx.WriteMessage(w, http.StatusUnauthorized, "No token provided.")
		return
	}

	user, err := h.svc.Me(r.Context(), userID)
	if err != nil {
		h.writeError(w, err, meMessages)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, user)
}

// decode reads the JSON body. A malformed body is treated as an empty one so
// that the service reports the missing fields.
func (h *Handler) decode(r *http.Request, v any) {
	if err := httpx.Decode(r, v); err != nil {
		h.logger.DebugContext(r.Context(), "ignoring malformed request body", "error", err, "path", r.URL.Path)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error, messages []errorMessage) {
	status := HTTPStatus(err)
	if status == http.StatusInternalServerError {
		httpx.WriteMessage(w, status, msgServerError)
		return
	}
	for _, m := range messages {
		if errors.Is(err, m.kind) {
			httpx.WriteMessage(w, status, m.msg)
			return
		}
	}
	httpx.WriteMessage(w, http.StatusInternalServerError, msgServerError)
}

// auditContext attaches the caller metadata that audit events carry.
func auditContext(r *http.Request) context.Context {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}
	return audit.WithRequest(r.Context(), audit.Request{
		IP:        ip,
		Method:    r.Method,
		Path:      r.URL.RequestURI(),
		UserAgent: r.UserAgent(),
	})
}
