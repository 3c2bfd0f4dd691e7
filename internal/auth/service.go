package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/samber/oops"

	"github.com/ayush/tasktracker/backend/internal/audit"
	"github.com/ayush/tasktracker/backend/internal/logging"
	"github.com/ayush/tasktracker/backend/internal/models"
)

// MinPasswordLength is the shortest new password accepted by change and reset.
const MinPasswordLength = 8

// UserStore defines the interface for user persistence.
// Lookups that find nothing return an error wrapping ErrNotFound.
type UserStore interface {
	// Create inserts user. A clash on the normalized email fails with ErrDuplicateEmail,
	// enforced by the store itself.
	Create(ctx context.Context, user *models.User) error
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByName(ctx context.Context, name string) (*models.User, error)
	// FindByID leaves PasswordHash empty unless includeSecret is set.
	FindByID(ctx context.Context, id string, includeSecret bool) (*models.User, error)
	// FindByResetTokenHash returns the user holding tokenHash with an expiry after now.
	FindByResetTokenHash(ctx context.Context, tokenHash string, now time.Time) (*models.User, error)
	// Update persists every mutable field. Last write wins.
	Update(ctx context.Context, user *models.User) error
}

// TokenSigner issues session tokens.
type TokenSigner interface {
	Issue(userID string) (string, error)
}

// Options tune the service.
type Options struct {
	ResetTokenTTL time.Duration
	// ExposeDiagnostics adds stack traces to logs and audit records. Off in production.
	ExposeDiagnostics bool
	// Now overrides the clock. Defaults to time.Now.
	Now func() time.Time
}

// Service orchestrates the account flows: register, login, password recovery
// and password change.
type Service struct {
	users    UserStore
	codec    PasswordCodec
	tokens   TokenSigner
	audit    audit.Recorder
	notifier ResetNotifier
	logger   *slog.Logger
	validate *validator.Validate
	opts     Options
	now      func() time.Time

	// dummyDigest is verified against when no user exists so that the
	// unknown-email path costs the same as a wrong password.
	dummyDigest string
}

// NewService creates a Service. It hashes one throwaway password up front.
func NewService(
	users UserStore,
	codec PasswordCodec,
	tokens TokenSigner,
	recorder audit.Recorder,
	notifier ResetNotifier,
	logger *slog.Logger,
	opts Options,
) (*Service, error) {
	if users == nil || codec == nil || tokens == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("users, codec and tokens are required")
	}
	if recorder == nil {
		recorder = audit.Nop{}
	}
	if logger == nil {
		logger = logging.Discard()
	}
	if notifier == nil {
		notifier = NewLogNotifier(logger)
	}
	if opts.ResetTokenTTL <= 0 {
		opts.ResetTokenTTL = ResetTokenExpiry
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	dummy, err := codec.Hash(uuid.NewString())
	if err != nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").With("operation", "hash dummy password").Wrap(err)
	}

	return &Service{
		users:       users,
		codec:       codec,
		tokens:      tokens,
		audit:       recorder,
		notifier:    notifier,
		logger:      logger,
		validate:    validator.New(),
		opts:        opts,
		now:         opts.Now,
		dummyDigest: dummy,
	}, nil
}

// NormalizeEmail lower-cases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates an account and signs the new user in.
func (s *Service) Register(ctx context.Context, req models.RegisterRequest) (*models.AuthResponse, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = NormalizeEmail(req.Email)
	ev := audit.Event{Type: audit.TypeSignup, Email: req.Email}

	if err := s.validate.Struct(req); err != nil {
		s.fail(ctx, ev, audit.ReasonMissingFields, http.StatusBadRequest)
		return nil, oops.Code("AUTH_MISSING_FIELDS").With("validation", err.Error()).Wrap(ErrValidation)
	}

	_, err := s.users.FindByEmail(ctx, req.Email)
	if err == nil {
		s.fail(ctx, ev, audit.ReasonDuplicateEmail, http.StatusConflict)
		return nil, oops.Code("AUTH_DUPLICATE_EMAIL").With("email", req.Email).Wrap(ErrDuplicateEmail)
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, s.fault(ctx, ev, "find user by email", err)
	}

	digest, err := s.codec.Hash(req.Password)
	if errors.Is(err, ErrWeakPassword) {
		s.fail(ctx, ev, audit.ReasonWeakPassword, http.StatusBadRequest)
		return nil, err
	}
	if err != nil {
		return nil, s.fault(ctx, ev, "hash password", err)
	}

	now := s.now()
	user := &models.User{
		ID:           uuid.NewString(),
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: digest,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			// Lost a race with a concurrent registration; the store's constraint decided.
			s.fail(ctx, ev, audit.ReasonDuplicateEmail, http.StatusConflict)
			return nil, err
		}
		return nil, s.fault(ctx, ev, "create user", err)
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, s.fault(ctx, ev, "issue token", err)
	}

	ev.UserID = user.ID
	s.succeed(ctx, ev, http.StatusCreated)
	return &models.AuthResponse{Token: token, User: user.Public()}, nil
}

// Login checks credentials and issues a session token. An unknown email and a
// wrong password fail identically; only the audit reason tells them apart.
func (s *Service) Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error) {
	req.Email = NormalizeEmail(req.Email)
	ev := audit.Event{Type: audit.TypeLogin, Email: req.Email}

	if err := s.validate.Struct(req); err != nil {
		s.fail(ctx, ev, audit.ReasonMissingFields, http.StatusBadRequest)
		return nil, oops.Code("AUTH_MISSING_FIELDS").With("validation", err.Error()).Wrap(ErrValidation)
	}

	user, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, s.fault(ctx, ev, "find user by email", err)
	}

	target := s.dummyDigest
	if user != nil {
		target = user.PasswordHash
	}
	ok, verifyErr := s.codec.Verify(req.Password, target)

	if user == nil {
		s.fail(ctx, ev, audit.ReasonUserNotFound, http.StatusUnauthorized)
		return nil, oops.Code("AUTH_INVALID_CREDENTIALS").Wrap(ErrInvalidCredentials)
	}
	ev.UserID = user.ID
	if verifyErr != nil {
		return nil, s.fault(ctx, ev, "verify password", verifyErr)
	}
	if !ok {
		s.fail(ctx, ev, audit.ReasonBadPassword, http.StatusUnauthorized)
		return nil, oops.Code("AUTH_INVALID_CREDENTIALS").Wrap(ErrInvalidCredentials)
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, s.fault(ctx, ev, "issue token", err)
	}

	s.succeed(ctx, ev, http.StatusOK)
	return &models.AuthResponse{Token: token, User: user.Public()}, nil
}

// ForgotPassword stores a fresh reset token for the account, if there is one,
// and hands the plaintext to the notifier. The caller sees the same result
// whether or not the account exists; only store faults surface as errors.
func (s *Service) ForgotPassword(ctx context.Context, req models.ForgotPasswordRequest) error {
	email := NormalizeEmail(req.Email)
	ev := audit.Event{Type: audit.TypeForgotPassword, Email: email}

	var user *models.User
	if email != "" {
		found, err := s.users.FindByEmail(ctx, email)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return s.fault(ctx, ev, "find user by email", err)
		}
		user = found
	}
	if user == nil {
		s.fail(ctx, ev, audit.ReasonUserNotFound, http.StatusOK)
		return nil
	}
	ev.UserID = user.ID

	token, hash, err := GenerateResetToken()
	if err != nil {
		return s.fault(ctx, ev, "generate reset token", err)
	}

	now := s.now()
	expiresAt := now.Add(s.opts.ResetTokenTTL)
	user.SetReset(hash, expiresAt)
	user.UpdatedAt = now
	if err := s.users.Update(ctx, user); err != nil {
		return s.fault(ctx, ev, "store reset token", err)
	}

	if err := s.notifier.SendResetToken(ctx, user, token, expiresAt); err != nil {
		logging.LogError(ctx, s.logger, "reset token delivery failed", err, s.opts.ExposeDiagnostics)
		s.fail(ctx, ev, audit.ReasonDeliveryFailed, http.StatusOK)
		return nil
	}

	s.succeed(ctx, ev, http.StatusOK)
	return nil
}

// RecoverEmail looks an account up by case-insensitive exact name and returns
// its email. found is false when nothing matches.
func (s *Service) RecoverEmail(ctx context.Context, req models.RecoverEmailRequest) (email string, found bool, err error) {
	name := strings.TrimSpace(req.Name)
	ev := audit.Event{Type: audit.TypeRecoverEmail}

	if name == "" {
		s.fail(ctx, ev, audit.ReasonNoMatch, http.StatusOK)
		return "", false, nil
	}

	user, err := s.users.FindByName(ctx, name)
	if errors.Is(err, ErrNotFound) {
		s.fail(ctx, ev, audit.ReasonNoMatch, http.StatusOK)
		return "", false, nil
	}
	if err != nil {
		return "", false, s.fault(ctx, ev, "find user by name", err)
	}

	ev.Email, ev.UserID = user.Email, user.ID
	s.succeed(ctx, ev, http.StatusOK)
	return user.Email, true, nil
}

// ChangePassword replaces the password of an authenticated user after
// checking the current one. Any pending reset token is cleared.
func (s *Service) ChangePassword(ctx context.Context, userID string, req models.ChangePasswordRequest) error {
	ev := audit.Event{Type: audit.TypeChangePassword, UserID: userID}

	if err := s.validate.Struct(req); err != nil {
		s.fail(ctx, ev, audit.ReasonMissingFields, http.StatusBadRequest)
		return oops.Code("AUTH_MISSING_FIELDS").With("validation", err.Error()).Wrap(ErrValidation)
	}
	if utf8.RuneCountInString(req.NewPassword) < MinPasswordLength {
		s.fail(ctx, ev, audit.ReasonWeakPassword, http.StatusBadRequest)
		return oops.Code("AUTH_WEAK_PASSWORD").With("min_length", MinPasswordLength).Wrap(ErrWeakPassword)
	}

	user, err := s.users.FindByID(ctx, userID, true)
	if errors.Is(err, ErrNotFound) {
		s.fail(ctx, ev, audit.ReasonUserNotFound, http.StatusNotFound)
		return err
	}
	if err != nil {
		return s.fault(ctx, ev, "find user by id", err)
	}
	ev.Email = user.Email

	ok, err := s.codec.Verify(req.CurrentPassword, user.PasswordHash)
	if err != nil {
		return s.fault(ctx, ev, "verify current password", err)
	}
	if !ok {
		s.fail(ctx, ev, audit.ReasonBadPassword, http.StatusUnauthorized)
		return oops.Code("AUTH_INVALID_CREDENTIALS").Wrap(ErrInvalidCredentials)
	}

	same, err := s.codec.Verify(req.NewPassword, user.PasswordHash)
	if err != nil {
		return s.fault(ctx, ev, "compare new password", err)
	}
	if same {
		s.fail(ctx, ev, audit.ReasonSamePassword, http.StatusBadRequest)
		return oops.Code("AUTH_SAME_PASSWORD").Wrap(ErrSamePassword)
	}

	if err := s.setPassword(ctx, user, req.NewPassword); err != nil {
		return s.passwordWriteFailed(ctx, ev, err)
	}

	s.succeed(ctx, ev, http.StatusOK)
	return nil
}

// ResetPassword completes a forgot-password flow: a live reset token buys one
// password change, after which the token is gone.
func (s *Service) ResetPassword(ctx context.Context, req models.ResetPasswordRequest) error {
	req.Token = strings.TrimSpace(req.Token)
	ev := audit.Event{Type: audit.TypeResetPassword}

	if err := s.validate.Struct(req); err != nil {
		s.fail(ctx, ev, audit.ReasonMissingFields, http.StatusBadRequest)
		return oops.Code("AUTH_MISSING_FIELDS").With("validation", err.Error()).Wrap(ErrValidation)
	}
	if utf8.RuneCountInString(req.NewPassword) < MinPasswordLength {
		s.fail(ctx, ev, audit.ReasonWeakPassword, http.StatusBadRequest)
		return oops.Code("AUTH_WEAK_PASSWORD").With("min_length", MinPasswordLength).Wrap(ErrWeakPassword)
	}

	now := s.now()
	hash := HashResetToken(req.Token)
	user, err := s.users.FindByResetTokenHash(ctx, hash, now)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return s.fault(ctx, ev, "find user by reset token", err)
	}
	if user == nil || !user.HasActiveReset(now) || !VerifyResetToken(req.Token, *user.ResetTokenHash) {
		s.fail(ctx, ev, audit.ReasonInvalidToken, http.StatusBadRequest)
		return oops.Code("AUTH_RESET_TOKEN_INVALID").Wrap(ErrResetTokenInvalid)
	}
	ev.Email, ev.UserID = user.Email, user.ID

	if err := s.setPassword(ctx, user, req.NewPassword); err != nil {
		return s.passwordWriteFailed(ctx, ev, err)
	}

	s.succeed(ctx, ev, http.StatusOK)
	return nil
}

// Me returns the public profile of userID.
func (s *Service) Me(ctx context.Context, userID string) (*models.PublicUser, error) {
	user, err := s.users.FindByID(ctx, userID, false)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			logging.LogError(ctx, s.logger, "load profile failed", err, s.opts.ExposeDiagnostics)
		}
		return nil, err
	}
	pub := user.Public()
	return &pub, nil
}

func (s *Service) setPassword(ctx context.Context, user *models.User, plaintext string) error {
	digest, err := s.codec.Hash(plaintext)
	if err != nil {
		return err
	}
	user.PasswordHash = digest
	user.ClearReset()
	user.UpdatedAt = s.now()
	return s.users.Update(ctx, user)
}

func (s *Service) passwordWriteFailed(ctx context.Context, ev audit.Event, err error) error {
	switch {
	case errors.Is(err, ErrWeakPassword):
		s.fail(ctx, ev, audit.ReasonWeakPassword, http.StatusBadRequest)
		return err
	case errors.Is(err, ErrNotFound):
		s.fail(ctx, ev, audit.ReasonUserNotFound, http.StatusNotFound)
		return err
	default:
		return s.fault(ctx, ev, "update password", err)
	}
}

func (s *Service) succeed(ctx context.Context, ev audit.Event, status int) {
	ev.Outcome = audit.OutcomeSuccess
	ev.StatusCode = status
	s.record(ctx, ev)
}

func (s *Service) fail(ctx context.Context, ev audit.Event, reason string, status int) {
	ev.Outcome = audit.OutcomeFailure
	ev.Reason = reason
	ev.StatusCode = status
	s.record(ctx, ev)
}

// fault handles an unexpected error: full detail goes to the operational log
// and the audit record, the caller gets a bare server error.
func (s *Service) fault(ctx context.Context, ev audit.Event, operation string, err error) error {
	err = oops.Code("AUTH_" + strings.ToUpper(ev.Type) + "_FAILED").
		With("operation", operation).
		Wrap(err)
	logging.LogError(ctx, s.logger, "auth operation failed", err, s.opts.ExposeDiagnostics)

	ev.Outcome = audit.OutcomeFailure
	ev.Reason = audit.ReasonServerError
	ev.StatusCode = http.StatusInternalServerError
	ev.ErrorMessage = err.Error()
	if oopsErr, ok := oops.AsOops(err); ok {
		if code := oopsErr.Code(); code != nil {
			ev.ErrorCode = fmt.Sprint(code)
		}
		if s.opts.ExposeDiagnostics {
			ev.ErrorStack = oopsErr.Stacktrace()
		}
	}
	s.record(ctx, ev)
	return err
}

func (s *Service) record(ctx context.Context, ev audit.Event) {
	s.audit.Record(ctx, audit.Stamp(ctx, ev, s.now()))
}
