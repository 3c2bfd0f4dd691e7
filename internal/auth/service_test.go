package auth_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ayush/tasktracker/backend/internal/audit"
	"github.com/ayush/tasktracker/backend/internal/auth"
	"github.com/ayush/tasktracker/backend/internal/auth/authtest"
	"github.com/ayush/tasktracker/backend/internal/models"
)

type fixture struct {
	svc      *auth.Service
	store    *authtest.UserStore
	audit    *authtest.Recorder
	notifier *authtest.Notifier
	tokens   *auth.TokenIssuer
	clock    *time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	f := &fixture{
		store:    authtest.NewUserStore(),
		audit:    &authtest.Recorder{},
		notifier: &authtest.Notifier{},
		clock:    &now,
	}
	tokens, err := auth.NewTokenIssuer([]byte("test-secret"), time.Hour)
	require.NoError(t, err)
	f.tokens = tokens

	svc, err := auth.NewService(f.store, auth.NewBcryptCodec(bcrypt.MinCost), tokens, f.audit, f.notifier, nil,
		auth.Options{Now: func() time.Time { return *f.clock }})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *fixture) register(t *testing.T, name, email, password string) *models.AuthResponse {
	t.Helper()
	resp, err := f.svc.Register(context.Background(), models.RegisterRequest{Name: name, Email: email, Password: password})
	require.NoError(t, err)
	return resp
}

func (f *fixture) advance(d time.Duration) {
	*f.clock = f.clock.Add(d)
}

func TestNewService_RequiresCollaborators(t *testing.T) {
	_, err := auth.NewService(nil, auth.NewBcryptCodec(bcrypt.MinCost), nil, nil, nil, nil, auth.Options{})
	require.Error(t, err)
}

func TestService_Register(t *testing.T) {
	t.Run("creates user and signs in", func(t *testing.T) {
		f := newFixture(t)

		resp, err := f.svc.Register(context.Background(), models.RegisterRequest{
			Name: " Jo ", Email: " Jo@Test.com ", Password: "secret123",
		})
		require.NoError(t, err)

		assert.Equal(t, "Jo", resp.User.Name)
		assert.Equal(t, "jo@test.com", resp.User.Email)
		assert.NotEmpty(t, resp.User.ID)

		sub, err := f.tokens.Verify(resp.Token)
		require.NoError(t, err)
		assert.Equal(t, resp.User.ID, sub)

		stored := f.store.Get(resp.User.ID)
		require.NotNil(t, stored)
		assert.NotEqual(t, "secret123", stored.PasswordHash)
		assert.Nil(t, stored.ResetTokenHash)

		ev := f.audit.Last()
		assert.Equal(t, audit.TypeSignup, ev.Type)
		assert.Equal(t, audit.OutcomeSuccess, ev.Outcome)
		assert.Equal(t, http.StatusCreated, ev.StatusCode)
		assert.Equal(t, resp.User.ID, ev.UserID)
	})

	t.Run("missing fields", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.svc.Register(context.Background(), models.RegisterRequest{Email: "a@b.c", Password: "x"})
		require.ErrorIs(t, err, auth.ErrValidation)
		assert.Equal(t, http.StatusBadRequest, auth.HTTPStatus(err))
		assert.Zero(t, f.store.Len())
		assert.Equal(t, audit.ReasonMissingFields, f.audit.Last().Reason)
	})

	t.Run("whitespace-only name counts as missing", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.svc.Register(context.Background(), models.RegisterRequest{Name: "   ", Email: "a@b.c", Password: "x"})
		require.ErrorIs(t, err, auth.ErrValidation)
	})

	t.Run("duplicate email ignores case", func(t *testing.T) {
		f := newFixture(t)
		f.register(t, "Jo", "jo@test.com", "secret123")

		_, err := f.svc.Register(context.Background(), models.RegisterRequest{Name: "Other", Email: "JO@TEST.COM", Password: "other-pass"})
		require.ErrorIs(t, err, auth.ErrDuplicateEmail)
		assert.Equal(t, http.StatusConflict, auth.HTTPStatus(err))
		assert.Equal(t, 1, f.store.Len())

		ev := f.audit.Last()
		assert.Equal(t, audit.ReasonDuplicateEmail, ev.Reason)
		assert.Equal(t, http.StatusConflict, ev.StatusCode)
	})

	t.Run("password too long for the codec", func(t *testing.T) {
		f := newFixture(t)
		long := make([]byte, 80)
		for i := range long {
			long[i] = 'a'
		}

		_, err := f.svc.Register(context.Background(), models.RegisterRequest{Name: "Jo", Email: "jo@test.com", Password: string(long)})
		require.ErrorIs(t, err, auth.ErrWeakPassword)
		assert.Zero(t, f.store.Len())
	})

	t.Run("store failure is a server error", func(t *testing.T) {
		f := newFixture(t)
		f.store.Err = errors.New("connection refused")

		_, err := f.svc.Register(context.Background(), models.RegisterRequest{Name: "Jo", Email: "jo@test.com", Password: "secret123"})
		require.Error(t, err)
		assert.Equal(t, http.StatusInternalServerError, auth.HTTPStatus(err))

		ev := f.audit.Last()
		assert.Equal(t, audit.ReasonServerError, ev.Reason)
		assert.Equal(t, http.StatusInternalServerError, ev.StatusCode)
		assert.Contains(t, ev.ErrorMessage, "connection refused")
		assert.Equal(t, "AUTH_SIGNUP_FAILED", ev.ErrorCode)
		assert.Empty(t, ev.ErrorStack)
	})
}

func TestService_Register_ConcurrentSameEmail(t *testing.T) {
	f := newFixture(t)

	var wg sync.WaitGroup
	results := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Register(context.Background(), models.RegisterRequest{Name: "Jo", Email: "jo@test.com", Password: "secret123"})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var ok, dup int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, auth.ErrDuplicateEmail):
			dup++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 7, dup)
	assert.Equal(t, 1, f.store.Len())
}

func TestService_Login(t *testing.T) {
	f := newFixture(t)
	reg := f.register(t, "Jo", "jo@test.com", "secret123")

	t.Run("success with any email case", func(t *testing.T) {
		resp, err := f.svc.Login(context.Background(), models.LoginRequest{Email: "JO@test.com", Password: "secret123"})
		require.NoError(t, err)
		assert.Equal(t, reg.User, resp.User)

		sub, err := f.tokens.Verify(resp.Token)
		require.NoError(t, err)
		assert.Equal(t, reg.User.ID, sub)

		ev := f.audit.Last()
		assert.Equal(t, audit.TypeLogin, ev.Type)
		assert.Equal(t, audit.OutcomeSuccess, ev.Outcome)
	})

	t.Run("unknown email and wrong password are indistinguishable", func(t *testing.T) {
		_, errUnknown := f.svc.Login(context.Background(), models.LoginRequest{Email: "nobody@test.com", Password: "secret123"})
		reasonUnknown := f.audit.Last().Reason
		_, errWrong := f.svc.Login(context.Background(), models.LoginRequest{Email: "jo@test.com", Password: "wrong-pass"})
		reasonWrong := f.audit.Last().Reason

		require.ErrorIs(t, errUnknown, auth.ErrInvalidCredentials)
		require.ErrorIs(t, errWrong, auth.ErrInvalidCredentials)
		assert.Equal(t, auth.HTTPStatus(errUnknown), auth.HTTPStatus(errWrong))

		assert.Equal(t, audit.ReasonUserNotFound, reasonUnknown)
		assert.Equal(t, audit.ReasonBadPassword, reasonWrong)
	})

	t.Run("missing fields", func(t *testing.T) {
		_, err := f.svc.Login(context.Background(), models.LoginRequest{Email: "jo@test.com"})
		require.ErrorIs(t, err, auth.ErrValidation)
		assert.Equal(t, audit.ReasonMissingFields, f.audit.Last().Reason)
	})
}

func TestService_Login_CorruptDigest(t *testing.T) {
	f := newFixture(t)
	reg := f.register(t, "Jo", "jo@test.com", "secret123")

	u := f.store.Get(reg.User.ID)
	u.PasswordHash = "not-a-bcrypt-digest"
	require.NoError(t, f.store.Update(context.Background(), u))

	_, err := f.svc.Login(context.Background(), models.LoginRequest{Email: "jo@test.com", Password: "secret123"})
	require.ErrorIs(t, err, auth.ErrCorruptCredential)
	assert.Equal(t, http.StatusInternalServerError, auth.HTTPStatus(err))
	assert.Equal(t, audit.ReasonServerError, f.audit.Last().Reason)
}

func TestService_ForgotPassword(t *testing.T) {
	t.Run("known email stores a hashed token", func(t *testing.T) {
		f := newFixture(t)
		reg := f.register(t, "Jo", "jo@test.com", "secret123")

		require.NoError(t, f.svc.ForgotPassword(context.Background(), models.ForgotPasswordRequest{Email: "Jo@Test.com"}))

		token := f.notifier.Token("jo@test.com")
		require.Len(t, token, 2*auth.ResetTokenBytes)

		u := f.store.Get(reg.User.ID)
		require.NotNil(t, u.ResetTokenHash)
		require.NotNil(t, u.ResetExpiresAt)
		assert.Equal(t, auth.HashResetToken(token), *u.ResetTokenHash)
		assert.NotEqual(t, token, *u.ResetTokenHash)
		assert.Equal(t, f.clock.Add(time.Hour), *u.ResetExpiresAt)

		ev := f.audit.Last()
		assert.Equal(t, audit.TypeForgotPassword, ev.Type)
		assert.Equal(t, audit.OutcomeSuccess, ev.Outcome)
	})

	t.Run("unknown and empty email look like success", func(t *testing.T) {
		f := newFixture(t)

		require.NoError(t, f.svc.ForgotPassword(context.Background(), models.ForgotPasswordRequest{Email: "nobody@test.com"}))
		assert.Equal(t, audit.ReasonUserNotFound, f.audit.Last().Reason)

		require.NoError(t, f.svc.ForgotPassword(context.Background(), models.ForgotPasswordRequest{}))
		assert.Zero(t, f.notifier.Count())
	})

	t.Run("second request replaces the first token", func(t *testing.T) {
		f := newFixture(t)
		f.register(t, "Jo", "jo@test.com", "secret123")

		require.NoError(t, f.svc.ForgotPassword(context.Background(), models.ForgotPasswordRequest{Email: "jo@test.com"}))
		first := f.notifier.Token("jo@test.com")
		require.NoError(t, f.svc.ForgotPassword(context.Background(), models.ForgotPasswordRequest{Email: "jo@test.com"}))
		second := f.notifier.Token("jo@test.com")
		assert.NotEqual(t, first, second)

		err := f.svc.ResetPassword(context.Background(), models.ResetPasswordRequest{Token: first, NewPassword: "brand-new-pass"})
		require.ErrorIs(t, err, auth.ErrResetTokenInvalid)
	})

	t.Run("delivery failure still acknowledges", func(t *testing.T) {
		f := newFixture(t)
		f.register(t, "Jo", "jo@test.com", "secret123")
		f.notifier.Err = errors.New("smtp down")

		require.NoError(t, f.svc.ForgotPassword(context.Background(), models.ForgotPasswordRequest{Email: "jo@test.com"}))
		assert.Equal(t, audit.ReasonDeliveryFailed, f.audit.Last().Reason)
	})

	t.Run("store failure surfaces", func(t *testing.T) {
		f := newFixture(t)
		f.store.Err = errors.New("timeout")

		err := f.svc.ForgotPassword(context.Background(), models.ForgotPasswordRequest{Email: "jo@test.com"})
		require.Error(t, err)
		assert.Equal(t, http.StatusInternalServerError, auth.HTTPStatus(err))
	})
}

func TestService_RecoverEmail(t *testing.T) {
	f := newFixture(t)
	f.register(t, "Jo", "jo@test.com", "secret123")
	f.advance(time.Minute)
	f.register(t, "jo", "second@test.com", "secret123")

	tests := []struct {
		name      string
		input     string
		wantEmail string
		wantFound bool
	}{
		{"exact", "Jo", "jo@test.com", true},
		{"case-insensitive picks earliest", "JO", "jo@test.com", true},
		{"trimmed", "  Jo  ", "jo@test.com", true},
		{"prefix is not a match", "J", "", false},
		{"empty", "", "", false},
		{"unknown", "Sam", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			email, found, err := f.svc.RecoverEmail(context.Background(), models.RecoverEmailRequest{Name: tt.input})
			require.NoError(t, err)
			assert.Equal(t, tt.wantFound, found)
			assert.Equal(t, tt.wantEmail, email)
		})
	}

	ev := f.audit.Last()
	assert.Equal(t, audit.TypeRecoverEmail, ev.Type)
	assert.Equal(t, audit.ReasonNoMatch, ev.Reason)
}

func TestService_ChangePassword(t *testing.T) {
	tests := []struct {
		name    string
		req     models.ChangePasswordRequest
		wantErr error
		reason  string
	}{
		{"missing current", models.ChangePasswordRequest{NewPassword: "newpass123"}, auth.ErrValidation, audit.ReasonMissingFields},
		{"missing new", models.ChangePasswordRequest{CurrentPassword: "secret123"}, auth.ErrValidation, audit.ReasonMissingFields},
		{"too short", models.ChangePasswordRequest{CurrentPassword: "secret123", NewPassword: "short"}, auth.ErrWeakPassword, audit.ReasonWeakPassword},
		{"wrong current", models.ChangePasswordRequest{CurrentPassword: "wrong-pass", NewPassword: "newpass123"}, auth.ErrInvalidCredentials, audit.ReasonBadPassword},
		{"same as current", models.ChangePasswordRequest{CurrentPassword: "secret123", NewPassword: "secret123"}, auth.ErrSamePassword, audit.ReasonSamePassword},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			reg := f.register(t, "Jo", "jo@test.com", "secret123")
			before := f.store.Get(reg.User.ID).PasswordHash

			err := f.svc.ChangePassword(context.Background(), reg.User.ID, tt.req)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.reason, f.audit.Last().Reason)
			assert.Equal(t, before, f.store.Get(reg.User.ID).PasswordHash)
		})
	}

	t.Run("user gone", func(t *testing.T) {
		f := newFixture(t)

		err := f.svc.ChangePassword(context.Background(), "0b7c6f2e-8a51-4a0e-9d59-2f2f0f3f6a11",
			models.ChangePasswordRequest{CurrentPassword: "secret123", NewPassword: "newpass123"})
		require.ErrorIs(t, err, auth.ErrNotFound)
		assert.Equal(t, http.StatusNotFound, auth.HTTPStatus(err))
	})

	t.Run("success swaps password and clears reset", func(t *testing.T) {
		f := newFixture(t)
		reg := f.register(t, "Jo", "jo@test.com", "secret123")
		require.NoError(t, f.svc.ForgotPassword(context.Background(), models.ForgotPasswordRequest{Email: "jo@test.com"}))

		err := f.svc.ChangePassword(context.Background(), reg.User.ID,
			models.ChangePasswordRequest{CurrentPassword: "secret123", NewPassword: "newpass123"})
		require.NoError(t, err)

		u := f.store.Get(reg.User.ID)
		assert.Nil(t, u.ResetTokenHash)
		assert.Nil(t, u.ResetExpiresAt)

		_, err = f.svc.Login(context.Background(), models.LoginRequest{Email: "jo@test.com", Password: "secret123"})
		require.ErrorIs(t, err, auth.ErrInvalidCredentials)
		_, err = f.svc.Login(context.Background(), models.LoginRequest{Email: "jo@test.com", Password: "newpass123"})
		require.NoError(t, err)
	})

	t.Run("existing tokens stay valid", func(t *testing.T) {
		f := newFixture(t)
		reg := f.register(t, "Jo", "jo@test.com", "secret123")

		require.NoError(t, f.svc.ChangePassword(context.Background(), reg.User.ID,
			models.ChangePasswordRequest{CurrentPassword: "secret123", NewPassword: "newpass123"}))

		sub, err := f.tokens.Verify(reg.Token)
		require.NoError(t, err)
		assert.Equal(t, reg.User.ID, sub)
	})
}

func TestService_ResetPassword(t *testing.T) {
	setup := func(t *testing.T) (*fixture, *models.AuthResponse, string) {
		f := newFixture(t)
		reg := f.register(t, "Jo", "jo@test.com", "secret123")
		require.NoError(t, f.svc.ForgotPassword(context.Background(), models.ForgotPasswordRequest{Email: "jo@test.com"}))
		return f, reg, f.notifier.Token("jo@test.com")
	}

	t.Run("valid token sets password once", func(t *testing.T) {
		f, reg, token := setup(t)

		require.NoError(t, f.svc.ResetPassword(context.Background(), models.ResetPasswordRequest{Token: token, NewPassword: "reset-pass-1"}))
		assert.Nil(t, f.store.Get(reg.User.ID).ResetTokenHash)

		_, err := f.svc.Login(context.Background(), models.LoginRequest{Email: "jo@test.com", Password: "reset-pass-1"})
		require.NoError(t, err)

		err = f.svc.ResetPassword(context.Background(), models.ResetPasswordRequest{Token: token, NewPassword: "reset-pass-2"})
		require.ErrorIs(t, err, auth.ErrResetTokenInvalid)
		assert.Equal(t, audit.ReasonInvalidToken, f.audit.Last().Reason)
	})

	t.Run("expired token", func(t *testing.T) {
		f, _, token := setup(t)
		f.advance(time.Hour + time.Second)

		err := f.svc.ResetPassword(context.Background(), models.ResetPasswordRequest{Token: token, NewPassword: "reset-pass-1"})
		require.ErrorIs(t, err, auth.ErrResetTokenInvalid)
	})

	t.Run("unknown token", func(t *testing.T) {
		f, _, _ := setup(t)

		err := f.svc.ResetPassword(context.Background(), models.ResetPasswordRequest{Token: "deadbeef", NewPassword: "reset-pass-1"})
		require.ErrorIs(t, err, auth.ErrResetTokenInvalid)
	})

	t.Run("short password keeps the token", func(t *testing.T) {
		f, reg, token := setup(t)

		err := f.svc.ResetPassword(context.Background(), models.ResetPasswordRequest{Token: token, NewPassword: "short"})
		require.ErrorIs(t, err, auth.ErrWeakPassword)
		assert.NotNil(t, f.store.Get(reg.User.ID).ResetTokenHash)
	})

	t.Run("missing token", func(t *testing.T) {
		f, _, _ := setup(t)

		err := f.svc.ResetPassword(context.Background(), models.ResetPasswordRequest{NewPassword: "reset-pass-1"})
		require.ErrorIs(t, err, auth.ErrValidation)
	})
}

func TestService_Me(t *testing.T) {
	f := newFixture(t)
	reg := f.register(t, "Jo", "jo@test.com", "secret123")

	me, err := f.svc.Me(context.Background(), reg.User.ID)
	require.NoError(t, err)
	assert.Equal(t, reg.User, *me)

	_, err = f.svc.Me(context.Background(), "missing")
	require.ErrorIs(t, err, auth.ErrNotFound)
}

func TestService_AuditCarriesRequestMetadata(t *testing.T) {
	f := newFixture(t)
	ctx := audit.WithRequest(context.Background(), audit.Request{IP: "192.0.2.7", Method: "POST", Path: "/api/auth/login"})

	_, _ = f.svc.Login(ctx, models.LoginRequest{Email: "x@y.z", Password: "p"})

	ev := f.audit.Last()
	assert.Equal(t, "192.0.2.7", ev.IP)
	assert.Equal(t, "/api/auth/login", ev.Path)
	assert.Equal(t, *f.clock, ev.Time)
	assert.Len(t, f.audit.Events(), 1)
}
