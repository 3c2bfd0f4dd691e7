// Package authtest provides in-memory stand-ins for the auth service's
// collaborators.
package authtest

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/ayush/tasktracker/backend/internal/audit"
	"github.com/ayush/tasktracker/backend/internal/auth"
	"github.com/ayush/tasktracker/backend/internal/models"
)

// UserStore is an in-memory auth.UserStore. Email uniqueness is checked under
// the same lock as the insert, like a unique index would.
type UserStore struct {
	mu    sync.Mutex
	users []*models.User

	// Err, when set, is returned by every call.
	Err error
}

func NewUserStore() *UserStore {
	return &UserStore{}
}

func (s *UserStore) Create(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	for _, u := range s.users {
		if strings.EqualFold(u.Email, user.Email) {
			return auth.ErrDuplicateEmail
		}
	}
	s.users = append(s.users, clone(user))
	return nil
}

func (s *UserStore) FindByEmail(_ context.Context, email string) (*models.User, error) {
	return s.find(func(u *models.User) bool { return strings.EqualFold(u.Email, email) })
}

// FindByName returns the earliest created user whose name matches ignoring case.
func (s *UserStore) FindByName(_ context.Context, name string) (*models.User, error) {
	return s.find(func(u *models.User) bool { return strings.EqualFold(u.Name, name) })
}

func (s *UserStore) FindByID(_ context.Context, id string, includeSecret bool) (*models.User, error) {
	u, err := s.find(func(u *models.User) bool { return u.ID == id })
	if err != nil {
		return nil, err
	}
	if !includeSecret {
		u.PasswordHash = ""
	}
	return u, nil
}

func (s *UserStore) FindByResetTokenHash(_ context.Context, tokenHash string, now time.Time) (*models.User, error) {
	return s.find(func(u *models.User) bool {
		return u.HasActiveReset(now) && *u.ResetTokenHash == tokenHash
	})
}

func (s *UserStore) Update(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	for i, u := range s.users {
		if u.ID == user.ID {
			s.users[i] = clone(user)
			return nil
		}
	}
	return auth.ErrNotFound
}

// Get returns a copy of the stored user with id, secrets included, or nil.
func (s *UserStore) Get(id string) *models.User {
	u, _ := s.find(func(u *models.User) bool { return u.ID == id })
	return u
}

// Len returns the number of stored users.
func (s *UserStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

func (s *UserStore) find(match func(*models.User) bool) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	var best *models.User
	for _, u := range s.users {
		if match(u) && (best == nil || u.CreatedAt.Before(best.CreatedAt)) {
			best = u
		}
	}
	if best == nil {
		return nil, auth.ErrNotFound
	}
	return clone(best), nil
}

func clone(u *models.User) *models.User {
	c := *u
	if u.ResetTokenHash != nil {
		h := *u.ResetTokenHash
		c.ResetTokenHash = &h
	}
	if u.ResetExpiresAt != nil {
		t := *u.ResetExpiresAt
		c.ResetExpiresAt = &t
	}
	return &c
}

// Recorder keeps every audit event it receives.
type Recorder struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *Recorder) Record(_ context.Context, ev audit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []audit.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]audit.Event(nil), r.events...)
}

// Last returns the most recent event, or the zero Event.
func (r *Recorder) Last() audit.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return audit.Event{}
	}
	return r.events[len(r.events)-1]
}

// Notifier captures reset tokens instead of delivering them.
type Notifier struct {
	mu     sync.Mutex
	tokens map[string]string

	// Err, when set, is returned after the token is captured.
	Err error
}

func (n *Notifier) SendResetToken(_ context.Context, user *models.User, token string, _ time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.tokens == nil {
		n.tokens = make(map[string]string)
	}
	n.tokens[user.Email] = token
	return n.Err
}

// Token returns the last token sent to email.
func (n *Notifier) Token(email string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.tokens[email]
}

// Count returns how many addresses received a token.
func (n *Notifier) Count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.tokens)
}
