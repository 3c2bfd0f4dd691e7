// Package audit records one structured event per authentication attempt.
//
// Recorders never return errors: a sink that cannot write logs the failure to
// the operational logger and the request carries on.
package audit

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
)

// Event types.
const (
	TypeSignup         = "signup"
	TypeLogin          = "login"
	TypeForgotPassword = "forgot_password"
	TypeRecoverEmail   = "recover_email"
	TypeChangePassword = "change_password"
	TypeResetPassword  = "reset_password"
)

// Outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Failure reasons.
const (
	ReasonMissingFields  = "missing_fields"
	ReasonDuplicateEmail = "duplicate_email"
	ReasonUserNotFound   = "user_not_found"
	ReasonBadPassword    = "bad_password"
	ReasonWeakPassword   = "weak_password"
	ReasonSamePassword   = "same_password"
	ReasonNoMatch        = "no_match"
	ReasonInvalidToken   = "invalid_token"
	ReasonDeliveryFailed = "delivery_failed"
	ReasonServerError    = "server_error"
)

// Event is a single append-only audit record.
type Event struct {
	ID           ulid.ULID `json:"id"`
	Time         time.Time `json:"time"`
	Type         string    `json:"type"`
	Outcome      string    `json:"outcome"`
	Reason       string    `json:"reason,omitempty"`
	Email        string    `json:"email,omitempty"`
	UserID       string    `json:"userId,omitempty"`
	IP           string    `json:"ip,omitempty"`
	Method       string    `json:"method,omitempty"`
	Path         string    `json:"path,omitempty"`
	UserAgent    string    `json:"userAgent,omitempty"`
	StatusCode   int       `json:"statusCode"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	ErrorCode    string    `json:"errorCode,omitempty"`
	ErrorStack   string    `json:"errorStack,omitempty"`
}

// Recorder is a write-only audit sink.
type Recorder interface {
	Record(ctx context.Context, ev Event)
}

// Request describes the caller of an audited operation.
type Request struct {
	IP        string
	Method    string
	Path      string
	UserAgent string
}

type requestKey struct{}

// WithRequest attaches caller metadata to ctx.
func WithRequest(ctx context.Context, req Request) context.Context {
	return context.WithValue(ctx, requestKey{}, req)
}

// RequestFrom returns the caller metadata attached by WithRequest, if any.
func RequestFrom(ctx context.Context) Request {
	req, _ := ctx.Value(requestKey{}).(Request)
	return req
}

// Stamp fills in the id, time and caller fields that are still empty.
func Stamp(ctx context.Context, ev Event, now time.Time) Event {
	if ev.ID == (ulid.ULID{}) {
		ev.ID = ulid.Make()
	}
	if ev.Time.IsZero() {
		ev.Time = now.UTC()
	}
	req := RequestFrom(ctx)
	if ev.IP == "" {
		ev.IP = req.IP
	}
	if ev.Method == "" {
		ev.Method = req.Method
	}
	if ev.Path == "" {
		ev.Path = req.Path
	}
	if ev.UserAgent == "" {
		ev.UserAgent = req.UserAgent
	}
	return ev
}

// Multi fans an event out to every recorder in order.
type Multi []Recorder

func (m Multi) Record(ctx context.Context, ev Event) {
	for _, r := range m {
		r.Record(ctx, ev)
	}
}

// Nop discards events.
type Nop struct{}

func (Nop) Record(context.Context, Event) {}
