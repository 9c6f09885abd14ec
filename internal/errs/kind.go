package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a service-level failure so callers can branch without
// matching on message text.
type Kind int

const (
	KindInternal Kind = iota
	KindInvalidToken
	KindUnauthenticated
	KindForbidden
	KindValidation
	KindNotFound
	KindAlreadyVoted
	KindRateLimited
	KindUpstream
)

var kindNames = map[Kind]string{
	KindInternal:        "internal",
	KindInvalidToken:    "invalid_token",
	KindUnauthenticated: "unauthenticated",
	KindForbidden:       "forbidden",
	KindValidation:      "validation_failed",
	KindNotFound:        "not_found",
	KindAlreadyVoted:    "already_voted",
	KindRateLimited:     "rate_limited",
	KindUpstream:        "upstream_failure",
}

// String returns the stable machine-readable name of the kind.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is a tagged failure carrying a human-readable message for display.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Msg == "" {
		return e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same kind, so errors.Is(err, &Error{Kind: KindForbidden}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Msg == "" || t.Msg == e.Msg)
}

// E constructs a tagged error.
func E(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap constructs a tagged error around a cause.
func Wrap(kind Kind, msg string, err error) error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// Messages surfaced verbatim to users.
const (
	MsgInvalidToken    = "invalid security token"
	MsgNotLoggedIn     = "must be logged in"
	MsgForbidden       = "you do not have permission to modify this poll"
	MsgAlreadyVoted    = "you have already voted on this poll"
	MsgPollNotFound    = "poll not found"
	MsgInvalidOption   = "invalid option"
	MsgBadCredentials  = "invalid login credentials"
	MsgTooManyAttempts = "too many login attempts, try again later"
)

// InvalidToken reports a missing or mismatched CSRF token.
func InvalidToken() error { return E(KindInvalidToken, MsgInvalidToken) }

// Unauthenticated reports a request without a resolved identity.
func Unauthenticated() error { return E(KindUnauthenticated, MsgNotLoggedIn) }

// Forbidden reports a caller that is neither owner nor admin.
func Forbidden() error { return E(KindForbidden, MsgForbidden) }

// Validation reports rejected input with the reason shown to the user.
func Validation(reason string) error { return E(KindValidation, reason) }

// Upstream reports a storage or auth backend failure; detail is the backend message.
func Upstream(err error) error {
	if err == nil {
		return nil
	}
	return Wrap(KindUpstream, err.Error(), err)
}

// KindOf returns the kind of err. Untagged errors are mapped from the
// repository sentinels, anything else is KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthenticated
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	}
	return KindInternal
}
