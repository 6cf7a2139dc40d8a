package domain

import "errors"

// Kind is the closed set of failure categories the services report.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindConflict
	KindUnauthorized
	KindInvalidCredential
	KindForbidden
	KindInvalidArgument
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindConflict:
		return "Conflict"
	case KindUnauthorized:
		return "Unauthorized"
	case KindInvalidCredential:
		return "InvalidCredential"
	case KindForbidden:
		return "Forbidden"
	case KindInvalidArgument:
		return "InvalidArgument"
	default:
		return "Internal"
	}
}

// Error is a business failure with a message that is safe to show to users.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Kind.String() + ": " + e.Message }

func NotFound(msg string) error          { return &Error{Kind: KindNotFound, Message: msg} }
func Conflict(msg string) error          { return &Error{Kind: KindConflict, Message: msg} }
func Unauthorized(msg string) error      { return &Error{Kind: KindUnauthorized, Message: msg} }
func InvalidCredential(msg string) error { return &Error{Kind: KindInvalidCredential, Message: msg} }
func Forbidden(msg string) error         { return &Error{Kind: KindForbidden, Message: msg} }
func InvalidArgument(msg string) error   { return &Error{Kind: KindInvalidArgument, Message: msg} }
func Internal(msg string) error          { return &Error{Kind: KindInternal, Message: msg} }

// KindOf reports the kind of err. Errors that are not *Error are Internal.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// MessageOf returns the user-facing message of err, or fallback when err
// carries none.
func MessageOf(err error, fallback string) string {
	var de *Error
	if errors.As(err, &de) && de.Message != "" {
		return de.Message
	}
	return fallback
}
