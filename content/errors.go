package content

import (
	"errors"
	"fmt"
)

// Kind classifies a mutation failure.
type Kind int

const (
	// KindValidation: a required field is missing. Nothing was written.
	KindValidation Kind = iota + 1
	// KindUnauthorized: the token did not verify to an allow-listed email.
	KindUnauthorized
	// KindNotFound: a referenced section or record does not exist.
	KindNotFound
	// KindStore: the document store or a downstream cache failed.
	KindStore
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthorized:
		return "unauthorized"
	case KindNotFound:
		return "not_found"
	case KindStore:
		return "store"
	default:
		return "unknown"
	}
}

// Error is returned by every Service operation. Message is safe to show to
// the caller; Err carries the underlying cause and is only logged.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// UnauthorizedMessage is the only message returned for failed authorization.
const UnauthorizedMessage = "You are not authorized to perform this action."

var errUnauthorized = &Error{Kind: KindUnauthorized, Message: UnauthorizedMessage}

func validationError(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

func notFoundError(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

func storeError(msg string, err error) *Error {
	return &Error{Kind: KindStore, Message: msg, Err: err}
}

// KindOf reports the Kind of err, or KindStore for errors that did not come
// from this package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStore
}

// MessageOf returns the caller-facing message for err.
func MessageOf(err error, fallback string) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return fallback
}
