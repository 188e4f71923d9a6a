package apierror

import (
	"errors"
	"net/http"
)

type Kind string

const (
	KindRateLimit       Kind = "RATE_LIMIT_EXCEEDED"
	KindValidation      Kind = "VALIDATION_ERROR"
	KindAuth            Kind = "AUTH_ERROR"
	KindForbidden       Kind = "FORBIDDEN"
	KindNotFound        Kind = "NOT_FOUND"
	KindBadRequest      Kind = "BAD_REQUEST"
	KindPayloadTooLarge Kind = "PAYLOAD_TOO_LARGE"
	KindInternal        Kind = "INTERNAL_SERVER_ERROR"
)

// Status maps a kind to its HTTP status code. Unknown kinds are 500.
func (k Kind) Status() int {
	switch k {
	case KindRateLimit:
		return http.StatusTooManyRequests
	case KindValidation, KindBadRequest:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

var defaultMessages = map[Kind]string{
	KindRateLimit:       "Too many requests, please try again later",
	KindValidation:      "Validation failed",
	KindAuth:            "Authentication required",
	KindForbidden:       "You do not have permission to perform this action",
	KindNotFound:        "Resource not found",
	KindBadRequest:      "Malformed request",
	KindPayloadTooLarge: "Request body too large",
	KindInternal:        "Internal server error",
}

// Error is an error that knows how it should be presented to an API client.
type Error struct {
	Kind    Kind
	Message string
	// Details is rendered as-is; for validation errors it is the
	// field -> messages map.
	Details any

	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return string(e.Kind) + ": " + e.Message + ": " + e.cause.Error()
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// Status is the HTTP status for e.Kind.
func (e *Error) Status() int { return e.Kind.Status() }

// New returns an *Error of kind with msg, or the kind's default message if msg is empty.
func New(kind Kind, msg string) *Error {
	if msg == "" {
		msg = defaultMessages[kind]
	}
	return &Error{Kind: kind, Message: msg}
}

// Wrap is New with an underlying cause kept for logging and errors.Is.
func Wrap(err error, kind Kind, msg string) *Error {
	e := New(kind, msg)
	e.cause = err
	return e
}

// Validation builds a VALIDATION_ERROR carrying per-field messages.
func Validation(fields map[string][]string) *Error {
	e := New(KindValidation, "")
	e.Details = fields
	return e
}

func Auth(msg string) *Error      { return New(KindAuth, msg) }
func Forbidden(msg string) *Error { return New(KindForbidden, msg) }
func NotFound(msg string) *Error  { return New(KindNotFound, msg) }

// Internal wraps an unexpected failure. The cause is logged, never rendered.
func Internal(err error) *Error { return Wrap(err, KindInternal, "") }

// From classifies any error as an *Error. Body size overruns from
// http.MaxBytesReader become PAYLOAD_TOO_LARGE; anything unrecognised is
// INTERNAL_SERVER_ERROR.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return Wrap(err, KindPayloadTooLarge, "")
	}
	return Internal(err)
}
