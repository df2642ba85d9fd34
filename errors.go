package authservice

import (
	"errors"
	"net/http"
)

// ErrorKind classifies failures so handlers can map them to a status code
// and a stable machine readable tag.
type ErrorKind string

const (
	KindValidation         ErrorKind = "validation_error"
	KindDuplicateAccount   ErrorKind = "duplicate_account"
	KindNotFound           ErrorKind = "not_found"
	KindInvalidCredentials ErrorKind = "invalid_credentials"
	KindInvalidCode        ErrorKind = "invalid_code"
	KindNotIssued          ErrorKind = "not_issued"
	KindAlreadyVerified    ErrorKind = "already_verified"
	KindExpired            ErrorKind = "expired"
	KindDelivery           ErrorKind = "delivery_error"
	KindUnauthorized       ErrorKind = "unauthorized"
	KindForbidden          ErrorKind = "forbidden"
	KindInvalidToken       ErrorKind = "invalid_token"
	KindInternal           ErrorKind = "internal_error"
)

// AuthError is the error type returned by every operation of the service.
// Field names the offending input (empty when the error is not tied to one).
type AuthError struct {
	Kind    ErrorKind
	Field   string
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *AuthError) Unwrap() error { return e.Err }

// Is matches on Kind so callers can write errors.Is(err, ErrExpired).
func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// StatusCode returns the HTTP status used when this error reaches a handler.
func (e *AuthError) StatusCode() int {
	switch e.Kind {
	case KindValidation, KindNotIssued, KindAlreadyVerified:
		return http.StatusBadRequest
	case KindDuplicateAccount:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidCredentials, KindInvalidCode, KindExpired, KindUnauthorized, KindInvalidToken:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func NewAuthError(kind ErrorKind, message, field string) *AuthError {
	return &AuthError{Kind: kind, Message: message, Field: field}
}

// WrapAuthError attaches an underlying cause. The cause is never written to
// clients in production.
func WrapAuthError(kind ErrorKind, message, field string, err error) *AuthError {
	return &AuthError{Kind: kind, Message: message, Field: field, Err: err}
}

// Sentinels for errors.Is checks.
var (
	ErrValidation         = &AuthError{Kind: KindValidation}
	ErrDuplicateAccount   = &AuthError{Kind: KindDuplicateAccount}
	ErrNotFound           = &AuthError{Kind: KindNotFound}
	ErrInvalidCredentials = &AuthError{Kind: KindInvalidCredentials}
	ErrInvalidCode        = &AuthError{Kind: KindInvalidCode}
	ErrNotIssued          = &AuthError{Kind: KindNotIssued}
	ErrAlreadyVerified    = &AuthError{Kind: KindAlreadyVerified}
	ErrExpired            = &AuthError{Kind: KindExpired}
	ErrDelivery           = &AuthError{Kind: KindDelivery}
	ErrUnauthorized       = &AuthError{Kind: KindUnauthorized}
	ErrForbidden          = &AuthError{Kind: KindForbidden}
	ErrInvalidToken       = &AuthError{Kind: KindInvalidToken}
	ErrInternal           = &AuthError{Kind: KindInternal}
)

// Store level errors. Backends return (possibly wrapped) versions of these.
var (
	ErrAccountNotFound = errors.New("account not found")
	ErrDuplicateEmail  = errors.New("email already exists")
	ErrPostNotFound    = errors.New("post not found")
)

// AsAuthError converts any error into an *AuthError, treating unknown
// errors as internal.
func AsAuthError(err error) *AuthError {
	if err == nil {
		return nil
	}
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr
	}
	return WrapAuthError(KindInternal, "Internal server error", "", err)
}
