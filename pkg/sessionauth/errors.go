package sessionauth

import (
	"errors"
	"fmt"
)

// ErrUnauthorized is wrapped by every rejected proof
var ErrUnauthorized = errors.New("unauthorized")

// Reason classifies a rejected proof
type Reason string

const (
	ReasonMalformed       Reason = "malformed"
	ReasonTampered        Reason = "tampered"
	ReasonExpired         Reason = "expired"
	ReasonIssuedInFuture  Reason = "issued_in_future"
	ReasonSessionMismatch Reason = "session_mismatch"
	ReasonBindingMismatch Reason = "binding_mismatch"
	ReasonHostMismatch    Reason = "host_mismatch"
	ReasonMessageMismatch Reason = "message_mismatch"
	ReasonBadSignature    Reason = "bad_signature"
	ReasonSignerMismatch  Reason = "signer_mismatch"
)

// AuthError is a rejected proof. Two AuthErrors match under errors.Is when
// their reasons are equal.
type AuthError struct {
	Reason Reason
	Detail string
}

func newAuthError(reason Reason, detail string) *AuthError {
	return &AuthError{Reason: reason, Detail: detail}
}

func (e *AuthError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("unauthorized: %s", e.Reason)
	}
	return fmt.Sprintf("unauthorized: %s: %s", e.Reason, e.Detail)
}

// Unwrap lets errors.Is match ErrUnauthorized
func (e *AuthError) Unwrap() error {
	return ErrUnauthorized
}

// Is matches AuthErrors by reason
func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	return ok && t.Reason == e.Reason
}

var (
	ErrMalformedChallenge = newAuthError(ReasonMalformed, "")
	ErrTampered           = newAuthError(ReasonTampered, "")
	ErrChallengeExpired   = newAuthError(ReasonExpired, "")
	ErrIssuedInFuture     = newAuthError(ReasonIssuedInFuture, "")
	ErrSessionMismatch    = newAuthError(ReasonSessionMismatch, "")
	ErrBindingMismatch    = newAuthError(ReasonBindingMismatch, "")
	ErrHostMismatch       = newAuthError(ReasonHostMismatch, "")
	ErrMessageMismatch    = newAuthError(ReasonMessageMismatch, "")
	ErrBadSignature       = newAuthError(ReasonBadSignature, "")
	ErrSignerMismatch     = newAuthError(ReasonSignerMismatch, "")
)

// ReasonOf returns the rejection reason of err, or "" if err is not an
// AuthError.
func ReasonOf(err error) Reason {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Reason
	}
	return ""
}
