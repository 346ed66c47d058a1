package integrity

import (
	"errors"
	"fmt"
)

// ErrIntegrity is wrapped by every rejection returned from this package.
// Callers treat it as a declined execution, never as an internal error.
var ErrIntegrity = errors.New("route integrity check failed")

var (
	// ErrNoSigningKey is returned when signing is attempted without a key
	ErrNoSigningKey = errors.New("route signing key is not configured")

	// ErrNotSigned is returned when signature fields are missing
	ErrNotSigned = fmt.Errorf("%w: route is not signed", ErrIntegrity)

	// ErrExpired is returned when the route signature is past its expiry
	ErrExpired = fmt.Errorf("%w: route signature expired", ErrIntegrity)

	// ErrContextMismatch is returned when the signature does not match the
	// route and request context presented at verification time
	ErrContextMismatch = fmt.Errorf("%w: route does not match request context", ErrIntegrity)

	// ErrUnknownProvider is returned for providers outside the allow-list
	ErrUnknownProvider = fmt.Errorf("%w: unknown provider", ErrIntegrity)

	// ErrAmountSanity is returned when output or fee amounts are implausible
	ErrAmountSanity = fmt.Errorf("%w: amount sanity check failed", ErrIntegrity)

	// ErrInvalidSteps is returned when a route has no executable steps
	ErrInvalidSteps = fmt.Errorf("%w: invalid route steps", ErrIntegrity)
)
