package session

import (
	"errors"
	"fmt"
)

// ErrSessionState is wrapped by every rejected state transition
var ErrSessionState = errors.New("invalid session state")

// ErrInvalidRequest is wrapped by session requests rejected before any
// state is created
var ErrInvalidRequest = errors.New("invalid session request")

var (
	// ErrNotFound is returned for unknown session ids
	ErrNotFound = errors.New("session not found")

	// ErrVersionConflict is returned by Store.Update when the stored version
	// moved on
	ErrVersionConflict = errors.New("session version conflict")

	ErrStepOutOfOrder    = fmt.Errorf("%w: step out of order", ErrSessionState)
	ErrConflictingReport = fmt.Errorf("%w: step already submitted with a different reference", ErrSessionState)
	ErrSessionTerminal   = fmt.Errorf("%w: session is finished", ErrSessionState)
	ErrNotFinal          = fmt.Errorf("%w: transaction is not final", ErrSessionState)
	ErrInvalidReport     = fmt.Errorf("%w: invalid step report", ErrSessionState)
	ErrBusy              = fmt.Errorf("%w: too many concurrent updates", ErrSessionState)

	// ErrUnsupportedSourceWallet is returned for source chains that cannot
	// produce an authorization proof
	ErrUnsupportedSourceWallet = fmt.Errorf("%w: source wallet type cannot authorize sessions", ErrInvalidRequest)

	// ErrActionRoute is returned for routes that are completed off-platform
	ErrActionRoute = fmt.Errorf("%w: route is completed outside of sessions", ErrInvalidRequest)

	// ErrNoStepBuilder is returned when no provider can build a step
	ErrNoStepBuilder = errors.New("no provider can build this step")
)
