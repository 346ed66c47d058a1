// Package session tracks the sequential execution of a signed route.
package session

import (
	"time"

	"solbridge/pkg/types"
)

// Status is the overall state of a session
type Status string

const (
	StatusPending   Status = "pending"   // Created, no step submitted yet
	StatusExecuting Status = "executing" // At least one step submitted
	StatusCompleted Status = "completed" // Every step confirmed
	StatusFailed    Status = "failed"    // A step failed
)

// IsTerminal reports whether no further step may run
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// StepStatus is the state of one route step
type StepStatus string

const (
	StepIdle      StepStatus = "idle"
	StepSubmitted StepStatus = "submitted"
	StepConfirmed StepStatus = "confirmed"
	StepFailed    StepStatus = "failed"
)

// ParseStepStatus accepts the statuses a driver may report
func ParseStepStatus(s string) (StepStatus, bool) {
	switch st := StepStatus(s); st {
	case StepSubmitted, StepConfirmed, StepFailed:
		return st, true
	default:
		return "", false
	}
}

// StepState tracks one step of the session's route
type StepState struct {
	Index     int             `json:"index"`
	ChainKind types.ChainKind `json:"chainType"`
	ChainID   types.ChainID   `json:"chainId,omitempty"`
	Status    StepStatus      `json:"status"`
	TxRef     string          `json:"txHashOrSig,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// Session is one attempt to execute a route. Route and Intent are
// snapshots taken at creation and never change.
type Session struct {
	ID            string                `json:"sessionId"`
	SourceAddress string                `json:"sourceAddress"`
	SolanaAddress string                `json:"solanaAddress"`
	Provider      string                `json:"provider"`
	RouteID       string                `json:"routeId"`
	Route         types.NormalizedRoute `json:"route"`
	Intent        types.TransferIntent  `json:"intent"`
	Steps         []StepState           `json:"steps"`
	CurrentStep   int                   `json:"currentStep"`
	Status        Status                `json:"status"`
	ErrorMessage  string                `json:"errorMessage,omitempty"`
	Version       int64                 `json:"version"`
	CreatedAt     time.Time             `json:"createdAt"`
	UpdatedAt     time.Time             `json:"updatedAt"`
}

// Clone returns a deep copy
func (s *Session) Clone() *Session {
	out := *s
	out.Route = s.Route.Clone()
	out.Steps = append([]StepState(nil), s.Steps...)
	return &out
}

// View is the polling representation of a session
type View struct {
	SessionID    string      `json:"sessionId"`
	Status       Status      `json:"status"`
	CurrentStep  int         `json:"currentStep"`
	ErrorMessage string      `json:"errorMessage"`
	Steps        []StepState `json:"steps"`
}

// View returns the polling representation
func (s *Session) View() View {
	return View{
		SessionID:    s.ID,
		Status:       s.Status,
		CurrentStep:  s.CurrentStep,
		ErrorMessage: s.ErrorMessage,
		Steps:        append([]StepState{}, s.Steps...),
	}
}
