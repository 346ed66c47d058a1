package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"solbridge/pkg/finality"
	"solbridge/pkg/integrity"
	"solbridge/pkg/observability"
	"solbridge/pkg/policy"
	"solbridge/pkg/provider"
	"solbridge/pkg/types"
)

// maxUpdateAttempts bounds the compare-and-swap retries of one report
const maxUpdateAttempts = 5

// CreateRequest names the route a caller wants to execute. Intent must be
// the request context the route was quoted for.
type CreateRequest struct {
	Route  types.SignedRoute
	Intent types.TransferIntent
}

// ReportRequest is a driver's report on one step
type ReportRequest struct {
	SessionID string
	StepIndex int
	Status    StepStatus
	TxRef     string
	Message   string
}

// Options configures a Manager
type Options struct {
	Finality finality.Set
	Logger   *zap.Logger
	Metrics  *observability.Metrics
	Now      func() time.Time
}

// Manager creates and advances sessions. It never signs transactions; it
// only describes what the wallet must sign.
type Manager struct {
	store     Store
	signer    *integrity.Signer
	gate      policy.Gate
	providers *provider.Registry
	finality  finality.Set
	logger    *zap.Logger
	metrics   *observability.Metrics
	now       func() time.Time
}

// NewManager creates a Manager
func NewManager(store Store, signer *integrity.Signer, gate policy.Gate, providers *provider.Registry, opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.NewMetrics("", nil)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if providers == nil {
		providers = provider.NewRegistry()
	}
	if gate.Coverage == nil && opts.Finality != nil {
		gate.Coverage = opts.Finality
	}

	return &Manager{
		store:     store,
		signer:    signer,
		gate:      gate,
		providers: providers,
		finality:  opts.Finality,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		now:       opts.Now,
	}
}

// Create validates a signed route and starts a session for it
func (m *Manager) Create(ctx context.Context, req CreateRequest) (*Session, error) {
	if req.Route.Action != nil {
		return nil, ErrActionRoute
	}

	if err := m.signer.ValidateForExecution(req.Route, req.Intent); err != nil {
		m.metrics.IntegrityRejects.WithLabelValues(integrityReason(err)).Inc()
		return nil, err
	}

	if err := m.gate.Check(req.Route.Steps); err != nil {
		var blocked *policy.BlockedError
		if errors.As(err, &blocked) {
			for _, c := range blocked.Chains {
				m.metrics.PolicyRejects.WithLabelValues(string(c)).Inc()
			}
		}
		return nil, err
	}

	if req.Intent.SourceChainKind != types.ChainEVM {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSourceWallet, req.Intent.SourceChainKind)
	}

	now := m.now().UTC()
	route := req.Route.NormalizedRoute.Clone()
	steps := make([]StepState, len(route.Steps))
	for i, step := range route.Steps {
		steps[i] = StepState{
			Index:     i,
			ChainKind: step.ChainKind,
			ChainID:   step.ChainID,
			Status:    StepIdle,
		}
	}

	s := &Session{
		ID:            uuid.NewString(),
		SourceAddress: strings.ToLower(req.Intent.SourceAddress),
		SolanaAddress: req.Intent.SolanaAddress,
		Provider:      route.Provider,
		RouteID:       route.RouteID,
		Route:         route,
		Intent:        req.Intent,
		Steps:         steps,
		Status:        StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := m.store.Create(ctx, s); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}

	m.metrics.SessionsCreated.WithLabelValues(s.Provider).Inc()
	m.logger.Info("session created",
		zap.String("session_id", s.ID),
		zap.String("provider", s.Provider),
		zap.String("route_id", s.RouteID),
		zap.Int("steps", len(s.Steps)))

	return s, nil
}

// Poll returns a snapshot of a session
func (m *Manager) Poll(ctx context.Context, id string) (*Session, error) {
	return m.store.Get(ctx, id)
}

// PrepareStep returns the transaction the wallet must sign for the current
// step. A submitted step may be prepared again to retry a broadcast.
func (m *Manager) PrepareStep(ctx context.Context, id string, index int) (types.TxRequest, error) {
	s, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.Status.IsTerminal() {
		return nil, ErrSessionTerminal
	}
	if index != s.CurrentStep || index < 0 || index >= len(s.Steps) {
		return nil, fmt.Errorf("%w: current step is %d", ErrStepOutOfOrder, s.CurrentStep)
	}
	if st := s.Steps[index].Status; st != StepIdle && st != StepSubmitted {
		return nil, fmt.Errorf("%w: step %d is %s", ErrStepOutOfOrder, index, st)
	}

	builder, err := m.builderFor(s, index)
	if err != nil {
		return nil, err
	}

	tx, err := builder.BuildStep(ctx, provider.StepInput{
		SessionID: s.ID,
		Route:     s.Route,
		StepIndex: index,
		Intent:    s.Intent,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build step %d: %w", index, err)
	}
	if tx.Kind() != s.Steps[index].ChainKind {
		return nil, fmt.Errorf("failed to build step %d: got %s transaction for %s step", index, tx.Kind(), s.Steps[index].ChainKind)
	}
	return tx, nil
}

// builderFor prefers the step's sub-provider over the route's provider
func (m *Manager) builderFor(s *Session, index int) (provider.StepBuilder, error) {
	step := s.Route.Steps[index]
	for _, name := range []string{step.Provider, s.Provider} {
		if name == "" {
			continue
		}
		if b, ok := m.providers.StepBuilder(name); ok {
			return b, nil
		}
	}
	return nil, fmt.Errorf("%w: %s step %d", ErrNoStepBuilder, s.Provider, index)
}

// Report applies a driver's step report. Reports are applied with
// compare-and-swap so concurrent reports never double-advance a session.
func (m *Manager) Report(ctx context.Context, req ReportRequest) (*Session, error) {
	s, err := m.report(ctx, req)
	result := "ok"
	if err != nil {
		result = "rejected"
	}
	m.metrics.StepReports.WithLabelValues(string(req.Status), result).Inc()
	return s, err
}

func (m *Manager) report(ctx context.Context, req ReportRequest) (*Session, error) {
	if _, ok := ParseStepStatus(string(req.Status)); !ok {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidReport, req.Status)
	}

	verified := false
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		current, err := m.store.Get(ctx, req.SessionID)
		if err != nil {
			return nil, err
		}

		next, err := apply(current, req, m.now().UTC())
		if err != nil {
			return nil, err
		}
		if next == nil {
			return current, nil
		}

		if req.Status == StepConfirmed && !verified {
			if err := m.checkFinal(ctx, next, req.StepIndex); err != nil {
				return nil, err
			}
			verified = true
		}

		err = m.store.Update(ctx, next, current.Version)
		if errors.Is(err, ErrVersionConflict) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to update session: %w", err)
		}

		if req.Status == StepSubmitted {
			m.notifySubmitted(ctx, next, req)
		}
		m.logger.Info("step reported",
			zap.String("session_id", next.ID),
			zap.Int("step", req.StepIndex),
			zap.String("status", string(req.Status)),
			zap.String("session_status", string(next.Status)))
		return next, nil
	}

	return nil, ErrBusy
}

// apply computes the session after a report. A nil session with a nil
// error means the report is a duplicate and changes nothing.
func apply(s *Session, req ReportRequest, now time.Time) (*Session, error) {
	if s.Status.IsTerminal() {
		return nil, ErrSessionTerminal
	}
	if req.StepIndex != s.CurrentStep || req.StepIndex < 0 || req.StepIndex >= len(s.Steps) {
		return nil, fmt.Errorf("%w: reported step %d, current step is %d", ErrStepOutOfOrder, req.StepIndex, s.CurrentStep)
	}

	next := s.Clone()
	step := &next.Steps[req.StepIndex]

	switch req.Status {
	case StepSubmitted:
		if req.TxRef == "" {
			return nil, fmt.Errorf("%w: submitted step needs a transaction reference", ErrInvalidReport)
		}
		if step.Status == StepSubmitted {
			if step.TxRef == req.TxRef {
				return nil, nil
			}
			return nil, ErrConflictingReport
		}
		step.Status = StepSubmitted
		step.TxRef = req.TxRef
		next.Status = StatusExecuting

	case StepConfirmed:
		if req.TxRef != "" && step.TxRef != "" && req.TxRef != step.TxRef {
			return nil, ErrConflictingReport
		}
		if req.TxRef != "" {
			step.TxRef = req.TxRef
		}
		if step.TxRef == "" {
			return nil, fmt.Errorf("%w: confirmed step needs a transaction reference", ErrInvalidReport)
		}
		step.Status = StepConfirmed
		next.CurrentStep++
		if next.CurrentStep == len(next.Steps) {
			next.Status = StatusCompleted
		} else {
			next.Status = StatusExecuting
		}

	case StepFailed:
		step.Status = StepFailed
		if req.TxRef != "" {
			step.TxRef = req.TxRef
		}
		msg := req.Message
		if msg == "" {
			msg = fmt.Sprintf("step %d failed", req.StepIndex)
		}
		step.Error = msg
		next.Status = StatusFailed
		next.ErrorMessage = msg

	default:
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidReport, req.Status)
	}

	next.UpdatedAt = now
	return next, nil
}

// checkFinal asks the chain whether a confirmed step is final. Chains
// without a checker are trusted, as the policy gate already decided.
func (m *Manager) checkFinal(ctx context.Context, s *Session, index int) error {
	step := s.Steps[index]
	checker, ok := m.finality.For(step.ChainKind)
	if !ok {
		return nil
	}

	final, err := checker.IsFinal(ctx, step.ChainID, step.TxRef)
	if errors.Is(err, finality.ErrUnsupportedChain) && m.gate.AllowUnverified {
		m.logger.Warn("finality unverified, trusting confirmation",
			zap.String("session_id", s.ID),
			zap.Int("step", index),
			zap.String("chain_id", step.ChainID.String()))
		return nil
	}
	if err != nil {
		m.logger.Warn("finality check failed",
			zap.String("session_id", s.ID),
			zap.Int("step", index),
			zap.String("tx", step.TxRef),
			zap.Error(err))
		return fmt.Errorf("%w: %v", ErrNotFinal, err)
	}
	if !final {
		return ErrNotFinal
	}
	return nil
}

func (m *Manager) notifySubmitted(ctx context.Context, s *Session, req ReportRequest) {
	notifier, ok := m.providers.Notifier(s.Provider)
	if !ok {
		return
	}
	err := notifier.NotifySubmitted(ctx, provider.Submission{
		SessionID: s.ID,
		Route:     s.Route,
		StepIndex: req.StepIndex,
		TxRef:     req.TxRef,
	})
	if err != nil {
		m.logger.Warn("provider submission notice failed",
			zap.String("session_id", s.ID),
			zap.String("provider", s.Provider),
			zap.Error(err))
	}
}

func integrityReason(err error) string {
	switch {
	case errors.Is(err, integrity.ErrNotSigned):
		return "not_signed"
	case errors.Is(err, integrity.ErrExpired):
		return "expired"
	case errors.Is(err, integrity.ErrContextMismatch):
		return "mismatch"
	case errors.Is(err, integrity.ErrUnknownProvider):
		return "unknown_provider"
	case errors.Is(err, integrity.ErrAmountSanity):
		return "amount"
	case errors.Is(err, integrity.ErrInvalidSteps):
		return "steps"
	default:
		return "other"
	}
}
