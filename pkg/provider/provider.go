package provider

import (
	"context"
	"errors"
	"sort"

	"solbridge/pkg/types"
)

// Provider names. Routes naming any other provider are rejected before execution.
const (
	NameOneClick = "oneclick"
	NameLiFi     = "lifi"
	NameDeBridge = "debridge"
	NameOfficial = "official"
	NameJupiter  = "jupiter" // Solana swap sub-provider, never quoted directly
)

var known = map[string]struct{}{
	NameOneClick: {},
	NameLiFi:     {},
	NameDeBridge: {},
	NameOfficial: {},
	NameJupiter:  {},
}

// IsKnown reports whether name belongs to the closed provider allow-list
func IsKnown(name string) bool {
	_, ok := known[name]
	return ok
}

// KnownProviders returns the allow-list in sorted order
func KnownProviders() []string {
	names := make([]string, 0, len(known))
	for name := range known {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var (
	// ErrStepNotSupported is returned when an adapter cannot build a step
	ErrStepNotSupported = errors.New("step is not supported by provider")

	// ErrNoRoute is returned when a provider has no route for an intent
	ErrNoRoute = errors.New("no route available")

	// ErrRouteDrift is returned when a re-quoted step no longer matches
	// the signed route
	ErrRouteDrift = errors.New("re-quoted step drifted from the signed route")
)

// Provider quotes transfer routes from one external integration
type Provider interface {
	Name() string
	GetQuotes(ctx context.Context, intent types.TransferIntent) ([]types.NormalizedRoute, error)
}

// StepInput carries what an adapter needs to build one step's transaction
type StepInput struct {
	SessionID string
	Route     types.NormalizedRoute
	StepIndex int
	Intent    types.TransferIntent
}

// Step returns the route step being built
func (in StepInput) Step() types.RouteStep {
	return in.Route.Steps[in.StepIndex]
}

// StepBuilder is implemented by adapters able to describe executable steps
type StepBuilder interface {
	BuildStep(ctx context.Context, in StepInput) (types.TxRequest, error)
}

// Submission reports a broadcast transaction back to an adapter
type Submission struct {
	SessionID string
	Route     types.NormalizedRoute
	StepIndex int
	TxRef     string
}

// SubmissionNotifier is implemented by adapters that must be told about
// broadcast transactions, e.g. deposit-address based bridges.
type SubmissionNotifier interface {
	NotifySubmitted(ctx context.Context, sub Submission) error
}

// Registry is the static, ordered set of configured integrations
type Registry struct {
	quoters    []Provider
	components map[string]any
}

// NewRegistry creates a registry holding the given quoting providers
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{components: make(map[string]any)}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

// Register adds a quoting provider
func (r *Registry) Register(p Provider) {
	r.quoters = append(r.quoters, p)
	r.components[p.Name()] = p
}

// RegisterSubProvider adds a step builder that only executes steps of
// composed routes and is never asked for quotes.
func (r *Registry) RegisterSubProvider(name string, b StepBuilder) {
	r.components[name] = b
}

// Providers returns the quoting providers in registration order
func (r *Registry) Providers() []Provider {
	return append([]Provider(nil), r.quoters...)
}

// Names returns the names of every registered component
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.components))
	for name := range r.components {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StepBuilder returns the step builder registered under name
func (r *Registry) StepBuilder(name string) (StepBuilder, bool) {
	b, ok := r.components[name].(StepBuilder)
	return b, ok
}

// Notifier returns the submission notifier registered under name
func (r *Registry) Notifier(name string) (SubmissionNotifier, bool) {
	n, ok := r.components[name].(SubmissionNotifier)
	return n, ok
}
