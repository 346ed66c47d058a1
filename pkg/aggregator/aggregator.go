// Package aggregator fans a transfer intent out to every configured
// provider and returns signed, normalized routes.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"solbridge/pkg/integrity"
	"solbridge/pkg/observability"
	"solbridge/pkg/provider"
	"solbridge/pkg/types"
)

// NoProvidersMarker identifies the error reported when no provider is
// configured, so callers can answer with a client error.
const NoProvidersMarker = "NO_PROVIDERS_CONFIGURED"

// DefaultProviderTimeout bounds each provider call
const DefaultProviderTimeout = 12 * time.Second

// IsNoProviders reports whether an aggregation error string carries the
// no-providers marker.
func IsNoProviders(msg string) bool {
	return strings.Contains(msg, NoProvidersMarker)
}

// Result is the outcome of one aggregation
type Result struct {
	Routes []types.SignedRoute `json:"routes"`
	Errors []string            `json:"errors,omitempty"`
}

// NoProviders reports whether the result stands for an empty provider set
func (r *Result) NoProviders() bool {
	return len(r.Routes) == 0 && len(r.Errors) == 1 && IsNoProviders(r.Errors[0])
}

// Options configures an Aggregator
type Options struct {
	ProviderTimeout time.Duration
	QuoteTTL        time.Duration
	Injector        *Injector
	Composer        *Composer
	Logger          *zap.Logger
	Metrics         *observability.Metrics
}

// Aggregator quotes all providers concurrently and signs the merged routes
type Aggregator struct {
	providers []provider.Provider
	signer    *integrity.Signer
	timeout   time.Duration
	ttl       time.Duration
	injector  *Injector
	composer  *Composer
	logger    *zap.Logger
	metrics   *observability.Metrics
}

// New creates an Aggregator
func New(providers []provider.Provider, signer *integrity.Signer, opts Options) *Aggregator {
	if opts.ProviderTimeout <= 0 {
		opts.ProviderTimeout = DefaultProviderTimeout
	}
	if opts.QuoteTTL <= 0 {
		opts.QuoteTTL = integrity.DefaultQuoteTTL
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.NewMetrics("", nil)
	}

	return &Aggregator{
		providers: providers,
		signer:    signer,
		timeout:   opts.ProviderTimeout,
		ttl:       opts.QuoteTTL,
		injector:  opts.Injector,
		composer:  opts.Composer,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
	}
}

// Quote aggregates, injects, composes and signs routes for a validated
// intent. Provider failures are reported in Result.Errors, never as the
// returned error.
func (a *Aggregator) Quote(ctx context.Context, intent types.TransferIntent) (*Result, error) {
	if len(a.providers) == 0 {
		return &Result{
			Routes: []types.SignedRoute{},
			Errors: []string{NoProvidersMarker + ": no quote providers are configured"},
		}, nil
	}

	var plan *SwapPlan
	quoteIntent := intent
	if a.composer != nil {
		plan = a.composer.Plan(ctx, intent)
		if plan != nil {
			quoteIntent = intent.WithDestinationToken(plan.ViaMint)
		}
	}

	routes, errs := a.Collect(ctx, quoteIntent)

	if plan != nil && len(routes) > 0 {
		composition, err := a.composer.Resolve(ctx, intent, plan, routes[0].EstimatedOutput.Amount)
		if err != nil {
			a.logger.Warn("destination swap rate unavailable",
				zap.String("via", plan.ViaMint),
				zap.String("destination", intent.DestinationToken),
				zap.Error(err))
			errs = append(errs, fmt.Sprintf("%s: %v", provider.NameJupiter, err))
			routes = nil
		} else {
			routes = Compose(routes, composition)
		}
	}

	if a.injector != nil {
		routes = a.injector.Inject(ctx, intent, routes)
	}

	signed := make([]types.SignedRoute, 0, len(routes))
	for _, route := range routes {
		s, err := a.signer.Sign(route, intent, a.ttl)
		if err != nil {
			return nil, fmt.Errorf("failed to sign route %s: %w", route.Key(), err)
		}
		signed = append(signed, s)
		a.metrics.RoutesReturned.WithLabelValues(route.Provider).Inc()
	}

	return &Result{Routes: signed, Errors: errs}, nil
}

// Collect invokes every provider concurrently and merges their routes in
// completion order. It waits for all providers to settle; each provider is
// bounded by its own timeout.
func (a *Aggregator) Collect(ctx context.Context, intent types.TransferIntent) ([]types.NormalizedRoute, []string) {
	var (
		mu     sync.Mutex
		routes = []types.NormalizedRoute{}
		errs   []string
		g      errgroup.Group
	)

	for _, p := range a.providers {
		g.Go(func() error {
			started := time.Now()
			got, err := a.callProvider(ctx, p, intent)
			a.metrics.ObserveProvider(p.Name(), started, err)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				a.metrics.ProviderErrors.WithLabelValues(p.Name(), errorReason(err)).Inc()
				a.logger.Warn("provider quote failed",
					zap.String("provider", p.Name()),
					zap.Duration("elapsed", time.Since(started)),
					zap.Error(err))
				errs = append(errs, fmt.Sprintf("%s: %v", p.Name(), err))
				return nil
			}

			for _, route := range got {
				if err := normalize(p.Name(), &route); err != nil {
					errs = append(errs, fmt.Sprintf("%s: %v", p.Name(), err))
					continue
				}
				routes = append(routes, route)
			}
			return nil
		})
	}

	// Goroutines never return errors; failures are collected above.
	_ = g.Wait()
	return routes, errs
}

var errTimeout = errors.New("timed out")

type providerResult struct {
	routes []types.NormalizedRoute
	err    error
}

// callProvider runs one adapter with its own deadline. An adapter that
// ignores cancellation is abandoned; its result lands in a buffered channel.
func (a *Aggregator) callProvider(ctx context.Context, p provider.Provider, intent types.TransferIntent) ([]types.NormalizedRoute, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	done := make(chan providerResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- providerResult{err: fmt.Errorf("provider panicked: %v", r)}
			}
		}()
		routes, err := p.GetQuotes(ctx, intent)
		done <- providerResult{routes: routes, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil && errors.Is(res.err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", errTimeout, a.timeout)
		}
		return res.routes, res.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", errTimeout, a.timeout)
		}
		return nil, ctx.Err()
	}
}

// normalize enforces the route invariants on provider output
func normalize(name string, route *types.NormalizedRoute) error {
	if route.Provider == "" {
		route.Provider = name
	}
	if route.Provider != name {
		return fmt.Errorf("route claims provider %q", route.Provider)
	}
	if route.RouteID == "" {
		return errors.New("route has no id")
	}
	if len(route.Steps) == 0 && route.Action == nil {
		return fmt.Errorf("route %s has no steps", route.RouteID)
	}
	if !isAmount(route.EstimatedOutput.Amount) {
		return fmt.Errorf("route %s has invalid output amount %q", route.RouteID, route.EstimatedOutput.Amount)
	}
	for _, fee := range route.Fees {
		if !isAmount(fee.Amount) {
			return fmt.Errorf("route %s has invalid fee amount %q", route.RouteID, fee.Amount)
		}
	}
	if route.Fees == nil {
		route.Fees = []types.TokenAmount{}
	}
	return nil
}

func isAmount(s string) bool {
	n, ok := new(big.Int).SetString(s, 10)
	return ok && n.Sign() >= 0
}

func errorReason(err error) string {
	var statusErr *provider.StatusError
	switch {
	case errors.Is(err, errTimeout):
		return "timeout"
	case errors.Is(err, provider.ErrNoRoute):
		return "no_route"
	case errors.As(err, &statusErr):
		return "status"
	default:
		return "error"
	}
}
