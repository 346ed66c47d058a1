// Package api serves the quote and execution-session HTTP surface.
package api

import (
	"context"
	"fmt"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/alexliesenfeld/health"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"solbridge/pkg/aggregator"
	"solbridge/pkg/observability"
	"solbridge/pkg/ratelimit"
	"solbridge/pkg/session"
	"solbridge/pkg/sessionauth"
	"solbridge/pkg/types"
)

// maxBodyBytes caps every request body
const maxBodyBytes = 1 << 20

// Quoter produces signed routes for an intent
type Quoter interface {
	Quote(ctx context.Context, intent types.TransferIntent) (*aggregator.Result, error)
}

// Config wires a Server
type Config struct {
	Quoter         Quoter
	Sessions       *session.Manager
	Auth           *sessionauth.Authority
	Limiter        *ratelimit.Limiter
	Metrics        *observability.Metrics
	Logger         *zap.Logger
	Production     bool
	CORSOrigins    []string
	TrustedProxies []string
	HealthChecks   []health.Check
	Now            func() time.Time
}

// Server is the HTTP front of the engine
type Server struct {
	quoter     Quoter
	sessions   *session.Manager
	auth       *sessionauth.Authority
	limiter    *ratelimit.Limiter
	metrics    *observability.Metrics
	logger     *zap.Logger
	production bool
	trusted    []netip.Prefix
	now        func() time.Time
	handler    http.Handler
}

// New creates a Server
func New(cfg Config) (*Server, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observability.NewMetrics("", nil)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Limiter == nil {
		cfg.Limiter = ratelimit.NewLimiter(nil, ratelimit.Options{Logger: cfg.Logger, Metrics: cfg.Metrics, Now: cfg.Now})
	}

	trusted, err := parseProxies(cfg.TrustedProxies)
	if err != nil {
		return nil, err
	}

	s := &Server{
		quoter:     cfg.Quoter,
		sessions:   cfg.Sessions,
		auth:       cfg.Auth,
		limiter:    cfg.Limiter,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
		production: cfg.Production,
		trusted:    trusted,
		now:        cfg.Now,
	}
	s.handler = s.routes(cfg)
	return s, nil
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes(cfg Config) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.observe)

	opts := []health.CheckerOption{health.WithTimeout(5 * time.Second)}
	for _, check := range cfg.HealthChecks {
		opts = append(opts, health.WithCheck(check))
	}
	r.Method(http.MethodGet, "/health", health.NewHandler(health.NewChecker(opts...)))
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route("/api", func(api chi.Router) {
		api.Use(middleware.RequestSize(maxBodyBytes))

		api.With(s.limit(ratelimit.ClassQuote)).Post("/quote", s.handleQuote)
		api.With(s.limit(ratelimit.ClassSession)).Post("/sessions", s.handleCreateSession)
		api.Route("/sessions/{sessionID}", func(sr chi.Router) {
			sr.With(s.limit(ratelimit.ClassStatus)).Get("/", s.handleStatus)
			sr.With(s.limit(ratelimit.ClassSession)).Post("/challenge", s.handleChallenge)
			sr.With(s.limit(ratelimit.ClassStep)).Post("/step", s.handleStep)
		})
	})

	return cors.New(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		ExposedHeaders: []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
	}).Handler(r)
}

// parseProxies accepts bare addresses and CIDR prefixes
func parseProxies(entries []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(entries))
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if strings.Contains(e, "/") {
			p, err := netip.ParsePrefix(e)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted proxy %q: %w", e, err)
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(e)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", e, err)
		}
		out = append(out, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
	}
	return out, nil
}
