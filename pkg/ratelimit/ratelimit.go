// Package ratelimit enforces per-caller request budgets per endpoint class.
package ratelimit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"solbridge/pkg/observability"
)

// Class groups endpoints sharing one budget
type Class string

const (
	ClassQuote   Class = "quote"
	ClassSession Class = "session"
	ClassStep    Class = "step"
	ClassStatus  Class = "status"
)

// Budget is a number of requests per window
type Budget struct {
	Max    int
	Window time.Duration
}

// DefaultBudgets returns the budget of every class
func DefaultBudgets() map[Class]Budget {
	return map[Class]Budget{
		ClassQuote:   {Max: 60, Window: time.Minute},
		ClassSession: {Max: 20, Window: time.Minute},
		ClassStep:    {Max: 60, Window: time.Minute},
		ClassStatus:  {Max: 240, Window: time.Minute},
	}
}

// Result is the outcome of one check
type Result struct {
	OK        bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter returns how long a rejected caller should wait
func (r Result) RetryAfter(now time.Time) time.Duration {
	if d := r.ResetAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// Options configures a Limiter
type Options struct {
	Budgets map[Class]Budget
	Logger  *zap.Logger
	Metrics *observability.Metrics
	Now     func() time.Time
}

// Limiter checks budgets against a shared counter and falls back to a
// per-process counter when the shared one fails.
type Limiter struct {
	primary  Counter
	fallback *MemoryCounter
	budgets  map[Class]Budget
	logger   *zap.Logger
	metrics  *observability.Metrics
	now      func() time.Time
}

// NewLimiter creates a Limiter. primary may be nil, in which case only
// the in-memory counter is used.
func NewLimiter(primary Counter, opts Options) *Limiter {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.NewMetrics("", nil)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	budgets := DefaultBudgets()
	for class, b := range opts.Budgets {
		if b.Max > 0 && b.Window > 0 {
			budgets[class] = b
		}
	}

	return &Limiter{
		primary:  primary,
		fallback: NewMemoryCounter(opts.Now),
		budgets:  budgets,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		now:      opts.Now,
	}
}

// Budget returns the configured budget of a class
func (l *Limiter) Budget(class Class) Budget {
	if b, ok := l.budgets[class]; ok {
		return b
	}
	return l.budgets[ClassQuote]
}

// Allow checks identifier against its class budget
func (l *Limiter) Allow(ctx context.Context, identifier string, class Class) Result {
	b := l.Budget(class)
	return l.Check(ctx, identifier, b.Window, b.Max, class)
}

// Check counts one request for (class, identifier). It never fails: a
// shared store error degrades to per-instance counting.
func (l *Limiter) Check(ctx context.Context, identifier string, window time.Duration, max int, class Class) Result {
	key := "ratelimit:" + string(class) + ":" + identifier

	count, ttl, err := l.incr(ctx, key, window)
	if err != nil {
		l.logger.Warn("rate limit counter unavailable, using in-memory fallback",
			zap.String("class", string(class)),
			zap.Error(err))
		l.metrics.LimiterFallback.Inc()
		count, ttl, _ = l.fallback.Incr(ctx, key, window)
	}

	remaining := max - int(count)
	if remaining < 0 {
		remaining = 0
	}
	res := Result{
		OK:        count <= int64(max),
		Limit:     max,
		Remaining: remaining,
		ResetAt:   l.now().Add(ttl),
	}
	if !res.OK {
		l.metrics.RateLimited.WithLabelValues(string(class)).Inc()
	}
	return res
}

func (l *Limiter) incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if l.primary == nil {
		return l.fallback.Incr(ctx, key, window)
	}
	return l.primary.Incr(ctx, key, window)
}
