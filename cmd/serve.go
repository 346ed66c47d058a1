package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexliesenfeld/health"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"solbridge/config"
	"solbridge/pkg/aggregator"
	"solbridge/pkg/api"
	"solbridge/pkg/finality"
	"solbridge/pkg/integrity"
	"solbridge/pkg/logging"
	"solbridge/pkg/observability"
	"solbridge/pkg/policy"
	"solbridge/pkg/ratelimit"
	"solbridge/pkg/registry"
	"solbridge/pkg/session"
	"solbridge/pkg/sessionauth"
	"solbridge/pkg/storage/postgres"
	"solbridge/pkg/types"
)

const (
	shutdownTimeout  = 15 * time.Second
	registryCacheTTL = 5 * time.Minute
	registryCacheLen = 4096
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the quote and execution-session API server",
	Long: `Start the HTTP server exposing quotes, execution sessions, health and metrics.

Configuration comes from .solbridge.yaml and SOLBRIDGE_* environment variables.
Without postgres_dsn project tokens are kept in memory and sessions in memory or
in session_file. Without redis_url rate limits are counted per instance.

Examples:
  solbridge serve
  SOLBRIDGE_LISTEN_ADDR=:9000 SOLBRIDGE_REDIS_URL=redis://localhost:6379/0 solbridge serve`,
	Run: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) {
	cfg, err := config.Load()
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		printError(err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.IsProduction())
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg, logger); err != nil {
		logger.Error("server exited with error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics("solbridge", reg)

	var checks []health.Check
	var cleanups []func()
	defer func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}()

	signer, err := integrity.NewSigner([]byte(cfg.RouteSigningSecret), integrity.Options{
		AllowEphemeralKey: !cfg.IsProduction(),
		Logger:            logger.Named("integrity"),
	})
	if err != nil {
		return fmt.Errorf("failed to create route signer: %w", err)
	}

	auth, err := sessionauth.NewAuthority([]byte(cfg.SessionSigningSecret), sessionauth.Options{
		AllowEphemeralKey: !cfg.IsProduction(),
		Logger:            logger.Named("sessionauth"),
	})
	if err != nil {
		return fmt.Errorf("failed to create session authority: %w", err)
	}

	providers, err := buildProviders(cfg)
	if err != nil {
		return err
	}

	// Storage
	var (
		store  session.Store
		tokens registry.Registry
	)
	if cfg.PostgresDSN != "" {
		pool, err := postgres.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return err
		}
		cleanups = append(cleanups, pool.Close)
		if err := pool.Migrate(ctx); err != nil {
			return err
		}
		store = postgres.NewSessionStore(pool)
		tokens = postgres.NewTokenRegistry(pool)
		checks = append(checks, health.Check{Name: "postgres", Check: pool.Ping})
		logger.Info("using postgres storage")
	} else {
		tokens = registry.NewMemoryRegistry()
		if cfg.SessionFile != "" {
			fileStore, err := session.NewFileStore(cfg.SessionFile)
			if err != nil {
				return err
			}
			store = fileStore
			logger.Info("using file session storage", zap.String("path", cfg.SessionFile))
		} else {
			store = session.NewMemoryStore()
			logger.Warn("postgres_dsn not set, sessions and project tokens are kept in memory")
		}
	}
	tokens = registry.NewCachedRegistry(tokens, registryCacheLen, registryCacheTTL)

	// Rate limiting
	var counter ratelimit.Counter
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("invalid redis_url: %w", err)
		}
		rdb := redis.NewClient(opts)
		cleanups = append(cleanups, func() { _ = rdb.Close() })
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unavailable, rate limits fall back to in-memory counting", zap.Error(err))
		}
		counter = ratelimit.NewRedisCounter(rdb)
		checks = append(checks, health.Check{
			Name:  "redis",
			Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		})
	}
	budgets := make(map[ratelimit.Class]ratelimit.Budget)
	for class, b := range cfg.RateLimits {
		budgets[ratelimit.Class(class)] = ratelimit.Budget{Max: b.Max, Window: b.Window}
	}
	limiter := ratelimit.NewLimiter(counter, ratelimit.Options{
		Budgets: budgets,
		Logger:  logger.Named("ratelimit"),
		Metrics: metrics,
	})

	// Finality
	checkers := finality.Set{}
	if cfg.Solana.RPCUrl != "" {
		checkers[types.ChainSolana] = finality.DialSolana(cfg.Solana.RPCUrl, cfg.Solana.Commitment)
	}
	if len(cfg.EVM.RPCUrls) > 0 {
		evm, err := finality.DialEVM(ctx, cfg.EVM.RPCUrls, cfg.EVM.Confirmations)
		if err != nil {
			return err
		}
		cleanups = append(cleanups, evm.Close)
		checkers[types.ChainEVM] = evm
	}
	if len(checkers) == 0 {
		logger.Warn("no finality RPC configured, step confirmations are trusted as reported")
	}

	gate := policy.NewGate(cfg.Environment, cfg.AllowUnverifiedChains)
	if gate.AllowUnverified {
		logger.Warn("execution enabled for chains without server-side finality verification")
	}

	agg := aggregator.New(providers.registry.Providers(), signer, aggregator.Options{
		ProviderTimeout: cfg.ProviderTimeout,
		QuoteTTL:        cfg.QuoteTTL,
		Injector:        aggregator.NewInjector(tokens, logger.Named("injector")),
		Composer:        aggregator.NewComposer(tokens, providers.jupiter, logger.Named("composer")),
		Logger:          logger.Named("aggregator"),
		Metrics:         metrics,
	})

	manager := session.NewManager(store, signer, gate, providers.registry, session.Options{
		Finality: checkers,
		Logger:   logger.Named("session"),
		Metrics:  metrics,
	})

	srv, err := api.New(api.Config{
		Quoter:         agg,
		Sessions:       manager,
		Auth:           auth,
		Limiter:        limiter,
		Metrics:        metrics,
		Logger:         logger.Named("api"),
		Production:     cfg.IsProduction(),
		CORSOrigins:    cfg.CORSOrigins,
		TrustedProxies: cfg.TrustedProxies,
		HealthChecks:   checks,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errGroup, ctx := errgroup.WithContext(ctx)
	errGroup.Go(func() error {
		logger.Info("starting server",
			zap.String("addr", cfg.ListenAddr),
			zap.String("environment", cfg.Environment),
			zap.Strings("providers", providers.registry.Names()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	})
	errGroup.Go(func() error {
		// Graceful shutdown
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return errGroup.Wait()
}
