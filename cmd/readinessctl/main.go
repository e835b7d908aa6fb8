// Package main is the entry point for the readinessctl operator CLI.
// It wires configuration, telemetry, stores and the workflow service, then
// dispatches to a subcommand.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pitabwire/readiness/internal/access"
	"github.com/pitabwire/readiness/internal/catalogue"
	"github.com/pitabwire/readiness/internal/config"
	"github.com/pitabwire/readiness/internal/observability"
	"github.com/pitabwire/readiness/internal/resilience"
	"github.com/pitabwire/readiness/internal/transform"
	"github.com/pitabwire/readiness/internal/workflow"
	"github.com/pitabwire/readiness/model"
)

// Build-time variables set via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc1234"
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	// Step 1: Parse global flags.
	fs := flag.NewFlagSet("readinessctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to configuration file (defaults only when empty)")
	metricsFile := fs.String("metrics-file", "", "write Prometheus metrics to this textfile on exit")
	traceparent := fs.String("traceparent", "", "W3C traceparent to continue")
	seedFile := fs.String("seed", "", "JSON array of submissions to load into the memory store")
	fs.Usage = func() { usage(fs) }
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}
	cmd, ok := commands[fs.Arg(0)]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n", fs.Arg(0))
		fs.Usage()
		return 2
	}

	// Step 2: Load configuration.
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "configuration error: %v\n", err)
		return 1
	}

	// Step 3: Initialize telemetry (logger, tracer, metrics).
	observability.Version = version
	observability.Commit = commit

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		fmt.Fprintf(stderr, "logger error: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tracingShutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, "readinessctl", version)
	if err != nil {
		logger.Error("tracing initialization failed", zap.Error(err))
		return 1
	}
	defer func() {
		if err := tracingShutdown(context.Background()); err != nil {
			logger.Error("tracing shutdown error", zap.Error(err))
		}
	}()

	registry := prometheus.NewRegistry()
	var metrics *observability.Metrics
	if cfg.Observability.Metrics.Enabled {
		metrics = observability.InitMetrics(registry)
	}
	if *metricsFile != "" {
		defer func() {
			if err := observability.WriteTextfile(*metricsFile, registry); err != nil {
				logger.Error("writing metrics textfile failed", zap.Error(err))
			}
		}()
	}

	ctx = observability.ContextWithTraceparent(ctx, *traceparent)
	ctx = observability.WithLogger(ctx, logger)

	// Step 4: Wire the workflow service.
	a, err := newApp(ctx, cfg, logger, metrics, cmd.needsStore)
	if err != nil {
		logger.Error("initialization failed", zap.Error(err))
		return 1
	}
	defer a.close()
	a.stdout = stdout
	a.stderr = stderr

	if *seedFile != "" {
		if err := a.seed(ctx, *seedFile); err != nil {
			logger.Error("seeding store failed", zap.Error(err))
			return 1
		}
	}

	// Step 5: Dispatch.
	if err := cmd.run(ctx, a, fs.Args()[1:]); err != nil {
		a.printError(ctx, err)
		if err == flag.ErrHelp {
			return 0
		}
		return 1
	}
	return 0
}

func usage(fs *flag.FlagSet) {
	out := fs.Output()
	fmt.Fprintln(out, "usage: readinessctl [global flags] <command> [flags]")
	fmt.Fprintln(out, "\ncommands:")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(out, "  %-11s %s\n", name, commands[name].summary)
	}
	fmt.Fprintln(out, "\nglobal flags:")
	fs.PrintDefaults()
}

// app holds the wired dependencies shared by subcommands.
type app struct {
	cfg         *config.Config
	logger      *zap.Logger
	metrics     *observability.Metrics
	catalogue   *catalogue.Catalogue
	policy      *access.Policy
	transformer *transform.Transformer
	engine      *workflow.Engine
	store       workflow.SubmissionStore
	idempotency workflow.IdempotencyStore
	service     *workflow.Service

	stdout, stderr io.Writer
	closers        []func()
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, metrics *observability.Metrics, needsStore bool) (*app, error) {
	a := &app{cfg: cfg, logger: logger, metrics: metrics, stdout: os.Stdout, stderr: os.Stderr}

	cat, err := buildCatalogue(cfg.Catalogue)
	if err != nil {
		return nil, err
	}
	a.catalogue = cat
	logger.Debug("catalogue loaded",
		zap.String("source", cat.Source()),
		zap.String("checksum", cat.Checksum()),
		zap.Int("indicators", cat.Len()),
	)

	a.policy, err = buildPolicy(cfg.Access)
	if err != nil {
		return nil, err
	}
	a.transformer = transform.New(cat,
		transform.WithUnknownFieldPolicy(transform.UnknownFieldPolicy(cfg.Catalogue.UnknownFields)),
		transform.WithMaxDetailItems(cfg.Catalogue.MaxDetailItems),
	)
	a.engine = workflow.NewEngine(workflow.WithReadAccess(a.policy))

	if needsStore {
		store, closer, err := buildSubmissionStore(ctx, cfg.Store, logger)
		if err != nil {
			a.close()
			return nil, err
		}
		a.store = store
		a.addCloser(closer)

		idem, closer, err := buildIdempotencyStore(ctx, cfg.Idempotency, logger)
		if err != nil {
			a.close()
			return nil, err
		}
		a.idempotency = idem
		a.addCloser(closer)
	} else {
		a.store = workflow.NewMemorySubmissionStore()
	}

	opts := []workflow.ServiceOption{
		workflow.WithMetrics(metrics),
		workflow.WithLogger(logger),
	}
	if a.idempotency != nil {
		opts = append(opts, workflow.WithIdempotency(a.idempotency, cfg.Idempotency.DefaultTTL))
	}
	a.service = workflow.NewService(a.engine, a.store, a.transformer, a.policy, opts...)
	return a, nil
}

func (a *app) addCloser(fn func()) {
	if fn != nil {
		a.closers = append(a.closers, fn)
	}
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// seed loads submissions into an in-memory store so stateless invocations
// can exercise transitions and listing.
func (a *app) seed(ctx context.Context, path string) error {
	mem, ok := a.store.(*workflow.MemorySubmissionStore)
	if !ok {
		return fmt.Errorf("-seed requires the memory store driver, configured %q", a.cfg.Store.Driver)
	}
	var subs []model.Submission
	if err := readJSON(path, &subs); err != nil {
		return err
	}
	for _, sub := range subs {
		if sub.Version == 0 {
			sub.Version = 1
		}
		if err := mem.Create(ctx, sub); err != nil {
			return fmt.Errorf("seed %s: %w", sub.ID, err)
		}
	}
	a.logger.Debug("seeded memory store", zap.Int("submissions", len(subs)))
	return nil
}

// buildCatalogue loads the override file when configured, otherwise the
// embedded catalogue.
func buildCatalogue(cfg config.CatalogueConfig) (*catalogue.Catalogue, error) {
	if cfg.File == "" {
		return catalogue.Default()
	}
	cat, err := catalogue.Load(cfg.File)
	if err != nil {
		return nil, fmt.Errorf("catalogue: %w", err)
	}
	return cat, nil
}

// buildPolicy creates the role visibility policy from the default table or
// an override file.
func buildPolicy(cfg config.AccessConfig) (*access.Policy, error) {
	opt := access.WithUnknownRolePolicy(access.UnknownRolePolicy(cfg.UnknownRole))
	if cfg.PolicyFile == "" {
		return access.New(opt), nil
	}
	policy, err := access.NewFromFile(cfg.PolicyFile, opt)
	if err != nil {
		return nil, fmt.Errorf("access policy: %w", err)
	}
	return policy, nil
}

// buildSubmissionStore creates the submission store based on config.
func buildSubmissionStore(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (workflow.SubmissionStore, func(), error) {
	switch cfg.Driver {
	case "memory", "":
		logger.Info("using in-memory submission store")
		return workflow.NewMemorySubmissionStore(), nil, nil
	case "postgres":
		dsn := os.Getenv(cfg.DSNEnv)
		if dsn == "" {
			return nil, nil, fmt.Errorf("submission store: %s environment variable not set", cfg.DSNEnv)
		}

		poolCfg, err := pgxpool.ParseConfig(dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("submission store: parse DSN: %w", err)
		}
		poolCfg.MaxConns = cfg.MaxConns
		poolCfg.MinConns = cfg.MinConns
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime

		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("submission store: connect: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("submission store: ping: %w", err)
		}

		store := workflow.NewPgSubmissionStore(pool)
		if cfg.Migrate {
			if err := store.Migrate(ctx); err != nil {
				pool.Close()
				return nil, nil, fmt.Errorf("submission store: %w", err)
			}
			logger.Info("submission store schema migrated")
		}
		return store, pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported submission store driver: %q", cfg.Driver)
	}
}

// buildIdempotencyStore creates the idempotency store based on config.
// Returns a nil store when de-duplication is disabled.
func buildIdempotencyStore(ctx context.Context, cfg config.IdempotencyConfig, logger *zap.Logger) (workflow.IdempotencyStore, func(), error) {
	if !cfg.Enabled {
		return nil, nil, nil
	}

	switch cfg.Driver {
	case "memory", "":
		logger.Info("using in-memory idempotency store")
		return workflow.NewMemoryIdempotencyStore(), nil, nil
	case "redis":
		addr := os.Getenv(cfg.AddrEnv)
		if addr == "" {
			return nil, nil, fmt.Errorf("idempotency store: %s environment variable not set", cfg.AddrEnv)
		}
		client := redis.NewClient(&redis.Options{Addr: addr, DB: cfg.DB})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("idempotency store: ping: %w", err)
		}
		breaker := resilience.NewBreaker(resilience.Settings{
			FailureThreshold: cfg.Breaker.FailureThreshold,
			SuccessThreshold: cfg.Breaker.SuccessThreshold,
			Cooldown:         cfg.Breaker.Cooldown,
		})
		store := workflow.NewGuardedIdempotencyStore(workflow.NewRedisIdempotencyStore(client), breaker)
		return store, func() { _ = client.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported idempotency store driver: %q", cfg.Driver)
	}
}
