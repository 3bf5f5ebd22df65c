package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/frolic/frolicsim/internal/attempt"
	"github.com/frolic/frolicsim/internal/budget"
	"github.com/frolic/frolicsim/internal/config"
	"github.com/frolic/frolicsim/internal/events"
	"github.com/frolic/frolicsim/internal/jitter"
	"github.com/frolic/frolicsim/internal/output"
	"github.com/frolic/frolicsim/internal/platform"
	"github.com/frolic/frolicsim/internal/roster"
	"github.com/frolic/frolicsim/internal/runlock"
	"github.com/frolic/frolicsim/internal/scheduler"
	"github.com/frolic/frolicsim/internal/stats"
	"github.com/frolic/frolicsim/internal/statusserver"
	"github.com/frolic/frolicsim/internal/tracing"
)

const (
	progressInterval   = time.Second
	healthCheckTimeout = 5 * time.Second
	setupTimeout       = 30 * time.Second
	reconcileTimeout   = 30 * time.Second
	shutdownTimeout    = 5 * time.Second
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	return execute(ctx, args, os.Stdout, os.Stderr)
}

// execute performs one harness run. Only a failed setup or a failed budget
// reconciliation returns an error; per-attempt failures end up in the report.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cfg, err := config.NewLoader().Load(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return nil
		}
		return err
	}
	cfg.ApplyPreset()
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel, cfg.LogFormat, stderr)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	for _, w := range cfg.Warnings() {
		logger.Warn(w)
	}

	release, err := runlock.Acquire(cfg.LockFile)
	if err != nil {
		return err
	}
	defer func() { _ = release() }()

	runID := ulid.Make().String()
	tp, err := tracing.Init(ctx, cfg.Tracing,
		tracing.AttrRunID.String(runID),
		tracing.AttrPolicy.String(string(cfg.Policy)),
	)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(sctx); err != nil {
			logger.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	client := platform.NewClient(cfg.BaseURL, cfg.AttemptTimeout,
		platform.WithHealthURL(cfg.HealthURL),
		platform.WithTracer(tp.Tracer(), tp.ShouldPropagate()),
	)
	if !cfg.SkipHealthCheck {
		hctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
		err := client.Health(hctx)
		cancel()
		if err != nil {
			return fmt.Errorf("platform health check: %w", err)
		}
	}

	users, ledger, err := loadInputs(cfg, logger)
	if err != nil {
		return err
	}

	games := scheduler.NewEligibilityCache(client, cfg.EligibilityRefresh, logger)
	setupCtx, cancelSetup := context.WithTimeout(ctx, setupTimeout)
	defer cancelSetup()
	if err := games.Refresh(setupCtx); err != nil {
		return fmt.Errorf("list active games: %w", err)
	}
	for _, g := range games.Eligible(setupCtx, false) {
		ledger.NameGame(g.ID, g.Name)
	}
	if cfg.Budgets.PostgresDSN != "" {
		if err := loadBudgets(setupCtx, cfg.Budgets.PostgresDSN, ledger, games.Eligible(setupCtx, false), logger); err != nil {
			return err
		}
	}

	logger = logger.With(zap.String("run_id", runID))

	agg := stats.NewAggregator()
	rnd := jitter.New(cfg.Seed)

	var sink attempt.Sink
	if cfg.Kafka.Enabled() {
		ks, err := events.NewKafkaSink(events.KafkaConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
			RunID:   runID,
		}, logger)
		if err != nil {
			return err
		}
		defer func() { _ = ks.Close() }()
		sink = ks
	}

	exec, err := attempt.New(attempt.Options{
		Platform:     client,
		Stats:        agg,
		ResolveDelay: jitter.Window(cfg.ResolveDelay),
		Jitter:       rnd,
		Logger:       logger,
		Tracer:       tp.Tracer(),
		Sink:         sink,
	})
	if err != nil {
		return err
	}

	sched, err := scheduler.New(scheduler.Options{
		Policy:         scheduler.Policy(cfg.Policy),
		Waves:          cfg.Waves,
		WaveSize:       cfg.WaveSize,
		Concurrency:    cfg.Concurrency,
		Duration:       cfg.Duration,
		Total:          cfg.Total,
		DrainTimeout:   cfg.DrainTimeout,
		AttemptTimeout: cfg.AttemptTimeout,
		PollInterval:   cfg.PollInterval,
		Stagger:        jitter.Window(cfg.Stagger),
		WavePause:      jitter.Window(cfg.WavePause),
		LaunchRate:     cfg.LaunchRate,
		Jitter:         rnd,
		Users:          users,
		Games:          games,
		Executor:       exec,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	if cfg.StatusAddr != "" {
		srv := statusserver.New(statusserver.Options{
			RunID:  runID,
			Policy: string(cfg.Policy),
			Stats:  agg,
			Run:    sched,
			Logger: logger,
		})
		if _, err := srv.Start(cfg.StatusAddr); err != nil {
			return fmt.Errorf("status server: %w", err)
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	var progress *output.ProgressReporter
	if cfg.Progress && !cfg.JSONOutput {
		progress = output.NewProgressReporter(agg, sched, progressInterval, stdout)
		progress.Start()
	}

	logger.Info("run starting",
		zap.String("policy", string(cfg.Policy)),
		zap.Int("users", len(users)),
		zap.Int("budget_pairs", ledger.Len()),
	)
	result := sched.Run(ctx)
	if progress != nil {
		progress.Stop()
	}

	sum := output.Summary{
		RunID: runID,
		Run:   result,
		Stats: agg.Snapshot(),
	}
	reconcileErr := reconcile(cfg, ledger, &sum, logger)

	if cfg.JSONOutput {
		if err := output.PrintJSONReport(stdout, sum); err != nil {
			return err
		}
	} else {
		output.PrintReport(stdout, sum)
	}

	if reconcileErr != nil {
		return fmt.Errorf("budget reconciliation: %w", reconcileErr)
	}
	return nil
}

// loadInputs resolves the user roster and seeds the ledger from the users file.
func loadInputs(cfg *config.Config, logger *zap.Logger) ([]string, *budget.Ledger, error) {
	r, err := roster.Load(cfg.UsersFile)
	if err != nil {
		return nil, nil, err
	}
	users, err := r.Users(cfg.Users...)
	if err != nil {
		return nil, nil, err
	}
	ledger := budget.NewLedger()
	if dups := r.Seed(ledger); len(dups) > 0 {
		logger.Warn("duplicate budget pairs in users file, last entry wins", zap.Strings("keys", dups))
	}
	return users, ledger, nil
}

func loadBudgets(ctx context.Context, dsn string, ledger *budget.Ledger, games []platform.Game, logger *zap.Logger) error {
	db, err := budget.OpenPostgres(ctx, dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	ids := make([]string, 0, len(games))
	for _, g := range games {
		ids = append(ids, g.ID)
	}
	n, err := budget.NewPostgresSource(db).Load(ctx, ledger, ids)
	if err != nil {
		return fmt.Errorf("load budgets: %w", err)
	}
	logger.Info("initial budgets loaded", zap.Int("pairs", n), zap.Int("games", len(ids)))
	return nil
}

// reconcile fills sum.Budget. It runs on a fresh context so an interrupted
// run still gets its reconciliation.
func reconcile(cfg *config.Config, ledger *budget.Ledger, sum *output.Summary, logger *zap.Logger) error {
	if cfg.Redis.Disabled {
		return nil
	}
	if ledger.Len() == 0 {
		rep := ledger.Report()
		sum.Budget = &rep
		return nil
	}

	store := budget.NewRedisStore(budget.RedisOptions{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() { _ = store.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), reconcileTimeout)
	defer cancel()
	err := ledger.Reconcile(ctx, store)
	rep := ledger.Report()
	sum.Budget = &rep
	if err != nil {
		sum.ReconcileError = err.Error()
		logger.Error("budget reconciliation failed", zap.Error(err))
		return err
	}
	if rep.Violations > 0 {
		logger.Warn("budget invariant violated: final exceeds initial", zap.Int("pairs", rep.Violations))
	}
	return nil
}
