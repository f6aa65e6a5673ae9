package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/helperd/internal/catalogue"
	"github.com/nextlevelbuilder/helperd/internal/config"
	"github.com/nextlevelbuilder/helperd/internal/directory"
	"github.com/nextlevelbuilder/helperd/internal/dispatch"
	"github.com/nextlevelbuilder/helperd/internal/gateway"
	"github.com/nextlevelbuilder/helperd/internal/helper"
	"github.com/nextlevelbuilder/helperd/internal/helper/builtin"
	"github.com/nextlevelbuilder/helperd/internal/planner"
	"github.com/nextlevelbuilder/helperd/internal/queue"
	"github.com/nextlevelbuilder/helperd/internal/store"
	"github.com/nextlevelbuilder/helperd/internal/store/memory"
	redisstore "github.com/nextlevelbuilder/helperd/internal/store/redis"
	"github.com/nextlevelbuilder/helperd/internal/tracing"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the execution engine",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

// openStore connects the scheduling store. The memory:// scheme backs
// standalone dev runs without a Redis.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if cfg.RedisURL == "memory://" {
		slog.Warn("using in-memory scheduling store, state is not persistent")
		return memory.New(), nil
	}
	return redisstore.Connect(ctx, cfg.RedisURL)
}

func openDirectory(ctx context.Context, cfg *config.Config, st store.Store) (directory.Directory, func(), error) {
	if cfg.DirectoryDSN == "" {
		slog.Info("using static user directory", "users", len(cfg.SeedUsers))
		return directory.NewStatic(cfg.SeedUsers...), func() {}, nil
	}
	pg, err := directory.OpenPG(ctx, cfg.DirectoryDSN)
	if err != nil {
		return nil, nil, err
	}
	return directory.NewCached(pg, st), func() { pg.Close() }, nil
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	setLogLevel(cfg.LogLevel)

	bootCtx, cancelBoot := context.WithTimeout(ctx, 30*time.Second)
	defer cancelBoot()

	st, err := openStore(bootCtx, cfg)
	if err != nil {
		return fmt.Errorf("scheduling store: %w", err)
	}
	defer st.Close()

	dir, closeDir, err := openDirectory(bootCtx, cfg, st)
	if err != nil {
		return fmt.Errorf("user directory: %w", err)
	}
	defer closeDir()

	// Catalogue boot: drop stale entries, then register the compiled-in
	// helpers so store and binary agree byte for byte.
	cat := catalogue.New(st)
	registry := helper.NewRegistry()
	if err := cat.Clear(bootCtx); err != nil {
		return fmt.Errorf("catalogue clear: %w", err)
	}
	for _, h := range builtin.All() {
		if err := registry.Register(h); err != nil {
			return err
		}
		if err := cat.Register(bootCtx, h.Definition()); err != nil {
			return fmt.Errorf("catalogue register: %w", err)
		}
	}

	spans := tracing.NewCollector()
	initOTelExporter(ctx, cfg, spans)
	spans.Start()
	defer spans.Stop()

	q := queue.New(st)
	plan := planner.New(q, cat, dir, cfg.Lookahead())
	if err := plan.BuildInitial(bootCtx, time.Now()); err != nil {
		return fmt.Errorf("initial planning: %w", err)
	}

	planSvc := planner.NewService(plan, cfg.ExpansionInterval(), cfg.Retention())
	planSvc.Start()
	defer planSvc.Stop()

	executor := dispatch.NewExecutor(q, cfg.ExecutorConcurrency, spans)
	dispatcher := dispatch.NewDispatcher(q, registry, dir, executor, helper.Deps{Store: st})
	dispatcher.Start()
	defer dispatcher.Stop()

	limiter := gateway.NewRateLimiter(cfg.RateLimitRPM, cfg.RateLimitBurst)
	srv := gateway.NewServer(cfg.ListenAddr, gateway.Options{
		Catalogue: cat,
		Queue:     q,
		Directory: dir,
		Auth:      gateway.NewAuthenticator(cfg.JWTSecret, 0),
		Limiter:   limiter,
		Replanner: planSvc,
		Spans:     spans,
	})

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Start() }()

	startConfigWatcher(limiter)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		return err
	case s := <-sig:
		slog.Info("shutting down", "signal", s)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("gateway shutdown incomplete", "error", err)
	}
	return nil
}

// startConfigWatcher hot-applies the reloadable settings. Watcher setup
// failures are logged, not fatal; the engine runs with the boot config.
func startConfigWatcher(limiter *gateway.RateLimiter) {
	if _, err := os.Stat(configPath); err != nil {
		return
	}
	w, err := config.NewWatcher(configPath)
	if err != nil {
		slog.Warn("config watcher unavailable", "error", err)
		return
	}
	w.OnChange(func(cfg *config.Config) {
		setLogLevel(cfg.LogLevel)
		limiter.SetRPM(cfg.RateLimitRPM)
		slog.Info("hot-applied config", "logLevel", cfg.LogLevel, "rateLimitRpm", cfg.RateLimitRPM)
	})
	if err := w.Start(); err != nil {
		slog.Warn("config watcher failed to start", "error", err)
	}
}
