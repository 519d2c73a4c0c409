package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/refdata/internal/api"
	"github.com/hyperengineering/refdata/internal/archive"
	"github.com/hyperengineering/refdata/internal/cache"
	"github.com/hyperengineering/refdata/internal/config"
	"github.com/hyperengineering/refdata/internal/query"
	"github.com/hyperengineering/refdata/internal/store"
	"github.com/hyperengineering/refdata/internal/syncer"
	"github.com/hyperengineering/refdata/internal/worker"
)

// Version is set at build time via ldflags: -ldflags "-X main.Version=1.0.0"
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:          "refdata",
	Short:        "Refdata - reference data sync and read service",
	Long:         "Runs the refdata HTTP server. Subcommands manage the database and talk to a running server.",
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "url", "",
		"Server base URL for remote commands (overrides REFDATA_URL)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false,
		"Output in JSON format")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(pushCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(tablesCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(historyCmd)
}

func run(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	slog.SetDefault(newLogger(os.Stdout, cfg.Log))
	slog.Info("configuration loaded", "level", cfg.Log.Level, "format", cfg.Log.Format)

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      a.router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout),
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout),
	}

	var wg sync.WaitGroup
	a.startWorkers(ctx, &wg)

	go func() {
		slog.Info("server starting", "address", addr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutdown initiated")

	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout))
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	wg.Wait()

	if err := a.Close(); err != nil {
		slog.Error("store close error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

// app holds the wired service components.
type app struct {
	store    *store.SQLStore
	cache    *cache.Coordinator
	syncer   *syncer.Service
	router   http.Handler
	queue    *archive.Queue
	uploader archive.Uploader

	sweepInterval time.Duration
}

// newApp opens the store, runs migrations and wires the cache, syncer,
// archive queue and router. The archive queue is nil when no bucket is
// configured.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	s, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	slog.Info("store initialized", "driver", s.Dialect().Name)

	provider, err := cache.NewProvider(cfg.Cache.Backend, s, cfg.Cache.MaxEntries)
	if err != nil {
		s.Close()
		return nil, err
	}
	coord := cache.New(provider)
	slog.Info("cache initialized", "provider", provider.Name())

	uploader, err := archive.NewUploader(cfg.Archive)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("archive: %w", err)
	}

	opts := []syncer.Option{syncer.WithSyncLog(s)}
	var queue *archive.Queue
	if cfg.Archive.Bucket != "" {
		queue = archive.NewQueue(cfg.Archive.QueueSize)
		opts = append(opts, syncer.WithArchiver(queue))
		slog.Info("archive enabled", "bucket", cfg.Archive.Bucket, "prefix", cfg.Archive.Prefix)
	}
	sy := syncer.NewService(s, coord, opts...)

	h := api.NewHandler(s, sy, query.NewService(s), coord, cfg.Cache.TTL, Version)
	router := api.NewRouter(h, api.RouterOptions{
		RequestTimeout: time.Duration(cfg.Server.RequestTimeout),
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
	})
	slog.Info("router initialized")

	return &app{
		store:         s,
		cache:         coord,
		syncer:        sy,
		router:        router,
		queue:         queue,
		uploader:      uploader,
		sweepInterval: time.Duration(cfg.Cache.SweepInterval),
	}, nil
}

// startWorkers launches the cache janitor and, when archiving is enabled,
// the archive worker.
func (a *app) startWorkers(ctx context.Context, wg *sync.WaitGroup) {
	if a.sweepInterval > 0 {
		startWorker(ctx, wg, "cache-janitor", worker.NewCacheJanitor(a.cache, a.sweepInterval).Run)
	}
	if a.queue != nil {
		startWorker(ctx, wg, "archive", worker.NewArchiveWorker(a.queue.Jobs(), a.uploader, 0).Run)
	}
}

// Close releases the store.
func (a *app) Close() error {
	return a.store.Close()
}

// openStore connects to the configured database and applies migrations.
func openStore(ctx context.Context, cfg *config.Config) (*store.SQLStore, error) {
	return store.Open(ctx, store.Options{
		Driver:       cfg.Database.Driver,
		Path:         cfg.Database.Path,
		DSN:          cfg.Database.DSN,
		BatchSize:    cfg.Sync.BatchSize,
		MaxOpenConns: cfg.Database.MaxOpenConns,
	})
}

// newLogger builds the process logger from the log section.
func newLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// startWorker launches a background worker goroutine that respects context cancellation.
// Workers are tracked via WaitGroup for graceful shutdown.
func startWorker(ctx context.Context, wg *sync.WaitGroup, name string, fn func(ctx context.Context)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("worker started", "worker", name)
		fn(ctx)
		slog.Info("worker stopped", "worker", name)
	}()
}
