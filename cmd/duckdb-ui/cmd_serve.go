package main

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/virusdefender/duckdb-ui/internal/config"
	"github.com/virusdefender/duckdb-ui/internal/engine"
	"github.com/virusdefender/duckdb-ui/internal/engine/sqlite"
	"github.com/virusdefender/duckdb-ui/internal/logging"
	"github.com/virusdefender/duckdb-ui/internal/metrics"
	"github.com/virusdefender/duckdb-ui/internal/mock"
	"github.com/virusdefender/duckdb-ui/internal/server"
)

var (
	dbPath   string
	mockMode bool
)

func init() {
	serveCmd.Flags().StringVar(&dbPath, "db", "", "database file (default from config)")
	serveCmd.Flags().BoolVar(&mockMode, "mock", false, "serve a scripted in-memory engine with simulated catalog activity")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the UI server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}
	logger, err := logging.New(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if running, err := server.ProbeRunning(ctx, cfg.Server.Port); err == nil && running != nil {
		logger.Info().Str("url", running.URL).Msg("UI server already running")
		return nil
	}

	var (
		db  engine.Database
		gen *mock.Generator
	)
	if mockMode {
		mdb := mock.NewDatabase()
		gen = mock.NewGenerator(mdb, clock.WallClock, 2*time.Second, logger)
		db = mdb
		logger.Info().Msg("starting in mock mode")
	} else {
		db, err = sqlite.Open(ctx, sqlite.Options{
			Path:      cfg.Database.Path,
			ReadOnly:  cfg.Database.ReadOnly,
			ChunkSize: cfg.Executor.ChunkSize,
			Logger:    logger,
		})
		if err != nil {
			return err
		}
	}
	defer db.Close()

	inst, err := server.New(server.Options{
		Config:  cfg,
		Logger:  logger,
		Clock:   clock.WallClock,
		Metrics: metrics.New(),
	})
	if err != nil {
		return err
	}

	// res is the only strong reference to the resource; it must outlive
	// the server.
	res := &server.Resource{DB: db}
	if _, err := inst.Start(res); err != nil {
		return errors.Annotate(err, "starting UI server")
	}
	logStartup(logger, cfg, inst)

	g, ctx := errgroup.WithContext(ctx)
	if gen != nil {
		g.Go(func() error { return gen.Run(ctx) })
	}
	g.Go(func() error {
		<-ctx.Done()
		logger.Info().Msg("shutting down")
		inst.Stop()
		return nil
	})
	err = g.Wait()
	runtime.KeepAlive(res)
	return err
}

func logStartup(logger zerolog.Logger, cfg *config.Config, inst *server.Instance) {
	logger.Info().
		Str("url", inst.LocalURL()).
		Str("addr", inst.Addr()).
		Str("database", cfg.Database.Path).
		Dur("poll_interval", cfg.Watcher.PollInterval).
		Int("max_waiters", cfg.Events.MaxWaiters).
		Msg("duckdb-ui ready")
}
