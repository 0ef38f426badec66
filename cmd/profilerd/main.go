// Command profilerd serves the cross-session profiler control
// subsystem of spec section 1: one HTTP command surface, a
// Postgres-backed default plugin, and the in-process remote-attachment
// RPC bridge. Grounded on the teacher's cmd/server/main.go: flag-based
// dump-config, pgxpool init + migrations, signal-driven graceful
// shutdown.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nmslite/profilerd/internal/api"
	"github.com/nmslite/profilerd/internal/attachment"
	"github.com/nmslite/profilerd/internal/authn"
	"github.com/nmslite/profilerd/internal/config"
	"github.com/nmslite/profilerd/internal/eventhub"
	"github.com/nmslite/profilerd/internal/profiler/plugin"
	"github.com/nmslite/profilerd/internal/profiler/plugin/pgplugin"
	"github.com/nmslite/profilerd/internal/rpcprofiler"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (defaults are used if omitted)")
	dumpConfig := flag.Bool("dump-config", false, "dump example configuration to stdout and exit")
	flag.Parse()

	if *dumpConfig {
		if err := config.DumpExample(os.Stdout); err != nil {
			log.Fatalf("failed to dump example config: %v", err)
		}
		os.Exit(0)
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		cfg = loaded
	}

	logger := initLogger(cfg.Logging)
	logger.Info("starting profilerd", "host", cfg.Server.Host, "port", cfg.Server.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool := initDatabase(ctx, cfg, logger)
	defer pool.Close()

	authSvc, err := authn.NewService(cfg.Auth.JWTSecret, cfg.Auth.AdminUsername, cfg.Auth.AdminPasswordHash, cfg.Auth.JWTExpiry(), cfg.Auth.ProfileAnyAttachmentUsers)
	if err != nil {
		log.Fatalf("failed to initialize auth service: %v", err)
	}

	registry := plugin.NewRegistry()
	registry.Register("default", func() plugin.Plugin { return pgplugin.New(pool) })

	hub := eventhub.NewHub(logger)
	go hub.Run()

	rpcRegistry := rpcprofiler.NewRegistry(cfg.Profiler.ListenerShutdownTimeout(), logger)
	attachments := attachment.NewRegistry(rpcRegistry, registry, cfg.Profiler.MaxFlushIntervalSeconds, logger, hub)
	rpcClient := rpcprofiler.NewClient(rpcRegistry, attachments.IsAlive, attachments.Resolve)

	handlers := api.NewHandlers(attachments, rpcClient, authSvc, cfg.Profiler.DefaultPlugin)
	router := api.NewRouter(handlers, authSvc, hub, logger)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout(),
		WriteTimeout: cfg.Server.WriteTimeout(),
	}

	go startServer(srv, logger)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownServer(cancel, srv, logger)
}

func initDatabase(ctx context.Context, cfg config.Config, logger *slog.Logger) *pgxpool.Pool {
	if err := pgplugin.Migrate(cfg.Database.GetDSN()); err != nil {
		log.Fatalf("pgplugin migrations failed: %v", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.Database.GetDSN())
	if err != nil {
		log.Fatalf("failed to parse database config: %v", err)
	}
	poolCfg.MaxConns = cfg.Database.MaxConns

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		log.Fatalf("failed to open database pool: %v", err)
	}

	logger.Info("database pool initialized", "max_conns", cfg.Database.MaxConns)
	return pool
}

func startServer(srv *http.Server, logger *slog.Logger) {
	logger.Info("http server listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server failed", "error", err)
		os.Exit(1)
	}
}

func shutdownServer(cancel context.CancelFunc, srv *http.Server, logger *slog.Logger) {
	logger.Info("shutting down profilerd")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	logger.Info("profilerd stopped gracefully")
}

func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
