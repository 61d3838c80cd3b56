// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/kahvel/notifyd/internal/api"
	"github.com/kahvel/notifyd/internal/config"
	"github.com/kahvel/notifyd/internal/health"
	xglog "github.com/kahvel/notifyd/internal/log"
	"github.com/kahvel/notifyd/internal/notification"
	"github.com/kahvel/notifyd/internal/queue"
	"github.com/kahvel/notifyd/internal/termination"
)

var (
	version   = "v0.3.0"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	path := *configPath
	if path == "" {
		path = os.Getenv("NOTIFYD_CONFIG")
	}

	cfg, err := config.Load(path)
	if err != nil {
		base := xglog.Base()
		base.Fatal().
			Err(err).
			Str("event", "config.load_failed").
			Str("config_path", path).
			Msg("failed to load configuration")
	}

	xglog.Configure(xglog.Config{
		Level:   cfg.LogLevel,
		Service: "notifyd",
		Version: version,
	})
	logger := xglog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info().
		Str("event", "startup").
		Str("version", version).
		Str("commit", commit).
		Str("build_date", buildDate).
		Str("addr", cfg.ListenAddr).
		Msg("starting notifyd")

	logger.Info().Msgf("→ Redis: %s (db %d)", cfg.RedisAddr, cfg.RedisDB)
	logger.Info().Msgf("→ Poll interval: %s", cfg.PollInterval)
	logger.Info().Msgf("→ Termination delay: %s", cfg.TerminationDelay)
	if cfg.EndChatURL != "" {
		logger.Info().Msgf("→ End-chat endpoint: %s", cfg.EndChatURL)
	} else {
		logger.Warn().Msg("→ End-chat endpoint: NOT configured. Termination requests will be rejected.")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
	})
	defer func() { _ = client.Close() }()

	// A down store only degrades streams; it must not prevent startup.
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn().Err(err).Msg("redis unreachable at startup, continuing degraded")
	} else {
		logger.Info().Str("addr", cfg.RedisAddr).Msg("connected to Redis")
	}
	cancel()

	store := queue.NewStore(client, xglog.WithComponent("queue"))
	source := notification.NewSource(client, xglog.WithComponent("notification"))
	scheduler := termination.NewScheduler(cfg.TerminationDelay, xglog.WithComponent("termination"))

	healthMgr := health.NewManager(version)
	healthMgr.RegisterChecker(health.NewPingChecker("redis", 2*time.Second, func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}))

	apiServer := api.New(cfg, api.Deps{
		Store:     store,
		Source:    source,
		Scheduler: scheduler,
		HealthMgr: healthMgr,
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// No WriteTimeout: SSE responses are intentionally unbounded.
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info().Msg("shutdown signal received")

		// Cancel SSE sessions first so Shutdown can drain the listener.
		apiServer.Close()
		scheduler.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "server.failed").
			Msg("server failed")
	}

	logger.Info().Msg("server exiting")
}
