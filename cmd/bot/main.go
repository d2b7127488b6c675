package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"geowarn/internal/dispatch"
	"geowarn/internal/geofence"
	"geowarn/internal/mirror"
	"geowarn/internal/pipeline"
	"geowarn/internal/platform/config"
	"geowarn/internal/platform/httpserver"
	"geowarn/internal/platform/logger"
	"geowarn/internal/platform/metrics"
	redisplatform "geowarn/internal/platform/redis"
	"geowarn/internal/registry"
	"geowarn/internal/sighting"
	httptransport "geowarn/internal/transport/http"
	"geowarn/internal/transport/telegram"
)

// main wires high-level dependencies and keeps the process lifecycle small.
// Business logic lives in the internal packages.
func main() {
	log := logger.New()
	slog.SetDefault(log)

	if err := run(log); err != nil {
		log.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	idx, err := geofence.NewIndex(cfg.Regions)
	if err != nil {
		return err
	}

	m := metrics.New()

	rdb, err := redisplatform.New(ctx, cfg.RedisURL)
	if err != nil {
		return err
	}
	if rdb == nil {
		log.Warn("REDIS_URL not set, sightings and subscriptions will not survive restarts")
	} else {
		defer rdb.Close()
	}

	storeOpts := []sighting.Option{sighting.WithLogger(log)}
	regOpts := []registry.Option{registry.WithLogger(log)}
	if rdb != nil {
		storeOpts = append(storeOpts, sighting.WithPersister(sighting.NewRedisPersister(rdb.Client, "")))
		regOpts = append(regOpts, registry.WithPersister(registry.NewRedisPersister(rdb.Client, "")))
	}

	store := sighting.NewStore(cfg.StoreCapacity, storeOpts...)
	reg := registry.New(cfg.SuperAdminID, idx, regOpts...)
	if err := store.Rehydrate(ctx); err != nil {
		return err
	}
	if err := reg.Rehydrate(ctx); err != nil {
		return err
	}
	m.SetStoreSize(store.Len())
	log.Info("state rehydrated", "sightings", store.Len(), "subscribers", len(reg.All()))

	api, err := telegram.NewAPI(cfg.BotToken)
	if err != nil {
		return err
	}

	dispatcher := dispatch.New(telegram.NewSender(api), reg,
		dispatch.WithLogger(log), dispatch.WithMetrics(m))

	pipeOpts := []pipeline.Option{pipeline.WithLogger(log), pipeline.WithMetrics(m)}
	if cfg.GitHub.MirrorEnabled() {
		pipeOpts = append(pipeOpts, pipeline.WithMirror(mirror.New(mirror.Config{
			Token: cfg.GitHub.Token,
			Repo:  cfg.GitHub.Repo,
			Path:  cfg.GitHub.Path,
		}, mirror.WithLogger(log))))
		log.Info("mirror enabled", "repo", cfg.GitHub.Repo, "path", cfg.GitHub.Path)
	} else {
		log.Warn("GITHUB_REPO not set, mirroring disabled")
	}

	pipe, err := pipeline.New(idx, store, dispatcher, pipeOpts...)
	if err != nil {
		return err
	}

	bot := telegram.New(api, telegram.Config{
		FeedChatID: cfg.FeedChatID,
		WebAppURL:  cfg.WebAppURL,
	}, pipe, reg, store, idx, cfg.GitHub.MirrorEnabled(), log)

	var health httptransport.HealthChecker
	if rdb != nil {
		health = rdb
	}
	srv := httpserver.New(cfg.HTTPAddr, httptransport.NewRouter(
		httptransport.NewHandler(store, health, log)))

	go func() {
		log.Info("ops server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("ops server error", "error", err)
			stop()
		}
	}()

	if err := bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
