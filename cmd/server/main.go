// Package main is the entry point of the ahe-ics calendar server.
//
// The server logs into the WPS academic API with one service account and
// publishes that student's classes and exams as an ICS feed. Everything is
// held in memory; Redis is an optional shared tier for rendered feeds.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ahe-ics/ahe-ics/config"
	"github.com/ahe-ics/ahe-ics/internal/application/exams"
	"github.com/ahe-ics/ahe-ics/internal/application/query"
	"github.com/ahe-ics/ahe-ics/internal/application/session"
	"github.com/ahe-ics/ahe-ics/internal/infrastructure/external/wps"
	"github.com/ahe-ics/ahe-ics/internal/infrastructure/ics"
	"github.com/ahe-ics/ahe-ics/internal/infrastructure/persistence/redis"
	httpserver "github.com/ahe-ics/ahe-ics/internal/interface/http"
	"github.com/ahe-ics/ahe-ics/internal/interface/http/handlers"
	"github.com/ahe-ics/ahe-ics/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. Configuration and logging
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(logger.Options{
		Level:   logger.ParseLevel(cfg.Observability.LogLevel),
		Format:  logger.ParseFormat(cfg.Observability.LogFormat),
		Service: cfg.App.Name,
		Version: cfg.App.Version,
	})
	slog.SetDefault(log)

	lang, err := ics.ParseLanguage(cfg.Calendar.Language)
	if err != nil {
		return fmt.Errorf("calendar language: %w", err)
	}

	log.Info("starting ahe-ics",
		slog.String("env", string(cfg.App.Environment)),
		slog.String("api", cfg.WPS.BaseURL),
		slog.String("lang", string(lang)),
		slog.Bool("exams", cfg.Calendar.ExamsEnabled),
		slog.Bool("token_protected", cfg.Calendar.Token != nil),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. Upstream client
	// ─────────────────────────────────────────────────────────────────────────
	wpsConfig := wps.DefaultClientConfig(cfg.WPS.BaseURL)
	wpsConfig.UserAgent = cfg.App.Name + "/" + cfg.App.Version
	wpsConfig.Timeout = cfg.WPS.RequestTimeout
	wpsConfig.RateLimiterConfig.RequestsPerSecond = cfg.WPS.RateLimit
	wpsConfig.RateLimiterConfig.BurstSize = cfg.WPS.RateLimitBurst
	wpsConfig.Logger = log
	client := wps.NewClient(wpsConfig)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. Session caches and calendar query
	// ─────────────────────────────────────────────────────────────────────────
	credentials := session.NewCredentialCache(client, session.CredentialCacheConfig{
		Username: cfg.WPS.Username,
		Password: cfg.WPS.Password,
		Logger:   log,
	})
	contexts := session.NewStudentContextResolver(client, session.StudentContextConfig{
		TTL:          cfg.Calendar.StudentContextTTL,
		ExamsEnabled: cfg.Calendar.ExamsEnabled,
		Logger:       log,
	})
	resolver := exams.NewResolver(client, log)
	renderer := ics.NewRenderer(lang)

	health := handlers.NewHealthChecker(log)
	health.AddCheck("upstream", handlers.NewUpstreamCheck(client, cfg.WPS.Username, cfg.WPS.Password))

	var store query.FeedStore
	if cfg.Redis.Enabled {
		redisCfg := redis.DefaultConfig()
		redisCfg.URL = cfg.Redis.URL
		redisCfg.KeyPrefix = redis.PrefixFeed + string(lang) + ":"
		redisCfg.TTL = query.FeedCacheTTL

		feeds, err := redis.NewFeedStore(redisCfg)
		if err != nil {
			log.Warn("redis unavailable, shared feed tier disabled", logger.Err(err))
		} else {
			defer func() {
				if err := feeds.Close(); err != nil {
					log.Warn("close redis", logger.Err(err))
				}
			}()
			store = feeds
			health.AddCheck("feed_store", handlers.NewPingCheck(feeds, handlers.MsgFeedStore))
			log.Info("redis feed tier enabled")
		}
	}

	calendarCfg := query.DefaultGetCalendarConfig()
	calendarCfg.PastDays = cfg.Calendar.PastDays
	calendarCfg.FutureDays = cfg.Calendar.FutureDays
	calendarCfg.ExamsEnabled = cfg.Calendar.ExamsEnabled
	calendarCfg.Logger = log
	calendar := query.NewGetCalendarHandler(credentials, contexts, client, resolver, renderer, store, calendarCfg)

	// ─────────────────────────────────────────────────────────────────────────
	// 4. HTTP server
	// ─────────────────────────────────────────────────────────────────────────
	var verifier handlers.TokenVerifier
	if cfg.Calendar.Token != nil {
		verifier = cfg.Calendar.Token
	}

	deps := httpserver.Dependencies{
		Calendar: handlers.NewCalendarHandler(calendar, verifier),
		Health:   health,
		Logger:   log,
	}
	if cfg.HTTP.OpenAPIEnabled {
		openapi, err := handlers.NewOpenAPIHandler()
		if err != nil {
			return fmt.Errorf("openapi: %w", err)
		}
		deps.OpenAPI = openapi
	}

	serverCfg := httpserver.DefaultConfig()
	serverCfg.Addr = cfg.HTTP.BindAddr
	serverCfg.RealIPHeader = cfg.HTTP.RealIPHeader
	serverCfg.RateLimit = cfg.HTTP.RateLimit
	serverCfg.RateBurst = cfg.HTTP.RateBurst
	serverCfg.JSONEnabled = cfg.Calendar.JSONEnabled
	serverCfg.OpenAPIEnabled = cfg.HTTP.OpenAPIEnabled
	server := httpserver.NewServer(serverCfg, deps)

	errCh := server.StartAsync()

	// ─────────────────────────────────────────────────────────────────────────
	// 5. Graceful shutdown
	// ─────────────────────────────────────────────────────────────────────────
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err, ok := <-errCh:
		if ok && err != nil {
			return err
		}
		return errors.New("http server stopped unexpectedly")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	log.Info("shutdown complete")
	return nil
}
