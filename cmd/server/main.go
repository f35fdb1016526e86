package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/neighbourhood/atmfinder/internal/auth"
	"github.com/neighbourhood/atmfinder/internal/config"
	"github.com/neighbourhood/atmfinder/internal/geocode"
	"github.com/neighbourhood/atmfinder/internal/ingest"
	"github.com/neighbourhood/atmfinder/internal/logging"
	"github.com/neighbourhood/atmfinder/internal/mailer"
	"github.com/neighbourhood/atmfinder/internal/recommend"
	"github.com/neighbourhood/atmfinder/internal/server"
	"github.com/neighbourhood/atmfinder/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging)

	if cfg.Auth.JWTSecret == "" {
		logger.Error("SECRET_KEY is required")
		os.Exit(1)
	}

	st, err := store.OpenSQLite(cfg.Database.Path)
	if err != nil {
		logger.Error("failed to open database", "error", err, "path", cfg.Database.Path)
		os.Exit(1)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Warn("closing database failed", "error", err)
		}
	}()

	issuer := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	engine := recommend.NewEngine(st, logger)
	apiHandlers := server.NewAPIHandlers(logger, st, issuer, buildMailer(logger, cfg), engine, cfg.Auth.OTPTTL)

	scheduler := buildScheduler(logger, cfg, st)
	if scheduler != nil {
		scheduler.Start(context.Background())
		defer scheduler.Stop()
	}

	router := server.NewRouter(logger, server.RouterDependencies{
		Health:           server.StoreHealthService{Store: st},
		API:              apiHandlers,
		AllowedOrigins:   parseAllowedOrigins(cfg.HTTP.AllowedOriginsCSV),
		AllowCredentials: true,
	})

	srv := server.New(logger, cfg.HTTP, router)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("server stopped unexpectedly", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}

func buildMailer(logger *slog.Logger, cfg config.Config) mailer.Mailer {
	if cfg.SMTP.Address == "" {
		logger.Warn("EMAIL_ADDRESS not set, one-time codes will not be delivered")
		return mailer.NewMemoryMailer()
	}
	return mailer.NewSMTP(cfg.SMTP)
}

func buildScheduler(logger *slog.Logger, cfg config.Config, st store.Store) *ingest.Scheduler {
	if cfg.Feed.URL == "" {
		logger.Info("FEED_URL not set, status feed ingestion disabled")
		return nil
	}
	resolver := geocode.NewResolver(st, geocode.NewHTTPGeocoder(cfg.Geocoder), logger)
	processor := ingest.NewProcessor(st, resolver, logger, 4)
	return ingest.NewScheduler(ingest.NewFeedClient(cfg.Feed), processor, resolver, logger, cfg.Feed.RefreshInterval)
}

func parseAllowedOrigins(csv string) []string {
	if csv == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	var origins []string
	for _, part := range parts {
		origin := strings.TrimSpace(part)
		if origin == "" {
			continue
		}
		origins = append(origins, origin)
	}
	return origins
}
