package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/neighbourhood/atmfinder/internal/config"
	"github.com/neighbourhood/atmfinder/internal/geocode"
	"github.com/neighbourhood/atmfinder/internal/ingest"
	"github.com/neighbourhood/atmfinder/internal/logging"
	"github.com/neighbourhood/atmfinder/internal/store"
)

func main() {
	var (
		recordsPath = flag.String("records", "", "Path to a JSON file of feed records (skips the remote feed)")
		workers     = flag.Int("workers", 4, "Number of concurrent workers for processing")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging).With("component", "ingest")

	if *recordsPath == "" && cfg.Feed.URL == "" {
		logger.Error("either FEED_URL or -records is required")
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

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	resolver := geocode.NewResolver(st, geocode.NewHTTPGeocoder(cfg.Geocoder), logger)
	processor := ingest.NewProcessor(st, resolver, logger, *workers)

	start := time.Now()

	if *recordsPath != "" {
		records, err := loadRecords(*recordsPath)
		if err != nil {
			logger.Error("failed to load records", "error", err, "path", *recordsPath)
			os.Exit(1)
		}
		if len(records) == 0 {
			logger.Error("records file empty", "path", *recordsPath)
			os.Exit(1)
		}
		logger.Info("processing local records", "count", len(records), "workers", *workers)
		if err := processor.Process(ctx, records); err != nil {
			logger.Error("processing failed", "error", err)
			os.Exit(1)
		}
		if err := resolver.RetryFailures(ctx); err != nil {
			logger.Warn("geocoding retry pass failed", "error", err)
		}
	} else {
		scheduler := ingest.NewScheduler(ingest.NewFeedClient(cfg.Feed), processor, resolver, logger, cfg.Feed.RefreshInterval)
		scheduler.RunOnce(ctx)
	}

	logger.Info("ingestion complete", "duration", time.Since(start).String())
}

func loadRecords(path string) ([]ingest.FeedRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	var records []ingest.FeedRecord
	if err := json.NewDecoder(file).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return records, nil
}
