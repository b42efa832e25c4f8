package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/birdthread/threader-go/pkg/agent"
	"github.com/birdthread/threader-go/pkg/crawler"
	"github.com/birdthread/threader-go/pkg/db"
	"github.com/birdthread/threader-go/pkg/following"
	"github.com/birdthread/threader-go/pkg/inflight"
	"github.com/birdthread/threader-go/pkg/ingest"
	"github.com/birdthread/threader-go/pkg/interfaces/twitter"
	"github.com/birdthread/threader-go/pkg/linker"
	"github.com/birdthread/threader-go/pkg/logging"
	"github.com/birdthread/threader-go/pkg/metrics"
	"github.com/birdthread/threader-go/pkg/scanner"
	"github.com/birdthread/threader-go/pkg/store"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		// Only log warning since .env is optional
		logrus.WithError(err).Warn("Error loading .env file")
	}

	log := logging.NewLogger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Twitter config and client
	twitterConfig, err := twitter.NewTwitterConfig()
	if err != nil {
		log.WithError(err).Fatal("Failed to create Twitter config")
	}
	twitterConfig.Logger = log

	twitterClient, err := twitter.NewTwitterClient(twitterConfig)
	if err != nil {
		log.WithError(err).Fatal("Failed to create Twitter client")
	}

	// Initialize database-backed store
	gormDB, err := db.SetupDatabase(log)
	if err != nil {
		log.WithError(err).Fatal("Failed to set up database")
	}
	st := store.NewGormStore(gormDB, log)

	// Metrics registry and scrape endpoint
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	metricsAddr := os.Getenv("METRICS_ADDR")
	if metricsAddr == "" {
		metricsAddr = ":9190"
	}
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(registry))
		log.WithField("addr", metricsAddr).Info("Serving metrics")
		if err := http.ListenAndServe(metricsAddr, mux); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("Metrics server stopped")
		}
	}()

	// Resolution engine wiring
	followingCache := following.NewCache(twitterClient, st, log, following.DefaultTTL)
	lk := linker.New(log)
	sc := scanner.New(st, log)
	tracker := inflight.NewTracker()
	merger := ingest.NewMerger(st, followingCache, lk, log)
	cr := crawler.New(st, sc, lk, tracker, merger, twitterClient, collector, log, crawler.Options{})

	ag, err := agent.New(agent.Config{
		Logger:        log,
		TwitterClient: twitterClient,
		Store:         st,
		Merger:        merger,
		Crawler:       cr,
	})
	if err != nil {
		log.WithError(err).Fatal("Failed to create agent")
	}

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		log.Info("Received shutdown signal")
		cancel()
	}()

	log.Info("Starting discussion assembly engine")

	if err := ag.Run(ctx); err != nil && err != context.Canceled {
		log.WithError(err).Fatal("Agent stopped with error")
	}

	log.Info("Shutdown complete")
}
