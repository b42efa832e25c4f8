package agent

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/birdthread/threader-go/pkg/crawler"
	"github.com/birdthread/threader-go/pkg/ingest"
	"github.com/birdthread/threader-go/pkg/interfaces/twitter"
	"github.com/birdthread/threader-go/pkg/store"
)

// TimelineProcessor implements the Task interface for home timeline ingestion
type TimelineProcessor struct {
	client  *twitter.TwitterClient
	store   store.Store
	merger  *ingest.Merger
	crawler *crawler.Crawler
	logger  *logrus.Logger
	ticker  *time.Ticker
	stopped chan struct{}
}

// NewTimelineProcessor creates a new TimelineProcessor instance
func NewTimelineProcessor(client *twitter.TwitterClient, st store.Store, merger *ingest.Merger, cr *crawler.Crawler, logger *logrus.Logger, interval time.Duration) *TimelineProcessor {
	if logger == nil {
		logger = logrus.New()
	}

	return &TimelineProcessor{
		client:  client,
		store:   st,
		merger:  merger,
		crawler: cr,
		logger:  logger,
		ticker:  time.NewTicker(interval),
		stopped: make(chan struct{}),
	}
}

// Run implements the Task interface
func (tp *TimelineProcessor) Run(ctx context.Context) error {
	log := tp.logger.WithField("task", "timeline")
	log.Info("Starting timeline processor")

	// One pass immediately so a fresh start does not wait a full tick
	if err := tp.ProcessTimeline(ctx); err != nil {
		log.WithError(err).Error("Failed to process timeline")
	}

	for {
		select {
		case <-ctx.Done():
			log.Info("Context cancelled, stopping timeline processor")
			return ctx.Err()
		case <-tp.stopped:
			log.Info("Timeline processor stopped")
			return nil
		case <-tp.ticker.C:
			if err := tp.ProcessTimeline(ctx); err != nil {
				log.WithError(err).Error("Failed to process timeline")
				// Continue running despite errors
			}
		}
	}
}

// Stop implements the Task interface
func (tp *TimelineProcessor) Stop() {
	tp.ticker.Stop()
	close(tp.stopped)
}

// ProcessTimeline fetches home timeline tweets newer than the newest
// stored one, merges them and kicks off a resolution cycle.
func (tp *TimelineProcessor) ProcessTimeline(ctx context.Context) error {
	log := tp.logger.WithField("method", "ProcessTimeline")

	params := twitter.GetHomeTimelineParams{}
	if sinceID, ok := tp.store.NewestTweetID(); ok {
		params.SinceID = sinceID
	}

	resp, err := tp.client.GetHomeTimeline(ctx, params)
	if err != nil {
		return err
	}
	if len(resp.Data) == 0 {
		log.Debug("No new timeline tweets")
		return nil
	}

	result, err := tp.merger.MergeTweets(ctx, resp, ingest.SourceHomeTimeline)
	if err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"landed":  len(result.Landed),
		"missing": len(result.Missing),
	}).Info("Timeline batch merged")

	return tp.crawler.PerformFollowUp(ctx)
}
