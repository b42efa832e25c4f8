package agent

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/birdthread/threader-go/pkg/crawler"
)

// FollowUpProcessor implements the Task interface for periodic
// reference resolution, catching references left dangling by earlier
// interrupted or failed cycles.
type FollowUpProcessor struct {
	crawler *crawler.Crawler
	logger  *logrus.Logger
	ticker  *time.Ticker
	stopped chan struct{}
}

// NewFollowUpProcessor creates a new FollowUpProcessor instance
func NewFollowUpProcessor(cr *crawler.Crawler, logger *logrus.Logger, interval time.Duration) *FollowUpProcessor {
	if logger == nil {
		logger = logrus.New()
	}

	return &FollowUpProcessor{
		crawler: cr,
		logger:  logger,
		ticker:  time.NewTicker(interval),
		stopped: make(chan struct{}),
	}
}

// Run implements the Task interface
func (fp *FollowUpProcessor) Run(ctx context.Context) error {
	log := fp.logger.WithField("task", "follow_up")
	log.Info("Starting follow-up processor")

	for {
		select {
		case <-ctx.Done():
			log.Info("Context cancelled, stopping follow-up processor")
			return ctx.Err()
		case <-fp.stopped:
			log.Info("Follow-up processor stopped")
			return nil
		case <-fp.ticker.C:
			if err := fp.crawler.PerformFollowUp(ctx); err != nil {
				if crawler.IsCrawlError(err, crawler.ErrCodeCredentialsMissing) {
					log.WithError(err).Error("Read credentials missing, stopping follow-up processor")
					return err
				}
				log.WithError(err).Error("Follow-up cycle failed")
				// Continue running despite errors
			}
		}
	}
}

// Stop implements the Task interface
func (fp *FollowUpProcessor) Stop() {
	fp.ticker.Stop()
	close(fp.stopped)
}
