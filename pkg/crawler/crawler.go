package crawler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/birdthread/threader-go/pkg/db/models"
	"github.com/birdthread/threader-go/pkg/inflight"
	"github.com/birdthread/threader-go/pkg/ingest"
	"github.com/birdthread/threader-go/pkg/interfaces/twitter"
	"github.com/birdthread/threader-go/pkg/linker"
	"github.com/birdthread/threader-go/pkg/metrics"
	"github.com/birdthread/threader-go/pkg/scanner"
	"github.com/birdthread/threader-go/pkg/store"
)

const (
	// DefaultWaveTimeout bounds one fetch barrier; chunks still pending
	// at the deadline are sealed as unavailable.
	DefaultWaveTimeout = 90 * time.Second
	// DefaultMaxIterations caps the scan/fetch/merge loop of one cycle.
	DefaultMaxIterations = 50
)

// State reports which phase the crawler currently runs.
type State int32

const (
	StateIdle State = iota
	StateScanning
	StateDispatching
	StateMerging
	StateDraining
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StateDispatching:
		return "dispatching"
	case StateMerging:
		return "merging"
	case StateDraining:
		return "draining"
	default:
		return "unknown"
	}
}

// Fetcher is the API surface the crawler fetches through.
type Fetcher interface {
	GetTweetsByIDs(ctx context.Context, ids []string) (*twitter.TweetResponse, error)
	GetUsersByIDs(ctx context.Context, ids []string) ([]twitter.User, error)
	HasReadAccess() bool
}

// Options tune one Crawler instance.
type Options struct {
	// WaveTimeout bounds each fetch barrier. Zero means DefaultWaveTimeout.
	WaveTimeout time.Duration
	// MaxIterations caps loop passes per cycle. Zero means DefaultMaxIterations.
	MaxIterations int
}

type Crawler struct {
	store   store.Store
	scanner *scanner.Scanner
	linker  *linker.Linker
	tracker *inflight.Tracker
	merger  *ingest.Merger
	fetcher Fetcher
	metrics *metrics.Collector
	logger  *logrus.Logger

	waveTimeout   time.Duration
	maxIterations int

	// cycle serializes follow-up cycles; the slot is held across the
	// background drain phase so a new cycle never overlaps a draining one.
	cycle chan struct{}
	state atomic.Int32
	wg    sync.WaitGroup
}

func New(st store.Store, sc *scanner.Scanner, lk *linker.Linker, tr *inflight.Tracker, mg *ingest.Merger, f Fetcher, col *metrics.Collector, logger *logrus.Logger, opts Options) *Crawler {
	if logger == nil {
		logger = logrus.New()
	}
	if opts.WaveTimeout <= 0 {
		opts.WaveTimeout = DefaultWaveTimeout
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultMaxIterations
	}
	return &Crawler{
		store:         st,
		scanner:       sc,
		linker:        lk,
		tracker:       tr,
		merger:        mg,
		fetcher:       f,
		metrics:       col,
		logger:        logger,
		waveTimeout:   opts.WaveTimeout,
		maxIterations: opts.MaxIterations,
		cycle:         make(chan struct{}, 1),
	}
}

// State reports the crawler's current phase.
func (c *Crawler) State() State {
	return State(c.state.Load())
}

// PerformFollowUp runs one resolution cycle: it repeatedly scans for
// dangling references reachable from unfinished conversations, fetches
// them, merges the results and relinks conversations into discussions.
// It returns once every conversation-blocking reference is resolved;
// discussion-level stragglers continue resolving in a background drain.
// Concurrent calls queue behind the running cycle, drain included.
func (c *Crawler) PerformFollowUp(ctx context.Context) error {
	return c.runCycle(ctx, nil)
}

// FetchSingle resolves one tweet by ID and everything it transitively
// references. A tweet already present in the store triggers no fetch;
// the cycle still relinks so a previously interrupted resolution
// completes.
func (c *Crawler) FetchSingle(ctx context.Context, id string) error {
	return c.runCycle(ctx, []string{id})
}

// Close waits for the background drain and user backfill goroutines.
func (c *Crawler) Close() {
	c.wg.Wait()
}

func (c *Crawler) runCycle(ctx context.Context, seeds []string) error {
	if !c.fetcher.HasReadAccess() {
		return NewCrawlError(ErrCodeCredentialsMissing, "no read credentials configured", nil)
	}

	select {
	case c.cycle <- struct{}{}:
	case <-ctx.Done():
		return NewCrawlError(ErrCodeCycleAborted, "cycle canceled while queued", ctx.Err())
	}

	c.metrics.RecordCycle()
	start := time.Now()

	if err := c.resolveLoop(ctx, seeds, false); err != nil {
		c.state.Store(int32(StateIdle))
		<-c.cycle
		return err
	}

	c.logger.WithField("elapsed", time.Since(start).String()).Info("Follow-up cycle resolved, draining stragglers")

	// The drain goroutine inherits the cycle slot and releases it when
	// discussion-level references are exhausted too.
	c.state.Store(int32(StateDraining))
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			c.state.Store(int32(StateIdle))
			<-c.cycle
		}()
		if err := c.resolveLoop(context.Background(), nil, true); err != nil {
			c.logger.WithError(err).Error("Drain phase aborted")
		}
	}()

	return nil
}

// resolveLoop runs scan/fetch/merge passes to a fixed point. In the
// blocking phase only conversation-blocking references gate the loop;
// the drain phase additionally chases discussion-level ones.
func (c *Crawler) resolveLoop(ctx context.Context, seeds []string, drain bool) error {
	for i := 0; i < c.maxIterations; i++ {
		if err := ctx.Err(); err != nil {
			return NewCrawlError(ErrCodeCycleAborted, "cycle canceled", err)
		}

		if !drain {
			c.state.Store(int32(StateScanning))
		}

		targets, err := c.collectTargets(seeds, drain)
		if err != nil {
			return err
		}
		seeds = nil

		if len(targets) == 0 {
			// Nothing left to fetch; one final relink settles any
			// conversation whose upstream landed in the last wave.
			if _, err := c.linker.Relink(c.store); err != nil {
				return NewCrawlError(ErrCodeStorageWriteFailed, "final relink failed", err)
			}
			return nil
		}

		if err := c.runWave(ctx, targets, drain); err != nil {
			return err
		}

		if _, err := c.linker.Relink(c.store); err != nil {
			return NewCrawlError(ErrCodeStorageWriteFailed, "relink failed", err)
		}
	}

	c.logger.WithField("max_iterations", c.maxIterations).Error("Resolution loop hit iteration cap")
	return NewCrawlError(ErrCodeDataIntegrity, "resolution loop did not converge", nil)
}

// collectTargets gathers the tweet IDs the next wave must fetch:
// explicit seeds absent from the store plus the dangling reference scan.
func (c *Crawler) collectTargets(seeds []string, drain bool) (map[string]struct{}, error) {
	targets := make(map[string]struct{})

	for _, id := range seeds {
		if _, ok := c.store.Tweet(id); ok {
			continue
		}
		targets[id] = struct{}{}
	}

	convMissing, err := c.scanner.ConversationsDangling()
	if err != nil {
		return nil, NewCrawlError(ErrCodeStorageWriteFailed, "conversation scan failed", err)
	}
	for id := range convMissing {
		targets[id] = struct{}{}
	}

	if drain {
		discMissing, err := c.scanner.DiscussionsDangling()
		if err != nil {
			return nil, NewCrawlError(ErrCodeStorageWriteFailed, "discussion scan failed", err)
		}
		for id := range discMissing {
			targets[id] = struct{}{}
		}
	}

	return targets, nil
}

// runWave claims targets, fetches them in concurrent chunks behind a
// deadline barrier, merges what landed and seals the rest unavailable.
func (c *Crawler) runWave(ctx context.Context, targets map[string]struct{}, drain bool) error {
	ids := make([]string, 0, len(targets))
	for id := range targets {
		ids = append(ids, id)
	}

	claimed := c.tracker.Claim(ids)
	if len(claimed) == 0 {
		return nil
	}

	if !drain {
		c.state.Store(int32(StateDispatching))
	}
	c.logger.WithFields(logrus.Fields{
		"claimed": len(claimed),
		"drain":   drain,
	}).Info("Dispatching fetch wave")

	waveCtx, cancel := context.WithTimeout(ctx, c.waveTimeout)
	defer cancel()

	var (
		mu        sync.Mutex
		responses []*twitter.TweetResponse
	)

	waveStart := time.Now()
	g, gctx := errgroup.WithContext(waveCtx)
	for _, chunk := range chunkIDs(claimed, twitter.MaxTweetLookup) {
		chunk := chunk
		g.Go(func() error {
			c.metrics.RecordChunk()
			resp, err := c.fetcher.GetTweetsByIDs(gctx, chunk)
			if err != nil {
				// A failed chunk never aborts the wave; its IDs get
				// sealed and the cycle keeps converging.
				c.metrics.RecordChunkFailure()
				c.logger.WithError(err).WithField("chunk_size", len(chunk)).Error("Tweet lookup chunk failed")
				return nil
			}
			mu.Lock()
			responses = append(responses, resp)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	c.metrics.ObserveWave(time.Since(waveStart))

	if !drain {
		c.state.Store(int32(StateMerging))
	}

	landed := make(map[string]struct{})
	for _, resp := range responses {
		result, err := c.merger.MergeTweets(ctx, resp, ingest.SourceLookup)
		if err != nil {
			c.tracker.Release(claimed...)
			return NewCrawlError(ErrCodeStorageWriteFailed, "merge transaction failed", err)
		}
		c.metrics.RecordMerged(len(result.Landed))
		for _, id := range result.Landed {
			landed[id] = struct{}{}
		}
		c.tracker.Release(result.Landed...)
		if len(result.PendingUsers) > 0 {
			c.backfillUsers(result.PendingUsers)
		}
	}

	var unresolved []string
	for _, id := range claimed {
		if _, ok := landed[id]; !ok {
			unresolved = append(unresolved, id)
		}
	}
	if len(unresolved) > 0 {
		if err := c.sealUnavailable(unresolved); err != nil {
			c.tracker.Release(unresolved...)
			return err
		}
		c.tracker.Release(unresolved...)
	}

	return nil
}

// sealUnavailable writes tombstones for IDs the API no longer serves so
// their referrers stop re-queueing them.
func (c *Crawler) sealUnavailable(ids []string) error {
	err := c.store.Transaction(func(tx store.Store) error {
		sealed := 0
		for _, id := range ids {
			if _, ok := tx.Tweet(id); ok {
				// Landed via another chunk's includes after all.
				continue
			}
			tomb := &models.Tweet{
				ID:          id,
				Relevance:   models.RelevanceIrrelevant,
				Unavailable: true,
				LastUpdated: time.Now(),
			}
			if err := tx.SaveTweet(tomb); err != nil {
				return err
			}
			sealed++
		}
		if sealed > 0 {
			c.metrics.RecordSealed(sealed)
			c.logger.WithField("sealed", sealed).Warn("Sealed unavailable tweets")
		}
		// Referrers holding dangling bits toward the tombstones get
		// them cleared in the same transaction.
		return c.linker.ResolveInbound(tx)
	})
	if err != nil {
		return NewCrawlError(ErrCodeStorageWriteFailed, "sealing unavailable tweets failed", err)
	}
	return nil
}

// backfillUsers fetches mentioned users in the background. Failures are
// logged only; the cycle never blocks on profile hydration.
func (c *Crawler) backfillUsers(ids []string) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.waveTimeout)
		defer cancel()

		for _, chunk := range chunkIDs(ids, twitter.MaxUserLookup) {
			users, err := c.fetcher.GetUsersByIDs(ctx, chunk)
			if err != nil {
				c.logger.WithError(err).WithField("chunk_size", len(chunk)).Warn("Mentioned user backfill failed")
				continue
			}
			if err := c.merger.MergeUsers(ctx, users); err != nil {
				c.logger.WithError(err).Warn("Mentioned user merge failed")
			}
		}
	}()
}

func chunkIDs(ids []string, size int) [][]string {
	var chunks [][]string
	for len(ids) > 0 {
		n := size
		if len(ids) < n {
			n = len(ids)
		}
		chunks = append(chunks, ids[:n])
		ids = ids[n:]
	}
	return chunks
}
