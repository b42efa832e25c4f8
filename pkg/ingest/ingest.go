// Package ingest merges fetched API batches into the store: tweets,
// included tweets, users and media land in one transaction, get linked
// into conversations, and produce the still-missing reference set the
// crawler queues next.
package ingest

import (
	"context"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/birdthread/threader-go/pkg/db/models"
	"github.com/birdthread/threader-go/pkg/following"
	"github.com/birdthread/threader-go/pkg/interfaces/twitter"
	"github.com/birdthread/threader-go/pkg/linker"
	"github.com/birdthread/threader-go/pkg/relevance"
	"github.com/birdthread/threader-go/pkg/store"
)

// Source names the ingestion path a batch arrived through. The relevance
// override rule depends on it: the home timeline always classifies its
// tweets as discussion anchors, every other path preserves a previously
// persisted tier.
type Source string

const (
	SourceHomeTimeline Source = "home_timeline"
	SourceLookup       Source = "lookup"
)

// Result summarizes one merged batch.
type Result struct {
	// Landed holds the IDs of every tweet now present in the store.
	Landed []string
	// Missing holds referenced tweet IDs still absent from the store.
	Missing map[string]struct{}
	// PendingUsers holds user IDs mentioned in the batch but included
	// neither in the batch nor in the store.
	PendingUsers []string
}

type Merger struct {
	store     store.Store
	following *following.Cache
	linker    *linker.Linker
	logger    *logrus.Logger
}

func NewMerger(st store.Store, fc *following.Cache, lk *linker.Linker, logger *logrus.Logger) *Merger {
	if logger == nil {
		logger = logrus.New()
	}
	return &Merger{store: st, following: fc, linker: lk, logger: logger}
}

// MergeTweets writes one fetched batch into the store atomically.
func (m *Merger) MergeTweets(ctx context.Context, resp *twitter.TweetResponse, source Source) (*Result, error) {
	followingSet, err := m.following.IDs(ctx)
	if err != nil {
		// Classification degrades to "nobody followed" rather than
		// blocking the merge.
		m.logger.WithError(err).Warn("following set unavailable, classifying without it")
		followingSet = map[string]struct{}{}
	}

	apiTweets := collectTweets(resp)
	apiUsers := collectUsers(resp)
	result := &Result{Missing: map[string]struct{}{}}

	err = m.store.Transaction(func(tx store.Store) error {
		now := time.Now()

		users := make(map[string]*models.User, len(apiUsers))
		for _, au := range apiUsers {
			u := m.mergeUser(tx, au, followingSet, now)
			if err := tx.SaveUser(u); err != nil {
				return err
			}
			users[u.ID] = u
		}

		primary := make(map[string]struct{}, len(resp.Data))
		for _, at := range resp.Data {
			primary[at.ID] = struct{}{}
		}

		batch := make([]*models.Tweet, 0, len(apiTweets))
		for _, at := range apiTweets {
			_, isPrimary := primary[at.ID]
			t := m.mergeTweet(tx, at, source, isPrimary, followingSet, now)
			if err := tx.SaveTweet(t); err != nil {
				return err
			}
			batch = append(batch, t)
			result.Landed = append(result.Landed, t.ID)
		}

		if err := m.saveMedia(tx, resp, batch); err != nil {
			return err
		}

		missing, err := m.linker.AttachToConversations(tx, batch)
		if err != nil {
			return err
		}
		for id := range missing {
			result.Missing[id] = struct{}{}
		}

		if err := m.linker.LinkRetweets(tx, batch, users); err != nil {
			return err
		}

		// Newly landed tweets satisfy dangling references held by
		// tweets from earlier batches.
		if err := m.linker.ResolveInbound(tx); err != nil {
			return err
		}

		if source == SourceHomeTimeline {
			m.extendFetchedWindows(tx, batch, now)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	result.PendingUsers = m.pendingMentions(apiTweets, apiUsers)

	m.logger.WithFields(logrus.Fields{
		"source":        string(source),
		"landed":        len(result.Landed),
		"missing":       len(result.Missing),
		"pending_users": len(result.PendingUsers),
	}).Info("Merged tweet batch")

	return result, nil
}

// MergeUsers persists a user-lookup batch, used by the best-effort
// mentioned-user backfill.
func (m *Merger) MergeUsers(ctx context.Context, apiUsers []twitter.User) error {
	followingSet, err := m.following.IDs(ctx)
	if err != nil {
		followingSet = map[string]struct{}{}
	}

	return m.store.Transaction(func(tx store.Store) error {
		now := time.Now()
		for _, au := range apiUsers {
			u := m.mergeUser(tx, au, followingSet, now)
			if err := tx.SaveUser(u); err != nil {
				return err
			}
		}
		return nil
	})
}

func (m *Merger) mergeUser(tx store.Store, au twitter.User, followingSet map[string]struct{}, now time.Time) *models.User {
	_, followed := followingSet[au.ID]
	u, ok := tx.User(au.ID)
	if !ok {
		u = &models.User{ID: au.ID}
	}
	u.Username = au.Username
	u.Name = au.Name
	u.Following = followed
	u.LastUpdated = now
	return u
}

func (m *Merger) mergeTweet(tx store.Store, at twitter.Tweet, source Source, isPrimary bool, followingSet map[string]struct{}, now time.Time) *models.Tweet {
	existing, exists := tx.Tweet(at.ID)

	t := &models.Tweet{
		ID:             at.ID,
		ConversationID: at.ConversationID,
		AuthorID:       at.AuthorID,
		Text:           at.Text,
		ReplyingTo:     at.RepliedTo(),
		Quoting:        at.Quoted(),
		Retweeting:     at.Retweeted(),
		LastUpdated:    now,
	}
	if t.ConversationID == "" {
		// Fall back to the tweet being its own conversation root; the
		// v2 API rarely omits the field but the engine must not create
		// an unrooted tweet.
		t.ConversationID = at.ID
	}
	if ts, err := time.Parse(time.RFC3339, at.CreatedAt); err == nil {
		t.CreatedAt = ts
	} else if exists {
		t.CreatedAt = existing.CreatedAt
	}

	t.MediaKeys = pq.StringArray(at.Attachments.MediaKeys)
	for _, mention := range at.Entities.Mentions {
		t.MentionedUserIDs = append(t.MentionedUserIDs, mention.ID)
	}

	if exists {
		t.Read = existing.Read
		t.Dangling = existing.Dangling
		t.RetweetedBy = existing.RetweetedBy
	}

	switch {
	case source == SourceHomeTimeline && isPrimary:
		// Home timeline entries always anchor a discussion.
		t.Relevance = models.RelevanceDiscussion
	case exists && !existing.Unavailable && existing.Relevance != "":
		t.Relevance = existing.Relevance
	default:
		t.Relevance = relevance.Classify(t, followingSet)
	}

	return t
}

func (m *Merger) saveMedia(tx store.Store, resp *twitter.TweetResponse, batch []*models.Tweet) error {
	if resp.Includes == nil || len(resp.Includes.Media) == 0 {
		return nil
	}

	owner := make(map[string]string)
	for _, t := range batch {
		for _, key := range t.MediaKeys {
			owner[key] = t.ID
		}
	}

	for _, am := range resp.Includes.Media {
		media := &models.Media{
			MediaKey:        am.MediaKey,
			TweetID:         owner[am.MediaKey],
			Type:            am.Type,
			URL:             am.URL,
			PreviewImageURL: am.PreviewImageURL,
			Width:           am.Width,
			Height:          am.Height,
			AltText:         am.AltText,
		}
		if err := tx.SaveMedia(media); err != nil {
			return err
		}
	}
	return nil
}

// extendFetchedWindows widens the backfill window of followed authors
// whose fresh posts just arrived via the home timeline.
func (m *Merger) extendFetchedWindows(tx store.Store, batch []*models.Tweet, now time.Time) {
	for _, t := range batch {
		u, ok := tx.User(t.AuthorID)
		if !ok || !u.Following {
			continue
		}
		changed := false
		if u.FetchedFrom.IsZero() || t.CreatedAt.Before(u.FetchedFrom) {
			u.FetchedFrom = t.CreatedAt
			changed = true
		}
		if t.CreatedAt.After(u.FetchedUntil) {
			u.FetchedUntil = t.CreatedAt
			changed = true
		}
		if changed {
			u.LastUpdated = now
			if err := tx.SaveUser(u); err != nil {
				m.logger.WithError(err).WithField("user_id", u.ID).Warn("failed to extend fetched window")
			}
		}
	}
}

func (m *Merger) pendingMentions(apiTweets []twitter.Tweet, apiUsers []twitter.User) []string {
	included := make(map[string]struct{}, len(apiUsers))
	for _, u := range apiUsers {
		included[u.ID] = struct{}{}
	}

	seen := make(map[string]struct{})
	var pending []string
	for _, at := range apiTweets {
		for _, mention := range at.Entities.Mentions {
			if mention.ID == "" {
				continue
			}
			if _, ok := included[mention.ID]; ok {
				continue
			}
			if _, ok := seen[mention.ID]; ok {
				continue
			}
			seen[mention.ID] = struct{}{}
			if _, known := m.store.User(mention.ID); known {
				continue
			}
			pending = append(pending, mention.ID)
		}
	}
	return pending
}

// collectTweets flattens data and included tweets, deduplicating by ID.
// Data tweets win so the primary/included distinction stays intact.
func collectTweets(resp *twitter.TweetResponse) []twitter.Tweet {
	seen := make(map[string]struct{}, len(resp.Data))
	out := make([]twitter.Tweet, 0, len(resp.Data))
	for _, t := range resp.Data {
		if _, dup := seen[t.ID]; dup {
			continue
		}
		seen[t.ID] = struct{}{}
		out = append(out, t)
	}
	if resp.Includes != nil {
		for _, t := range resp.Includes.Tweets {
			if _, dup := seen[t.ID]; dup {
				continue
			}
			seen[t.ID] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}

func collectUsers(resp *twitter.TweetResponse) []twitter.User {
	if resp.Includes == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(resp.Includes.Users))
	out := make([]twitter.User, 0, len(resp.Includes.Users))
	for _, u := range resp.Includes.Users {
		if _, dup := seen[u.ID]; dup {
			continue
		}
		seen[u.ID] = struct{}{}
		out = append(out, u)
	}
	return out
}
