// Package linker attaches stored tweets to conversations, conversations
// to discussions, and maintains the dangling-reference bitmasks that
// drive the reference crawler's follow-up fetches.
package linker

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/birdthread/threader-go/pkg/db/models"
	"github.com/birdthread/threader-go/pkg/store"
)

type Linker struct {
	logger *logrus.Logger
}

func New(logger *logrus.Logger) *Linker {
	if logger == nil {
		logger = logrus.New()
	}
	return &Linker{logger: logger}
}

// AttachToConversations wires freshly stored tweets into their
// conversations: the conversation row is created on first sight, its
// cached max relevance recomputed, and each tweet's dangling bits are set
// or cleared against current store contents. The returned set holds the
// referenced tweet IDs absent from the store.
func (l *Linker) AttachToConversations(tx store.Store, tweets []*models.Tweet) (map[string]struct{}, error) {
	missing := make(map[string]struct{})

	for _, t := range tweets {
		if t.ConversationID == "" {
			// Tombstones carry no conversation.
			continue
		}

		conv, ok := tx.Conversation(t.ConversationID)
		if !ok {
			conv = &models.Conversation{
				ID:           t.ConversationID,
				MaxRelevance: models.RelevanceIrrelevant,
			}
		}

		maxRel, newest, err := conversationStats(tx, conv.ID)
		if err != nil {
			return nil, err
		}
		changed := !ok
		if conv.MaxRelevance != maxRel {
			conv.MaxRelevance = maxRel
			changed = true
		}
		if newest.After(conv.LastUpdated) {
			conv.LastUpdated = newest
			changed = true
		}
		if changed {
			if err := tx.SaveConversation(conv); err != nil {
				return nil, err
			}
		}

		mask := models.DanglingRefs(0)
		for bit, target := range t.References() {
			if target == t.ID {
				continue
			}
			if _, present := tx.Tweet(target); present {
				continue
			}
			mask = mask.With(bit)
			missing[target] = struct{}{}
		}
		if mask != t.Dangling {
			t.Dangling = mask
			if err := tx.SaveTweet(t); err != nil {
				return nil, err
			}
		}
	}

	return missing, nil
}

// ResolveInbound clears dangling bits on stored tweets whose referenced
// target has since landed in the store, whether as a real tweet or as an
// unavailable tombstone. Both outcomes sever the bit: a tombstone means
// the reference will never resolve and must stop driving fetches.
func (l *Linker) ResolveInbound(tx store.Store) error {
	dangling, err := tx.TweetsWithDanglingRefs()
	if err != nil {
		return err
	}

	for i := range dangling {
		t := &dangling[i]
		mask := t.Dangling
		for bit, target := range t.References() {
			if !mask.Has(bit) {
				continue
			}
			if _, present := tx.Tweet(target); present {
				mask = mask.Without(bit)
			}
		}
		if mask != t.Dangling {
			t.Dangling = mask
			if err := tx.SaveTweet(t); err != nil {
				return err
			}
		}
	}
	return nil
}

// LinkRetweets records the inverse retweeted-by relation for every tweet
// in a fetched batch that retweets another. Both the retweeted tweet and
// the retweeting author must appear in the same batch; the API contract
// guarantees their inclusion, so a miss is a data-integrity violation
// that is logged and skipped without failing the batch.
func (l *Linker) LinkRetweets(tx store.Store, batch []*models.Tweet, users map[string]*models.User) error {
	byID := make(map[string]*models.Tweet, len(batch))
	for _, t := range batch {
		byID[t.ID] = t
	}

	for _, t := range batch {
		if t.Retweeting == "" {
			continue
		}

		target, ok := byID[t.Retweeting]
		if !ok {
			l.logger.WithFields(logrus.Fields{
				"tweet_id":  t.ID,
				"target_id": t.Retweeting,
			}).Error("retweeted tweet missing from batch, skipping relation")
			continue
		}
		if _, ok := users[t.AuthorID]; !ok {
			l.logger.WithFields(logrus.Fields{
				"tweet_id":  t.ID,
				"author_id": t.AuthorID,
			}).Error("retweeting user missing from batch, skipping relation")
			continue
		}

		if containsString(target.RetweetedBy, t.AuthorID) {
			continue
		}
		target.RetweetedBy = append(target.RetweetedBy, t.AuthorID)
		if err := tx.SaveTweet(target); err != nil {
			return err
		}
	}
	return nil
}

// Relink runs orphan linking: every conversation without a discussion is
// attached to its upstream's discussion, promoted to a discussion root of
// its own, or recorded as still missing an upstream tweet. Attachment
// cascades within the pass until a fixed point, so a newly created
// discussion can adopt its whole downstream chain in one call. Returns
// the set of tweet IDs that must be fetched before more progress is
// possible.
func (l *Linker) Relink(st store.Store) (map[string]struct{}, error) {
	missing := make(map[string]struct{})

	err := st.Transaction(func(tx store.Store) error {
		for {
			convs, err := tx.ConversationsWithoutDiscussion()
			if err != nil {
				return err
			}
			progress := false
			for i := range convs {
				attached, missingID, err := l.relinkOne(tx, &convs[i])
				if err != nil {
					return err
				}
				if attached {
					progress = true
				}
				if missingID != "" {
					missing[missingID] = struct{}{}
				}
			}
			if !progress {
				return nil
			}
			// Another pass may now attach conversations whose upstream
			// just gained a discussion.
			for id := range missing {
				delete(missing, id)
			}
		}
	})
	if err != nil {
		return nil, err
	}
	return missing, nil
}

// relinkOne applies the orphan-linking rules to a single conversation.
// Exactly one of the outcomes holds: the conversation attached to a
// discussion, it is waiting on a tweet that must be fetched (missingID),
// or it is deferred until another conversation attaches first.
func (l *Linker) relinkOne(tx store.Store, conv *models.Conversation) (attached bool, missingID string, err error) {
	if conv.UpstreamID != nil {
		up, ok := tx.Conversation(*conv.UpstreamID)
		if !ok {
			// Upstream conversation not materialized: its root tweet is
			// the fetch target.
			return false, *conv.UpstreamID, nil
		}
		if up.Attached() {
			return true, "", l.attach(tx, conv, up.DiscussionID)
		}
		// Upstream exists but is itself unattached; it resolves in this
		// pass or produces its own missing ID.
		return false, "", nil
	}

	root, ok := tx.Tweet(conv.ID)
	if !ok {
		return false, conv.ID, nil
	}
	if root.Unavailable {
		// The root can never be fetched; surface what we have.
		return true, "", l.promote(tx, conv)
	}

	ref := root.PrimaryReference()
	if ref == "" {
		return true, "", l.promote(tx, conv)
	}

	target, ok := tx.Tweet(ref)
	if !ok {
		return false, ref, nil
	}
	if target.Unavailable {
		// Upstream is sealed; this conversation roots its own discussion
		// so the chain stops waiting on a dead reference.
		return true, "", l.promote(tx, conv)
	}

	upstreamID := target.ConversationID
	conv.UpstreamID = &upstreamID
	if err := tx.SaveConversation(conv); err != nil {
		return false, "", err
	}

	up, ok := tx.Conversation(upstreamID)
	if ok && up.Attached() {
		return true, "", l.attach(tx, conv, up.DiscussionID)
	}
	return false, "", nil
}

// promote makes the conversation the root of a new discussion.
func (l *Linker) promote(tx store.Store, conv *models.Conversation) error {
	if _, exists := tx.Discussion(conv.ID); !exists {
		d := &models.Discussion{ID: conv.ID, LastUpdated: conv.LastUpdated}
		if err := tx.SaveDiscussion(d); err != nil {
			return err
		}
		l.logger.WithField("discussion_id", conv.ID).Debug("created discussion")
	}
	return l.attach(tx, conv, conv.ID)
}

// attach links the conversation to a discussion and extends the
// discussion's last-update timestamp to cover the conversation's newest
// tweet.
func (l *Linker) attach(tx store.Store, conv *models.Conversation, discussionID string) error {
	conv.DiscussionID = discussionID
	if err := tx.SaveConversation(conv); err != nil {
		return err
	}

	d, ok := tx.Discussion(discussionID)
	if !ok {
		d = &models.Discussion{ID: discussionID}
	}
	_, newest, err := conversationStats(tx, conv.ID)
	if err != nil {
		return err
	}
	if newest.After(d.LastUpdated) {
		d.LastUpdated = newest
		if err := tx.SaveDiscussion(d); err != nil {
			return err
		}
	}

	l.logger.WithFields(logrus.Fields{
		"conversation_id": conv.ID,
		"discussion_id":   discussionID,
	}).Debug("attached conversation to discussion")
	return nil
}

// conversationStats recomputes the cached aggregates for a conversation:
// the maximum member relevance and the newest member creation time.
func conversationStats(tx store.Store, conversationID string) (models.Relevance, time.Time, error) {
	tweets, err := tx.ConversationTweets(conversationID)
	if err != nil {
		return models.RelevanceIrrelevant, time.Time{}, err
	}

	maxRel := models.RelevanceIrrelevant
	var newest time.Time
	for i := range tweets {
		maxRel = models.MaxRelevance(maxRel, tweets[i].Relevance)
		if tweets[i].CreatedAt.After(newest) {
			newest = tweets[i].CreatedAt
		}
	}
	return maxRel, newest, nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
