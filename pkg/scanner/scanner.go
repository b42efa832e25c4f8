// Package scanner finds the dangling edges of the stored reference graph:
// conversations that no discussion has adopted, and discussions that are
// worth surfacing but still reference unfetched tweets. Its two queries
// are re-run every crawl cycle and act as the loop's termination oracle.
package scanner

import (
	"github.com/sirupsen/logrus"

	"github.com/birdthread/threader-go/pkg/db/models"
	"github.com/birdthread/threader-go/pkg/store"
)

type Scanner struct {
	store  store.Store
	logger *logrus.Logger
}

func New(st store.Store, logger *logrus.Logger) *Scanner {
	if logger == nil {
		logger = logrus.New()
	}
	return &Scanner{store: st, logger: logger}
}

// ConversationsDangling returns, for every conversation lacking a
// discussion, the tweet ID whose fetch would let orphan linking make
// progress. Conversations that are merely waiting on another
// conversation's attachment produce no ID; the linker resolves those
// without network traffic.
func (s *Scanner) ConversationsDangling() (map[string]struct{}, error) {
	convs, err := s.store.ConversationsWithoutDiscussion()
	if err != nil {
		return nil, err
	}

	ids := make(map[string]struct{})
	for i := range convs {
		if id := s.followUpID(&convs[i]); id != "" {
			ids[id] = struct{}{}
		}
	}
	return ids, nil
}

func (s *Scanner) followUpID(conv *models.Conversation) string {
	if conv.UpstreamID != nil {
		if _, ok := s.store.Conversation(*conv.UpstreamID); ok {
			// Upstream is materialized; attachment is the linker's job.
			return ""
		}
		if _, ok := s.store.Tweet(*conv.UpstreamID); ok {
			// Root tweet landed (possibly as a tombstone) but its
			// conversation has not been linked yet.
			return ""
		}
		return *conv.UpstreamID
	}

	root, ok := s.store.Tweet(conv.ID)
	if !ok {
		return conv.ID
	}
	if root.Unavailable {
		return ""
	}

	ref := root.PrimaryReference()
	if ref == "" {
		return ""
	}
	if _, ok := s.store.Tweet(ref); ok {
		return ""
	}
	return ref
}

// DiscussionsDangling returns the missing referenced tweet IDs of every
// discussion that both (a) contains at least one tweet at or above the
// relevance threshold and (b) contains at least one tweet with dangling
// references. Resolving these does not change which discussions surface,
// so the crawler drains them in the background.
func (s *Scanner) DiscussionsDangling() (map[string]struct{}, error) {
	dangling, err := s.store.TweetsWithDanglingRefs()
	if err != nil {
		return nil, err
	}

	byDiscussion := make(map[string][]*models.Tweet)
	for i := range dangling {
		t := &dangling[i]
		conv, ok := s.store.Conversation(t.ConversationID)
		if !ok || !conv.Attached() {
			continue
		}
		byDiscussion[conv.DiscussionID] = append(byDiscussion[conv.DiscussionID], t)
	}

	ids := make(map[string]struct{})
	for discussionID, tweets := range byDiscussion {
		relevant, err := s.discussionRelevant(discussionID)
		if err != nil {
			return nil, err
		}
		if !relevant {
			continue
		}
		for _, t := range tweets {
			for bit, target := range t.References() {
				if !t.Dangling.Has(bit) {
					continue
				}
				if _, ok := s.store.Tweet(target); ok {
					continue
				}
				ids[target] = struct{}{}
			}
		}
	}
	return ids, nil
}

func (s *Scanner) discussionRelevant(discussionID string) (bool, error) {
	convs, err := s.store.DiscussionConversations(discussionID)
	if err != nil {
		return false, err
	}
	for i := range convs {
		if convs[i].MaxRelevance.AtLeast(models.RelevanceThreshold) {
			return true, nil
		}
	}
	return false, nil
}
