package ingest_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	"github.com/birdthread/threader-go/pkg/db/models"
	"github.com/birdthread/threader-go/pkg/following"
	"github.com/birdthread/threader-go/pkg/ingest"
	"github.com/birdthread/threader-go/pkg/interfaces/twitter"
	"github.com/birdthread/threader-go/pkg/linker"
	"github.com/birdthread/threader-go/pkg/store"
)

type staticFollowing struct {
	ids []string
}

func (s *staticFollowing) GetFollowingIDs(ctx context.Context) ([]string, error) {
	return s.ids, nil
}

func apiTweet(id, author, conversation string, refs ...twitter.ReferencedTweet) twitter.Tweet {
	return twitter.Tweet{
		ID:               id,
		AuthorID:         author,
		ConversationID:   conversation,
		Text:             "tweet " + id,
		CreatedAt:        time.Now().UTC().Format(time.RFC3339),
		ReferencedTweets: refs,
	}
}

var _ = Describe("Merger", func() {
	var (
		mem    *store.MemoryStore
		merger *ingest.Merger
		ctx    context.Context
	)

	BeforeEach(func() {
		logger := logrus.New()
		logger.SetLevel(logrus.ErrorLevel)
		mem = store.NewMemoryStore(logger)
		cache := following.NewCache(&staticFollowing{ids: []string{"alice"}}, mem, logger, time.Minute)
		merger = ingest.NewMerger(mem, cache, linker.New(logger), logger)
		ctx = context.Background()
	})

	It("lands tweets, users and the conversation row in one pass", func() {
		resp := &twitter.TweetResponse{
			Data: []twitter.Tweet{apiTweet("1", "alice", "1")},
			Includes: &twitter.TweetIncludes{
				Users: []twitter.User{{ID: "alice", Username: "alice", Name: "Alice"}},
			},
		}

		result, err := merger.MergeTweets(ctx, resp, ingest.SourceLookup)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Landed).To(ConsistOf("1"))
		Expect(result.Missing).To(BeEmpty())

		t, ok := mem.Tweet("1")
		Expect(ok).To(BeTrue())
		Expect(t.Relevance).To(Equal(models.RelevanceDiscussion))

		u, ok := mem.User("alice")
		Expect(ok).To(BeTrue())
		Expect(u.Following).To(BeTrue())

		conv, ok := mem.Conversation("1")
		Expect(ok).To(BeTrue())
		Expect(conv.MaxRelevance).To(Equal(models.RelevanceDiscussion))
	})

	It("lands included tweets alongside the primary batch", func() {
		resp := &twitter.TweetResponse{
			Data: []twitter.Tweet{apiTweet("2", "alice", "2", twitter.ReferencedTweet{Type: "replied_to", ID: "1"})},
			Includes: &twitter.TweetIncludes{
				Tweets: []twitter.Tweet{apiTweet("1", "bob", "1")},
			},
		}

		result, err := merger.MergeTweets(ctx, resp, ingest.SourceLookup)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Landed).To(ConsistOf("2", "1"))
		Expect(result.Missing).To(BeEmpty())

		t, _ := mem.Tweet("2")
		Expect(t.ReplyingTo).To(Equal("1"))
		Expect(t.Dangling).To(BeZero())
	})

	It("reports referenced tweets still absent from the store", func() {
		resp := &twitter.TweetResponse{
			Data: []twitter.Tweet{apiTweet("2", "alice", "2", twitter.ReferencedTweet{Type: "quoted", ID: "99"})},
		}

		result, err := merger.MergeTweets(ctx, resp, ingest.SourceLookup)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Missing).To(HaveKey("99"))

		t, _ := mem.Tweet("2")
		Expect(t.Dangling.Has(models.DanglingQuote)).To(BeTrue())
	})

	It("forces home timeline tweets to discussion relevance", func() {
		reply := apiTweet("3", "stranger", "3", twitter.ReferencedTweet{Type: "replied_to", ID: "1"})
		resp := &twitter.TweetResponse{Data: []twitter.Tweet{reply}}

		_, err := merger.MergeTweets(ctx, resp, ingest.SourceHomeTimeline)
		Expect(err).NotTo(HaveOccurred())

		t, _ := mem.Tweet("3")
		Expect(t.Relevance).To(Equal(models.RelevanceDiscussion))
	})

	It("preserves persisted relevance on lookup re-merge", func() {
		Expect(mem.SaveTweet(&models.Tweet{
			ID: "1", ConversationID: "1", AuthorID: "stranger",
			Relevance: models.RelevanceDiscussion,
		})).To(Succeed())

		resp := &twitter.TweetResponse{Data: []twitter.Tweet{apiTweet("1", "stranger", "1")}}
		_, err := merger.MergeTweets(ctx, resp, ingest.SourceLookup)
		Expect(err).NotTo(HaveOccurred())

		t, _ := mem.Tweet("1")
		Expect(t.Relevance).To(Equal(models.RelevanceDiscussion))
	})

	It("preserves the read flag and retweeted-by on re-merge", func() {
		Expect(mem.SaveTweet(&models.Tweet{
			ID: "1", ConversationID: "1", Read: true, RetweetedBy: []string{"bob"},
		})).To(Succeed())

		resp := &twitter.TweetResponse{Data: []twitter.Tweet{apiTweet("1", "alice", "1")}}
		_, err := merger.MergeTweets(ctx, resp, ingest.SourceLookup)
		Expect(err).NotTo(HaveOccurred())

		t, _ := mem.Tweet("1")
		Expect(t.Read).To(BeTrue())
		Expect(t.RetweetedBy).To(ConsistOf("bob"))
	})

	It("revives a tombstone when real data arrives", func() {
		Expect(mem.SaveTweet(&models.Tweet{ID: "1", Unavailable: true, Relevance: models.RelevanceIrrelevant})).To(Succeed())

		resp := &twitter.TweetResponse{Data: []twitter.Tweet{apiTweet("1", "alice", "1")}}
		_, err := merger.MergeTweets(ctx, resp, ingest.SourceLookup)
		Expect(err).NotTo(HaveOccurred())

		t, _ := mem.Tweet("1")
		Expect(t.Unavailable).To(BeFalse())
		Expect(t.Relevance).To(Equal(models.RelevanceDiscussion))
	})

	It("defaults a missing conversation_id to the tweet's own ID", func() {
		raw := apiTweet("1", "alice", "")
		resp := &twitter.TweetResponse{Data: []twitter.Tweet{raw}}

		_, err := merger.MergeTweets(ctx, resp, ingest.SourceLookup)
		Expect(err).NotTo(HaveOccurred())

		t, _ := mem.Tweet("1")
		Expect(t.ConversationID).To(Equal("1"))
	})

	It("records the inverse retweet relation within a batch", func() {
		resp := &twitter.TweetResponse{
			Data: []twitter.Tweet{apiTweet("2", "bob", "1", twitter.ReferencedTweet{Type: "retweeted", ID: "1"})},
			Includes: &twitter.TweetIncludes{
				Tweets: []twitter.Tweet{apiTweet("1", "alice", "1")},
				Users: []twitter.User{
					{ID: "alice", Username: "alice"},
					{ID: "bob", Username: "bob"},
				},
			},
		}

		_, err := merger.MergeTweets(ctx, resp, ingest.SourceLookup)
		Expect(err).NotTo(HaveOccurred())

		target, _ := mem.Tweet("1")
		Expect(target.RetweetedBy).To(ConsistOf("bob"))
	})

	It("stores media keyed to their owning tweet", func() {
		owner := apiTweet("1", "alice", "1")
		owner.Attachments.MediaKeys = []string{"3_abc"}
		resp := &twitter.TweetResponse{
			Data: []twitter.Tweet{owner},
			Includes: &twitter.TweetIncludes{
				Media: []twitter.Media{{MediaKey: "3_abc", Type: "photo", URL: "https://example.com/p.jpg"}},
			},
		}

		_, err := merger.MergeTweets(ctx, resp, ingest.SourceLookup)
		Expect(err).NotTo(HaveOccurred())

		m, ok := mem.Media("3_abc")
		Expect(ok).To(BeTrue())
		Expect(m.TweetID).To(Equal("1"))
		Expect(m.Type).To(Equal("photo"))
	})

	It("lists mentioned users absent from batch and store", func() {
		Expect(mem.SaveUser(&models.User{ID: "known"})).To(Succeed())

		t := apiTweet("1", "alice", "1")
		t.Entities.Mentions = []twitter.Mention{
			{ID: "known", Username: "known"},
			{ID: "unknown", Username: "unknown"},
		}
		resp := &twitter.TweetResponse{Data: []twitter.Tweet{t}}

		result, err := merger.MergeTweets(ctx, resp, ingest.SourceLookup)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.PendingUsers).To(ConsistOf("unknown"))
	})

	It("extends followed authors' fetched windows on home ingestion", func() {
		created := time.Now().UTC().Truncate(time.Second)
		t := apiTweet("1", "alice", "1")
		t.CreatedAt = created.Format(time.RFC3339)
		resp := &twitter.TweetResponse{
			Data:     []twitter.Tweet{t},
			Includes: &twitter.TweetIncludes{Users: []twitter.User{{ID: "alice", Username: "alice"}}},
		}

		_, err := merger.MergeTweets(ctx, resp, ingest.SourceHomeTimeline)
		Expect(err).NotTo(HaveOccurred())

		u, _ := mem.User("alice")
		Expect(u.FetchedUntil).To(BeTemporally("~", created, time.Second))
		Expect(u.FetchedFrom).To(BeTemporally("~", created, time.Second))
	})

	Describe("MergeUsers", func() {
		It("persists a backfill batch with following flags", func() {
			err := merger.MergeUsers(ctx, []twitter.User{
				{ID: "alice", Username: "alice", Name: "Alice"},
				{ID: "carol", Username: "carol", Name: "Carol"},
			})
			Expect(err).NotTo(HaveOccurred())

			a, _ := mem.User("alice")
			Expect(a.Following).To(BeTrue())
			c, _ := mem.User("carol")
			Expect(c.Following).To(BeFalse())
		})
	})
})
