package linker_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	"github.com/birdthread/threader-go/pkg/db/models"
	"github.com/birdthread/threader-go/pkg/linker"
	"github.com/birdthread/threader-go/pkg/store"
)

func newTestStore() *store.MemoryStore {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return store.NewMemoryStore(logger)
}

func newLinker() *linker.Linker {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return linker.New(logger)
}

// saveBatch stores tweets and runs conversation attachment in one
// transaction, the way a merge does.
func saveBatch(mem *store.MemoryStore, lk *linker.Linker, tweets ...*models.Tweet) map[string]struct{} {
	var missing map[string]struct{}
	err := mem.Transaction(func(tx store.Store) error {
		for _, t := range tweets {
			if err := tx.SaveTweet(t); err != nil {
				return err
			}
		}
		var err error
		missing, err = lk.AttachToConversations(tx, tweets)
		return err
	})
	Expect(err).NotTo(HaveOccurred())
	return missing
}

var _ = Describe("AttachToConversations", func() {
	var (
		mem *store.MemoryStore
		lk  *linker.Linker
	)

	BeforeEach(func() {
		mem = newTestStore()
		lk = newLinker()
	})

	It("creates the conversation row on first sight", func() {
		saveBatch(mem, lk, &models.Tweet{ID: "1", ConversationID: "1", Relevance: models.RelevanceDiscussion})

		conv, ok := mem.Conversation("1")
		Expect(ok).To(BeTrue())
		Expect(conv.MaxRelevance).To(Equal(models.RelevanceDiscussion))
		Expect(conv.Attached()).To(BeFalse())
	})

	It("recomputes max relevance over all members", func() {
		saveBatch(mem, lk, &models.Tweet{ID: "1", ConversationID: "1", Relevance: models.RelevanceIrrelevant})
		saveBatch(mem, lk, &models.Tweet{ID: "2", ConversationID: "1", Relevance: models.RelevanceReply})

		conv, _ := mem.Conversation("1")
		Expect(conv.MaxRelevance).To(Equal(models.RelevanceReply))
	})

	It("sets dangling bits for absent reference targets", func() {
		missing := saveBatch(mem, lk, &models.Tweet{
			ID: "1", ConversationID: "1", ReplyingTo: "9", Quoting: "8",
		})

		Expect(missing).To(HaveKey("9"))
		Expect(missing).To(HaveKey("8"))

		t, _ := mem.Tweet("1")
		Expect(t.Dangling.Has(models.DanglingReply)).To(BeTrue())
		Expect(t.Dangling.Has(models.DanglingQuote)).To(BeTrue())
	})

	It("leaves bits clear for targets already stored", func() {
		saveBatch(mem, lk, &models.Tweet{ID: "9", ConversationID: "9"})
		missing := saveBatch(mem, lk, &models.Tweet{ID: "1", ConversationID: "1", ReplyingTo: "9"})

		Expect(missing).To(BeEmpty())
		t, _ := mem.Tweet("1")
		Expect(t.Dangling).To(BeZero())
	})

	It("ignores self references", func() {
		missing := saveBatch(mem, lk, &models.Tweet{ID: "1", ConversationID: "1", Quoting: "1"})
		Expect(missing).To(BeEmpty())
	})

	It("skips tombstones, which carry no conversation", func() {
		saveBatch(mem, lk, &models.Tweet{ID: "1", Unavailable: true})
		_, ok := mem.Conversation("1")
		Expect(ok).To(BeFalse())
	})
})

var _ = Describe("ResolveInbound", func() {
	var (
		mem *store.MemoryStore
		lk  *linker.Linker
	)

	BeforeEach(func() {
		mem = newTestStore()
		lk = newLinker()
	})

	It("clears bits once the target lands", func() {
		saveBatch(mem, lk, &models.Tweet{ID: "1", ConversationID: "1", ReplyingTo: "9"})

		err := mem.Transaction(func(tx store.Store) error {
			if err := tx.SaveTweet(&models.Tweet{ID: "9", ConversationID: "9"}); err != nil {
				return err
			}
			return lk.ResolveInbound(tx)
		})
		Expect(err).NotTo(HaveOccurred())

		t, _ := mem.Tweet("1")
		Expect(t.Dangling).To(BeZero())
	})

	It("treats a tombstone as a landed target", func() {
		saveBatch(mem, lk, &models.Tweet{ID: "1", ConversationID: "1", ReplyingTo: "9"})

		err := mem.Transaction(func(tx store.Store) error {
			if err := tx.SaveTweet(&models.Tweet{ID: "9", Unavailable: true}); err != nil {
				return err
			}
			return lk.ResolveInbound(tx)
		})
		Expect(err).NotTo(HaveOccurred())

		t, _ := mem.Tweet("1")
		Expect(t.Dangling).To(BeZero())
	})
})

var _ = Describe("LinkRetweets", func() {
	var (
		mem *store.MemoryStore
		lk  *linker.Linker
	)

	BeforeEach(func() {
		mem = newTestStore()
		lk = newLinker()
	})

	It("records the inverse retweeted-by relation", func() {
		target := &models.Tweet{ID: "1", ConversationID: "1"}
		retweet := &models.Tweet{ID: "2", ConversationID: "1", AuthorID: "bob", Retweeting: "1"}
		users := map[string]*models.User{"bob": {ID: "bob"}}

		err := mem.Transaction(func(tx store.Store) error {
			Expect(tx.SaveTweet(target)).To(Succeed())
			Expect(tx.SaveTweet(retweet)).To(Succeed())
			return lk.LinkRetweets(tx, []*models.Tweet{target, retweet}, users)
		})
		Expect(err).NotTo(HaveOccurred())

		got, _ := mem.Tweet("1")
		Expect(got.RetweetedBy).To(ConsistOf("bob"))
	})

	It("does not duplicate an author already recorded", func() {
		target := &models.Tweet{ID: "1", ConversationID: "1", RetweetedBy: []string{"bob"}}
		retweet := &models.Tweet{ID: "2", ConversationID: "1", AuthorID: "bob", Retweeting: "1"}
		users := map[string]*models.User{"bob": {ID: "bob"}}

		err := mem.Transaction(func(tx store.Store) error {
			Expect(tx.SaveTweet(target)).To(Succeed())
			Expect(tx.SaveTweet(retweet)).To(Succeed())
			return lk.LinkRetweets(tx, []*models.Tweet{target, retweet}, users)
		})
		Expect(err).NotTo(HaveOccurred())

		got, _ := mem.Tweet("1")
		Expect(got.RetweetedBy).To(ConsistOf("bob"))
	})

	It("skips a retweet whose target is missing from the batch", func() {
		retweet := &models.Tweet{ID: "2", ConversationID: "2", AuthorID: "bob", Retweeting: "1"}
		users := map[string]*models.User{"bob": {ID: "bob"}}

		err := mem.Transaction(func(tx store.Store) error {
			Expect(tx.SaveTweet(retweet)).To(Succeed())
			return lk.LinkRetweets(tx, []*models.Tweet{retweet}, users)
		})
		Expect(err).NotTo(HaveOccurred())
	})

	It("skips a retweet whose author is missing from the batch", func() {
		target := &models.Tweet{ID: "1", ConversationID: "1"}
		retweet := &models.Tweet{ID: "2", ConversationID: "1", AuthorID: "ghost", Retweeting: "1"}

		err := mem.Transaction(func(tx store.Store) error {
			Expect(tx.SaveTweet(target)).To(Succeed())
			Expect(tx.SaveTweet(retweet)).To(Succeed())
			return lk.LinkRetweets(tx, []*models.Tweet{target, retweet}, nil)
		})
		Expect(err).NotTo(HaveOccurred())

		got, _ := mem.Tweet("1")
		Expect(got.RetweetedBy).To(BeEmpty())
	})
})

var _ = Describe("Relink", func() {
	var (
		mem *store.MemoryStore
		lk  *linker.Linker
	)

	BeforeEach(func() {
		mem = newTestStore()
		lk = newLinker()
	})

	It("promotes a conversation whose root references nothing", func() {
		saveBatch(mem, lk, &models.Tweet{ID: "1", ConversationID: "1"})

		missing, err := lk.Relink(mem)
		Expect(err).NotTo(HaveOccurred())
		Expect(missing).To(BeEmpty())

		conv, _ := mem.Conversation("1")
		Expect(conv.DiscussionID).To(Equal("1"))
		_, ok := mem.Discussion("1")
		Expect(ok).To(BeTrue())
	})

	It("attaches a conversation to its upstream's discussion", func() {
		saveBatch(mem, lk, &models.Tweet{ID: "1", ConversationID: "1"})
		saveBatch(mem, lk, &models.Tweet{ID: "2", ConversationID: "2", ReplyingTo: "1"})

		_, err := lk.Relink(mem)
		Expect(err).NotTo(HaveOccurred())

		conv, _ := mem.Conversation("2")
		Expect(conv.DiscussionID).To(Equal("1"))
		Expect(conv.UpstreamID).NotTo(BeNil())
		Expect(*conv.UpstreamID).To(Equal("1"))
	})

	It("cascades attachment down a chain in a single pass", func() {
		saveBatch(mem, lk, &models.Tweet{ID: "1", ConversationID: "1"})
		saveBatch(mem, lk, &models.Tweet{ID: "2", ConversationID: "2", ReplyingTo: "1"})
		saveBatch(mem, lk, &models.Tweet{ID: "3", ConversationID: "3", ReplyingTo: "2"})
		saveBatch(mem, lk, &models.Tweet{ID: "4", ConversationID: "4", ReplyingTo: "3"})

		missing, err := lk.Relink(mem)
		Expect(err).NotTo(HaveOccurred())
		Expect(missing).To(BeEmpty())

		for _, id := range []string{"2", "3", "4"} {
			conv, _ := mem.Conversation(id)
			Expect(conv.DiscussionID).To(Equal("1"), "conversation %s", id)
		}
	})

	It("reports the root tweet as missing when it has not landed", func() {
		Expect(mem.SaveConversation(&models.Conversation{ID: "5"})).To(Succeed())

		missing, err := lk.Relink(mem)
		Expect(err).NotTo(HaveOccurred())
		Expect(missing).To(HaveKey("5"))

		conv, _ := mem.Conversation("5")
		Expect(conv.Attached()).To(BeFalse())
	})

	It("reports the primary reference as missing when unfetched", func() {
		saveBatch(mem, lk, &models.Tweet{ID: "2", ConversationID: "2", ReplyingTo: "1"})

		missing, err := lk.Relink(mem)
		Expect(err).NotTo(HaveOccurred())
		Expect(missing).To(HaveKey("1"))
	})

	It("promotes a conversation whose upstream target is sealed", func() {
		err := mem.SaveTweet(&models.Tweet{ID: "1", Unavailable: true})
		Expect(err).NotTo(HaveOccurred())
		saveBatch(mem, lk, &models.Tweet{ID: "2", ConversationID: "2", ReplyingTo: "1"})

		missing, err := lk.Relink(mem)
		Expect(err).NotTo(HaveOccurred())
		Expect(missing).To(BeEmpty())

		conv, _ := mem.Conversation("2")
		Expect(conv.DiscussionID).To(Equal("2"))
	})

	It("promotes a conversation whose own root is sealed", func() {
		Expect(mem.SaveTweet(&models.Tweet{ID: "3", ConversationID: "3", Unavailable: true})).To(Succeed())
		Expect(mem.SaveConversation(&models.Conversation{ID: "3"})).To(Succeed())

		missing, err := lk.Relink(mem)
		Expect(err).NotTo(HaveOccurred())
		Expect(missing).To(BeEmpty())

		conv, _ := mem.Conversation("3")
		Expect(conv.DiscussionID).To(Equal("3"))
	})

	It("is idempotent once everything is attached", func() {
		saveBatch(mem, lk, &models.Tweet{ID: "1", ConversationID: "1"})
		_, err := lk.Relink(mem)
		Expect(err).NotTo(HaveOccurred())

		token, ch := mem.Subscribe()
		defer mem.Unsubscribe(token)

		_, err = lk.Relink(mem)
		Expect(err).NotTo(HaveOccurred())
		Consistently(ch, 50*time.Millisecond).ShouldNot(Receive())
	})

	It("extends the discussion timestamp to the newest member tweet", func() {
		old := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		newer := old.Add(time.Hour)
		saveBatch(mem, lk, &models.Tweet{ID: "1", ConversationID: "1", CreatedAt: old})
		saveBatch(mem, lk, &models.Tweet{ID: "2", ConversationID: "2", ReplyingTo: "1", CreatedAt: newer})

		_, err := lk.Relink(mem)
		Expect(err).NotTo(HaveOccurred())

		d, _ := mem.Discussion("1")
		Expect(d.LastUpdated).To(BeTemporally(">=", newer))
	})
})

var _ = Describe("BuildThread", func() {
	var (
		mem *store.MemoryStore
		lk  *linker.Linker
	)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	BeforeEach(func() {
		mem = newTestStore()
		lk = newLinker()

		saveBatch(mem, lk,
			&models.Tweet{ID: "1", ConversationID: "1", CreatedAt: base},
			&models.Tweet{ID: "2", ConversationID: "1", ReplyingTo: "1", CreatedAt: base.Add(time.Minute)},
			&models.Tweet{ID: "3", ConversationID: "1", ReplyingTo: "1", CreatedAt: base.Add(2 * time.Minute)},
			&models.Tweet{ID: "4", ConversationID: "1", ReplyingTo: "2", CreatedAt: base.Add(3 * time.Minute)},
		)
		_, err := lk.Relink(mem)
		Expect(err).NotTo(HaveOccurred())
	})

	It("assembles the reply tree with parent indices", func() {
		thread, err := linker.BuildThread(mem, "1")
		Expect(err).NotTo(HaveOccurred())
		Expect(thread.Nodes).To(HaveLen(4))

		Expect(thread.Nodes[thread.Root].TweetID).To(Equal("1"))
		Expect(thread.Nodes[thread.Root].Parent).To(Equal(-1))

		byID := make(map[string]int)
		for i, n := range thread.Nodes {
			byID[n.TweetID] = i
		}
		Expect(thread.Nodes[byID["2"]].Parent).To(Equal(byID["1"]))
		Expect(thread.Nodes[byID["3"]].Parent).To(Equal(byID["1"]))
		Expect(thread.Nodes[byID["4"]].Parent).To(Equal(byID["2"]))
	})

	It("lays out the arena deterministically across rebuilds", func() {
		first, err := linker.BuildThread(mem, "1")
		Expect(err).NotTo(HaveOccurred())
		for i := 0; i < 5; i++ {
			again, err := linker.BuildThread(mem, "1")
			Expect(err).NotTo(HaveOccurred())
			Expect(again.Nodes).To(Equal(first.Nodes))
			Expect(again.Root).To(Equal(first.Root))
		}
	})

	It("walks depth-first with correct depths", func() {
		thread, err := linker.BuildThread(mem, "1")
		Expect(err).NotTo(HaveOccurred())

		depths := make(map[string]int)
		thread.Walk(func(i, depth int) {
			depths[thread.Nodes[i].TweetID] = depth
		})
		Expect(depths["1"]).To(Equal(0))
		Expect(depths["2"]).To(Equal(1))
		Expect(depths["3"]).To(Equal(1))
		Expect(depths["4"]).To(Equal(2))
	})

	It("spans multiple conversations of one discussion", func() {
		saveBatch(mem, lk, &models.Tweet{ID: "5", ConversationID: "5", ReplyingTo: "3", CreatedAt: base.Add(4 * time.Minute)})
		_, err := lk.Relink(mem)
		Expect(err).NotTo(HaveOccurred())

		thread, err := linker.BuildThread(mem, "1")
		Expect(err).NotTo(HaveOccurred())
		Expect(thread.Nodes).To(HaveLen(5))

		byID := make(map[string]int)
		for i, n := range thread.Nodes {
			byID[n.TweetID] = i
		}
		Expect(thread.Nodes[byID["5"]].Parent).To(Equal(byID["3"]))
	})

	It("fails for an unknown discussion", func() {
		_, err := linker.BuildThread(mem, "nope")
		Expect(err).To(HaveOccurred())
	})
})
