package integration

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	"github.com/birdthread/threader-go/pkg/db"
	"github.com/birdthread/threader-go/pkg/db/models"
	"github.com/birdthread/threader-go/pkg/store"
)

func init() {
	if err := godotenv.Load("../../.env"); err != nil {
		log.Printf("Warning: Error loading .env file: %v", err)
	}
}

var _ = Describe("PostgresStore", func() {
	var (
		st     *store.GormStore
		logger *logrus.Logger
		run    string
	)

	BeforeEach(func() {
		// Skip if not running integration tests
		if os.Getenv("INTEGRATION_TESTS") != "true" {
			Skip("Skipping integration test")
		}

		logger = logrus.New()
		logger.SetLevel(logrus.DebugLevel)

		gormDB, err := db.SetupDatabase(logger)
		Expect(err).NotTo(HaveOccurred(), "Failed to setup database")

		st = store.NewGormStore(gormDB, logger)
		run = fmt.Sprintf("it%d", time.Now().UnixNano())
	})

	It("round-trips a tweet through postgres", func() {
		id := run + "-1"
		t := &models.Tweet{
			ID:             id,
			ConversationID: id,
			AuthorID:       run + "-author",
			Text:           "integration round trip",
			Relevance:      models.RelevanceDiscussion,
			CreatedAt:      time.Now().UTC().Truncate(time.Second),
			MediaKeys:      []string{"3_" + run},
			LastUpdated:    time.Now().UTC(),
		}
		Expect(st.SaveTweet(t)).To(Succeed())

		got, ok := st.Tweet(id)
		Expect(ok).To(BeTrue())
		Expect(got.Text).To(Equal("integration round trip"))
		Expect(got.Relevance).To(Equal(models.RelevanceDiscussion))
		Expect([]string(got.MediaKeys)).To(ConsistOf("3_" + run))
	})

	It("upserts on conflicting primary keys", func() {
		id := run + "-2"
		Expect(st.SaveTweet(&models.Tweet{ID: id, Text: "first"})).To(Succeed())
		Expect(st.SaveTweet(&models.Tweet{ID: id, Text: "second"})).To(Succeed())

		got, ok := st.Tweet(id)
		Expect(ok).To(BeTrue())
		Expect(got.Text).To(Equal("second"))
	})

	It("commits transactions atomically and rolls back on error", func() {
		id := run + "-3"
		err := st.Transaction(func(tx store.Store) error {
			if err := tx.SaveTweet(&models.Tweet{ID: id, ConversationID: id}); err != nil {
				return err
			}
			return fmt.Errorf("forced rollback")
		})
		Expect(err).To(HaveOccurred())

		_, ok := st.Tweet(id)
		Expect(ok).To(BeFalse())
	})

	It("runs the dangling and attachment queries", func() {
		id := run + "-4"
		Expect(st.SaveTweet(&models.Tweet{
			ID: id, ConversationID: id, ReplyingTo: run + "-missing",
			Dangling: models.DanglingRefs(0).With(models.DanglingReply),
		})).To(Succeed())
		Expect(st.SaveConversation(&models.Conversation{ID: id})).To(Succeed())

		dangling, err := st.TweetsWithDanglingRefs()
		Expect(err).NotTo(HaveOccurred())
		Expect(dangling).NotTo(BeEmpty())

		convs, err := st.ConversationsWithoutDiscussion()
		Expect(err).NotTo(HaveOccurred())
		found := false
		for _, c := range convs {
			if c.ID == id {
				found = true
			}
		}
		Expect(found).To(BeTrue())
	})

	It("notifies subscribers of committed writes", func() {
		token, ch := st.Subscribe(store.TweetsCollection)
		defer st.Unsubscribe(token)

		id := run + "-5"
		Expect(st.SaveTweet(&models.Tweet{ID: id})).To(Succeed())

		Eventually(ch, 2*time.Second).Should(Receive(Equal(store.Change{
			Collection: store.TweetsCollection,
			ID:         id,
		})))
	})
})
