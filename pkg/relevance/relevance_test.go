package relevance_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/birdthread/threader-go/pkg/db/models"
	"github.com/birdthread/threader-go/pkg/relevance"
)

var _ = Describe("Classify", func() {
	following := map[string]struct{}{"alice": {}}

	It("classifies tweets by unfollowed authors as irrelevant", func() {
		t := &models.Tweet{ID: "1", AuthorID: "stranger"}
		Expect(relevance.Classify(t, following)).To(Equal(models.RelevanceIrrelevant))
	})

	It("classifies a followed author's reply as reply", func() {
		t := &models.Tweet{ID: "1", AuthorID: "alice", ReplyingTo: "2"}
		Expect(relevance.Classify(t, following)).To(Equal(models.RelevanceReply))
	})

	It("classifies a followed author's standalone tweet as discussion", func() {
		t := &models.Tweet{ID: "1", AuthorID: "alice"}
		Expect(relevance.Classify(t, following)).To(Equal(models.RelevanceDiscussion))
	})

	It("classifies a followed author's quote as discussion", func() {
		t := &models.Tweet{ID: "1", AuthorID: "alice", Quoting: "2"}
		Expect(relevance.Classify(t, following)).To(Equal(models.RelevanceDiscussion))
	})

	It("is deterministic for identical input", func() {
		t := &models.Tweet{ID: "1", AuthorID: "alice", ReplyingTo: "2"}
		first := relevance.Classify(t, following)
		for i := 0; i < 10; i++ {
			Expect(relevance.Classify(t, following)).To(Equal(first))
		}
	})
})
