package models_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/birdthread/threader-go/pkg/db/models"
)

var _ = Describe("Relevance", func() {
	It("orders tiers blocked < irrelevant < reply < discussion", func() {
		Expect(models.RelevanceBlocked.Rank()).To(BeNumerically("<", models.RelevanceIrrelevant.Rank()))
		Expect(models.RelevanceIrrelevant.Rank()).To(BeNumerically("<", models.RelevanceReply.Rank()))
		Expect(models.RelevanceReply.Rank()).To(BeNumerically("<", models.RelevanceDiscussion.Rank()))
	})

	It("ranks unknown values as blocked", func() {
		Expect(models.Relevance("bogus").Rank()).To(Equal(models.RelevanceBlocked.Rank()))
	})

	It("compares tiers with AtLeast", func() {
		Expect(models.RelevanceDiscussion.AtLeast(models.RelevanceThreshold)).To(BeTrue())
		Expect(models.RelevanceReply.AtLeast(models.RelevanceThreshold)).To(BeFalse())
		Expect(models.RelevanceReply.AtLeast(models.RelevanceReply)).To(BeTrue())
	})

	It("picks the higher tier with MaxRelevance", func() {
		Expect(models.MaxRelevance(models.RelevanceIrrelevant, models.RelevanceDiscussion)).To(Equal(models.RelevanceDiscussion))
		Expect(models.MaxRelevance(models.RelevanceReply, models.RelevanceIrrelevant)).To(Equal(models.RelevanceReply))
	})
})

var _ = Describe("DanglingRefs", func() {
	It("sets, checks and clears bits", func() {
		var d models.DanglingRefs
		d = d.With(models.DanglingReply).With(models.DanglingQuote)
		Expect(d.Has(models.DanglingReply)).To(BeTrue())
		Expect(d.Has(models.DanglingQuote)).To(BeTrue())
		Expect(d.Has(models.DanglingRetweet)).To(BeFalse())

		d = d.Without(models.DanglingReply)
		Expect(d.Has(models.DanglingReply)).To(BeFalse())
		Expect(d.Has(models.DanglingQuote)).To(BeTrue())
	})
})

var _ = Describe("Tweet", func() {
	It("resolves the primary reference in reply, quote, retweet order", func() {
		t := &models.Tweet{ReplyingTo: "1", Quoting: "2", Retweeting: "3"}
		Expect(t.PrimaryReference()).To(Equal("1"))

		t.ReplyingTo = ""
		Expect(t.PrimaryReference()).To(Equal("2"))

		t.Quoting = ""
		Expect(t.PrimaryReference()).To(Equal("3"))

		t.Retweeting = ""
		Expect(t.PrimaryReference()).To(BeEmpty())
	})

	It("maps references to their dangling bits", func() {
		t := &models.Tweet{ReplyingTo: "1", Retweeting: "3"}
		refs := t.References()
		Expect(refs).To(HaveLen(2))
		Expect(refs[models.DanglingReply]).To(Equal("1"))
		Expect(refs[models.DanglingRetweet]).To(Equal("3"))
	})

	It("detects conversation roots", func() {
		t := &models.Tweet{ID: "10", ConversationID: "10"}
		Expect(t.IsConversationRoot()).To(BeTrue())
		t.ConversationID = "9"
		Expect(t.IsConversationRoot()).To(BeFalse())
	})
})
