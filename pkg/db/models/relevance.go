package models

// Relevance is the importance tier of a tweet. Tiers are ordered:
// blocked < irrelevant < reply < discussion. A discussion surfaces to the
// user when at least one member tweet reaches RelevanceThreshold.
type Relevance string

const (
	RelevanceBlocked    Relevance = "blocked"
	RelevanceIrrelevant Relevance = "irrelevant"
	RelevanceReply      Relevance = "reply"
	RelevanceDiscussion Relevance = "discussion"
)

// RelevanceThreshold is the tier at which a discussion is worth surfacing.
const RelevanceThreshold = RelevanceDiscussion

var relevanceRank = map[Relevance]int{
	RelevanceBlocked:    0,
	RelevanceIrrelevant: 1,
	RelevanceReply:      2,
	RelevanceDiscussion: 3,
}

// Rank returns the ordinal position of the tier. Unknown values rank as
// blocked.
func (r Relevance) Rank() int {
	return relevanceRank[r]
}

// AtLeast reports whether r ranks at or above other.
func (r Relevance) AtLeast(other Relevance) bool {
	return r.Rank() >= other.Rank()
}

// MaxRelevance returns the higher-ranked of the two tiers.
func MaxRelevance(a, b Relevance) Relevance {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}
