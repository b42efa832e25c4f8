// Package relevance computes a tweet's importance tier. The classifier is
// pure: the same tweet and following set always produce the same tier.
package relevance

import "github.com/birdthread/threader-go/pkg/db/models"

// Classify returns the relevance tier for a tweet given the set of
// followed user IDs. A tweet by an unfollowed author is irrelevant; a
// followed author's reply classifies as reply; anything else a followed
// author posts anchors a discussion.
//
// The blocked tier is never produced here: it is only ever carried forward
// from persisted state set by an explicit block action.
func Classify(tweet *models.Tweet, followingIDs map[string]struct{}) models.Relevance {
	if _, following := followingIDs[tweet.AuthorID]; !following {
		return models.RelevanceIrrelevant
	}
	if tweet.ReplyingTo != "" {
		return models.RelevanceReply
	}
	return models.RelevanceDiscussion
}
