// Package store owns the persisted entity set: tweets, users,
// conversations, discussions and media. It exposes primary-key lookups,
// the filtered queries the dangling scanner runs, and atomic write
// transactions with per-observer change notification suppression.
package store

import "github.com/birdthread/threader-go/pkg/db/models"

// Collection names a notifiable entity collection.
type Collection string

const (
	TweetsCollection        Collection = "tweets"
	UsersCollection         Collection = "users"
	ConversationsCollection Collection = "conversations"
	DiscussionsCollection   Collection = "discussions"
	MediaCollection         Collection = "media"
)

// Change describes one committed mutation.
type Change struct {
	Collection Collection
	ID         string
}

// ObserverToken identifies one change subscription. Transactions may name
// tokens whose notifications should be suppressed, so internal consistency
// writes do not trigger redundant refreshes for observers that are not
// looking at the affected rows.
type ObserverToken string

// TxOptions carries per-transaction settings.
type TxOptions struct {
	suppressed map[ObserverToken]struct{}
}

// TxOption configures a transaction.
type TxOption func(*TxOptions)

// WithoutNotifying suppresses change notifications for the given observer
// tokens for the duration of the transaction.
func WithoutNotifying(tokens ...ObserverToken) TxOption {
	return func(o *TxOptions) {
		if o.suppressed == nil {
			o.suppressed = make(map[ObserverToken]struct{}, len(tokens))
		}
		for _, t := range tokens {
			o.suppressed[t] = struct{}{}
		}
	}
}

func applyTxOptions(opts []TxOption) *TxOptions {
	o := &TxOptions{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Store is the persistence contract shared by the gorm-backed store and
// the in-memory store. Lookups never fail on absence: a miss returns
// (nil, false). Write errors surface from the Save methods and from
// Transaction.
type Store interface {
	Tweet(id string) (*models.Tweet, bool)
	User(id string) (*models.User, bool)
	Conversation(id string) (*models.Conversation, bool)
	Discussion(id string) (*models.Discussion, bool)
	Media(key string) (*models.Media, bool)

	SaveTweet(t *models.Tweet) error
	SaveUser(u *models.User) error
	SaveConversation(c *models.Conversation) error
	SaveDiscussion(d *models.Discussion) error
	SaveMedia(m *models.Media) error

	// ConversationsWithoutDiscussion returns conversations not yet
	// attached to any discussion.
	ConversationsWithoutDiscussion() ([]models.Conversation, error)
	// ConversationTweets returns the member tweets of a conversation.
	ConversationTweets(conversationID string) ([]models.Tweet, error)
	// DiscussionConversations returns the member conversations of a
	// discussion.
	DiscussionConversations(discussionID string) ([]models.Conversation, error)
	// TweetsWithDanglingRefs returns tweets whose dangling bitmask is
	// non-empty.
	TweetsWithDanglingRefs() ([]models.Tweet, error)
	// FollowedUserIDs returns the IDs of users marked as followed.
	FollowedUserIDs() ([]string, error)
	// NewestTweetID returns the highest tweet ID in the store, used as
	// the since_id cursor for timeline refreshes.
	NewestTweetID() (string, bool)

	// MarkDiscussionRead flips the read flag on a discussion and its
	// member tweets in one transaction.
	MarkDiscussionRead(id string, opts ...TxOption) error

	// Transaction runs fn atomically. All mutations made through tx are
	// committed together; any error rolls the whole batch back and no
	// notifications fire.
	Transaction(fn func(tx Store) error, opts ...TxOption) error

	Subscribe(cols ...Collection) (ObserverToken, <-chan Change)
	Unsubscribe(token ObserverToken)
}
