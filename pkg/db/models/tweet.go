package models

import (
	"time"

	"github.com/lib/pq"
)

// DanglingRefs is a bitmask recording which of a tweet's references point
// at a tweet that is not yet present in the store.
type DanglingRefs int16

const (
	DanglingReply DanglingRefs = 1 << iota
	DanglingQuote
	DanglingRetweet
)

// Has reports whether the given bit is set.
func (d DanglingRefs) Has(bit DanglingRefs) bool {
	return d&bit != 0
}

// With returns the mask with the given bit set.
func (d DanglingRefs) With(bit DanglingRefs) DanglingRefs {
	return d | bit
}

// Without returns the mask with the given bit cleared.
func (d DanglingRefs) Without(bit DanglingRefs) DanglingRefs {
	return d &^ bit
}

// Tweet is the persisted record for a single tweet. A tweet belongs to
// exactly one conversation, keyed by ConversationID.
type Tweet struct {
	ID             string    `gorm:"primaryKey;column:id"`
	ConversationID string    `gorm:"column:conversation_id;index"`
	AuthorID       string    `gorm:"column:author_id;index"`
	CreatedAt      time.Time `gorm:"column:created_at"`
	Text           string    `gorm:"column:text"`

	// Reference targets. Empty string means the reference is absent.
	ReplyingTo string `gorm:"column:replying_to"`
	Quoting    string `gorm:"column:quoting"`
	Retweeting string `gorm:"column:retweeting"`

	Relevance Relevance    `gorm:"column:relevance;type:relevance;default:irrelevant"`
	Read      bool         `gorm:"column:read;default:false"`
	Dangling  DanglingRefs `gorm:"column:dangling;default:0"`

	// Unavailable marks a tweet that could not be fetched (deleted,
	// protected, or persistently failing). Tombstones stop the crawler
	// from re-requesting the same ID.
	Unavailable bool `gorm:"column:unavailable;default:false"`

	MediaKeys        pq.StringArray `gorm:"column:media_keys;type:text[]"`
	MentionedUserIDs pq.StringArray `gorm:"column:mentioned_user_ids;type:text[]"`

	// RetweetedBy is the inverse relation: user IDs known to have
	// retweeted this tweet.
	RetweetedBy pq.StringArray `gorm:"column:retweeted_by;type:text[]"`

	LastUpdated time.Time `gorm:"column:last_updated"`
}

// TableName specifies the table name for the Tweet model
func (Tweet) TableName() string {
	return "tweets"
}

// PrimaryReference returns the reference that drives tree placement:
// the first present of replying-to, quoting, retweeting, in that order.
// Returns "" when the tweet references nothing.
func (t *Tweet) PrimaryReference() string {
	if t.ReplyingTo != "" {
		return t.ReplyingTo
	}
	if t.Quoting != "" {
		return t.Quoting
	}
	return t.Retweeting
}

// References returns every reference target paired with its dangling bit.
func (t *Tweet) References() map[DanglingRefs]string {
	refs := make(map[DanglingRefs]string, 3)
	if t.ReplyingTo != "" {
		refs[DanglingReply] = t.ReplyingTo
	}
	if t.Quoting != "" {
		refs[DanglingQuote] = t.Quoting
	}
	if t.Retweeting != "" {
		refs[DanglingRetweet] = t.Retweeting
	}
	return refs
}

// IsConversationRoot reports whether this tweet is the root of its
// conversation, i.e. its ID equals the conversation ID.
func (t *Tweet) IsConversationRoot() bool {
	return t.ID == t.ConversationID
}
