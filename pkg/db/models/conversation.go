package models

import "time"

// Conversation groups the tweets sharing one conversation_id. Its identity
// is the ID of its root tweet. Membership is derived from
// Tweet.ConversationID, so it needs no join table.
type Conversation struct {
	ID string `gorm:"primaryKey;column:id"`

	// UpstreamID is the conversation referenced by this conversation's
	// root tweet. nil means not yet determined; once set it points at
	// another conversation's ID.
	UpstreamID *string `gorm:"column:upstream_id"`

	// DiscussionID attaches this conversation to a discussion. Empty
	// string means unattached, which is what the dangling scanner keys on.
	DiscussionID string `gorm:"column:discussion_id;index"`

	// MaxRelevance caches the maximum relevance among member tweets,
	// or irrelevant when the conversation is empty.
	MaxRelevance Relevance `gorm:"column:max_relevance;type:relevance;default:irrelevant"`

	LastUpdated time.Time `gorm:"column:last_updated"`
}

// TableName specifies the table name for the Conversation model
func (Conversation) TableName() string {
	return "conversations"
}

// Attached reports whether the conversation belongs to a discussion.
func (c *Conversation) Attached() bool {
	return c.DiscussionID != ""
}

// Discussion is the maximal tree of causally linked conversations shown to
// the user as one thread. Its identity is the ID of its root conversation.
type Discussion struct {
	ID          string    `gorm:"primaryKey;column:id"`
	Read        bool      `gorm:"column:read;default:false"`
	LastUpdated time.Time `gorm:"column:last_updated;index"`
}

// TableName specifies the table name for the Discussion model
func (Discussion) TableName() string {
	return "discussions"
}
