package twitter

import "fmt"

// Tweet is the subset of the v2 tweet object this engine consumes.
type Tweet struct {
	ID             string `json:"id"`
	Text           string `json:"text"`
	AuthorID       string `json:"author_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	CreatedAt      string `json:"created_at,omitempty"`

	InReplyToUserID string `json:"in_reply_to_user_id,omitempty"`

	ReferencedTweets []ReferencedTweet `json:"referenced_tweets,omitempty"`

	Attachments struct {
		MediaKeys []string `json:"media_keys,omitempty"`
	} `json:"attachments,omitempty"`

	Entities struct {
		Mentions []Mention `json:"mentions,omitempty"`
	} `json:"entities,omitempty"`
}

// ReferencedTweet is one entry of referenced_tweets.
type ReferencedTweet struct {
	Type string `json:"type"` // "replied_to", "quoted" or "retweeted"
	ID   string `json:"id"`
}

// Mention is an @mention inside a tweet's entities.
type Mention struct {
	Start    int    `json:"start"`
	End      int    `json:"end"`
	Username string `json:"username"`
	ID       string `json:"id"`
}

// Reference accessors. The v2 API sends at most one entry per type.

func (t *Tweet) Reference(refType string) string {
	for _, ref := range t.ReferencedTweets {
		if ref.Type == refType {
			return ref.ID
		}
	}
	return ""
}

func (t *Tweet) RepliedTo() string { return t.Reference("replied_to") }
func (t *Tweet) Quoted() string    { return t.Reference("quoted") }
func (t *Tweet) Retweeted() string { return t.Reference("retweeted") }

// User is the subset of the v2 user object this engine consumes.
type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
}

// Media is a media object from includes.media.
type Media struct {
	MediaKey        string `json:"media_key"`
	Type            string `json:"type"` // "animated_gif", "photo", "video"
	URL             string `json:"url,omitempty"`
	PreviewImageURL string `json:"preview_image_url,omitempty"`
	Height          int    `json:"height,omitempty"`
	Width           int    `json:"width,omitempty"`
	AltText         string `json:"alt_text,omitempty"`
}

// TweetIncludes contains the expanded objects in a response.
type TweetIncludes struct {
	Users  []User  `json:"users,omitempty"`
	Tweets []Tweet `json:"tweets,omitempty"`
	Media  []Media `json:"media,omitempty"`
}

// TwitterError represents an error returned by the Twitter API
type TwitterError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *TwitterError) Error() string {
	return fmt.Sprintf("Twitter API error %d: %s", e.Code, e.Message)
}

// Meta contains information about the response
type Meta struct {
	ResultCount   int    `json:"result_count,omitempty"`
	NextToken     string `json:"next_token,omitempty"`
	PreviousToken string `json:"previous_token,omitempty"`
	NewestID      string `json:"newest_id,omitempty"`
	OldestID      string `json:"oldest_id,omitempty"`
}

// TweetResponse represents the Twitter API response format
type TweetResponse struct {
	Data     []Tweet        `json:"data"`
	Includes *TweetIncludes `json:"includes,omitempty"`
	Errors   []TwitterError `json:"errors,omitempty"`
	Meta     *Meta          `json:"meta,omitempty"`
}

// UserResponse represents a user lookup response.
type UserResponse struct {
	Data   []User         `json:"data"`
	Errors []TwitterError `json:"errors,omitempty"`
	Meta   *Meta          `json:"meta,omitempty"`
}
