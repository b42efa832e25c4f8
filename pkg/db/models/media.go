package models

// Media is an attachment belonging to a tweet, keyed by the API's media_key.
type Media struct {
	MediaKey        string `gorm:"primaryKey;column:media_key"`
	TweetID         string `gorm:"column:tweet_id;index"`
	Type            string `gorm:"column:type"` // "photo", "video", "animated_gif"
	URL             string `gorm:"column:url"`
	PreviewImageURL string `gorm:"column:preview_image_url"`
	Width           int    `gorm:"column:width"`
	Height          int    `gorm:"column:height"`
	AltText         string `gorm:"column:alt_text"`
}

// TableName specifies the table name for the Media model
func (Media) TableName() string {
	return "media"
}
