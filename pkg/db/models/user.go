package models

import "time"

// User is the persisted record for a tweet author.
type User struct {
	ID       string `gorm:"primaryKey;column:id"`
	Username string `gorm:"column:username"`
	Name     string `gorm:"column:name"`

	// Following marks users the account follows. It feeds the relevance
	// classifier and the stale fallback of the following cache.
	Following bool `gorm:"column:following;default:false;index"`

	// FetchedFrom/FetchedUntil bound the time range over which this
	// user's post history has been backfilled. Zero values mean no
	// backfill has happened yet.
	FetchedFrom  time.Time `gorm:"column:fetched_from"`
	FetchedUntil time.Time `gorm:"column:fetched_until"`

	LastUpdated time.Time `gorm:"column:last_updated"`
}

// TableName specifies the table name for the User model
func (User) TableName() string {
	return "users"
}
