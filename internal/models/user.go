// Package models contains data structures for the application's domain models.
package models

import "time"

// User is the identity anchor. Relationship arrays live in user_relations and
// the notification inbox in inbox_entries; both are keyed by user id.
type User struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	Username     string `gorm:"uniqueIndex;not null;size:50" json:"username"`
	Email        string `gorm:"uniqueIndex;not null;size:255" json:"email"`
	PasswordHash string `gorm:"column:password_hash" json:"-"`
	Bio          string `gorm:"size:500" json:"bio"`
	Location     string `gorm:"size:100" json:"location"`
	PhotoURL     string `json:"photo_url"`
	// FriendSetVersion increments on every relationship mutation touching
	// this user. Feed cache keys include it.
	FriendSetVersion uint64    `gorm:"not null;default:0" json:"-"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (User) TableName() string {
	return "users"
}

// UserSummary is the public projection of a user embedded in responses.
type UserSummary struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	PhotoURL string `json:"photo_url,omitempty"`
}

// Summary returns the public projection of u.
func (u User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Username: u.Username, PhotoURL: u.PhotoURL}
}
