package models

import "time"

// NotificationType enumerates the facts a notification can carry.
type NotificationType string

const (
	NotificationIncomingFriendRequest NotificationType = "incoming_friend_request"
	NotificationAcceptedFriendRequest NotificationType = "accepted_friend_request"
	NotificationNewComment            NotificationType = "new_comment"
	NotificationNewPost               NotificationType = "new_post"
)

// Valid reports whether t is one of the known notification types.
func (t NotificationType) Valid() bool {
	switch t {
	case NotificationIncomingFriendRequest, NotificationAcceptedFriendRequest,
		NotificationNewComment, NotificationNewPost:
		return true
	}
	return false
}

// Notification is one fact delivered to one user.
type Notification struct {
	ID         uint             `gorm:"primaryKey" json:"id"`
	Type       NotificationType `gorm:"type:varchar(32);not null" json:"type"`
	FromUserID uint             `gorm:"not null" json:"from_user_id"`
	ToUserID   uint             `gorm:"not null;index:idx_notifications_to_read,priority:1;uniqueIndex:idx_notifications_event_to,priority:2" json:"to_user_id"`
	PostID     *uint            `gorm:"index" json:"post_id,omitempty"`
	Read       bool             `gorm:"not null;default:false;index:idx_notifications_to_read,priority:2" json:"read"`
	// EventID is set when the notification was produced by a routed event so
	// that redelivery of the same event cannot create a duplicate.
	EventID   *string   `gorm:"size:36;uniqueIndex:idx_notifications_event_to,priority:1" json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for GORM
func (Notification) TableName() string {
	return "notifications"
}

// InboxEntry is one id of a user's denormalized notification inbox.
type InboxEntry struct {
	UserID         uint      `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	NotificationID uint      `gorm:"primaryKey;autoIncrement:false;index" json:"notification_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// TableName specifies the table name for GORM
func (InboxEntry) TableName() string {
	return "inbox_entries"
}

// NotifyInput describes a notification to materialize.
type NotifyInput struct {
	Type       NotificationType
	FromUserID uint
	ToUserID   uint
	PostID     *uint
	EventID    string
}
