package models

import (
	"fmt"
	"time"
)

// RelationKind is the array a relation row belongs to on its owner.
type RelationKind string

const (
	// RelationFriend marks OtherID as a member of the owner's friends set.
	RelationFriend RelationKind = "friend"
	// RelationOutgoing marks a request the owner sent to OtherID.
	RelationOutgoing RelationKind = "outgoing"
	// RelationIncoming marks a request OtherID sent to the owner.
	RelationIncoming RelationKind = "incoming"
)

// UserRelation is one entry of a user's friends, outgoingRequests or
// incomingRequests set. Every relation is stored twice, once per side.
type UserRelation struct {
	ID        uint         `gorm:"primaryKey" json:"-"`
	UserID    uint         `gorm:"not null;uniqueIndex:idx_user_relations_pair;index:idx_user_relations_kind,priority:1" json:"user_id"`
	OtherID   uint         `gorm:"not null;uniqueIndex:idx_user_relations_pair" json:"other_id"`
	Kind      RelationKind `gorm:"type:varchar(16);not null;index:idx_user_relations_kind,priority:2" json:"kind"`
	CreatedAt time.Time    `json:"created_at"`
	// UpdatedAt moves only when a pending row is promoted, so on a friend
	// row it is the moment the friendship started.
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (UserRelation) TableName() string {
	return "user_relations"
}

// RelationshipStatus is the state of an ordered pair (A, B) seen from A.
type RelationshipStatus string

const (
	// StatusNone means no relationship in either direction.
	StatusNone RelationshipStatus = "none"
	// StatusPendingSent means A sent a request to B (A_TO_B_PENDING).
	StatusPendingSent RelationshipStatus = "pending_sent"
	// StatusPendingReceived means B sent a request to A (B_TO_A_PENDING).
	StatusPendingReceived RelationshipStatus = "pending_received"
	// StatusFriends means A and B are mutual friends.
	StatusFriends RelationshipStatus = "friends"
)

// Reverse returns the same pair state seen from the other side.
func (s RelationshipStatus) Reverse() RelationshipStatus {
	switch s {
	case StatusPendingSent:
		return StatusPendingReceived
	case StatusPendingReceived:
		return StatusPendingSent
	default:
		return s
	}
}

// RelationshipOverview lists the three relationship sets of one user.
type RelationshipOverview struct {
	Friends  []uint `json:"friends"`
	Incoming []uint `json:"incoming_requests"`
	Outgoing []uint `json:"outgoing_requests"`
}

// PairKey identifies the unordered pair {a, b} as "min:max".
func PairKey(a, b uint) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b)
}
