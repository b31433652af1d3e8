// Package events routes domain events to the notification engine and the
// feed cache with per-key ordering, retries and a dead-letter path.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"odinbook/internal/models"

	"github.com/google/uuid"
)

// Type tags a domain event.
type Type string

const (
	FriendRequestSent     Type = "FriendRequestSent"
	FriendRequestAccepted Type = "FriendRequestAccepted"
	FriendRequestCanceled Type = "FriendRequestCanceled"
	FriendRequestRejected Type = "FriendRequestRejected"
	FriendRemoved         Type = "FriendRemoved"
	PostCreated           Type = "PostCreated"
	PostUpdated           Type = "PostUpdated"
	PostDeleted           Type = "PostDeleted"
	CommentCreated        Type = "CommentCreated"
	CommentDeleted        Type = "CommentDeleted"
)

// IsRelationship reports whether t is produced by the relationship store.
func (t Type) IsRelationship() bool {
	switch t {
	case FriendRequestSent, FriendRequestAccepted, FriendRequestCanceled,
		FriendRequestRejected, FriendRemoved:
		return true
	}
	return false
}

// Event is a committed fact. It carries ids only; fan-out targets are
// derived from current state when the event is handled.
//
// For relationship events ActorID performed the operation and TargetID is
// the other user: for FriendRequestAccepted the actor is the accepter and
// the target the original sender.
type Event struct {
	ID         string    `json:"id"`
	Type       Type      `json:"type"`
	ActorID    uint      `json:"actor_id"`
	TargetID   uint      `json:"target_id,omitempty"`
	PostID     uint      `json:"post_id,omitempty"`
	CommentID  uint      `json:"comment_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Key is the ordering key. Events sharing a key are handled in publish order.
func (e Event) Key() string {
	if e.Type.IsRelationship() {
		return "pair:" + models.PairKey(e.ActorID, e.TargetID)
	}
	return fmt.Sprintf("user:%d", e.ActorID)
}

func newEvent(t Type, actorID uint) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       t,
		ActorID:    actorID,
		OccurredAt: time.Now().UTC(),
	}
}

// NewRelationshipEvent builds a relationship event between actor and target.
func NewRelationshipEvent(t Type, actorID, targetID uint) Event {
	e := newEvent(t, actorID)
	e.TargetID = targetID
	return e
}

// NewPostEvent builds a post event authored by authorID.
func NewPostEvent(t Type, authorID, postID uint) Event {
	e := newEvent(t, authorID)
	e.PostID = postID
	return e
}

// NewPostCreatedEvent builds the PostCreated event for a stored post. It
// occurs at the post's creation time, which bounds the new_post audience.
func NewPostCreatedEvent(post *models.Post) Event {
	e := NewPostEvent(PostCreated, post.UserID, post.ID)
	if !post.CreatedAt.IsZero() {
		e.OccurredAt = post.CreatedAt.UTC()
	}
	return e
}

// NewCommentEvent builds a comment event by commenterID on postID.
func NewCommentEvent(t Type, commenterID, postID, commentID uint) Event {
	e := newEvent(t, commenterID)
	e.PostID = postID
	e.CommentID = commentID
	return e
}

// Encode serializes e for the dead-letter payload.
func (e Event) Encode() (string, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Decode restores an event stored by Encode.
func Decode(payload string) (Event, error) {
	var e Event
	if err := json.Unmarshal([]byte(payload), &e); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	if e.ID == "" || e.Type == "" {
		return Event{}, fmt.Errorf("decode event: missing id or type")
	}
	return e, nil
}
