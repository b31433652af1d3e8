package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"odinbook/internal/models"
	"odinbook/internal/observability"
)

// NotificationSink materializes and retracts notifications. Notify must be
// idempotent on input.EventID.
type NotificationSink interface {
	Notify(ctx context.Context, input models.NotifyInput) (*models.Notification, error)
	CancelFriendRequestNotification(ctx context.Context, fromID, toID uint) error
	DeleteForPost(ctx context.Context, postID uint) error
}

// FeedInvalidator drops cached feeds.
type FeedInvalidator interface {
	Invalidate(ctx context.Context, userIDs ...uint) error
}

// FriendLister reads the friend set of a user.
type FriendLister interface {
	FriendsOf(ctx context.Context, userID uint) ([]uint, error)
	FriendsAsOf(ctx context.Context, userID uint, at time.Time) ([]uint, error)
}

// PostLookup resolves the author of a post.
type PostLookup interface {
	PostAuthor(ctx context.Context, postID uint) (uint, error)
}

// Dispatcher turns events into notification and feed cache work.
type Dispatcher struct {
	notifications NotificationSink
	feeds         FeedInvalidator
	friends       FriendLister
	posts         PostLookup
	logger        *slog.Logger
}

// NewDispatcher wires the event handlers. feeds may be nil when no cache is
// configured.
func NewDispatcher(
	notifications NotificationSink,
	feeds FeedInvalidator,
	friends FriendLister,
	posts PostLookup,
	logger *slog.Logger,
) *Dispatcher {
	if logger == nil {
		logger = observability.Logger
	}
	return &Dispatcher{
		notifications: notifications,
		feeds:         feeds,
		friends:       friends,
		posts:         posts,
		logger:        logger,
	}
}

// Handle is a Handler.
func (d *Dispatcher) Handle(ctx context.Context, e Event) error {
	switch e.Type {
	case FriendRequestSent:
		if err := d.notify(ctx, e, models.NotificationIncomingFriendRequest, e.TargetID, nil); err != nil {
			return err
		}
		return d.invalidate(ctx, e.ActorID, e.TargetID)

	case FriendRequestAccepted:
		// The accepter notifies the original sender.
		if err := d.notify(ctx, e, models.NotificationAcceptedFriendRequest, e.TargetID, nil); err != nil {
			return err
		}
		return d.invalidate(ctx, e.ActorID, e.TargetID)

	case FriendRequestCanceled:
		if err := d.notifications.CancelFriendRequestNotification(ctx, e.ActorID, e.TargetID); err != nil {
			return fmt.Errorf("cancel request notification: %w", err)
		}
		return d.invalidate(ctx, e.ActorID, e.TargetID)

	case FriendRequestRejected, FriendRemoved:
		return d.invalidate(ctx, e.ActorID, e.TargetID)

	case PostCreated:
		return d.handlePostCreated(ctx, e)

	case PostUpdated:
		return d.invalidateAudience(ctx, e.ActorID)

	case PostDeleted:
		if err := d.notifications.DeleteForPost(ctx, e.PostID); err != nil {
			return fmt.Errorf("delete post notifications: %w", err)
		}
		return d.invalidateAudience(ctx, e.ActorID)

	case CommentCreated:
		return d.handleCommentCreated(ctx, e)

	case CommentDeleted:
		authorID, err := d.posts.PostAuthor(ctx, e.PostID)
		if models.IsCode(err, models.CodeNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return d.invalidateAudience(ctx, authorID)
	}
	return models.NewValidationError(fmt.Sprintf("unknown event type %q", e.Type))
}

// handlePostCreated notifies the friends the author had when the post was
// created. Friends added while the event waited in the queue are skipped.
func (d *Dispatcher) handlePostCreated(ctx context.Context, e Event) error {
	friendIDs, err := d.friends.FriendsAsOf(ctx, e.ActorID, e.OccurredAt)
	if err != nil {
		return fmt.Errorf("load audience: %w", err)
	}
	postID := e.PostID
	for _, friendID := range friendIDs {
		err := d.notify(ctx, e, models.NotificationNewPost, friendID, &postID)
		if models.IsCode(err, models.CodeNotFound) {
			// PostDeleted retracts what was already sent and refreshes feeds.
			d.logger.InfoContext(ctx, "post deleted during fan-out, skipping notification",
				slog.Uint64("post_id", uint64(postID)))
			return nil
		}
		if err != nil {
			return err
		}
	}
	return d.invalidate(ctx, append(friendIDs, e.ActorID)...)
}

func (d *Dispatcher) handleCommentCreated(ctx context.Context, e Event) error {
	authorID, err := d.posts.PostAuthor(ctx, e.PostID)
	if models.IsCode(err, models.CodeNotFound) {
		d.logger.InfoContext(ctx, "comment on deleted post, skipping notification",
			slog.Uint64("post_id", uint64(e.PostID)))
		return nil
	}
	if err != nil {
		return fmt.Errorf("load post author: %w", err)
	}
	if authorID != e.ActorID {
		postID := e.PostID
		err := d.notify(ctx, e, models.NotificationNewComment, authorID, &postID)
		if models.IsCode(err, models.CodeNotFound) {
			d.logger.InfoContext(ctx, "post deleted before notifying, skipping notification",
				slog.Uint64("post_id", uint64(postID)))
			return nil
		}
		if err != nil {
			return err
		}
	}
	return d.invalidateAudience(ctx, authorID)
}

func (d *Dispatcher) notify(ctx context.Context, e Event, t models.NotificationType, toID uint, postID *uint) error {
	_, err := d.notifications.Notify(ctx, models.NotifyInput{
		Type:       t,
		FromUserID: e.ActorID,
		ToUserID:   toID,
		PostID:     postID,
		EventID:    e.ID,
	})
	if err != nil {
		return fmt.Errorf("notify %s to %d: %w", t, toID, err)
	}
	return nil
}

// invalidateAudience drops the feeds of authorID and of everyone who sees
// authorID's posts.
func (d *Dispatcher) invalidateAudience(ctx context.Context, authorID uint) error {
	if d.feeds == nil {
		return nil
	}
	friendIDs, err := d.friends.FriendsOf(ctx, authorID)
	if err != nil {
		return fmt.Errorf("load audience: %w", err)
	}
	return d.invalidate(ctx, append(friendIDs, authorID)...)
}

func (d *Dispatcher) invalidate(ctx context.Context, userIDs ...uint) error {
	if d.feeds == nil || len(userIDs) == 0 {
		return nil
	}
	if err := d.feeds.Invalidate(ctx, userIDs...); err != nil {
		return fmt.Errorf("invalidate feeds: %w", err)
	}
	return nil
}
