package service

import (
	"context"
	"log/slog"

	"odinbook/internal/models"
	"odinbook/internal/notifications"
	"odinbook/internal/observability"
	"odinbook/internal/repository"
)

// NotificationService is the notification engine: it materializes one
// notification per triggering fact and serves each user's inbox.
type NotificationService struct {
	repo     repository.NotificationRepository
	inbox    repository.InboxProjection
	notifier *notifications.Notifier
	logger   *slog.Logger
}

// NewNotificationService returns a new NotificationService. notifier may be
// nil when no Redis is configured.
func NewNotificationService(
	repo repository.NotificationRepository,
	inbox repository.InboxProjection,
	notifier *notifications.Notifier,
	logger *slog.Logger,
) *NotificationService {
	if logger == nil {
		logger = observability.Logger
	}
	return &NotificationService{
		repo:     repo,
		inbox:    inbox,
		notifier: notifier,
		logger:   logger,
	}
}

// Notify stores a notification and appends it to the recipient's inbox.
// Repeating a call with the same EventID returns the stored notification
// without creating another.
func (s *NotificationService) Notify(ctx context.Context, in models.NotifyInput) (*models.Notification, error) {
	if !in.Type.Valid() {
		return nil, models.NewValidationError("Unknown notification type")
	}
	if in.FromUserID == 0 || in.ToUserID == 0 {
		return nil, models.NewValidationError("Notification requires a sender and a recipient")
	}
	if in.FromUserID == in.ToUserID {
		return nil, models.NewValidationError("Users are not notified about their own actions")
	}
	switch in.Type {
	case models.NotificationNewPost, models.NotificationNewComment:
		if in.PostID == nil {
			return nil, models.NewValidationError("Post notifications require a post id")
		}
	}

	n := &models.Notification{
		Type:       in.Type,
		FromUserID: in.FromUserID,
		ToUserID:   in.ToUserID,
		PostID:     in.PostID,
	}
	if in.EventID != "" {
		eventID := in.EventID
		n.EventID = &eventID
	}

	created, err := s.repo.Create(ctx, n)
	if err != nil {
		return nil, err
	}
	if !created {
		return n, nil
	}

	observability.NotificationsCreated.WithLabelValues(string(n.Type)).Inc()
	if err := s.notifier.PublishNotification(ctx, n); err != nil {
		s.logger.WarnContext(ctx, "failed to publish notification",
			slog.Uint64("notification_id", uint64(n.ID)),
			slog.String("error", err.Error()),
		)
	}
	return n, nil
}

// ListAll returns every notification of userID, newest first.
func (s *NotificationService) ListAll(ctx context.Context, userID uint) ([]models.Notification, error) {
	return s.repo.List(ctx, userID, false)
}

// ListUnread returns the unread notifications of userID, newest first.
func (s *NotificationService) ListUnread(ctx context.Context, userID uint) ([]models.Notification, error) {
	return s.repo.List(ctx, userID, true)
}

// UnreadCount returns how many notifications userID has not read.
func (s *NotificationService) UnreadCount(ctx context.Context, userID uint) (int64, error) {
	return s.repo.CountUnread(ctx, userID)
}

// HasNotifications checks the inbox projection without loading records.
func (s *NotificationService) HasNotifications(ctx context.Context, userID uint) (bool, error) {
	return s.inbox.Has(ctx, userID)
}

// Inbox returns the notification ids of userID's inbox, newest first.
func (s *NotificationService) Inbox(ctx context.Context, userID uint) ([]uint, error) {
	return s.inbox.IDs(ctx, userID)
}

// MarkRead marks one of userID's notifications read. Marking a read
// notification again is a no-op.
func (s *NotificationService) MarkRead(ctx context.Context, userID, id uint) (*models.Notification, error) {
	return s.repo.MarkRead(ctx, userID, id)
}

// MarkAllRead marks every notification userID has at call time read.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID uint) (int64, error) {
	return s.repo.MarkAllRead(ctx, userID)
}

// Delete removes one of userID's notifications and its inbox entry.
func (s *NotificationService) Delete(ctx context.Context, userID, id uint) error {
	return s.repo.Delete(ctx, userID, id)
}

// DeleteAll removes every notification userID has at call time.
func (s *NotificationService) DeleteAll(ctx context.Context, userID uint) (int64, error) {
	return s.repo.DeleteAll(ctx, userID)
}

// CancelFriendRequestNotification retracts the unread request notification
// fromID's request created for toID.
func (s *NotificationService) CancelFriendRequestNotification(ctx context.Context, fromID, toID uint) error {
	removed, err := s.repo.DeleteUnreadOfType(ctx, models.NotificationIncomingFriendRequest, fromID, toID)
	if err != nil {
		return err
	}
	s.logger.DebugContext(ctx, "retracted friend request notifications",
		slog.Uint64("from_user_id", uint64(fromID)),
		slog.Uint64("to_user_id", uint64(toID)),
		slog.Int64("removed", removed),
	)
	return nil
}

// DeleteForPost removes every notification that points at postID.
func (s *NotificationService) DeleteForPost(ctx context.Context, postID uint) error {
	_, err := s.repo.DeleteByPost(ctx, postID)
	return err
}
