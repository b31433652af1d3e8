package repository

import (
	"context"
	"database/sql"
	"errors"

	"odinbook/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// NotificationRepository persists notifications and keeps the inbox
// projection in step with them.
type NotificationRepository interface {
	// Create stores n and appends it to the recipient's inbox. When n carries
	// an event id that was already materialized for the recipient, the
	// existing record is returned with created = false.
	Create(ctx context.Context, n *models.Notification) (created bool, err error)
	List(ctx context.Context, userID uint, unreadOnly bool) ([]models.Notification, error)
	CountUnread(ctx context.Context, userID uint) (int64, error)
	MarkRead(ctx context.Context, userID, id uint) (*models.Notification, error)
	MarkAllRead(ctx context.Context, userID uint) (int64, error)
	Delete(ctx context.Context, userID, id uint) error
	DeleteAll(ctx context.Context, userID uint) (int64, error)
	DeleteUnreadOfType(ctx context.Context, t models.NotificationType, fromID, toID uint) (int64, error)
	DeleteByPost(ctx context.Context, postID uint) (int64, error)
}

type notificationRepository struct {
	db      *gorm.DB
	inbox   InboxProjection
	retrier Retrier
}

// NewNotificationRepository creates a notification repository writing the
// inbox through the given projection.
func NewNotificationRepository(db *gorm.DB, inbox InboxProjection, retrier Retrier) NotificationRepository {
	return &notificationRepository{db: db, inbox: inbox, retrier: retrier}
}

func (r *notificationRepository) Create(ctx context.Context, n *models.Notification) (bool, error) {
	return withRetry(ctx, r.retrier, "notification.create", func() (bool, error) {
		created := false
		err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			row := *n
			row.ID = 0
			if row.PostID != nil {
				if err := requireLivePost(tx, *row.PostID); err != nil {
					return err
				}
			}
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
			if res.Error != nil {
				return internalErr(res.Error)
			}
			if res.RowsAffected == 0 {
				if n.EventID == nil {
					return models.NewInternalError(errors.New("notification insert affected no rows"))
				}
				// Redelivered event: hand back what the first delivery stored.
				return internalErr(tx.
					Where("event_id = ? AND to_user_id = ?", *n.EventID, n.ToUserID).
					First(n).Error)
			}
			if err := r.inbox.Append(tx, row.ToUserID, row.ID); err != nil {
				return err
			}
			*n = row
			created = true
			return nil
		})
		return created, err
	})
}

// requireLivePost fails with NOT_FOUND when postID is gone. On Postgres the
// row is share-locked so a concurrent post delete waits for this
// transaction, and its cascade then sees the new notification.
func requireLivePost(tx *gorm.DB, postID uint) error {
	q := tx.Model(&models.Post{}).Where("id = ?", postID)
	if tx.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "SHARE"})
	}
	var ids []uint
	if err := q.Limit(1).Pluck("id", &ids).Error; err != nil {
		return internalErr(err)
	}
	if len(ids) == 0 {
		return models.NewNotFoundError("Post", postID)
	}
	return nil
}

func (r *notificationRepository) List(ctx context.Context, userID uint, unreadOnly bool) ([]models.Notification, error) {
	return withRetry(ctx, r.retrier, "notification.list", func() ([]models.Notification, error) {
		notifications := []models.Notification{}
		q := r.db.WithContext(ctx).Where("to_user_id = ?", userID)
		if unreadOnly {
			q = q.Where("read = ?", false)
		}
		// Ids grow with creation time, so id order is newest-first without
		// depending on timestamp resolution.
		if err := q.Order("id DESC").Find(&notifications).Error; err != nil {
			return nil, internalErr(err)
		}
		return notifications, nil
	})
}

func (r *notificationRepository) CountUnread(ctx context.Context, userID uint) (int64, error) {
	return withRetry(ctx, r.retrier, "notification.count_unread", func() (int64, error) {
		var count int64
		err := r.db.WithContext(ctx).
			Model(&models.Notification{}).
			Where("to_user_id = ? AND read = ?", userID, false).
			Count(&count).Error
		return count, internalErr(err)
	})
}

func (r *notificationRepository) MarkRead(ctx context.Context, userID, id uint) (*models.Notification, error) {
	return withRetry(ctx, r.retrier, "notification.mark_read", func() (*models.Notification, error) {
		var n models.Notification
		err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			// Someone else's id looks exactly like a missing one.
			if err := tx.Where("id = ? AND to_user_id = ?", id, userID).First(&n).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return models.NewNotificationNotFoundError(id)
				}
				return internalErr(err)
			}
			if n.Read {
				return nil
			}
			n.Read = true
			return internalErr(tx.Model(&models.Notification{}).
				Where("id = ? AND to_user_id = ?", id, userID).
				Update("read", true).Error)
		})
		if err != nil {
			return nil, err
		}
		return &n, nil
	})
}

// maxNotificationID returns the newest notification id of userID at this
// point of the transaction, or 0 when there is none.
func maxNotificationID(tx *gorm.DB, userID uint) (uint, error) {
	var cutoff sql.NullInt64
	err := tx.Model(&models.Notification{}).
		Where("to_user_id = ?", userID).
		Select("MAX(id)").
		Row().
		Scan(&cutoff)
	if err != nil {
		return 0, internalErr(err)
	}
	return uint(cutoff.Int64), nil
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, userID uint) (int64, error) {
	return withRetry(ctx, r.retrier, "notification.mark_all_read", func() (int64, error) {
		var updated int64
		err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			cutoff, err := maxNotificationID(tx, userID)
			if err != nil || cutoff == 0 {
				return err
			}
			res := tx.Model(&models.Notification{}).
				Where("to_user_id = ? AND id <= ? AND read = ?", userID, cutoff, false).
				Update("read", true)
			updated = res.RowsAffected
			return internalErr(res.Error)
		})
		return updated, err
	})
}

func (r *notificationRepository) Delete(ctx context.Context, userID, id uint) error {
	return withRetryErr(ctx, r.retrier, "notification.delete", func() error {
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := r.inbox.Remove(tx, userID, id); err != nil {
				return err
			}
			res := tx.Where("id = ? AND to_user_id = ?", id, userID).Delete(&models.Notification{})
			if res.Error != nil {
				return internalErr(res.Error)
			}
			if res.RowsAffected == 0 {
				return models.NewNotificationNotFoundError(id)
			}
			return nil
		})
	})
}

func (r *notificationRepository) DeleteAll(ctx context.Context, userID uint) (int64, error) {
	return withRetry(ctx, r.retrier, "notification.delete_all", func() (int64, error) {
		var deleted int64
		err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			cutoff, err := maxNotificationID(tx, userID)
			if err != nil || cutoff == 0 {
				return err
			}
			if err := r.inbox.RemoveUpTo(tx, userID, cutoff); err != nil {
				return err
			}
			res := tx.Where("to_user_id = ? AND id <= ?", userID, cutoff).Delete(&models.Notification{})
			deleted = res.RowsAffected
			return internalErr(res.Error)
		})
		return deleted, err
	})
}

func (r *notificationRepository) DeleteUnreadOfType(ctx context.Context, t models.NotificationType, fromID, toID uint) (int64, error) {
	return r.deleteWhere(ctx, "notification.delete_unread_of_type",
		"type = ? AND from_user_id = ? AND to_user_id = ? AND read = ?", t, fromID, toID, false)
}

func (r *notificationRepository) DeleteByPost(ctx context.Context, postID uint) (int64, error) {
	return r.deleteWhere(ctx, "notification.delete_by_post", "post_id = ?", postID)
}

// deleteWhere removes every notification matching query together with the
// inbox entries that point at them.
func (r *notificationRepository) deleteWhere(ctx context.Context, op, query string, args ...interface{}) (int64, error) {
	return withRetry(ctx, r.retrier, op, func() (int64, error) {
		var deleted int64
		err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var victims []models.Notification
			if err := tx.Select("id", "to_user_id").Where(query, args...).Find(&victims).Error; err != nil {
				return internalErr(err)
			}
			if len(victims) == 0 {
				return nil
			}
			ids := make([]uint, 0, len(victims))
			byUser := make(map[uint][]uint)
			for _, n := range victims {
				ids = append(ids, n.ID)
				byUser[n.ToUserID] = append(byUser[n.ToUserID], n.ID)
			}
			for userID, userIDs := range byUser {
				if err := r.inbox.Remove(tx, userID, userIDs...); err != nil {
					return err
				}
			}
			res := tx.Where("id IN ?", ids).Delete(&models.Notification{})
			deleted = res.RowsAffected
			return internalErr(res.Error)
		})
		return deleted, err
	})
}
