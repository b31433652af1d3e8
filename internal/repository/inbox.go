package repository

import (
	"context"

	"odinbook/internal/models"

	"gorm.io/gorm"
)

// InboxProjection maintains each user's denormalized list of notification
// ids. Writes take the caller's transaction so the projection always commits
// or rolls back together with the notification rows.
type InboxProjection interface {
	Append(tx *gorm.DB, userID, notificationID uint) error
	Remove(tx *gorm.DB, userID uint, notificationIDs ...uint) error
	RemoveUpTo(tx *gorm.DB, userID, cutoffID uint) error
	IDs(ctx context.Context, userID uint) ([]uint, error)
	Has(ctx context.Context, userID uint) (bool, error)
}

type inboxProjection struct {
	db *gorm.DB
}

// NewInboxProjection returns the inbox_entries backed projection.
func NewInboxProjection(db *gorm.DB) InboxProjection {
	return &inboxProjection{db: db}
}

func (p *inboxProjection) Append(tx *gorm.DB, userID, notificationID uint) error {
	entry := models.InboxEntry{UserID: userID, NotificationID: notificationID}
	return internalErr(tx.Create(&entry).Error)
}

func (p *inboxProjection) Remove(tx *gorm.DB, userID uint, notificationIDs ...uint) error {
	if len(notificationIDs) == 0 {
		return nil
	}
	err := tx.Where("user_id = ? AND notification_id IN ?", userID, notificationIDs).
		Delete(&models.InboxEntry{}).Error
	return internalErr(err)
}

func (p *inboxProjection) RemoveUpTo(tx *gorm.DB, userID, cutoffID uint) error {
	err := tx.Where("user_id = ? AND notification_id <= ?", userID, cutoffID).
		Delete(&models.InboxEntry{}).Error
	return internalErr(err)
}

func (p *inboxProjection) IDs(ctx context.Context, userID uint) ([]uint, error) {
	ids := []uint{}
	err := p.db.WithContext(ctx).
		Model(&models.InboxEntry{}).
		Where("user_id = ?", userID).
		Order("notification_id DESC").
		Pluck("notification_id", &ids).Error
	if err != nil {
		return nil, internalErr(err)
	}
	return ids, nil
}

func (p *inboxProjection) Has(ctx context.Context, userID uint) (bool, error) {
	var entry models.InboxEntry
	res := p.db.WithContext(ctx).
		Select("user_id").
		Where("user_id = ?", userID).
		Limit(1).
		Find(&entry)
	if res.Error != nil {
		return false, internalErr(res.Error)
	}
	return res.RowsAffected > 0, nil
}
