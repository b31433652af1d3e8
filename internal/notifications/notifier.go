// Package notifications publishes committed notifications onto Redis
// channels for whatever delivery layer listens there.
package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	"odinbook/internal/models"

	"github.com/redis/go-redis/v9"
)

// UserChannel is the pub/sub channel carrying one user's notifications.
func UserChannel(userID uint) string {
	return fmt.Sprintf("notifications:user:%d", userID)
}

// Notifier provides helpers to publish notifications into Redis channels
type Notifier struct {
	rdb *redis.Client
}

// NewNotifier creates a new Notifier instance using the provided Redis client.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// PublishUser sends a notification payload to a user's channel.
func (n *Notifier) PublishUser(ctx context.Context, userID uint, payload string) error {
	if n == nil || n.rdb == nil {
		return nil
	}
	return n.rdb.Publish(ctx, UserChannel(userID), payload).Err()
}

type envelope struct {
	Type string               `json:"type"`
	Data *models.Notification `json:"data"`
}

// PublishNotification sends n to its recipient's channel.
func (n *Notifier) PublishNotification(ctx context.Context, notification *models.Notification) error {
	if n == nil || n.rdb == nil {
		return nil
	}
	payload, err := json.Marshal(envelope{Type: "notification", Data: notification})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return n.PublishUser(ctx, notification.ToUserID, string(payload))
}
