package server

import (
	"github.com/gofiber/fiber/v2"
)

// GetNotifications handles GET /api/notifications[?unread=true]
func (s *Server) GetNotifications(c *fiber.Ctx) error {
	ctx := c.UserContext()
	userID := currentUser(c)

	list := s.core.Notifications.ListAll
	if c.QueryBool("unread", false) {
		list = s.core.Notifications.ListUnread
	}
	items, err := list(ctx, userID)
	if err != nil {
		return s.respondError(c, err)
	}

	unread, err := s.core.Notifications.UnreadCount(ctx, userID)
	if err != nil {
		return s.respondError(c, err)
	}
	return respond(c, fiber.StatusOK, fiber.Map{
		"notifications": items,
		"unread_count":  unread,
	})
}

// MarkNotificationRead handles POST /api/notifications/:id/read
func (s *Server) MarkNotificationRead(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	n, err := s.core.Notifications.MarkRead(c.UserContext(), currentUser(c), id)
	if err != nil {
		return s.respondError(c, err)
	}
	return respond(c, fiber.StatusOK, n)
}

// MarkAllNotificationsRead handles POST /api/notifications/read
func (s *Server) MarkAllNotificationsRead(c *fiber.Ctx) error {
	updated, err := s.core.Notifications.MarkAllRead(c.UserContext(), currentUser(c))
	if err != nil {
		return s.respondError(c, err)
	}
	return respond(c, fiber.StatusOK, fiber.Map{"updated": updated})
}

// DeleteNotification handles DELETE /api/notifications/:id
func (s *Server) DeleteNotification(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	if err := s.core.Notifications.Delete(c.UserContext(), currentUser(c), id); err != nil {
		return s.respondError(c, err)
	}
	return respond(c, fiber.StatusOK, fiber.Map{"deleted": 1})
}

// DeleteAllNotifications handles DELETE /api/notifications
func (s *Server) DeleteAllNotifications(c *fiber.Ctx) error {
	deleted, err := s.core.Notifications.DeleteAll(c.UserContext(), currentUser(c))
	if err != nil {
		return s.respondError(c, err)
	}
	return respond(c, fiber.StatusOK, fiber.Map{"deleted": deleted})
}
