package server

import (
	"github.com/gofiber/fiber/v2"
)

// GetFeed handles GET /api/feed
func (s *Server) GetFeed(c *fiber.Ctx) error {
	posts, err := s.core.Feed.ComputeFeed(c.UserContext(), currentUser(c))
	if err != nil {
		return s.respondError(c, err)
	}
	return respond(c, fiber.StatusOK, posts)
}
