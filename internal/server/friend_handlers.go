package server

import (
	"context"

	"github.com/gofiber/fiber/v2"
)

// relationshipAction is one of the friend state transitions, keyed by the
// acting user and the other member of the pair.
type relationshipAction func(ctx context.Context, userID, otherID uint) error

// transition runs action against the :userId route param and responds with
// the resulting pair status as seen by the caller.
func (s *Server) transition(c *fiber.Ctx, status int, action relationshipAction) error {
	ctx := c.UserContext()
	userID := currentUser(c)
	otherID, err := s.parseID(c, "userId")
	if err != nil {
		return nil
	}

	if err := action(ctx, userID, otherID); err != nil {
		return s.respondError(c, err)
	}

	rel, err := s.core.Relationships.Status(ctx, userID, otherID)
	if err != nil {
		return s.respondError(c, err)
	}
	return respond(c, status, fiber.Map{
		"user_id": otherID,
		"status":  rel,
	})
}

// SendFriendRequest handles POST /api/friends/requests/:userId
func (s *Server) SendFriendRequest(c *fiber.Ctx) error {
	return s.transition(c, fiber.StatusCreated, s.core.Relationships.SendRequest)
}

// CancelFriendRequest handles DELETE /api/friends/requests/:userId
func (s *Server) CancelFriendRequest(c *fiber.Ctx) error {
	return s.transition(c, fiber.StatusOK, s.core.Relationships.CancelRequest)
}

// AcceptFriendRequest handles POST /api/friends/requests/:userId/accept
func (s *Server) AcceptFriendRequest(c *fiber.Ctx) error {
	return s.transition(c, fiber.StatusOK, s.core.Relationships.AcceptRequest)
}

// RejectFriendRequest handles POST /api/friends/requests/:userId/reject
func (s *Server) RejectFriendRequest(c *fiber.Ctx) error {
	return s.transition(c, fiber.StatusOK, s.core.Relationships.RejectRequest)
}

// RemoveFriend handles DELETE /api/friends/:userId
func (s *Server) RemoveFriend(c *fiber.Ctx) error {
	return s.transition(c, fiber.StatusOK, s.core.Relationships.RemoveFriend)
}

// GetFriendshipStatus handles GET /api/friends/status/:userId
func (s *Server) GetFriendshipStatus(c *fiber.Ctx) error {
	userID := currentUser(c)
	otherID, err := s.parseID(c, "userId")
	if err != nil {
		return nil
	}

	rel, err := s.core.Relationships.Status(c.UserContext(), userID, otherID)
	if err != nil {
		return s.respondError(c, err)
	}
	return respond(c, fiber.StatusOK, fiber.Map{
		"user_id": otherID,
		"status":  rel,
	})
}

// GetFriends handles GET /api/friends
func (s *Server) GetFriends(c *fiber.Ctx) error {
	overview, err := s.core.Relationships.Overview(c.UserContext(), currentUser(c))
	if err != nil {
		return s.respondError(c, err)
	}
	return respond(c, fiber.StatusOK, overview)
}
