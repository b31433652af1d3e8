package server

import (
	"github.com/gofiber/fiber/v2"
)

// GetComments handles GET /api/posts/:id/comments
func (s *Server) GetComments(c *fiber.Ctx) error {
	postID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	comments, err := s.core.Content.ListComments(c.UserContext(), postID)
	if err != nil {
		return s.respondError(c, err)
	}
	return respond(c, fiber.StatusOK, comments)
}

// CreateComment handles POST /api/posts/:id/comments
func (s *Server) CreateComment(c *fiber.Ctx) error {
	postID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	content, err := s.parseContent(c)
	if err != nil {
		return nil
	}

	comment, err := s.core.Content.CreateComment(c.UserContext(), currentUser(c), postID, content)
	if err != nil {
		return s.respondError(c, err)
	}
	return respond(c, fiber.StatusCreated, comment)
}

// DeleteComment handles DELETE /api/comments/:id
func (s *Server) DeleteComment(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	if err := s.core.Content.DeleteComment(c.UserContext(), currentUser(c), id); err != nil {
		return s.respondError(c, err)
	}
	return respond(c, fiber.StatusOK, fiber.Map{"comment_id": id})
}

// ToggleCommentLike handles POST /api/comments/:id/like
func (s *Server) ToggleCommentLike(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	result, err := s.core.Content.ToggleCommentLike(c.UserContext(), currentUser(c), id)
	if err != nil {
		return s.respondError(c, err)
	}
	return respond(c, fiber.StatusOK, result)
}
