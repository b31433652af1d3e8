package server

import (
	"github.com/gofiber/fiber/v2"
)

// CreatePost handles POST /api/posts
func (s *Server) CreatePost(c *fiber.Ctx) error {
	content, err := s.parseContent(c)
	if err != nil {
		return nil
	}

	post, err := s.core.Content.CreatePost(c.UserContext(), currentUser(c), content)
	if err != nil {
		return s.respondError(c, err)
	}
	return respond(c, fiber.StatusCreated, post)
}

// GetPost handles GET /api/posts/:id
func (s *Server) GetPost(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	post, err := s.core.Content.GetPost(c.UserContext(), id, currentUser(c))
	if err != nil {
		return s.respondError(c, err)
	}
	return respond(c, fiber.StatusOK, post)
}

// UpdatePost handles PUT /api/posts/:id
func (s *Server) UpdatePost(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	content, err := s.parseContent(c)
	if err != nil {
		return nil
	}

	post, err := s.core.Content.UpdatePost(c.UserContext(), currentUser(c), id, content)
	if err != nil {
		return s.respondError(c, err)
	}
	return respond(c, fiber.StatusOK, post)
}

// DeletePost handles DELETE /api/posts/:id
func (s *Server) DeletePost(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	if err := s.core.Content.DeletePost(c.UserContext(), currentUser(c), id); err != nil {
		return s.respondError(c, err)
	}
	return respond(c, fiber.StatusOK, fiber.Map{"post_id": id})
}

// TogglePostLike handles POST /api/posts/:id/like
func (s *Server) TogglePostLike(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	result, err := s.core.Content.TogglePostLike(c.UserContext(), currentUser(c), id)
	if err != nil {
		return s.respondError(c, err)
	}
	return respond(c, fiber.StatusOK, result)
}
