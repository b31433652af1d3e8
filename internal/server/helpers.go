package server

import (
	"errors"
	"log/slog"
	"strings"
	"unicode"

	"odinbook/internal/middleware"
	"odinbook/internal/models"

	"github.com/gofiber/fiber/v2"
)

// errResponseWritten is a sentinel indicating the HTTP response was already
// committed by a helper. Handlers must return nil (not this error) to avoid
// Fiber's ErrorHandler overwriting the response.
var errResponseWritten = errors.New("response already written")

// contentRequest is the body of post and comment writes.
type contentRequest struct {
	Content string `json:"content"`
}

// respond writes the success envelope.
func respond(c *fiber.Ctx, status int, data interface{}) error {
	return c.Status(status).JSON(fiber.Map{
		"ok":   true,
		"data": data,
	})
}

// statusFor maps an AppError code onto an HTTP status.
func statusFor(code string) int {
	switch code {
	case models.CodeSelfRequest, models.CodeValidation:
		return fiber.StatusBadRequest
	case models.CodeInvalidTarget, models.CodeRequestNotFound, models.CodeFriendNotFound,
		models.CodeNotificationNotFound, models.CodeNotFound:
		return fiber.StatusNotFound
	case models.CodeAlreadyConnected:
		return fiber.StatusConflict
	case models.CodeUnauthorized:
		return fiber.StatusForbidden
	case models.CodeTransientStorage:
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// respondError writes the error envelope for err. Internal failures are
// logged and reported without their cause.
func (s *Server) respondError(c *fiber.Ctx, err error) error {
	var appErr *models.AppError
	if !errors.As(err, &appErr) {
		appErr = models.NewInternalError(err)
	}

	status := statusFor(appErr.Code)
	message := appErr.Message
	if status == fiber.StatusInternalServerError {
		s.logger.ErrorContext(c.UserContext(), "request failed",
			slog.String("code", appErr.Code),
			slog.String("error", err.Error()),
		)
		if appErr.Code == models.CodeInternal {
			message = "Internal server error"
		}
	}

	return c.Status(status).JSON(fiber.Map{
		"ok": false,
		"error": fiber.Map{
			"kind":    appErr.Code,
			"message": message,
		},
	})
}

// errorHandler renders errors that escape the handlers, including Fiber's own
// routing errors, in the same envelope.
func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		kind := models.CodeInternal
		switch fiberErr.Code {
		case fiber.StatusNotFound:
			kind = models.CodeNotFound
		case fiber.StatusMethodNotAllowed, fiber.StatusBadRequest, fiber.StatusRequestEntityTooLarge:
			kind = models.CodeValidation
		}
		return c.Status(fiberErr.Code).JSON(fiber.Map{
			"ok": false,
			"error": fiber.Map{
				"kind":    kind,
				"message": fiberErr.Message,
			},
		})
	}
	return s.respondError(c, err)
}

// currentUser returns the authenticated user id set by AuthRequired.
func currentUser(c *fiber.Ctx) uint {
	id, _ := middleware.CurrentUserID(c)
	return id
}

// parseID extracts a route parameter by name as a positive uint.
// On failure it writes a 400 JSON response and returns errResponseWritten.
// Callers should check: if err != nil { return nil }
func (s *Server) parseID(c *fiber.Ctx, param string) (uint, error) {
	id, err := c.ParamsInt(param)
	if err != nil || id <= 0 {
		_ = s.respondError(c, models.NewValidationError("Invalid "+humanizeParam(param)))
		return 0, errResponseWritten
	}
	return uint(id), nil
}

// parseContent decodes a contentRequest body, writing a 400 on failure.
func (s *Server) parseContent(c *fiber.Ctx) (string, error) {
	var req contentRequest
	if err := c.BodyParser(&req); err != nil {
		_ = s.respondError(c, models.NewValidationError("Invalid request body"))
		return "", errResponseWritten
	}
	return req.Content, nil
}

// humanizeParam converts a route param name into a human-readable label.
// Examples: "id" -> "ID", "userId" -> "user ID".
func humanizeParam(param string) string {
	if param == "id" {
		return "ID"
	}
	if strings.HasSuffix(param, "Id") {
		words := splitCamel(param[:len(param)-2])
		return strings.ToLower(strings.Join(words, " ")) + " ID"
	}
	return param
}

// splitCamel splits a camelCase string into words.
func splitCamel(s string) []string {
	var words []string
	start := 0
	for i, r := range s {
		if i > 0 && unicode.IsUpper(r) {
			words = append(words, s[start:i])
			start = i
		}
	}
	words = append(words, s[start:])
	return words
}
