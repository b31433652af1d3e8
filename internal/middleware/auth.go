// Package middleware provides the Fiber middleware of the HTTP transport:
// bearer authentication, request context, logging, tracing and metrics.
package middleware

import (
	"strconv"
	"strings"

	"odinbook/internal/observability"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// UserIDLocal is the Fiber locals key holding the authenticated user id.
const UserIDLocal = "userID"

func unauthorized(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"ok": false,
		"error": fiber.Map{
			"kind":    "UNAUTHENTICATED",
			"message": message,
		},
	})
}

// AuthRequired validates an HS256 bearer token signed with secret and stores
// the subject as the current user id. Tokens are issued elsewhere.
func AuthRequired(secret string) fiber.Handler {
	key := []byte(secret)
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return unauthorized(c, "Authorization header required")
		}

		// Extract token from "Bearer <token>"
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return unauthorized(c, "Invalid authorization header format")
		}

		token, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fiber.NewError(fiber.StatusUnauthorized, "Invalid signing method")
			}
			return key, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid {
			return unauthorized(c, "Invalid or expired token")
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return unauthorized(c, "Invalid token claims")
		}

		// Subject claim per RFC 7519
		subStr, err := claims.GetSubject()
		if err != nil || subStr == "" {
			return unauthorized(c, "Invalid token structure - missing subject")
		}

		userIDVal, err := strconv.ParseUint(subStr, 10, 32)
		if err != nil || userIDVal == 0 {
			return unauthorized(c, "Invalid user ID in token")
		}

		c.Locals(UserIDLocal, uint(userIDVal))
		// Sync to UserContext for logging and downstream services
		c.SetUserContext(observability.WithUserID(c.UserContext(), uint(userIDVal)))
		return c.Next()
	}
}

// CurrentUserID returns the authenticated user id, if any.
func CurrentUserID(c *fiber.Ctx) (uint, bool) {
	id, ok := c.Locals(UserIDLocal).(uint)
	return id, ok && id != 0
}
