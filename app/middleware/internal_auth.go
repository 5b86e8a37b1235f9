// Package middleware contains HTTP middleware functions for request processing
package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/amirphl/Hachiko/app/dto"
	"github.com/gofiber/fiber/v3"
)

// InternalAuthMiddleware guards the internal delivery endpoints with a shared
// bearer token. These routes trigger real deliveries, so they are never
// exposed without it.
type InternalAuthMiddleware struct {
	apiToken string
}

// NewInternalAuthMiddleware creates a new internal auth middleware
func NewInternalAuthMiddleware(apiToken string) *InternalAuthMiddleware {
	return &InternalAuthMiddleware{apiToken: apiToken}
}

// Authenticate validates the shared bearer token on internal routes
func (m *InternalAuthMiddleware) Authenticate() fiber.Handler {
	return func(c fiber.Ctx) error {
		if m.apiToken == "" {
			return c.Status(fiber.StatusServiceUnavailable).JSON(dto.APIResponse{
				Success: false,
				Message: "Internal API is not configured",
				Error: dto.ErrorDetail{
					Code: "INTERNAL_API_DISABLED",
				},
			})
		}

		authHeader := c.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
				Success: false,
				Message: "Invalid authorization header format. Expected 'Bearer <token>'",
				Error: dto.ErrorDetail{
					Code: "INVALID_AUTHORIZATION_FORMAT",
				},
			})
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if subtle.ConstantTimeCompare([]byte(token), []byte(m.apiToken)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
				Success: false,
				Message: "Invalid internal API token",
				Error: dto.ErrorDetail{
					Code: "TOKEN_INVALID",
				},
			})
		}

		return c.Next()
	}
}
