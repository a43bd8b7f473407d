package middleware

import (
	"cellar-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// ErrorHandler is the global error handler. Errors that escape a handler get the
// same mapping as the ones handlers report themselves.
func ErrorHandler(c *fiber.Ctx, err error) error {
	return response.FromError(c, err)
}
