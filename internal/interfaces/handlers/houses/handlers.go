package houses

import (
	housesvc "cellar-backend/internal/application/houses"
	"cellar-backend/internal/domain"
	"cellar-backend/internal/middleware"
	"cellar-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

type Handlers struct {
	Service *housesvc.Service
}

// GET /api/v1/houses
func (h *Handlers) List(c *fiber.Ctx) error {
	list, err := h.Service.ListForUser(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Houses fetched successfully", list, nil)
}

// POST /api/v1/houses
func (h *Handlers) Create(c *fiber.Ctx) error {
	var in housesvc.CreateInput
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&in); err != nil {
			return response.FromError(c, domain.NewValidationError("body", "Invalid JSON body"))
		}
	}
	m, err := h.Service.Create(c.UserContext(), middleware.UserID(c), in)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessCreated(c, "House created successfully", m, nil)
}
