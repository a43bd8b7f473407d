package cellar

import (
	"bytes"
	"fmt"
	"time"

	cellarsvc "cellar-backend/internal/application/cellar"
	"cellar-backend/internal/middleware"
	"cellar-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type Handlers struct {
	Service *cellarsvc.Service
}

// GET /api/v1/houses/:houseId/cellar
func (h *Handlers) List(c *fiber.Ctx) error {
	var p cellarsvc.Params
	if err := c.QueryParser(&p); err != nil {
		return response.Error(c, "Invalid query", fiber.StatusBadRequest, nil)
	}
	includeStats := c.Query("includeStats") == "1" || c.Query("includeStats") == "true"

	page, err := h.Service.List(c.UserContext(), middleware.HouseID(c), cellarsvc.ParseQuery(p), includeStats)
	if err != nil {
		return response.FromError(c, err)
	}
	return c.JSON(page)
}

// GET /api/v1/houses/:houseId/cellar/stats
func (h *Handlers) Stats(c *fiber.Ctx) error {
	stats, err := h.Service.Stats(c.UserContext(), middleware.HouseID(c))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Cellar stats fetched successfully", stats, nil)
}

// GET /api/v1/houses/:houseId/cellar/countries
func (h *Handlers) Countries(c *fiber.Ctx) error {
	countries, err := h.Service.Countries(c.UserContext(), middleware.HouseID(c))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Countries fetched successfully", countries, nil)
}

// GET /api/v1/houses/:houseId/cellar/export
func (h *Handlers) Export(c *fiber.Ctx) error {
	var buf bytes.Buffer
	if _, err := h.Service.Export(c.UserContext(), middleware.HouseID(c), &buf); err != nil {
		return response.FromError(c, err)
	}
	filename := fmt.Sprintf("cellar-%s.xlsx", time.Now().UTC().Format("2006-01-02"))
	return response.Attachment(c, filename, xlsxContentType, buf.Bytes())
}
