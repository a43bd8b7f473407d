package wines

import (
	"encoding/json"
	"io"
	"strconv"

	"cellar-backend/internal/application/ledger"
	"cellar-backend/internal/application/stock"
	winesvc "cellar-backend/internal/application/wines"
	"cellar-backend/internal/domain"
	"cellar-backend/internal/middleware"
	"cellar-backend/internal/pkg/response"
	"cellar-backend/internal/pkg/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// RecentPurchases is how many purchases the detail view embeds.
const RecentPurchases = 10

type Handlers struct {
	Wines  *winesvc.Service
	Ledger *ledger.Service
	Stock  *stock.Service
}

func wineID(c *fiber.Ctx) (uuid.UUID, error) {
	return validation.ParseUUID("wineId", c.Params("wineId"))
}

// GET /api/v1/houses/:houseId/wines/:wineId
func (h *Handlers) Get(c *fiber.Ctx) error {
	id, err := wineID(c)
	if err != nil {
		return response.FromError(c, err)
	}
	houseID := middleware.HouseID(c)
	detail, err := h.Wines.Get(c.UserContext(), houseID, id)
	if err != nil {
		return response.FromError(c, err)
	}
	purchases, err := h.Ledger.ListByWine(c.UserContext(), houseID, id, RecentPurchases)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Wine fetched successfully", fiber.Map{
		"wine":             detail,
		"recent_purchases": purchases,
	}, nil)
}

// GET /api/v1/houses/:houseId/wines/:wineId/purchases?limit=
func (h *Handlers) Purchases(c *fiber.Ctx) error {
	id, err := wineID(c)
	if err != nil {
		return response.FromError(c, err)
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	purchases, err := h.Ledger.ListByWine(c.UserContext(), middleware.HouseID(c), id, limit)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Purchases fetched successfully", purchases, nil)
}

// PATCH /api/v1/houses/:houseId/wines/:wineId/notes
func (h *Handlers) UpdateNotes(c *fiber.Ctx) error {
	id, err := wineID(c)
	if err != nil {
		return response.FromError(c, err)
	}
	var in winesvc.NotesInput
	if err := c.BodyParser(&in); err != nil {
		return response.FromError(c, domain.NewValidationError("body", "Invalid JSON body"))
	}
	w, err := h.Wines.UpdateNotes(c.UserContext(), middleware.HouseID(c), id, in)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Notes updated successfully", w, nil)
}

// PUT /api/v1/houses/:houseId/wines/:wineId/sommelier-advice
func (h *Handlers) SetSommelierAdvice(c *fiber.Ctx) error {
	id, err := wineID(c)
	if err != nil {
		return response.FromError(c, err)
	}
	w, err := h.Wines.SetSommelierAdvice(c.UserContext(), middleware.HouseID(c), id, json.RawMessage(append([]byte(nil), c.Body()...)))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Sommelier advice saved successfully", w, nil)
}

// POST /api/v1/houses/:houseId/wines/:wineId/label-photos (multipart "file")
func (h *Handlers) AddLabelPhoto(c *fiber.Ctx) error {
	id, err := wineID(c)
	if err != nil {
		return response.FromError(c, err)
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return response.FromError(c, domain.NewValidationError("file", "This field is required"))
	}
	if fh.Size > winesvc.MaxLabelPhotoBytes {
		return response.FromError(c, domain.NewValidationError("file", "File is too large"))
	}
	f, err := fh.Open()
	if err != nil {
		return response.FromError(c, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return response.FromError(c, err)
	}

	w, err := h.Wines.AddLabelPhoto(c.UserContext(), middleware.HouseID(c), id, winesvc.LabelPhoto{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get(fiber.HeaderContentType),
		Data:        data,
	})
	if err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessCreated(c, "Label photo uploaded successfully", w, nil)
}

// DELETE /api/v1/houses/:houseId/wines/:wineId
func (h *Handlers) Delete(c *fiber.Ctx) error {
	id, err := wineID(c)
	if err != nil {
		return response.FromError(c, err)
	}
	if err := h.Wines.Delete(c.UserContext(), middleware.HouseID(c), id); err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Wine deleted successfully", fiber.Map{"id": id}, nil)
}

// POST /api/v1/houses/:houseId/wines/:wineId/consume
func (h *Handlers) Consume(c *fiber.Ctx) error {
	id, err := wineID(c)
	if err != nil {
		return response.FromError(c, err)
	}
	w, err := h.Stock.ConsumeOne(c.UserContext(), middleware.HouseID(c), id)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Bottle consumed", w, nil)
}

// POST /api/v1/houses/:houseId/wines/:wineId/restore
func (h *Handlers) Restore(c *fiber.Ctx) error {
	id, err := wineID(c)
	if err != nil {
		return response.FromError(c, err)
	}
	w, err := h.Stock.RestoreOne(c.UserContext(), middleware.HouseID(c), id)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Bottle restored", w, nil)
}
