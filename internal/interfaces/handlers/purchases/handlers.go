package purchases

import (
	"strings"
	"time"

	"cellar-backend/internal/application/ledger"
	"cellar-backend/internal/application/reconcile"
	"cellar-backend/internal/application/wines"
	"cellar-backend/internal/domain"
	"cellar-backend/internal/middleware"
	"cellar-backend/internal/pkg/response"
	"cellar-backend/internal/pkg/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Handlers struct {
	Ledger *ledger.Service
}

// RecordRequest names an existing wine by wine_id or describes one in wine.
type RecordRequest struct {
	WineID          *uuid.UUID       `json:"wine_id"`
	Wine            *wines.WineAttrs `json:"wine"`
	Store           string           `json:"store"`
	UnitPrice       decimal.Decimal  `json:"unit_price"`
	Quantity        int              `json:"quantity"`
	PurchasedAt     *string          `json:"purchased_at"`
	ReceiptPhotoRef *string          `json:"receipt_photo_ref"`
}

// POST /api/v1/houses/:houseId/purchases
func (h *Handlers) Record(c *fiber.Ctx) error {
	var req RecordRequest
	if err := c.BodyParser(&req); err != nil {
		return response.FromError(c, domain.NewValidationError("body", "Invalid JSON body"))
	}
	houseID := middleware.HouseID(c)
	ctx := c.UserContext()

	purchasedAt, err := parsePurchasedAt(req.PurchasedAt)
	if err != nil {
		return response.FromError(c, err)
	}

	in := ledger.RecordInput{
		Store:           req.Store,
		UnitPrice:       req.UnitPrice,
		Quantity:        req.Quantity,
		PurchasedAt:     purchasedAt,
		ReceiptPhotoRef: req.ReceiptPhotoRef,
	}
	var (
		p       *domain.Purchase
		w       *domain.Wine
		created bool
	)
	switch {
	case req.WineID != nil && *req.WineID != uuid.Nil:
		in.WineID = *req.WineID
		p, w, err = h.Ledger.Record(ctx, houseID, in)
	case req.Wine != nil:
		p, w, err = h.Ledger.RecordResolving(ctx, houseID, in, func(tx *gorm.DB) (uuid.UUID, error) {
			ensured, wasCreated, err := wines.EnsureWithin(tx, houseID, *req.Wine)
			if err != nil {
				return uuid.Nil, err
			}
			created = wasCreated
			return ensured.ID, nil
		})
	default:
		return response.FromError(c, domain.NewValidationError("wine_id", "This field is required"))
	}
	if err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessCreated(c, "Purchase recorded successfully", fiber.Map{
		"purchase":     p,
		"wine":         w,
		"wine_created": created,
	}, nil)
}

// DELETE /api/v1/houses/:houseId/purchases/:purchaseId
func (h *Handlers) Delete(c *fiber.Ctx) error {
	purchaseID, err := validation.ParseUUID("purchaseId", c.Params("purchaseId"))
	if err != nil {
		return response.FromError(c, err)
	}
	w, err := h.Ledger.Delete(c.UserContext(), middleware.HouseID(c), purchaseID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Purchase deleted successfully", fiber.Map{"wine": w}, nil)
}

func parsePurchasedAt(s *string) (*time.Time, error) {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil, nil
	}
	t, ok := reconcile.ParseDate(*s)
	if !ok {
		return nil, domain.NewValidationError("purchased_at", "Must be a date (YYYY-MM-DD)")
	}
	return &t, nil
}
