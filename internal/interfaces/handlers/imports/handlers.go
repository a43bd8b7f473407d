package imports

import (
	"errors"

	"cellar-backend/internal/application/reconcile"
	"cellar-backend/internal/domain"
	"cellar-backend/internal/middleware"
	"cellar-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// MaxFileBytes bounds uploaded import files.
const MaxFileBytes = 20 << 20

type Handlers struct {
	Service *reconcile.Service
}

// POST /api/v1/houses/:houseId/imports (multipart "file": .xlsx or .csv)
// A run with failed chunks answers 207 with the summary in error.details.
func (h *Handlers) Import(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return response.FromError(c, domain.NewValidationError("file", "This field is required"))
	}
	if fh.Size > MaxFileBytes {
		return response.FromError(c, domain.NewValidationError("file", "File is too large"))
	}
	f, err := fh.Open()
	if err != nil {
		return response.FromError(c, err)
	}
	defer f.Close()

	sum, err := h.Service.ImportFile(c.UserContext(), middleware.HouseID(c), fh.Filename, f)
	if err != nil {
		return response.FromError(c, err)
	}
	var pbf *domain.PartialBatchFailure
	if err := sum.Err(); errors.As(err, &pbf) {
		return response.PartialSuccess(c, pbf.Error(), sum)
	}
	return response.Success(c, "Import completed", sum, nil)
}
