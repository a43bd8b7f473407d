package response

import (
	"errors"

	"cellar-backend/internal/domain"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// FromError maps a domain error to the standard error response.
// Unknown errors become 500 and are logged; their text is not exposed.
func FromError(c *fiber.Ctx, err error) error {
	var ve *domain.ValidationError
	var pbf *domain.PartialBatchFailure
	var fe *fiber.Error
	switch {
	case errors.As(err, &ve):
		details := map[string]interface{}{}
		if ve.Field != "" {
			details["field"] = ve.Field
		}
		return Error(c, ve.Error(), fiber.StatusBadRequest, details)
	case errors.Is(err, domain.ErrNotFound):
		return Error(c, err.Error(), fiber.StatusNotFound, nil)
	case errors.Is(err, domain.ErrOutOfStock):
		return Error(c, domain.ErrOutOfStock.Error(), fiber.StatusConflict, nil)
	case errors.Is(err, domain.ErrConflict):
		return Error(c, domain.ErrConflict.Error(), fiber.StatusConflict, nil)
	case errors.Is(err, domain.ErrUnauthorized):
		return Unauthorized(c, domain.ErrUnauthorized.Error())
	case errors.Is(err, domain.ErrStorage):
		log.Error().Err(err).Str("path", c.Path()).Msg("storage failure")
		return Error(c, domain.ErrStorage.Error(), fiber.StatusServiceUnavailable, nil)
	case errors.As(err, &pbf):
		return PartialSuccess(c, pbf.Error(), map[string]interface{}{"chunks": pbf.Chunks})
	case errors.As(err, &fe):
		return Error(c, fe.Message, fe.Code, nil)
	}
	log.Error().Err(err).Str("path", c.Path()).Msg("unhandled error")
	return Error(c, "Internal Server Error", fiber.StatusInternalServerError, nil)
}
