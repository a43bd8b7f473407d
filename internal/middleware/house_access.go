package middleware

import (
	"cellar-backend/internal/application/houses"
	"cellar-backend/internal/domain"
	"cellar-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	houseIDLocal   = "house_id"
	houseRoleLocal = "house_role"
)

// RequireHouseAccess resolves :houseId and the caller's role in it. Anything the
// authorizer does not vouch for is a 401.
func RequireHouseAccess(authz houses.Authorizer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := GetUser(c)
		if user == nil {
			return response.Unauthorized(c, "Unauthorized")
		}
		houseID, err := uuid.Parse(c.Params("houseId"))
		if err != nil {
			return response.FromError(c, domain.ErrUnauthorized)
		}
		role, err := authz.Role(c.UserContext(), houseID, user.UserID)
		if err != nil {
			return response.FromError(c, domain.ErrUnauthorized)
		}
		c.Locals(houseIDLocal, houseID)
		c.Locals(houseRoleLocal, role)
		return c.Next()
	}
}

// HouseID returns the house vouched for by RequireHouseAccess.
func HouseID(c *fiber.Ctx) uuid.UUID {
	id, _ := c.Locals(houseIDLocal).(uuid.UUID)
	return id
}

// HouseRole returns the caller's role in the current house.
func HouseRole(c *fiber.Ctx) string {
	r, _ := c.Locals(houseRoleLocal).(string)
	return r
}
