package middleware

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Sessions are minted by the auth service; this API only reads them.
const (
	SessionCookieName  = "cellar.sid"
	SessionRedisPrefix = "session:"
)

const userLocal = "user"

// SessionUser is the shape stored in the session under "user".
type SessionUser struct {
	UserID   uuid.UUID `json:"user_id"`
	Email    string    `json:"email"`
	Fullname string    `json:"fullname"`
}

type sessionData struct {
	User *SessionUser `json:"user"`
}

// Session loads the caller from the Redis session named by the cookie. A missing
// or unreadable session leaves the request anonymous.
func Session(rdb *redis.Client) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sessionID := c.Cookies(SessionCookieName)
		// signed cookies look like "s:<id>.<signature>"
		if strings.HasPrefix(sessionID, "s:") {
			sessionID = strings.SplitN(sessionID[2:], ".", 2)[0]
		}
		c.Locals(userLocal, (*SessionUser)(nil))
		if sessionID == "" || rdb == nil {
			return c.Next()
		}

		b, err := rdb.Get(context.Background(), SessionRedisPrefix+sessionID).Bytes()
		if err != nil {
			if err != redis.Nil {
				log.Warn().Err(err).Msg("session lookup failed")
			}
			return c.Next()
		}
		var data sessionData
		if err := json.Unmarshal(b, &data); err == nil && data.User != nil && data.User.UserID != uuid.Nil {
			c.Locals(userLocal, data.User)
		}
		return c.Next()
	}
}
