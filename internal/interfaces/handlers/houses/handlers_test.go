package houses

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	housesvc "cellar-backend/internal/application/houses"
	"cellar-backend/internal/infrastructure/database"
	"cellar-backend/internal/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupHousesTest(t *testing.T) *fiber.App {
	t.Helper()
	db, err := database.OpenMemory()
	require.NoError(t, err)
	h := &Handlers{Service: &housesvc.Service{DB: db}}
	user := &middleware.SessionUser{UserID: uuid.New(), Email: "sam@example.com"}

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user", user)
		return c.Next()
	})
	app.Get("/houses", h.List)
	app.Post("/houses", h.Create)
	return app
}

func TestCreateAndList(t *testing.T) {
	app := setupHousesTest(t)

	req := httptest.NewRequest("POST", "/houses", bytes.NewBufferString(`{"name":"Chez Nous"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, 201, resp.StatusCode)

	// an empty body creates an unnamed house
	resp, err = app.Test(httptest.NewRequest("POST", "/houses", nil))
	require.NoError(t, err)
	require.Equal(t, 201, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/houses", nil))
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	var result struct {
		Data []struct {
			Name *string `json:"name"`
			Role string  `json:"role"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	require.Len(t, result.Data, 2)
	for _, m := range result.Data {
		assert.Equal(t, "owner", m.Role)
	}
}

func TestCreate_NameTooLong(t *testing.T) {
	app := setupHousesTest(t)

	req := httptest.NewRequest("POST", "/houses", bytes.NewBufferString(`{"name":"`+strings.Repeat("n", 121)+`"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)
}
