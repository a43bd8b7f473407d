package purchases

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"cellar-backend/internal/application/ledger"
	"cellar-backend/internal/domain"
	"cellar-backend/internal/infrastructure/database"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupPurchasesTest(t *testing.T) (*fiber.App, *gorm.DB) {
	t.Helper()
	db, err := database.OpenMemory()
	require.NoError(t, err)
	houseID := uuid.New()
	require.NoError(t, db.Create(&domain.House{ID: houseID, CreatedBy: uuid.New()}).Error)

	h := &Handlers{Ledger: &ledger.Service{DB: db, MaxRetries: 3}}
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("house_id", houseID)
		return c.Next()
	})
	app.Post("/purchases", h.Record)
	app.Delete("/purchases/:purchaseId", h.Delete)
	return app, db
}

func post(t *testing.T, app *fiber.App, body string) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest("POST", "/purchases", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp.StatusCode, decode(t, resp.Body)
}

func decode(t *testing.T, body io.Reader) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(body).Decode(&out))
	return out
}

func TestRecord_EnsuresWineThenRecords(t *testing.T) {
	app, _ := setupPurchasesTest(t)
	body := `{"wine":{"producer":"Alpha","name":"Cuvée","vintage":2015,"type":"red"},
		"store":"Cave","unit_price":"12.50","quantity":2,"purchased_at":"2024-03-01"}`

	status, out := post(t, app, body)
	require.Equal(t, 201, status)
	data := out["data"].(map[string]interface{})
	assert.Equal(t, true, data["wine_created"])
	wine := data["wine"].(map[string]interface{})
	assert.Equal(t, float64(2), wine["stock_qty"])
	assert.Equal(t, "12.5", wine["avg_purchase_price"])

	status, out = post(t, app, `{"wine":{"producer":" alpha ","name":"CUVÉE","vintage":2015},
		"store":"Cave","unit_price":"7.50","quantity":2}`)
	require.Equal(t, 201, status)
	data = out["data"].(map[string]interface{})
	assert.Equal(t, false, data["wine_created"])
	wine = data["wine"].(map[string]interface{})
	assert.Equal(t, float64(4), wine["stock_qty"])
	assert.Equal(t, "10", wine["avg_purchase_price"])
}

func TestRecord_ByWineID(t *testing.T) {
	app, _ := setupPurchasesTest(t)
	_, out := post(t, app, `{"wine":{"producer":"Alpha","name":"One"},"store":"Cave","unit_price":"10","quantity":1}`)
	wineID := out["data"].(map[string]interface{})["wine"].(map[string]interface{})["id"].(string)

	status, out := post(t, app, `{"wine_id":"`+wineID+`","store":"Shop","unit_price":"20","quantity":1}`)
	require.Equal(t, 201, status)
	assert.Equal(t, "15", out["data"].(map[string]interface{})["wine"].(map[string]interface{})["avg_purchase_price"])

	status, _ = post(t, app, `{"wine_id":"`+uuid.NewString()+`","store":"Shop","unit_price":"20","quantity":1}`)
	assert.Equal(t, 404, status)
}

func TestRecord_Validation(t *testing.T) {
	app, db := setupPurchasesTest(t)

	cases := []struct {
		body  string
		field string
	}{
		{`{"store":"Cave","unit_price":"10","quantity":1}`, "wine_id"},
		{`{"wine":{"producer":"A","name":"B"},"store":"Cave","unit_price":"10","quantity":0}`, "quantity"},
		{`{"wine":{"producer":"A","name":"B"},"store":"  ","unit_price":"10","quantity":1}`, "store"},
		{`{"wine":{"producer":"A","name":"B"},"store":"Cave","unit_price":"10","quantity":1,"purchased_at":"soon"}`, "purchased_at"},
		{`{"wine":{"producer":"","name":"B"},"store":"Cave","unit_price":"10","quantity":1}`, "producer"},
	}
	for _, tc := range cases {
		status, out := post(t, app, tc.body)
		assert.Equal(t, 400, status, tc.body)
		details := out["error"].(map[string]interface{})["details"].(map[string]interface{})
		assert.Equal(t, tc.field, details["field"], tc.body)
	}

	status, _ := post(t, app, `not json`)
	assert.Equal(t, 400, status)

	var wineCount, purchaseCount int64
	require.NoError(t, db.Model(&domain.Wine{}).Count(&wineCount).Error)
	require.NoError(t, db.Model(&domain.Purchase{}).Count(&purchaseCount).Error)
	assert.Zero(t, wineCount)
	assert.Zero(t, purchaseCount)

	status, out := post(t, app, `{"wine":{"producer":"A","name":"B"},"store":"Cave","unit_price":"10","quantity":1}`)
	require.Equal(t, 201, status)
	assert.Equal(t, true, out["data"].(map[string]interface{})["wine_created"])
}

func TestDelete_RevertsAggregate(t *testing.T) {
	app, _ := setupPurchasesTest(t)
	_, out := post(t, app, `{"wine":{"producer":"Alpha","name":"One"},"store":"Cave","unit_price":"10","quantity":3}`)
	purchaseID := out["data"].(map[string]interface{})["purchase"].(map[string]interface{})["id"].(string)

	resp, err := app.Test(httptest.NewRequest("DELETE", "/purchases/"+purchaseID, nil))
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
	wine := decode(t, resp.Body)["data"].(map[string]interface{})["wine"].(map[string]interface{})
	assert.Equal(t, float64(0), wine["stock_qty"])
	assert.Equal(t, float64(0), wine["purchase_qty_total"])

	resp, err = app.Test(httptest.NewRequest("DELETE", "/purchases/"+purchaseID, nil))
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("DELETE", "/purchases/xyz", nil))
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)
}
