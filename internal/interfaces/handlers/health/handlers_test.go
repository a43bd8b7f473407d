package health

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	healthsvc "cellar-backend/internal/application/health"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type okPinger struct{}

func (okPinger) Ping() error { return nil }

func setupHealthTest(t *testing.T, db healthsvc.DBPinger) (*fiber.App, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	h := &Handlers{Rdb: rdb, DB: db, HealthAdminKey: "secret"}
	app := fiber.New()
	app.Get("/health/json", h.JSON)
	app.Get("/health/reset", h.Reset)
	app.Get("/health/errors", h.Errors)
	return app, mr
}

func TestJSON(t *testing.T) {
	app, _ := setupHealthTest(t, okPinger{})

	resp, err := app.Test(httptest.NewRequest("GET", "/health/json", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "cellar-api", body["service"])
	assert.Equal(t, "ok", body["status"])
}

func TestJSON_DatabaseMissing(t *testing.T) {
	app, _ := setupHealthTest(t, nil)

	resp, err := app.Test(httptest.NewRequest("GET", "/health/json", nil))
	require.NoError(t, err)
	assert.Equal(t, 503, resp.StatusCode)
}

func TestReset(t *testing.T) {
	app, mr := setupHealthTest(t, okPinger{})
	require.NoError(t, mr.Set(healthsvc.KeyReqTotal, "42"))

	resp, err := app.Test(httptest.NewRequest("GET", "/health/reset?key=wrong", nil))
	require.NoError(t, err)
	assert.Equal(t, 403, resp.StatusCode)
	assert.True(t, mr.Exists(healthsvc.KeyReqTotal))

	resp, err = app.Test(httptest.NewRequest("GET", "/health/reset?key=secret", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.False(t, mr.Exists(healthsvc.KeyReqTotal))
}

func TestErrors(t *testing.T) {
	app, mr := setupHealthTest(t, okPinger{})
	_, err := mr.Lpush(healthsvc.KeyErrorLog, `{"path":"/api/v1/houses","status":500}`)
	require.NoError(t, err)

	resp, err := app.Test(httptest.NewRequest("GET", "/health/errors", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var entries []map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "/api/v1/houses", entries[0]["path"])
}
