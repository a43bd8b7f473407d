package router

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"cellar-backend/internal/config"
	"cellar-backend/internal/domain"
	"cellar-backend/internal/infrastructure/database"
	"cellar-backend/internal/middleware"
	"cellar-backend/internal/pkg/constants"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type testEnv struct {
	app *fiber.App
	db  *gorm.DB
	mr  *miniredis.Miniredis
}

func setupRouterTest(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.OpenMemory()
	require.NoError(t, err)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	cfg := &config.Config{Env: "test", ImportChunkSize: 500, LedgerMaxRetries: 3}
	return &testEnv{app: New(cfg, Deps{DB: db, Rdb: rdb}), db: db, mr: mr}
}

// login stores a session for a fresh user and returns its cookie and id.
func (e *testEnv) login(t *testing.T) (string, uuid.UUID) {
	t.Helper()
	userID := uuid.New()
	sid := uuid.NewString()
	b, err := json.Marshal(map[string]interface{}{"user": map[string]interface{}{"user_id": userID}})
	require.NoError(t, err)
	require.NoError(t, e.mr.Set(middleware.SessionRedisPrefix+sid, string(b)))
	return middleware.SessionCookieName + "=" + sid, userID
}

func (e *testEnv) do(t *testing.T, method, path, cookie, body string) (int, map[string]interface{}) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != "" {
		req.Header.Set("Cookie", cookie)
	}
	resp, err := e.app.Test(req)
	require.NoError(t, err)
	var out map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func TestHealthIsPublic(t *testing.T) {
	e := setupRouterTest(t)
	status, out := e.do(t, "GET", "/health/json", "", "")
	assert.Equal(t, 200, status)
	assert.Equal(t, "cellar-api", out["service"])
}

func TestHouseRoutes_RequireSession(t *testing.T) {
	e := setupRouterTest(t)
	status, _ := e.do(t, "GET", "/api/v1/houses", "", "")
	assert.Equal(t, 401, status)
	status, _ = e.do(t, "GET", "/api/v1/houses/"+uuid.NewString()+"/cellar", "", "")
	assert.Equal(t, 401, status)
	status, _ = e.do(t, "POST", "/api/v1/ai/parse-wine", "", `{"text":"x"}`)
	assert.Equal(t, 401, status)
}

func TestOwnerFlow(t *testing.T) {
	e := setupRouterTest(t)
	cookie, _ := e.login(t)

	status, out := e.do(t, "POST", "/api/v1/houses", cookie, `{"name":"Home"}`)
	require.Equal(t, 201, status)
	houseID := out["data"].(map[string]interface{})["id"].(string)
	base := "/api/v1/houses/" + houseID

	status, out = e.do(t, "POST", base+"/purchases", cookie,
		`{"wine":{"producer":"Alpha","name":"Cuvée"},"store":"Cave","unit_price":"10","quantity":2}`)
	require.Equal(t, 201, status)
	wineID := out["data"].(map[string]interface{})["wine"].(map[string]interface{})["id"].(string)

	status, _ = e.do(t, "POST", base+"/wines/"+wineID+"/consume", cookie, "")
	assert.Equal(t, 200, status)

	status, out = e.do(t, "GET", base+"/cellar?includeStats=true", cookie, "")
	require.Equal(t, 200, status)
	items := out["items"].([]interface{})
	require.Len(t, items, 1)
	assert.Equal(t, float64(1), items[0].(map[string]interface{})["stock_qty"])
	assert.NotNil(t, out["stats"])

	// AI routes answer 503 when no extractor is configured
	status, _ = e.do(t, "POST", "/api/v1/ai/parse-wine", cookie, `{"text":"Barolo 2016"}`)
	assert.Equal(t, 503, status)
}

func TestViewerCannotMutate(t *testing.T) {
	e := setupRouterTest(t)
	owner, _ := e.login(t)
	viewer, viewerID := e.login(t)

	status, out := e.do(t, "POST", "/api/v1/houses", owner, "")
	require.Equal(t, 201, status)
	houseID := out["data"].(map[string]interface{})["id"].(string)
	base := "/api/v1/houses/" + houseID

	status, _ = e.do(t, "GET", base+"/cellar", viewer, "")
	assert.Equal(t, 401, status)

	require.NoError(t, e.db.Create(&domain.HouseMember{
		HouseID: uuid.MustParse(houseID), UserID: viewerID, Role: constants.Viewer,
	}).Error)

	status, _ = e.do(t, "GET", base+"/cellar", viewer, "")
	assert.Equal(t, 200, status)
	status, _ = e.do(t, "GET", base+"/cellar/countries", viewer, "")
	assert.Equal(t, 200, status)
	status, _ = e.do(t, "POST", base+"/purchases", viewer,
		`{"wine":{"producer":"Alpha","name":"Cuvée"},"store":"Cave","unit_price":"10","quantity":1}`)
	assert.Equal(t, 403, status)
	status, _ = e.do(t, "DELETE", base+"/wines/"+uuid.NewString(), viewer, "")
	assert.Equal(t, 403, status)
}

func TestProbes_DefaultBackendIsSupabase(t *testing.T) {
	cfg := &config.Config{Blob: config.BlobConfig{SupabaseURL: "https://proj.supabase.co/"}}
	got := probes(cfg)
	require.Len(t, got, 1)
	assert.Equal(t, "blob_store", got[0].Name)
	assert.Equal(t, "https://proj.supabase.co/storage/v1/version", got[0].URL)

	cfg.Blob.Backend = "s3"
	assert.Empty(t, probes(cfg))

	cfg.OpenAI = config.OpenAIConfig{APIKey: "sk", BaseURL: "https://api.openai.com/v1"}
	got = probes(cfg)
	require.Len(t, got, 1)
	assert.Equal(t, "openai", got[0].Name)
}
