package extraction

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http/httptest"
	"net/textproto"
	"testing"

	extractsvc "cellar-backend/internal/application/extraction"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExtractor struct {
	image []byte
	mime  string
}

func (f *fakeExtractor) FromText(ctx context.Context, text string) (*extractsvc.RawAttributes, error) {
	producer, typ := "Ruinart", "white"
	name := text
	return &extractsvc.RawAttributes{Producer: &producer, Name: &name, Vintage: "2012", Type: &typ}, nil
}

func (f *fakeExtractor) FromImage(ctx context.Context, image []byte, mimeType string) (*extractsvc.RawAttributes, error) {
	f.image, f.mime = image, mimeType
	producer := "Gaja"
	return &extractsvc.RawAttributes{Producer: &producer, Vintage: float64(2016)}, nil
}

func setupExtractionTest(ex extractsvc.Extractor) *fiber.App {
	h := &Handlers{Service: &extractsvc.Service{Extractor: ex}}
	app := fiber.New()
	app.Post("/parse-wine", h.ParseWine)
	app.Post("/analyze-label", h.AnalyzeLabel)
	return app
}

func decode(t *testing.T, body io.Reader) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(body).Decode(&out))
	return out
}

func postJSON(t *testing.T, app *fiber.App, path, body string) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest("POST", path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp.StatusCode, decode(t, resp.Body)
}

func TestParseWine(t *testing.T) {
	app := setupExtractionTest(&fakeExtractor{})

	status, out := postJSON(t, app, "/parse-wine", `{"text":"Blanc de Blancs Brut"}`)
	require.Equal(t, 200, status)
	data := out["data"].(map[string]interface{})
	assert.Equal(t, "Ruinart", data["producer"])
	assert.Equal(t, float64(2012), data["vintage"])
	assert.Equal(t, "sparkling", data["type"])

	status, _ = postJSON(t, app, "/parse-wine", `{"text":"   "}`)
	assert.Equal(t, 400, status)
}

func TestParseWine_NotConfigured(t *testing.T) {
	app := setupExtractionTest(nil)

	status, out := postJSON(t, app, "/parse-wine", `{"text":"anything"}`)
	assert.Equal(t, 503, status)
	assert.Equal(t, "Storage is unavailable, please retry", out["error"].(map[string]interface{})["message"])
}

func TestAnalyzeLabel_Base64(t *testing.T) {
	ex := &fakeExtractor{}
	app := setupExtractionTest(ex)
	encoded := base64.StdEncoding.EncodeToString([]byte("png-bytes"))

	status, out := postJSON(t, app, "/analyze-label", `{"base64Data":"`+encoded+`","mimeType":"image/png"}`)
	require.Equal(t, 200, status)
	assert.Equal(t, "Gaja", out["data"].(map[string]interface{})["producer"])
	assert.Equal(t, []byte("png-bytes"), ex.image)
	assert.Equal(t, "image/png", ex.mime)

	status, _ = postJSON(t, app, "/analyze-label", `{"base64Data":"data:image/webp;base64,`+encoded+`"}`)
	require.Equal(t, 200, status)
	assert.Equal(t, "image/webp", ex.mime)

	status, _ = postJSON(t, app, "/analyze-label", `{"base64Data":"***","mimeType":"image/png"}`)
	assert.Equal(t, 400, status)

	status, _ = postJSON(t, app, "/analyze-label", `{"base64Data":"`+encoded+`","mimeType":"application/pdf"}`)
	assert.Equal(t, 400, status)
}

func TestAnalyzeLabel_Multipart(t *testing.T) {
	ex := &fakeExtractor{}
	app := setupExtractionTest(ex)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", `form-data; name="file"; filename="label.jpg"`)
	hdr.Set("Content-Type", "image/jpeg")
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, _ = part.Write([]byte("jpeg-bytes"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", "/analyze-label", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "image/jpeg", ex.mime)
	assert.Equal(t, []byte("jpeg-bytes"), ex.image)
}
