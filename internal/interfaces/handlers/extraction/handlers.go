package extraction

import (
	"encoding/base64"
	"io"
	"strings"

	extractsvc "cellar-backend/internal/application/extraction"
	"cellar-backend/internal/domain"
	"cellar-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

type Handlers struct {
	Service *extractsvc.Service
}

// POST /api/v1/ai/parse-wine {"text": "..."}
func (h *Handlers) ParseWine(c *fiber.Ctx) error {
	var in extractsvc.ParseTextInput
	if err := c.BodyParser(&in); err != nil {
		return response.FromError(c, domain.NewValidationError("body", "Invalid JSON body"))
	}
	attrs, err := h.Service.ParseText(c.UserContext(), in)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Wine parsed successfully", attrs, nil)
}

type labelRequest struct {
	Base64Data string `json:"base64Data"`
	MimeType   string `json:"mimeType"`
}

// POST /api/v1/ai/analyze-label
// Accepts a multipart "file" or JSON {"base64Data", "mimeType"}.
func (h *Handlers) AnalyzeLabel(c *fiber.Ctx) error {
	image, mimeType, err := readImage(c)
	if err != nil {
		return response.FromError(c, err)
	}
	attrs, err := h.Service.AnalyzeLabel(c.UserContext(), image, mimeType)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Label analyzed successfully", attrs, nil)
}

func readImage(c *fiber.Ctx) ([]byte, string, error) {
	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		fh, err := c.FormFile("file")
		if err != nil {
			return nil, "", domain.NewValidationError("file", "This field is required")
		}
		if fh.Size > extractsvc.MaxImageBytes {
			return nil, "", domain.NewValidationError("file", "Image is too large")
		}
		f, err := fh.Open()
		if err != nil {
			return nil, "", err
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		return data, fh.Header.Get(fiber.HeaderContentType), err
	}

	var req labelRequest
	if err := c.BodyParser(&req); err != nil {
		return nil, "", domain.NewValidationError("body", "Invalid JSON body")
	}
	raw := strings.TrimSpace(req.Base64Data)
	// tolerate a full data URL
	if i := strings.Index(raw, ";base64,"); strings.HasPrefix(raw, "data:") && i > 0 {
		if req.MimeType == "" {
			req.MimeType = raw[len("data:"):i]
		}
		raw = raw[i+len(";base64,"):]
	}
	if raw == "" {
		return nil, "", domain.NewValidationError("base64Data", "This field is required")
	}
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, "", domain.NewValidationError("base64Data", "Must be base64 encoded")
	}
	return data, req.MimeType, nil
}
