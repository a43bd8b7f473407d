package extraction

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"cellar-backend/internal/config"
)

const (
	textPrompt = "You extract structured data from a short wine description typed by a user. " +
		"Answer with JSON only. Never invent values: use null when unsure. " +
		"producer is the winery, domaine or château. name is the cuvée, vineyard or product name. " +
		"vintage is a 4-digit year or null. country is the country name. region is the appellation or region. " +
		"type is one of red, white, sparkling, rose, dessert, fortified, other. " +
		"Champagne, Crémant, Cava, Prosecco, Sekt, Frizzante, Spumante or Brut mean sparkling. " +
		"Rosé, Rosado, Rosato or Blush mean rose."
	labelPrompt = "You read a wine label photo and extract what is printed on it. Answer with JSON only. " +
		"Base every field on visible text and never invent values: use null when unsure. " +
		"producer is only the house, domaine, château or winery; cuvée, vineyard and qualifiers go in name, as printed. " +
		"vintage is a visible 4-digit year or null. country is the country name. region is the appellation or region. " +
		"type is one of red, white, sparkling, rose, dessert, fortified, other."
)

var attributesSchema = map[string]any{
	"type":                 "object",
	"additionalProperties": false,
	"properties": map[string]any{
		"producer": map[string]any{"type": []string{"string", "null"}},
		"name":     map[string]any{"type": []string{"string", "null"}},
		"vintage":  map[string]any{"type": []string{"integer", "null"}},
		"country":  map[string]any{"type": []string{"string", "null"}},
		"region":   map[string]any{"type": []string{"string", "null"}},
		"type": map[string]any{
			"type": []string{"string", "null"},
			"enum": []any{"red", "white", "sparkling", "rose", "dessert", "fortified", "other", nil},
		},
	},
	"required": []string{"producer", "name", "vintage", "country", "region", "type"},
}

// OpenAIExtractor calls the chat completions API with a strict JSON schema.
type OpenAIExtractor struct {
	BaseURL    string
	APIKey     string
	Model      string
	HTTPClient *http.Client
}

// NewOpenAIExtractor returns nil when no API key is configured.
func NewOpenAIExtractor(cfg config.OpenAIConfig) *OpenAIExtractor {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil
	}
	return &OpenAIExtractor{
		BaseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		APIKey:     cfg.APIKey,
		Model:      cfg.Model,
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	ResponseFormat map[string]any `json:"response_format"`
	Temperature    float64        `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type httpError struct {
	StatusCode int
	Body       string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("openai http %d: %s", e.StatusCode, e.Body)
}

func (o *OpenAIExtractor) FromText(ctx context.Context, text string) (*RawAttributes, error) {
	return o.complete(ctx, []chatMessage{
		{Role: "system", Content: textPrompt},
		{Role: "user", Content: fmt.Sprintf("Input: %q", text)},
	})
}

func (o *OpenAIExtractor) FromImage(ctx context.Context, image []byte, mimeType string) (*RawAttributes, error) {
	dataURL := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(image)
	return o.complete(ctx, []chatMessage{
		{Role: "system", Content: labelPrompt},
		{Role: "user", Content: []contentPart{
			{Type: "text", Text: "Extract the wine attributes from this label."},
			{Type: "image_url", ImageURL: &imageURL{URL: dataURL, Detail: "high"}},
		}},
	})
}

func (o *OpenAIExtractor) complete(ctx context.Context, messages []chatMessage) (*RawAttributes, error) {
	body := chatRequest{
		Model:    o.Model,
		Messages: messages,
		ResponseFormat: map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   "parsed_wine",
				"strict": true,
				"schema": attributesSchema,
			},
		},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.BaseURL+"/chat/completions", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+o.APIKey)
	req.Header.Set("Content-Type", "application/json")

	client := o.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &httpError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var out chatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode completion: %w", err)
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("completion has no choices")
	}
	var attrs RawAttributes
	if err := json.Unmarshal([]byte(stripFences(out.Choices[0].Message.Content)), &attrs); err != nil {
		return nil, fmt.Errorf("decode attributes: %w", err)
	}
	return &attrs, nil
}

// stripFences removes a ```json fence some models wrap around the answer.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
