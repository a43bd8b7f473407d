package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"cellar-backend/internal/config"
	"cellar-backend/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestSanitize_TrimsAndDropsImplausibleValues(t *testing.T) {
	got := Sanitize(&RawAttributes{
		Producer: strPtr("  Domaine Leflaive "),
		Name:     strPtr("   "),
		Vintage:  float64(1700),
		Country:  strPtr("null"),
		Region:   strPtr("Bourgogne"),
		Type:     strPtr("orange"),
	})
	require.NotNil(t, got.Producer)
	assert.Equal(t, "Domaine Leflaive", *got.Producer)
	assert.Nil(t, got.Name)
	assert.Nil(t, got.Vintage)
	assert.Nil(t, got.Country)
	assert.Equal(t, "Bourgogne", *got.Region)
	assert.Nil(t, got.Type)
}

func TestSanitize_Vintage(t *testing.T) {
	cases := []struct {
		in   interface{}
		want *int
	}{
		{float64(2019), func() *int { v := 2019; return &v }()},
		{" 2005 ", func() *int { v := 2005; return &v }()},
		{float64(2019.5), nil},
		{"NV", nil},
		{float64(2200), nil},
		{nil, nil},
		{true, nil},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Sanitize(&RawAttributes{Vintage: c.in}).Vintage, "%v", c.in)
	}
}

func TestSanitize_KeywordPromotion(t *testing.T) {
	red := "red"
	got := Sanitize(&RawAttributes{Producer: strPtr("Bollinger"), Name: strPtr("Special Cuvée Brut"), Type: &red})
	require.NotNil(t, got.Type)
	assert.Equal(t, domain.WineTypeSparkling, *got.Type)

	got = Sanitize(&RawAttributes{Name: strPtr("Whispering Angel Rosé"), Type: &red})
	assert.Equal(t, domain.WineTypeRose, *got.Type)

	got = Sanitize(&RawAttributes{Name: strPtr("Crémant Rosé")})
	assert.Equal(t, domain.WineTypeSparkling, *got.Type)

	white := "WHITE"
	got = Sanitize(&RawAttributes{Name: strPtr("Puligny-Montrachet"), Type: &white})
	assert.Equal(t, domain.WineTypeWhite, *got.Type)

	assert.Equal(t, &Attributes{}, Sanitize(nil))
}

type stubExtractor struct {
	raw  *RawAttributes
	err  error
	text string
	mime string
}

func (s *stubExtractor) FromText(ctx context.Context, text string) (*RawAttributes, error) {
	s.text = text
	return s.raw, s.err
}

func (s *stubExtractor) FromImage(ctx context.Context, image []byte, mimeType string) (*RawAttributes, error) {
	s.mime = mimeType
	return s.raw, s.err
}

func TestService_ParseText(t *testing.T) {
	stub := &stubExtractor{raw: &RawAttributes{Producer: strPtr("Gaja"), Vintage: float64(2016)}}
	s := &Service{Extractor: stub}

	got, err := s.ParseText(context.Background(), ParseTextInput{Text: "  gaja barbaresco 2016 "})
	require.NoError(t, err)
	assert.Equal(t, "gaja barbaresco 2016", stub.text)
	assert.Equal(t, "Gaja", *got.Producer)
	assert.Equal(t, 2016, *got.Vintage)

	_, err = s.ParseText(context.Background(), ParseTextInput{Text: "  "})
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "text", ve.Field)

	stub.err = errors.New("rate limited")
	_, err = s.ParseText(context.Background(), ParseTextInput{Text: "gaja"})
	assert.ErrorIs(t, err, domain.ErrStorage)
}

func TestService_AnalyzeLabel(t *testing.T) {
	stub := &stubExtractor{raw: &RawAttributes{Name: strPtr("Cava Reserva")}}
	s := &Service{Extractor: stub}

	got, err := s.AnalyzeLabel(context.Background(), []byte{0xff, 0xd8}, " IMAGE/JPEG ")
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", stub.mime)
	assert.Equal(t, domain.WineTypeSparkling, *got.Type)

	var ve *domain.ValidationError
	_, err = s.AnalyzeLabel(context.Background(), nil, "image/png")
	assert.ErrorAs(t, err, &ve)
	_, err = s.AnalyzeLabel(context.Background(), []byte("%PDF"), "application/pdf")
	assert.ErrorAs(t, err, &ve)
	_, err = s.AnalyzeLabel(context.Background(), make([]byte, MaxImageBytes+1), "image/png")
	assert.ErrorAs(t, err, &ve)
}

func TestService_NotConfigured(t *testing.T) {
	s := &Service{}
	_, err := s.ParseText(context.Background(), ParseTextInput{Text: "gaja"})
	assert.ErrorIs(t, err, domain.ErrStorage)
	assert.Nil(t, NewOpenAIExtractor(config.OpenAIConfig{}))
}

func completion(content string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []any{map[string]any{"message": map[string]any{"role": "assistant", "content": content}}},
	})
	return string(b)
}

func TestOpenAIExtractor_FromText(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		_, _ = io.WriteString(w, completion(`{"producer":"Gaja","name":"Barbaresco","vintage":2016,"country":"Italy","region":"Piemonte","type":"red"}`))
	}))
	defer srv.Close()

	o := NewOpenAIExtractor(config.OpenAIConfig{APIKey: "sk-test", Model: "gpt-4o-mini", BaseURL: srv.URL + "/v1/"})
	raw, err := o.FromText(context.Background(), "gaja barbaresco 16")
	require.NoError(t, err)
	assert.Equal(t, "Gaja", *raw.Producer)
	assert.Equal(t, float64(2016), raw.Vintage)

	assert.Equal(t, "gpt-4o-mini", got["model"])
	format := got["response_format"].(map[string]any)
	assert.Equal(t, "json_schema", format["type"])
}

func TestOpenAIExtractor_FromImageSendsDataURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), "data:image/png;base64,iVBO")
		_, _ = io.WriteString(w, completion("```json\n{\"producer\":null,\"name\":\"Sancerre\",\"vintage\":null,\"country\":null,\"region\":null,\"type\":\"white\"}\n```"))
	}))
	defer srv.Close()

	o := NewOpenAIExtractor(config.OpenAIConfig{APIKey: "sk-test", Model: "m", BaseURL: srv.URL})
	raw, err := o.FromImage(context.Background(), []byte{0x89, 0x50, 0x4e, 0x47}, "image/png")
	require.NoError(t, err)
	assert.Nil(t, raw.Producer)
	assert.Equal(t, "Sancerre", *raw.Name)
}

func TestOpenAIExtractor_Errors(t *testing.T) {
	limited := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"message":"slow down"}}`)
	}))
	defer limited.Close()

	o := NewOpenAIExtractor(config.OpenAIConfig{APIKey: "sk-test", Model: "m", BaseURL: limited.URL})
	_, err := o.FromText(context.Background(), "x")
	var he *httpError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusTooManyRequests, he.StatusCode)

	garbled := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, completion("not json"))
	}))
	defer garbled.Close()

	o.BaseURL = garbled.URL
	_, err = o.FromText(context.Background(), "x")
	assert.ErrorContains(t, err, "decode attributes")
}
