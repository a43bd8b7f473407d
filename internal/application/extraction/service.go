package extraction

import (
	"context"
	"errors"
	"strings"

	"cellar-backend/internal/domain"
	"cellar-backend/internal/pkg/validation"

	"github.com/rs/zerolog/log"
)

// MaxImageBytes bounds label images sent for analysis.
const MaxImageBytes = 8 << 20

// Attributes are best-effort wine attributes. Every field may be nil and all of
// them are suggestions: callers validate them like user input.
type Attributes struct {
	Producer *string          `json:"producer"`
	Name     *string          `json:"name"`
	Vintage  *int             `json:"vintage"`
	Country  *string          `json:"country"`
	Region   *string          `json:"region"`
	Type     *domain.WineType `json:"type"`
}

// Extractor turns free text or a label image into raw attributes.
type Extractor interface {
	FromText(ctx context.Context, text string) (*RawAttributes, error)
	FromImage(ctx context.Context, image []byte, mimeType string) (*RawAttributes, error)
}

var errNotConfigured = errors.New("attribute extraction is not configured")

type Service struct {
	Extractor Extractor
}

type ParseTextInput struct {
	Text string `json:"text" validate:"notblank,max=2000"`
}

// ParseText extracts attributes from a short free-text description.
func (s *Service) ParseText(ctx context.Context, in ParseTextInput) (*Attributes, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if s.Extractor == nil {
		return nil, domain.Storage("parse wine", errNotConfigured)
	}
	raw, err := s.Extractor.FromText(ctx, strings.TrimSpace(in.Text))
	if err != nil {
		log.Warn().Err(err).Msg("wine text extraction failed")
		return nil, domain.Storage("parse wine", err)
	}
	return Sanitize(raw), nil
}

// AnalyzeLabel extracts attributes from a label photo.
func (s *Service) AnalyzeLabel(ctx context.Context, image []byte, mimeType string) (*Attributes, error) {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if len(image) == 0 {
		return nil, domain.NewValidationError("image", "This field is required")
	}
	if len(image) > MaxImageBytes {
		return nil, domain.NewValidationError("image", "Image is too large")
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return nil, domain.NewValidationError("image", "Must be an image")
	}
	if s.Extractor == nil {
		return nil, domain.Storage("analyze label", errNotConfigured)
	}
	raw, err := s.Extractor.FromImage(ctx, image, mimeType)
	if err != nil {
		log.Warn().Err(err).Str("mime", mimeType).Msg("label extraction failed")
		return nil, domain.Storage("analyze label", err)
	}
	return Sanitize(raw), nil
}
