package extraction

import (
	"math"
	"strconv"
	"strings"

	"cellar-backend/internal/domain"
	"cellar-backend/internal/pkg/validation"
)

// RawAttributes is the collaborator's answer before sanitation. Vintage is
// loosely typed because models return it as a number or as text.
type RawAttributes struct {
	Producer *string     `json:"producer"`
	Name     *string     `json:"name"`
	Vintage  interface{} `json:"vintage"`
	Country  *string     `json:"country"`
	Region   *string     `json:"region"`
	Type     *string     `json:"type"`
}

var sparklingKeywords = []string{
	"champagne", "crémant", "cremant", "cava", "prosecco", "schaumwein", "sparkling",
	"brut", "methode", "méthode", "champenoise", "traditional", "sekt", "frizzante",
	"spumante", "espumante", "bubbles",
}

var roseKeywords = append([]string{"rose"}, domain.RoseNames...)

// Sanitize trims every field, drops blanks, keeps only plausible vintages and
// known types, and promotes the type to sparkling or rose when the producer,
// name or region carry a telltale keyword.
func Sanitize(raw *RawAttributes) *Attributes {
	out := &Attributes{}
	if raw == nil {
		return out
	}
	out.Producer = clean(raw.Producer)
	out.Name = clean(raw.Name)
	out.Country = clean(raw.Country)
	out.Region = clean(raw.Region)
	out.Vintage = vintage(raw.Vintage)
	if t := clean(raw.Type); t != nil {
		if wt, ok := domain.ParseWineType(*t); ok {
			out.Type = &wt
		}
	}

	var parts []string
	for _, p := range []*string{out.Name, out.Producer, out.Region} {
		if p != nil {
			parts = append(parts, *p)
		}
	}
	text := strings.ToLower(strings.Join(parts, " "))
	switch {
	case containsAny(text, sparklingKeywords):
		t := domain.WineTypeSparkling
		out.Type = &t
	case containsAny(text, roseKeywords):
		t := domain.WineTypeRose
		out.Type = &t
	}
	return out
}

func clean(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" || strings.EqualFold(v, "null") {
		return nil
	}
	return &v
}

func vintage(v interface{}) *int {
	var year int
	switch x := v.(type) {
	case float64:
		if x != math.Trunc(x) {
			return nil
		}
		year = int(x)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			return nil
		}
		year = n
	default:
		return nil
	}
	if !validation.IsValidVintage(year) {
		return nil
	}
	return &year
}

func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}
