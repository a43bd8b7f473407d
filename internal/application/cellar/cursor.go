package cellar

import (
	"encoding/base64"
	"encoding/json"
	"math"
)

type cursorPayload struct {
	Offset float64 `json:"offset"`
}

// EncodeCursor returns the opaque token for a result offset.
func EncodeCursor(offset int) string {
	b, _ := json.Marshal(map[string]int{"offset": offset})
	return base64.RawURLEncoding.EncodeToString(b)
}

// DecodeCursor returns the offset in token. Anything undecodable, negative or
// non-finite decodes to 0.
func DecodeCursor(token string) int {
	if token == "" {
		return 0
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		// tolerate padded tokens
		if raw, err = base64.URLEncoding.DecodeString(token); err != nil {
			return 0
		}
	}
	var p cursorPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return 0
	}
	if math.IsNaN(p.Offset) || math.IsInf(p.Offset, 0) || p.Offset < 0 || p.Offset > math.MaxInt32 {
		return 0
	}
	return int(math.Trunc(p.Offset))
}
