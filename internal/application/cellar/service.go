package cellar

import (
	"context"
	"sort"
	"strings"
	"time"

	"cellar-backend/internal/application/blobstore"
	"cellar-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Service is the read side of the cellar: listings, stats, facets and export.
type Service struct {
	DB           *gorm.DB
	Blob         blobstore.Store
	ThumbnailTTL time.Duration
}

// Item is one wine in a listing.
type Item struct {
	ID               uuid.UUID        `json:"id"`
	Producer         string           `json:"producer"`
	Name             *string          `json:"name"`
	Vintage          *int             `json:"vintage"`
	Country          *string          `json:"country"`
	Region           *string          `json:"region"`
	Type             *domain.WineType `json:"type"`
	StockQty         int              `json:"stock_qty"`
	AvgPurchasePrice decimal.Decimal  `json:"avg_purchase_price"`
	Rating           *int             `json:"rating"`
	LastPurchasedAt  *time.Time       `json:"last_purchased_at"`
	ThumbnailURL     *string          `json:"thumbnail_url"`
}

// Page is one page of a listing.
type Page struct {
	Items      []Item  `json:"items"`
	NextCursor *string `json:"nextCursor"`
	HasMore    bool    `json:"hasMore"`
	Stats      *Stats  `json:"stats,omitempty"`
}

// List returns one page of the house's wines. Stats, when requested, cover the
// whole house and ignore q's filters.
func (s *Service) List(ctx context.Context, houseID uuid.UUID, q Query, includeStats bool) (*Page, error) {
	limit := q.Limit
	if limit < 1 || limit > MaxLimit {
		limit = DefaultLimit
	}
	offset := DecodeCursor(q.Cursor)

	db := s.DB.WithContext(ctx).Model(&domain.Wine{}).Where("house_id = ?", houseID)
	db = applySort(q.Filters.apply(db), q.Sort)

	var rows []domain.Wine
	if err := db.Offset(offset).Limit(limit + 1).Find(&rows).Error; err != nil {
		return nil, domain.Storage("list wines", err)
	}

	page := &Page{Items: make([]Item, 0, limit)}
	if len(rows) > limit {
		page.HasMore = true
		rows = rows[:limit]
		next := EncodeCursor(offset + limit)
		page.NextCursor = &next
	}

	thumbs := s.thumbnails(ctx, rows)
	for i := range rows {
		w := &rows[i]
		page.Items = append(page.Items, Item{
			ID:               w.ID,
			Producer:         w.Producer,
			Name:             w.Name,
			Vintage:          w.Vintage,
			Country:          w.Country,
			Region:           w.Region,
			Type:             w.Type,
			StockQty:         w.StockQty,
			AvgPurchasePrice: w.AvgPurchasePrice,
			Rating:           w.Rating,
			LastPurchasedAt:  w.LastPurchasedAt,
			ThumbnailURL:     thumbs[i],
		})
	}

	if includeStats {
		stats, err := s.Stats(ctx, houseID)
		if err != nil {
			return nil, err
		}
		page.Stats = stats
	}
	return page, nil
}

// thumbnails resolves each row's primary label photo in one batch. Failures
// leave nil entries; the page is still served.
func (s *Service) thumbnails(ctx context.Context, rows []domain.Wine) []*string {
	out := make([]*string, len(rows))
	refs := make([]string, len(rows))
	hasRef := false
	for i := range rows {
		refs[i] = rows[i].PrimaryLabelRef()
		hasRef = hasRef || refs[i] != ""
	}
	if !hasRef || s.Blob == nil {
		return out
	}
	urls, err := s.Blob.ResolveBatch(ctx, refs, s.ThumbnailTTL)
	if err != nil {
		log.Warn().Err(err).Int("refs", len(refs)).Msg("thumbnail resolution failed")
	}
	for i := range out {
		if i < len(urls) && urls[i] != "" {
			u := urls[i]
			out[i] = &u
		}
	}
	return out
}

// Countries lists the distinct non-blank countries of the house, sorted.
func (s *Service) Countries(ctx context.Context, houseID uuid.UUID) ([]string, error) {
	var raw []*string
	err := s.DB.WithContext(ctx).Model(&domain.Wine{}).
		Where("house_id = ? AND country IS NOT NULL", houseID).
		Distinct().
		Pluck("country", &raw).Error
	if err != nil {
		return nil, domain.Storage("list countries", err)
	}
	seen := map[string]bool{}
	countries := make([]string, 0, len(raw))
	for _, c := range raw {
		if c == nil {
			continue
		}
		v := strings.TrimSpace(*c)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		countries = append(countries, v)
	}
	sort.Slice(countries, func(i, j int) bool {
		a, b := strings.ToLower(countries[i]), strings.ToLower(countries[j])
		if a != b {
			return a < b
		}
		return countries[i] < countries[j]
	})
	return countries, nil
}
