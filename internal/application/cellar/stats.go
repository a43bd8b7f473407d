package cellar

import (
	"context"
	"sort"
	"strings"

	"cellar-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const statsBatchSize = 500

// UnknownCountry labels wines without a country in the by-country breakdown.
const UnknownCountry = "Unknown"

type TypeBreakdown struct {
	Red       int `json:"red"`
	White     int `json:"white"`
	Sparkling int `json:"sparkling"`
	Other     int `json:"other"`
}

type CountryCount struct {
	Country string `json:"country"`
	Bottles int    `json:"bottles"`
}

type Bucket struct {
	Bottles   int             `json:"bottles"`
	Value     decimal.Decimal `json:"value"`
	ByType    TypeBreakdown   `json:"by_type"`
	ByCountry []CountryCount  `json:"by_country"`
}

type Totals struct {
	Bottles int             `json:"bottles"`
	Value   decimal.Decimal `json:"value"`
}

// Stats summarizes a whole house. It never depends on list filters.
type Stats struct {
	OnHand   Bucket `json:"on_hand"`
	Consumed Bucket `json:"consumed"`
	Total    Totals `json:"total"`
}

type bucketAcc struct {
	bottles   int
	value     decimal.Decimal
	byType    TypeBreakdown
	byCountry map[string]int
}

func newBucketAcc() *bucketAcc {
	return &bucketAcc{byCountry: map[string]int{}}
}

func (b *bucketAcc) add(w *domain.Wine, bottles int) {
	if bottles <= 0 {
		return
	}
	b.bottles += bottles
	b.value = b.value.Add(w.AvgPurchasePrice.Mul(decimal.NewFromInt(int64(bottles))))

	switch typeOf(w) {
	case domain.WineTypeRed:
		b.byType.Red += bottles
	case domain.WineTypeWhite:
		b.byType.White += bottles
	case domain.WineTypeSparkling:
		b.byType.Sparkling += bottles
	default:
		b.byType.Other += bottles
	}

	country := UnknownCountry
	if w.Country != nil && strings.TrimSpace(*w.Country) != "" {
		country = strings.TrimSpace(*w.Country)
	}
	b.byCountry[country] += bottles
}

func (b *bucketAcc) bucket() Bucket {
	out := Bucket{
		Bottles:   b.bottles,
		Value:     b.value.Round(2),
		ByType:    b.byType,
		ByCountry: make([]CountryCount, 0, len(b.byCountry)),
	}
	for c, n := range b.byCountry {
		out.ByCountry = append(out.ByCountry, CountryCount{Country: c, Bottles: n})
	}
	sort.Slice(out.ByCountry, func(i, j int) bool {
		a, c := out.ByCountry[i], out.ByCountry[j]
		if a.Bottles != c.Bottles {
			return a.Bottles > c.Bottles
		}
		return a.Country < c.Country
	})
	return out
}

func typeOf(w *domain.Wine) domain.WineType {
	if w.Type == nil {
		return domain.WineTypeOther
	}
	return *w.Type
}

// Stats aggregates on-hand and consumed bottles over every wine of the house.
// Values are proportional: bottles times the wine's average purchase price.
func (s *Service) Stats(ctx context.Context, houseID uuid.UUID) (*Stats, error) {
	onHand, consumed := newBucketAcc(), newBucketAcc()
	total := Totals{Value: decimal.Zero}

	var batch []domain.Wine
	err := s.DB.WithContext(ctx).
		Model(&domain.Wine{}).
		Select("id", "type", "country", "stock_qty", "purchase_qty_total", "purchase_value_total", "avg_purchase_price").
		Where("house_id = ?", houseID).
		FindInBatches(&batch, statsBatchSize, func(tx *gorm.DB, _ int) error {
			for i := range batch {
				w := &batch[i]
				onHand.add(w, w.StockQty)
				consumed.add(w, w.ConsumedQty())
				total.Bottles += w.PurchaseQtyTotal
				total.Value = total.Value.Add(w.PurchaseValueTotal)
			}
			return nil
		}).Error
	if err != nil {
		return nil, domain.Storage("cellar stats", err)
	}

	total.Value = total.Value.Round(2)
	return &Stats{
		OnHand:   onHand.bucket(),
		Consumed: consumed.bucket(),
		Total:    total,
	}, nil
}
