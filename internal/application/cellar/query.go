package cellar

import (
	"math"
	"strconv"
	"strings"

	"cellar-backend/internal/domain"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	DefaultLimit = 20
	MaxLimit     = 50
)

const (
	StockIn     = "in_stock"
	StockOut    = "out_of_stock"
	StockAll    = "all"
	TypeAll     = "all"
	SortDefault = "stock_desc"
)

// sorts maps each sort name to its ORDER BY terms. Every sort ends on id so the
// order is total; nullable keys order nulls last.
var sorts = map[string][]string{
	"stock_desc":    {"stock_qty DESC", "id DESC"},
	"purchase_desc": {"(last_purchased_at IS NULL) ASC", "last_purchased_at DESC", "id DESC"},
	"purchase_asc":  {"(last_purchased_at IS NULL) ASC", "last_purchased_at ASC", "id DESC"},
	"price_desc":    {"avg_purchase_price DESC", "id DESC"},
	"price_asc":     {"avg_purchase_price ASC", "id ASC"},
	"rating_desc":   {"(rating IS NULL) ASC", "rating DESC", "id DESC"},
	"vintage_asc":   {"(vintage IS NULL) ASC", "vintage ASC", "id ASC"},
	"vintage_desc":  {"(vintage IS NULL) ASC", "vintage DESC", "id DESC"},
}

// Filters narrow a cellar listing. Zero price bounds are ignored.
type Filters struct {
	Q        string
	Stock    string
	Type     string
	Country  string
	PriceMin decimal.Decimal
	PriceMax decimal.Decimal
}

// Query is a normalized list request.
type Query struct {
	Filters
	Sort   string
	Cursor string
	Limit  int
}

// Params are the raw query-string values of a list request.
type Params struct {
	Q        string `query:"q"`
	Stock    string `query:"stock"`
	Type     string `query:"type"`
	Country  string `query:"country"`
	Sort     string `query:"sort"`
	PriceMin string `query:"priceMin"`
	PriceMax string `query:"priceMax"`
	Limit    string `query:"limit"`
	Cursor   string `query:"cursor"`
}

// ParseQuery normalizes raw parameters. Unknown values fall back to defaults
// rather than failing.
func ParseQuery(p Params) Query {
	return Query{
		Filters: Filters{
			Q:        strings.TrimSpace(p.Q),
			Stock:    NormalizeStock(p.Stock),
			Type:     NormalizeType(p.Type),
			Country:  strings.TrimSpace(p.Country),
			PriceMin: parsePrice(p.PriceMin),
			PriceMax: parsePrice(p.PriceMax),
		},
		Sort:   NormalizeSort(p.Sort),
		Cursor: p.Cursor,
		Limit:  ClampLimit(p.Limit),
	}
}

func NormalizeStock(v string) string {
	switch v {
	case StockIn, StockOut, StockAll:
		return v
	}
	return StockIn
}

func NormalizeType(v string) string {
	if t, ok := domain.ParseWineType(v); ok {
		return string(t)
	}
	return TypeAll
}

func NormalizeSort(v string) string {
	if _, ok := sorts[v]; ok {
		return v
	}
	return SortDefault
}

func ClampLimit(v string) int {
	if strings.TrimSpace(v) == "" {
		return DefaultLimit
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || math.IsNaN(f) {
		return 1
	}
	switch {
	case f < 1:
		return 1
	case f > MaxLimit:
		return MaxLimit
	}
	return int(f)
}

func parsePrice(v string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(v))
	if err != nil || !d.IsPositive() {
		return decimal.Zero
	}
	return d
}

// apply adds the filter predicates to a query over wines of one house.
func (f Filters) apply(db *gorm.DB) *gorm.DB {
	switch f.Stock {
	case StockIn:
		db = db.Where("stock_qty > 0")
	case StockOut:
		db = db.Where("stock_qty = 0")
	}
	if f.Type != "" && f.Type != TypeAll {
		db = db.Where("type = ?", f.Type)
	}
	if f.Country != "" {
		db = db.Where("country = ?", f.Country)
	}
	if f.PriceMin.IsPositive() {
		db = db.Where("avg_purchase_price >= ?", f.PriceMin)
	}
	if f.PriceMax.IsPositive() {
		db = db.Where("avg_purchase_price <= ?", f.PriceMax)
	}
	if f.Q != "" {
		pattern := "%" + escapeLike(strings.ToLower(f.Q)) + "%"
		db = db.Where(
			`(LOWER(producer) LIKE ? ESCAPE '\' OR LOWER(name) LIKE ? ESCAPE '\' OR LOWER(region) LIKE ? ESCAPE '\' OR LOWER(country) LIKE ? ESCAPE '\')`,
			pattern, pattern, pattern, pattern,
		)
	}
	return db
}

func applySort(db *gorm.DB, sort string) *gorm.DB {
	terms, ok := sorts[sort]
	if !ok {
		terms = sorts[SortDefault]
	}
	for _, t := range terms {
		db = db.Order(t)
	}
	return db
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
