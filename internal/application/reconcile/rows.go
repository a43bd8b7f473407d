package reconcile

import (
	"math"
	"strconv"
	"strings"
	"time"

	"cellar-backend/internal/domain"
	"cellar-backend/internal/pkg/validation"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// DefaultStore labels purchases whose row has no store.
const DefaultStore = "import"

// Column keys after header normalization (lowercase, "_" and spaces removed).
const (
	colProducer      = "producer"
	colName          = "name"
	colVintage       = "vintage"
	colCountry       = "country"
	colRegion        = "region"
	colType          = "type"
	colStockQty      = "stockqty"
	colPurchaseQty   = "purchaseqtytotal"
	colPurchaseValue = "purchasevaluetotal"
	colPurchasedAt   = "purchasedat"
	colStore         = "store"
)

// Columns is the import/export header, in file order.
var Columns = []string{
	"producer", "name", "vintage", "country", "region", "type",
	"stock_qty", "purchase_qty_total", "purchase_value_total", "purchased_at", "store",
}

// RawRow is one data row keyed by normalized header.
type RawRow struct {
	Line   int
	Values map[string]string
}

func (r RawRow) get(col string) string {
	return strings.TrimSpace(r.Values[col])
}

// NormalizeHeader makes "stock_qty", "Stock Qty" and "stockQty" the same key.
func NormalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.ReplaceAll(h, "_", "")
	return strings.ReplaceAll(h, " ", "")
}

// Row is an accepted, normalized import row.
type Row struct {
	Line          int
	Producer      string
	Name          string
	Vintage       *int
	Country       *string
	Region        *string
	Type          *domain.WineType
	StockQty      int
	PurchaseQty   int
	PurchaseValue decimal.Decimal
	UnitPrice     decimal.Decimal
	PurchasedAt   time.Time
	Store         string
}

// Key is the wine identity key the row resolves to.
func (r Row) Key() string {
	name := r.Name
	return domain.WineKey(r.Producer, &name, r.Vintage)
}

func (r Row) wine(houseID uuid.UUID) domain.Wine {
	name := r.Name
	return domain.Wine{
		ID:       uuid.New(),
		HouseID:  houseID,
		Version:  1,
		Producer: r.Producer,
		Name:     &name,
		Vintage:  r.Vintage,
		Country:  r.Country,
		Region:   r.Region,
		Type:     r.Type,
	}
}

// Normalize converts a raw row. ok is false when the row is skipped: blank
// producer or name, or a stock quantity that is not a positive finite number.
// Zero-stock rows are fully consumed history and are not imported.
func Normalize(raw RawRow, now time.Time) (Row, bool) {
	row := Row{
		Line:     raw.Line,
		Producer: raw.get(colProducer),
		Name:     raw.get(colName),
	}
	if row.Producer == "" || row.Name == "" {
		return row, false
	}
	stock, ok := parseNumber(raw.get(colStockQty))
	if !ok || int(stock) <= 0 {
		return row, false
	}
	row.StockQty = int(stock)

	row.PurchaseQty = row.StockQty
	if pq, ok := parseNumber(raw.get(colPurchaseQty)); ok && int(pq) > row.StockQty {
		row.PurchaseQty = int(pq)
	}

	row.PurchaseValue = decimal.Zero
	if v, err := decimal.NewFromString(numberText(raw.get(colPurchaseValue))); err == nil && v.IsPositive() {
		row.PurchaseValue = v
	}
	row.UnitPrice = row.PurchaseValue.Div(decimal.NewFromInt(int64(row.PurchaseQty))).Round(2)

	if v, ok := parseNumber(raw.get(colVintage)); ok && validation.IsValidVintage(int(v)) {
		vintage := int(v)
		row.Vintage = &vintage
	}
	row.Country = optional(raw.get(colCountry))
	row.Region = optional(raw.get(colRegion))
	if t, ok := domain.ParseWineType(raw.get(colType)); ok {
		row.Type = &t
	}

	row.PurchasedAt = now
	if at, ok := ParseDate(raw.get(colPurchasedAt)); ok {
		row.PurchasedAt = at
	}
	row.Store = raw.get(colStore)
	if row.Store == "" {
		row.Store = DefaultStore
	}
	return row, true
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006/01/02",
	"2006.01.02",
	"02.01.2006",
	"02/01/2006",
}

// ParseDate accepts a spreadsheet serial date or a date-like string and returns
// the calendar date at midnight UTC.
func ParseDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil {
		if serial <= 0 || math.IsInf(serial, 0) || math.IsNaN(serial) {
			return time.Time{}, false
		}
		t, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return time.Time{}, false
		}
		return truncateDay(t), true
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return truncateDay(t), true
		}
	}
	return time.Time{}, false
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func parseNumber(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(numberText(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return math.Trunc(f), true
}

// numberText reads "12,50" as a decimal comma and "1,250.00" as a thousands separator.
func numberText(s string) string {
	if strings.Contains(s, ",") && !strings.Contains(s, ".") {
		return strings.Replace(s, ",", ".", 1)
	}
	return strings.ReplaceAll(s, ",", "")
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
