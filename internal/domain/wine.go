package domain

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type WineType string

const (
	WineTypeRed       WineType = "red"
	WineTypeWhite     WineType = "white"
	WineTypeSparkling WineType = "sparkling"
	WineTypeRose      WineType = "rose"
	WineTypeDessert   WineType = "dessert"
	WineTypeFortified WineType = "fortified"
	WineTypeOther     WineType = "other"
)

var WineTypes = []WineType{
	WineTypeRed, WineTypeWhite, WineTypeSparkling, WineTypeRose,
	WineTypeDessert, WineTypeFortified, WineTypeOther,
}

// RoseNames are the spellings of rosé accepted alongside "rose".
var RoseNames = []string{"rosé", "rosado", "rosato", "blush"}

// ParseWineType accepts any casing and the RoseNames; ok is false for unknown values.
func ParseWineType(s string) (WineType, bool) {
	v := WineType(strings.ToLower(strings.TrimSpace(s)))
	for _, t := range WineTypes {
		if v == t {
			return t, true
		}
	}
	for _, name := range RoseNames {
		if string(v) == name {
			return WineTypeRose, true
		}
	}
	return "", false
}

// NonVintage is the vintage component of the identity key for wines without a vintage.
const NonVintage = "NV"

// Wine is one distinct bottling in a house. The accounting fields are derived from
// the purchase ledger and the stock engine; nothing else writes them.
type Wine struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	HouseID     uuid.UUID `gorm:"column:house_id;type:uuid;not null;uniqueIndex:idx_wines_identity,priority:1" json:"house_id"`
	IdentityKey string    `gorm:"column:identity_key;not null;uniqueIndex:idx_wines_identity,priority:2" json:"-"`
	Producer    string    `gorm:"column:producer;not null" json:"producer"`
	Name        *string   `gorm:"column:name" json:"name"`
	Vintage     *int      `gorm:"column:vintage" json:"vintage"`
	Country     *string   `gorm:"column:country;index" json:"country"`
	Region      *string   `gorm:"column:region" json:"region"`
	Type        *WineType `gorm:"column:type;type:varchar(20)" json:"type"`

	StockQty           int             `gorm:"column:stock_qty;not null" json:"stock_qty"`
	PurchaseQtyTotal   int             `gorm:"column:purchase_qty_total;not null" json:"purchase_qty_total"`
	PurchaseValueTotal decimal.Decimal `gorm:"column:purchase_value_total;type:decimal(18,2);not null" json:"purchase_value_total"`
	AvgPurchasePrice   decimal.Decimal `gorm:"column:avg_purchase_price;type:decimal(18,2);not null" json:"avg_purchase_price"`
	LastPurchasedAt    *time.Time      `gorm:"column:last_purchased_at" json:"last_purchased_at"`

	Rating          *int                        `gorm:"column:rating" json:"rating"`
	Comment         *string                     `gorm:"column:comment" json:"comment"`
	TastingReview   *string                     `gorm:"column:tasting_review" json:"tasting_review"`
	SommelierAdvice datatypes.JSON              `gorm:"column:sommelier_advice" json:"sommelier_advice"`
	LabelPhotoRefs  datatypes.JSONSlice[string] `gorm:"column:label_photo_refs" json:"label_photo_refs"`

	Version   int       `gorm:"column:version;not null" json:"-"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Wine) TableName() string {
	return "wines"
}

// BeforeCreate assigns the id and the identity key. Identity fields never change afterwards.
func (w *Wine) BeforeCreate(tx *gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	if w.Version == 0 {
		w.Version = 1
	}
	w.IdentityKey = WineKey(w.Producer, w.Name, w.Vintage)
	return nil
}

// PrimaryLabelRef is the first label photo reference, or "" when there is none.
func (w *Wine) PrimaryLabelRef() string {
	if len(w.LabelPhotoRefs) == 0 {
		return ""
	}
	return w.LabelPhotoRefs[0]
}

// ApplyPurchase adds one purchase to the aggregate fields.
func (w *Wine) ApplyPurchase(quantity int, unitPrice decimal.Decimal, purchasedAt time.Time) {
	w.PurchaseQtyTotal += quantity
	w.PurchaseValueTotal = w.PurchaseValueTotal.Add(unitPrice.Mul(decimal.NewFromInt(int64(quantity))))
	w.StockQty += quantity
	w.recomputeAverage()
	if w.LastPurchasedAt == nil || purchasedAt.After(*w.LastPurchasedAt) {
		at := purchasedAt
		w.LastPurchasedAt = &at
	}
}

// ReversePurchase removes one purchase from the aggregate fields. Stock is clamped to
// the new purchase total, so bottles already consumed stay consumed.
// lastPurchasedAt is the latest remaining purchase date (nil when none remain).
func (w *Wine) ReversePurchase(quantity int, unitPrice decimal.Decimal, lastPurchasedAt *time.Time) {
	w.PurchaseQtyTotal -= quantity
	if w.PurchaseQtyTotal < 0 {
		w.PurchaseQtyTotal = 0
	}
	w.PurchaseValueTotal = w.PurchaseValueTotal.Sub(unitPrice.Mul(decimal.NewFromInt(int64(quantity))))
	if w.PurchaseValueTotal.IsNegative() || w.PurchaseQtyTotal == 0 {
		w.PurchaseValueTotal = decimal.Zero
	}
	if w.StockQty > w.PurchaseQtyTotal {
		w.StockQty = w.PurchaseQtyTotal
	}
	if w.StockQty < 0 {
		w.StockQty = 0
	}
	w.recomputeAverage()
	w.LastPurchasedAt = lastPurchasedAt
}

func (w *Wine) recomputeAverage() {
	if w.PurchaseQtyTotal <= 0 {
		w.AvgPurchasePrice = decimal.Zero
		return
	}
	w.AvgPurchasePrice = w.PurchaseValueTotal.Div(decimal.NewFromInt(int64(w.PurchaseQtyTotal))).Round(2)
}

// ConsumedQty is the number of purchased bottles no longer on hand.
func (w *Wine) ConsumedQty() int {
	return w.PurchaseQtyTotal - w.StockQty
}

// WineKey builds the composite identity key (normalized producer, normalized name,
// vintage or NV). Normalization trims, folds case and collapses inner whitespace.
func WineKey(producer string, name *string, vintage *int) string {
	n := ""
	if name != nil {
		n = *name
	}
	v := NonVintage
	if vintage != nil {
		v = strconv.Itoa(*vintage)
	}
	return normalizeKeyPart(producer) + "|" + normalizeKeyPart(n) + "|" + v
}

func normalizeKeyPart(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
