package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Purchase is one ledger entry: some bottles of a wine bought at a price.
type Purchase struct {
	ID              uuid.UUID       `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	HouseID         uuid.UUID       `gorm:"column:house_id;type:uuid;not null;index" json:"house_id"`
	WineID          uuid.UUID       `gorm:"column:wine_id;type:uuid;not null;index:idx_purchases_wine_date,priority:1" json:"wine_id"`
	Store           string          `gorm:"column:store;not null" json:"store"`
	UnitPrice       decimal.Decimal `gorm:"column:unit_price;type:decimal(18,2);not null" json:"unit_price"`
	Quantity        int             `gorm:"column:quantity;not null" json:"quantity"`
	PurchasedAt     time.Time       `gorm:"column:purchased_at;not null;index:idx_purchases_wine_date,priority:2" json:"purchased_at"`
	ReceiptPhotoRef *string         `gorm:"column:receipt_photo_ref" json:"receipt_photo_ref"`
	CreatedAt       time.Time       `gorm:"column:created_at" json:"created_at"`

	Wine *Wine `gorm:"foreignKey:WineID;constraint:OnDelete:CASCADE" json:"-"`
}

func (Purchase) TableName() string {
	return "purchases"
}

func (p *Purchase) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.PurchasedAt.IsZero() {
		p.PurchasedAt = time.Now().UTC()
	}
	return nil
}
