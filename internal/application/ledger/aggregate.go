package ledger

import (
	"errors"
	"time"

	"cellar-backend/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// errStaleAggregate is returned when the version compare-and-swap loses; the
// enclosing transaction is retried.
var errStaleAggregate = errors.New("wine aggregate changed underneath")

// LockWine reads a wine for update inside tx, scoped to the house.
func LockWine(tx *gorm.DB, houseID, wineID uuid.UUID) (*domain.Wine, error) {
	var w domain.Wine
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND house_id = ?", wineID, houseID).
		First(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.NewNotFoundError("Wine", wineID)
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// UpsertOnPurchaseInsert folds a new purchase into its wine's aggregate fields.
func UpsertOnPurchaseInsert(tx *gorm.DB, p *domain.Purchase) (*domain.Wine, error) {
	w, err := LockWine(tx, p.HouseID, p.WineID)
	if err != nil {
		return nil, err
	}
	w.ApplyPurchase(p.Quantity, p.UnitPrice, p.PurchasedAt)
	if err := saveAggregate(tx, w); err != nil {
		return nil, err
	}
	return w, nil
}

// ReverseOnPurchaseDelete removes a deleted purchase from its wine's aggregate
// fields. The purchase row must already be gone from tx.
func ReverseOnPurchaseDelete(tx *gorm.DB, p *domain.Purchase) (*domain.Wine, error) {
	w, err := LockWine(tx, p.HouseID, p.WineID)
	if err != nil {
		return nil, err
	}
	var latest domain.Purchase
	var lastAt *time.Time
	err = tx.Select("purchased_at").
		Where("wine_id = ?", p.WineID).
		Order("purchased_at DESC").
		First(&latest).Error
	switch {
	case err == nil:
		at := latest.PurchasedAt.UTC()
		lastAt = &at
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}
	w.ReversePurchase(p.Quantity, p.UnitPrice, lastAt)
	if err := saveAggregate(tx, w); err != nil {
		return nil, err
	}
	return w, nil
}

// saveAggregate writes the derived fields guarded by the version read with the row.
func saveAggregate(tx *gorm.DB, w *domain.Wine) error {
	now := time.Now().UTC()
	res := tx.Model(&domain.Wine{}).
		Where("id = ? AND version = ?", w.ID, w.Version).
		UpdateColumns(map[string]interface{}{
			"stock_qty":            w.StockQty,
			"purchase_qty_total":   w.PurchaseQtyTotal,
			"purchase_value_total": w.PurchaseValueTotal,
			"avg_purchase_price":   w.AvgPurchasePrice,
			"last_purchased_at":    w.LastPurchasedAt,
			"version":              w.Version + 1,
			"updated_at":           now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errStaleAggregate
	}
	w.Version++
	w.UpdatedAt = now
	return nil
}
