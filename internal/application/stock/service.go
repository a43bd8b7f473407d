package stock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cellar-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Service owns every write to wines.stock_qty outside purchase accounting.
// Each transition is one guarded UPDATE, so concurrent callers are serialized by
// the row write and the guard decides who wins.
type Service struct {
	DB *gorm.DB
}

// ConsumeOne takes one bottle out of stock. It fails with OutOfStockError at zero.
func (s *Service) ConsumeOne(ctx context.Context, houseID, wineID uuid.UUID) (*domain.Wine, error) {
	var wine *domain.Wine
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		n, err := decrement(tx, houseID, wineID, 1)
		if err != nil {
			return err
		}
		w, err := find(tx, houseID, wineID)
		if err != nil {
			return err
		}
		if n == 0 {
			return &domain.OutOfStockError{WineID: wineID}
		}
		wine = w
		return nil
	})
	if err != nil {
		return nil, domain.Storage("consume bottle", err)
	}
	log.Debug().Str("wine_id", wineID.String()).Int("stock_qty", wine.StockQty).Msg("bottle consumed")
	return wine, nil
}

// RestoreOne puts one bottle back, never above the purchased total. Restoring a
// full wine is a no-op.
func (s *Service) RestoreOne(ctx context.Context, houseID, wineID uuid.UUID) (*domain.Wine, error) {
	var wine *domain.Wine
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.Wine{}).
			Where("id = ? AND house_id = ? AND stock_qty < purchase_qty_total", wineID, houseID).
			UpdateColumns(map[string]interface{}{
				"stock_qty":  gorm.Expr("stock_qty + 1"),
				"version":    gorm.Expr("version + 1"),
				"updated_at": time.Now().UTC(),
			})
		if res.Error != nil {
			return res.Error
		}
		w, err := find(tx, houseID, wineID)
		if err != nil {
			return err
		}
		wine = w
		return nil
	})
	if err != nil {
		return nil, domain.Storage("restore bottle", err)
	}
	return wine, nil
}

// ConsumeWithin removes n bottles inside an open transaction. Used by bulk import
// to replay historical consumption; it fails without effect when fewer than n remain.
func ConsumeWithin(tx *gorm.DB, houseID, wineID uuid.UUID, n int) error {
	if n <= 0 {
		return nil
	}
	affected, err := decrement(tx, houseID, wineID, n)
	if err != nil {
		return err
	}
	if affected == 0 {
		if _, err := find(tx, houseID, wineID); err != nil {
			return err
		}
		return fmt.Errorf("consume %d: %w", n, &domain.OutOfStockError{WineID: wineID})
	}
	return nil
}

func decrement(tx *gorm.DB, houseID, wineID uuid.UUID, n int) (int64, error) {
	res := tx.Model(&domain.Wine{}).
		Where("id = ? AND house_id = ? AND stock_qty >= ?", wineID, houseID, n).
		UpdateColumns(map[string]interface{}{
			"stock_qty":  gorm.Expr("stock_qty - ?", n),
			"version":    gorm.Expr("version + 1"),
			"updated_at": time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

func find(tx *gorm.DB, houseID, wineID uuid.UUID) (*domain.Wine, error) {
	var w domain.Wine
	err := tx.Where("id = ? AND house_id = ?", wineID, houseID).First(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.NewNotFoundError("Wine", wineID)
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}
