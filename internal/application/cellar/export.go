package cellar

import (
	"context"
	"io"

	"cellar-backend/internal/application/reconcile"
	"cellar-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
)

const exportSheet = "Cellar"

// Export writes the house's in-stock wines as an xlsx workbook. The columns are
// the import columns, so an export can be imported again.
func (s *Service) Export(ctx context.Context, houseID uuid.UUID, w io.Writer) (int, error) {
	var wines []domain.Wine
	err := s.DB.WithContext(ctx).
		Where("house_id = ? AND stock_qty > 0", houseID).
		Order("LOWER(producer) ASC").
		Order("LOWER(name) ASC").
		Order("(vintage IS NULL) ASC").
		Order("vintage ASC").
		Order("id ASC").
		Find(&wines).Error
	if err != nil {
		return 0, domain.Storage("export wines", err)
	}

	latest, err := s.latestPurchases(ctx, houseID, wines)
	if err != nil {
		return 0, err
	}

	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName(f.GetSheetName(0), exportSheet); err != nil {
		return 0, err
	}

	header := make([]interface{}, len(reconcile.Columns))
	for i, c := range reconcile.Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(exportSheet, "A1", &header); err != nil {
		return 0, err
	}

	for i := range wines {
		wine := &wines[i]
		var purchasedAt, store interface{}
		if p, ok := latest[wine.ID]; ok {
			purchasedAt = p.PurchasedAt.UTC().Format("2006-01-02")
			store = p.Store
		}
		row := []interface{}{
			wine.Producer,
			deref(wine.Name),
			derefInt(wine.Vintage),
			deref(wine.Country),
			deref(wine.Region),
			derefType(wine.Type),
			wine.StockQty,
			wine.PurchaseQtyTotal,
			wine.PurchaseValueTotal.InexactFloat64(),
			purchasedAt,
			store,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return 0, err
		}
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			return 0, err
		}
	}

	if err := f.Write(w); err != nil {
		return 0, err
	}
	return len(wines), nil
}

// latestPurchases returns the most recent purchase of each wine.
func (s *Service) latestPurchases(ctx context.Context, houseID uuid.UUID, wines []domain.Wine) (map[uuid.UUID]domain.Purchase, error) {
	out := make(map[uuid.UUID]domain.Purchase, len(wines))
	if len(wines) == 0 {
		return out, nil
	}
	ids := make([]uuid.UUID, len(wines))
	for i := range wines {
		ids[i] = wines[i].ID
	}

	var purchases []domain.Purchase
	err := s.DB.WithContext(ctx).
		Where("house_id = ? AND wine_id IN ?", houseID, ids).
		Order("purchased_at DESC").
		Order("created_at DESC").
		Find(&purchases).Error
	if err != nil {
		return nil, domain.Storage("export purchases", err)
	}
	for _, p := range purchases {
		if _, seen := out[p.WineID]; !seen {
			out[p.WineID] = p
		}
	}
	return out, nil
}

func deref(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func derefInt(v *int) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func derefType(t *domain.WineType) interface{} {
	if t == nil {
		return nil
	}
	return string(*t)
}
