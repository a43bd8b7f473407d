package ledger

import (
	"context"
	"errors"
	"strings"
	"time"

	"cellar-backend/internal/domain"
	"cellar-backend/internal/pkg/validation"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	DefaultListLimit = 10
	MaxListLimit     = 100
)

// Service is the purchase ledger. Every write goes through the aggregate store in the
// same transaction.
type Service struct {
	DB         *gorm.DB
	MaxRetries int
}

// RecordInput is one purchase to append. The wine must already exist.
type RecordInput struct {
	WineID          uuid.UUID       `json:"wine_id" validate:"required"`
	Store           string          `json:"store" validate:"notblank"`
	UnitPrice       decimal.Decimal `json:"unit_price" validate:"gte=0"`
	Quantity        int             `json:"quantity" validate:"gt=0"`
	PurchasedAt     *time.Time      `json:"purchased_at"`
	ReceiptPhotoRef *string         `json:"receipt_photo_ref"`
}

// Purchase builds the ledger row for in. Missing dates default to now.
func (in RecordInput) Purchase(houseID uuid.UUID) *domain.Purchase {
	at := time.Now().UTC()
	if in.PurchasedAt != nil && !in.PurchasedAt.IsZero() {
		at = in.PurchasedAt.UTC()
	}
	return &domain.Purchase{
		HouseID:         houseID,
		WineID:          in.WineID,
		Store:           strings.TrimSpace(in.Store),
		UnitPrice:       in.UnitPrice.Round(2),
		Quantity:        in.Quantity,
		PurchasedAt:     at,
		ReceiptPhotoRef: in.ReceiptPhotoRef,
	}
}

// WineResolver finds or creates the purchased wine inside the record transaction.
type WineResolver func(tx *gorm.DB) (uuid.UUID, error)

// Record appends a purchase and advances its wine's aggregate atomically.
func (s *Service) Record(ctx context.Context, houseID uuid.UUID, in RecordInput) (*domain.Purchase, *domain.Wine, error) {
	if err := validation.Struct(in); err != nil {
		return nil, nil, err
	}
	return s.record(ctx, houseID, in, nil)
}

// RecordResolving is Record for a wine named by resolve instead of in.WineID. The wine
// is created in the purchase's transaction, so a rejected purchase leaves no wine behind.
func (s *Service) RecordResolving(ctx context.Context, houseID uuid.UUID, in RecordInput, resolve WineResolver) (*domain.Purchase, *domain.Wine, error) {
	if err := validation.StructExcept(in, "WineID"); err != nil {
		return nil, nil, err
	}
	return s.record(ctx, houseID, in, resolve)
}

func (s *Service) record(ctx context.Context, houseID uuid.UUID, in RecordInput, resolve WineResolver) (*domain.Purchase, *domain.Wine, error) {
	var purchase *domain.Purchase
	var wine *domain.Wine
	err := s.Transact(ctx, "record purchase", func(tx *gorm.DB) error {
		if resolve != nil {
			wineID, err := resolve(tx)
			if err != nil {
				return err
			}
			in.WineID = wineID
		}
		p := in.Purchase(houseID)
		w, err := RecordWithin(tx, p)
		if err != nil {
			return err
		}
		purchase, wine = p, w
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	log.Info().
		Str("house_id", houseID.String()).
		Str("wine_id", wine.ID.String()).
		Str("purchase_id", purchase.ID.String()).
		Int("quantity", purchase.Quantity).
		Msg("purchase recorded")
	return purchase, wine, nil
}

// RecordWithin inserts p and updates its wine inside an open transaction.
func RecordWithin(tx *gorm.DB, p *domain.Purchase) (*domain.Wine, error) {
	w, err := UpsertOnPurchaseInsert(tx, p)
	if err != nil {
		return nil, err
	}
	if err := tx.Create(p).Error; err != nil {
		return nil, err
	}
	return w, nil
}

// Delete removes a purchase and reverses its contribution to the wine.
func (s *Service) Delete(ctx context.Context, houseID, purchaseID uuid.UUID) (*domain.Wine, error) {
	var wine *domain.Wine
	err := s.Transact(ctx, "delete purchase", func(tx *gorm.DB) error {
		var p domain.Purchase
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND house_id = ?", purchaseID, houseID).
			First(&p).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.NewNotFoundError("Purchase", purchaseID)
			}
			return err
		}
		res := tx.Delete(&domain.Purchase{}, "id = ?", p.ID)
		if res.Error != nil {
			return res.Error
		}
		// a concurrent delete already reversed this purchase
		if res.RowsAffected == 0 {
			return domain.NewNotFoundError("Purchase", purchaseID)
		}
		w, err := ReverseOnPurchaseDelete(tx, &p)
		if err != nil {
			return err
		}
		wine = w
		return nil
	})
	if err != nil {
		return nil, err
	}
	return wine, nil
}

// ListByWine returns the most recent purchases of a wine, newest first.
func (s *Service) ListByWine(ctx context.Context, houseID, wineID uuid.UUID, limit int) ([]domain.Purchase, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	db := s.DB.WithContext(ctx)
	var count int64
	if err := db.Model(&domain.Wine{}).Where("id = ? AND house_id = ?", wineID, houseID).Count(&count).Error; err != nil {
		return nil, domain.Storage("list purchases", err)
	}
	if count == 0 {
		return nil, domain.NewNotFoundError("Wine", wineID)
	}
	var purchases []domain.Purchase
	err := db.Where("wine_id = ? AND house_id = ?", wineID, houseID).
		Order("purchased_at DESC").
		Order("created_at DESC").
		Limit(limit).
		Find(&purchases).Error
	if err != nil {
		return nil, domain.Storage("list purchases", err)
	}
	return purchases, nil
}

// Transact runs fn in a transaction, retrying when a wine aggregate changed
// concurrently. Retries exhausted yield domain.ErrConflict; other store errors
// become StorageFailure.
func (s *Service) Transact(ctx context.Context, op string, fn func(tx *gorm.DB) error) error {
	attempts := s.MaxRetries
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = s.DB.WithContext(ctx).Transaction(fn)
		if !isRetryable(err) {
			return domain.Storage(op, err)
		}
		log.Warn().Str("op", op).Int("attempt", attempt).Err(err).Msg("aggregate conflict, retrying")
		if ctx.Err() != nil {
			return domain.Storage(op, ctx.Err())
		}
	}
	return domain.ErrConflict
}

func isRetryable(err error) bool {
	return errors.Is(err, errStaleAggregate) || errors.Is(err, gorm.ErrDuplicatedKey)
}
