package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"cellar-backend/internal/application/ledger"
	"cellar-backend/internal/application/stock"
	"cellar-backend/internal/domain"

	"github.com/bsm/redislock"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

const (
	DefaultChunkSize = 500
	lockTTL          = 5 * time.Minute
)

// Service merges spreadsheet purchase history into the ledger.
type Service struct {
	DB        *gorm.DB
	Ledger    *ledger.Service
	Locker    *redislock.Client // optional; serializes imports per house
	ChunkSize int
	Now       func() time.Time
}

// Summary reports the outcome of one import run. Failed rows belong to chunks the
// store rejected, or to chunks never issued because the run was cancelled.
type Summary struct {
	Total         int                   `json:"total"`
	Succeeded     int                   `json:"succeeded"`
	Skipped       int                   `json:"skipped"`
	Failed        int                   `json:"failed"`
	WinesCreated  int                   `json:"wines_created"`
	Cancelled     bool                  `json:"cancelled"`
	ChunkFailures []domain.ChunkFailure `json:"chunk_failures"`
}

// Err is non-nil when some rows failed.
func (s *Summary) Err() error {
	if s.Failed == 0 {
		return nil
	}
	return &domain.PartialBatchFailure{Failed: s.Failed, Chunks: s.ChunkFailures}
}

// ImportFile reads an uploaded file and imports it.
func (s *Service) ImportFile(ctx context.Context, houseID uuid.UUID, filename string, r io.Reader) (*Summary, error) {
	raws, err := ReadRows(filename, r)
	if err != nil {
		return nil, err
	}
	return s.Import(ctx, houseID, raws)
}

// Import runs the pipeline. Malformed rows are skipped; a failing chunk only fails
// its own rows. The returned error is reserved for failures before any chunk is
// issued (lock held elsewhere, existing wines unreadable).
func (s *Service) Import(ctx context.Context, houseID uuid.UUID, raws []RawRow) (*Summary, error) {
	release, err := s.lock(ctx, houseID)
	if err != nil {
		return nil, err
	}
	defer release()

	now := time.Now().UTC()
	if s.Now != nil {
		now = s.Now().UTC()
	}
	sum := &Summary{Total: len(raws), ChunkFailures: []domain.ChunkFailure{}}

	rows := make([]Row, 0, len(raws))
	for _, raw := range raws {
		row, ok := Normalize(raw, now)
		if !ok {
			sum.Skipped++
			continue
		}
		rows = append(rows, row)
	}

	ids, err := s.existingWines(ctx, houseID)
	if err != nil {
		return nil, err
	}

	failedKeys := s.createMissingWines(ctx, houseID, rows, ids, sum)

	pending := make([]Row, 0, len(rows))
	for _, row := range rows {
		if failedKeys[row.Key()] {
			sum.Failed++
			continue
		}
		pending = append(pending, row)
	}
	s.insertPurchases(ctx, houseID, pending, ids, sum)

	ev := log.Info()
	if sum.Failed > 0 {
		ev = log.Warn()
	}
	ev.Str("house_id", houseID.String()).
		Int("total", sum.Total).
		Int("succeeded", sum.Succeeded).
		Int("skipped", sum.Skipped).
		Int("failed", sum.Failed).
		Int("wines_created", sum.WinesCreated).
		Bool("cancelled", sum.Cancelled).
		Msg("import finished")
	return sum, nil
}

func (s *Service) lock(ctx context.Context, houseID uuid.UUID) (func(), error) {
	if s.Locker == nil {
		return func() {}, nil
	}
	lock, err := s.Locker.Obtain(ctx, fmt.Sprintf("import:%s", houseID), lockTTL, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, domain.ErrConflict
	}
	if err != nil {
		return nil, domain.Storage("obtain import lock", err)
	}
	return func() {
		if err := lock.Release(context.Background()); err != nil {
			log.Warn().Err(err).Str("house_id", houseID.String()).Msg("failed to release import lock")
		}
	}, nil
}

// existingWines loads every wine identity of the house once.
func (s *Service) existingWines(ctx context.Context, houseID uuid.UUID) (map[string]uuid.UUID, error) {
	var existing []domain.Wine
	err := s.DB.WithContext(ctx).
		Select("id", "identity_key").
		Where("house_id = ?", houseID).
		Find(&existing).Error
	if err != nil {
		return nil, domain.Storage("load wines", err)
	}
	ids := make(map[string]uuid.UUID, len(existing))
	for _, w := range existing {
		ids[w.IdentityKey] = w.ID
	}
	return ids, nil
}

// createMissingWines inserts wines unknown to the house, first occurrence wins, in
// chunks. New ids are merged into ids. It returns the keys whose chunk failed.
func (s *Service) createMissingWines(ctx context.Context, houseID uuid.UUID, rows []Row, ids map[string]uuid.UUID, sum *Summary) map[string]bool {
	var missing []domain.Wine
	seen := map[string]bool{}
	for _, row := range rows {
		key := row.Key()
		if _, ok := ids[key]; ok || seen[key] {
			continue
		}
		seen[key] = true
		missing = append(missing, row.wine(houseID))
	}

	failed := map[string]bool{}
	for i, chunk := range chunks(missing, s.chunkSize()) {
		if ctx.Err() != nil {
			sum.Cancelled = true
			for _, w := range chunk {
				failed[domain.WineKey(w.Producer, w.Name, w.Vintage)] = true
			}
			continue
		}
		err := s.DB.WithContext(ctx).Create(&chunk).Error
		if err != nil {
			log.Error().Err(err).Int("chunk", i).Int("wines", len(chunk)).Msg("import: wine chunk failed")
			keys := make([]string, len(chunk))
			for j, w := range chunk {
				keys[j] = domain.WineKey(w.Producer, w.Name, w.Vintage)
				failed[keys[j]] = true
			}
			sum.ChunkFailures = append(sum.ChunkFailures, domain.ChunkFailure{
				Phase: "wines", Index: i, Rows: countRows(rows, keys), Error: domain.Storage("insert wines", err).Error(),
			})
			continue
		}
		for _, w := range chunk {
			ids[domain.WineKey(w.Producer, w.Name, w.Vintage)] = w.ID
		}
		sum.WinesCreated += len(chunk)
	}
	return failed
}

// insertPurchases appends one purchase per row through the ledger's aggregate path,
// then replays the row's historical consumption so the wine ends at the file's stock.
func (s *Service) insertPurchases(ctx context.Context, houseID uuid.UUID, rows []Row, ids map[string]uuid.UUID, sum *Summary) {
	for i, chunk := range chunks(rows, s.chunkSize()) {
		if ctx.Err() != nil {
			sum.Cancelled = true
			sum.Failed += len(chunk)
			continue
		}
		err := s.Ledger.Transact(ctx, "import purchases", func(tx *gorm.DB) error {
			purchases := make([]domain.Purchase, len(chunk))
			for j, row := range chunk {
				purchases[j] = domain.Purchase{
					HouseID:     houseID,
					WineID:      ids[row.Key()],
					Store:       row.Store,
					UnitPrice:   row.UnitPrice,
					Quantity:    row.PurchaseQty,
					PurchasedAt: row.PurchasedAt,
				}
				if _, err := ledger.UpsertOnPurchaseInsert(tx, &purchases[j]); err != nil {
					return fmt.Errorf("line %d: %w", row.Line, err)
				}
				if err := stock.ConsumeWithin(tx, houseID, purchases[j].WineID, row.PurchaseQty-row.StockQty); err != nil {
					return fmt.Errorf("line %d: %w", row.Line, err)
				}
			}
			return tx.Create(&purchases).Error
		})
		if err != nil {
			log.Error().Err(err).Int("chunk", i).Int("rows", len(chunk)).Msg("import: purchase chunk failed")
			sum.Failed += len(chunk)
			sum.ChunkFailures = append(sum.ChunkFailures, domain.ChunkFailure{
				Phase: "purchases", Index: i, Rows: len(chunk), Error: err.Error(),
			})
			continue
		}
		sum.Succeeded += len(chunk)
	}
}

func (s *Service) chunkSize() int {
	if s.ChunkSize <= 0 {
		return DefaultChunkSize
	}
	return s.ChunkSize
}

func chunks[T any](items []T, size int) [][]T {
	var out [][]T
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[start:end])
	}
	return out
}

func countRows(rows []Row, keys []string) int {
	inChunk := make(map[string]bool, len(keys))
	for _, k := range keys {
		inChunk[k] = true
	}
	n := 0
	for _, row := range rows {
		if inChunk[row.Key()] {
			n++
		}
	}
	return n
}
