package wines

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"cellar-backend/internal/application/blobstore"
	"cellar-backend/internal/domain"
	"cellar-backend/internal/pkg/validation"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MaxLabelPhotoBytes caps a single label photo upload.
const MaxLabelPhotoBytes = 10 << 20

type Service struct {
	DB           *gorm.DB
	Blob         blobstore.Store
	ThumbnailTTL time.Duration
}

// WineAttrs describes a wine by identity and descriptive fields.
type WineAttrs struct {
	Producer string  `json:"producer" validate:"notblank"`
	Name     *string `json:"name" validate:"required,notblank"`
	Vintage  *int    `json:"vintage" validate:"omitempty,gte=1800,lte=2100"`
	Country  *string `json:"country"`
	Region   *string `json:"region"`
	Type     *string `json:"type" validate:"omitempty,winetype"`
}

// Normalize trims strings and turns blank optional fields into nil.
func (a WineAttrs) Normalize() WineAttrs {
	a.Producer = strings.TrimSpace(a.Producer)
	a.Name = trimmedOrNil(a.Name)
	a.Country = trimmedOrNil(a.Country)
	a.Region = trimmedOrNil(a.Region)
	a.Type = trimmedOrNil(a.Type)
	return a
}

func (a WineAttrs) wine(houseID uuid.UUID) *domain.Wine {
	w := &domain.Wine{
		HouseID:  houseID,
		Producer: a.Producer,
		Name:     a.Name,
		Vintage:  a.Vintage,
		Country:  a.Country,
		Region:   a.Region,
	}
	if a.Type != nil {
		if t, ok := domain.ParseWineType(*a.Type); ok {
			w.Type = &t
		}
	}
	return w
}

// EnsureWine returns the house's wine with the same identity key, creating it when
// missing. created reports whether a new row was inserted.
func (s *Service) EnsureWine(ctx context.Context, houseID uuid.UUID, attrs WineAttrs) (wine *domain.Wine, created bool, err error) {
	for attempt := 0; attempt < 2; attempt++ {
		wine, created, err = EnsureWithin(s.DB.WithContext(ctx), houseID, attrs)
		// Lost a creation race; the second lookup finds the winner.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			continue
		}
		if err == nil && created {
			log.Info().Str("house_id", houseID.String()).Str("wine_id", wine.ID.String()).Msg("wine created")
		}
		return wine, created, err
	}
	return nil, false, domain.ErrConflict
}

// EnsureWithin finds the wine with attrs' identity or creates it through db, which may
// be an open transaction. A lost creation race returns gorm.ErrDuplicatedKey.
func EnsureWithin(db *gorm.DB, houseID uuid.UUID, attrs WineAttrs) (*domain.Wine, bool, error) {
	attrs = attrs.Normalize()
	if err := validation.Struct(attrs); err != nil {
		return nil, false, err
	}
	key := domain.WineKey(attrs.Producer, attrs.Name, attrs.Vintage)

	var existing domain.Wine
	err := db.Where("house_id = ? AND identity_key = ?", houseID, key).First(&existing).Error
	if err == nil {
		return &existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, domain.Storage("find wine", err)
	}
	w := attrs.wine(houseID)
	if err := db.Create(w).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, false, err
		}
		return nil, false, domain.Storage("create wine", err)
	}
	return w, true, nil
}

// Detail is a wine with its label photos resolved to URLs (nil when unresolvable).
type Detail struct {
	*domain.Wine
	LabelPhotoURLs []*string `json:"label_photo_urls"`
}

func (s *Service) Get(ctx context.Context, houseID, wineID uuid.UUID) (*Detail, error) {
	w, err := s.find(s.DB.WithContext(ctx), houseID, wineID)
	if err != nil {
		return nil, err
	}
	d := &Detail{Wine: w, LabelPhotoURLs: make([]*string, len(w.LabelPhotoRefs))}
	if len(w.LabelPhotoRefs) == 0 || s.Blob == nil {
		return d, nil
	}
	urls, err := s.Blob.ResolveBatch(ctx, w.LabelPhotoRefs, s.ThumbnailTTL)
	if err != nil {
		log.Warn().Err(err).Str("wine_id", wineID.String()).Msg("label photo resolution failed")
	}
	for i := range d.LabelPhotoURLs {
		if i < len(urls) && urls[i] != "" {
			u := urls[i]
			d.LabelPhotoURLs[i] = &u
		}
	}
	return d, nil
}

// NotesInput replaces the tasting annotations. Nil or blank clears a field.
type NotesInput struct {
	Rating        *int    `json:"rating" validate:"omitempty,gte=0,lte=5"`
	Comment       *string `json:"comment"`
	TastingReview *string `json:"tasting_review"`
}

func (s *Service) UpdateNotes(ctx context.Context, houseID, wineID uuid.UUID, in NotesInput) (*domain.Wine, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	return s.updateAnnotations(ctx, houseID, wineID, map[string]interface{}{
		"rating":         in.Rating,
		"comment":        trimmedOrNil(in.Comment),
		"tasting_review": trimmedOrNil(in.TastingReview),
	})
}

// SetSommelierAdvice caches generated advice as-is. It must be a JSON object.
func (s *Service) SetSommelierAdvice(ctx context.Context, houseID, wineID uuid.UUID, advice json.RawMessage) (*domain.Wine, error) {
	var obj map[string]interface{}
	if len(advice) == 0 || json.Unmarshal(advice, &obj) != nil || obj == nil {
		return nil, domain.NewValidationError("sommelier_advice", "Must be a JSON object")
	}
	return s.updateAnnotations(ctx, houseID, wineID, map[string]interface{}{
		"sommelier_advice": datatypes.JSON(advice),
	})
}

func (s *Service) updateAnnotations(ctx context.Context, houseID, wineID uuid.UUID, cols map[string]interface{}) (*domain.Wine, error) {
	var wine *domain.Wine
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cols["updated_at"] = time.Now().UTC()
		res := tx.Model(&domain.Wine{}).Where("id = ? AND house_id = ?", wineID, houseID).UpdateColumns(cols)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.NewNotFoundError("Wine", wineID)
		}
		w, err := s.find(tx, houseID, wineID)
		wine = w
		return err
	})
	if err != nil {
		return nil, domain.Storage("update wine", err)
	}
	return wine, nil
}

// LabelPhoto is an uploaded label image.
type LabelPhoto struct {
	Filename    string
	ContentType string
	Data        []byte
}

// AddLabelPhoto uploads the image and appends its ref. The first photo is the thumbnail.
func (s *Service) AddLabelPhoto(ctx context.Context, houseID, wineID uuid.UUID, photo LabelPhoto) (*domain.Wine, error) {
	if !strings.HasPrefix(photo.ContentType, "image/") {
		return nil, domain.NewValidationError("file", "Must be an image")
	}
	if len(photo.Data) == 0 || len(photo.Data) > MaxLabelPhotoBytes {
		return nil, domain.NewValidationError("file", fmt.Sprintf("Must be between 1 byte and %d MB", MaxLabelPhotoBytes>>20))
	}
	if s.Blob == nil {
		return nil, &domain.StorageFailure{Op: "upload label photo", Err: errors.New("blob store not configured")}
	}
	if _, err := s.find(s.DB.WithContext(ctx), houseID, wineID); err != nil {
		return nil, err
	}

	objectPath := fmt.Sprintf("%s/%s/%s%s", houseID, wineID, uuid.NewString(), strings.ToLower(path.Ext(photo.Filename)))
	ref, err := s.Blob.Put(ctx, objectPath, photo.Data, photo.ContentType)
	if err != nil {
		return nil, &domain.StorageFailure{Op: "upload label photo", Err: err}
	}

	var wine *domain.Wine
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var w domain.Wine
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND house_id = ?", wineID, houseID).
			First(&w).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.NewNotFoundError("Wine", wineID)
		}
		if err != nil {
			return err
		}
		w.LabelPhotoRefs = append(w.LabelPhotoRefs, ref)
		if err := tx.Model(&domain.Wine{}).Where("id = ?", w.ID).UpdateColumns(map[string]interface{}{
			"label_photo_refs": w.LabelPhotoRefs,
			"updated_at":       time.Now().UTC(),
		}).Error; err != nil {
			return err
		}
		wine = &w
		return nil
	})
	if err != nil {
		return nil, domain.Storage("attach label photo", err)
	}
	return wine, nil
}

// Delete removes the wine and all its purchases.
func (s *Service) Delete(ctx context.Context, houseID, wineID uuid.UUID) error {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.find(tx, houseID, wineID); err != nil {
			return err
		}
		if err := tx.Where("wine_id = ? AND house_id = ?", wineID, houseID).Delete(&domain.Purchase{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ? AND house_id = ?", wineID, houseID).Delete(&domain.Wine{}).Error
	})
	if err != nil {
		return domain.Storage("delete wine", err)
	}
	log.Info().Str("house_id", houseID.String()).Str("wine_id", wineID.String()).Msg("wine deleted")
	return nil
}

func (s *Service) find(db *gorm.DB, houseID, wineID uuid.UUID) (*domain.Wine, error) {
	var w domain.Wine
	err := db.Where("id = ? AND house_id = ?", wineID, houseID).First(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.NewNotFoundError("Wine", wineID)
	}
	if err != nil {
		return nil, domain.Storage("find wine", err)
	}
	return &w, nil
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
