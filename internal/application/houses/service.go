package houses

import (
	"context"
	"errors"
	"strings"

	"cellar-backend/internal/domain"
	"cellar-backend/internal/pkg/constants"
	"cellar-backend/internal/pkg/validation"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Authorizer vouches for a caller's membership in a house.
type Authorizer interface {
	Role(ctx context.Context, houseID, userID uuid.UUID) (string, error)
}

// Service is the gorm-backed house directory and Authorizer.
type Service struct {
	DB *gorm.DB
}

// Role returns the caller's role in the house. Every failure, including a
// storage error, is reported as ErrUnauthorized.
func (s *Service) Role(ctx context.Context, houseID, userID uuid.UUID) (string, error) {
	if houseID == uuid.Nil || userID == uuid.Nil {
		return "", domain.ErrUnauthorized
	}
	var m domain.HouseMember
	err := s.DB.WithContext(ctx).
		Where("house_id = ? AND user_id = ?", houseID, userID).
		First(&m).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Error().Err(err).Str("house_id", houseID.String()).Msg("house membership lookup failed")
		}
		return "", domain.ErrUnauthorized
	}
	if !constants.IsValidRole(m.Role) {
		return "", domain.ErrUnauthorized
	}
	return m.Role, nil
}

type CreateInput struct {
	Name *string `json:"name" validate:"omitempty,max=120"`
}

// Membership is a house as seen by one of its members.
type Membership struct {
	domain.House
	Role string `json:"role"`
}

// Create makes a new house owned by userID.
func (s *Service) Create(ctx context.Context, userID uuid.UUID, in CreateInput) (*Membership, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	var name *string
	if in.Name != nil {
		if v := strings.TrimSpace(*in.Name); v != "" {
			name = &v
		}
	}
	house := domain.House{Name: name, CreatedBy: userID}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&house).Error; err != nil {
			return err
		}
		return tx.Create(&domain.HouseMember{HouseID: house.ID, UserID: userID, Role: constants.Owner}).Error
	})
	if err != nil {
		return nil, domain.Storage("create house", err)
	}
	return &Membership{House: house, Role: constants.Owner}, nil
}

// ListForUser returns the houses userID belongs to, oldest first.
func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID) ([]Membership, error) {
	var rows []struct {
		domain.House
		Role string
	}
	err := s.DB.WithContext(ctx).
		Table("houses").
		Select("houses.*, house_members.role AS role").
		Joins("JOIN house_members ON house_members.house_id = houses.id").
		Where("house_members.user_id = ?", userID).
		Order("houses.created_at ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, domain.Storage("list houses", err)
	}
	out := make([]Membership, len(rows))
	for i, r := range rows {
		out[i] = Membership{House: r.House, Role: r.Role}
	}
	return out, nil
}
