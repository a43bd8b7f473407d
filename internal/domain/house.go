package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// House is a tenant owning one independent inventory.
type House struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Name      *string   `gorm:"column:name" json:"name"`
	CreatedBy uuid.UUID `gorm:"column:created_by;type:uuid;not null" json:"created_by"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
}

func (House) TableName() string {
	return "houses"
}

func (h *House) BeforeCreate(tx *gorm.DB) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	return nil
}

// HouseMember grants a user a role in a house. Rows are managed by the membership service.
type HouseMember struct {
	HouseID   uuid.UUID `gorm:"column:house_id;type:uuid;primaryKey" json:"house_id"`
	UserID    uuid.UUID `gorm:"column:user_id;type:uuid;primaryKey" json:"user_id"`
	Role      string    `gorm:"column:role;type:varchar(20);not null" json:"role"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
}

func (HouseMember) TableName() string {
	return "house_members"
}
