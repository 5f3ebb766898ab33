package models

import (
	"time"

	"github.com/angelmondragon/learnhub-backend/pkg/enums"
	"github.com/google/uuid"
)

// Course is a catalog entry owned by an instructor. Prices are minor units.
type Course struct {
	ID           uuid.UUID      `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Title        string         `gorm:"column:title;not null"`
	Description  *string        `gorm:"column:description"`
	PriceCents   int64          `gorm:"column:price_cents;not null;default:0"`
	Currency     enums.Currency `gorm:"column:currency;type:text;not null;default:'INR'"`
	InstructorID uuid.UUID      `gorm:"column:instructor_id;type:uuid;not null"`
	IsPublished  bool           `gorm:"column:is_published;not null;default:false"`
	CreatedAt    time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}
