package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/angelmondragon/learnhub-backend/pkg/enums"
)

// Payment tracks one provider order from creation to capture.
// OrderReference never changes after insert; ProviderReference starts as the
// order id and is replaced by the payment id once captured.
type Payment struct {
	ID                uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID            uuid.UUID             `gorm:"column:user_id;type:uuid;not null"`
	CourseID          uuid.UUID             `gorm:"column:course_id;type:uuid;not null"`
	Provider          enums.PaymentProvider `gorm:"column:provider;type:text;not null"`
	OrderReference    string                `gorm:"column:order_reference;not null;uniqueIndex"`
	ProviderReference string                `gorm:"column:provider_reference;not null;uniqueIndex"`
	AmountMinor       int64                 `gorm:"column:amount_minor;not null"`
	Currency          enums.Currency        `gorm:"column:currency;type:text;not null"`
	Status            enums.PaymentStatus   `gorm:"column:status;type:text;not null;default:'created'"`
	FailureReason     *string               `gorm:"column:failure_reason"`
	Metadata          datatypes.JSON        `gorm:"column:metadata;type:jsonb"`
	CompletedAt       *time.Time            `gorm:"column:completed_at"`
	CreatedAt         time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}
