package payloads

import (
	"time"

	"github.com/google/uuid"
)

// PaymentCompletedEvent is emitted once per payment when capture is reconciled.
type PaymentCompletedEvent struct {
	PaymentID         uuid.UUID `json:"payment_id"`
	UserID            uuid.UUID `json:"user_id"`
	CourseID          uuid.UUID `json:"course_id"`
	OrderReference    string    `json:"order_reference"`
	ProviderReference string    `json:"provider_reference"`
	AmountMinor       int64     `json:"amount_minor"`
	Currency          string    `json:"currency"`
	Source            string    `json:"source"`
	CompletedAt       time.Time `json:"completed_at"`
}

// PaymentFailedEvent is emitted when a created payment is marked failed.
type PaymentFailedEvent struct {
	PaymentID      uuid.UUID `json:"payment_id"`
	UserID         uuid.UUID `json:"user_id"`
	CourseID       uuid.UUID `json:"course_id"`
	OrderReference string    `json:"order_reference"`
	Reason         string    `json:"reason"`
}

// EnrollmentActivatedEvent signals that a user gained paid access to a course.
type EnrollmentActivatedEvent struct {
	EnrollmentID uuid.UUID  `json:"enrollment_id"`
	UserID       uuid.UUID  `json:"user_id"`
	CourseID     uuid.UUID  `json:"course_id"`
	PaymentID    *uuid.UUID `json:"payment_id,omitempty"`
	PurchasedAt  time.Time  `json:"purchased_at"`
}
