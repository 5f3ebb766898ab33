package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/learnhub-backend/pkg/enums"
)

// Enrollment grants a user access to a course. One row per (user, course).
type Enrollment struct {
	ID          uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID      uuid.UUID              `gorm:"column:user_id;type:uuid;not null;uniqueIndex:ux_enrollments_user_course"`
	CourseID    uuid.UUID              `gorm:"column:course_id;type:uuid;not null;uniqueIndex:ux_enrollments_user_course"`
	Status      enums.EnrollmentStatus `gorm:"column:status;type:text;not null;default:'active'"`
	IsPaid      bool                   `gorm:"column:is_paid;not null;default:false"`
	PurchasedAt *time.Time             `gorm:"column:purchased_at"`
	PaymentID   *uuid.UUID             `gorm:"column:payment_id;type:uuid"`
	CreatedAt   time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}
