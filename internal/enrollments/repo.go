package enrollments

import (
	"context"
	"time"

	"github.com/angelmondragon/learnhub-backend/pkg/db/models"
	"github.com/angelmondragon/learnhub-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository persists enrollments. Rows are only ever written by upsert on
// (user_id, course_id).
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// UpsertActivePaid marks the (user, course) enrollment active and paid. An
// existing purchased_at and payment_id are preserved.
func (r *Repository) UpsertActivePaid(ctx context.Context, userID, courseID, paymentID uuid.UUID, at time.Time) (*models.Enrollment, error) {
	at = at.UTC()
	row := &models.Enrollment{
		ID:          uuid.New(),
		UserID:      userID,
		CourseID:    courseID,
		Status:      enums.EnrollmentStatusActive,
		IsPaid:      true,
		PurchasedAt: &at,
		PaymentID:   &paymentID,
		CreatedAt:   at,
		UpdatedAt:   at,
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "course_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"status":       enums.EnrollmentStatusActive,
				"is_paid":      true,
				"purchased_at": gorm.Expr("COALESCE(enrollments.purchased_at, excluded.purchased_at)"),
				"payment_id":   gorm.Expr("COALESCE(enrollments.payment_id, excluded.payment_id)"),
				"updated_at":   at,
			}),
		}).
		Create(row).Error
	if err != nil {
		return nil, err
	}
	return r.FindByUserAndCourse(ctx, userID, courseID)
}

func (r *Repository) FindByUserAndCourse(ctx context.Context, userID, courseID uuid.UUID) (*models.Enrollment, error) {
	var row models.Enrollment
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// EnrollmentWithCourse is a listing row joined with the course title.
type EnrollmentWithCourse struct {
	models.Enrollment `gorm:"embedded"`
	CourseTitle       string `gorm:"column:course_title"`
}

// ListByUser returns the user's enrollments, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]EnrollmentWithCourse, error) {
	var rows []EnrollmentWithCourse
	err := r.db.WithContext(ctx).
		Table("enrollments").
		Select("enrollments.*, courses.title AS course_title").
		Joins("LEFT JOIN courses ON courses.id = enrollments.course_id").
		Where("enrollments.user_id = ?", userID).
		Order("enrollments.created_at DESC").
		Scan(&rows).Error
	return rows, err
}
