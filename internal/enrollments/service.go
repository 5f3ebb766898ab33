package enrollments

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/learnhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/learnhub-backend/pkg/errors"
	"github.com/google/uuid"
)

// EnrollmentDTO is returned by GET /enrollments/me.
type EnrollmentDTO struct {
	ID          uuid.UUID              `json:"id"`
	CourseID    uuid.UUID              `json:"course_id"`
	CourseTitle string                 `json:"course_title"`
	Status      enums.EnrollmentStatus `json:"status"`
	IsPaid      bool                   `json:"is_paid"`
	PurchasedAt *time.Time             `json:"purchased_at,omitempty"`
	PaymentID   *uuid.UUID             `json:"payment_id,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}

type Service interface {
	ListMine(ctx context.Context, userID uuid.UUID) ([]EnrollmentDTO, error)
}

type lister interface {
	ListByUser(ctx context.Context, userID uuid.UUID) ([]EnrollmentWithCourse, error)
}

type service struct {
	repo lister
}

func NewService(repo lister) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("enrollment repository is required")
	}
	return &service{repo: repo}, nil
}

func (s *service) ListMine(ctx context.Context, userID uuid.UUID) ([]EnrollmentDTO, error) {
	rows, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list enrollments")
	}
	out := make([]EnrollmentDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, EnrollmentDTO{
			ID:          row.ID,
			CourseID:    row.CourseID,
			CourseTitle: row.CourseTitle,
			Status:      row.Status,
			IsPaid:      row.IsPaid,
			PurchasedAt: row.PurchasedAt,
			PaymentID:   row.PaymentID,
			CreatedAt:   row.CreatedAt,
		})
	}
	return out, nil
}
