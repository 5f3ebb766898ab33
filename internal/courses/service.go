package courses

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/angelmondragon/learnhub-backend/pkg/db/models"
	"github.com/angelmondragon/learnhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/learnhub-backend/pkg/errors"
	"github.com/angelmondragon/learnhub-backend/pkg/pagination"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Service exposes catalog operations to controllers.
type Service interface {
	List(ctx context.Context, input ListCoursesInput) ([]CourseDTO, error)
	Get(ctx context.Context, id uuid.UUID) (*CourseDTO, error)
	Create(ctx context.Context, actorID uuid.UUID, input CreateCourseInput) (*CourseDTO, error)
	Update(ctx context.Context, actorID uuid.UUID, actorRole enums.UserRole, courseID uuid.UUID, input UpdateCourseInput) (*CourseDTO, error)
}

type courseRepository interface {
	Create(ctx context.Context, course *models.Course) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Course, error)
	List(ctx context.Context, params pagination.Params, publishedOnly bool) ([]models.Course, error)
	Update(ctx context.Context, id uuid.UUID, fields map[string]any) (*models.Course, error)
}

type service struct {
	repo            courseRepository
	defaultCurrency enums.Currency
}

func NewService(repo courseRepository, defaultCurrency enums.Currency) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("course repository is required")
	}
	if !defaultCurrency.IsValid() {
		return nil, fmt.Errorf("invalid default currency %q", defaultCurrency)
	}
	return &service{repo: repo, defaultCurrency: defaultCurrency}, nil
}

func (s *service) List(ctx context.Context, input ListCoursesInput) ([]CourseDTO, error) {
	publishedOnly := !(input.IncludeUnpublished && input.IsAdmin)
	rows, err := s.repo.List(ctx, pagination.Params{Limit: input.Limit, Offset: input.Offset}, publishedOnly)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list courses")
	}
	out := make([]CourseDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *FromModel(&rows[i]))
	}
	return out, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*CourseDTO, error) {
	course, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return FromModel(course), nil
}

func (s *service) Create(ctx context.Context, actorID uuid.UUID, input CreateCourseInput) (*CourseDTO, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "title is required")
	}
	price, err := resolvePrice(input.Price, input.PriceCents)
	if err != nil {
		return nil, err
	}
	currency := s.defaultCurrency
	if input.Currency != nil {
		if !input.Currency.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported currency")
		}
		currency = *input.Currency
	}

	course := &models.Course{
		ID:           uuid.New(),
		Title:        title,
		Description:  input.Description,
		Currency:     currency,
		InstructorID: actorID,
		IsPublished:  false,
	}
	if price != nil {
		course.PriceCents = *price
	}
	if err := s.repo.Create(ctx, course); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create course")
	}
	return FromModel(course), nil
}

// Update enforces ownership unless the actor is an admin.
func (s *service) Update(ctx context.Context, actorID uuid.UUID, actorRole enums.UserRole, courseID uuid.UUID, input UpdateCourseInput) (*CourseDTO, error) {
	if actorRole != enums.UserRoleAdmin {
		existing, err := s.load(ctx, courseID)
		if err != nil {
			return nil, err
		}
		if existing.InstructorID != actorID {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the course owner can update this course")
		}
	}

	if input.empty() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no valid fields provided for update")
	}

	fields := map[string]any{}
	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "title cannot be empty")
		}
		fields["title"] = title
	}
	if input.Description != nil {
		fields["description"] = *input.Description
	}
	price, err := resolvePrice(input.Price, input.PriceCents)
	if err != nil {
		return nil, err
	}
	if price != nil {
		fields["price_cents"] = *price
	}
	if input.IsPublished != nil {
		fields["is_published"] = *input.IsPublished
	}

	course, err := s.repo.Update(ctx, courseID, fields)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "course not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update course")
	}
	return FromModel(course), nil
}

func (s *service) load(ctx context.Context, id uuid.UUID) (*models.Course, error) {
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "course not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load course")
	}
	return course, nil
}

func resolvePrice(major *decimal.Decimal, minor *int64) (*int64, error) {
	if major != nil && minor != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "provide price or price_cents, not both")
	}
	var cents int64
	switch {
	case major != nil:
		converted, err := MajorToMinor(*major)
		if err != nil {
			return nil, err
		}
		cents = converted
	case minor != nil:
		cents = *minor
	default:
		return nil, nil
	}
	if cents < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price must not be negative")
	}
	return &cents, nil
}
