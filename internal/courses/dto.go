package courses

import (
	"math"
	"time"

	"github.com/angelmondragon/learnhub-backend/pkg/db/models"
	"github.com/angelmondragon/learnhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/learnhub-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CourseDTO is the public course shape. Price is exposed in both minor units
// and as a major-unit decimal string.
type CourseDTO struct {
	ID           uuid.UUID      `json:"id"`
	Title        string         `json:"title"`
	Description  *string        `json:"description,omitempty"`
	PriceCents   int64          `json:"price_cents"`
	Price        string         `json:"price"`
	Currency     enums.Currency `json:"currency"`
	InstructorID uuid.UUID      `json:"instructor_id"`
	IsPublished  bool           `json:"is_published"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// CreateCourseInput is the body accepted by POST /courses. Either price
// (major units) or price_cents may be given, not both.
type CreateCourseInput struct {
	Title       string           `json:"title" validate:"required,max=200"`
	Description *string          `json:"description,omitempty"`
	Price       *decimal.Decimal `json:"price,omitempty"`
	PriceCents  *int64           `json:"price_cents,omitempty"`
	Currency    *enums.Currency  `json:"currency,omitempty"`
}

// UpdateCourseInput lists every mutable course field. Nil means unchanged.
type UpdateCourseInput struct {
	Title       *string          `json:"title,omitempty" validate:"omitempty,max=200"`
	Description *string          `json:"description,omitempty"`
	Price       *decimal.Decimal `json:"price,omitempty"`
	PriceCents  *int64           `json:"price_cents,omitempty"`
	IsPublished *bool            `json:"is_published,omitempty"`
}

func (in UpdateCourseInput) empty() bool {
	return in.Title == nil && in.Description == nil && in.Price == nil && in.PriceCents == nil && in.IsPublished == nil
}

// ListCoursesInput drives GET /courses.
type ListCoursesInput struct {
	Limit  int
	Offset int
	// IncludeUnpublished is only honoured for admins.
	IncludeUnpublished bool
	IsAdmin            bool
}

func FromModel(c *models.Course) *CourseDTO {
	if c == nil {
		return nil
	}
	return &CourseDTO{
		ID:           c.ID,
		Title:        c.Title,
		Description:  c.Description,
		PriceCents:   c.PriceCents,
		Price:        MinorToMajor(c.PriceCents).StringFixed(2),
		Currency:     c.Currency,
		InstructorID: c.InstructorID,
		IsPublished:  c.IsPublished,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

var (
	hundred  = decimal.NewFromInt(100)
	maxMinor = decimal.NewFromInt(math.MaxInt64)
	minMinor = decimal.NewFromInt(math.MinInt64)
)

// MajorToMinor converts a major-unit amount to minor units, rounding half away
// from zero at the cent. Amounts outside int64 minor units are rejected.
func MajorToMinor(amount decimal.Decimal) (int64, error) {
	cents := amount.Mul(hundred).Round(0)
	if cents.GreaterThan(maxMinor) || cents.LessThan(minMinor) {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "price is out of range")
	}
	return cents.IntPart(), nil
}

func MinorToMajor(amount int64) decimal.Decimal {
	return decimal.New(amount, -2)
}
