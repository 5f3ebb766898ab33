package courses

import (
	"context"
	"time"

	"github.com/angelmondragon/learnhub-backend/pkg/db/models"
	"github.com/angelmondragon/learnhub-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository persists courses.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, course *models.Course) error {
	if course.ID == uuid.Nil {
		course.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(course).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Course, error) {
	var course models.Course
	if err := r.db.WithContext(ctx).First(&course, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &course, nil
}

// List returns newest courses first.
func (r *Repository) List(ctx context.Context, params pagination.Params, publishedOnly bool) ([]models.Course, error) {
	params = params.Normalize()
	q := r.db.WithContext(ctx).Model(&models.Course{})
	if publishedOnly {
		q = q.Where("is_published = ?", true)
	}
	var rows []models.Course
	err := q.Order("created_at DESC").Order("id DESC").
		Limit(params.Limit).
		Offset(params.Offset).
		Find(&rows).Error
	return rows, err
}

// Update applies the column map and returns gorm.ErrRecordNotFound when the
// course does not exist.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, fields map[string]any) (*models.Course, error) {
	fields["updated_at"] = time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&models.Course{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return r.FindByID(ctx, id)
}
