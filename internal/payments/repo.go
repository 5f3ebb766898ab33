package payments

import (
	"context"
	"time"

	"github.com/angelmondragon/learnhub-backend/pkg/db/models"
	"github.com/angelmondragon/learnhub-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository persists payment records.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// UpsertCreated inserts a created payment keyed by provider_reference. A
// replayed order id refreshes the amount and metadata of the existing row.
func (r *Repository) UpsertCreated(ctx context.Context, payment *models.Payment) (*models.Payment, error) {
	now := time.Now().UTC()
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "provider_reference"}},
			DoUpdates: clause.Assignments(map[string]any{
				"amount_minor": payment.AmountMinor,
				"currency":     payment.Currency,
				"metadata":     payment.Metadata,
				"updated_at":   now,
			}),
		}).
		Create(payment).Error
	if err != nil {
		return nil, err
	}
	return r.FindByProviderReference(ctx, payment.ProviderReference)
}

func (r *Repository) FindByProviderReference(ctx context.Context, ref string) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).Where("provider_reference = ?", ref).First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *Repository) FindByOrderReference(ctx context.Context, ref string) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).Where("order_reference = ?", ref).First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

// FindByOrderReferenceForUpdate row-locks the payment for the rest of the
// transaction.
func (r *Repository) FindByOrderReferenceForUpdate(ctx context.Context, ref string) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("order_reference = ?", ref).
		First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// MarkCompleted moves a non-completed payment to completed. It returns the
// number of rows changed; zero means another writer got there first.
func (r *Repository) MarkCompleted(ctx context.Context, id uuid.UUID, paymentReference string, metadata datatypes.JSON, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ? AND status <> ?", id, enums.PaymentStatusCompleted).
		Updates(map[string]any{
			"status":             enums.PaymentStatusCompleted,
			"provider_reference": paymentReference,
			"completed_at":       at,
			"failure_reason":     nil,
			"metadata":           metadata,
			"updated_at":         at,
		})
	return res.RowsAffected, res.Error
}

// MarkFailed moves a created payment to failed.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, reason string, metadata datatypes.JSON, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ? AND status = ?", id, enums.PaymentStatusCreated).
		Updates(map[string]any{
			"status":         enums.PaymentStatusFailed,
			"failure_reason": reason,
			"metadata":       metadata,
			"updated_at":     at,
		})
	return res.RowsAffected, res.Error
}

// LockStaleCreated returns up to limit created payments older than cutoff,
// skipping rows another worker already holds.
func (r *Repository) LockStaleCreated(ctx context.Context, cutoff time.Time, limit int) ([]models.Payment, error) {
	var rows []models.Payment
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("status = ? AND created_at < ?", enums.PaymentStatusCreated, cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
