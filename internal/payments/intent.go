package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/learnhub-backend/pkg/db/models"
	"github.com/angelmondragon/learnhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/learnhub-backend/pkg/errors"
	"github.com/angelmondragon/learnhub-backend/pkg/logger"
	"github.com/angelmondragon/learnhub-backend/pkg/metrics"
	"github.com/angelmondragon/learnhub-backend/pkg/razorpay"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// IntentResult is what the checkout widget needs to open the provider order.
type IntentResult struct {
	OrderID   string         `json:"order_id"`
	Amount    int64          `json:"amount"`
	Currency  enums.Currency `json:"currency"`
	KeyID     string         `json:"key_id"`
	PaymentID uuid.UUID      `json:"payment_id"`
}

type orderCreator interface {
	CreateOrder(ctx context.Context, req razorpay.CreateOrderRequest) (*razorpay.Order, error)
	KeyID() string
}

type courseLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Course, error)
}

type enrollmentLookup interface {
	FindByUserAndCourse(ctx context.Context, userID, courseID uuid.UUID) (*models.Enrollment, error)
}

type paymentUpserter interface {
	UpsertCreated(ctx context.Context, payment *models.Payment) (*models.Payment, error)
}

// IntentServiceParams bundles the dependencies of the intent tracker.
type IntentServiceParams struct {
	Courses        courseLookup
	Enrollments    enrollmentLookup
	Payments       paymentUpserter
	Gateway        orderCreator
	GatewayTimeout time.Duration
	Metrics        *metrics.PaymentMetrics
	Logger         *logger.Logger
}

// IntentService creates provider orders and records them as created payments.
type IntentService struct {
	courses        courseLookup
	enrollments    enrollmentLookup
	payments       paymentUpserter
	gateway        orderCreator
	gatewayTimeout time.Duration
	metrics        *metrics.PaymentMetrics
	logg           *logger.Logger
}

func NewIntentService(params IntentServiceParams) (*IntentService, error) {
	if params.Courses == nil {
		return nil, fmt.Errorf("course lookup is required")
	}
	if params.Enrollments == nil {
		return nil, fmt.Errorf("enrollment lookup is required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payment repository is required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway is required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &IntentService{
		courses:        params.Courses,
		enrollments:    params.Enrollments,
		payments:       params.Payments,
		gateway:        params.Gateway,
		gatewayTimeout: params.GatewayTimeout,
		metrics:        params.Metrics,
		logg:           params.Logger,
	}, nil
}

// CreateIntent opens a provider order for the course price. Each call creates
// a new order; callers that need dedupe send an Idempotency-Key header.
func (s *IntentService) CreateIntent(ctx context.Context, userID, courseID uuid.UUID) (*IntentResult, error) {
	result, err := s.createIntent(ctx, userID, courseID)
	if err != nil {
		s.metrics.ObserveIntent(string(codeOf(err)))
		return nil, err
	}
	s.metrics.ObserveIntent("created")
	return result, nil
}

func (s *IntentService) createIntent(ctx context.Context, userID, courseID uuid.UUID) (*IntentResult, error) {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "course not found")
		}
		return nil, storeError(err, "load course")
	}
	if course.PriceCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "course has no payable amount")
	}

	existing, err := s.enrollments.FindByUserAndCourse(ctx, userID, courseID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storeError(err, "load enrollment")
	}
	if existing != nil && existing.IsPaid {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "already enrolled in this course")
	}

	paymentID := uuid.New()
	gatewayCtx := ctx
	if s.gatewayTimeout > 0 {
		var cancel context.CancelFunc
		gatewayCtx, cancel = context.WithTimeout(ctx, s.gatewayTimeout)
		defer cancel()
	}
	order, err := s.gateway.CreateOrder(gatewayCtx, razorpay.CreateOrderRequest{
		Amount:   course.PriceCents,
		Currency: string(course.Currency),
		Receipt:  paymentID.String(),
		Notes: map[string]string{
			"user_id":    userID.String(),
			"course_id":  courseID.String(),
			"payment_id": paymentID.String(),
		},
	})
	if err != nil {
		return nil, pkgerrors.Upstream(err, "create provider order")
	}

	metadata, err := json.Marshal(map[string]any{
		"user_id":   userID.String(),
		"course_id": courseID.String(),
		"order":     order.Raw,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode payment metadata")
	}

	stored, err := s.payments.UpsertCreated(ctx, &models.Payment{
		ID:                paymentID,
		UserID:            userID,
		CourseID:          courseID,
		Provider:          enums.PaymentProviderRazorpay,
		OrderReference:    order.ID,
		ProviderReference: order.ID,
		AmountMinor:       course.PriceCents,
		Currency:          course.Currency,
		Status:            enums.PaymentStatusCreated,
		Metadata:          datatypes.JSON(metadata),
	})
	if err != nil {
		return nil, storeError(err, "record payment")
	}

	s.logg.Info(s.logg.WithPayment(ctx, logger.PaymentFields{
		PaymentID:      stored.ID.String(),
		OrderReference: order.ID,
		Source:         "intent",
	}), "payment intent created")

	return &IntentResult{
		OrderID:   order.ID,
		Amount:    stored.AmountMinor,
		Currency:  stored.Currency,
		KeyID:     s.gateway.KeyID(),
		PaymentID: stored.ID,
	}, nil
}

// storeError keeps typed errors, reports deadline expiry as an upstream
// timeout and everything else as internal.
func storeError(err error, message string) error {
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	if pkgerrors.IsTimeout(err) {
		return pkgerrors.Wrap(pkgerrors.CodeUpstreamTimeout, err, message)
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, message)
}

func codeOf(err error) pkgerrors.Code {
	if typed := pkgerrors.As(err); typed != nil {
		return typed.Code()
	}
	return pkgerrors.CodeInternal
}
