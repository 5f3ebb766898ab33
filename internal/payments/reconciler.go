package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/learnhub-backend/internal/enrollments"
	"github.com/angelmondragon/learnhub-backend/pkg/db/models"
	"github.com/angelmondragon/learnhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/learnhub-backend/pkg/errors"
	"github.com/angelmondragon/learnhub-backend/pkg/logger"
	"github.com/angelmondragon/learnhub-backend/pkg/metrics"
	"github.com/angelmondragon/learnhub-backend/pkg/outbox"
	"github.com/angelmondragon/learnhub-backend/pkg/outbox/payloads"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	SourceVerify  = "verify"
	SourceWebhook = "webhook"
	SourceSweeper = "sweeper"

	// FailureReasonExpired marks created payments the sweeper gave up on.
	FailureReasonExpired = "expired"
)

// Outcome describes what a reconciliation attempt did.
type Outcome string

const (
	OutcomeCompleted        Outcome = "completed"
	OutcomeAlreadyCompleted Outcome = "already_completed"
	OutcomeFailed           Outcome = "failed"
	OutcomeFailureIgnored   Outcome = "failure_ignored"
	OutcomeIgnored          Outcome = "ignored"
	OutcomeDuplicate        Outcome = "duplicate"
	OutcomeUnknownReference Outcome = "unknown_reference"
	OutcomeInvalidSignature Outcome = "invalid_signature"
	OutcomeError            Outcome = "error"
)

// Result is returned for every accepted fact.
type Result struct {
	Outcome      Outcome
	Event        string
	PaymentID    uuid.UUID
	EnrollmentID *uuid.UUID
}

// Actor is the authenticated caller of the verify endpoint. Role is the
// effective role recorded on events; IsAdmin is set only from a profile row.
type Actor struct {
	UserID  uuid.UUID
	Role    enums.UserRole
	IsAdmin bool
}

// VerifyRequest is the client's confirmation after checkout.
type VerifyRequest struct {
	OrderReference   string `json:"orderReference" validate:"required"`
	PaymentReference string `json:"paymentReference" validate:"required"`
	Signature        string `json:"signature" validate:"required"`
}

// WebhookDelivery is one provider notification exactly as received.
type WebhookDelivery struct {
	Body      []byte
	Signature string
	EventID   string
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventEmitter interface {
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// EventGuard remembers webhook event ids already processed.
type EventGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

// ReconcilerParams bundles the reconciliation engine dependencies.
type ReconcilerParams struct {
	DB            txRunner
	Outbox        eventEmitter
	VerifySigner  *SignatureVerifier
	WebhookSigner *SignatureVerifier
	Guard         EventGuard
	StoreTimeout  time.Duration
	Metrics       *metrics.PaymentMetrics
	Logger        *logger.Logger
	Clock         func() time.Time
}

// Reconciler moves payments and enrollments to their paid state exactly once,
// whichever of the verify call and the webhook arrives first.
type Reconciler struct {
	db            txRunner
	outbox        eventEmitter
	verifySigner  *SignatureVerifier
	webhookSigner *SignatureVerifier
	guard         EventGuard
	storeTimeout  time.Duration
	metrics       *metrics.PaymentMetrics
	logg          *logger.Logger
	now           func() time.Time
}

func NewReconciler(params ReconcilerParams) (*Reconciler, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner is required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter is required")
	}
	if params.VerifySigner == nil || params.WebhookSigner == nil {
		return nil, fmt.Errorf("signature verifiers are required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	clock := params.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &Reconciler{
		db:            params.DB,
		outbox:        params.Outbox,
		verifySigner:  params.VerifySigner,
		webhookSigner: params.WebhookSigner,
		guard:         params.Guard,
		storeTimeout:  params.StoreTimeout,
		metrics:       params.Metrics,
		logg:          params.Logger,
		now:           clock,
	}, nil
}

// ReconcileVerification handles the client callback. Only the payment owner
// or an admin may confirm a payment.
func (r *Reconciler) ReconcileVerification(ctx context.Context, actor Actor, req VerifyRequest) (*Result, error) {
	orderRef := strings.TrimSpace(req.OrderReference)
	paymentRef := strings.TrimSpace(req.PaymentReference)
	if orderRef == "" || paymentRef == "" || strings.TrimSpace(req.Signature) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "orderReference, paymentReference and signature are required")
	}
	if !r.verifySigner.VerifyPayment(orderRef, paymentRef, req.Signature) {
		r.observe(ctx, SourceVerify, orderRef, paymentRef, OutcomeInvalidSignature)
		return nil, pkgerrors.New(pkgerrors.CodeInvalidSignature, "invalid signature")
	}

	fact := Fact{
		Kind:             FactCompleted,
		Event:            "checkout.verify",
		OrderReference:   orderRef,
		PaymentReference: paymentRef,
	}
	authorize := func(p *models.Payment) error {
		if p.UserID != actor.UserID && !actor.IsAdmin {
			return pkgerrors.New(pkgerrors.CodeForbidden, "payment belongs to another user")
		}
		return nil
	}
	actorRef := &outbox.ActorRef{UserID: actor.UserID, Role: string(actor.Role)}
	return r.apply(ctx, SourceVerify, fact, authorize, actorRef)
}

// ReconcileWebhook handles one provider delivery. A signature mismatch is the
// only outcome the caller should reject; everything after it is acknowledged.
func (r *Reconciler) ReconcileWebhook(ctx context.Context, delivery WebhookDelivery) (*Result, error) {
	if !r.webhookSigner.Verify(delivery.Body, delivery.Signature) {
		r.observe(ctx, SourceWebhook, "", "", OutcomeInvalidSignature)
		return nil, pkgerrors.New(pkgerrors.CodeInvalidSignature, "invalid signature")
	}

	fact, err := ParseWebhookFact(delivery.Body)
	if err != nil {
		r.observe(ctx, SourceWebhook, "", "", OutcomeError)
		return nil, err
	}
	if fact.Kind == FactIgnored {
		r.observe(ctx, SourceWebhook, "", "", OutcomeIgnored)
		return &Result{Outcome: OutcomeIgnored, Event: fact.Event}, nil
	}

	eventID := strings.TrimSpace(delivery.EventID)
	if eventID == "" {
		eventID = fact.EventID
	}
	marked := false
	if eventID != "" && r.guard != nil {
		seen, err := r.guard.CheckAndMark(ctx, eventID)
		switch {
		case err != nil:
			// the row lock and conditional updates still make replays safe
			r.logg.Warn(r.logg.WithField(ctx, "event_id", eventID), "webhook event guard unavailable: "+err.Error())
		case seen:
			r.observe(ctx, SourceWebhook, fact.OrderReference, fact.PaymentReference, OutcomeDuplicate)
			return &Result{Outcome: OutcomeDuplicate, Event: fact.Event}, nil
		default:
			marked = true
		}
	}

	result, err := r.apply(ctx, SourceWebhook, fact, nil, nil)
	if err != nil && marked {
		if delErr := r.guard.Delete(context.WithoutCancel(ctx), eventID); delErr != nil {
			r.logg.Warn(ctx, "release webhook event guard: "+delErr.Error())
		}
	}
	return result, err
}

// ExpireStale fails created payments older than cutoff. It returns how many
// rows were moved.
func (r *Reconciler) ExpireStale(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	expired := 0
	err := r.withStore(ctx, func(ctx context.Context, tx *gorm.DB) error {
		repo := NewRepository(tx)
		rows, err := repo.LockStaleCreated(ctx, cutoff, limit)
		if err != nil {
			return err
		}
		for i := range rows {
			fact := Fact{Kind: FactFailed, Event: "payment.expired", OrderReference: rows[i].OrderReference, FailureReason: FailureReasonExpired}
			outcome, err := r.recordFailure(ctx, tx, repo, &rows[i], SourceSweeper, fact)
			if err != nil {
				return err
			}
			if outcome == OutcomeFailed {
				expired++
			}
		}
		return nil
	})
	if err != nil {
		return 0, storeError(err, "expire stale payments")
	}
	return expired, nil
}

func (r *Reconciler) apply(ctx context.Context, source string, fact Fact, authorize func(*models.Payment) error, actor *outbox.ActorRef) (*Result, error) {
	result := &Result{Event: fact.Event}
	err := r.withStore(ctx, func(ctx context.Context, tx *gorm.DB) error {
		repo := NewRepository(tx)
		payment, err := repo.FindByOrderReferenceForUpdate(ctx, fact.OrderReference)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeUnknownReference, "payment reference not found")
			}
			return err
		}
		if authorize != nil {
			if err := authorize(payment); err != nil {
				return err
			}
		}
		result.PaymentID = payment.ID

		switch fact.Kind {
		case FactCompleted:
			outcome, enrollmentID, err := r.recordCompletion(ctx, tx, repo, payment, source, fact, actor)
			if err != nil {
				return err
			}
			result.Outcome = outcome
			result.EnrollmentID = &enrollmentID
		case FactFailed:
			outcome, err := r.recordFailure(ctx, tx, repo, payment, source, fact)
			if err != nil {
				return err
			}
			result.Outcome = outcome
		}
		return nil
	})
	if err != nil {
		outcome := OutcomeError
		if pkgerrors.IsCode(err, pkgerrors.CodeUnknownReference) {
			outcome = OutcomeUnknownReference
		}
		r.observe(ctx, source, fact.OrderReference, fact.PaymentReference, outcome)
		return nil, storeError(err, "reconcile payment")
	}
	r.observe(ctx, source, fact.OrderReference, fact.PaymentReference, result.Outcome)
	return result, nil
}

func (r *Reconciler) recordCompletion(ctx context.Context, tx *gorm.DB, repo *Repository, payment *models.Payment, source string, fact Fact, actor *outbox.ActorRef) (Outcome, uuid.UUID, error) {
	now := r.now()
	outcome := OutcomeAlreadyCompleted

	if payment.Status != enums.PaymentStatusCompleted {
		reconciliation := map[string]any{
			"source":        source,
			"event":         fact.Event,
			"payment_id":    fact.PaymentReference,
			"reconciled_at": now,
		}
		// advisory only; never compared to the course price
		if fact.ReportedAmount != nil {
			reconciliation["reported_amount"] = *fact.ReportedAmount
		}
		if fact.ReportedCurrency != "" {
			reconciliation["reported_currency"] = fact.ReportedCurrency
		}
		metadata, err := mergeMetadata(payment.Metadata, "reconciliation", reconciliation)
		if err != nil {
			return "", uuid.Nil, err
		}
		updated, err := repo.MarkCompleted(ctx, payment.ID, fact.PaymentReference, metadata, now)
		if err != nil {
			return "", uuid.Nil, err
		}
		if updated == 1 {
			outcome = OutcomeCompleted
			payment.Status = enums.PaymentStatusCompleted
			payment.ProviderReference = fact.PaymentReference
			payment.CompletedAt = &now
			payment.Metadata = metadata
		} else {
			reloaded, err := repo.FindByOrderReference(ctx, payment.OrderReference)
			if err != nil {
				return "", uuid.Nil, err
			}
			*payment = *reloaded
		}
	}

	purchasedAt := now
	if payment.CompletedAt != nil {
		purchasedAt = *payment.CompletedAt
	}
	enrollment, err := enrollments.NewRepository(tx).UpsertActivePaid(ctx, payment.UserID, payment.CourseID, payment.ID, purchasedAt)
	if err != nil {
		return "", uuid.Nil, err
	}

	if err := r.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPaymentCompleted,
		AggregateType: enums.AggregatePayment,
		AggregateID:   payment.ID,
		Actor:         actor,
		OccurredAt:    purchasedAt,
		Data: payloads.PaymentCompletedEvent{
			PaymentID:         payment.ID,
			UserID:            payment.UserID,
			CourseID:          payment.CourseID,
			OrderReference:    payment.OrderReference,
			ProviderReference: payment.ProviderReference,
			AmountMinor:       payment.AmountMinor,
			Currency:          string(payment.Currency),
			Source:            source,
			CompletedAt:       purchasedAt,
		},
	}); err != nil {
		return "", uuid.Nil, err
	}

	enrolledAt := purchasedAt
	if enrollment.PurchasedAt != nil {
		enrolledAt = *enrollment.PurchasedAt
	}
	if err := r.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventEnrollmentActivated,
		AggregateType: enums.AggregateEnrollment,
		AggregateID:   enrollment.ID,
		Actor:         actor,
		OccurredAt:    enrolledAt,
		Data: payloads.EnrollmentActivatedEvent{
			EnrollmentID: enrollment.ID,
			UserID:       enrollment.UserID,
			CourseID:     enrollment.CourseID,
			PaymentID:    enrollment.PaymentID,
			PurchasedAt:  enrolledAt,
		},
	}); err != nil {
		return "", uuid.Nil, err
	}

	return outcome, enrollment.ID, nil
}

func (r *Reconciler) recordFailure(ctx context.Context, tx *gorm.DB, repo *Repository, payment *models.Payment, source string, fact Fact) (Outcome, error) {
	if payment.Status != enums.PaymentStatusCreated {
		return OutcomeFailureIgnored, nil
	}
	now := r.now()
	reason := fact.FailureReason
	if reason == "" {
		reason = "payment failed"
	}
	failure := map[string]any{
		"source":    source,
		"event":     fact.Event,
		"reason":    reason,
		"failed_at": now,
	}
	if fact.PaymentReference != "" {
		failure["payment_id"] = fact.PaymentReference
	}
	metadata, err := mergeMetadata(payment.Metadata, "failure", failure)
	if err != nil {
		return "", err
	}
	updated, err := repo.MarkFailed(ctx, payment.ID, reason, metadata, now)
	if err != nil {
		return "", err
	}
	if updated == 0 {
		return OutcomeFailureIgnored, nil
	}
	payment.Status = enums.PaymentStatusFailed
	payment.FailureReason = &reason

	if err := r.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPaymentFailed,
		AggregateType: enums.AggregatePayment,
		AggregateID:   payment.ID,
		OccurredAt:    now,
		Data: payloads.PaymentFailedEvent{
			PaymentID:      payment.ID,
			UserID:         payment.UserID,
			CourseID:       payment.CourseID,
			OrderReference: payment.OrderReference,
			Reason:         reason,
		},
	}); err != nil {
		return "", err
	}
	return OutcomeFailed, nil
}

func (r *Reconciler) withStore(ctx context.Context, fn func(ctx context.Context, tx *gorm.DB) error) error {
	if r.storeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.storeTimeout)
		defer cancel()
	}
	return r.db.WithTx(ctx, func(tx *gorm.DB) error {
		return fn(ctx, tx)
	})
}

func (r *Reconciler) observe(ctx context.Context, source, orderRef, paymentRef string, outcome Outcome) {
	r.metrics.ObserveReconciliation(source, string(outcome))
	logCtx := r.logg.WithPayment(ctx, logger.PaymentFields{
		OrderReference:   orderRef,
		PaymentReference: paymentRef,
		Source:           source,
		Outcome:          string(outcome),
	})
	switch outcome {
	case OutcomeInvalidSignature, OutcomeUnknownReference, OutcomeError:
		r.logg.Warn(logCtx, "payment reconciliation rejected")
	case OutcomeIgnored:
		r.logg.Debug(logCtx, "payment webhook ignored")
	default:
		r.logg.Info(logCtx, "payment reconciliation applied")
	}
}
