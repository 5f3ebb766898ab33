package payments

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/learnhub-backend/pkg/db/models"
	"github.com/angelmondragon/learnhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/learnhub-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyThenWebhookCompletesOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	userID := uuid.New()
	seeded := h.seedPayment(t, userID, "order_1", enums.PaymentStatusCreated)

	res, err := h.reconciler.ReconcileVerification(ctx, Actor{UserID: userID, Role: enums.UserRoleStudent}, verifyRequest("order_1", "pay_1"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, res.Outcome)
	assert.Equal(t, seeded.ID, res.PaymentID)
	require.NotNil(t, res.EnrollmentID)

	res, err = h.reconciler.ReconcileWebhook(ctx, signedDelivery(webhookBody(EventPaymentCaptured, "order_1", "pay_1", 49900), "evt_1"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyCompleted, res.Outcome)

	p := h.payment(t, "order_1")
	assert.Equal(t, enums.PaymentStatusCompleted, p.Status)
	assert.Equal(t, "pay_1", p.ProviderReference)
	assert.Equal(t, "order_1", p.OrderReference)
	require.NotNil(t, p.CompletedAt)

	var meta map[string]any
	require.NoError(t, json.Unmarshal(p.Metadata, &meta))
	assert.Equal(t, "seed", meta["user_id"], "existing metadata must survive the merge")
	recon, ok := meta["reconciliation"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, SourceVerify, recon["source"])

	var enrollment models.Enrollment
	require.NoError(t, h.conn.Where("user_id = ? AND course_id = ?", userID, seeded.CourseID).First(&enrollment).Error)
	assert.True(t, enrollment.IsPaid)
	assert.Equal(t, enums.EnrollmentStatusActive, enrollment.Status)
	assert.Equal(t, int64(1), h.count(t, &models.Enrollment{}))
	assert.Equal(t, int64(2), h.count(t, &models.OutboxEvent{}))
}

func TestWebhookThenVerifyCompletesOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	userID := uuid.New()
	h.seedPayment(t, userID, "order_2", enums.PaymentStatusCreated)

	res, err := h.reconciler.ReconcileWebhook(ctx, signedDelivery(webhookBody(EventPaymentCaptured, "order_2", "pay_2", 12345), ""))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, res.Outcome)

	res, err = h.reconciler.ReconcileVerification(ctx, Actor{UserID: userID}, verifyRequest("order_2", "pay_2"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyCompleted, res.Outcome)

	p := h.payment(t, "order_2")
	var meta map[string]any
	require.NoError(t, json.Unmarshal(p.Metadata, &meta))
	recon := meta["reconciliation"].(map[string]any)
	assert.Equal(t, SourceWebhook, recon["source"])
	assert.EqualValues(t, 12345, recon["reported_amount"], "reported amount is recorded, not enforced")
	assert.Equal(t, int64(49900), p.AmountMinor)
	assert.Equal(t, int64(1), h.count(t, &models.Enrollment{}))
	assert.Equal(t, int64(2), h.count(t, &models.OutboxEvent{}))
}

func TestDuplicateWebhookDeliveries(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedPayment(t, uuid.New(), "order_3", enums.PaymentStatusCreated)
	body := webhookBody(EventOrderPaid, "order_3", "pay_3", 49900)

	res, err := h.reconciler.ReconcileWebhook(ctx, signedDelivery(body, "evt_3"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, res.Outcome)

	res, err = h.reconciler.ReconcileWebhook(ctx, signedDelivery(body, "evt_3"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, res.Outcome)

	// without an event id the database path alone keeps it idempotent
	res, err = h.reconciler.ReconcileWebhook(ctx, signedDelivery(body, ""))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyCompleted, res.Outcome)
	assert.Equal(t, int64(1), h.count(t, &models.Enrollment{}))
	assert.Equal(t, int64(2), h.count(t, &models.OutboxEvent{}))
}

func TestWebhookGuardFailureFallsBackToDatabase(t *testing.T) {
	h := newHarness(t)
	h.guard.err = errors.New("redis down")
	h.seedPayment(t, uuid.New(), "order_g", enums.PaymentStatusCreated)

	res, err := h.reconciler.ReconcileWebhook(context.Background(), signedDelivery(webhookBody(EventPaymentCaptured, "order_g", "pay_g", 1), "evt_g"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, res.Outcome)
}

func TestTamperedWebhookIsRejectedWithoutWrites(t *testing.T) {
	h := newHarness(t)
	h.seedPayment(t, uuid.New(), "order_4", enums.PaymentStatusCreated)
	delivery := signedDelivery(webhookBody(EventPaymentCaptured, "order_4", "pay_4", 49900), "evt_4")
	delivery.Body = append([]byte{}, delivery.Body...)
	delivery.Body[len(delivery.Body)-2] ^= 0x01

	_, err := h.reconciler.ReconcileWebhook(context.Background(), delivery)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidSignature), "got %v", err)

	assert.Equal(t, enums.PaymentStatusCreated, h.payment(t, "order_4").Status)
	assert.Equal(t, int64(0), h.count(t, &models.Enrollment{}))
	assert.Empty(t, h.guard.seen, "unsigned deliveries must not mark event ids")
}

func TestVerifyRejectsBadSignature(t *testing.T) {
	h := newHarness(t)
	userID := uuid.New()
	h.seedPayment(t, userID, "order_5", enums.PaymentStatusCreated)
	req := verifyRequest("order_5", "pay_5")
	req.PaymentReference = "pay_other"

	_, err := h.reconciler.ReconcileVerification(context.Background(), Actor{UserID: userID}, req)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidSignature), "got %v", err)
	assert.Equal(t, enums.PaymentStatusCreated, h.payment(t, "order_5").Status)
}

func TestVerifyRequiresFields(t *testing.T) {
	h := newHarness(t)
	_, err := h.reconciler.ReconcileVerification(context.Background(), Actor{UserID: uuid.New()}, VerifyRequest{OrderReference: "order_x"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)
}

func TestUnknownReference(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.reconciler.ReconcileWebhook(ctx, signedDelivery(webhookBody(EventPaymentCaptured, "order_missing", "pay_missing", 1), "evt_missing"))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnknownReference), "got %v", err)
	assert.Empty(t, h.guard.seen, "failed deliveries release their event id")

	_, err = h.reconciler.ReconcileVerification(ctx, Actor{UserID: uuid.New()}, verifyRequest("order_missing", "pay_missing"))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnknownReference), "got %v", err)
	assert.Equal(t, int64(0), h.count(t, &models.Enrollment{}))
}

func TestVerifyOwnership(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	owner := uuid.New()
	h.seedPayment(t, owner, "order_6", enums.PaymentStatusCreated)

	_, err := h.reconciler.ReconcileVerification(ctx, Actor{UserID: uuid.New(), Role: enums.UserRoleInstructor}, verifyRequest("order_6", "pay_6"))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden), "got %v", err)
	assert.Equal(t, enums.PaymentStatusCreated, h.payment(t, "order_6").Status)

	// an admin role claim without an admin profile row is not enough
	_, err = h.reconciler.ReconcileVerification(ctx, Actor{UserID: uuid.New(), Role: enums.UserRoleAdmin}, verifyRequest("order_6", "pay_6"))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden), "got %v", err)
	assert.Equal(t, enums.PaymentStatusCreated, h.payment(t, "order_6").Status)

	res, err := h.reconciler.ReconcileVerification(ctx, Actor{UserID: uuid.New(), Role: enums.UserRoleAdmin, IsAdmin: true}, verifyRequest("order_6", "pay_6"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, res.Outcome)

	var enrollment models.Enrollment
	require.NoError(t, h.conn.First(&enrollment).Error)
	assert.Equal(t, owner, enrollment.UserID, "enrollment belongs to the payer, not the admin")
}

func TestFailureFacts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedPayment(t, uuid.New(), "order_7", enums.PaymentStatusCreated)

	res, err := h.reconciler.ReconcileWebhook(ctx, signedDelivery(webhookBody(EventPaymentFailed, "order_7", "pay_7a", 49900), "evt_7a"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	p := h.payment(t, "order_7")
	assert.Equal(t, enums.PaymentStatusFailed, p.Status)
	require.NotNil(t, p.FailureReason)
	assert.Equal(t, "card declined", *p.FailureReason)

	// a later capture on the same order still grants access
	res, err = h.reconciler.ReconcileWebhook(ctx, signedDelivery(webhookBody(EventPaymentCaptured, "order_7", "pay_7b", 49900), "evt_7b"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, res.Outcome)
	p = h.payment(t, "order_7")
	assert.Equal(t, enums.PaymentStatusCompleted, p.Status)
	assert.Nil(t, p.FailureReason)

	// nothing leaves completed
	res, err = h.reconciler.ReconcileWebhook(ctx, signedDelivery(webhookBody(EventPaymentFailed, "order_7", "pay_7c", 49900), "evt_7c"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailureIgnored, res.Outcome)
	assert.Equal(t, enums.PaymentStatusCompleted, h.payment(t, "order_7").Status)
}

func TestIgnoredEventsAreAcknowledged(t *testing.T) {
	h := newHarness(t)
	body := []byte(`{"entity":"event","event":"refund.created","payload":{}}`)

	res, err := h.reconciler.ReconcileWebhook(context.Background(), signedDelivery(body, "evt_r"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, res.Outcome)
	assert.Equal(t, "refund.created", res.Event)
}

func TestConcurrentDeliveriesCompleteExactlyOnce(t *testing.T) {
	h := newHarness(t)
	userID := uuid.New()
	h.seedPayment(t, userID, "order_8", enums.PaymentStatusCreated)
	body := webhookBody(EventPaymentCaptured, "order_8", "pay_8", 49900)

	const workers = 8
	outcomes := make(chan Outcome, workers)
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var (
				res *Result
				err error
			)
			if i%2 == 0 {
				res, err = h.reconciler.ReconcileWebhook(context.Background(), signedDelivery(body, ""))
			} else {
				res, err = h.reconciler.ReconcileVerification(context.Background(), Actor{UserID: userID}, verifyRequest("order_8", "pay_8"))
			}
			if err != nil {
				errs <- err
				return
			}
			outcomes <- res.Outcome
		}(i)
	}
	wg.Wait()
	close(outcomes)
	close(errs)

	for err := range errs {
		t.Fatalf("unexpected error: %v", err)
	}
	completed := 0
	for outcome := range outcomes {
		if outcome == OutcomeCompleted {
			completed++
		} else {
			assert.Equal(t, OutcomeAlreadyCompleted, outcome)
		}
	}
	assert.Equal(t, 1, completed)
	assert.Equal(t, int64(1), h.count(t, &models.Enrollment{}))
	assert.Equal(t, int64(2), h.count(t, &models.OutboxEvent{}))
}

func TestExpireStale(t *testing.T) {
	h := newHarness(t)
	old := h.seedPayment(t, uuid.New(), "order_old", enums.PaymentStatusCreated)
	require.NoError(t, h.conn.Model(&models.Payment{}).Where("id = ?", old.ID).Update("created_at", time.Now().UTC().Add(-48*time.Hour)).Error)
	h.seedPayment(t, uuid.New(), "order_new", enums.PaymentStatusCreated)
	done := h.seedPayment(t, uuid.New(), "order_done", enums.PaymentStatusCompleted)
	require.NoError(t, h.conn.Model(&models.Payment{}).Where("id = ?", done.ID).Update("created_at", time.Now().UTC().Add(-48*time.Hour)).Error)

	n, err := h.reconciler.ExpireStale(context.Background(), time.Now().UTC().Add(-24*time.Hour), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	p := h.payment(t, "order_old")
	assert.Equal(t, enums.PaymentStatusFailed, p.Status)
	require.NotNil(t, p.FailureReason)
	assert.Equal(t, FailureReasonExpired, *p.FailureReason)
	assert.Equal(t, enums.PaymentStatusCreated, h.payment(t, "order_new").Status)
	assert.Equal(t, enums.PaymentStatusCompleted, h.payment(t, "order_done").Status)
	assert.Equal(t, int64(1), h.count(t, &models.OutboxEvent{}))
}
