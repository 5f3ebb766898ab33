package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/learnhub-backend/pkg/db"
	"github.com/angelmondragon/learnhub-backend/pkg/db/dbtest"
	"github.com/angelmondragon/learnhub-backend/pkg/db/models"
	"github.com/angelmondragon/learnhub-backend/pkg/enums"
	"github.com/angelmondragon/learnhub-backend/pkg/logger"
	"github.com/angelmondragon/learnhub-backend/pkg/outbox"
	"github.com/angelmondragon/learnhub-backend/pkg/security"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const (
	testKeySecret     = "rzp_key_secret"
	testWebhookSecret = "rzp_webhook_secret"
)

type harness struct {
	conn       *gorm.DB
	reconciler *Reconciler
	guard      *memoryGuard
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	conn := dbtest.Open(t)
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	guard := newMemoryGuard()
	reconciler, err := NewReconciler(ReconcilerParams{
		DB:            db.Wrap(conn),
		Outbox:        outbox.NewService(outbox.NewRepository(conn), logg),
		VerifySigner:  NewSignatureVerifier(testKeySecret),
		WebhookSigner: NewSignatureVerifier(testWebhookSecret),
		Guard:         guard,
		StoreTimeout:  5 * time.Second,
		Logger:        logg,
	})
	require.NoError(t, err)
	return &harness{conn: conn, reconciler: reconciler, guard: guard}
}

func (h *harness) seedPayment(t *testing.T, userID uuid.UUID, orderRef string, status enums.PaymentStatus) *models.Payment {
	t.Helper()
	p := &models.Payment{
		ID:                uuid.New(),
		UserID:            userID,
		CourseID:          uuid.New(),
		Provider:          enums.PaymentProviderRazorpay,
		OrderReference:    orderRef,
		ProviderReference: orderRef,
		AmountMinor:       49900,
		Currency:          enums.CurrencyINR,
		Status:            status,
		Metadata:          []byte(`{"user_id":"seed"}`),
	}
	require.NoError(t, h.conn.Create(p).Error)
	return p
}

func (h *harness) payment(t *testing.T, orderRef string) models.Payment {
	t.Helper()
	var p models.Payment
	require.NoError(t, h.conn.Where("order_reference = ?", orderRef).First(&p).Error)
	return p
}

func (h *harness) count(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, h.conn.Model(model).Count(&n).Error)
	return n
}

func verifyRequest(orderRef, paymentRef string) VerifyRequest {
	return VerifyRequest{
		OrderReference:   orderRef,
		PaymentReference: paymentRef,
		Signature:        security.SignHMACSHA256([]byte(testKeySecret), []byte(orderRef+"|"+paymentRef)),
	}
}

func webhookBody(event, orderRef, paymentRef string, amount int64) []byte {
	body := map[string]any{
		"entity": "event",
		"event":  event,
		"payload": map[string]any{
			"payment": map[string]any{
				"entity": map[string]any{
					"id":                paymentRef,
					"order_id":          orderRef,
					"amount":            amount,
					"currency":          "INR",
					"status":            "captured",
					"error_description": "card declined",
				},
			},
		},
	}
	raw, err := json.Marshal(body)
	if err != nil {
		panic(fmt.Sprintf("marshal webhook body: %v", err))
	}
	return raw
}

func signedDelivery(body []byte, eventID string) WebhookDelivery {
	return WebhookDelivery{
		Body:      body,
		Signature: security.SignHMACSHA256([]byte(testWebhookSecret), body),
		EventID:   eventID,
	}
}

type memoryGuard struct {
	mu   sync.Mutex
	seen map[string]bool
	err  error
}

func newMemoryGuard() *memoryGuard {
	return &memoryGuard{seen: map[string]bool{}}
}

func (g *memoryGuard) CheckAndMark(ctx context.Context, eventID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return false, g.err
	}
	if g.seen[eventID] {
		return true, nil
	}
	g.seen[eventID] = true
	return false, nil
}

func (g *memoryGuard) Delete(ctx context.Context, eventID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.seen, eventID)
	return nil
}
