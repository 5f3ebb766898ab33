package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/angelmondragon/learnhub-backend/api/responses"
	"github.com/angelmondragon/learnhub-backend/internal/payments"
	pkgerrors "github.com/angelmondragon/learnhub-backend/pkg/errors"
	"github.com/angelmondragon/learnhub-backend/pkg/logger"
	"github.com/angelmondragon/learnhub-backend/pkg/metrics"
)

const (
	SignatureHeader = "X-Razorpay-Signature"
	EventIDHeader   = "X-Razorpay-Event-Id"

	maxWebhookBody = 1 << 20
)

type webhookReconciler interface {
	ReconcileWebhook(ctx context.Context, delivery payments.WebhookDelivery) (*payments.Result, error)
}

// RazorpayWebhook verifies and reconciles provider notifications. Once the
// signature checks out the delivery is always acknowledged; processing errors
// are logged and counted instead of triggering provider retries.
func RazorpayWebhook(svc webhookReconciler, paymentMetrics *metrics.PaymentMetrics, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
		if err != nil {
			paymentMetrics.ObserveWebhook("unknown", "rejected")
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		result, err := svc.ReconcileWebhook(ctx, payments.WebhookDelivery{
			Body:      payload,
			Signature: r.Header.Get(SignatureHeader),
			EventID:   r.Header.Get(EventIDHeader),
		})
		if pkgerrors.IsCode(err, pkgerrors.CodeInvalidSignature) {
			paymentMetrics.ObserveWebhook("unknown", "rejected")
			responses.WriteError(ctx, logg, w, err)
			return
		}

		event := "unknown"
		if result != nil && result.Event != "" {
			event = result.Event
		}
		if err != nil && logg != nil {
			logCtx := logg.WithFields(ctx, map[string]any{"event": event, "event_id": r.Header.Get(EventIDHeader)})
			logg.Error(logCtx, "webhook processing failed", err)
		} else if logg != nil && result != nil {
			logCtx := logg.WithFields(ctx, map[string]any{"event": event, "outcome": string(result.Outcome)})
			logg.Info(logCtx, "webhook acknowledged")
		}

		paymentMetrics.ObserveWebhook(event, "acknowledged")
		responses.WriteSuccess(w, map[string]bool{"received": true})
	}
}
