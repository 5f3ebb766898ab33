package webhooks

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/learnhub-backend/internal/payments"
	pkgerrors "github.com/angelmondragon/learnhub-backend/pkg/errors"
	"github.com/angelmondragon/learnhub-backend/pkg/metrics"
)

type fakeReconciler struct {
	delivery payments.WebhookDelivery
	result   *payments.Result
	err      error
	calls    int
}

func (f *fakeReconciler) ReconcileWebhook(ctx context.Context, delivery payments.WebhookDelivery) (*payments.Result, error) {
	f.calls++
	f.delivery = delivery
	return f.result, f.err
}

func webhookCount(t *testing.T, reg *prometheus.Registry, event, response string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != "learnhub_payments_webhook_deliveries_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["event"] == event && labels["response"] == response {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func postWebhook(handler http.Handler, body, signature, eventID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/payment/webhook", strings.NewReader(body))
	req.Header.Set(SignatureHeader, signature)
	if eventID != "" {
		req.Header.Set(EventIDHeader, eventID)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestRazorpayWebhookPassesRawDelivery(t *testing.T) {
	reg := prometheus.NewRegistry()
	svc := &fakeReconciler{result: &payments.Result{Outcome: payments.OutcomeCompleted, Event: "payment.captured"}}
	handler := RazorpayWebhook(svc, metrics.NewPaymentMetrics(reg), nil)

	body := `{"event":"payment.captured",  "payload":{}}`
	rec := postWebhook(handler, body, "sig", "evt_1")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"received":true`) {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
	if string(svc.delivery.Body) != body {
		t.Fatalf("body must reach the verifier byte for byte")
	}
	if svc.delivery.Signature != "sig" || svc.delivery.EventID != "evt_1" {
		t.Fatalf("unexpected delivery headers %+v", svc.delivery)
	}
	if got := webhookCount(t, reg, "payment.captured", "acknowledged"); got != 1 {
		t.Fatalf("expected acknowledged counter 1, got %v", got)
	}
}

func TestRazorpayWebhookRejectsInvalidSignature(t *testing.T) {
	reg := prometheus.NewRegistry()
	svc := &fakeReconciler{err: pkgerrors.New(pkgerrors.CodeInvalidSignature, "invalid signature")}
	rec := postWebhook(RazorpayWebhook(svc, metrics.NewPaymentMetrics(reg), nil), `{}`, "bad", "")

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
	if got := webhookCount(t, reg, "unknown", "rejected"); got != 1 {
		t.Fatalf("expected rejected counter 1, got %v", got)
	}
}

func TestRazorpayWebhookAcknowledgesProcessingErrors(t *testing.T) {
	cases := []struct {
		name   string
		result *payments.Result
		err    error
	}{
		{"unknown reference", nil, pkgerrors.New(pkgerrors.CodeUnknownReference, "payment not found")},
		{"store outage", nil, pkgerrors.Upstream(errors.New("connection reset"), "reconcile")},
		{"malformed event", nil, pkgerrors.New(pkgerrors.CodeValidation, "malformed webhook body")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &fakeReconciler{result: tc.result, err: tc.err}
			rec := postWebhook(RazorpayWebhook(svc, nil, nil), `{"event":"payment.captured"}`, "sig", "")
			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200 after valid signature, got %d", rec.Code)
			}
		})
	}
}

func TestRazorpayWebhookWithoutServiceFails(t *testing.T) {
	rec := postWebhook(RazorpayWebhook(nil, nil, nil), `{}`, "sig", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", rec.Code)
	}
}
