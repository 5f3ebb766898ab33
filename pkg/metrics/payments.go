package metrics

import "github.com/prometheus/client_golang/prometheus"

// PaymentMetrics counts reconciliation outcomes and webhook acknowledgements.
type PaymentMetrics struct {
	reconciliations *prometheus.CounterVec
	webhooks        *prometheus.CounterVec
	intents         *prometheus.CounterVec
}

func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	reconciliations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "payments",
		Name:      "reconciliations_total",
		Help:      "Reconciliation attempts by source and outcome.",
	}, []string{"source", "outcome"})
	webhooks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "payments",
		Name:      "webhook_deliveries_total",
		Help:      "Webhook deliveries by event type and response.",
	}, []string{"event", "response"})
	intents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "payments",
		Name:      "intents_total",
		Help:      "Checkout intents by result.",
	}, []string{"result"})
	reg.MustRegister(reconciliations, webhooks, intents)
	return &PaymentMetrics{reconciliations: reconciliations, webhooks: webhooks, intents: intents}
}

// ObserveReconciliation records one reconciliation attempt.
func (m *PaymentMetrics) ObserveReconciliation(source, outcome string) {
	if m == nil || m.reconciliations == nil {
		return
	}
	m.reconciliations.WithLabelValues(normalizeLabel(source), normalizeLabel(outcome)).Inc()
}

// ObserveWebhook records the response given to the provider. response is
// "acknowledged" or "rejected".
func (m *PaymentMetrics) ObserveWebhook(event, response string) {
	if m == nil || m.webhooks == nil {
		return
	}
	m.webhooks.WithLabelValues(normalizeLabel(event), normalizeLabel(response)).Inc()
}

func (m *PaymentMetrics) ObserveIntent(result string) {
	if m == nil || m.intents == nil {
		return
	}
	m.intents.WithLabelValues(normalizeLabel(result)).Inc()
}
