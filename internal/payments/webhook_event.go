package payments

import (
	"encoding/json"
	"strings"

	pkgerrors "github.com/angelmondragon/learnhub-backend/pkg/errors"
)

const (
	EventPaymentCaptured = "payment.captured"
	EventOrderPaid       = "order.paid"
	EventPaymentFailed   = "payment.failed"
)

// FactKind classifies what a webhook event asserts about a payment.
type FactKind int

const (
	FactIgnored FactKind = iota
	FactCompleted
	FactFailed
)

// Fact is what one webhook delivery asserts about one order.
type Fact struct {
	Kind             FactKind
	Event            string
	EventID          string
	OrderReference   string
	PaymentReference string
	ReportedAmount   *int64
	ReportedCurrency string
	FailureReason    string
}

type webhookEvent struct {
	ID      string `json:"id"`
	Event   string `json:"event"`
	Payload struct {
		Payment *struct {
			Entity paymentEntity `json:"entity"`
		} `json:"payment"`
		Order *struct {
			Entity orderEntity `json:"entity"`
		} `json:"order"`
	} `json:"payload"`
}

type paymentEntity struct {
	ID               string  `json:"id"`
	OrderID          string  `json:"order_id"`
	Amount           *int64  `json:"amount"`
	Currency         string  `json:"currency"`
	Status           string  `json:"status"`
	ErrorCode        *string `json:"error_code"`
	ErrorDescription *string `json:"error_description"`
}

type orderEntity struct {
	ID         string `json:"id"`
	AmountPaid *int64 `json:"amount_paid"`
	Currency   string `json:"currency"`
	Status     string `json:"status"`
}

// ParseWebhookFact extracts the fact from a raw event body. Unknown event
// types parse to FactIgnored.
func ParseWebhookFact(body []byte) (Fact, error) {
	var evt webhookEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return Fact{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode webhook event")
	}
	fact := Fact{Event: strings.TrimSpace(evt.Event), EventID: strings.TrimSpace(evt.ID)}
	if fact.Event == "" {
		return Fact{}, pkgerrors.New(pkgerrors.CodeValidation, "webhook event type missing")
	}

	switch fact.Event {
	case EventPaymentCaptured, EventOrderPaid:
		fact.Kind = FactCompleted
	case EventPaymentFailed:
		fact.Kind = FactFailed
	default:
		fact.Kind = FactIgnored
		return fact, nil
	}

	if p := evt.Payload.Payment; p != nil {
		fact.PaymentReference = p.Entity.ID
		fact.OrderReference = p.Entity.OrderID
		fact.ReportedAmount = p.Entity.Amount
		fact.ReportedCurrency = p.Entity.Currency
		if fact.Kind == FactFailed {
			fact.FailureReason = failureReason(p.Entity)
		}
	}
	if o := evt.Payload.Order; o != nil {
		if fact.OrderReference == "" {
			fact.OrderReference = o.Entity.ID
		}
		if fact.ReportedAmount == nil {
			fact.ReportedAmount = o.Entity.AmountPaid
		}
		if fact.ReportedCurrency == "" {
			fact.ReportedCurrency = o.Entity.Currency
		}
	}

	if fact.OrderReference == "" {
		return Fact{}, pkgerrors.New(pkgerrors.CodeValidation, "webhook event missing order reference")
	}
	if fact.Kind == FactCompleted && fact.PaymentReference == "" {
		return Fact{}, pkgerrors.New(pkgerrors.CodeValidation, "webhook event missing payment reference")
	}
	return fact, nil
}

func failureReason(p paymentEntity) string {
	if p.ErrorDescription != nil && strings.TrimSpace(*p.ErrorDescription) != "" {
		return strings.TrimSpace(*p.ErrorDescription)
	}
	if p.ErrorCode != nil && strings.TrimSpace(*p.ErrorCode) != "" {
		return strings.TrimSpace(*p.ErrorCode)
	}
	return "payment failed"
}
