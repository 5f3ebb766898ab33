package payments

import (
	"strings"

	"github.com/angelmondragon/learnhub-backend/pkg/security"
)

// SignatureVerifier checks hex HMAC-SHA256 signatures produced with one
// shared secret. Separate instances hold the checkout key secret and the
// webhook secret.
type SignatureVerifier struct {
	secret []byte
}

func NewSignatureVerifier(secret string) *SignatureVerifier {
	return &SignatureVerifier{secret: []byte(secret)}
}

// Verify signs payload exactly as given and compares in constant time.
func (v *SignatureVerifier) Verify(payload []byte, signature string) bool {
	if v == nil {
		return false
	}
	return security.VerifyHMACSHA256(v.secret, payload, strings.TrimSpace(signature))
}

// VerifyPayment checks the checkout callback signature over "order|payment".
func (v *SignatureVerifier) VerifyPayment(orderReference, paymentReference, signature string) bool {
	return v.Verify([]byte(orderReference+"|"+paymentReference), signature)
}
