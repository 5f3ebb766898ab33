package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignHMACSHA256 returns the lowercase hex HMAC-SHA256 of payload.
func SignHMACSHA256(secret, payload []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyHMACSHA256 compares a hex signature against payload in constant
// time. An empty secret or signature never verifies.
func VerifyHMACSHA256(secret, payload []byte, signature string) bool {
	if len(secret) == 0 {
		return false
	}
	supplied, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(supplied) == 0 {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), supplied)
}
