package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Signer computes and checks callback signatures: hex(HMAC-SHA256(secret, orderID|paymentID)).
type Signer struct {
	secret []byte
}

// NewSigner returns a signer keyed with the processor secret.
func NewSigner(secret string) Signer {
	return Signer{secret: []byte(secret)}
}

// Sign returns the expected signature for an order/payment pair.
func (s Signer) Sign(orderID, paymentID string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify compares in constant time. Empty inputs or an unkeyed signer never verify.
func (s Signer) Verify(orderID, paymentID, signature string) bool {
	if len(s.secret) == 0 || orderID == "" || paymentID == "" || signature == "" {
		return false
	}
	expected := s.Sign(orderID, paymentID)
	return hmac.Equal([]byte(expected), []byte(signature))
}
