package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// PaymentSignature is the digest the gateway sends back with a client-side
// payment callback: HMAC-SHA256 of "orderRef|paymentRef" under the key secret.
func PaymentSignature(orderRef, paymentRef, keySecret string) string {
	mac := hmac.New(sha256.New, []byte(keySecret))
	mac.Write([]byte(orderRef + "|" + paymentRef))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyPaymentSignature checks a client callback signature in constant time.
func VerifyPaymentSignature(orderRef, paymentRef, signature, keySecret string) bool {
	expected := PaymentSignature(orderRef, paymentRef, keySecret)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// VerifyWebhookSignature checks the webhook header digest against the exact
// raw request bytes. Any re-serialization of the payload would break it.
func VerifyWebhookSignature(body []byte, signature, webhookSecret string) bool {
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
