package provider

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignatureHeader is the header carrying the webhook body signature.
const SignatureHeader = "X-Webhook-Signature"

const signaturePrefix = "sha256="

// SignBody computes the hex HMAC-SHA256 signature of a raw webhook body,
// including the scheme prefix the provider sends.
func SignBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a webhook signature header against the raw body
// using constant-time comparison. The header must carry the "sha256="
// prefix followed by lowercase hex.
func VerifySignature(secret string, body []byte, header string) bool {
	header = strings.TrimSpace(header)
	if !strings.HasPrefix(header, signaturePrefix) {
		return false
	}
	expected := SignBody(secret, body)
	return hmac.Equal([]byte(strings.ToLower(header)), []byte(expected))
}
