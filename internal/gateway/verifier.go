package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignatureHeader carries the provider's webhook signature.
const SignatureHeader = "x-tap-signature"

// HMACVerifier checks a hex HMAC-SHA256 of the raw webhook body.
type HMACVerifier struct {
	secret []byte
}

func NewHMACVerifier(secret string) *HMACVerifier {
	return &HMACVerifier{secret: []byte(secret)}
}

func (v *HMACVerifier) Sign(payload []byte) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify rejects everything when no secret is configured.
func (v *HMACVerifier) Verify(payload []byte, signature string) bool {
	if len(v.secret) == 0 || signature == "" {
		return false
	}
	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(payload)
	return hmac.Equal(got, mac.Sum(nil))
}

// VerifierFunc adapts a function to the verifier interface.
type VerifierFunc func(payload []byte, signature string) bool

func (f VerifierFunc) Verify(payload []byte, signature string) bool {
	return f(payload, signature)
}
