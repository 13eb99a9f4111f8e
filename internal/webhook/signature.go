// Package webhook provides ingestion of merchant-onboarding status webhooks
// from the payment gateway: signature verification, duplicate suppression via
// an idempotency ledger, and anti-regression status application.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignaturePrefix is the scheme prefix the gateway puts on its signature
// header: "v1=<hex sha256 HMAC of the raw body>".
const SignaturePrefix = "v1="

// VerifySignature authenticates a raw webhook payload against its signature
// header using the shared secret. Comparison is constant-time to defeat
// timing side channels. Malformed input is simply "not verified"; this never
// panics and never returns an error.
func VerifySignature(payload []byte, header, secret string) bool {
	if secret == "" || !strings.HasPrefix(header, SignaturePrefix) {
		return false
	}

	provided, err := hex.DecodeString(strings.TrimPrefix(header, SignaturePrefix))
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := mac.Sum(nil)

	// hmac.Equal also rejects length mismatches without leaking timing.
	return hmac.Equal(provided, expected)
}

// ComputeSignature produces the signature header value for a payload.
// Used by tests and by outbound webhook simulation tooling.
func ComputeSignature(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return SignaturePrefix + hex.EncodeToString(mac.Sum(nil))
}
