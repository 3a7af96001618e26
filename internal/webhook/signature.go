// Package webhook implements the inbound webhook admission gateway: raw-body
// signature verification per provider, an idempotency ledger keyed by
// (provider, event id), and type-keyed handler dispatch.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Supported providers. Each maps to one ingestion endpoint and one signature
// scheme.
const (
	ProviderStripe = "stripe"
	ProviderGitHub = "github"
	ProviderMailer = "mailer"
)

// Provider-specific request headers.
const (
	StripeSignatureHeader = "Stripe-Signature"
	GitHubSignatureHeader = "X-Hub-Signature-256"
	GitHubEventHeader     = "X-Github-Event"
	GitHubDeliveryHeader  = "X-Github-Delivery"
)

// Verifier checks inbound payload authenticity against per-provider secrets.
// All digest comparisons are constant time; the raw request bytes must be
// passed exactly as received, since any re-serialization changes the digest.
type Verifier struct {
	stripeSecret string
	githubSecret string
	tolerance    time.Duration
	now          func() time.Time
}

// NewVerifier creates a verifier. tolerance bounds how far a stripe signature
// timestamp may drift from the server clock; zero disables the check.
func NewVerifier(stripeSecret, githubSecret string, tolerance time.Duration) *Verifier {
	return &Verifier{
		stripeSecret: stripeSecret,
		githubSecret: githubSecret,
		tolerance:    tolerance,
		now:          time.Now,
	}
}

// Verify checks the signature header for a provider against the raw body.
// A nil return means the payload is authentic. Mailer events carry no
// signature and are trusted on network origin alone.
func (v *Verifier) Verify(provider string, body []byte, signatureHeader string) error {
	switch provider {
	case ProviderStripe:
		return v.verifyStripe(body, signatureHeader)
	case ProviderGitHub:
		return v.verifyGitHub(body, signatureHeader)
	case ProviderMailer:
		return nil
	default:
		return fmt.Errorf("unknown webhook provider %q", provider)
	}
}

// verifyStripe checks a timestamped HMAC: the header carries comma-separated
// key=value pairs with a unix timestamp t and hex digest v1, and the digest
// covers "{t}.{body}" so the timestamp cannot be swapped after signing.
func (v *Verifier) verifyStripe(body []byte, header string) error {
	if header == "" {
		return fmt.Errorf("missing %s header", StripeSignatureHeader)
	}

	var timestamp string
	var signatures []string
	for _, pair := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(pair), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			timestamp = value
		case "v1":
			signatures = append(signatures, value)
		}
	}

	if timestamp == "" || len(signatures) == 0 {
		return fmt.Errorf("malformed %s header", StripeSignatureHeader)
	}

	if v.tolerance > 0 {
		ts, err := strconv.ParseInt(timestamp, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid signature timestamp: %w", err)
		}
		drift := v.now().Sub(time.Unix(ts, 0))
		if drift < 0 {
			drift = -drift
		}
		if drift > v.tolerance {
			return fmt.Errorf("signature timestamp outside tolerance")
		}
	}

	mac := hmac.New(sha256.New, []byte(v.stripeSecret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	expected := mac.Sum(nil)

	// The header may carry several v1 signatures during secret rotation
	for _, sig := range signatures {
		decoded, err := hex.DecodeString(sig)
		if err != nil {
			continue
		}
		if hmac.Equal(decoded, expected) {
			return nil
		}
	}

	return fmt.Errorf("signature mismatch")
}

// verifyGitHub checks a prefixed HMAC: "sha256=" + hex(HMAC-SHA256(body)).
func (v *Verifier) verifyGitHub(body []byte, header string) error {
	if header == "" {
		return fmt.Errorf("missing %s header", GitHubSignatureHeader)
	}

	encoded, found := strings.CutPrefix(header, "sha256=")
	if !found {
		return fmt.Errorf("malformed %s header", GitHubSignatureHeader)
	}

	decoded, err := hex.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("malformed signature encoding: %w", err)
	}

	mac := hmac.New(sha256.New, []byte(v.githubSecret))
	mac.Write(body)
	if !hmac.Equal(decoded, mac.Sum(nil)) {
		return fmt.Errorf("signature mismatch")
	}

	return nil
}

// SignStripePayload produces a stripe-style signature header for a payload.
// Used by tests and the local delivery simulator.
func SignStripePayload(secret string, body []byte, at time.Time) string {
	timestamp := strconv.FormatInt(at.Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return fmt.Sprintf("t=%s,v1=%s", timestamp, hex.EncodeToString(mac.Sum(nil)))
}

// SignGitHubPayload produces a github-style signature header for a payload.
func SignGitHubPayload(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
