package whatsapp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/jortega-dev/warelay/internal/logging"
)

// signaturePrefix is the scheme tag carried in X-Hub-Signature-256.
const signaturePrefix = "sha256="

// Verifier checks webhook request signatures. An empty secret is a
// permissive fallback: every request passes, with a warning logged once
// per request.
type Verifier struct {
	secret string
	log    *logging.Logger
}

// NewVerifier creates a signature verifier for the given app secret.
func NewVerifier(secret string, log *logging.Logger) *Verifier {
	return &Verifier{secret: secret, log: log.Sub("signature")}
}

// Verify checks the X-Hub-Signature-256 header value against an
// HMAC-SHA256 of the raw request body, in constant time.
func (v *Verifier) Verify(body []byte, header string) bool {
	if v.secret == "" {
		v.log.Warn().Msg("app secret not configured, skipping signature check")
		return true
	}
	if !strings.HasPrefix(header, signaturePrefix) {
		v.log.Warn().Msg("missing or malformed signature header")
		return false
	}
	received := strings.TrimPrefix(header, signaturePrefix)

	mac := hmac.New(sha256.New, []byte(v.secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(received))
}
