package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strconv"
	"time"
)

// Header names set on signed outbound webhook requests.
const (
	HeaderTimestamp = "X-Marginterm-Timestamp"
	HeaderSignature = "X-Marginterm-Signature"
)

// WebhookSigner signs outbound notification payloads so receivers can verify
// they came from this process. The signature is
// base64(HMAC-SHA256(secret, timestamp+body)).
type WebhookSigner struct {
	secret []byte
}

// NewWebhookSigner returns a signer, or nil when secret is empty.
func NewWebhookSigner(secret string) *WebhookSigner {
	if secret == "" {
		return nil
	}
	return &WebhookSigner{secret: []byte(secret)}
}

// Headers returns the timestamp and signature headers for body.
func (s *WebhookSigner) Headers(body []byte) map[string]string {
	return s.HeadersAt(body, time.Now().Unix())
}

// HeadersAt is like Headers but lets the caller supply the Unix timestamp.
func (s *WebhookSigner) HeadersAt(body []byte, unixTS int64) map[string]string {
	ts := strconv.FormatInt(unixTS, 10)
	return map[string]string{
		HeaderTimestamp: ts,
		HeaderSignature: hmacSHA256Base64(s.secret, ts+string(body)),
	}
}

// Verify checks a received signature in constant time.
func (s *WebhookSigner) Verify(body []byte, ts, signature string) bool {
	want := hmacSHA256Base64(s.secret, ts+string(body))
	return hmac.Equal([]byte(want), []byte(signature))
}

// hmacSHA256Base64 computes HMAC-SHA256 of message using key and returns the
// result as a base64 standard-encoded string.
func hmacSHA256Base64(key []byte, message string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
