// Package crypto provides HMAC authentication for worker heartbeat requests.
package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strconv"
	"time"
)

// maxClockSkew bounds how far a signed timestamp may drift from server time
// before the signature is rejected outright.
const maxClockSkew = 5 * time.Minute

// HMACAuth signs and verifies worker requests. The signature covers
// timestamp+worker+body so a captured heartbeat cannot be replayed later or
// attributed to a different worker.
type HMACAuth struct {
	Secret string
}

// Sign computes HMAC-SHA256(secret, timestamp+worker+body) as base64.
func (h *HMACAuth) Sign(worker, body string, unixTS int64) string {
	message := strconv.FormatInt(unixTS, 10) + worker + body
	return hmacSHA256Base64([]byte(h.Secret), message)
}

// Verify checks a signature against the given components. It returns false
// when the signature does not match or the timestamp is outside the allowed
// clock skew relative to now.
func (h *HMACAuth) Verify(worker, body, signature string, unixTS int64, now time.Time) bool {
	skew := now.Unix() - unixTS
	if skew < 0 {
		skew = -skew
	}
	if skew > int64(maxClockSkew/time.Second) {
		return false
	}

	expected := h.Sign(worker, body, unixTS)
	return hmac.Equal([]byte(expected), []byte(signature))
}

func hmacSHA256Base64(key []byte, message string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
