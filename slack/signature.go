package slack

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

const (
	// SignatureVersion prefixes both the signed base string and the
	// rendered digest, per the platform's v0 signing scheme.
	SignatureVersion = "v0"

	// MaxSignatureAge is the replay window. Requests whose timestamp
	// header is further than this from the wall clock are rejected even
	// when the digest matches.
	MaxSignatureAge = 300 * time.Second
)

// VerifySignature reports whether sigHeader is a valid signature over the
// raw request body. The body must be the exact bytes as received, before
// any JSON round-trip. Every failure mode (missing header, malformed
// timestamp, stale timestamp, digest mismatch) yields false; this function
// never returns an error because the caller only acts on the verdict.
func VerifySignature(secret string, body []byte, tsHeader, sigHeader string, now time.Time) bool {
	if secret == "" {
		return false
	}
	tsHeader = strings.TrimSpace(tsHeader)
	sigHeader = strings.TrimSpace(sigHeader)
	if tsHeader == "" || sigHeader == "" {
		return false
	}
	ts, err := strconv.ParseInt(tsHeader, 10, 64)
	if err != nil {
		return false
	}
	skew := now.Unix() - ts
	if skew < 0 {
		skew = -skew
	}
	if skew > int64(MaxSignatureAge/time.Second) {
		return false
	}
	expected := ComputeSignature(secret, tsHeader, body)
	return hmac.Equal([]byte(expected), []byte(sigHeader))
}

// ComputeSignature renders the v0 digest over "v0:{timestamp}:{rawBody}".
func ComputeSignature(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(SignatureVersion + ":" + timestamp + ":"))
	mac.Write(body)
	return SignatureVersion + "=" + hex.EncodeToString(mac.Sum(nil))
}
