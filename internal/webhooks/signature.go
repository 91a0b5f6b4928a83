package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// SignHMAC returns the hex-encoded HMAC-SHA256 of body under secret.
func SignHMAC(secret string, body []byte) string {
	m := hmac.New(sha256.New, []byte(secret))
	m.Write(body)
	return hex.EncodeToString(m.Sum(nil))
}

// VerifyHMAC reports whether sig matches the HMAC of body under secret,
// comparing in constant time.
func VerifyHMAC(secret string, body []byte, sig string) bool {
	want := SignHMAC(secret, body)
	return hmac.Equal([]byte(want), []byte(sig))
}
