// Package signature implements the HMAC scheme used to authenticate
// voice-provider webhook deliveries.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// Compute returns the hex HMAC-SHA256 of "<unix-timestamp>.<body>" under
// the shared token. Binding the timestamp into the digest makes captured
// requests expire with the freshness window.
func Compute(token string, timestamp int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(token))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a received signature in constant time.
func Verify(token string, timestamp int64, body []byte, received string) bool {
	expected := Compute(token, timestamp, body)
	return hmac.Equal([]byte(expected), []byte(received))
}
