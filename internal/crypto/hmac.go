package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
)

// API key headers.
const (
	HeaderAPIKey       = "X-Updown-Api-Key"
	HeaderAPITimestamp = "X-Updown-Api-Timestamp"
	HeaderAPISignature = "X-Updown-Api-Signature"
)

// APIKeyAuth holds a shared API credential. Requests are signed with
// HMAC-SHA256(secret, timestamp+method+path+body), base64 encoded.
type APIKeyAuth struct {
	Key    string
	Secret string
}

// Enabled reports whether a credential is configured.
func (h APIKeyAuth) Enabled() bool {
	return h.Key != "" && h.Secret != ""
}

// Sign returns the request signature for the given Unix timestamp.
func (h APIKeyAuth) Sign(method, path string, body []byte, unixTS int64) string {
	mac := hmac.New(sha256.New, []byte(h.Secret))
	mac.Write([]byte(strconv.FormatInt(unixTS, 10) + method + path))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Headers returns the headers that authenticate a request.
func (h APIKeyAuth) Headers(method, path string, body []byte, unixTS int64) map[string]string {
	return map[string]string{
		HeaderAPIKey:       h.Key,
		HeaderAPITimestamp: strconv.FormatInt(unixTS, 10),
		HeaderAPISignature: h.Sign(method, path, body, unixTS),
	}
}

// Verify checks key and sig in constant time.
func (h APIKeyAuth) Verify(key, sig, method, path string, body []byte, unixTS int64) bool {
	if !h.Enabled() {
		return false
	}
	keyOK := hmac.Equal([]byte(key), []byte(h.Key))
	sigOK := hmac.Equal([]byte(sig), []byte(h.Sign(method, path, body, unixTS)))
	return keyOK && sigOK
}

// String returns a redacted representation suitable for logging.
func (h APIKeyAuth) String() string {
	redact := func(s string) string {
		if len(s) <= 4 {
			return "****"
		}
		return s[:4] + "****"
	}
	return fmt.Sprintf("APIKeyAuth{key=%s, secret=%s}", redact(h.Key), redact(h.Secret))
}
