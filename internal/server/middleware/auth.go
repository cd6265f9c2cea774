package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/alanyoungcy/updown/internal/crypto"
)

// APIKey requires an HMAC-signed API key on every state-changing request.
// Reads stay public. When auth is not configured the middleware passes all
// requests through.
func APIKey(auth crypto.APIKeyAuth, skew time.Duration, now func() time.Time) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !auth.Enabled() || r.Method == http.MethodGet || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get(crypto.HeaderAPIKey)
			if key == "" {
				writeUnauthorized(w, "missing api key")
				return
			}
			ts, err := strconv.ParseInt(r.Header.Get(crypto.HeaderAPITimestamp), 10, 64)
			if err != nil {
				writeUnauthorized(w, "invalid api timestamp")
				return
			}
			if d := now().Sub(time.Unix(ts, 0)); d > skew || d < -skew {
				writeUnauthorized(w, "api signature expired")
				return
			}
			body, err := readBody(r)
			if err != nil {
				writeUnauthorized(w, "unreadable request body")
				return
			}
			if !auth.Verify(key, r.Header.Get(crypto.HeaderAPISignature), r.Method, r.URL.Path, body, ts) {
				writeUnauthorized(w, "invalid api key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// writeUnauthorized sends a 401 response with a JSON error body.
func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}
