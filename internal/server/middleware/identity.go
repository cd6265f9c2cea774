package middleware

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/alanyoungcy/updown/internal/crypto"
)

// maxSignedBody bounds how much of a request body is buffered for
// signature checks.
const maxSignedBody = 1 << 20

type callerKey struct{}

// WithCaller returns ctx carrying the authenticated caller.
func WithCaller(ctx context.Context, caller string) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFrom returns the authenticated caller, or "" for anonymous requests.
func CallerFrom(ctx context.Context) string {
	s, _ := ctx.Value(callerKey{}).(string)
	return s
}

// Identity authenticates callers by their personal_sign signature over the
// request. Requests without identity headers pass through anonymously;
// requests with bad or stale signatures are rejected. skew bounds how far
// the signed timestamp may be from now.
func Identity(skew time.Duration, now func() time.Time, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claimed := r.Header.Get(crypto.HeaderAddress)
			if claimed == "" {
				next.ServeHTTP(w, r)
				return
			}

			ts, err := strconv.ParseInt(r.Header.Get(crypto.HeaderTimestamp), 10, 64)
			if err != nil {
				writeUnauthorized(w, "invalid signature timestamp")
				return
			}
			if d := now().Sub(time.Unix(ts, 0)); d > skew || d < -skew {
				writeUnauthorized(w, "signature expired")
				return
			}

			body, err := readBody(r)
			if err != nil {
				writeUnauthorized(w, "unreadable request body")
				return
			}
			addr, err := crypto.VerifyRequest(claimed, r.Header.Get(crypto.HeaderSignature), r.Method, r.URL.Path, ts, body)
			if err != nil {
				logger.WarnContext(r.Context(), "rejected request signature",
					slog.String("claimed", claimed),
					slog.String("path", r.URL.Path),
				)
				writeUnauthorized(w, "invalid signature")
				return
			}

			if slot, ok := r.Context().Value(slotKey{}).(*callerSlot); ok {
				slot.caller = addr.Hex()
			}
			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), addr.Hex())))
		})
	}
}

// readBody buffers the request body and puts it back for the handler.
func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxSignedBody))
	if err != nil {
		return nil, err
	}
	r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}
