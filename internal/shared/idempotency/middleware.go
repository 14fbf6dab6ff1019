package idempotency

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/sentinel-ops/casedesk/internal/shared/identity"
	"github.com/sentinel-ops/casedesk/internal/shared/metrics"
)

const (
	// HeaderKey is the request header carrying the client's key
	HeaderKey = "Idempotency-Key"
	// HeaderReplayed marks a response served from the store
	HeaderReplayed = "Idempotent-Replayed"

	maxKeyLength = 255
)

// Middleware replays the first completed response for a repeated key. Keys
// are scoped to the caller principal and the request path, so it must run
// after the identity middleware. Requests without the header pass through.
func Middleware(store Store, ttl time.Duration, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientKey := r.Header.Get(HeaderKey)
			if r.Method != http.MethodPost || clientKey == "" {
				next.ServeHTTP(w, r)
				return
			}
			if len(clientKey) > maxKeyLength {
				writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "idempotency key too long")
				return
			}

			ctx := r.Context()
			key := string(identity.PrincipalFrom(ctx)) + "|" + r.URL.Path + "|" + clientKey

			stored, err := store.Claim(ctx, key, ttl)
			switch {
			case errors.Is(err, ErrInFlight):
				writeError(w, http.StatusConflict, "IDEMPOTENCY_IN_FLIGHT", err.Error())
				return
			case err != nil:
				log.ErrorContext(ctx, "idempotency store unavailable", "error", err)
				writeError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "idempotency store unavailable")
				return
			case stored != nil:
				metrics.RecordIdempotentReplay()
				w.Header().Set(HeaderReplayed, "true")
				if stored.ContentType != "" {
					w.Header().Set("Content-Type", stored.ContentType)
				}
				w.WriteHeader(stored.Status)
				w.Write(stored.Body)
				return
			}

			release := func() {
				if err := store.Release(context.WithoutCancel(ctx), key); err != nil {
					log.ErrorContext(ctx, "failed to release idempotency key", "error", err)
				}
			}
			// A panic leaves no response to replay; free the key for retries
			// before the recoverer further out sees it.
			defer func() {
				if p := recover(); p != nil {
					release()
					panic(p)
				}
			}()

			rec := &recorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			// Server errors are not final; let the client retry.
			if rec.status >= http.StatusInternalServerError {
				release()
				return
			}

			resp := Response{
				Status:      rec.status,
				ContentType: rec.Header().Get("Content-Type"),
				Body:        rec.body.Bytes(),
			}
			if err := store.Complete(ctx, key, resp, ttl); err != nil {
				log.ErrorContext(ctx, "failed to store idempotent response", "error", err)
			}
		})
	}
}

// recorder tees the response into a buffer
type recorder struct {
	http.ResponseWriter
	status      int
	body        bytes.Buffer
	wroteHeader bool
}

func (r *recorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *recorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message, "code": code})
}
