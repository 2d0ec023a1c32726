package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/Strob0t/CaseForge/internal/port/cache"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	headerReplayed       = "Idempotent-Replayed"

	// maxIdempotencyBody bounds both the fingerprinted request body and the
	// stored response. Larger requests pass through without replay.
	maxIdempotencyBody = 1 << 20
)

type idempotencyEntry struct {
	Fingerprint string `json:"fingerprint"`
	StatusCode  int    `json:"status_code"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body"`
}

// Idempotency replays the stored response of a mutating request whose
// Idempotency-Key was already served for the same method, path and body.
// Reusing a key with a different body answers 422. Only 2xx responses are
// stored, so a failed import can be retried under the same key. Entries
// live for ttl in c, which is shared across instances when tiered.
func Idempotency(c cache.Cache, ttl time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(headerIdempotencyKey)
			if key == "" || r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			body, fits, err := peekBody(r)
			if err != nil || !fits {
				next.ServeHTTP(w, r)
				return
			}
			sum := sha256.Sum256(body)
			fingerprint := hex.EncodeToString(sum[:])
			key = "idem:" + r.Method + ":" + r.URL.Path + ":" + key

			if data, ok, err := c.Get(r.Context(), key); err == nil && ok {
				var cached idempotencyEntry
				if err := json.Unmarshal(data, &cached); err != nil {
					slog.WarnContext(r.Context(), "idempotency: corrupt cache entry", "key", key)
				} else {
					replay(w, &cached, fingerprint)
					return
				}
			}

			rec := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rec, r)

			if rec.statusCode < 200 || rec.statusCode > 299 || rec.body.Len() > maxIdempotencyBody {
				return
			}
			data, err := json.Marshal(idempotencyEntry{
				Fingerprint: fingerprint,
				StatusCode:  rec.statusCode,
				ContentType: w.Header().Get("Content-Type"),
				Body:        rec.body.Bytes(),
			})
			if err != nil {
				return
			}
			if err := c.Set(r.Context(), key, data, ttl); err != nil {
				slog.WarnContext(r.Context(), "idempotency: failed to store response", "key", key, "error", err)
			}
		})
	}
}

func replay(w http.ResponseWriter, e *idempotencyEntry, fingerprint string) {
	if e.Fingerprint != fingerprint {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":"Idempotency-Key was already used with a different request body"}`))
		return
	}
	if e.ContentType != "" {
		w.Header().Set("Content-Type", e.ContentType)
	}
	w.Header().Set(headerReplayed, "true")
	w.WriteHeader(e.StatusCode)
	_, _ = w.Write(e.Body)
}

// peekBody reads up to maxIdempotencyBody bytes and restores r.Body so the
// handler sees the full stream. fits is false when the body is larger.
func peekBody(r *http.Request) (body []byte, fits bool, err error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, true, nil
	}
	buf, err := io.ReadAll(io.LimitReader(r.Body, maxIdempotencyBody+1))
	if err != nil {
		return nil, false, err
	}
	rest := r.Body
	r.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(buf), rest), rest}
	return buf, len(buf) <= maxIdempotencyBody, nil
}

// responseRecorder tees the response into body while writing it through.
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
}

func (r *responseRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
