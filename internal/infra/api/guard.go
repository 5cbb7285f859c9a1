package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"telegram-ai-consult/internal/infra/logging"
)

type Middleware func(http.Handler) http.Handler

// TraceID reuses an inbound X-Request-ID or mints one, and echoes it back.
func TraceID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tid := r.Header.Get("X-Request-ID")
			if tid == "" || len(tid) > 64 {
				tid = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", tid)
			ctx := logging.WithTraceID(r.Context(), tid)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestLog writes one line per request. Gateway notices on resultPath are
// tagged with their InvId so a payment can be followed across log lines;
// 5xx responses log at error level and 4xx at warn.
func RequestLog(logger *zerolog.Logger, resultPath string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			if r.URL.Path == resultPath && r.ParseForm() == nil {
				if inv, err := strconv.ParseInt(r.Form.Get("InvId"), 10, 64); err == nil && inv > 0 {
					r = r.WithContext(logging.WithInvoiceID(r.Context(), inv))
				}
			}
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			l := logging.With(r.Context(), logger)
			ev := l.Info()
			switch {
			case rec.status >= 500:
				ev = l.Error()
			case rec.status >= 400:
				ev = l.Warn()
			}
			ev.Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", rec.status).
				Int("bytes", rec.bytes).
				Dur("duration", time.Since(start)).
				Msg("http_request")
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusRecorder) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

func Recover(logger *zerolog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					l := logging.With(r.Context(), logger)
					l.Error().Interface("panic", rec).Msg("panic recovered")
					http.Error(w, "internal error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func Timeout(d time.Duration) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
