package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime/debug"
)

// headerTracker remembers whether the handler already started its response.
type headerTracker struct {
	http.ResponseWriter
	started bool
}

func (h *headerTracker) WriteHeader(code int) {
	h.started = true
	h.ResponseWriter.WriteHeader(code)
}

func (h *headerTracker) Write(b []byte) (int, error) {
	h.started = true
	return h.ResponseWriter.Write(b)
}

// Recovery turns a panicking status handler into a JSON 500 carrying the
// request id. A response already under way is left as is.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tw := &headerTracker{ResponseWriter: w}
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			requestID := GetRequestID(r.Context())
			slog.Error("Status handler panicked",
				"error", rec,
				"stack_trace", string(debug.Stack()),
				"method", r.Method,
				"path", r.URL.Path,
				"request_id", requestID,
				"response_started", tw.started,
			)
			if tw.started {
				return
			}

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]string{
				"error":      http.StatusText(http.StatusInternalServerError),
				"request_id": requestID,
			})
		}()

		next.ServeHTTP(tw, r)
	})
}
