package httpapi

import (
	"net/http"
	"time"

	"github.com/ulikoehler/YakDB-sub001/lib/lifecycle"
)

// --------------------------------------------------------------------------
// Middleware (lifecycle)
// --------------------------------------------------------------------------

// tracked holds a lifecycle token for the duration of a request
func tracked(registry *lifecycle.Registry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			release, err := registry.Acquire("http")
			if err != nil {
				writeJSON(w, http.StatusServiceUnavailable, NewErrorResponse(err.Error()))
				return
			}
			defer release()
			next.ServeHTTP(w, r)
		})
	}
}

// --------------------------------------------------------------------------
// Middleware (logging)
// --------------------------------------------------------------------------

// responseWriter is a custom ResponseWriter that captures status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader captures the status code before writing it
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// logged is a middleware that logs HTTP requests at debug level
func logged(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create custom response writer to capture status code
		rw := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		// Process request
		next.ServeHTTP(rw, r)

		Logger.Debugf("%s %s => %d took %s", r.Method, r.URL.Path, rw.statusCode, time.Since(start))
	})
}
