// SPDX-License-Identifier: MIT

package middleware

import (
	"net/http"
	"time"

	"github.com/kahvel/notifyd/internal/log"
)

// RequestLogger logs one structured line per completed request.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		lw := &loggingWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(lw, r)

		logger := log.WithComponentFromContext(r.Context(), "http")
		logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", lw.statusCode).
			Dur("duration", time.Since(start)).
			Str("remote_addr", r.RemoteAddr).
			Msg("request completed")
	})
}

type loggingWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (lw *loggingWriter) WriteHeader(statusCode int) {
	if !lw.written {
		lw.statusCode = statusCode
		lw.written = true
	}
	lw.ResponseWriter.WriteHeader(statusCode)
}

func (lw *loggingWriter) Write(b []byte) (int, error) {
	if !lw.written {
		lw.WriteHeader(http.StatusOK)
	}
	return lw.ResponseWriter.Write(b)
}

func (lw *loggingWriter) Flush() {
	if f, ok := lw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
