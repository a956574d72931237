package logging

import (
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// RequestIDHeader is the HTTP header for request ID
const RequestIDHeader = "X-Request-ID"

// RequestLogger tags every request with an ID and logs its outcome.
func RequestLogger(log Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := r.Header.Get(RequestIDHeader)
			if requestID == "" {
				requestID = chimiddleware.GetReqID(r.Context())
			}
			if requestID == "" {
				requestID = uuid.New().String()
			}
			w.Header().Set(RequestIDHeader, requestID)

			reqLog := log.WithRequestID(requestID).WithFields(
				Method(r.Method),
				Path(r.URL.Path),
				RemoteIP(r.RemoteAddr),
			)
			ctx := WithRequestID(r.Context(), requestID)
			ctx = WithLogger(ctx, reqLog)

			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			fields := []Field{
				Status(status),
				Duration("duration_ms", time.Since(start)),
				Int("bytes_out", ww.BytesWritten()),
			}
			switch {
			case status >= 500:
				reqLog.Error("Server error response", nil, fields...)
			case status >= 400:
				reqLog.Warn("Client error response", fields...)
			default:
				reqLog.Info("Request completed", fields...)
			}
		})
	}
}
