// internal/middleware/logging.go
package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

// LogMiddleware logs one line per request with its status and duration.
// Server errors are logged at Error level, client errors at Warn.
func LogMiddleware(logger *logrus.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				// hijacked (websocket) or nothing written
				status = http.StatusOK
			}
			entry := logger.WithFields(logrus.Fields{
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     status,
				"bytes":      ww.BytesWritten(),
				"duration":   time.Since(start),
				"remote":     r.RemoteAddr,
				"request_id": chimw.GetReqID(r.Context()),
			})
			switch {
			case status >= 500:
				entry.Error("HTTP request")
			case status >= 400:
				entry.Warn("HTTP request")
			default:
				entry.Info("HTTP request")
			}
		})
	}
}

func LogWebSocketConnect(logger *logrus.Logger, r *http.Request, channel string) {
	logger.WithFields(logrus.Fields{
		"remote":  r.RemoteAddr,
		"path":    r.URL.Path,
		"channel": channel,
	}).Info("WebSocket connected")
}

// LogWebSocketDisconnect logs the end of a subscription. err is nil for a clean close.
func LogWebSocketDisconnect(logger *logrus.Logger, r *http.Request, channel string, err error) {
	entry := logger.WithFields(logrus.Fields{
		"remote":  r.RemoteAddr,
		"path":    r.URL.Path,
		"channel": channel,
	})
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Info("WebSocket disconnected")
}
