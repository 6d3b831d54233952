package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	log "github.com/sirupsen/logrus"
)

// RequestLogger logs one line per request with its status and latency.
func RequestLogger() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				status := ww.Status()
				if status == 0 {
					// hijacked websocket connections never write a status
					status = http.StatusSwitchingProtocols
				}
				log.WithFields(log.Fields{
					"requestId": middleware.GetReqID(r.Context()),
					"method":    r.Method,
					"uri":       r.RequestURI,
					"remote":    r.RemoteAddr,
					"status":    status,
					"duration":  time.Since(start).String(),
				}).Info("http request")
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
