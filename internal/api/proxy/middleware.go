package proxy

import (
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
	"net"
	"net/http"
	"time"
)

// MiddlewareRateLimit rejects requests of clients that exceeded their rate limit
func (service *Service) MiddlewareRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if !service.limiter.Allow(clientKey(request)) {
			service.metrics.rateLimited.Inc()
			log.Debug().
				Str("request_id", middleware.GetReqID(request.Context())).
				Str("client", clientKey(request)).
				Msg("rejected a rate limited request")
			service.writer.WriteFailure(writer, http.StatusTooManyRequests, messageRateLimited)
			return
		}
		next.ServeHTTP(writer, request)
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		started := time.Now()
		wrapped := middleware.NewWrapResponseWriter(writer, request.ProtoMajor)
		defer func() {
			log.Info().
				Str("request_id", middleware.GetReqID(request.Context())).
				Str("method", request.Method).
				Str("path", request.URL.Path).
				Str("remote", request.RemoteAddr).
				Int("status", wrapped.Status()).
				Dur("duration", time.Since(started)).
				Msg("handled request")
		}()
		next.ServeHTTP(wrapped, request)
	})
}

// clientKey identifies the client of a request by its address without the port
func clientKey(request *http.Request) string {
	host, _, err := net.SplitHostPort(request.RemoteAddr)
	if err != nil {
		return request.RemoteAddr
	}
	return host
}
