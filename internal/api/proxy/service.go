package proxy

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/skybi/grade-proxy/internal/acquire"
	"github.com/skybi/grade-proxy/internal/api/schema"
	"github.com/skybi/grade-proxy/internal/config"
	"github.com/skybi/grade-proxy/internal/ratelimit"
	"github.com/skybi/grade-proxy/internal/session"
	"golang.org/x/sync/semaphore"
	"net/http"
	"sync"
	"time"
)

const (
	// rateLimitIdleLifetime is the time after which the limiter of an inactive client is dropped
	rateLimitIdleLifetime = 10 * time.Minute
	rateLimitCleanupTick  = time.Minute
)

// Service represents the grade proxy API service
type Service struct {
	Config   *config.Config
	Acquirer acquire.Acquirer

	initOnce sync.Once
	router   chi.Router

	mtx    sync.Mutex
	server *http.Server
	closed bool

	writer         *schema.Writer
	sessionOptions session.Options
	limiter        *ratelimit.Registry
	browsers       *semaphore.Weighted
	registry       *prometheus.Registry
	metrics        *metrics
}

// Handler returns the HTTP handler serving every proxy endpoint.
// The rate limiter cleanup task is started on first use; Shutdown stops it.
func (service *Service) Handler() http.Handler {
	service.initOnce.Do(service.initialize)
	return service.router
}

// Startup starts up the proxy API and blocks until it is shut down
func (service *Service) Startup() error {
	server := &http.Server{
		Addr:              service.Config.ListenAddress,
		Handler:           service.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	service.mtx.Lock()
	if service.closed {
		service.mtx.Unlock()
		return http.ErrServerClosed
	}
	service.server = server
	service.mtx.Unlock()
	return server.ListenAndServe()
}

// Shutdown shuts down the proxy API
func (service *Service) Shutdown() {
	service.mtx.Lock()
	defer service.mtx.Unlock()
	service.closed = true
	if service.server != nil {
		service.server.Close()
		service.server = nil
	}
	if service.limiter != nil {
		service.limiter.StopCleanupTask()
	}
}

func (service *Service) initialize() {
	// Create the HTTP schema writer
	service.writer = &schema.Writer{
		InternalErrorHook: func(err error) {
			log.Error().Err(err).Msg("the proxy API experienced an unexpected error")
		},
	}

	service.sessionOptions = service.Config.SessionOptions()

	// Browser launches are expensive; limit them per client and overall
	limiter := ratelimit.New(service.Config.RateLimitPerMinute, service.Config.RateLimitBurst, rateLimitIdleLifetime)
	service.mtx.Lock()
	service.limiter = limiter
	if !service.closed {
		limiter.ScheduleCleanupTask(rateLimitCleanupTick)
	}
	service.mtx.Unlock()
	service.browsers = semaphore.NewWeighted(int64(service.Config.BrowserConcurrency))

	service.registry = prometheus.NewRegistry()
	service.metrics = newMetrics(service.registry)

	// Create the HTTP router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	if service.Config.TrustProxyHeaders {
		router.Use(middleware.RealIP)
	}
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: service.Config.AllowedOrigins,
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodOptions,
		},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: false,
	}))
	router.NotFound(func(writer http.ResponseWriter, _ *http.Request) {
		service.writer.WriteFailure(writer, http.StatusNotFound, messageNotFound)
	})
	router.MethodNotAllowed(func(writer http.ResponseWriter, _ *http.Request) {
		service.writer.WriteFailure(writer, http.StatusMethodNotAllowed, messageMethodNotAllowed)
	})

	// Register the proxy endpoints
	router.With(service.MiddlewareRateLimit).Post("/med-gid", service.EndpointFetchGID)
	router.Post("/med-scores", service.EndpointFetchScores)

	// Register the operational endpoints
	router.Get("/healthz", service.EndpointHealth)
	router.Handle("/metrics", promhttp.HandlerFor(service.registry, promhttp.HandlerOpts{}))

	service.router = router
}
