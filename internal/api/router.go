package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sdvuuv/spitec/internal/config"
	"github.com/sdvuuv/spitec/internal/metrics"
	"github.com/sdvuuv/spitec/pkg/logger"
)

// Router wires the HTTP API
type Router struct {
	handler  *Handler
	config   *config.Config
	logger   *logger.Logger
	wsServer http.HandlerFunc
	static   http.Handler
}

// NewRouter creates a new router. wsHandler serves /ws and may be nil.
func NewRouter(handler *Handler, cfg *config.Config, wsHandler http.HandlerFunc, log *logger.Logger) *Router {
	r := &Router{
		handler:  handler,
		config:   cfg,
		logger:   log.Named("router"),
		wsServer: wsHandler,
	}

	if cfg.Server.StaticDir != "" {
		static, err := NewStaticFileHandler(cfg.Server.StaticDir, log)
		if err != nil {
			r.logger.Warn("Static files disabled", logger.Error(err))
		} else {
			r.static = static
		}
	}
	return r
}

// Routes returns the router handler
func (r *Router) Routes() http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(r.requestLogger)
	router.Use(middleware.Recoverer)
	if r.config.Metrics.Enabled {
		router.Use(metrics.Middleware)
	}

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: r.config.Server.CORSAllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	router.Get("/health", r.handler.GetHealth)
	if r.config.Metrics.Enabled {
		router.Handle(r.config.Metrics.Path, metrics.Handler())
	}

	router.Route("/api/v1", func(api chi.Router) {
		if r.config.RateLimit.Enabled {
			limiter := newClientLimiter(r.config.RateLimit.RequestsPerSecond, r.config.RateLimit.Burst)
			api.Use(limiter.middleware)
		}

		api.Get("/config", r.handler.GetConfig)
		api.Post("/reload", r.handler.PostReload)

		api.Route("/sites", func(sites chi.Router) {
			sites.Get("/", r.handler.GetSites)
			sites.Get("/region/bbox", r.handler.SelectBoundingBox)
			sites.Get("/region/circle", r.handler.SelectCircle)
			sites.Get("/{site}/satellites", r.handler.GetSatellites)
		})

		api.Get("/trajectories/{site}/{sat}", r.handler.GetTrajectory)
		api.Post("/view", r.handler.PostView)
		api.Get("/series", r.handler.GetSeries)
	})

	if r.wsServer != nil {
		router.Get("/ws", r.wsServer)
	}

	if r.static != nil {
		router.Handle("/*", r.static)
	}

	return router
}

// requestLogger logs each request through the application logger
func (r *Router) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
		next.ServeHTTP(ww, req)

		r.logger.Debug("HTTP request",
			logger.String("method", req.Method),
			logger.String("path", req.URL.Path),
			logger.Int("status", ww.Status()),
			logger.Int("bytes", ww.BytesWritten()),
			logger.Duration("duration", time.Since(start)),
			logger.String("request_id", middleware.GetReqID(req.Context())))
	})
}
