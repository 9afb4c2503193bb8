package server

import (
	"crypto/subtle"
	"net"
	"net/http"
	"strings"
	"time"

	_ "go-aquamark/docs"
	"go-aquamark/internal/handlers"
	"go-aquamark/internal/logging"
	"go-aquamark/internal/metrics"
	"go-aquamark/internal/watermark"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
)

// Only allow requests from localhost to /swagger/*
func localhostOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, _ := net.SplitHostPort(r.RemoteAddr)
		if host != "127.0.0.1" && host != "::1" && host != "localhost" {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// bearerAuth requires "Authorization: Bearer <token>". An empty token
// rejects everything.
func bearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(got)), []byte(token)) != 1 {
				w.Header().Set("WWW-Authenticate", `Bearer realm="aquamark"`)
				w.Header().Set("X-Error-Code", watermark.KindUnauthorized.Code())
				http.Error(w, "Unauthorized.", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func observe(m *metrics.Metrics, route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			m.ObserveRequest(route, time.Since(start))
		})
	}
}

func (s *Server) RegisterRoutes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(logging.Middleware(s.log.Named("access")))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"https://*", "http://*"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		ExposedHeaders: []string{"Content-Disposition", "X-Error-Code", "X-Batch-ID"},
	}))

	h := s.handler
	r.Get("/", h.Root)
	r.Get("/healthz", h.Healthz)
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	r.With(localhostOnly).Get("/swagger/*", httpSwagger.WrapHandler)

	r.With(observe(s.metrics, handlers.RouteDecrypt)).Post("/decrypt", h.Decrypt)
	r.Group(func(api chi.Router) {
		api.Use(bearerAuth(s.cfg.APIToken))
		api.With(observe(s.metrics, handlers.RouteWatermark)).Post("/watermark", h.Watermark)
		api.With(observe(s.metrics, handlers.RouteBatchWatermark)).Post("/batch-watermark", h.BatchWatermark)
	})

	return r
}
