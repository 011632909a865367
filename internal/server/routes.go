package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

func (i *Instance) routes(h *handlers) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog(i.logger))
	r.Use(middleware.Recoverer)
	r.Use(securityHeaders)

	r.Get("/info", h.handleInfo)
	r.Get("/localEvents", h.handleEvents)
	r.Get("/localEvents/ws", h.handleEventsWS)
	r.With(h.requireReferer).Get("/localToken", h.handleToken)
	r.Handle("/metrics", i.metrics.Handler())

	r.Route("/ddb", func(r chi.Router) {
		r.Use(h.requireOrigin)
		r.Post("/run", h.handleRun)
		r.Post("/interrupt", h.handleInterrupt)
		r.Post("/tokenize", h.handleTokenize)
	})
	return r
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("Content-Security-Policy", "default-src 'self'")
		next.ServeHTTP(w, r)
	})
}

// requireOrigin rejects requests whose Origin is not the server's own.
func (h *handlers) requireOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Origin") != h.localURL {
			h.logger.Warn().Str("origin", r.Header.Get("Origin")).Str("path", r.URL.Path).Msg("rejected cross-origin request")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireReferer guards GET endpoints, which browsers send without Origin.
func (h *handlers) requireReferer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Referer(), h.localURL) {
			h.logger.Warn().Str("referer", r.Referer()).Str("path", r.URL.Path).Msg("rejected cross-origin request")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func accessLog(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Debug().
					Str("request_id", middleware.GetReqID(r.Context())).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Str("remote", r.RemoteAddr).
					Int("status", ww.Status()).
					Int("bytes", ww.BytesWritten()).
					Dur("elapsed", time.Since(start)).
					Msg("request")
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
