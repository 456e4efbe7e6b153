package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Get("/health", s.handleHealth)
	r.Get("/metrics", s.handleMetrics)
	r.Post("/webhook", s.handleWebhook)

	// Bootstrap: issues the device token when JWTs are enabled.
	r.Post("/register", s.handleRegister)

	// Admin reads, gated on X-User-ID.
	r.Get("/devices", s.handleListDevices)

	r.Group(func(r chi.Router) {
		r.Use(s.deviceAuthMiddleware)

		r.Post("/heartbeat", s.handleHeartbeat)
		r.Post("/command", s.handleCommand)
		r.Get("/devices/{id}/commands/next", s.handleNextCommand)
		r.Get(s.wsPath(), s.handleWebSocket)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	return r
}

func (s *Server) wsPath() string {
	if s.wsCfg.Path == "" {
		return "/ws"
	}
	return s.wsCfg.Path
}
