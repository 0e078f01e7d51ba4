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
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/link", func(r chi.Router) {
			r.Get("/", s.handleLinkStatus)
			r.Post("/connect", s.handleLinkConnect)
			r.Post("/connect-saved", s.handleLinkConnectSaved)
			r.Get("/networks", s.handleListNetworks)
			r.Put("/manual-off", s.handleSetManualOff)
		})

		r.Route("/messaging", func(r chi.Router) {
			r.Get("/", s.handleMessagingStatus)
			r.Post("/pause", s.handlePause)
			r.Post("/resume", s.handleResume)
			r.Put("/principal", s.handleSetPrincipal)
			r.Post("/publish", s.handlePublish)
			r.Get("/primary/next", s.handlePopPrimary)

			r.Route("/listeners", func(r chi.Router) {
				r.Get("/", s.handleListListeners)
				r.Post("/", s.handleAddListener)
				r.Delete("/{id}", s.handleRemoveListener)
				r.Get("/{id}/next", s.handlePopListener)
			})
		})

		r.Route("/pairing", func(r chi.Router) {
			r.Get("/", s.handlePairingStatus)
			r.Post("/session", s.handleBeginPairing)
			r.Delete("/session", s.handleEndPairing)
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", s.handleNotificationStatus)
			r.Post("/external", s.handleExternalMessage)
			r.Post("/hint/consume", s.handleConsumeHint)
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"version":   s.version,
		"device_id": s.deviceID,
	})
}
