package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nmslite/profilerd/internal/authn"
	"github.com/nmslite/profilerd/internal/eventhub"
)

// NewRouter wires the profiler command surface, matching the
// teacher's internal/server/server.go shape: health check unauthenticated,
// everything else behind JWTAuth, chi.Route for grouping.
func NewRouter(h *Handlers, authSvc *authn.Service, hub *eventhub.Hub, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(Logger(logger))
	r.Use(Recovery(logger))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/events", hub.ServeWs)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(JWTAuth(authSvc))

			r.Route("/profiler", func(r chi.Router) {
				r.Post("/start-session", h.StartSession)
				r.Post("/cancel-session", h.CancelSession)
				r.Post("/finish-session", h.FinishSession)
				r.Post("/discard", h.Discard)
				r.Post("/flush", h.Flush)
				r.Post("/pause-session", h.PauseSession)
				r.Post("/resume-session", h.ResumeSession)
				r.Post("/flush-interval", h.SetFlushInterval)

				r.Route("/attachments/{attachmentID}", func(r chi.Router) {
					r.Post("/start-session", h.StartSession)
					r.Post("/cancel-session", h.CancelSession)
					r.Post("/finish-session", h.FinishSession)
					r.Post("/discard", h.Discard)
					r.Post("/flush", h.Flush)
					r.Post("/pause-session", h.PauseSession)
					r.Post("/resume-session", h.ResumeSession)
					r.Post("/flush-interval", h.SetFlushInterval)
				})
			})
		})
	})

	return r
}
