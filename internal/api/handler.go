// Package api provides the HTTP handlers for the query exploration REST
// API.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"querydeck/internal/service/explore"
)

// Handler holds the services behind the API routes.
type Handler struct {
	explore *explore.Service
	logger  *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(svc *explore.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{explore: svc, logger: logger}
}

// Routes returns the router for the /v1 API surface.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/query", func(r chi.Router) {
		r.Post("/inspect", h.inspectSource)
		r.Post("/table", h.buildTable)
		r.Post("/table/run", h.runTable)
		r.Post("/max-time", h.maxTime)
	})

	r.Route("/expressions", func(r chi.Router) {
		r.Post("/decompose", h.decomposeExpression)
		r.Post("/recompose", h.recomposeExpression)
	})

	r.Route("/tiles", func(r chi.Router) {
		r.Get("/", h.listTiles)
		r.Post("/", h.createTile)
		r.Route("/{tileID}", func(r chi.Router) {
			r.Get("/", h.getTile)
			r.Patch("/", h.updateTile)
			r.Delete("/", h.deleteTile)
			r.Post("/parameters/sync", h.syncTileParameters)
			r.Get("/state", h.getTileState)
			r.Put("/state/{key}", h.publishTileState)
			r.Delete("/state/{key}", h.unpublishTileState)
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}
