package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"querydeck/internal/domain"
	"querydeck/internal/params"
)

func (h *Handler) listTiles(w http.ResponseWriter, r *http.Request) {
	tiles, err := h.explore.ListTiles(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	if tiles == nil {
		tiles = []domain.Tile{}
	}
	writeJSON(w, http.StatusOK, tiles)
}

func (h *Handler) createTile(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateTileRequest
	if err := decodeJSON(r, &req); err != nil {
		h.badRequest(w, "invalid request body: "+err.Error())
		return
	}
	tile, err := h.explore.CreateTile(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tile)
}

func (h *Handler) getTile(w http.ResponseWriter, r *http.Request) {
	tile, err := h.explore.GetTile(r.Context(), chi.URLParam(r, "tileID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tile)
}

func (h *Handler) updateTile(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdateTileRequest
	if err := decodeJSON(r, &req); err != nil {
		h.badRequest(w, "invalid request body: "+err.Error())
		return
	}
	tile, err := h.explore.UpdateTile(r.Context(), chi.URLParam(r, "tileID"), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tile)
}

func (h *Handler) deleteTile(w http.ResponseWriter, r *http.Request) {
	if err := h.explore.DeleteTile(r.Context(), chi.URLParam(r, "tileID")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type syncParametersRequest struct {
	Definitions []params.Definition `json:"definitions"`
}

func (h *Handler) syncTileParameters(w http.ResponseWriter, r *http.Request) {
	var req syncParametersRequest
	if err := decodeJSON(r, &req); err != nil {
		h.badRequest(w, "invalid request body: "+err.Error())
		return
	}
	tile, err := h.explore.SyncTileParameters(r.Context(), chi.URLParam(r, "tileID"), req.Definitions)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tile)
}

func (h *Handler) getTileState(w http.ResponseWriter, r *http.Request) {
	tile, err := h.explore.GetTile(r.Context(), chi.URLParam(r, "tileID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.explore.TileStateFor(tile.Name))
}

type publishStateRequest struct {
	Value string `json:"value"`
}

func (h *Handler) publishTileState(w http.ResponseWriter, r *http.Request) {
	var req publishStateRequest
	if err := decodeJSON(r, &req); err != nil {
		h.badRequest(w, "invalid request body: "+err.Error())
		return
	}
	err := h.explore.PublishTileState(r.Context(), chi.URLParam(r, "tileID"), chi.URLParam(r, "key"), req.Value)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) unpublishTileState(w http.ResponseWriter, r *http.Request) {
	err := h.explore.UnpublishTileState(r.Context(), chi.URLParam(r, "tileID"), chi.URLParam(r, "key"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
