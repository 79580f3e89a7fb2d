package api

import (
	"net/http"
	"time"

	"querydeck/internal/sqlexpr"
	"querydeck/internal/tablequery"
)

type inspectRequest struct {
	SQL string `json:"sql"`
}

func (h *Handler) inspectSource(w http.ResponseWriter, r *http.Request) {
	var req inspectRequest
	if err := decodeJSON(r, &req); err != nil {
		h.badRequest(w, "invalid request body: "+err.Error())
		return
	}
	info, err := h.explore.InspectSource(r.Context(), req.SQL)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *Handler) buildTable(w http.ResponseWriter, r *http.Request) {
	var spec tablequery.Spec
	if err := decodeJSON(r, &spec); err != nil {
		h.badRequest(w, "invalid request body: "+err.Error())
		return
	}
	built, err := h.explore.BuildTable(r.Context(), spec)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, built)
}

func (h *Handler) runTable(w http.ResponseWriter, r *http.Request) {
	var spec tablequery.Spec
	if err := decodeJSON(r, &spec); err != nil {
		h.badRequest(w, "invalid request body: "+err.Error())
		return
	}
	res, err := h.explore.RunTable(r.Context(), spec)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type maxTimeRequest struct {
	SQL        string `json:"sql"`
	TimeColumn string `json:"timeColumn"`
}

type maxTimeResponse struct {
	MaxTime time.Time `json:"maxTime"`
}

func (h *Handler) maxTime(w http.ResponseWriter, r *http.Request) {
	var req maxTimeRequest
	if err := decodeJSON(r, &req); err != nil {
		h.badRequest(w, "invalid request body: "+err.Error())
		return
	}
	maxTime, err := h.explore.MaxTime(r.Context(), req.SQL, req.TimeColumn)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, maxTimeResponse{MaxTime: maxTime})
}

type decomposeRequest struct {
	Expression string `json:"expression"`
}

func (h *Handler) decomposeExpression(w http.ResponseWriter, r *http.Request) {
	var req decomposeRequest
	if err := decodeJSON(r, &req); err != nil {
		h.badRequest(w, "invalid request body: "+err.Error())
		return
	}
	breakdown, err := sqlexpr.DecomposeText(req.Expression)
	if err != nil {
		h.badRequest(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, breakdown)
}

type recomposeResponse struct {
	Expression string `json:"expression"`
}

func (h *Handler) recomposeExpression(w http.ResponseWriter, r *http.Request) {
	var breakdown sqlexpr.CastBreakdown
	if err := decodeJSON(r, &breakdown); err != nil {
		h.badRequest(w, "invalid request body: "+err.Error())
		return
	}
	text, err := sqlexpr.RecomposeText(breakdown)
	if err != nil {
		h.badRequest(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, recomposeResponse{Expression: text})
}
