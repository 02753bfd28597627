package handlers

import (
	"net/http"

	"karte-backend/internal/middleware"
	"karte-backend/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
)

// MeHandler serves the LIFF customer view. Every read is scoped to the
// customer id of the session.
type MeHandler struct {
	links    LinkManager
	view     CustomerViewer
	validate *validator.Validate
}

// NewMeHandler creates a new customer view handler
func NewMeHandler(links LinkManager, view CustomerViewer, validate *validator.Validate) *MeHandler {
	return &MeHandler{links: links, view: view, validate: validate}
}

// Login handles POST /api/v1/customer/login
func (h *MeHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req services.LoginRequest
	if err := decodeJSON(r, h.validate, &req); err != nil {
		respondError(w, r, err)
		return
	}

	res, err := h.links.Login(r.Context(), req)
	if err != nil {
		log.Warn().Err(err).Bool("with_link_token", req.LinkToken != "").Msg("Customer login failed")
		respondError(w, r, err)
		return
	}

	respondJSON(w, res, http.StatusOK)
}

// Profile handles GET /api/v1/me
func (h *MeHandler) Profile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.view.Profile(r.Context(), middleware.GetSubject(r.Context()))
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, profile, http.StatusOK)
}

// LatestVisit handles GET /api/v1/me/visits/latest. The visit is null when
// the customer has none.
func (h *MeHandler) LatestVisit(w http.ResponseWriter, r *http.Request) {
	visit, err := h.view.LatestVisit(r.Context(), middleware.GetSubject(r.Context()))
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, map[string]any{"visit": visit}, http.StatusOK)
}

// History handles GET /api/v1/me/visits
func (h *MeHandler) History(w http.ResponseWriter, r *http.Request) {
	visits, err := h.view.History(r.Context(), middleware.GetSubject(r.Context()), queryLimit(r))
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, map[string]any{"visits": visits}, http.StatusOK)
}

// Photo handles GET /api/v1/me/visits/{visitId}/photos/{slot}
func (h *MeHandler) Photo(w http.ResponseWriter, r *http.Request) {
	slot, err := parseSlot(chi.URLParam(r, "slot"), false)
	if err != nil {
		respondError(w, r, err)
		return
	}

	rc, contentType, err := h.view.OpenPhoto(r.Context(), middleware.GetSubject(r.Context()), chi.URLParam(r, "visitId"), slot)
	if err != nil {
		respondError(w, r, err)
		return
	}
	streamPhoto(w, rc, contentType)
}
