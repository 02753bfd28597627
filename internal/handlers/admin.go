package handlers

import (
	"net/http"

	"karte-backend/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
)

// AdminHandler handles admin account HTTP requests
type AdminHandler struct {
	auth     AdminAuthenticator
	validate *validator.Validate
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(auth AdminAuthenticator, validate *validator.Validate) *AdminHandler {
	return &AdminHandler{auth: auth, validate: validate}
}

// CredentialsRequest is the body of register and login
type CredentialsRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// AuthResponse carries a fresh admin session
type AuthResponse struct {
	Token string        `json:"token"`
	Admin *models.Admin `json:"admin"`
}

// Register handles POST /api/v1/admin/register
func (h *AdminHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := decodeJSON(r, h.validate, &req); err != nil {
		respondError(w, r, err)
		return
	}

	admin, token, err := h.auth.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		respondError(w, r, err)
		return
	}

	log.Info().
		Str("admin_id", admin.ID).
		Msg("Admin registered")

	respondJSON(w, AuthResponse{Token: token, Admin: admin}, http.StatusCreated)
}

// Login handles POST /api/v1/admin/login
func (h *AdminHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email" validate:"required"`
		Password string `json:"password" validate:"required"`
	}
	if err := decodeJSON(r, h.validate, &req); err != nil {
		respondError(w, r, err)
		return
	}

	admin, token, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		log.Warn().Err(err).Msg("Admin login failed")
		respondError(w, r, err)
		return
	}

	respondJSON(w, AuthResponse{Token: token, Admin: admin}, http.StatusOK)
}
