package handlers

import (
	"net/http"

	"karte-backend/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
)

// CustomerHandler handles customer-related HTTP requests from the console
type CustomerHandler struct {
	customers CustomerManager
	links     LinkManager
	validate  *validator.Validate
}

// NewCustomerHandler creates a new customer handler
func NewCustomerHandler(customers CustomerManager, links LinkManager, validate *validator.Validate) *CustomerHandler {
	return &CustomerHandler{
		customers: customers,
		links:     links,
		validate:  validate,
	}
}

// CustomerRequest is the body of customer create and rename
type CustomerRequest struct {
	DisplayName string `json:"display_name" validate:"required,max=100"`
}

// ListCustomers handles GET /api/v1/customers
func (h *CustomerHandler) ListCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := h.customers.ListCustomers(r.Context(), r.URL.Query().Get("q"), queryLimit(r))
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, map[string]any{"customers": customers}, http.StatusOK)
}

// CreateCustomer handles POST /api/v1/customers
func (h *CustomerHandler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req CustomerRequest
	if err := decodeJSON(r, h.validate, &req); err != nil {
		respondError(w, r, err)
		return
	}

	customer, err := h.customers.CreateCustomer(r.Context(), req.DisplayName)
	if err != nil {
		respondError(w, r, err)
		return
	}

	log.Info().
		Str("admin_id", middleware.GetSubject(r.Context())).
		Str("customer_id", customer.ID).
		Msg("Customer created")

	respondJSON(w, customer, http.StatusCreated)
}

// GetCustomer handles GET /api/v1/customers/{id}
func (h *CustomerHandler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	customer, err := h.customers.GetCustomer(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, customer, http.StatusOK)
}

// UpdateCustomer handles PATCH /api/v1/customers/{id}
func (h *CustomerHandler) UpdateCustomer(w http.ResponseWriter, r *http.Request) {
	var req CustomerRequest
	if err := decodeJSON(r, h.validate, &req); err != nil {
		respondError(w, r, err)
		return
	}

	customer, err := h.customers.RenameCustomer(r.Context(), chi.URLParam(r, "id"), req.DisplayName)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, customer, http.StatusOK)
}

// DeleteCustomer handles DELETE /api/v1/customers/{id}
func (h *CustomerHandler) DeleteCustomer(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "id")
	if err := h.customers.DeleteCustomer(r.Context(), customerID); err != nil {
		respondError(w, r, err)
		return
	}

	log.Info().
		Str("admin_id", middleware.GetSubject(r.Context())).
		Str("customer_id", customerID).
		Msg("Customer deleted via console")

	w.WriteHeader(http.StatusNoContent)
}

// IssueLinkToken handles POST /api/v1/customers/{id}/link-tokens
func (h *CustomerHandler) IssueLinkToken(w http.ResponseWriter, r *http.Request) {
	token, err := h.links.IssueToken(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, token, http.StatusCreated)
}
