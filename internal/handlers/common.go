package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"karte-backend/internal/apperror"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error  string              `json:"error"`
	Fields []map[string]string `json:"fields,omitempty"`
}

// respondJSON writes v as a JSON response
func respondJSON(w http.ResponseWriter, v any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Unable to write response stream")
	}
}

// respondMessage sends an error response with a fixed message
func respondMessage(w http.ResponseWriter, message string, statusCode int) {
	respondJSON(w, ErrorResponse{Error: message}, statusCode)
}

// respondError maps a service error onto a response. Server errors are
// logged and their details hidden from the client.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperror.HTTPStatus(err)

	var validationErr validator.ValidationErrors
	if errors.As(err, &validationErr) {
		respondJSON(w, ErrorResponse{
			Error:  "validation failed",
			Fields: apperror.ValidationErrors(err),
		}, status)
		return
	}

	if status >= http.StatusInternalServerError && status != http.StatusNotImplemented {
		log.Error().
			Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("Request failed")
	}
	respondMessage(w, apperror.PublicMessage(err), status)
}

// decodeJSON decodes the request body into v and validates it
func decodeJSON(r *http.Request, validate *validator.Validate, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errInvalidBody
	}
	if n, ok := v.(normalizer); ok {
		n.Normalize()
	}
	return validate.Struct(v)
}

// normalizer is implemented by request bodies that clean their fields
// before validation
type normalizer interface {
	Normalize()
}

var errInvalidBody = fmt.Errorf("invalid request body: %w", apperror.ErrInvalidInput)

// queryLimit parses the limit query parameter; 0 means the service default
func queryLimit(r *http.Request) int {
	limitStr := r.URL.Query().Get("limit")
	if limitStr == "" {
		return 0
	}
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit < 0 {
		return 0
	}
	return limit
}
