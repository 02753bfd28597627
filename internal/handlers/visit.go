package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"karte-backend/internal/apperror"
	"karte-backend/internal/middleware"
	"karte-backend/internal/models"
	"karte-backend/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
)

const (
	maxPhotoBytes   = 10 << 20
	maxRequestBytes = (models.MaxPhotos+1)*maxPhotoBytes + 1<<20
	multipartMemory = 8 << 20

	visitPart     = "visit"
	staffFilePart = "staff_only"
	staffSlotName = "staff"
)

// VisitHandler handles visit-related HTTP requests from the console
type VisitHandler struct {
	visits   VisitManager
	validate *validator.Validate
}

// NewVisitHandler creates a new visit handler
func NewVisitHandler(visits VisitManager, validate *validator.Validate) *VisitHandler {
	return &VisitHandler{visits: visits, validate: validate}
}

// visitRequest is a parsed create or update request
type visitRequest struct {
	fields     services.VisitFields
	photos     map[int]services.Upload
	staffPhoto *services.Upload
	files      []multipart.File
	form       *multipart.Form
}

func (v *visitRequest) close() {
	for _, f := range v.files {
		f.Close()
	}
	if v.form != nil {
		if err := v.form.RemoveAll(); err != nil {
			log.Warn().Err(err).Msg("Failed to remove multipart temp files")
		}
	}
}

// ListVisits handles GET /api/v1/customers/{id}/visits
func (h *VisitHandler) ListVisits(w http.ResponseWriter, r *http.Request) {
	visits, err := h.visits.ListVisits(r.Context(), chi.URLParam(r, "id"), queryLimit(r))
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, map[string]any{"visits": visits}, http.StatusOK)
}

// CreateVisit handles POST /api/v1/customers/{id}/visits
func (h *VisitHandler) CreateVisit(w http.ResponseWriter, r *http.Request) {
	h.saveVisit(w, r, "", http.StatusCreated)
}

// UpdateVisit handles PUT /api/v1/customers/{id}/visits/{visitId}
func (h *VisitHandler) UpdateVisit(w http.ResponseWriter, r *http.Request) {
	h.saveVisit(w, r, chi.URLParam(r, "visitId"), http.StatusOK)
}

func (h *VisitHandler) saveVisit(w http.ResponseWriter, r *http.Request, visitID string, statusCode int) {
	req, err := h.readVisitRequest(w, r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	defer req.close()

	visit, err := h.visits.SaveVisit(r.Context(), services.SaveVisitInput{
		CustomerID: chi.URLParam(r, "id"),
		VisitID:    visitID,
		AdminID:    middleware.GetSubject(r.Context()),
		Fields:     req.fields,
		Photos:     req.photos,
		StaffPhoto: req.staffPhoto,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, visit, statusCode)
}

// readVisitRequest accepts either a plain JSON body or a multipart form
// with the JSON in the "visit" part and photos in after_1..after_4 and
// staff_only.
func (h *VisitHandler) readVisitRequest(w http.ResponseWriter, r *http.Request) (req *visitRequest, err error) {
	req = &visitRequest{}
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		if err := decodeJSON(r, h.validate, &req.fields); err != nil {
			return nil, err
		}
		return req, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return nil, fmt.Errorf("invalid multipart body: %v: %w", err, apperror.ErrInvalidInput)
	}
	req.form = r.MultipartForm
	defer func() {
		if err != nil {
			req.close()
			req = nil
		}
	}()

	raw := req.form.Value[visitPart]
	if len(raw) == 0 {
		return req, fmt.Errorf("%s part is required: %w", visitPart, apperror.ErrInvalidInput)
	}
	if err := json.Unmarshal([]byte(raw[0]), &req.fields); err != nil {
		return req, errInvalidBody
	}
	if err := h.validate.Struct(&req.fields); err != nil {
		return req, err
	}

	for name, headers := range req.form.File {
		if len(headers) != 1 {
			return req, fmt.Errorf("file part %q must hold one file: %w", name, apperror.ErrInvalidInput)
		}
		if name == staffFilePart {
			up, err := req.open(headers[0])
			if err != nil {
				return req, err
			}
			req.staffPhoto = &up
			continue
		}

		slot, ok := photoPartSlot(name)
		if !ok {
			return req, fmt.Errorf("unexpected file part %q: %w", name, apperror.ErrInvalidInput)
		}
		up, err := req.open(headers[0])
		if err != nil {
			return req, err
		}
		if req.photos == nil {
			req.photos = make(map[int]services.Upload, models.MaxPhotos)
		}
		req.photos[slot] = up
	}
	return req, nil
}

func (v *visitRequest) open(fh *multipart.FileHeader) (services.Upload, error) {
	if fh.Size > maxPhotoBytes {
		return services.Upload{}, fmt.Errorf("%s exceeds %d bytes: %w", fh.Filename, maxPhotoBytes, apperror.ErrInvalidInput)
	}
	contentType := fh.Header.Get("Content-Type")
	if contentType != "" && contentType != "application/octet-stream" && !strings.HasPrefix(contentType, "image/") {
		return services.Upload{}, fmt.Errorf("%s is not an image: %w", fh.Filename, apperror.ErrInvalidInput)
	}
	if !strings.HasPrefix(contentType, "image/") {
		contentType = "image/jpeg"
	}

	f, err := fh.Open()
	if err != nil {
		return services.Upload{}, fmt.Errorf("failed to open upload %s: %w", fh.Filename, err)
	}
	v.files = append(v.files, f)
	return services.Upload{Reader: f, ContentType: contentType}, nil
}

// photoPartSlot maps after_N to N for N in 1..4
func photoPartSlot(name string) (int, bool) {
	n, ok := strings.CutPrefix(name, "after_")
	if !ok {
		return 0, false
	}
	slot, err := strconv.Atoi(n)
	if err != nil || slot < 1 || slot > models.MaxPhotos {
		return 0, false
	}
	return slot, true
}

// GetVisit handles GET /api/v1/customers/{id}/visits/{visitId}
func (h *VisitHandler) GetVisit(w http.ResponseWriter, r *http.Request) {
	visit, err := h.visits.GetVisit(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "visitId"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, visit, http.StatusOK)
}

// DeleteVisit handles DELETE /api/v1/customers/{id}/visits/{visitId}
func (h *VisitHandler) DeleteVisit(w http.ResponseWriter, r *http.Request) {
	if err := h.visits.DeleteVisit(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "visitId")); err != nil {
		respondError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetPhoto handles GET /api/v1/customers/{id}/visits/{visitId}/photos/{slot}
func (h *VisitHandler) GetPhoto(w http.ResponseWriter, r *http.Request) {
	slot, err := parseSlot(chi.URLParam(r, "slot"), true)
	if err != nil {
		respondError(w, r, err)
		return
	}

	rc, contentType, err := h.visits.OpenPhoto(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "visitId"), slot)
	if err != nil {
		respondError(w, r, err)
		return
	}
	streamPhoto(w, rc, contentType)
}

// DeletePhoto handles DELETE /api/v1/customers/{id}/visits/{visitId}/photos/{slot}
func (h *VisitHandler) DeletePhoto(w http.ResponseWriter, r *http.Request) {
	slot, err := parseSlot(chi.URLParam(r, "slot"), true)
	if err != nil {
		respondError(w, r, err)
		return
	}

	if err := h.visits.DeletePhoto(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "visitId"), slot); err != nil {
		respondError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// PhotoURL handles GET /api/v1/customers/{id}/visits/{visitId}/photos/{slot}/url
func (h *VisitHandler) PhotoURL(w http.ResponseWriter, r *http.Request) {
	slot, err := parseSlot(chi.URLParam(r, "slot"), true)
	if err != nil {
		respondError(w, r, err)
		return
	}

	url, ttl, err := h.visits.PhotoURL(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "visitId"), slot)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, map[string]any{
		"url":        url,
		"expires_in": int(ttl.Seconds()),
	}, http.StatusOK)
}

// parseSlot reads a photo slot path parameter. "staff" names the staff-only
// photo and is accepted only when staff is true.
func parseSlot(s string, staff bool) (int, error) {
	if s == staffSlotName && staff {
		return services.StaffSlot, nil
	}
	slot, err := strconv.Atoi(s)
	if err != nil || slot < 1 || slot > models.MaxPhotos {
		return 0, fmt.Errorf("photo slot must be 1..%d: %w", models.MaxPhotos, apperror.ErrInvalidInput)
	}
	return slot, nil
}

// streamPhoto copies a stored photo to the response and closes it
func streamPhoto(w http.ResponseWriter, rc io.ReadCloser, contentType string) {
	defer rc.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		log.Warn().Err(err).Msg("Failed to stream photo")
	}
}
