package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"karte-backend/internal/apperror"
	"karte-backend/internal/models"
	"karte-backend/internal/photostore"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	defaultVisitLimit = 200
	maxVisitLimit     = 500
)

// StaffSlot addresses the staff-only photo where a slot number is expected
const StaffSlot = 0

// VisitFields are the admin-editable fields of a visit
type VisitFields struct {
	VisitAt     time.Time `json:"visit_at" validate:"required"`
	Note        string    `json:"note" validate:"max=10000"`
	StaffName   string    `json:"staff_name" validate:"max=100"`
	LineConsent string    `json:"line_consent" validate:"consent"`
	Menu        string    `json:"menu" validate:"max=200"`
	Style       string    `json:"style" validate:"max=200"`
	SideType    string    `json:"side_type" validate:"trimtype"`
	SideMm      string    `json:"side_mm" validate:"omitempty,numeric,max=3"`
	BackType    string    `json:"back_type" validate:"trimtype"`
	BackMm      string    `json:"back_mm" validate:"omitempty,numeric,max=3"`
	Styling     string    `json:"styling" validate:"max=200"`
	Other       string    `json:"other" validate:"max=1000"`
}

// SaveVisitInput creates a visit when VisitID is empty, otherwise updates it.
// Photos maps slot numbers 1..4 to new uploads; slots not present keep
// their current photo.
type SaveVisitInput struct {
	CustomerID string
	VisitID    string
	AdminID    string
	Fields     VisitFields
	Photos     map[int]Upload
	StaffPhoto *Upload
}

// VisitService handles visit-related business logic
type VisitService struct {
	customers  CustomerStore
	visits     VisitStore
	photos     photostore.Store
	events     Publisher
	presignTTL time.Duration
	now        func() time.Time
}

// NewVisitService creates a new visit service
func NewVisitService(customers CustomerStore, visits VisitStore, photos photostore.Store, events Publisher, presignTTL time.Duration) *VisitService {
	if events == nil {
		events = NopPublisher{}
	}
	return &VisitService{
		customers:  customers,
		visits:     visits,
		photos:     photos,
		events:     events,
		presignTTL: presignTTL,
		now:        time.Now,
	}
}

// SaveVisit writes the visit fields, uploads the given photos and refreshes
// the customer's latest visit. Once the row is written the latest visit is
// refreshed even when an upload fails.
func (s *VisitService) SaveVisit(ctx context.Context, in SaveVisitInput) (*models.Visit, error) {
	if in.Fields.VisitAt.IsZero() {
		return nil, fmt.Errorf("visit_at is required: %w", apperror.ErrInvalidInput)
	}
	for slot := range in.Photos {
		if slot < 1 || slot > models.MaxPhotos {
			return nil, fmt.Errorf("photo slot %d out of range 1..%d: %w", slot, models.MaxPhotos, apperror.ErrInvalidInput)
		}
	}

	if _, err := s.customers.GetByID(ctx, in.CustomerID); err != nil {
		return nil, err
	}

	now := s.now()
	visit := &models.Visit{
		ID:         in.VisitID,
		CustomerID: in.CustomerID,
		UpdatedAt:  now,
		UpdatedBy:  in.AdminID,
	}
	applyFields(visit, in.Fields)

	var current map[string]string
	if in.VisitID == "" {
		visit.ID = uuid.New().String()
		visit.Photos = map[string]string{}
		visit.CreatedAt = now
		visit.CreatedBy = in.AdminID
		if err := s.visits.Create(ctx, visit); err != nil {
			return nil, err
		}
	} else {
		existing, err := s.visits.GetByID(ctx, in.CustomerID, in.VisitID)
		if err != nil {
			return nil, err
		}
		current = existing.Photos
		if err := s.visits.Update(ctx, visit); err != nil {
			return nil, err
		}
	}

	attachErr := s.attachPhotos(ctx, visit, current, in, now)

	if err := s.customers.RefreshLatestVisit(ctx, visit.CustomerID); err != nil {
		if attachErr != nil {
			log.Error().Err(err).Str("customer_id", visit.CustomerID).Msg("Failed to refresh latest visit")
			return nil, attachErr
		}
		return nil, err
	}
	// The row changed either way; subscribers re-fetch what they display.
	s.events.Publish(Event{Type: EventVisitSaved, CustomerID: visit.CustomerID, VisitID: visit.ID})
	if attachErr != nil {
		return nil, attachErr
	}

	log.Info().
		Str("customer_id", visit.CustomerID).
		Str("visit_id", visit.ID).
		Int("photos", len(in.Photos)).
		Bool("staff_photo", in.StaffPhoto != nil).
		Msg("Visit saved")

	return s.GetVisit(ctx, visit.CustomerID, visit.ID)
}

// attachPhotos uploads the slot photos and the staff photo of a written visit
func (s *VisitService) attachPhotos(ctx context.Context, visit *models.Visit, current map[string]string, in SaveVisitInput, now time.Time) error {
	if err := s.storePhotos(ctx, visit.CustomerID, visit.ID, current, in.Photos, now); err != nil {
		return err
	}

	if in.StaffPhoto == nil {
		return nil
	}
	path := models.StaffPhotoPath(visit.CustomerID, visit.ID)
	if err := putObjects(ctx, s.photos, map[string]Upload{path: *in.StaffPhoto}); err != nil {
		return fmt.Errorf("failed to upload staff photo: %w", err)
	}
	return s.visits.SetStaffPhoto(ctx, visit.CustomerID, visit.ID, &path, now)
}

// storePhotos uploads new slot photos and merges their paths into the
// visit's photo map.
func (s *VisitService) storePhotos(ctx context.Context, customerID, visitID string, current map[string]string, uploads map[int]Upload, now time.Time) error {
	if len(uploads) == 0 {
		return nil
	}

	byPath := make(map[string]Upload, len(uploads))
	merged := make(map[string]string, models.MaxPhotos)
	for k, v := range current {
		merged[k] = v
	}
	for slot, up := range uploads {
		path := models.PhotoPath(customerID, visitID, slot)
		byPath[path] = up
		merged[models.PhotoKey(slot)] = path
	}

	if err := putObjects(ctx, s.photos, byPath); err != nil {
		return fmt.Errorf("failed to upload photos: %w", err)
	}
	return s.visits.SetPhotos(ctx, customerID, visitID, merged, now)
}

// GetVisit returns a visit with legacy length fields applied
func (s *VisitService) GetVisit(ctx context.Context, customerID, visitID string) (*models.Visit, error) {
	v, err := s.visits.GetByID(ctx, customerID, visitID)
	if err != nil {
		return nil, err
	}
	applyLegacyLengths(v)
	return v, nil
}

// ListVisits returns a customer's visits, newest first
func (s *VisitService) ListVisits(ctx context.Context, customerID string, limit int) ([]*models.Visit, error) {
	if _, err := s.customers.GetByID(ctx, customerID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultVisitLimit
	}
	if limit > maxVisitLimit {
		limit = maxVisitLimit
	}

	visits, err := s.visits.ListByCustomer(ctx, customerID, limit)
	if err != nil {
		return nil, err
	}
	for _, v := range visits {
		applyLegacyLengths(v)
	}
	return visits, nil
}

// DeleteVisit removes a visit and its photos
func (s *VisitService) DeleteVisit(ctx context.Context, customerID, visitID string) error {
	v, err := s.visits.GetByID(ctx, customerID, visitID)
	if err != nil {
		return err
	}

	deleteObjects(ctx, s.photos, v.AllStoragePaths())

	if err := s.visits.Delete(ctx, customerID, visitID); err != nil {
		return err
	}
	if err := s.customers.RefreshLatestVisit(ctx, customerID); err != nil {
		return err
	}

	log.Info().
		Str("customer_id", customerID).
		Str("visit_id", visitID).
		Msg("Visit deleted")

	s.events.Publish(Event{Type: EventVisitDeleted, CustomerID: customerID, VisitID: visitID})
	return nil
}

// DeletePhoto clears one photo slot (1..4, or StaffSlot) of a visit
func (s *VisitService) DeletePhoto(ctx context.Context, customerID, visitID string, slot int) error {
	v, err := s.visits.GetByID(ctx, customerID, visitID)
	if err != nil {
		return err
	}
	now := s.now()

	if slot == StaffSlot {
		if v.StaffOnly.StaffPhotoPath == nil {
			return nil
		}
		deleteObjects(ctx, s.photos, []string{*v.StaffOnly.StaffPhotoPath})
		if err := s.visits.SetStaffPhoto(ctx, customerID, visitID, nil, now); err != nil {
			return err
		}
	} else {
		if slot < 1 || slot > models.MaxPhotos {
			return fmt.Errorf("photo slot %d: %w", slot, apperror.ErrInvalidInput)
		}
		key := models.PhotoKey(slot)
		path, ok := v.Photos[key]
		if !ok {
			return nil
		}
		deleteObjects(ctx, s.photos, []string{path})
		delete(v.Photos, key)
		if err := s.visits.SetPhotos(ctx, customerID, visitID, v.Photos, now); err != nil {
			return err
		}
	}

	s.events.Publish(Event{Type: EventVisitSaved, CustomerID: customerID, VisitID: visitID})
	return nil
}

// OpenPhoto streams a photo of a visit; the caller closes the reader
func (s *VisitService) OpenPhoto(ctx context.Context, customerID, visitID string, slot int) (io.ReadCloser, string, error) {
	path, err := s.photoPath(ctx, customerID, visitID, slot)
	if err != nil {
		return nil, "", err
	}
	return s.photos.Get(ctx, path)
}

// PhotoURL returns a temporary download URL for a photo when the store
// supports pre-signing.
func (s *VisitService) PhotoURL(ctx context.Context, customerID, visitID string, slot int) (string, time.Duration, error) {
	presigner, ok := s.photos.(photostore.Presigner)
	if !ok {
		return "", 0, fmt.Errorf("photo URLs: %w", apperror.ErrUnsupported)
	}
	path, err := s.photoPath(ctx, customerID, visitID, slot)
	if err != nil {
		return "", 0, err
	}
	url, err := presigner.PresignGet(ctx, path, s.presignTTL)
	if err != nil {
		return "", 0, err
	}
	return url, s.presignTTL, nil
}

func (s *VisitService) photoPath(ctx context.Context, customerID, visitID string, slot int) (string, error) {
	v, err := s.visits.GetByID(ctx, customerID, visitID)
	if err != nil {
		return "", err
	}
	return visitPhotoPath(v, slot, true)
}

// visitPhotoPath resolves a slot to its storage path. The staff slot is only
// reachable when staff is true.
func visitPhotoPath(v *models.Visit, slot int, staff bool) (string, error) {
	if slot == StaffSlot {
		if !staff {
			return "", fmt.Errorf("photo slot %d: %w", slot, apperror.ErrInvalidInput)
		}
		if v.StaffOnly.StaffPhotoPath == nil {
			return "", fmt.Errorf("staff photo of visit %s: %w", v.ID, apperror.ErrNotFound)
		}
		return *v.StaffOnly.StaffPhotoPath, nil
	}
	if slot < 1 || slot > models.MaxPhotos {
		return "", fmt.Errorf("photo slot %d: %w", slot, apperror.ErrInvalidInput)
	}
	path, ok := v.Photos[models.PhotoKey(slot)]
	if !ok || path == "" {
		return "", fmt.Errorf("photo %d of visit %s: %w", slot, v.ID, apperror.ErrNotFound)
	}
	return path, nil
}

func applyFields(v *models.Visit, f VisitFields) {
	v.VisitAt = f.VisitAt
	v.Note = f.Note
	v.StaffName = f.StaffName
	v.LineConsent = f.LineConsent
	v.Menu = f.Menu
	v.Style = f.Style
	v.SideType = f.SideType
	v.SideMm = f.SideMm
	v.BackType = f.BackType
	v.BackMm = f.BackMm
	v.Styling = f.Styling
	v.Other = f.Other
}

// applyLegacyLengths fills side/back mm from the pre-migration free text
// when the structured value is empty.
func applyLegacyLengths(v *models.Visit) {
	if v.SideMm == "" {
		v.SideMm = v.LengthSide
	}
	if v.BackMm == "" {
		v.BackMm = v.LengthBack
	}
}

// isNotFound reports whether err is a not-found domain error
func isNotFound(err error) bool {
	return errors.Is(err, apperror.ErrNotFound)
}
