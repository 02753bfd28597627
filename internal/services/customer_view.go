package services

import (
	"context"
	"io"
	"time"

	"karte-backend/internal/models"
)

const maxHistoryLimit = 50

// Profile is what a linked customer sees of their own record
type Profile struct {
	ID            string     `json:"id"`
	DisplayName   string     `json:"display_name"`
	LastVisitAt   *time.Time `json:"last_visit_at,omitempty"`
	LatestVisitID *string    `json:"latest_visit_id,omitempty"`
}

// CustomerViewService is the read-only view behind the LIFF app. It only
// ever returns models.PublicVisit, so staff-only data cannot leak.
type CustomerViewService struct {
	customers CustomerStore
	visits    VisitStore
	photos    photoGetter
}

type photoGetter interface {
	Get(ctx context.Context, key string) (io.ReadCloser, string, error)
}

// NewCustomerViewService creates a new customer view service
func NewCustomerViewService(customers CustomerStore, visits VisitStore, photos photoGetter) *CustomerViewService {
	return &CustomerViewService{customers: customers, visits: visits, photos: photos}
}

// Profile returns the customer's own profile
func (s *CustomerViewService) Profile(ctx context.Context, customerID string) (*Profile, error) {
	c, err := s.customers.GetByID(ctx, customerID)
	if err != nil {
		return nil, err
	}
	return &Profile{
		ID:            c.ID,
		DisplayName:   c.DisplayName,
		LastVisitAt:   c.LastVisitAt,
		LatestVisitID: c.LatestVisitID,
	}, nil
}

// LatestVisit returns the visit the customer record points at, falling back
// to the newest visit. It returns nil when the customer has no visits.
func (s *CustomerViewService) LatestVisit(ctx context.Context, customerID string) (*models.PublicVisit, error) {
	c, err := s.customers.GetByID(ctx, customerID)
	if err != nil {
		return nil, err
	}

	if c.LatestVisitID != nil {
		v, err := s.visits.GetByID(ctx, customerID, *c.LatestVisitID)
		if err == nil {
			return v.Public(), nil
		}
		if !isNotFound(err) {
			return nil, err
		}
	}

	visits, err := s.visits.ListByCustomer(ctx, customerID, 1)
	if err != nil {
		return nil, err
	}
	if len(visits) == 0 {
		return nil, nil
	}
	return visits[0].Public(), nil
}

// History returns up to 50 visits, newest first
func (s *CustomerViewService) History(ctx context.Context, customerID string, limit int) ([]*models.PublicVisit, error) {
	if limit <= 0 || limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	visits, err := s.visits.ListByCustomer(ctx, customerID, limit)
	if err != nil {
		return nil, err
	}

	out := make([]*models.PublicVisit, 0, len(visits))
	for _, v := range visits {
		out = append(out, v.Public())
	}
	return out, nil
}

// OpenPhoto streams one of the shared photos (slot 1..4) of the customer's
// own visit.
func (s *CustomerViewService) OpenPhoto(ctx context.Context, customerID, visitID string, slot int) (io.ReadCloser, string, error) {
	v, err := s.visits.GetByID(ctx, customerID, visitID)
	if err != nil {
		return nil, "", err
	}
	path, err := visitPhotoPath(v, slot, false)
	if err != nil {
		return nil, "", err
	}
	return s.photos.Get(ctx, path)
}
