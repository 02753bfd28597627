package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"karte-backend/internal/apperror"
	"karte-backend/internal/models"
	"karte-backend/internal/photostore"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	defaultCustomerLimit = 200
	maxCustomerLimit     = 500
	// Visits removed per round when a customer is deleted.
	cascadeVisitBatch = 500
)

// CustomerService handles customer-related business logic
type CustomerService struct {
	customers CustomerStore
	visits    VisitStore
	photos    photostore.Store
	events    Publisher
	batch     int
	now       func() time.Time
}

// NewCustomerService creates a new customer service
func NewCustomerService(customers CustomerStore, visits VisitStore, photos photostore.Store, events Publisher) *CustomerService {
	if events == nil {
		events = NopPublisher{}
	}
	return &CustomerService{
		customers: customers,
		visits:    visits,
		photos:    photos,
		events:    events,
		batch:     cascadeVisitBatch,
		now:       time.Now,
	}
}

// CreateCustomer creates a customer with no visits
func (s *CustomerService) CreateCustomer(ctx context.Context, displayName string) (*models.Customer, error) {
	name := strings.TrimSpace(displayName)
	if name == "" {
		return nil, fmt.Errorf("display_name is required: %w", apperror.ErrInvalidInput)
	}

	now := s.now()
	customer := &models.Customer{
		ID:          uuid.New().String(),
		DisplayName: name,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.customers.Create(ctx, customer); err != nil {
		return nil, fmt.Errorf("failed to create customer: %w", err)
	}

	s.events.Publish(Event{Type: EventCustomerCreated, CustomerID: customer.ID})
	return customer, nil
}

// GetCustomer returns a customer by id
func (s *CustomerService) GetCustomer(ctx context.Context, id string) (*models.Customer, error) {
	return s.customers.GetByID(ctx, id)
}

// ListCustomers returns customers ordered by last visit, optionally filtered
// by a case-insensitive substring of the display name.
func (s *CustomerService) ListCustomers(ctx context.Context, query string, limit int) ([]*models.Customer, error) {
	if limit <= 0 {
		limit = defaultCustomerLimit
	}
	if limit > maxCustomerLimit {
		limit = maxCustomerLimit
	}

	return s.customers.List(ctx, strings.TrimSpace(query), limit)
}

// RenameCustomer changes the display name
func (s *CustomerService) RenameCustomer(ctx context.Context, id, displayName string) (*models.Customer, error) {
	name := strings.TrimSpace(displayName)
	if name == "" {
		return nil, fmt.Errorf("display_name is required: %w", apperror.ErrInvalidInput)
	}

	if err := s.customers.UpdateDisplayName(ctx, id, name, s.now()); err != nil {
		return nil, err
	}

	s.events.Publish(Event{Type: EventCustomerUpdated, CustomerID: id})
	return s.customers.GetByID(ctx, id)
}

// DeleteCustomer removes a customer, its visits and every stored photo.
// Photo deletion failures are logged and do not stop the deletion.
func (s *CustomerService) DeleteCustomer(ctx context.Context, id string) error {
	if _, err := s.customers.GetByID(ctx, id); err != nil {
		return err
	}

	// Every listed visit is deleted, so each round lists the next batch.
	deleted := 0
	for {
		visits, err := s.visits.ListByCustomer(ctx, id, s.batch)
		if err != nil {
			return fmt.Errorf("failed to list visits for deletion: %w", err)
		}
		if len(visits) == 0 {
			break
		}

		for _, v := range visits {
			deleteObjects(ctx, s.photos, v.AllStoragePaths())
			if err := s.visits.Delete(ctx, id, v.ID); err != nil {
				return fmt.Errorf("failed to delete visit %s: %w", v.ID, err)
			}
		}
		deleted += len(visits)
	}

	if err := s.customers.Delete(ctx, id); err != nil {
		return err
	}

	log.Info().
		Str("customer_id", id).
		Int("visits", deleted).
		Msg("Customer deleted")

	s.events.Publish(Event{Type: EventCustomerDeleted, CustomerID: id})
	return nil
}
