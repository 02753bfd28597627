package services

import (
	"context"
	"time"

	"karte-backend/internal/models"
)

// CustomerStore is the persistence the services need for customers.
// *repository.CustomerRepository implements it.
type CustomerStore interface {
	Create(ctx context.Context, c *models.Customer) error
	GetByID(ctx context.Context, id string) (*models.Customer, error)
	GetByLineUserID(ctx context.Context, lineUserID string) (*models.Customer, error)
	List(ctx context.Context, nameQuery string, limit int) ([]*models.Customer, error)
	UpdateDisplayName(ctx context.Context, id, name string, at time.Time) error
	RefreshLatestVisit(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

// VisitStore is the persistence the services need for visits.
type VisitStore interface {
	Create(ctx context.Context, v *models.Visit) error
	Update(ctx context.Context, v *models.Visit) error
	GetByID(ctx context.Context, customerID, visitID string) (*models.Visit, error)
	ListByCustomer(ctx context.Context, customerID string, limit int) ([]*models.Visit, error)
	SetPhotos(ctx context.Context, customerID, visitID string, photos map[string]string, at time.Time) error
	SetStaffPhoto(ctx context.Context, customerID, visitID string, path *string, at time.Time) error
	Delete(ctx context.Context, customerID, visitID string) error
}

// LinkTokenStore is the persistence the services need for link tokens.
type LinkTokenStore interface {
	Create(ctx context.Context, t *models.LinkToken) (bool, error)
	Redeem(ctx context.Context, code, lineUserID string, now time.Time) (string, error)
	DeleteSpent(ctx context.Context, now time.Time) (int64, error)
}

// AdminStore is the persistence the services need for admins.
type AdminStore interface {
	Create(ctx context.Context, a *models.Admin) error
	GetByEmail(ctx context.Context, email string) (*models.Admin, error)
	GetByID(ctx context.Context, id string) (*models.Admin, error)
}
