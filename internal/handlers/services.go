package handlers

import (
	"context"
	"io"
	"time"

	"karte-backend/internal/models"
	"karte-backend/internal/services"
)

// AdminAuthenticator is implemented by *services.AuthService
type AdminAuthenticator interface {
	Register(ctx context.Context, email, password string) (*models.Admin, string, error)
	Login(ctx context.Context, email, password string) (*models.Admin, string, error)
}

// CustomerManager is implemented by *services.CustomerService
type CustomerManager interface {
	CreateCustomer(ctx context.Context, displayName string) (*models.Customer, error)
	GetCustomer(ctx context.Context, id string) (*models.Customer, error)
	ListCustomers(ctx context.Context, query string, limit int) ([]*models.Customer, error)
	RenameCustomer(ctx context.Context, id, displayName string) (*models.Customer, error)
	DeleteCustomer(ctx context.Context, id string) error
}

// VisitManager is implemented by *services.VisitService
type VisitManager interface {
	SaveVisit(ctx context.Context, in services.SaveVisitInput) (*models.Visit, error)
	GetVisit(ctx context.Context, customerID, visitID string) (*models.Visit, error)
	ListVisits(ctx context.Context, customerID string, limit int) ([]*models.Visit, error)
	DeleteVisit(ctx context.Context, customerID, visitID string) error
	DeletePhoto(ctx context.Context, customerID, visitID string, slot int) error
	OpenPhoto(ctx context.Context, customerID, visitID string, slot int) (io.ReadCloser, string, error)
	PhotoURL(ctx context.Context, customerID, visitID string, slot int) (string, time.Duration, error)
}

// LinkManager is implemented by *services.LinkService
type LinkManager interface {
	IssueToken(ctx context.Context, customerID string) (*models.LinkToken, error)
	Login(ctx context.Context, req services.LoginRequest) (*services.LoginResult, error)
}

// CustomerViewer is implemented by *services.CustomerViewService
type CustomerViewer interface {
	Profile(ctx context.Context, customerID string) (*services.Profile, error)
	LatestVisit(ctx context.Context, customerID string) (*models.PublicVisit, error)
	History(ctx context.Context, customerID string, limit int) ([]*models.PublicVisit, error)
	OpenPhoto(ctx context.Context, customerID, visitID string, slot int) (io.ReadCloser, string, error)
}
