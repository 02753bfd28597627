package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"karte-backend/internal/apperror"
	"karte-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const customerColumns = `id, display_name, last_visit_at, latest_visit_id, line_user_id, created_at, updated_at`

// CustomerRepository handles database operations for customers
type CustomerRepository struct {
	db *pgxpool.Pool
}

// NewCustomerRepository creates a new customer repository
func NewCustomerRepository(db *pgxpool.Pool) *CustomerRepository {
	return &CustomerRepository{db: db}
}

// Create creates a new customer
func (r *CustomerRepository) Create(ctx context.Context, c *models.Customer) error {
	query := `
		INSERT INTO customers (id, display_name, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.db.Exec(ctx, query, c.ID, c.DisplayName, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create customer: %w", err)
	}
	return nil
}

// GetByID retrieves a customer by ID
func (r *CustomerRepository) GetByID(ctx context.Context, id string) (*models.Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers WHERE id = $1`
	c, err := scanCustomer(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("customer %s: %w", id, apperror.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	return c, nil
}

// GetByLineUserID retrieves the customer linked to a LINE user
func (r *CustomerRepository) GetByLineUserID(ctx context.Context, lineUserID string) (*models.Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers WHERE line_user_id = $1`
	c, err := scanCustomer(r.db.QueryRow(ctx, query, lineUserID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("line user: %w", apperror.ErrNotLinked)
		}
		return nil, fmt.Errorf("failed to get customer by line user: %w", err)
	}
	return c, nil
}

// List returns customers, most recent visitors first. A non-empty nameQuery
// keeps customers whose display name contains it, ignoring case.
func (r *CustomerRepository) List(ctx context.Context, nameQuery string, limit int) ([]*models.Customer, error) {
	query := `
		SELECT ` + customerColumns + `
		FROM customers
		WHERE $1::text = '' OR display_name ILIKE '%' || $1 || '%'
		ORDER BY last_visit_at DESC NULLS LAST, created_at DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, likeEscaper.Replace(nameQuery), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}
	defer rows.Close()

	var customers []*models.Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan customer: %w", err)
		}
		customers = append(customers, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating customers: %w", err)
	}

	return customers, nil
}

// likeEscaper makes LIKE wildcards in user input match literally
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// UpdateDisplayName renames a customer
func (r *CustomerRepository) UpdateDisplayName(ctx context.Context, id, name string, at time.Time) error {
	query := `UPDATE customers SET display_name = $1, updated_at = $2 WHERE id = $3`
	result, err := r.db.Exec(ctx, query, name, at, id)
	if err != nil {
		return fmt.Errorf("failed to update customer name: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("customer %s: %w", id, apperror.ErrNotFound)
	}
	return nil
}

// RefreshLatestVisit points the customer at its newest visit, or clears the
// reference when no visits remain.
func (r *CustomerRepository) RefreshLatestVisit(ctx context.Context, id string) error {
	query := `
		UPDATE customers
		SET (last_visit_at, latest_visit_id) = (
			SELECT visit_at, id FROM visits
			WHERE customer_id = $1
			ORDER BY visit_at DESC, created_at DESC
			LIMIT 1
		), updated_at = now()
		WHERE id = $1
	`
	result, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to refresh latest visit: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("customer %s: %w", id, apperror.ErrNotFound)
	}
	return nil
}

// Delete deletes a customer; visits and link tokens cascade
func (r *CustomerRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.Exec(ctx, `DELETE FROM customers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete customer: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("customer %s: %w", id, apperror.ErrNotFound)
	}
	return nil
}

func scanCustomer(row pgx.Row) (*models.Customer, error) {
	var c models.Customer
	err := row.Scan(
		&c.ID, &c.DisplayName, &c.LastVisitAt, &c.LatestVisitID,
		&c.LineUserID, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Linked = c.LineUserID != nil
	return &c, nil
}
