package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"karte-backend/internal/apperror"
	"karte-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const visitColumns = `
	id, customer_id, visit_at, note, staff_name, line_consent, menu, style,
	side_type, side_mm, back_type, back_mm, styling, other,
	length_side, length_back, photos, staff_photo_path,
	created_at, created_by, updated_at, updated_by
`

// VisitRepository handles database operations for visits
type VisitRepository struct {
	db *pgxpool.Pool
}

// NewVisitRepository creates a new visit repository
func NewVisitRepository(db *pgxpool.Pool) *VisitRepository {
	return &VisitRepository{db: db}
}

// Create creates a new visit
func (r *VisitRepository) Create(ctx context.Context, v *models.Visit) error {
	photos := v.Photos
	if photos == nil {
		photos = map[string]string{}
	}
	query := `
		INSERT INTO visits (
			id, customer_id, visit_at, note, staff_name, line_consent, menu, style,
			side_type, side_mm, back_type, back_mm, styling, other,
			photos, staff_photo_path, created_at, created_by, updated_at, updated_by
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`
	_, err := r.db.Exec(ctx, query,
		v.ID, v.CustomerID, v.VisitAt, v.Note, v.StaffName, v.LineConsent, v.Menu, v.Style,
		v.SideType, v.SideMm, v.BackType, v.BackMm, v.Styling, v.Other,
		photos, v.StaffOnly.StaffPhotoPath, v.CreatedAt, v.CreatedBy, v.UpdatedAt, v.UpdatedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to create visit: %w", err)
	}
	return nil
}

// Update overwrites the editable fields of a visit. Photos and legacy
// fields are left untouched.
func (r *VisitRepository) Update(ctx context.Context, v *models.Visit) error {
	query := `
		UPDATE visits SET
			visit_at = $1, note = $2, staff_name = $3, line_consent = $4, menu = $5, style = $6,
			side_type = $7, side_mm = $8, back_type = $9, back_mm = $10, styling = $11, other = $12,
			updated_at = $13, updated_by = $14
		WHERE id = $15 AND customer_id = $16
	`
	result, err := r.db.Exec(ctx, query,
		v.VisitAt, v.Note, v.StaffName, v.LineConsent, v.Menu, v.Style,
		v.SideType, v.SideMm, v.BackType, v.BackMm, v.Styling, v.Other,
		v.UpdatedAt, v.UpdatedBy, v.ID, v.CustomerID,
	)
	if err != nil {
		return fmt.Errorf("failed to update visit: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("visit %s: %w", v.ID, apperror.ErrNotFound)
	}
	return nil
}

// GetByID retrieves a visit of a customer
func (r *VisitRepository) GetByID(ctx context.Context, customerID, visitID string) (*models.Visit, error) {
	query := `SELECT ` + visitColumns + ` FROM visits WHERE id = $1 AND customer_id = $2`
	v, err := scanVisit(r.db.QueryRow(ctx, query, visitID, customerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("visit %s: %w", visitID, apperror.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get visit: %w", err)
	}
	return v, nil
}

// ListByCustomer returns a customer's visits, newest first
func (r *VisitRepository) ListByCustomer(ctx context.Context, customerID string, limit int) ([]*models.Visit, error) {
	query := `
		SELECT ` + visitColumns + `
		FROM visits
		WHERE customer_id = $1
		ORDER BY visit_at DESC, created_at DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, customerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list visits: %w", err)
	}
	defer rows.Close()

	var visits []*models.Visit
	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan visit: %w", err)
		}
		visits = append(visits, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating visits: %w", err)
	}

	return visits, nil
}

// SetPhotos replaces the shared photo map of a visit
func (r *VisitRepository) SetPhotos(ctx context.Context, customerID, visitID string, photos map[string]string, at time.Time) error {
	if photos == nil {
		photos = map[string]string{}
	}
	query := `UPDATE visits SET photos = $1, updated_at = $2 WHERE id = $3 AND customer_id = $4`
	result, err := r.db.Exec(ctx, query, photos, at, visitID, customerID)
	if err != nil {
		return fmt.Errorf("failed to update visit photos: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("visit %s: %w", visitID, apperror.ErrNotFound)
	}
	return nil
}

// SetStaffPhoto sets or clears the staff-only photo path
func (r *VisitRepository) SetStaffPhoto(ctx context.Context, customerID, visitID string, path *string, at time.Time) error {
	query := `UPDATE visits SET staff_photo_path = $1, updated_at = $2 WHERE id = $3 AND customer_id = $4`
	result, err := r.db.Exec(ctx, query, path, at, visitID, customerID)
	if err != nil {
		return fmt.Errorf("failed to update staff photo: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("visit %s: %w", visitID, apperror.ErrNotFound)
	}
	return nil
}

// Delete deletes a visit
func (r *VisitRepository) Delete(ctx context.Context, customerID, visitID string) error {
	result, err := r.db.Exec(ctx, `DELETE FROM visits WHERE id = $1 AND customer_id = $2`, visitID, customerID)
	if err != nil {
		return fmt.Errorf("failed to delete visit: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("visit %s: %w", visitID, apperror.ErrNotFound)
	}
	return nil
}

func scanVisit(row pgx.Row) (*models.Visit, error) {
	var v models.Visit
	err := row.Scan(
		&v.ID, &v.CustomerID, &v.VisitAt, &v.Note, &v.StaffName, &v.LineConsent, &v.Menu, &v.Style,
		&v.SideType, &v.SideMm, &v.BackType, &v.BackMm, &v.Styling, &v.Other,
		&v.LengthSide, &v.LengthBack, &v.Photos, &v.StaffOnly.StaffPhotoPath,
		&v.CreatedAt, &v.CreatedBy, &v.UpdatedAt, &v.UpdatedBy,
	)
	if err != nil {
		return nil, err
	}
	if v.Photos == nil {
		v.Photos = map[string]string{}
	}
	return &v, nil
}
