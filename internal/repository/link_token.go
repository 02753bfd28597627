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

// LinkTokenRepository handles database operations for link tokens
type LinkTokenRepository struct {
	db *pgxpool.Pool
}

// NewLinkTokenRepository creates a new link token repository
func NewLinkTokenRepository(db *pgxpool.Pool) *LinkTokenRepository {
	return &LinkTokenRepository{db: db}
}

// Create stores a token. A row with the same code is only replaced when it is
// already spent or expired; if the code is live, Create reports false.
func (r *LinkTokenRepository) Create(ctx context.Context, t *models.LinkToken) (bool, error) {
	query := `
		INSERT INTO link_tokens (code, customer_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (code) DO UPDATE
		SET customer_id = EXCLUDED.customer_id,
			expires_at = EXCLUDED.expires_at,
			created_at = EXCLUDED.created_at,
			used_at = NULL,
			used_by_line_user_id = NULL
		WHERE link_tokens.used_at IS NOT NULL OR link_tokens.expires_at <= EXCLUDED.created_at
	`
	result, err := r.db.Exec(ctx, query, t.Code, t.CustomerID, t.ExpiresAt, t.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("failed to create link token: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

// Redeem consumes a live token and links the LINE user to its customer in one
// transaction. Any customer previously linked to the same LINE user is
// unlinked.
func (r *LinkTokenRepository) Redeem(ctx context.Context, code, lineUserID string, now time.Time) (string, error) {
	var customerID string
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		consume := `
			UPDATE link_tokens
			SET used_at = $1, used_by_line_user_id = $2
			WHERE code = $3 AND used_at IS NULL AND expires_at > $1
			RETURNING customer_id
		`
		if err := tx.QueryRow(ctx, consume, now, lineUserID, code).Scan(&customerID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apperror.ErrInvalidLinkToken
			}
			return fmt.Errorf("failed to consume link token: %w", err)
		}

		unlink := `UPDATE customers SET line_user_id = NULL, updated_at = $1 WHERE line_user_id = $2 AND id <> $3`
		if _, err := tx.Exec(ctx, unlink, now, lineUserID, customerID); err != nil {
			return fmt.Errorf("failed to unlink previous customer: %w", err)
		}

		link := `UPDATE customers SET line_user_id = $1, updated_at = $2 WHERE id = $3`
		if _, err := tx.Exec(ctx, link, lineUserID, now, customerID); err != nil {
			return fmt.Errorf("failed to link customer: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return customerID, nil
}

// DeleteSpent removes tokens that were used or have expired before now
func (r *LinkTokenRepository) DeleteSpent(ctx context.Context, now time.Time) (int64, error) {
	query := `DELETE FROM link_tokens WHERE used_at IS NOT NULL OR expires_at <= $1`
	result, err := r.db.Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete spent link tokens: %w", err)
	}
	return result.RowsAffected(), nil
}
