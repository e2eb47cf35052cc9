package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sentra/sentra/internal/model"
)

// ErrUsageNotFound indicates no usage record exists for the account.
var ErrUsageNotFound = errors.New("usage record not found")

// GetUsage retrieves an account's usage record.
func (r *Repository) GetUsage(ctx context.Context, userID string) (*model.UsageRecord, error) {
	query := `
		SELECT user_id, used, quota, cycle_start, cycle_end
		FROM usage_records
		WHERE user_id = $1
	`

	var usage model.UsageRecord
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&usage.UserID,
		&usage.Used,
		&usage.Quota,
		&usage.CycleStart,
		&usage.CycleEnd,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUsageNotFound
		}
		return nil, fmt.Errorf("failed to get usage: %w", err)
	}

	return &usage, nil
}

// IncrementUsage bumps the account's consumed-request counter by one.
// The increment happens in the database so concurrent requests never lose
// updates.
func (r *Repository) IncrementUsage(ctx context.Context, userID string) error {
	query := `
		UPDATE usage_records
		SET used = used + 1
		WHERE user_id = $1
	`

	result, err := r.pool.Exec(ctx, query, userID)
	if err != nil {
		return fmt.Errorf("failed to increment usage: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrUsageNotFound
	}

	return nil
}

// EnsureUsageRecord creates the account's usage row if it is missing,
// starting a fresh 30-day cycle with the given quota. Zero quota means
// unlimited. Used by the bootstrap tool.
func (r *Repository) EnsureUsageRecord(ctx context.Context, userID string, quota int64) error {
	now := time.Now().UTC()
	query := `
		INSERT INTO usage_records (user_id, used, quota, cycle_start, cycle_end)
		VALUES ($1, 0, $2, $3, $4)
		ON CONFLICT (user_id) DO NOTHING
	`

	_, err := r.pool.Exec(ctx, query, userID, quota, now, now.AddDate(0, 0, 30))
	if err != nil {
		return fmt.Errorf("failed to ensure usage record: %w", err)
	}

	return nil
}
