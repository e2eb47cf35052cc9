package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/sentra/sentra/internal/model"
)

// ErrBlockNotFound indicates no matching manual block.
var ErrBlockNotFound = errors.New("block not found")

// ActiveBlock retrieves an active manual block matching the visitor's IP or
// fingerprint hash on a site. Expiry is evaluated at query time: a block is
// active when expires_at is NULL or in the future.
func (r *Repository) ActiveBlock(ctx context.Context, siteKey, ip, fingerprintHash string) (*model.ManualBlock, error) {
	query := `
		SELECT id, site_key, COALESCE(ip, ''), COALESCE(fingerprint_hash, ''), reason, created_at, expires_at
		FROM manual_blocks
		WHERE site_key = $1
		  AND (ip = $2 OR fingerprint_hash = $3)
		  AND (expires_at IS NULL OR expires_at > NOW())
		LIMIT 1
	`

	block, err := scanBlock(r.pool.QueryRow(ctx, query, siteKey, ip, fingerprintHash))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBlockNotFound
		}
		return nil, fmt.Errorf("failed to get active block: %w", err)
	}

	return block, nil
}

// ListActiveBlocks retrieves all currently active blocks for a site,
// newest first. Consumed by client-side enforcement scripts.
func (r *Repository) ListActiveBlocks(ctx context.Context, siteKey string) ([]*model.ManualBlock, error) {
	query := `
		SELECT id, site_key, COALESCE(ip, ''), COALESCE(fingerprint_hash, ''), reason, created_at, expires_at
		FROM manual_blocks
		WHERE site_key = $1
		  AND (expires_at IS NULL OR expires_at > NOW())
		ORDER BY created_at DESC
	`

	rows, err := r.pool.Query(ctx, query, siteKey)
	if err != nil {
		return nil, fmt.Errorf("failed to list blocks: %w", err)
	}
	defer rows.Close()

	var blocks []*model.ManualBlock
	for rows.Next() {
		block, err := scanBlock(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan block: %w", err)
		}
		blocks = append(blocks, block)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating blocks: %w", err)
	}

	return blocks, nil
}

// CreateBlock inserts a manual block created by an operator.
func (r *Repository) CreateBlock(ctx context.Context, block *model.ManualBlock) error {
	query := `
		INSERT INTO manual_blocks (id, site_key, ip, fingerprint_hash, reason, created_at, expires_at)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6, $7)
	`

	_, err := r.pool.Exec(ctx, query,
		block.ID,
		block.SiteKey,
		block.IP,
		block.FingerprintHash,
		block.Reason,
		block.CreatedAt,
		block.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create block: %w", err)
	}

	return nil
}

// CreateTrialAbuseBlock inserts the detector's fingerprint block. A partial
// unique index keyed on the trial-abuse reason makes re-detection a no-op;
// the boolean reports whether this call actually created the row.
func (r *Repository) CreateTrialAbuseBlock(ctx context.Context, block *model.ManualBlock) (bool, error) {
	query := `
		INSERT INTO manual_blocks (id, site_key, fingerprint_hash, reason, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT DO NOTHING
	`

	result, err := r.pool.Exec(ctx, query,
		block.ID,
		block.SiteKey,
		block.FingerprintHash,
		block.Reason,
		block.CreatedAt,
		block.ExpiresAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to create trial-abuse block: %w", err)
	}

	return result.RowsAffected() == 1, nil
}

// GetBlock retrieves one block by ID.
func (r *Repository) GetBlock(ctx context.Context, id string) (*model.ManualBlock, error) {
	query := `
		SELECT id, site_key, COALESCE(ip, ''), COALESCE(fingerprint_hash, ''), reason, created_at, expires_at
		FROM manual_blocks
		WHERE id = $1
	`

	block, err := scanBlock(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBlockNotFound
		}
		return nil, fmt.Errorf("failed to get block: %w", err)
	}

	return block, nil
}

// DeleteBlock removes a block by ID.
func (r *Repository) DeleteBlock(ctx context.Context, id string) error {
	query := `DELETE FROM manual_blocks WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete block: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrBlockNotFound
	}

	return nil
}

func scanBlock(row pgx.Row) (*model.ManualBlock, error) {
	var block model.ManualBlock
	err := row.Scan(
		&block.ID,
		&block.SiteKey,
		&block.IP,
		&block.FingerprintHash,
		&block.Reason,
		&block.CreatedAt,
		&block.ExpiresAt,
	)
	return &block, err
}
