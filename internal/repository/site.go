package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/sentra/sentra/internal/model"
)

// ErrSiteNotFound indicates no site matches the given key.
var ErrSiteNotFound = errors.New("site not found")

// GetSiteByKey retrieves a site by its public site key.
// This is on the hot path of every ingestion call.
func (r *Repository) GetSiteByKey(ctx context.Context, apiKey string) (*model.Site, error) {
	query := `
		SELECT id, api_key, user_id, auto_block, risk_threshold,
		       auto_block_trial_abuse, trial_abuse_threshold,
		       share_reputation, secret_hash, created_at
		FROM sites
		WHERE api_key = $1
	`

	var site model.Site
	err := r.pool.QueryRow(ctx, query, apiKey).Scan(
		&site.ID,
		&site.APIKey,
		&site.UserID,
		&site.AutoBlock,
		&site.RiskThreshold,
		&site.AutoBlockTrialAbuse,
		&site.TrialAbuseThreshold,
		&site.ShareReputation,
		&site.SecretHash,
		&site.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSiteNotFound
		}
		return nil, fmt.Errorf("failed to get site by key: %w", err)
	}

	return &site, nil
}

// CreateSite inserts a new site row. Used by the bootstrap tool.
func (r *Repository) CreateSite(ctx context.Context, site *model.Site) error {
	query := `
		INSERT INTO sites (id, api_key, user_id, auto_block, risk_threshold,
		                   auto_block_trial_abuse, trial_abuse_threshold,
		                   share_reputation, secret_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.pool.Exec(ctx, query,
		site.ID,
		site.APIKey,
		site.UserID,
		site.AutoBlock,
		site.RiskThreshold,
		site.AutoBlockTrialAbuse,
		site.TrialAbuseThreshold,
		site.ShareReputation,
		site.SecretHash,
		site.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("site key already exists: %w", err)
		}
		return fmt.Errorf("failed to create site: %w", err)
	}

	return nil
}
