package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/sentra/sentra/internal/model"
)

// ErrVisitorNotFound indicates no visitor row matches the lookup.
var ErrVisitorNotFound = errors.New("visitor not found")

// UpsertVisitor inserts the visitor row or, when the (site, visitor) pair
// already exists, refreshes the last-known context and bumps the visit
// counter atomically in the database. Returns the post-increment count.
func (r *Repository) UpsertVisitor(ctx context.Context, v *model.Visitor) (int64, error) {
	query := `
		INSERT INTO visitors (id, site_id, fingerprint, user_agent, screen_resolution,
		                      timezone, language, ip_address, country, city, region, isp,
		                      email, phone, name, is_tor, is_proxy, is_temp_email,
		                      visit_count, risk_score, last_seen, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
		        $13, $14, $15, $16, $17, $18, 1, $19, $20, $20)
		ON CONFLICT (site_id, id) DO UPDATE SET
			user_agent        = EXCLUDED.user_agent,
			screen_resolution = EXCLUDED.screen_resolution,
			timezone          = EXCLUDED.timezone,
			language          = EXCLUDED.language,
			ip_address        = EXCLUDED.ip_address,
			country           = EXCLUDED.country,
			city              = EXCLUDED.city,
			region            = EXCLUDED.region,
			isp               = EXCLUDED.isp,
			email             = COALESCE(EXCLUDED.email, visitors.email),
			phone             = COALESCE(EXCLUDED.phone, visitors.phone),
			name              = COALESCE(EXCLUDED.name, visitors.name),
			is_tor            = EXCLUDED.is_tor,
			is_proxy          = EXCLUDED.is_proxy,
			is_temp_email     = EXCLUDED.is_temp_email,
			visit_count       = visitors.visit_count + 1,
			last_seen         = EXCLUDED.last_seen
		RETURNING visit_count
	`

	var visitCount int64
	err := r.pool.QueryRow(ctx, query,
		v.ID,
		v.SiteID,
		v.Fingerprint,
		v.UserAgent,
		v.ScreenResolution,
		v.Timezone,
		v.Language,
		v.IPAddress,
		v.Country,
		v.City,
		v.Region,
		v.ISP,
		v.Email,
		v.Phone,
		v.Name,
		v.IsTor,
		v.IsProxy,
		v.IsTempEmail,
		v.RiskScore,
		v.LastSeen,
	).Scan(&visitCount)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert visitor: %w", err)
	}

	return visitCount, nil
}

// UpdateVisitorRisk stores the final score of the latest ingestion on the
// visitor row. Best-effort from the caller's perspective.
func (r *Repository) UpdateVisitorRisk(ctx context.Context, siteID, visitorID string, riskScore int) error {
	query := `
		UPDATE visitors
		SET risk_score = $3
		WHERE site_id = $1 AND id = $2
	`

	result, err := r.pool.Exec(ctx, query, siteID, visitorID, riskScore)
	if err != nil {
		return fmt.Errorf("failed to update visitor risk: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrVisitorNotFound
	}

	return nil
}

// GetVisitor retrieves one visitor by site and deterministic ID.
func (r *Repository) GetVisitor(ctx context.Context, siteID, visitorID string) (*model.Visitor, error) {
	query := `
		SELECT id, site_id, fingerprint, user_agent, screen_resolution,
		       timezone, language, ip_address, country, city, region, isp,
		       email, phone, name, is_tor, is_proxy, is_temp_email,
		       visit_count, risk_score, last_seen, created_at
		FROM visitors
		WHERE site_id = $1 AND id = $2
	`

	var v model.Visitor
	err := r.pool.QueryRow(ctx, query, siteID, visitorID).Scan(
		&v.ID,
		&v.SiteID,
		&v.Fingerprint,
		&v.UserAgent,
		&v.ScreenResolution,
		&v.Timezone,
		&v.Language,
		&v.IPAddress,
		&v.Country,
		&v.City,
		&v.Region,
		&v.ISP,
		&v.Email,
		&v.Phone,
		&v.Name,
		&v.IsTor,
		&v.IsProxy,
		&v.IsTempEmail,
		&v.VisitCount,
		&v.RiskScore,
		&v.LastSeen,
		&v.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrVisitorNotFound
		}
		return nil, fmt.Errorf("failed to get visitor: %w", err)
	}

	return &v, nil
}
