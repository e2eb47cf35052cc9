package repository

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// AddVisitorEmail records one (site, fingerprint, email) observation.
// Emails are lower-cased before insert; duplicates are silently ignored so
// the distinct count stays exact.
func (r *Repository) AddVisitorEmail(ctx context.Context, siteID, fingerprint, email string) error {
	query := `
		INSERT INTO visitor_emails (site_id, fingerprint, email, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (site_id, fingerprint, email) DO NOTHING
	`

	_, err := r.pool.Exec(ctx, query, siteID, fingerprint, strings.ToLower(email), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to add visitor email: %w", err)
	}

	return nil
}

// CountDistinctEmails returns how many distinct emails a fingerprint has
// presented on a site. The trial-abuse detector compares this against the
// site's threshold.
func (r *Repository) CountDistinctEmails(ctx context.Context, siteID, fingerprint string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM visitor_emails
		WHERE site_id = $1 AND fingerprint = $2
	`

	var count int
	if err := r.pool.QueryRow(ctx, query, siteID, fingerprint).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count visitor emails: %w", err)
	}

	return count, nil
}
