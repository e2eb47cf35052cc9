package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sentra/sentra/internal/model"
)

// ErrEventNotFound indicates no event matches the lookup window.
var ErrEventNotFound = errors.New("event not found")

// InsertEvent appends one immutable ingestion record. A failure here fails
// the whole ingestion call; an accepted request must leave a trace.
func (r *Repository) InsertEvent(ctx context.Context, event *model.Event) error {
	properties, err := json.Marshal(event.Properties)
	if err != nil {
		return fmt.Errorf("failed to marshal event properties: %w", err)
	}

	query := `
		INSERT INTO events (id, site_id, visitor_id, ip_address, referrer, properties, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err = r.pool.Exec(ctx, query,
		event.ID,
		event.SiteID,
		event.VisitorID,
		event.Properties.IP,
		event.Referrer,
		properties,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}

	return nil
}

// VelocityCount returns the number of events recorded for a visitor on a
// site since the given instant. The count excludes the event currently
// being ingested, which has not been written yet.
func (r *Repository) VelocityCount(ctx context.Context, siteID, visitorID string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM events
		WHERE site_id = $1 AND visitor_id = $2 AND timestamp >= $3
	`

	var count int
	if err := r.pool.QueryRow(ctx, query, siteID, visitorID, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count velocity: %w", err)
	}

	return count, nil
}

// LatestEvent retrieves the most recent event for a visitor on a site no
// older than the given instant.
func (r *Repository) LatestEvent(ctx context.Context, siteID, visitorID string, since time.Time) (*model.Event, error) {
	query := `
		SELECT id, site_id, visitor_id, referrer, properties, timestamp
		FROM events
		WHERE site_id = $1 AND visitor_id = $2 AND timestamp >= $3
		ORDER BY timestamp DESC
		LIMIT 1
	`

	var (
		event      model.Event
		properties []byte
	)
	err := r.pool.QueryRow(ctx, query, siteID, visitorID, since).Scan(
		&event.ID,
		&event.SiteID,
		&event.VisitorID,
		&event.Referrer,
		&properties,
		&event.Timestamp,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to get latest event: %w", err)
	}

	if err := json.Unmarshal(properties, &event.Properties); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event properties: %w", err)
	}

	return &event, nil
}
