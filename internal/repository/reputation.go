package repository

import (
	"context"
	"fmt"
	"time"
)

// UpsertGlobalReputation records one cross-tenant bad-actor sighting for a
// (fingerprint, IP) pair. The first sighting creates the row; later ones
// bump the abuse counter in the database.
func (r *Repository) UpsertGlobalReputation(ctx context.Context, fingerprintHash, ip string, seenAt time.Time) error {
	query := `
		INSERT INTO global_reputation (fingerprint_hash, ip, abuse_count, last_seen)
		VALUES ($1, $2, 1, $3)
		ON CONFLICT (fingerprint_hash, ip) DO UPDATE SET
			abuse_count = global_reputation.abuse_count + 1,
			last_seen   = EXCLUDED.last_seen
	`

	_, err := r.pool.Exec(ctx, query, fingerprintHash, ip, seenAt)
	if err != nil {
		return fmt.Errorf("failed to upsert global reputation: %w", err)
	}

	return nil
}
