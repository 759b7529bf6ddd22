package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Snapshot cache operations

// Snapshot returns the cached payload for an OAK and when it was stored
func (r *Repository) Snapshot(ctx context.Context, nkID string) ([]byte, time.Time, error) {
	cached := &CachedPlayer{}
	err := r.db.NewSelect().Model(cached).Where("nk_id = ?", nkID).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, time.Time{}, ErrNoSnapshot
		}
		return nil, time.Time{}, fmt.Errorf("failed to read snapshot: %w", err)
	}
	return cached.Payload, cached.LastUpdated, nil
}

// UpsertSnapshot stores the latest payload for an OAK, replacing any
// previous snapshot. At most one row per OAK exists.
func (r *Repository) UpsertSnapshot(ctx context.Context, nkID string, payload []byte, at time.Time) error {
	cached := &CachedPlayer{
		NKID:        nkID,
		Payload:     payload,
		LastUpdated: at,
	}
	_, err := r.db.NewInsert().
		Model(cached).
		On("CONFLICT (nk_id) DO UPDATE").
		Set("payload = EXCLUDED.payload").
		Set("last_updated = EXCLUDED.last_updated").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to upsert snapshot: %w", err)
	}
	return nil
}
