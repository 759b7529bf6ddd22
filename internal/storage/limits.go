package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Content-limit persistence. A single row (id=1) survives restarts so
// manually-set or inferred limits are not lost.

const contentLimitsRowID = 1

// ContentLimitsRow returns the persisted limits, or ErrNoSnapshot if the
// row has never been written.
func (r *Repository) ContentLimitsRow(ctx context.Context) (*ContentLimits, error) {
	limits := &ContentLimits{}
	err := r.db.NewSelect().Model(limits).Where("id = ?", contentLimitsRowID).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoSnapshot
		}
		return nil, fmt.Errorf("failed to read content limits: %w", err)
	}
	return limits, nil
}

// SaveContentLimits writes through the single limits row
func (r *Repository) SaveContentLimits(ctx context.Context, limits *ContentLimits) error {
	limits.ID = contentLimitsRowID
	_, err := r.db.NewInsert().
		Model(limits).
		On("CONFLICT (id) DO UPDATE").
		Set("total_maps = EXCLUDED.total_maps").
		Set("total_achievements = EXCLUDED.total_achievements").
		Set("last_checked = EXCLUDED.last_checked").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to save content limits: %w", err)
	}
	return nil
}
