package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Staff list operations

// AddStaff grants staff access to a user. Adding an existing staff member
// is a no-op.
func (r *Repository) AddStaff(ctx context.Context, discordID, addedBy string) error {
	staff := &StaffUser{
		DiscordID: discordID,
		AddedBy:   addedBy,
		AddedAt:   time.Now(),
	}
	_, err := r.db.NewInsert().
		Model(staff).
		On("CONFLICT (discord_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to add staff: %w", err)
	}
	return nil
}

// RemoveStaff revokes staff access. Returns false if the user was not staff.
func (r *Repository) RemoveStaff(ctx context.Context, discordID string) (bool, error) {
	result, err := r.db.NewDelete().
		Model((*StaffUser)(nil)).
		Where("discord_id = ?", discordID).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to remove staff: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// IsStaff reports whether a user is in the staff list
func (r *Repository) IsStaff(ctx context.Context, discordID string) (bool, error) {
	exists := &StaffUser{}
	err := r.db.NewSelect().Model(exists).Where("discord_id = ?", discordID).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check staff: %w", err)
	}
	return true, nil
}

// ListStaff returns all staff users
func (r *Repository) ListStaff(ctx context.Context) ([]StaffUser, error) {
	var staff []StaffUser
	if err := r.db.NewSelect().Model(&staff).Order("added_at ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to list staff: %w", err)
	}
	return staff, nil
}
