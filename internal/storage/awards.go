package storage

import (
	"context"
	"fmt"
	"time"
)

// Awarded-role tracking

// AwardedRoles returns the role IDs this bot has granted to a user
func (r *Repository) AwardedRoles(ctx context.Context, discordID string) ([]string, error) {
	var roleIDs []string
	err := r.db.NewSelect().
		Model((*AwardedRole)(nil)).
		Column("role_id").
		Where("discord_id = ?", discordID).
		Scan(ctx, &roleIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to list awarded roles: %w", err)
	}
	return roleIDs, nil
}

// TrackRoleAwarded records a grant. Idempotent: a repeat grant refreshes
// the timestamp instead of inserting a duplicate.
func (r *Repository) TrackRoleAwarded(ctx context.Context, discordID, roleID string, at time.Time) error {
	award := &AwardedRole{
		DiscordID: discordID,
		RoleID:    roleID,
		AwardedAt: at,
	}
	_, err := r.db.NewInsert().
		Model(award).
		On("CONFLICT (discord_id, role_id) DO UPDATE").
		Set("awarded_at = EXCLUDED.awarded_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to track awarded role: %w", err)
	}
	return nil
}

// ClearAwardedRoleRecords deletes every tracked grant for a user and
// returns the role IDs that were tracked. Guild-side removal is the
// applier's job; the tracker delete is unconditional.
func (r *Repository) ClearAwardedRoleRecords(ctx context.Context, discordID string) ([]string, error) {
	roleIDs, err := r.AwardedRoles(ctx, discordID)
	if err != nil {
		return nil, err
	}
	if len(roleIDs) == 0 {
		return nil, nil
	}

	_, err = r.db.NewDelete().
		Model((*AwardedRole)(nil)).
		Where("discord_id = ?", discordID).
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to clear awarded roles: %w", err)
	}
	return roleIDs, nil
}
