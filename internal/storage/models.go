package storage

import (
	"time"

	"github.com/uptrace/bun"
)

// User represents a Discord identity known to the bot
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID        int64     `bun:"id,pk,autoincrement"`
	DiscordID string    `bun:"discord_id,unique,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// NKAccount links one Open Access Key to a Discord identity.
// The OAK is globally unique: one game account belongs to exactly one user.
type NKAccount struct {
	bun.BaseModel `bun:"table:nk_accounts,alias:a"`

	ID          int64     `bun:"id,pk,autoincrement"`
	DiscordID   string    `bun:"discord_id,notnull"`
	NKID        string    `bun:"nk_id,unique,notnull"`
	DisplayName string    `bun:"display_name"`
	LinkedAt    time.Time `bun:"linked_at,notnull,default:current_timestamp"`
}

// CachedPlayer holds the last fetched payload for one OAK
type CachedPlayer struct {
	bun.BaseModel `bun:"table:cache_player_data,alias:c"`

	ID          int64     `bun:"id,pk,autoincrement"`
	NKID        string    `bun:"nk_id,unique,notnull"`
	Payload     []byte    `bun:"payload,notnull"`
	LastUpdated time.Time `bun:"last_updated,notnull"`
}

// AwardedRole records a role this bot granted through the automated
// pipeline, independent of what the guild currently shows.
type AwardedRole struct {
	bun.BaseModel `bun:"table:roles_awarded,alias:r"`

	ID        int64     `bun:"id,pk,autoincrement"`
	DiscordID string    `bun:"discord_id,notnull,unique:uq_roles_awarded"`
	RoleID    string    `bun:"role_id,notnull,unique:uq_roles_awarded"`
	AwardedAt time.Time `bun:"awarded_at,notnull"`
}

// StaffUser is a member granted access to staff commands by an owner
type StaffUser struct {
	bun.BaseModel `bun:"table:staff_users,alias:s"`

	ID        int64     `bun:"id,pk,autoincrement"`
	DiscordID string    `bun:"discord_id,unique,notnull"`
	AddedBy   string    `bun:"added_by,notnull"`
	AddedAt   time.Time `bun:"added_at,notnull,default:current_timestamp"`
}

// ContentLimits is the single-row table holding the current known totals
// used as denominators for the completion rules.
type ContentLimits struct {
	bun.BaseModel `bun:"table:content_limits,alias:l"`

	ID                int64     `bun:"id,pk"`
	TotalMaps         int       `bun:"total_maps,notnull"`
	TotalAchievements int       `bun:"total_achievements,notnull"`
	LastChecked       time.Time `bun:"last_checked,notnull"`
}
