package roles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oakroles/discord-bot/internal/metrics"
	"github.com/oakroles/discord-bot/internal/storage"
)

// ErrUnknownMember means the user is not in the guild. Callers must treat
// it as an expected steady state (the member left), not a fault.
var ErrUnknownMember = errors.New("unknown guild member")

// Member is a live guild member with their current role IDs
type Member struct {
	ID       string
	Username string
	RoleIDs  []string
}

// Role is a guild role
type Role struct {
	ID   string
	Name string
}

// Guild abstracts the external membership system
type Guild interface {
	Member(ctx context.Context, userID string) (*Member, error)
	Role(ctx context.Context, roleID string) (*Role, error)
	AddRole(ctx context.Context, userID, roleID string) error
	RemoveRole(ctx context.Context, userID, roleID string) error
}

// Notifier delivers out-of-band role change notices. Failures are
// swallowed by the applier.
type Notifier interface {
	NotifyRoleChanges(userID string, added, removed []string) error
}

// TrackerStore is the awarded-role bookkeeping the applier maintains
type TrackerStore interface {
	AccountsByUser(ctx context.Context, discordID string) ([]storage.NKAccount, error)
	AwardedRoles(ctx context.Context, discordID string) ([]string, error)
	TrackRoleAwarded(ctx context.Context, discordID, roleID string, at time.Time) error
	ClearAwardedRoleRecords(ctx context.Context, discordID string) ([]string, error)
}

// Applier mutates guild membership from a RoleDiff. Per-role operations
// are independent: one failure never aborts the rest of the batch.
type Applier struct {
	store    TrackerStore
	guild    Guild
	notifier Notifier
	metrics  *metrics.Metrics
}

// NewApplier creates an applier with injected collaborators
func NewApplier(store TrackerStore, guild Guild, notifier Notifier, m *metrics.Metrics) *Applier {
	return &Applier{
		store:    store,
		guild:    guild,
		notifier: notifier,
		metrics:  m,
	}
}

// ApplyRoleChanges grants and revokes roles per the diff, updates the
// tracker and notifies the user. A member who has left the guild triggers
// the cleanup path instead.
func (a *Applier) ApplyRoleChanges(ctx context.Context, discordID string, diff RoleDiff, skipNotification, silent bool) error {
	member, err := a.guild.Member(ctx, discordID)
	if err != nil {
		if errors.Is(err, ErrUnknownMember) {
			return a.handleDepartedMember(ctx, discordID, silent)
		}
		return fmt.Errorf("failed to resolve member %s: %w", discordID, err)
	}

	held := make(map[string]bool, len(member.RoleIDs))
	for _, roleID := range member.RoleIDs {
		held[roleID] = true
	}

	var namesAdded, namesRemoved []string

	for _, roleID := range diff.RolesToAdd {
		if held[roleID] {
			continue
		}
		role, err := a.guild.Role(ctx, roleID)
		if err != nil {
			slog.Error("Failed to resolve role", "role", roleID, "error", err)
			continue
		}
		if err := a.guild.AddRole(ctx, discordID, roleID); err != nil {
			slog.Error("Failed to add role", "role", role.Name, "user", member.Username, "error", err)
			continue
		}
		if err := a.store.TrackRoleAwarded(ctx, discordID, roleID, time.Now()); err != nil {
			slog.Error("Failed to track awarded role", "role", roleID, "user", discordID, "error", err)
		}
		a.metrics.RoleGranted()
		namesAdded = append(namesAdded, role.Name)
		if !silent {
			slog.Info("Added role", "role", role.Name, "user", member.Username)
		}
	}

	// Only the cleanup path populates RolesToRemove
	for _, roleID := range diff.RolesToRemove {
		if !held[roleID] {
			continue
		}
		role, err := a.guild.Role(ctx, roleID)
		if err != nil {
			slog.Error("Failed to resolve role", "role", roleID, "error", err)
			continue
		}
		if err := a.guild.RemoveRole(ctx, discordID, roleID); err != nil {
			slog.Error("Failed to remove role", "role", role.Name, "user", member.Username, "error", err)
			continue
		}
		a.metrics.RoleRevoked()
		namesRemoved = append(namesRemoved, role.Name)
		if !silent {
			slog.Info("Removed role", "role", role.Name, "user", member.Username)
		}
	}

	if !skipNotification && (len(namesAdded) > 0 || len(namesRemoved) > 0) {
		if err := a.notifier.NotifyRoleChanges(discordID, namesAdded, namesRemoved); err != nil {
			// DMs may be disabled; the role mutation already happened
			slog.Warn("Could not notify user of role changes", "user", discordID, "error", err)
		}
	}

	return nil
}

// ClearAwardedRoles attempts to remove every tracked role from the live
// member (best effort, per-role failures tolerated), then unconditionally
// deletes the tracker records. Returns the role IDs cleared from the
// tracker, which is not necessarily what was removed externally.
func (a *Applier) ClearAwardedRoles(ctx context.Context, discordID string) ([]string, error) {
	tracked, err := a.store.AwardedRoles(ctx, discordID)
	if err != nil {
		return nil, err
	}
	if len(tracked) == 0 {
		return nil, nil
	}

	member, err := a.guild.Member(ctx, discordID)
	if err != nil {
		// Member gone or unreachable: tracker cleanup still proceeds
		if !errors.Is(err, ErrUnknownMember) {
			slog.Warn("Could not resolve member for role cleanup", "user", discordID, "error", err)
		}
	} else {
		held := make(map[string]bool, len(member.RoleIDs))
		for _, roleID := range member.RoleIDs {
			held[roleID] = true
		}
		for _, roleID := range tracked {
			if !held[roleID] {
				continue
			}
			if err := a.guild.RemoveRole(ctx, discordID, roleID); err != nil {
				slog.Warn("Could not remove role during cleanup", "role", roleID, "user", discordID, "error", err)
				continue
			}
			a.metrics.RoleRevoked()
		}
	}

	return a.store.ClearAwardedRoleRecords(ctx, discordID)
}

// handleDepartedMember is the left-guild cleanup: expected steady state,
// not an error.
func (a *Applier) handleDepartedMember(ctx context.Context, discordID string, silent bool) error {
	accounts, err := a.store.AccountsByUser(ctx, discordID)
	if err != nil {
		return err
	}
	if len(accounts) == 0 {
		return nil
	}

	if _, err := a.ClearAwardedRoles(ctx, discordID); err != nil {
		slog.Error("Failed to clear roles for departed member", "user", discordID, "error", err)
		return nil
	}
	if !silent {
		slog.Info("Member left guild, cleared tracked roles", "user", discordID, "linkedAccounts", len(accounts))
	}
	return nil
}
