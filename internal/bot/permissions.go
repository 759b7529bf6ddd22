package bot

import (
	"context"
	"log/slog"

	"github.com/bwmarrin/discordgo"
)

// isOwner reports whether the user is one of the configured bot owners
func (b *Bot) isOwner(userID string) bool {
	for _, id := range b.config.OwnerIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// hasStaffAccess reports whether the invoking member may run staff
// commands: owners, users on the staff list, and members holding
// Administrator or Manage Roles in the guild.
func (b *Bot) hasStaffAccess(ctx context.Context, i *discordgo.InteractionCreate) bool {
	userID := interactionUserID(i)
	if userID == "" {
		return false
	}

	if b.isOwner(userID) {
		return true
	}

	if ok, err := b.repo.IsStaff(ctx, userID); err != nil {
		slog.Error("Staff lookup failed", "user", userID, "error", err)
	} else if ok {
		return true
	}

	if i.Member != nil {
		perms := i.Member.Permissions
		if perms&discordgo.PermissionAdministrator != 0 || perms&discordgo.PermissionManageRoles != 0 {
			return true
		}
	}

	return false
}

// interactionUserID works for both guild and DM invocations
func interactionUserID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}
