package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/oakroles/discord-bot/internal/storage"
)

// Slash command definitions
func (b *Bot) getCommandDefinitions() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        "verify",
			Description: "Link a BTD6 account to your Discord identity and earn roles",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "oak",
					Description: "Your Open Access Key (from the in-game settings)",
					Required:    true,
				},
			},
		},
		{
			Name:        "unlink",
			Description: "Unlink one of your BTD6 accounts",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "oak",
					Description: "The Open Access Key to unlink",
					Required:    true,
				},
			},
		},
		{
			Name:        "myaccounts",
			Description: "List the BTD6 accounts linked to you",
		},
		{
			Name:        "myroles",
			Description: "Show your progress towards each achievement role",
		},
		{
			Name:        "help",
			Description: "Show what this bot does and how to use it",
		},
		{
			Name:        "forcelink",
			Description: "Staff: link an account to a user, overriding existing ownership",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "user",
					Description: "The user to link the account to",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "oak",
					Description: "The Open Access Key to link",
					Required:    true,
				},
			},
		},
		{
			Name:        "forceremove",
			Description: "Staff: remove a user's linked account(s) and tracked roles",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "user",
					Description: "The user to remove links from",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "oak",
					Description: "A specific key to remove (all accounts if omitted)",
					Required:    false,
				},
			},
		},
		{
			Name:        "forcerolesync",
			Description: "Staff: re-evaluate roles for one user or everyone",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "user",
					Description: "The user to re-sync (everyone if omitted)",
					Required:    false,
				},
			},
		},
		{
			Name:        "checkuser",
			Description: "Staff: inspect a user's linked accounts and qualification state",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "user",
					Description: "The user to inspect",
					Required:    true,
				},
			},
		},
		{
			Name:        "listall",
			Description: "Staff: list every linked account",
		},
		{
			Name:        "updatecontent",
			Description: "Staff: override content totals or run the inference check",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "maps",
					Description: "New total map count",
					Required:    false,
				},
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "achievements",
					Description: "New total achievement count",
					Required:    false,
				},
			},
		},
		{
			Name:        "status",
			Description: "Staff: show bot health and linked account counts",
		},
		{
			Name:        "addstaff",
			Description: "Owner: grant a user access to staff commands",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "user",
					Description: "The user to add as staff",
					Required:    true,
				},
			},
		},
		{
			Name:        "removestaff",
			Description: "Owner: revoke a user's staff access",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "user",
					Description: "The user to remove from staff",
					Required:    true,
				},
			},
		},
	}
}

// registerCommands registers all slash commands with Discord, scoped to
// the configured guild so they appear immediately.
func (b *Bot) registerCommands() error {
	slog.Info("Registering slash commands")

	commandDefinitions := b.getCommandDefinitions()
	registeredCommands := make([]*discordgo.ApplicationCommand, 0, len(commandDefinitions))

	for _, cmd := range commandDefinitions {
		registered, err := b.session.ApplicationCommandCreate(
			b.session.State.User.ID,
			b.config.GuildID,
			cmd,
		)
		if err != nil {
			return fmt.Errorf("failed to register command %s: %w", cmd.Name, err)
		}
		registeredCommands = append(registeredCommands, registered)
		slog.Debug("Registered command", "name", cmd.Name)
	}

	b.commands = registeredCommands
	slog.Info("Slash commands registered", "count", len(registeredCommands))
	return nil
}

// handleVerify handles the /verify command
func (b *Bot) handleVerify(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	oak := sanitizeOAK(i.ApplicationCommandData().Options[0].StringValue())
	userID := interactionUserID(i)

	if !validOAK(oak) {
		b.editReplyEmbed(s, i, errorEmbed("Invalid Key",
			"That doesn't look like a valid Open Access Key. Keys contain only letters, numbers, `-` and `_`."))
		return
	}

	// Linking requires a live lookup: a dead key must not be linkable
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	player := b.cache.GetPlayerData(ctx, oak, true)
	if player == nil {
		b.editReplyEmbed(s, i, errorEmbed("Verification Failed",
			"Could not fetch account data for that key. Double-check it and try again."))
		return
	}

	if player.Flagged() {
		b.editReplyEmbed(s, i, errorEmbed("Verification Refused",
			"That account is flagged and cannot be linked."))
		return
	}

	if err := b.repo.LinkAccount(ctx, userID, oak, player.DisplayName); err != nil {
		switch {
		case errors.Is(err, storage.ErrAlreadyLinkedSelf):
			b.editReplyEmbed(s, i, warningEmbed("Already Linked",
				"That account is already linked to you."))
		case errors.Is(err, storage.ErrAlreadyLinkedOther):
			b.editReplyEmbed(s, i, errorEmbed("Already Linked",
				"That account is already linked to another user. Contact staff if you believe this is wrong."))
		default:
			slog.Error("Failed to link account", "user", userID, "error", err)
			b.editReplyEmbed(s, i, errorEmbed("Error", "Failed to link the account. Please try again."))
		}
		return
	}

	slog.Info("Account linked", "user", userID, "account", player.DisplayName)

	diff := b.evaluator.EvaluateRoles(ctx, userID, false)
	if err := b.applier.ApplyRoleChanges(ctx, userID, diff, true, false); err != nil {
		slog.Error("Failed to apply roles after verify", "user", userID, "error", err)
	}

	description := fmt.Sprintf("Linked **%s** to your Discord account.", player.DisplayName)
	if len(diff.RolesToAdd) > 0 {
		description += fmt.Sprintf("\n\nYou earned **%d** new role(s)! Check your profile.", len(diff.RolesToAdd))
	}
	b.editReplyEmbed(s, i, successEmbed("Account Verified", description))
}

// handleUnlink handles the /unlink command
func (b *Bot) handleUnlink(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	oak := sanitizeOAK(i.ApplicationCommandData().Options[0].StringValue())
	userID := interactionUserID(i)

	if err := b.repo.UnlinkAccount(ctx, userID, oak); err != nil {
		if errors.Is(err, storage.ErrNotLinked) {
			b.editReplyEmbed(s, i, warningEmbed("Not Linked",
				"That key is not linked to your account."))
			return
		}
		slog.Error("Failed to unlink account", "user", userID, "error", err)
		b.editReplyEmbed(s, i, errorEmbed("Error", "Failed to unlink the account. Please try again."))
		return
	}

	remaining, err := b.repo.AccountsByUser(ctx, userID)
	if err != nil {
		slog.Error("Failed to list remaining accounts", "user", userID, "error", err)
	}

	description := "The account has been unlinked."
	if err == nil && len(remaining) == 0 {
		// Last account gone: tracked roles come off too
		cleared, err := b.applier.ClearAwardedRoles(ctx, userID)
		if err != nil {
			slog.Error("Failed to clear roles after unlink", "user", userID, "error", err)
		} else if len(cleared) > 0 {
			description += fmt.Sprintf(" Since you have no linked accounts left, %d earned role(s) were removed.", len(cleared))
		}
	}

	b.editReplyEmbed(s, i, successEmbed("Account Unlinked", description))
}

// handleMyAccounts handles the /myaccounts command
func (b *Bot) handleMyAccounts(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	userID := interactionUserID(i)

	accounts, err := b.repo.AccountsByUser(ctx, userID)
	if err != nil {
		slog.Error("Failed to list accounts", "user", userID, "error", err)
		b.editReplyEmbed(s, i, errorEmbed("Error", "Failed to retrieve your accounts."))
		return
	}

	if len(accounts) == 0 {
		b.editReplyEmbed(s, i, infoEmbed("No Linked Accounts",
			"You have no linked accounts. Use `/verify` with your Open Access Key to get started."))
		return
	}

	var sb strings.Builder
	for idx, a := range accounts {
		sb.WriteString(fmt.Sprintf("%d. **%s** (`%s`) — linked <t:%d:R>\n",
			idx+1, accountLabel(a), truncateOAK(a.NKID), a.LinkedAt.Unix()))
	}
	b.editReplyEmbed(s, i, infoEmbed("Your Linked Accounts", sb.String()))
}

// handleMyRoles handles the /myroles command
func (b *Bot) handleMyRoles(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	userID := interactionUserID(i)

	accounts, err := b.repo.AccountsByUser(ctx, userID)
	if err != nil || len(accounts) == 0 {
		b.editReplyEmbed(s, i, infoEmbed("No Linked Accounts",
			"You have no linked accounts. Use `/verify` with your Open Access Key to get started."))
		return
	}

	diff := b.evaluator.EvaluateRoles(ctx, userID, false)
	if err := b.applier.ApplyRoleChanges(ctx, userID, diff, true, false); err != nil {
		slog.Error("Failed to apply roles", "user", userID, "error", err)
	}

	awarded, err := b.repo.AwardedRoles(ctx, userID)
	if err != nil {
		slog.Error("Failed to list awarded roles", "user", userID, "error", err)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("**Earned roles:** %d\n", len(awarded)))
	for _, roleID := range awarded {
		sb.WriteString(fmt.Sprintf("- <@&%s>\n", roleID))
	}
	sb.WriteString(fmt.Sprintf("\n**CHIMPS black borders (solo):** %d / %d\n", diff.Stats.SoloChimpsBlack, diff.Stats.TotalMaps))
	sb.WriteString(fmt.Sprintf("**CHIMPS black borders (co-op):** %d / %d\n", diff.Stats.CoopChimpsBlack, diff.Stats.TotalMaps))
	sb.WriteString(fmt.Sprintf("**Achievements:** %d / %d\n", diff.Stats.Achievements, diff.Stats.TotalAchievements))

	b.editReplyEmbed(s, i, infoEmbed("Your Role Progress", sb.String()))
}

// handleHelp handles the /help command
func (b *Bot) handleHelp(_ context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	var sb strings.Builder
	sb.WriteString("Link your BTD6 account and earn roles for your in-game achievements.\n\n")
	sb.WriteString("**/verify** — link an account using your Open Access Key\n")
	sb.WriteString("**/unlink** — unlink an account\n")
	sb.WriteString("**/myaccounts** — list your linked accounts\n")
	sb.WriteString("**/myroles** — show your role progress\n\n")
	sb.WriteString("Your Open Access Key is in the game under Settings > My Account > Open Data API.\n")
	sb.WriteString("Roles are re-checked automatically every 15 minutes.")

	b.editReplyEmbed(s, i, infoEmbed("BTD6 Role Bot", sb.String()))
}
