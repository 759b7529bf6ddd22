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

// requireStaff checks staff access. Returns false (with the refusal
// already sent) when the invoker lacks access.
func (b *Bot) requireStaff(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) bool {
	if !b.hasStaffAccess(ctx, i) {
		b.editReplyEmbed(s, i, errorEmbed("Access Denied", "You don't have permission to use this command."))
		return false
	}
	return true
}

func (b *Bot) requireOwner(s *discordgo.Session, i *discordgo.InteractionCreate) bool {
	if !b.isOwner(interactionUserID(i)) {
		b.editReplyEmbed(s, i, errorEmbed("Access Denied", "Only bot owners can use this command."))
		return false
	}
	return true
}

// optionMap indexes interaction options by name
func optionMap(i *discordgo.InteractionCreate) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	options := i.ApplicationCommandData().Options
	m := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(options))
	for _, opt := range options {
		m[opt.Name] = opt
	}
	return m
}

// handleForceLink handles the /forcelink staff command
func (b *Bot) handleForceLink(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !b.requireStaff(ctx, s, i) {
		return
	}

	opts := optionMap(i)
	target := opts["user"].UserValue(s)
	oak := sanitizeOAK(opts["oak"].StringValue())

	if !validOAK(oak) {
		b.editReplyEmbed(s, i, errorEmbed("Invalid Key", "That doesn't look like a valid Open Access Key."))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	player := b.cache.GetPlayerData(ctx, oak, true)
	if player == nil {
		b.editReplyEmbed(s, i, errorEmbed("Fetch Failed", "Could not fetch account data for that key."))
		return
	}

	previousOwner, err := b.repo.ForceLink(ctx, target.ID, oak, player.DisplayName)
	if err != nil {
		slog.Error("Force link failed", "target", target.ID, "error", err)
		b.editReplyEmbed(s, i, errorEmbed("Error", "Failed to link the account."))
		return
	}

	slog.Info("Account force-linked", "staff", interactionUserID(i), "target", target.ID, "account", player.DisplayName)

	diff := b.evaluator.EvaluateRoles(ctx, target.ID, false)
	if err := b.applier.ApplyRoleChanges(ctx, target.ID, diff, true, false); err != nil {
		slog.Error("Failed to apply roles after force link", "target", target.ID, "error", err)
	}

	description := fmt.Sprintf("Linked **%s** to <@%s>.", player.DisplayName, target.ID)
	if previousOwner != "" && previousOwner != target.ID {
		description += fmt.Sprintf("\nThe account was previously linked to <@%s>; that link was removed.", previousOwner)

		// Losing the key may have left the previous owner with nothing
		remaining, err := b.repo.AccountsByUser(ctx, previousOwner)
		if err == nil && len(remaining) == 0 {
			if _, err := b.applier.ClearAwardedRoles(ctx, previousOwner); err != nil {
				slog.Error("Failed to clear roles for previous owner", "user", previousOwner, "error", err)
			}
		}
	}
	b.editReplyEmbed(s, i, successEmbed("Account Linked", description))
}

// handleForceRemove handles the /forceremove staff command
func (b *Bot) handleForceRemove(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !b.requireStaff(ctx, s, i) {
		return
	}

	opts := optionMap(i)
	target := opts["user"].UserValue(s)

	var removed int
	if oakOpt, ok := opts["oak"]; ok {
		oak := sanitizeOAK(oakOpt.StringValue())
		if err := b.repo.UnlinkAccount(ctx, target.ID, oak); err != nil {
			if errors.Is(err, storage.ErrNotLinked) {
				b.editReplyEmbed(s, i, warningEmbed("Not Linked", "That key is not linked to that user."))
				return
			}
			slog.Error("Force remove failed", "target", target.ID, "error", err)
			b.editReplyEmbed(s, i, errorEmbed("Error", "Failed to remove the link."))
			return
		}
		removed = 1
	} else {
		accounts, err := b.repo.AccountsByUser(ctx, target.ID)
		if err != nil {
			slog.Error("Failed to list target accounts", "target", target.ID, "error", err)
			b.editReplyEmbed(s, i, errorEmbed("Error", "Failed to look up that user's accounts."))
			return
		}
		for _, a := range accounts {
			if err := b.repo.UnlinkAccount(ctx, target.ID, a.NKID); err != nil {
				slog.Error("Failed to unlink account", "target", target.ID, "error", err)
				continue
			}
			removed++
		}
	}

	if removed == 0 {
		b.editReplyEmbed(s, i, warningEmbed("Nothing Removed", "That user has no linked accounts."))
		return
	}

	description := fmt.Sprintf("Removed %d link(s) from <@%s>.", removed, target.ID)
	remaining, err := b.repo.AccountsByUser(ctx, target.ID)
	if err == nil && len(remaining) == 0 {
		cleared, err := b.applier.ClearAwardedRoles(ctx, target.ID)
		if err != nil {
			slog.Error("Failed to clear roles after force remove", "target", target.ID, "error", err)
		} else if len(cleared) > 0 {
			description += fmt.Sprintf(" %d earned role(s) were removed.", len(cleared))
		}
	}

	slog.Info("Links force-removed", "staff", interactionUserID(i), "target", target.ID, "count", removed)
	b.editReplyEmbed(s, i, successEmbed("Links Removed", description))
}

// handleForceRoleSync handles the /forcerolesync staff command
func (b *Bot) handleForceRoleSync(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !b.requireStaff(ctx, s, i) {
		return
	}

	opts := optionMap(i)
	if userOpt, ok := opts["user"]; ok {
		target := userOpt.UserValue(s)

		syncCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
		defer cancel()

		diff := b.evaluator.EvaluateRoles(syncCtx, target.ID, true)
		if err := b.applier.ApplyRoleChanges(syncCtx, target.ID, diff, true, false); err != nil {
			slog.Error("Force sync failed", "target", target.ID, "error", err)
			b.editReplyEmbed(s, i, errorEmbed("Error", "Role sync failed for that user."))
			return
		}
		b.editReplyEmbed(s, i, successEmbed("Sync Complete",
			fmt.Sprintf("Re-evaluated <@%s>: %d role(s) granted.", target.ID, len(diff.RolesToAdd))))
		return
	}

	// Full sweep runs in the background; it can take a while
	go b.sched.ReevaluateAll(context.Background())
	b.editReplyEmbed(s, i, successEmbed("Sync Started",
		"A full re-evaluation of all linked users has been started."))
}

// handleCheckUser handles the /checkuser staff command
func (b *Bot) handleCheckUser(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !b.requireStaff(ctx, s, i) {
		return
	}

	target := optionMap(i)["user"].UserValue(s)

	accounts, err := b.repo.AccountsByUser(ctx, target.ID)
	if err != nil {
		slog.Error("Failed to list target accounts", "target", target.ID, "error", err)
		b.editReplyEmbed(s, i, errorEmbed("Error", "Failed to look up that user's accounts."))
		return
	}
	if len(accounts) == 0 {
		b.editReplyEmbed(s, i, infoEmbed("No Linked Accounts",
			fmt.Sprintf("<@%s> has no linked accounts.", target.ID)))
		return
	}

	var sb strings.Builder
	sb.WriteString("**Accounts:**\n")
	flagged := false
	for idx, a := range accounts {
		line := fmt.Sprintf("%d. **%s** (`%s`)", idx+1, accountLabel(a), truncateOAK(a.NKID))
		if p := b.cache.GetPlayerData(ctx, a.NKID, false); p != nil && p.Flagged() {
			line += " — **FLAGGED**"
			flagged = true
		}
		sb.WriteString(line + "\n")
	}

	awarded, err := b.repo.AwardedRoles(ctx, target.ID)
	if err != nil {
		slog.Error("Failed to list awarded roles", "target", target.ID, "error", err)
	}
	sb.WriteString(fmt.Sprintf("\n**Tracked roles:** %d\n", len(awarded)))
	for _, roleID := range awarded {
		sb.WriteString(fmt.Sprintf("- <@&%s>\n", roleID))
	}

	diff := b.evaluator.EvaluateRoles(ctx, target.ID, false)
	sb.WriteString(fmt.Sprintf("\n**Solo CHIMPS black borders:** %d / %d\n", diff.Stats.SoloChimpsBlack, diff.Stats.TotalMaps))
	sb.WriteString(fmt.Sprintf("**Co-op CHIMPS black borders:** %d / %d\n", diff.Stats.CoopChimpsBlack, diff.Stats.TotalMaps))
	sb.WriteString(fmt.Sprintf("**Achievements:** %d / %d\n", diff.Stats.Achievements, diff.Stats.TotalAchievements))

	embed := infoEmbed(fmt.Sprintf("User Report: %s", target.Username), sb.String())
	if flagged {
		embed.Color = colorWarning
	}
	b.editReplyEmbed(s, i, embed)
}

// handleListAll handles the /listall staff command
func (b *Bot) handleListAll(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !b.requireStaff(ctx, s, i) {
		return
	}

	accounts, err := b.repo.AllAccounts(ctx)
	if err != nil {
		slog.Error("Failed to list all accounts", "error", err)
		b.editReplyEmbed(s, i, errorEmbed("Error", "Failed to retrieve the account list."))
		return
	}

	if len(accounts) == 0 {
		b.editReplyEmbed(s, i, infoEmbed("No Linked Accounts", "No accounts are linked yet."))
		return
	}

	byUser := make(map[string][]storage.NKAccount)
	order := make([]string, 0)
	for _, a := range accounts {
		if _, seen := byUser[a.DiscordID]; !seen {
			order = append(order, a.DiscordID)
		}
		byUser[a.DiscordID] = append(byUser[a.DiscordID], a)
	}

	var sb strings.Builder
	for _, discordID := range order {
		names := make([]string, 0, len(byUser[discordID]))
		for _, a := range byUser[discordID] {
			names = append(names, accountLabel(a))
		}
		sb.WriteString(fmt.Sprintf("<@%s>: %s\n", discordID, strings.Join(names, ", ")))
		// Embed descriptions cap at 4096 characters
		if sb.Len() > 3800 {
			sb.WriteString("...\n")
			break
		}
	}
	sb.WriteString(fmt.Sprintf("\n**Total:** %d account(s) across %d user(s)", len(accounts), len(byUser)))

	b.editReplyEmbed(s, i, infoEmbed("All Linked Accounts", sb.String()))
}

// handleUpdateContent handles the /updatecontent staff command
func (b *Bot) handleUpdateContent(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !b.requireStaff(ctx, s, i) {
		return
	}

	opts := optionMap(i)
	var maps, achievements *int
	if opt, ok := opts["maps"]; ok {
		v := int(opt.IntValue())
		maps = &v
	}
	if opt, ok := opts["achievements"]; ok {
		v := int(opt.IntValue())
		achievements = &v
	}

	// No arguments: run the inference pass instead of an override
	if maps == nil && achievements == nil {
		grew, err := b.content.CheckForNewContent(ctx)
		if err != nil {
			slog.Error("Content check failed", "error", err)
			b.editReplyEmbed(s, i, errorEmbed("Error", "The content check failed."))
			return
		}
		limits := b.content.Limits(ctx)
		if grew {
			go b.sched.ReevaluateAll(context.Background())
			b.editReplyEmbed(s, i, successEmbed("New Content Detected",
				fmt.Sprintf("Totals are now %d maps / %d achievements. A full re-evaluation has been started.",
					limits.TotalMaps, limits.TotalAchievements)))
			return
		}
		b.editReplyEmbed(s, i, infoEmbed("No New Content",
			fmt.Sprintf("Totals remain %d maps / %d achievements.", limits.TotalMaps, limits.TotalAchievements)))
		return
	}

	limits, err := b.content.Set(ctx, maps, achievements)
	if err != nil {
		slog.Error("Failed to update content limits", "error", err)
		b.editReplyEmbed(s, i, errorEmbed("Error", "Failed to save the new totals."))
		return
	}

	slog.Info("Content limits overridden", "staff", interactionUserID(i),
		"maps", limits.TotalMaps, "achievements", limits.TotalAchievements)

	go b.sched.ReevaluateAll(context.Background())
	b.editReplyEmbed(s, i, successEmbed("Content Updated",
		fmt.Sprintf("Totals are now %d maps / %d achievements. A full re-evaluation has been started.",
			limits.TotalMaps, limits.TotalAchievements)))
}

// handleStatus handles the /status staff command
func (b *Bot) handleStatus(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !b.requireStaff(ctx, s, i) {
		return
	}

	accounts, err := b.repo.AllAccounts(ctx)
	if err != nil {
		slog.Error("Failed to count accounts", "error", err)
	}
	users, err := b.repo.UsersWithAccounts(ctx)
	if err != nil {
		slog.Error("Failed to count users", "error", err)
	}
	limits := b.content.Limits(ctx)
	apiOK := b.validator.KeyValid(ctx)

	apiState := "OK"
	if !apiOK {
		apiState = "UNAVAILABLE"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("**Verification API:** %s\n", apiState))
	sb.WriteString(fmt.Sprintf("**Linked accounts:** %d\n", len(accounts)))
	sb.WriteString(fmt.Sprintf("**Linked users:** %d\n", len(users)))
	sb.WriteString(fmt.Sprintf("**Content totals:** %d maps / %d achievements\n", limits.TotalMaps, limits.TotalAchievements))
	if !limits.LastChecked.IsZero() {
		sb.WriteString(fmt.Sprintf("**Last content check:** <t:%d:R>\n", limits.LastChecked.Unix()))
	}

	embed := infoEmbed("Bot Status", sb.String())
	if !apiOK {
		embed.Color = colorWarning
	}
	b.editReplyEmbed(s, i, embed)
}

// handleAddStaff handles the /addstaff owner command
func (b *Bot) handleAddStaff(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !b.requireOwner(s, i) {
		return
	}

	target := optionMap(i)["user"].UserValue(s)
	if err := b.repo.AddStaff(ctx, target.ID, interactionUserID(i)); err != nil {
		slog.Error("Failed to add staff", "target", target.ID, "error", err)
		b.editReplyEmbed(s, i, errorEmbed("Error", "Failed to add that user to staff."))
		return
	}

	slog.Info("Staff added", "owner", interactionUserID(i), "target", target.ID)
	b.editReplyEmbed(s, i, successEmbed("Staff Added",
		fmt.Sprintf("<@%s> can now use staff commands.", target.ID)))
}

// handleRemoveStaff handles the /removestaff owner command
func (b *Bot) handleRemoveStaff(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !b.requireOwner(s, i) {
		return
	}

	target := optionMap(i)["user"].UserValue(s)
	removed, err := b.repo.RemoveStaff(ctx, target.ID)
	if err != nil {
		slog.Error("Failed to remove staff", "target", target.ID, "error", err)
		b.editReplyEmbed(s, i, errorEmbed("Error", "Failed to remove that user from staff."))
		return
	}
	if !removed {
		b.editReplyEmbed(s, i, warningEmbed("Not Staff", "That user is not on the staff list."))
		return
	}

	slog.Info("Staff removed", "owner", interactionUserID(i), "target", target.ID)
	b.editReplyEmbed(s, i, successEmbed("Staff Removed",
		fmt.Sprintf("<@%s> no longer has staff access.", target.ID)))
}
