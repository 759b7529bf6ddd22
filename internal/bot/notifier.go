package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/oakroles/discord-bot/internal/storage"
)

// roleNotifier DMs users about role changes made by the automated
// pipeline. Delivery failures are the caller's problem to ignore.
type roleNotifier struct {
	dm   *DMManager
	repo *storage.Repository
}

func (n *roleNotifier) NotifyRoleChanges(userID string, added, removed []string) error {
	if len(added) == 0 && len(removed) == 0 {
		return nil
	}

	embed := &discordgo.MessageEmbed{
		Title: "Role Update",
		Color: colorSuccess,
	}

	if len(added) > 0 {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  "Roles Earned",
			Value: strings.Join(added, "\n"),
		})
	}
	if len(removed) > 0 {
		embed.Color = colorWarning
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  "Roles Removed",
			Value: strings.Join(removed, "\n"),
		})
	}

	if accounts, err := n.repo.AccountsByUser(context.Background(), userID); err == nil && len(accounts) > 0 {
		names := make([]string, 0, len(accounts))
		for _, a := range accounts {
			names = append(names, accountLabel(a))
		}
		embed.Footer = &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("Linked accounts: %s", strings.Join(names, ", ")),
		}
	}

	return n.dm.SendEmbed(userID, embed)
}

func accountLabel(a storage.NKAccount) string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	return truncateOAK(a.NKID)
}

// truncateOAK keeps keys out of logs and messages in full
func truncateOAK(oak string) string {
	if len(oak) <= 8 {
		return oak
	}
	return oak[:8] + "..."
}
