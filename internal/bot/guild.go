package bot

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/oakroles/discord-bot/internal/roles"
)

// guildService adapts the Discord REST API to the role applier's view of
// the guild. All calls are scoped to the single configured guild.
type guildService struct {
	session *discordgo.Session
	guildID string
}

func (g *guildService) Member(ctx context.Context, userID string) (*roles.Member, error) {
	member, err := g.session.GuildMember(g.guildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		if isUnknownMember(err) {
			return nil, roles.ErrUnknownMember
		}
		return nil, fmt.Errorf("failed to fetch guild member: %w", err)
	}

	m := &roles.Member{
		ID:      userID,
		RoleIDs: member.Roles,
	}
	if member.User != nil {
		m.Username = member.User.Username
	}
	return m, nil
}

func (g *guildService) Role(ctx context.Context, roleID string) (*roles.Role, error) {
	guildRoles, err := g.session.GuildRoles(g.guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch guild roles: %w", err)
	}
	for _, r := range guildRoles {
		if r.ID == roleID {
			return &roles.Role{ID: r.ID, Name: r.Name}, nil
		}
	}
	return nil, fmt.Errorf("role %s not found in guild", roleID)
}

func (g *guildService) AddRole(ctx context.Context, userID, roleID string) error {
	if err := g.session.GuildMemberRoleAdd(g.guildID, userID, roleID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to add role: %w", err)
	}
	return nil
}

func (g *guildService) RemoveRole(ctx context.Context, userID, roleID string) error {
	if err := g.session.GuildMemberRoleRemove(g.guildID, userID, roleID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to remove role: %w", err)
	}
	return nil
}

// isUnknownMember reports whether the API rejected the user ID because
// the member is not in the guild.
func isUnknownMember(err error) bool {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Message != nil {
		return restErr.Message.Code == discordgo.ErrCodeUnknownMember
	}
	return false
}
