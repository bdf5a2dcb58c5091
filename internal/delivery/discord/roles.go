package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// RoleClient implements the role-mutation collaborator on top of a shared
// Discord session. It is independent of the Bot so the application layer can
// be wired before command handling exists.
type RoleClient struct {
	session *discordgo.Session
}

func NewRoleClient(session *discordgo.Session) *RoleClient {
	return &RoleClient{session: session}
}

func (c *RoleClient) MemberRoles(ctx context.Context, guildID, memberID string) ([]string, error) {
	member, err := c.session.GuildMember(guildID, memberID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch member %s: %w", memberID, err)
	}
	return member.Roles, nil
}

// ApplyRoleDiff grants and revokes roles one by one; Discord role mutations
// are idempotent, so a retry after a partial failure never double-applies.
func (c *RoleClient) ApplyRoleDiff(ctx context.Context, guildID, memberID string, toAdd, toRemove []string) error {
	for _, roleID := range toAdd {
		if err := c.session.GuildMemberRoleAdd(guildID, memberID, roleID, discordgo.WithContext(ctx)); err != nil {
			return fmt.Errorf("failed to add role %s: %w", roleID, err)
		}
	}
	for _, roleID := range toRemove {
		if err := c.session.GuildMemberRoleRemove(guildID, memberID, roleID, discordgo.WithContext(ctx)); err != nil {
			return fmt.Errorf("failed to remove role %s: %w", roleID, err)
		}
	}
	return nil
}
