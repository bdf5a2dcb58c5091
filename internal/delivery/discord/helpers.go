package discord

import (
	"fmt"

	"heimdall/internal/models"

	"github.com/bwmarrin/discordgo"
)

func isAdmin(member *discordgo.Member) bool {
	return member.Permissions&discordgo.PermissionAdministrator != 0
}

func (b *Bot) respondMessage(s *discordgo.Session, i *discordgo.Interaction, msg string, ephemeral bool) {
	flags := discordgo.MessageFlags(0)
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	s.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: msg,
			Flags:   flags,
		},
	})
}

// targetUser returns the user option if present, else the invoking member.
func targetUser(i *discordgo.Interaction) *discordgo.User {
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == "user" {
			if u := opt.UserValue(nil); u != nil {
				return u
			}
		}
	}
	return i.Member.User
}

func stringOption(i *discordgo.Interaction, name string) string {
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == name && opt.Type == discordgo.ApplicationCommandOptionString {
			return opt.StringValue()
		}
	}
	return ""
}

// botCanManage reports whether the bot's highest role sits above the target
// role; Discord rejects grants of roles at or above the bot's own position.
func (b *Bot) botCanManage(s *discordgo.Session, guildID, roleID string) (bool, error) {
	roles, err := s.GuildRoles(guildID)
	if err != nil {
		return false, fmt.Errorf("failed to fetch guild roles: %w", err)
	}
	me, err := s.GuildMember(guildID, s.State.User.ID)
	if err != nil {
		return false, fmt.Errorf("failed to fetch bot member: %w", err)
	}

	positions := make(map[string]int, len(roles))
	for _, role := range roles {
		positions[role.ID] = role.Position
	}

	botTop := 0
	for _, id := range me.Roles {
		if pos, ok := positions[id]; ok && pos > botTop {
			botTop = pos
		}
	}

	return botTop > positions[roleID], nil
}

func roleMention(roleID string) string {
	return fmt.Sprintf("<@&%s>", roleID)
}

func userMention(userID string) string {
	return fmt.Sprintf("<@%s>", userID)
}

func levelChoices() []*discordgo.ApplicationCommandOptionChoice {
	choices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(models.KnownLevels))
	for _, level := range models.KnownLevels {
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{Name: level, Value: level})
	}
	return choices
}

func classChoices() []*discordgo.ApplicationCommandOptionChoice {
	choices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(models.KnownClasses))
	for _, class := range models.KnownClasses {
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{Name: class, Value: class})
	}
	return choices
}
