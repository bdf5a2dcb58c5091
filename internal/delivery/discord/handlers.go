package discord

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"heimdall/internal/application"
	"heimdall/internal/models"

	"github.com/bwmarrin/discordgo"
)

func (b *Bot) handleVerify(s *discordgo.Session, i *discordgo.Interaction) {
	ctx := context.Background()

	res, err := b.services.Verification.Begin(ctx, i.GuildID, i.Member.User.ID, i.Member.User.Username)
	if err != nil {
		b.logger.Error("verify begin failed for %s: %v", i.Member.User.ID, err)
		b.respondMessage(s, i, "Verification could not be started. Please try again later.", true)
		return
	}

	if res.AlreadyVerified {
		msg := "You are already verified. Your roles in this server have been refreshed."
		if len(res.RolesAdded) > 0 {
			mentions := make([]string, len(res.RolesAdded))
			for idx, roleID := range res.RolesAdded {
				mentions[idx] = roleMention(roleID)
			}
			msg = "You are already verified. Granted: " + strings.Join(mentions, ", ")
		}
		b.respondMessage(s, i, msg, true)
		return
	}

	b.respondMessage(s, i, fmt.Sprintf(
		"Click the link below to verify your account. The link expires in 10 minutes.\n\n%s",
		res.VerifyURL), true)
}

func (b *Bot) handleUnverify(s *discordgo.Session, i *discordgo.Interaction) {
	ctx := context.Background()
	target := targetUser(i)

	if target.ID != i.Member.User.ID && !isAdmin(i.Member) {
		b.respondMessage(s, i, "You need administrator permissions to unverify other users.", true)
		return
	}

	res, err := b.services.Verification.Unverify(ctx, i.GuildID, target.ID)
	if err != nil {
		if errors.Is(err, application.ErrNotVerified) {
			b.respondMessage(s, i, fmt.Sprintf("%s is not verified.", userMention(target.ID)), true)
			return
		}
		// The mapping may already be gone even when role removal failed.
		b.logger.Error("unverify failed for %s: %v", target.ID, err)
		b.respondMessage(s, i, "Unverification ran into an error; some roles may remain.", true)
		return
	}

	b.sendAudit(ctx, i.GuildID, &discordgo.MessageEmbed{
		Title: "User Unverified",
		Color: colorRed,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "User", Value: userMention(target.ID)},
			{Name: "Roles Removed", Value: roleList(res.RolesRemoved)},
		},
	})
	b.respondMessage(s, i, fmt.Sprintf("Removed verification for %s.", userMention(target.ID)), true)
}

func (b *Bot) handleUserInfo(s *discordgo.Session, i *discordgo.Interaction) {
	ctx := context.Background()
	target := targetUser(i)

	mapping, err := b.services.Verification.Info(ctx, target.ID)
	if err != nil {
		b.logger.Error("userinfo lookup failed for %s: %v", target.ID, err)
		b.respondMessage(s, i, "Lookup failed. Please try again later.", true)
		return
	}
	if mapping == nil {
		b.respondMessage(s, i, fmt.Sprintf("%s is not verified.", userMention(target.ID)), true)
		return
	}

	embed := &discordgo.MessageEmbed{
		Title: "Verification Info",
		Color: colorBlue,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "User", Value: userMention(mapping.MemberID), Inline: true},
			{Name: "Subject", Value: fmt.Sprintf("`%s`", mapping.SubjectID), Inline: true},
			{Name: "Verified At", Value: fmt.Sprintf("<t:%d:f>", mapping.VerifiedAt.Unix()), Inline: true},
		},
	}
	s.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
			Flags:  discordgo.MessageFlagsEphemeral,
		},
	})
}

func (b *Bot) handleConfig(s *discordgo.Session, i *discordgo.Interaction) {
	ctx := context.Background()

	cfg, err := b.services.GuildConfig.Get(ctx, i.GuildID)
	if err != nil {
		b.logger.Error("config load failed for guild %s: %v", i.GuildID, err)
		b.respondMessage(s, i, "Could not load the configuration.", true)
		return
	}

	verified := "not configured"
	if cfg.VerifiedRoleID != "" {
		verified = roleMention(cfg.VerifiedRoleID)
	}
	logChannel := "not configured"
	if cfg.LogChannelID != "" {
		logChannel = fmt.Sprintf("<#%s>", cfg.LogChannelID)
	}

	embed := &discordgo.MessageEmbed{
		Title: "Verification Configuration",
		Color: colorGray,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Role Mode", Value: string(cfg.Mode), Inline: true},
			{Name: "Verified Role", Value: verified, Inline: true},
			{Name: "Log Channel", Value: logChannel, Inline: true},
			{Name: "Level Roles", Value: roleMapping(cfg.LevelRoles)},
			{Name: "Class Roles", Value: roleMapping(cfg.ClassRoles)},
			{Name: "Custom Levels", Value: setList(cfg.CustomLevels), Inline: true},
			{Name: "Custom Classes", Value: setList(cfg.CustomClasses), Inline: true},
		},
	}
	s.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
			Flags:  discordgo.MessageFlagsEphemeral,
		},
	})
}

func (b *Bot) handleSetVerifiedRole(s *discordgo.Session, i *discordgo.Interaction) {
	b.setRoleOption(s, i, func(ctx context.Context, roleID string) error {
		return b.services.GuildConfig.SetVerifiedRole(ctx, i.GuildID, roleID)
	}, "Verified role set to %s.")
}

func (b *Bot) handleSetRoleMode(s *discordgo.Session, i *discordgo.Interaction) {
	ctx := context.Background()
	mode := models.ParseRoleMode(stringOption(i, "mode"))

	if err := b.services.GuildConfig.SetRoleMode(ctx, i.GuildID, mode); err != nil {
		b.logger.Error("set role mode failed for guild %s: %v", i.GuildID, err)
		b.respondMessage(s, i, "Could not save the role mode.", true)
		return
	}
	b.respondMessage(s, i, fmt.Sprintf("Role mode set to `%s`.", mode), true)
}

func (b *Bot) handleSetLevelRole(s *discordgo.Session, i *discordgo.Interaction) {
	level := stringOption(i, "level")
	b.setRoleOption(s, i, func(ctx context.Context, roleID string) error {
		return b.services.GuildConfig.SetLevelRole(ctx, i.GuildID, level, roleID)
	}, "Level "+level+" mapped to %s.")
}

func (b *Bot) handleSetClassRole(s *discordgo.Session, i *discordgo.Interaction) {
	class := stringOption(i, "class")
	b.setRoleOption(s, i, func(ctx context.Context, roleID string) error {
		return b.services.GuildConfig.SetClassRole(ctx, i.GuildID, class, roleID)
	}, "Class "+class+" mapped to %s.")
}

// setRoleOption factors the shared role-option flow: extract the role,
// check the bot can actually grant it, persist, confirm.
func (b *Bot) setRoleOption(s *discordgo.Session, i *discordgo.Interaction, save func(context.Context, string) error, confirmFormat string) {
	ctx := context.Background()

	var roleID string
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Type == discordgo.ApplicationCommandOptionRole {
			roleID = opt.RoleValue(nil, "").ID
		}
	}
	if roleID == "" {
		b.respondMessage(s, i, "Role parameter is required.", true)
		return
	}

	manageable, err := b.botCanManage(s, i.GuildID, roleID)
	if err != nil {
		b.logger.Error("role position check failed in guild %s: %v", i.GuildID, err)
		b.respondMessage(s, i, "Could not inspect the server's roles.", true)
		return
	}
	if !manageable {
		b.respondMessage(s, i, fmt.Sprintf(
			"I cannot assign %s. Move my role above it in the server settings first.",
			roleMention(roleID)), true)
		return
	}

	if err := save(ctx, roleID); err != nil {
		b.logger.Error("role config save failed in guild %s: %v", i.GuildID, err)
		b.respondMessage(s, i, "Could not save the role configuration: "+err.Error(), true)
		return
	}
	b.respondMessage(s, i, fmt.Sprintf(confirmFormat, roleMention(roleID)), true)
}

func (b *Bot) handleSetCustomRoles(s *discordgo.Session, i *discordgo.Interaction) {
	ctx := context.Background()
	levels := splitList(stringOption(i, "levels"))
	classes := splitList(stringOption(i, "classes"))

	if err := b.services.GuildConfig.SetCustomRoles(ctx, i.GuildID, levels, classes); err != nil {
		b.respondMessage(s, i, "Could not save: "+err.Error(), true)
		return
	}
	b.respondMessage(s, i, fmt.Sprintf(
		"Custom selection saved: %d levels, %d classes. Set the role mode to `custom` to activate it.",
		len(levels), len(classes)), true)
}

func (b *Bot) handleSetLogChannel(s *discordgo.Session, i *discordgo.Interaction) {
	ctx := context.Background()

	var channelID string
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Type == discordgo.ApplicationCommandOptionChannel {
			channelID = opt.ChannelValue(nil).ID
		}
	}
	if channelID == "" {
		b.respondMessage(s, i, "Channel parameter is required.", true)
		return
	}

	if err := b.services.GuildConfig.SetLogChannel(ctx, i.GuildID, channelID); err != nil {
		b.logger.Error("set log channel failed for guild %s: %v", i.GuildID, err)
		b.respondMessage(s, i, "Could not save the log channel.", true)
		return
	}
	b.respondMessage(s, i, fmt.Sprintf("Verification logs will be sent to <#%s>.", channelID), true)
}

func roleList(roleIDs []string) string {
	if len(roleIDs) == 0 {
		return "None"
	}
	mentions := make([]string, len(roleIDs))
	for idx, roleID := range roleIDs {
		mentions[idx] = roleMention(roleID)
	}
	return strings.Join(mentions, ", ")
}

func roleMapping(m map[string]string) string {
	if len(m) == 0 {
		return "None"
	}
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	for _, name := range names {
		sb.WriteString(fmt.Sprintf("%s → %s\n", name, roleMention(m[name])))
	}
	return sb.String()
}

func setList(set map[string]struct{}) string {
	if len(set) == 0 {
		return "None"
	}
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
