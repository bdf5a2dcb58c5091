package discord

import (
	"context"

	"heimdall/internal/application"

	"github.com/bwmarrin/discordgo"
)

// VerificationCompleted is called by the web callback once a verification
// reaches its terminal success state: audit to the guild's log channel and
// DM the member. Neither failure affects the verification itself.
func (b *Bot) VerificationCompleted(ctx context.Context, res *application.CompletionResult) {
	b.sendAudit(ctx, res.GuildID, &discordgo.MessageEmbed{
		Title: "User Verified",
		Color: colorGreen,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "User", Value: userMention(res.MemberID)},
			{Name: "Roles Added", Value: roleList(res.RolesAdded)},
		},
	})

	channel, err := b.session.UserChannelCreate(res.MemberID, discordgo.WithContext(ctx))
	if err != nil {
		b.logger.Warn("failed to open DM channel for %s: %v", res.MemberID, err)
		return
	}
	if _, err := b.session.ChannelMessageSend(channel.ID,
		"You have successfully verified your identity.", discordgo.WithContext(ctx)); err != nil {
		b.logger.Warn("failed to DM member %s: %v", res.MemberID, err)
	}
}

func (b *Bot) sendAudit(ctx context.Context, guildID string, embed *discordgo.MessageEmbed) {
	cfg, err := b.services.GuildConfig.Get(ctx, guildID)
	if err != nil {
		b.logger.Warn("failed to load config for audit message in guild %s: %v", guildID, err)
		return
	}
	if cfg.LogChannelID == "" {
		return
	}

	if _, err := b.session.ChannelMessageSendEmbed(cfg.LogChannelID, embed, discordgo.WithContext(ctx)); err != nil {
		b.logger.Warn("failed to send audit message to channel %s: %v", cfg.LogChannelID, err)
	}
}
