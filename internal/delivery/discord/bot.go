package discord

import (
	"context"

	"heimdall/internal/application"

	"github.com/bwmarrin/discordgo"
)

type Bot struct {
	session  *discordgo.Session
	services *application.Service
	logger   application.Logger
}

func NewSession(token string) (*discordgo.Session, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	s.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMembers
	return s, nil
}

func NewBot(session *discordgo.Session, services *application.Service, logger application.Logger) *Bot {
	return &Bot{
		session:  session,
		services: services,
		logger:   logger,
	}
}

var commands = []*discordgo.ApplicationCommand{
	{Name: "verify", Description: "Verify your identity and receive your roles"},
	{
		Name:        "unverify",
		Description: "Remove verification (admins may target another user)",
		Options: []*discordgo.ApplicationCommandOption{
			{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "User to unverify (defaults to you)", Required: false},
		},
	},
	{
		Name:        "userinfo",
		Description: "Show verification info for a user",
		Options: []*discordgo.ApplicationCommandOption{
			{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "User to inspect (defaults to you)", Required: false},
		},
	},
	{Name: "config", Description: "Show verification configuration for this server (admins only)"},
	{
		Name:        "setverifiedrole",
		Description: "Set the role granted to verified members (admins only)",
		Options: []*discordgo.ApplicationCommandOption{
			{Type: discordgo.ApplicationCommandOptionRole, Name: "role", Description: "Role to grant", Required: true},
		},
	},
	{
		Name:        "setrolemode",
		Description: "Choose which attribute family drives role assignment (admins only)",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type: discordgo.ApplicationCommandOptionString, Name: "mode", Description: "Role assignment mode", Required: true,
				Choices: []*discordgo.ApplicationCommandOptionChoice{
					{Name: "None (verified role only)", Value: "none"},
					{Name: "Levels (Undergrad / Graduate)", Value: "levels"},
					{Name: "Classes (First-Year ... Doctoral)", Value: "classes"},
					{Name: "Custom (explicit level/class list)", Value: "custom"},
				},
			},
		},
	},
	{
		Name:        "setlevelrole",
		Description: "Map an academic level to a role (admins only)",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type: discordgo.ApplicationCommandOptionString, Name: "level", Description: "Academic level", Required: true,
				Choices: levelChoices(),
			},
			{Type: discordgo.ApplicationCommandOptionRole, Name: "role", Description: "Role to grant", Required: true},
		},
	},
	{
		Name:        "setclassrole",
		Description: "Map a class standing to a role (admins only)",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type: discordgo.ApplicationCommandOptionString, Name: "class", Description: "Class standing", Required: true,
				Choices: classChoices(),
			},
			{Type: discordgo.ApplicationCommandOptionRole, Name: "role", Description: "Role to grant", Required: true},
		},
	},
	{
		Name:        "setcustomroles",
		Description: "Restrict custom mode to specific levels and classes (admins only)",
		Options: []*discordgo.ApplicationCommandOption{
			{Type: discordgo.ApplicationCommandOptionString, Name: "levels", Description: "Comma-separated levels (empty = none)", Required: false},
			{Type: discordgo.ApplicationCommandOptionString, Name: "classes", Description: "Comma-separated classes (empty = none)", Required: false},
		},
	},
	{
		Name:        "setlogchannel",
		Description: "Channel for verification audit messages (admins only)",
		Options: []*discordgo.ApplicationCommandOption{
			{Type: discordgo.ApplicationCommandOptionChannel, Name: "channel", Description: "Log channel", Required: true},
		},
	},
}

func (b *Bot) Init() error {
	b.session.AddHandler(b.onInteraction)
	return nil
}

func (b *Bot) Run(ctx context.Context) error {
	if err := b.session.Open(); err != nil {
		return err
	}

	b.logger.Info("Discord bot started, registering slash commands...")

	_, err := b.session.ApplicationCommandBulkOverwrite(b.session.State.User.ID, "", commands)
	if err != nil {
		b.logger.Error("failed to register commands: %v", err)
	} else {
		b.logger.Info("slash commands registered successfully")
	}

	return nil
}

func (b *Bot) Stop() {
	b.session.Close()
}

func (b *Bot) onInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	if i.GuildID == "" || i.Member == nil {
		b.respondMessage(s, i.Interaction, "This command can only be used in a server.", true)
		return
	}

	name := i.ApplicationCommandData().Name

	switch name {
	case "verify":
		b.handleVerify(s, i.Interaction)
		return
	case "unverify":
		b.handleUnverify(s, i.Interaction)
		return
	case "userinfo":
		b.handleUserInfo(s, i.Interaction)
		return
	}

	if !isAdmin(i.Member) {
		b.respondMessage(s, i.Interaction, "You need administrator permissions to use this command.", true)
		return
	}

	switch name {
	case "config":
		b.handleConfig(s, i.Interaction)
	case "setverifiedrole":
		b.handleSetVerifiedRole(s, i.Interaction)
	case "setrolemode":
		b.handleSetRoleMode(s, i.Interaction)
	case "setlevelrole":
		b.handleSetLevelRole(s, i.Interaction)
	case "setclassrole":
		b.handleSetClassRole(s, i.Interaction)
	case "setcustomroles":
		b.handleSetCustomRoles(s, i.Interaction)
	case "setlogchannel":
		b.handleSetLogChannel(s, i.Interaction)
	}
}
