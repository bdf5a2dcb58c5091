package application

import (
	"context"
	"fmt"
	"slices"

	"heimdall/internal/models"
	"heimdall/internal/repository"
)

type GuildConfigServiceImpl struct {
	guilds repository.GuildConfig
	logger Logger
}

func NewGuildConfigServiceImpl(guilds repository.GuildConfig, logger Logger) *GuildConfigServiceImpl {
	return &GuildConfigServiceImpl{guilds: guilds, logger: logger}
}

func (s *GuildConfigServiceImpl) Get(ctx context.Context, guildID string) (*models.GuildConfig, error) {
	return s.guilds.Load(ctx, guildID)
}

func (s *GuildConfigServiceImpl) SetRoleMode(ctx context.Context, guildID string, mode models.RoleMode) error {
	if err := s.guilds.SetRoleMode(ctx, guildID, mode); err != nil {
		return err
	}
	s.logger.Info("guild %s role mode set to %s", guildID, mode)
	return nil
}

func (s *GuildConfigServiceImpl) SetVerifiedRole(ctx context.Context, guildID, roleID string) error {
	if err := s.guilds.SetVerifiedRole(ctx, guildID, roleID); err != nil {
		return err
	}
	s.logger.Info("guild %s verified role set to %s", guildID, roleID)
	return nil
}

func (s *GuildConfigServiceImpl) SetLevelRole(ctx context.Context, guildID, level, roleID string) error {
	if !slices.Contains(models.KnownLevels, level) {
		return fmt.Errorf("unknown level %q", level)
	}
	return s.guilds.SetLevelRole(ctx, guildID, level, roleID)
}

func (s *GuildConfigServiceImpl) SetClassRole(ctx context.Context, guildID, class, roleID string) error {
	if !slices.Contains(models.KnownClasses, class) {
		return fmt.Errorf("unknown class %q", class)
	}
	return s.guilds.SetClassRole(ctx, guildID, class, roleID)
}

func (s *GuildConfigServiceImpl) SetCustomRoles(ctx context.Context, guildID string, levels, classes []string) error {
	for _, level := range levels {
		if !slices.Contains(models.KnownLevels, level) {
			return fmt.Errorf("unknown level %q", level)
		}
	}
	for _, class := range classes {
		if !slices.Contains(models.KnownClasses, class) {
			return fmt.Errorf("unknown class %q", class)
		}
	}

	if err := s.guilds.ReplaceCustomLevels(ctx, guildID, levels); err != nil {
		return err
	}
	if err := s.guilds.ReplaceCustomClasses(ctx, guildID, classes); err != nil {
		return err
	}
	s.logger.Info("guild %s custom roles updated: %d levels, %d classes", guildID, len(levels), len(classes))
	return nil
}

func (s *GuildConfigServiceImpl) SetLogChannel(ctx context.Context, guildID, channelID string) error {
	return s.guilds.SetLogChannel(ctx, guildID, channelID)
}
