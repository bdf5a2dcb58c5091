package repository

import (
	"context"
	"fmt"

	"heimdall/internal/models"

	"github.com/redis/go-redis/v9"
)

type GuildConfigRedis struct {
	rdb *redis.Client
}

func NewGuildConfigRedis(rdb *redis.Client) *GuildConfigRedis {
	return &GuildConfigRedis{rdb: rdb}
}

func verifiedRoleKey(guildID string) string {
	return fmt.Sprintf("guild:%s:role:verified", guildID)
}

func levelRoleKey(guildID, level string) string {
	return fmt.Sprintf("guild:%s:role:level:%s", guildID, level)
}

func classRoleKey(guildID, class string) string {
	return fmt.Sprintf("guild:%s:role:class:%s", guildID, class)
}

func roleModeKey(guildID string) string {
	return fmt.Sprintf("guild:%s:role_mode", guildID)
}

func customLevelsKey(guildID string) string {
	return fmt.Sprintf("guild:%s:custom_levels", guildID)
}

func customClassesKey(guildID string) string {
	return fmt.Sprintf("guild:%s:custom_classes", guildID)
}

func logChannelKey(guildID string) string {
	return fmt.Sprintf("guild:%s:log_channel", guildID)
}

func (r *GuildConfigRedis) Load(ctx context.Context, guildID string) (*models.GuildConfig, error) {
	cfg := &models.GuildConfig{
		GuildID:       guildID,
		Mode:          models.RoleModeNone,
		LevelRoles:    make(map[string]string),
		ClassRoles:    make(map[string]string),
		CustomLevels:  make(map[string]struct{}),
		CustomClasses: make(map[string]struct{}),
	}

	pipe := r.rdb.Pipeline()
	modeCmd := pipe.Get(ctx, roleModeKey(guildID))
	verifiedCmd := pipe.Get(ctx, verifiedRoleKey(guildID))
	logCmd := pipe.Get(ctx, logChannelKey(guildID))
	levelCmds := make(map[string]*redis.StringCmd, len(models.KnownLevels))
	for _, level := range models.KnownLevels {
		levelCmds[level] = pipe.Get(ctx, levelRoleKey(guildID, level))
	}
	classCmds := make(map[string]*redis.StringCmd, len(models.KnownClasses))
	for _, class := range models.KnownClasses {
		classCmds[class] = pipe.Get(ctx, classRoleKey(guildID, class))
	}
	customLevelsCmd := pipe.SMembers(ctx, customLevelsKey(guildID))
	customClassesCmd := pipe.SMembers(ctx, customClassesKey(guildID))

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to load guild config: %w", err)
	}

	if mode, err := modeCmd.Result(); err == nil {
		cfg.Mode = models.ParseRoleMode(mode)
	}
	if roleID, err := verifiedCmd.Result(); err == nil {
		cfg.VerifiedRoleID = roleID
	}
	if channelID, err := logCmd.Result(); err == nil {
		cfg.LogChannelID = channelID
	}
	for level, cmd := range levelCmds {
		if roleID, err := cmd.Result(); err == nil && roleID != "" {
			cfg.LevelRoles[level] = roleID
		}
	}
	for class, cmd := range classCmds {
		if roleID, err := cmd.Result(); err == nil && roleID != "" {
			cfg.ClassRoles[class] = roleID
		}
	}
	for _, level := range customLevelsCmd.Val() {
		cfg.CustomLevels[level] = struct{}{}
	}
	for _, class := range customClassesCmd.Val() {
		cfg.CustomClasses[class] = struct{}{}
	}

	return cfg, nil
}

func (r *GuildConfigRedis) SetRoleMode(ctx context.Context, guildID string, mode models.RoleMode) error {
	if err := r.rdb.Set(ctx, roleModeKey(guildID), string(mode), 0).Err(); err != nil {
		return fmt.Errorf("failed to set role mode: %w", err)
	}
	return nil
}

func (r *GuildConfigRedis) SetVerifiedRole(ctx context.Context, guildID, roleID string) error {
	if err := r.rdb.Set(ctx, verifiedRoleKey(guildID), roleID, 0).Err(); err != nil {
		return fmt.Errorf("failed to set verified role: %w", err)
	}
	return nil
}

func (r *GuildConfigRedis) SetLevelRole(ctx context.Context, guildID, level, roleID string) error {
	if err := r.rdb.Set(ctx, levelRoleKey(guildID, level), roleID, 0).Err(); err != nil {
		return fmt.Errorf("failed to set level role: %w", err)
	}
	return nil
}

func (r *GuildConfigRedis) SetClassRole(ctx context.Context, guildID, class, roleID string) error {
	if err := r.rdb.Set(ctx, classRoleKey(guildID, class), roleID, 0).Err(); err != nil {
		return fmt.Errorf("failed to set class role: %w", err)
	}
	return nil
}

func (r *GuildConfigRedis) ReplaceCustomLevels(ctx context.Context, guildID string, levels []string) error {
	return r.replaceSet(ctx, customLevelsKey(guildID), levels)
}

func (r *GuildConfigRedis) ReplaceCustomClasses(ctx context.Context, guildID string, classes []string) error {
	return r.replaceSet(ctx, customClassesKey(guildID), classes)
}

func (r *GuildConfigRedis) replaceSet(ctx context.Context, key string, members []string) error {
	pipe := r.rdb.TxPipeline()
	pipe.Del(ctx, key)
	if len(members) > 0 {
		args := make([]interface{}, len(members))
		for i, m := range members {
			args[i] = m
		}
		pipe.SAdd(ctx, key, args...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to replace set %s: %w", key, err)
	}
	return nil
}

func (r *GuildConfigRedis) SetLogChannel(ctx context.Context, guildID, channelID string) error {
	if err := r.rdb.Set(ctx, logChannelKey(guildID), channelID, 0).Err(); err != nil {
		return fmt.Errorf("failed to set log channel: %w", err)
	}
	return nil
}
