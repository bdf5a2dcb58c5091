package repository

import (
	"context"
	"errors"
	"time"

	"heimdall/internal/models"

	"github.com/redis/go-redis/v9"
)

// ErrIdentityConflict is returned when an upsert would bind a Keycloak
// subject that is already bound to a different Discord member.
var ErrIdentityConflict = errors.New("subject already linked to another member")

type GuildConfig interface {
	Load(ctx context.Context, guildID string) (*models.GuildConfig, error)
	SetRoleMode(ctx context.Context, guildID string, mode models.RoleMode) error
	SetVerifiedRole(ctx context.Context, guildID, roleID string) error
	SetLevelRole(ctx context.Context, guildID, level, roleID string) error
	SetClassRole(ctx context.Context, guildID, class, roleID string) error
	ReplaceCustomLevels(ctx context.Context, guildID string, levels []string) error
	ReplaceCustomClasses(ctx context.Context, guildID string, classes []string) error
	SetLogChannel(ctx context.Context, guildID, channelID string) error
}

type IdentityMapping interface {
	// Upsert atomically binds member to subject, replacing the member's own
	// previous binding (including the stale reverse entry) and failing with
	// ErrIdentityConflict if the subject belongs to a different member.
	Upsert(ctx context.Context, memberID, subjectID string, verifiedAt time.Time) (*models.IdentityMapping, error)
	GetByMember(ctx context.Context, memberID string) (*models.IdentityMapping, error)
	GetBySubject(ctx context.Context, subjectID string) (*models.IdentityMapping, error)
	Remove(ctx context.Context, memberID string) error
}

type PendingVerification interface {
	Create(ctx context.Context, guildID, memberID, username string) (*models.PendingVerification, error)
	// Get reads a session without consuming it; (nil, nil) when absent or
	// past its deadline.
	Get(ctx context.Context, token string) (*models.PendingVerification, error)
	// Consume atomically reads and deletes a session. It returns (nil, nil)
	// whether the token never existed, was already consumed, or expired.
	Consume(ctx context.Context, token string) (*models.PendingVerification, error)
}

type Repository struct {
	GuildConfig
	IdentityMapping
	PendingVerification

	rdb *redis.Client
}

func NewRepository(rdb *redis.Client) *Repository {
	return &Repository{
		GuildConfig:         NewGuildConfigRedis(rdb),
		IdentityMapping:     NewIdentityMappingRedis(rdb),
		PendingVerification: NewPendingVerificationRedis(rdb, VerificationTTL),
		rdb:                 rdb,
	}
}
