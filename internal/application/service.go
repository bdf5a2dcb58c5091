package application

import (
	"context"

	"heimdall/internal/models"
	"heimdall/internal/repository"
)

type Logger interface {
	Error(format string, v ...interface{})
	Warn(format string, v ...interface{})
	Info(format string, v ...interface{})
	Debug(format string, v ...interface{})
}

// Identity is what the identity provider vouches for after a successful
// authorization-code exchange.
type Identity struct {
	SubjectID  string
	Attributes models.Attributes
}

// IdentityProvider is the Keycloak collaborator.
type IdentityProvider interface {
	AuthCodeURL(state string) string
	ResolveCode(ctx context.Context, code string) (*Identity, error)
	FetchAttributes(ctx context.Context, subjectID string) (models.Attributes, error)
}

// RoleMutator is the Discord collaborator that reads and mutates member roles.
type RoleMutator interface {
	MemberRoles(ctx context.Context, guildID, memberID string) ([]string, error)
	ApplyRoleDiff(ctx context.Context, guildID, memberID string, toAdd, toRemove []string) error
}

type VerificationService interface {
	Begin(ctx context.Context, guildID, memberID, username string) (*BeginResult, error)
	AuthCodeURL(state string) string
	Status(ctx context.Context, state string) (models.VerificationState, error)
	Complete(ctx context.Context, state, code string) (*CompletionResult, error)
	Unverify(ctx context.Context, guildID, memberID string) (*UnverifyResult, error)
	Info(ctx context.Context, memberID string) (*models.IdentityMapping, error)
}

type GuildConfigService interface {
	Get(ctx context.Context, guildID string) (*models.GuildConfig, error)
	SetRoleMode(ctx context.Context, guildID string, mode models.RoleMode) error
	SetVerifiedRole(ctx context.Context, guildID, roleID string) error
	SetLevelRole(ctx context.Context, guildID, level, roleID string) error
	SetClassRole(ctx context.Context, guildID, class, roleID string) error
	SetCustomRoles(ctx context.Context, guildID string, levels, classes []string) error
	SetLogChannel(ctx context.Context, guildID, channelID string) error
}

type Service struct {
	Verification VerificationService
	GuildConfig  GuildConfigService
}

func NewService(repos *repository.Repository, provider IdentityProvider, mutator RoleMutator, logger Logger, publicURL string) *Service {
	return &Service{
		Verification: NewVerificationServiceImpl(repos.PendingVerification, repos.IdentityMapping, repos.GuildConfig, provider, mutator, logger, publicURL),
		GuildConfig:  NewGuildConfigServiceImpl(repos.GuildConfig, logger),
	}
}
