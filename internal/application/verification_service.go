package application

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"heimdall/internal/models"
	"heimdall/internal/repository"
)

type BeginResult struct {
	State models.VerificationState

	// VerifyURL is set when a new session was created and the member has to
	// finish the OAuth flow.
	VerifyURL string
	ExpiresAt time.Time

	// AlreadyVerified is set when the member holds a mapping already; roles
	// were re-granted instead of starting a new session.
	AlreadyVerified bool
	RolesAdded      []string
}

type CompletionResult struct {
	State        models.VerificationState
	GuildID      string
	MemberID     string
	Username     string
	SubjectID    string
	RolesAdded   []string
	RolesRemoved []string
}

type UnverifyResult struct {
	SubjectID    string
	RolesRemoved []string
}

type VerificationServiceImpl struct {
	pending  repository.PendingVerification
	identity repository.IdentityMapping
	guilds   repository.GuildConfig
	provider IdentityProvider
	mutator  RoleMutator
	logger   Logger

	// publicURL is the externally reachable base of the callback server; the
	// member is handed {publicURL}/verify?state=... instead of the raw
	// provider authorization URL.
	publicURL string

	now func() time.Time
}

func NewVerificationServiceImpl(
	pending repository.PendingVerification,
	identity repository.IdentityMapping,
	guilds repository.GuildConfig,
	provider IdentityProvider,
	mutator RoleMutator,
	logger Logger,
	publicURL string,
) *VerificationServiceImpl {
	return &VerificationServiceImpl{
		pending:   pending,
		identity:  identity,
		guilds:    guilds,
		provider:  provider,
		mutator:   mutator,
		logger:    logger,
		publicURL: strings.TrimRight(publicURL, "/"),
		now:       time.Now,
	}
}

// Begin starts a verification for a member. A member that is already mapped
// skips the OAuth flow entirely and only has roles re-granted in this guild.
func (s *VerificationServiceImpl) Begin(ctx context.Context, guildID, memberID, username string) (*BeginResult, error) {
	mapping, err := s.identity.GetByMember(ctx, memberID)
	if err != nil {
		return nil, err
	}

	if mapping != nil {
		added, err := s.regrantRoles(ctx, guildID, mapping)
		if err != nil {
			return nil, err
		}
		return &BeginResult{
			State:           models.StateCompleted,
			AlreadyVerified: true,
			RolesAdded:      added,
		}, nil
	}

	session, err := s.pending.Create(ctx, guildID, memberID, username)
	if err != nil {
		return nil, fmt.Errorf("failed to create verification session: %w", err)
	}

	s.logger.Info("verification started for member %s in guild %s", memberID, guildID)
	state := encodeState(session.Token, session.OAuthState)
	return &BeginResult{
		State:     models.StateAwaitingCallback,
		VerifyURL: fmt.Sprintf("%s/verify?state=%s", s.publicURL, url.QueryEscape(state)),
		ExpiresAt: time.Unix(session.ExpiresAt, 0),
	}, nil
}

// AuthCodeURL resolves a handed-out state value into the provider's
// authorization URL; the /verify entry point redirects through it.
func (s *VerificationServiceImpl) AuthCodeURL(state string) string {
	return s.provider.AuthCodeURL(state)
}

// Status reports where a verification stands without consuming it. A state
// whose session is gone reads as expired, whether it timed out or was
// already consumed.
func (s *VerificationServiceImpl) Status(ctx context.Context, state string) (models.VerificationState, error) {
	token, _ := decodeState(state)
	session, err := s.pending.Get(ctx, token)
	if err != nil {
		return models.StateFailed, err
	}
	if session == nil {
		return models.StateExpired, nil
	}
	return models.StateAwaitingCallback, nil
}

// Complete drives the callback half of the state machine: consume the
// session, resolve the authorization code, commit the identity mapping, then
// apply the role diff. Role application runs strictly after the mapping
// commit and its failure never reverts the mapping.
func (s *VerificationServiceImpl) Complete(ctx context.Context, state, code string) (*CompletionResult, error) {
	token, nonce := decodeState(state)

	session, err := s.pending.Consume(ctx, token)
	if err != nil {
		return nil, err
	}
	if session == nil || subtle.ConstantTimeCompare([]byte(nonce), []byte(session.OAuthState)) != 1 {
		return &CompletionResult{State: models.StateExpired}, ErrTokenNotFound
	}

	result := &CompletionResult{
		State:    models.StateResolving,
		GuildID:  session.GuildID,
		MemberID: session.MemberID,
		Username: session.Username,
	}

	identity, err := s.provider.ResolveCode(ctx, code)
	if err != nil {
		result.State = models.StateFailed
		return result, fmt.Errorf("%w: %v", ErrExternalProvider, err)
	}
	result.SubjectID = identity.SubjectID

	if _, err := s.identity.Upsert(ctx, session.MemberID, identity.SubjectID, s.now()); err != nil {
		if errors.Is(err, repository.ErrIdentityConflict) {
			result.State = models.StateConflict
			return result, err
		}
		result.State = models.StateFailed
		return result, err
	}

	result.State = models.StateRoleAssigning
	diff, err := s.applyDiff(ctx, session.GuildID, session.MemberID, identity.Attributes)
	if err != nil {
		// Verification truth and role display are decoupled: the mapping
		// stays committed and role application is retried by re-running
		// /verify.
		result.State = models.StateFailed
		return result, fmt.Errorf("%w: %v", ErrRoleMutation, err)
	}

	result.State = models.StateCompleted
	result.RolesAdded = diff.ToAdd
	result.RolesRemoved = diff.ToRemove
	s.logger.Info("verification completed for member %s (subject %s) in guild %s",
		session.MemberID, identity.SubjectID, session.GuildID)
	return result, nil
}

// Unverify removes the identity mapping in both directions and strips every
// managed role the member currently holds in the guild.
func (s *VerificationServiceImpl) Unverify(ctx context.Context, guildID, memberID string) (*UnverifyResult, error) {
	mapping, err := s.identity.GetByMember(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if mapping == nil {
		return nil, ErrNotVerified
	}

	if err := s.identity.Remove(ctx, memberID); err != nil {
		return nil, err
	}

	result := &UnverifyResult{SubjectID: mapping.SubjectID}

	cfg, err := s.guilds.Load(ctx, guildID)
	if err != nil {
		return result, err
	}
	current, err := s.mutator.MemberRoles(ctx, guildID, memberID)
	if err != nil {
		return result, fmt.Errorf("%w: %v", ErrRoleMutation, err)
	}

	managed := cfg.ManagedRoleIDs()
	for _, roleID := range current {
		if _, ok := managed[roleID]; ok {
			result.RolesRemoved = append(result.RolesRemoved, roleID)
		}
	}
	if len(result.RolesRemoved) > 0 {
		if err := s.mutator.ApplyRoleDiff(ctx, guildID, memberID, nil, result.RolesRemoved); err != nil {
			return result, fmt.Errorf("%w: %v", ErrRoleMutation, err)
		}
	}

	s.logger.Info("unverified member %s in guild %s", memberID, guildID)
	return result, nil
}

func (s *VerificationServiceImpl) Info(ctx context.Context, memberID string) (*models.IdentityMapping, error) {
	return s.identity.GetByMember(ctx, memberID)
}

func (s *VerificationServiceImpl) regrantRoles(ctx context.Context, guildID string, mapping *models.IdentityMapping) ([]string, error) {
	attrs, err := s.provider.FetchAttributes(ctx, mapping.SubjectID)
	if err != nil {
		// Still grant the verified role; attribute roles catch up on the
		// next successful fetch.
		s.logger.Warn("attribute fetch failed for subject %s: %v", mapping.SubjectID, err)
		attrs = models.Attributes{}
	}

	diff, err := s.applyDiff(ctx, guildID, mapping.MemberID, attrs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRoleMutation, err)
	}
	return diff.ToAdd, nil
}

func (s *VerificationServiceImpl) applyDiff(ctx context.Context, guildID, memberID string, attrs models.Attributes) (RoleDiff, error) {
	cfg, err := s.guilds.Load(ctx, guildID)
	if err != nil {
		return RoleDiff{}, err
	}
	current, err := s.mutator.MemberRoles(ctx, guildID, memberID)
	if err != nil {
		return RoleDiff{}, err
	}

	diff := ComputeRoleDiff(cfg, attrs, current)
	if diff.Empty() {
		return diff, nil
	}
	if err := s.mutator.ApplyRoleDiff(ctx, guildID, memberID, diff.ToAdd, diff.ToRemove); err != nil {
		return RoleDiff{}, err
	}
	return diff, nil
}

// encodeState packs the session token and the CSRF nonce into the OAuth
// state parameter; decodeState is its inverse and tolerates garbage input.
func encodeState(token, nonce string) string {
	return token + "." + nonce
}

func decodeState(state string) (token, nonce string) {
	token, nonce, _ = strings.Cut(state, ".")
	return token, nonce
}
