package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"heimdall/internal/models"
	"heimdall/internal/repository"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopLogger struct{}

func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Debug(string, ...interface{}) {}

type fakeProvider struct {
	identity   *Identity
	resolveErr error
	attrs      models.Attributes
	attrsErr   error
}

func (p *fakeProvider) AuthCodeURL(state string) string {
	return "https://idp.example/auth?state=" + state
}

func (p *fakeProvider) ResolveCode(_ context.Context, _ string) (*Identity, error) {
	if p.resolveErr != nil {
		return nil, p.resolveErr
	}
	return p.identity, nil
}

func (p *fakeProvider) FetchAttributes(_ context.Context, _ string) (models.Attributes, error) {
	if p.attrsErr != nil {
		return nil, p.attrsErr
	}
	return p.attrs, nil
}

type fakeMutator struct {
	roles      map[string][]string
	applyErr   error
	applyCalls int
}

func memberKey(guildID, memberID string) string {
	return guildID + "/" + memberID
}

func (m *fakeMutator) MemberRoles(_ context.Context, guildID, memberID string) ([]string, error) {
	return m.roles[memberKey(guildID, memberID)], nil
}

func (m *fakeMutator) ApplyRoleDiff(_ context.Context, guildID, memberID string, toAdd, toRemove []string) error {
	m.applyCalls++
	if m.applyErr != nil {
		return m.applyErr
	}
	key := memberKey(guildID, memberID)
	held := make(map[string]struct{})
	for _, r := range m.roles[key] {
		held[r] = struct{}{}
	}
	for _, r := range toAdd {
		held[r] = struct{}{}
	}
	for _, r := range toRemove {
		delete(held, r)
	}
	next := make([]string, 0, len(held))
	for r := range held {
		next = append(next, r)
	}
	m.roles[key] = next
	return nil
}

type verificationFixture struct {
	mr       *miniredis.Miniredis
	repos    *repository.Repository
	provider *fakeProvider
	mutator  *fakeMutator
	svc      *VerificationServiceImpl
}

func newVerificationFixture(t *testing.T) *verificationFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repos := repository.NewRepository(client)
	provider := &fakeProvider{
		identity: &Identity{
			SubjectID:  "subject-1",
			Attributes: models.Attributes{"level": {"Graduate"}},
		},
		attrs: models.Attributes{"level": {"Graduate"}},
	}
	mutator := &fakeMutator{roles: make(map[string][]string)}

	svc := NewVerificationServiceImpl(
		repos.PendingVerification, repos.IdentityMapping, repos.GuildConfig,
		provider, mutator, nopLogger{}, "https://verify.example")

	return &verificationFixture{mr: mr, repos: repos, provider: provider, mutator: mutator, svc: svc}
}

func (f *verificationFixture) configureLevelsGuild(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.repos.GuildConfig.SetRoleMode(ctx, "guild-1", models.RoleModeLevels))
	require.NoError(t, f.repos.GuildConfig.SetVerifiedRole(ctx, "guild-1", "role_verified"))
	require.NoError(t, f.repos.GuildConfig.SetLevelRole(ctx, "guild-1", "Graduate", "role_777"))
}

// beginState extracts the OAuth state parameter from the verify URL.
func beginState(t *testing.T, res *BeginResult) string {
	t.Helper()
	_, state, found := strings.Cut(res.VerifyURL, "state=")
	require.True(t, found, "verify URL carries no state: %s", res.VerifyURL)
	return state
}

func TestVerificationHappyPath(t *testing.T) {
	f := newVerificationFixture(t)
	f.configureLevelsGuild(t)
	ctx := context.Background()

	begin, err := f.svc.Begin(ctx, "guild-1", "member-1", "alice")
	require.NoError(t, err)
	assert.Equal(t, models.StateAwaitingCallback, begin.State)
	assert.False(t, begin.AlreadyVerified)
	// The member gets the short app link, not the raw provider URL.
	assert.True(t, strings.HasPrefix(begin.VerifyURL, "https://verify.example/verify?state="),
		"unexpected verify URL: %s", begin.VerifyURL)

	res, err := f.svc.Complete(ctx, beginState(t, begin), "auth-code")
	require.NoError(t, err)
	assert.Equal(t, models.StateCompleted, res.State)
	assert.Equal(t, "guild-1", res.GuildID)
	assert.Equal(t, "member-1", res.MemberID)
	assert.Equal(t, "subject-1", res.SubjectID)
	assert.Equal(t, []string{"role_777", "role_verified"}, res.RolesAdded)

	mapping, err := f.repos.IdentityMapping.GetByMember(ctx, "member-1")
	require.NoError(t, err)
	require.NotNil(t, mapping)
	assert.Equal(t, "subject-1", mapping.SubjectID)

	assert.ElementsMatch(t, []string{"role_777", "role_verified"},
		f.mutator.roles[memberKey("guild-1", "member-1")])
}

func TestVerificationStatus(t *testing.T) {
	f := newVerificationFixture(t)
	f.configureLevelsGuild(t)
	ctx := context.Background()

	begin, err := f.svc.Begin(ctx, "guild-1", "member-1", "alice")
	require.NoError(t, err)
	state := beginState(t, begin)

	status, err := f.svc.Status(ctx, state)
	require.NoError(t, err)
	assert.Equal(t, models.StateAwaitingCallback, status)

	// Polling must not consume the session.
	_, err = f.svc.Complete(ctx, state, "auth-code")
	require.NoError(t, err)

	status, err = f.svc.Status(ctx, state)
	require.NoError(t, err)
	assert.Equal(t, models.StateExpired, status)

	status, err = f.svc.Status(ctx, "never-issued.nonce")
	require.NoError(t, err)
	assert.Equal(t, models.StateExpired, status)
}

func TestVerificationAuthCodeURLPassthrough(t *testing.T) {
	f := newVerificationFixture(t)

	assert.Equal(t, "https://idp.example/auth?state=tok.nonce", f.svc.AuthCodeURL("tok.nonce"))
}

func TestVerificationCallbackReplayIsRejected(t *testing.T) {
	f := newVerificationFixture(t)
	f.configureLevelsGuild(t)
	ctx := context.Background()

	begin, err := f.svc.Begin(ctx, "guild-1", "member-1", "alice")
	require.NoError(t, err)
	state := beginState(t, begin)

	_, err = f.svc.Complete(ctx, state, "auth-code")
	require.NoError(t, err)

	res, err := f.svc.Complete(ctx, state, "auth-code")
	require.ErrorIs(t, err, ErrTokenNotFound)
	assert.Equal(t, models.StateExpired, res.State)
}

func TestVerificationExpiredToken(t *testing.T) {
	f := newVerificationFixture(t)
	f.configureLevelsGuild(t)
	ctx := context.Background()

	begin, err := f.svc.Begin(ctx, "guild-1", "member-1", "alice")
	require.NoError(t, err)

	f.mr.FastForward(11 * time.Minute)

	res, err := f.svc.Complete(ctx, beginState(t, begin), "auth-code")
	require.ErrorIs(t, err, ErrTokenNotFound)
	assert.Equal(t, models.StateExpired, res.State)
}

func TestVerificationTamperedStateIsRejected(t *testing.T) {
	f := newVerificationFixture(t)
	f.configureLevelsGuild(t)
	ctx := context.Background()

	begin, err := f.svc.Begin(ctx, "guild-1", "member-1", "alice")
	require.NoError(t, err)
	state := beginState(t, begin)

	token, _, _ := strings.Cut(state, ".")
	res, err := f.svc.Complete(ctx, token+".wrong-nonce", "auth-code")
	require.ErrorIs(t, err, ErrTokenNotFound)
	assert.Equal(t, models.StateExpired, res.State)

	// The nonce mismatch still consumed the session: no second chance.
	res, err = f.svc.Complete(ctx, state, "auth-code")
	require.ErrorIs(t, err, ErrTokenNotFound)
	assert.Equal(t, models.StateExpired, res.State)
}

func TestVerificationIdentityConflict(t *testing.T) {
	f := newVerificationFixture(t)
	f.configureLevelsGuild(t)
	ctx := context.Background()

	// subject-1 already belongs to member-a.
	_, err := f.repos.IdentityMapping.Upsert(ctx, "member-a", "subject-1", time.Now())
	require.NoError(t, err)

	begin, err := f.svc.Begin(ctx, "guild-1", "member-b", "bob")
	require.NoError(t, err)

	res, err := f.svc.Complete(ctx, beginState(t, begin), "auth-code")
	require.ErrorIs(t, err, repository.ErrIdentityConflict)
	assert.Equal(t, models.StateConflict, res.State)

	// member-a's mapping is untouched and member-b got nothing.
	mapping, err := f.repos.IdentityMapping.GetBySubject(ctx, "subject-1")
	require.NoError(t, err)
	require.NotNil(t, mapping)
	assert.Equal(t, "member-a", mapping.MemberID)
	assert.Zero(t, f.mutator.applyCalls)
}

func TestVerificationProviderFailure(t *testing.T) {
	f := newVerificationFixture(t)
	f.configureLevelsGuild(t)
	ctx := context.Background()

	begin, err := f.svc.Begin(ctx, "guild-1", "member-1", "alice")
	require.NoError(t, err)

	f.provider.resolveErr = fmt.Errorf("keycloak is down")

	res, err := f.svc.Complete(ctx, beginState(t, begin), "auth-code")
	require.ErrorIs(t, err, ErrExternalProvider)
	assert.Equal(t, models.StateFailed, res.State)

	mapping, err := f.repos.IdentityMapping.GetByMember(ctx, "member-1")
	require.NoError(t, err)
	assert.Nil(t, mapping, "no mapping may be committed without a subject")
}

func TestVerificationRoleMutationFailureKeepsMapping(t *testing.T) {
	f := newVerificationFixture(t)
	f.configureLevelsGuild(t)
	ctx := context.Background()

	begin, err := f.svc.Begin(ctx, "guild-1", "member-1", "alice")
	require.NoError(t, err)

	f.mutator.applyErr = errors.New("discord 502")

	res, err := f.svc.Complete(ctx, beginState(t, begin), "auth-code")
	require.ErrorIs(t, err, ErrRoleMutation)
	assert.Equal(t, models.StateFailed, res.State)

	// Verification truth survives the role failure.
	mapping, err := f.repos.IdentityMapping.GetByMember(ctx, "member-1")
	require.NoError(t, err)
	require.NotNil(t, mapping)
	assert.Equal(t, "subject-1", mapping.SubjectID)
}

func TestBeginAlreadyVerifiedRegrantsRoles(t *testing.T) {
	f := newVerificationFixture(t)
	f.configureLevelsGuild(t)
	ctx := context.Background()

	_, err := f.repos.IdentityMapping.Upsert(ctx, "member-1", "subject-1", time.Now())
	require.NoError(t, err)

	res, err := f.svc.Begin(ctx, "guild-1", "member-1", "alice")
	require.NoError(t, err)
	assert.Equal(t, models.StateCompleted, res.State)
	assert.True(t, res.AlreadyVerified)
	assert.Empty(t, res.VerifyURL)
	assert.Equal(t, []string{"role_777", "role_verified"}, res.RolesAdded)
}

func TestBeginAlreadyVerifiedWithAttributeFetchFailure(t *testing.T) {
	f := newVerificationFixture(t)
	f.configureLevelsGuild(t)
	ctx := context.Background()

	_, err := f.repos.IdentityMapping.Upsert(ctx, "member-1", "subject-1", time.Now())
	require.NoError(t, err)
	f.provider.attrsErr = errors.New("admin api unavailable")

	// The verified role is still granted; only the attribute role waits.
	res, err := f.svc.Begin(ctx, "guild-1", "member-1", "alice")
	require.NoError(t, err)
	assert.True(t, res.AlreadyVerified)
	assert.Equal(t, []string{"role_verified"}, res.RolesAdded)
}

func TestUnverifyRemovesMappingAndManagedRoles(t *testing.T) {
	f := newVerificationFixture(t)
	f.configureLevelsGuild(t)
	ctx := context.Background()

	_, err := f.repos.IdentityMapping.Upsert(ctx, "member-1", "subject-1", time.Now())
	require.NoError(t, err)
	f.mutator.roles[memberKey("guild-1", "member-1")] = []string{"role_verified", "role_777", "role_unrelated"}

	res, err := f.svc.Unverify(ctx, "guild-1", "member-1")
	require.NoError(t, err)
	assert.Equal(t, "subject-1", res.SubjectID)
	assert.ElementsMatch(t, []string{"role_verified", "role_777"}, res.RolesRemoved)

	mapping, err := f.repos.IdentityMapping.GetByMember(ctx, "member-1")
	require.NoError(t, err)
	assert.Nil(t, mapping)

	assert.ElementsMatch(t, []string{"role_unrelated"},
		f.mutator.roles[memberKey("guild-1", "member-1")])
}

func TestUnverifyUnknownMember(t *testing.T) {
	f := newVerificationFixture(t)

	_, err := f.svc.Unverify(context.Background(), "guild-1", "member-ghost")
	require.ErrorIs(t, err, ErrNotVerified)
}

func TestInfoReturnsMapping(t *testing.T) {
	f := newVerificationFixture(t)
	ctx := context.Background()

	got, err := f.svc.Info(ctx, "member-1")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = f.repos.IdentityMapping.Upsert(ctx, "member-1", "subject-1", time.Now())
	require.NoError(t, err)

	got, err = f.svc.Info(ctx, "member-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "subject-1", got.SubjectID)
}
