package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"heimdall/internal/application"
	"heimdall/internal/models"
	"heimdall/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopLogger struct{}

func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Debug(string, ...interface{}) {}

type stubVerification struct {
	result *application.CompletionResult
	err    error
	status models.VerificationState
}

func (s *stubVerification) Begin(context.Context, string, string, string) (*application.BeginResult, error) {
	panic("not used by the callback server")
}

func (s *stubVerification) AuthCodeURL(state string) string {
	return "https://idp.example/auth?state=" + state
}

func (s *stubVerification) Status(context.Context, string) (models.VerificationState, error) {
	return s.status, nil
}

func (s *stubVerification) Complete(context.Context, string, string) (*application.CompletionResult, error) {
	return s.result, s.err
}

func (s *stubVerification) Unverify(context.Context, string, string) (*application.UnverifyResult, error) {
	panic("not used by the callback server")
}

func (s *stubVerification) Info(context.Context, string) (*models.IdentityMapping, error) {
	panic("not used by the callback server")
}

type recordingNotifier struct {
	mu       sync.Mutex
	notified []*application.CompletionResult
}

func (n *recordingNotifier) VerificationCompleted(_ context.Context, res *application.CompletionResult) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notified = append(n.notified, res)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.notified)
}

func newTestServer(verification *stubVerification, notifier Notifier) *Server {
	services := &application.Service{Verification: verification}
	return NewServer(&Config{ListenAddr: ":0"}, services, notifier, nopLogger{})
}

func doCallback(t *testing.T, s *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(rec, req)
	return rec
}

func TestCallbackSuccessRedirectsAndNotifies(t *testing.T) {
	notifier := &recordingNotifier{}
	s := newTestServer(&stubVerification{
		result: &application.CompletionResult{
			State:      models.StateCompleted,
			GuildID:    "guild-1",
			MemberID:   "member-1",
			RolesAdded: []string{"role_verified"},
		},
	}, notifier)

	rec := doCallback(t, s, "/verify/callback?state=tok.nonce&code=abc")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/success", rec.Header().Get("Location"))

	require.Eventually(t, func() bool { return notifier.count() == 1 },
		time.Second, 10*time.Millisecond, "notifier was never called")
}

func TestVerifyStartRedirectsToProvider(t *testing.T) {
	s := newTestServer(&stubVerification{}, nil)

	rec := doCallback(t, s, "/verify?state=tok.nonce")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://idp.example/auth?state=tok.nonce", rec.Header().Get("Location"))

	// No state means nothing to hand to the provider.
	rec = doCallback(t, s, "/verify")
	assert.Equal(t, "/error?msg=invalid_request", rec.Header().Get("Location"))
}

func TestVerifyStatusEndpoint(t *testing.T) {
	s := newTestServer(&stubVerification{status: models.StateAwaitingCallback}, nil)

	rec := doCallback(t, s, "/api/verify-status/tok.nonce")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"awaiting_callback"}`, rec.Body.String())

	s = newTestServer(&stubVerification{status: models.StateExpired}, nil)
	rec = doCallback(t, s, "/api/verify-status/gone")
	assert.JSONEq(t, `{"status":"expired"}`, rec.Body.String())
}

func TestCallbackMissingParams(t *testing.T) {
	s := newTestServer(&stubVerification{}, nil)

	rec := doCallback(t, s, "/verify/callback?code=abc")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/error?msg=invalid_request", rec.Header().Get("Location"))

	rec = doCallback(t, s, "/verify/callback?state=tok.nonce")
	assert.Equal(t, "/error?msg=invalid_request", rec.Header().Get("Location"))
}

func TestCallbackExpiredToken(t *testing.T) {
	s := newTestServer(&stubVerification{
		result: &application.CompletionResult{State: models.StateExpired},
		err:    application.ErrTokenNotFound,
	}, nil)

	rec := doCallback(t, s, "/verify/callback?state=tok.nonce&code=abc")
	assert.Equal(t, "/error?msg=expired", rec.Header().Get("Location"))
}

func TestCallbackIdentityConflict(t *testing.T) {
	s := newTestServer(&stubVerification{
		result: &application.CompletionResult{State: models.StateConflict, MemberID: "member-b", SubjectID: "subject-1"},
		err:    repository.ErrIdentityConflict,
	}, nil)

	rec := doCallback(t, s, "/verify/callback?state=tok.nonce&code=abc")
	assert.Equal(t, "/error?msg=already_linked", rec.Header().Get("Location"))
}

func TestCallbackServerError(t *testing.T) {
	s := newTestServer(&stubVerification{
		result: &application.CompletionResult{State: models.StateFailed},
		err:    application.ErrExternalProvider,
	}, nil)

	rec := doCallback(t, s, "/verify/callback?state=tok.nonce&code=abc")
	assert.Equal(t, "/error?msg=server_error", rec.Header().Get("Location"))
}

func TestResultPages(t *testing.T) {
	s := newTestServer(&stubVerification{}, nil)

	rec := doCallback(t, s, "/success")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Verification complete")

	// The message must land inside the paragraph element, untouched by the
	// surrounding template formatting.
	rec = doCallback(t, s, "/error?msg=expired")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(),
		"<p>This verification link has expired or was already used. Run /verify again in Discord.</p>")
	assert.Contains(t, rec.Body.String(), `margin-top: 10%"`)
	assert.NotContains(t, rec.Body.String(), "%!")

	// Unknown codes fall back to a generic message.
	rec = doCallback(t, s, "/error?msg=bogus")
	assert.Contains(t, rec.Body.String(),
		"<p>Something went wrong on our side. Please try again in a few minutes.</p>")

	rec = doCallback(t, s, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
}
