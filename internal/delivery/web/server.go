package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"heimdall/internal/application"
	"heimdall/internal/repository"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Config struct {
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`
	// PublicURL is the externally reachable base of this server, used to
	// build the /verify links handed out in Discord.
	PublicURL string `env:"PUBLIC_URL" envDefault:"http://localhost:8080"`
}

// Notifier receives terminal verification results for delivery back to the
// chat platform (audit log, member DM).
type Notifier interface {
	VerificationCompleted(ctx context.Context, res *application.CompletionResult)
}

type Server struct {
	srv      *http.Server
	services *application.Service
	notifier Notifier
	logger   application.Logger
}

func NewServer(cfg *Config, services *application.Service, notifier Notifier, logger application.Logger) *Server {
	s := &Server{
		services: services,
		notifier: notifier,
		logger:   logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/verify", s.handleVerifyStart)
	r.Get("/verify/callback", s.handleCallback)
	r.Get("/api/verify-status/{state}", s.handleVerifyStatus)
	r.Get("/success", s.handleSuccess)
	r.Get("/error", s.handleError)
	r.Get("/healthz", s.handleHealth)

	s.srv = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

func (s *Server) Run() error {
	s.logger.Info("callback server listening on %s", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// handleVerifyStart is the short link handed out in Discord: it bounces the
// member's browser to the provider's authorization URL, keeping the long
// OAuth URL out of chat messages.
func (s *Server) handleVerifyStart(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	if state == "" {
		http.Redirect(w, r, "/error?msg=invalid_request", http.StatusFound)
		return
	}
	http.Redirect(w, r, s.services.Verification.AuthCodeURL(state), http.StatusFound)
}

// handleVerifyStatus lets the result pages poll where a verification stands
// without consuming the session.
func (s *Server) handleVerifyStatus(w http.ResponseWriter, r *http.Request) {
	state := chi.URLParam(r, "state")

	status, err := s.services.Verification.Status(r.Context(), state)
	if err != nil {
		s.logger.Error("verification status lookup failed: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": status.String()})
}

// handleCallback is the OAuth redirect target: it hands the state token and
// authorization code to the orchestrator and redirects to a result page.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	code := r.URL.Query().Get("code")
	if state == "" || code == "" {
		http.Redirect(w, r, "/error?msg=invalid_request", http.StatusFound)
		return
	}

	res, err := s.services.Verification.Complete(r.Context(), state, code)
	if err != nil {
		switch {
		case errors.Is(err, application.ErrTokenNotFound):
			http.Redirect(w, r, "/error?msg=expired", http.StatusFound)
		case errors.Is(err, repository.ErrIdentityConflict):
			s.logger.Warn("identity conflict for member %s (subject %s)", res.MemberID, res.SubjectID)
			http.Redirect(w, r, "/error?msg=already_linked", http.StatusFound)
		default:
			s.logger.Error("verification completion failed: %v", err)
			http.Redirect(w, r, "/error?msg=server_error", http.StatusFound)
		}
		return
	}

	if s.notifier != nil {
		// Notification must not extend the member's request.
		go s.notifier.VerificationCompleted(context.WithoutCancel(r.Context()), res)
	}

	http.Redirect(w, r, "/success", http.StatusFound)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
