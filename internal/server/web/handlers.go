package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/server/auth"
	"github.com/dmitrijs2005/gatekeeper/internal/server/gate"
	"github.com/dmitrijs2005/gatekeeper/internal/vault"
)

type healthResponse struct {
	Status bool       `json:"status"`
	State  gate.State `json:"state"`
}

// handleHealth reports the bootstrap state without redirecting.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ev, err := s.gate.Evaluate(r.Context(), r.URL.Path, 0)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, healthResponse{Status: ev.State == gate.StateReady, State: ev.State})
}

type tokenResponse struct {
	Token string `json:"token"`
}

// handleCSRFToken issues the token of the current session, starting an
// anonymous session when there is none.
func (s *Server) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, err := s.auth.EnsureSession(ctx, w, r)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	token, err := s.csrf.GetToken(ctx, sess, common.CSRFFieldName)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	s.writeJSON(w, http.StatusOK, tokenResponse{Token: token})
}

type setupRequest struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Name     string `json:"name"`
	SSLMode  string `json:"sslmode"`

	// Entropy must match the vault passphrase when credentials already
	// exist and the caller is not logged in.
	Entropy string `json:"entropy"`
}

func (s *Server) handleSetup(w http.ResponseWriter, r *http.Request) {
	var req setupRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		s.writeErr(w, r, fmt.Errorf("%w: %v", common.ErrValidation, err))
		return
	}

	ctx := r.Context()
	if err := s.setup.Authorize(ctx, req.Entropy, s.auth.Authenticated(ctx, r)); err != nil {
		s.writeErr(w, r, err)
		return
	}

	cfg := vault.DatabaseConfig{
		Host:     req.Host,
		Port:     req.Port,
		User:     req.User,
		Password: req.Password,
		Name:     req.Name,
		SSLMode:  req.SSLMode,
	}
	if cfg.Port == 0 {
		cfg.Port = 5432
	}
	if cfg.SSLMode == "" {
		cfg.SSLMode = "disable"
	}

	if err := s.setup.Configure(ctx, cfg); err != nil {
		s.writeErr(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, statusResponse{Status: true, Location: s.adminPath})
}

type userResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

func (s *Server) handleAdminCreate(w http.ResponseWriter, r *http.Request) {
	creds, err := auth.ReadCredentials(r)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	u, err := s.admins.CreateInitialAdmin(r.Context(), creds)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, userResponse{ID: u.ID.String(), Username: u.UserName})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	ok, err := s.auth.CaptureCredentials(r.Context(), w, r)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	if !ok {
		s.writeErr(w, r, common.ErrAuthentication)
		return
	}
	s.writeJSON(w, http.StatusOK, statusResponse{Status: true})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.Logout(r.Context(), w, r); err != nil {
		s.writeErr(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, statusResponse{Status: true})
}

type sessionResponse struct {
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	IsAdmin   bool      `json:"is_admin"`
	ExpiresAt time.Time `json:"expires_at"`
}

// handleSession describes the logged-in account. A session whose account
// was removed, blocked or deactivated after login is ended.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, ok := s.auth.Current(ctx, r)
	if !ok {
		s.writeErr(w, r, common.ErrNoSession)
		return
	}

	user, err := s.users.GetByID(ctx, sess.UserID)
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		s.writeErr(w, r, err)
		return
	}
	if user == nil || user.IsBlocked || !user.IsActive {
		s.logger.Warn(ctx, "session of disabled account ended", "user", sess.UserID)
		if err := s.auth.Logout(ctx, w, r); err != nil {
			s.writeErr(w, r, err)
			return
		}
		s.writeErr(w, r, common.ErrNoSession)
		return
	}

	s.writeJSON(w, http.StatusOK, sessionResponse{
		UserID:    user.ID.String(),
		Username:  user.UserName,
		IsAdmin:   user.IsAdmin,
		ExpiresAt: sess.ExpiresAt,
	})
}
