package web

import (
	"net/http"

	"github.com/dmitrijs2005/gatekeeper/internal/server/gate"
)

// RunIfReadyAndAuthenticated runs action when the application is ready and
// the request carries an authenticated session. Cascade redirects use code.
func (s *Server) RunIfReadyAndAuthenticated(action http.HandlerFunc, code int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := s.gate.ReadyAndAuthenticated(r.Context(), r, code)
		s.apply(w, r, d, err, action)
	}
}

// RunIfUnauthenticated runs action for anonymous requests to a ready
// application.
func (s *Server) RunIfUnauthenticated(action http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := s.gate.Unauthenticated(r.Context(), r)
		s.apply(w, r, d, err, action)
	}
}

// RunIfSessionPresent runs action for authenticated requests without
// checking readiness.
func (s *Server) RunIfSessionPresent(action http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.apply(w, r, s.gate.SessionPresent(r.Context(), r), nil, action)
	}
}

func (s *Server) RunIfSetup(action http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := s.gate.Setup(r.Context(), r)
		s.apply(w, r, d, err, action)
	}
}

func (s *Server) RunIfAdminCreation(action http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := s.gate.AdminCreation(r.Context(), r)
		s.apply(w, r, d, err, action)
	}
}

// apply performs the side effect of a guard decision.
func (s *Server) apply(w http.ResponseWriter, r *http.Request, d gate.Decision, err error, action http.HandlerFunc) {
	if err != nil {
		s.writeErr(w, r, err)
		return
	}

	switch d.Action {
	case gate.ActionProceed:
		action(w, r)
	case gate.ActionRedirect:
		if d.Code == http.StatusUnauthorized {
			// API callers get the target without being redirected
			w.Header().Set("Location", d.Path)
			s.writeJSON(w, http.StatusUnauthorized, statusResponse{Status: false, Error: "unauthorized", Location: d.Path})
			return
		}
		http.Redirect(w, r, d.Path, d.Code)
	default:
		s.writeJSON(w, http.StatusNotFound, statusResponse{Status: false, Error: "not found"})
	}
}
