package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/server/probe"
)

type statusResponse struct {
	Status   bool   `json:"status"`
	Error    string `json:"error,omitempty"`
	Location string `json:"location,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn(context.Background(), "writing response", "error", err)
	}
}

// writeErr maps err onto a status code and a JSON body.
func (s *Server) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	code, msg := errorStatus(err)
	if code == http.StatusInternalServerError {
		s.logger.Error(r.Context(), "request failed", "error", err)
	}
	s.writeJSON(w, code, statusResponse{Status: false, Error: msg})
}

func errorStatus(err error) (int, string) {
	var failure *probe.Failure
	switch {
	case errors.As(err, &failure):
		return http.StatusServiceUnavailable, failure.Error()
	case errors.Is(err, common.ErrConnectivityFailure),
		errors.Is(err, common.ErrSchemaMissing),
		errors.Is(err, common.ErrConfigurationMissing):
		return http.StatusServiceUnavailable, err.Error()
	case errors.Is(err, common.ErrValidation), errors.Is(err, common.ErrInvalidArgument):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, common.ErrSecurity):
		return http.StatusForbidden, "security token mismatch"
	case errors.Is(err, common.ErrNoSession):
		return http.StatusForbidden, "no session"
	case errors.Is(err, common.ErrAuthentication):
		return http.StatusForbidden, "invalid credentials"
	case errors.Is(err, common.ErrAlreadyExists):
		return http.StatusConflict, err.Error()
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound, "not found"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
