package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"solbridge/pkg/integrity"
	"solbridge/pkg/parser"
	"solbridge/pkg/policy"
	"solbridge/pkg/provider"
	"solbridge/pkg/session"
	"solbridge/pkg/sessionauth"
)

// Error codes returned in ErrorResponse.Code
const (
	codeValidation   = "validation_error"
	codeNoProviders  = "no_providers"
	codeIntegrity    = "integrity_error"
	codePolicy       = "execution_disabled"
	codeUnauthorized = "unauthorized"
	codeRateLimited  = "rate_limited"
	codeSessionState = "session_state"
	codeRouteDrift   = "route_changed"
	codeNotFound     = "not_found"
	codeBadRequest   = "bad_request"
	codeTooLarge     = "payload_too_large"
	codeInternal     = "internal_error"
)

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string, details any) {
	writeJSON(w, status, ErrorResponse{Error: msg, Code: code, Details: details})
}

// fail maps err onto the error taxonomy. Unclassified errors are logged and,
// in production, replaced by a generic message.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr     *parser.ValidationError
		blocked  *policy.BlockedError
		tooLarge *http.MaxBytesError
	)

	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, codeValidation, verr.Error(), verr.Fields)
	case errors.Is(err, integrity.ErrIntegrity):
		writeError(w, http.StatusUnprocessableEntity, codeIntegrity, err.Error(), nil)
	case errors.As(err, &blocked):
		details := map[string]any{"chains": blocked.Chains}
		if len(blocked.Networks) > 0 {
			details["networks"] = blocked.Networks
		}
		writeError(w, http.StatusForbidden, codePolicy, err.Error(), details)
	case errors.Is(err, policy.ErrExecutionDisabled):
		writeError(w, http.StatusForbidden, codePolicy, err.Error(), nil)
	case errors.Is(err, sessionauth.ErrUnauthorized):
		reason := sessionauth.ReasonOf(err)
		s.metrics.AuthRejects.WithLabelValues(string(reason)).Inc()
		writeError(w, http.StatusUnauthorized, codeUnauthorized, err.Error(), map[string]any{"reason": reason})
	case errors.Is(err, session.ErrNotFound):
		writeError(w, http.StatusNotFound, codeNotFound, err.Error(), nil)
	case errors.Is(err, provider.ErrRouteDrift):
		writeError(w, http.StatusConflict, codeRouteDrift, err.Error(), nil)
	case errors.Is(err, session.ErrSessionState), errors.Is(err, session.ErrNoStepBuilder):
		writeError(w, http.StatusConflict, codeSessionState, err.Error(), nil)
	case errors.As(err, &tooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, codeTooLarge, "request body too large", nil)
	case errors.Is(err, session.ErrInvalidRequest), errors.Is(err, errBadRequest):
		writeError(w, http.StatusBadRequest, codeBadRequest, err.Error(), nil)
	default:
		s.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		msg := "internal server error"
		if !s.production {
			msg = err.Error()
		}
		writeError(w, http.StatusInternalServerError, codeInternal, msg, nil)
	}
}
