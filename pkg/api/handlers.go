package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"solbridge/pkg/aggregator"
	"solbridge/pkg/parser"
	"solbridge/pkg/session"
	"solbridge/pkg/sessionauth"
	"solbridge/pkg/types"
)

var errBadRequest = errors.New("bad request")

// CreateSessionRequest starts a session for a quoted route
type CreateSessionRequest struct {
	Route  types.SignedRoute    `json:"route"`
	Intent types.TransferIntent `json:"intent"`
}

// StepRequest prepares a step when Status is empty and reports it otherwise
type StepRequest struct {
	SessionID    string             `json:"sessionId,omitempty"`
	StepIndex    *int               `json:"stepIndex"`
	Status       string             `json:"status,omitempty"`
	TxRef        string             `json:"txHashOrSig,omitempty"`
	ErrorMessage string             `json:"errorMessage,omitempty"`
	Auth         *sessionauth.Proof `json:"auth"`
}

// StepResponse carries the transaction the wallet must sign
type StepResponse struct {
	SessionID string           `json:"sessionId"`
	StepIndex int              `json:"stepIndex"`
	TxRequest types.TxEnvelope `json:"txRequest"`
}

// NoProvidersResponse is returned when no provider could be asked
type NoProvidersResponse struct {
	ErrorResponse
	Routes []types.SignedRoute `json:"routes"`
	Errors []string            `json:"errors"`
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	var intent types.TransferIntent
	if err := decode(r, &intent); err != nil {
		s.fail(w, r, err)
		return
	}

	intent = parser.NormalizeIntent(intent)
	if err := parser.ValidateIntent(&intent); err != nil {
		s.fail(w, r, err)
		return
	}

	res, err := s.quoter.Quote(r.Context(), intent)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	if res.NoProviders() {
		writeJSON(w, http.StatusBadRequest, NoProvidersResponse{
			ErrorResponse: ErrorResponse{Error: "no quote providers are configured", Code: codeNoProviders},
			Routes:        res.Routes,
			Errors:        res.Errors,
		})
		return
	}

	s.logger.Debug("quote served",
		zap.String("source_chain", intent.SourceChainID.String()),
		zap.Int("routes", len(res.Routes)),
		zap.Int("errors", len(res.Errors)))
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	intent := parser.NormalizeIntent(req.Intent)
	if err := parser.ValidateIntent(&intent); err != nil {
		s.fail(w, r, err)
		return
	}

	sess, err := s.sessions.Create(r.Context(), session.CreateRequest{Route: req.Route, Intent: intent})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess.View())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Poll(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.View())
}

func (s *Server) handleChallenge(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Poll(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	ch, err := s.auth.CreateChallenge(bindingOf(sess), requestHost(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

func (s *Server) handleStep(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	var req StepRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.SessionID != "" && req.SessionID != id {
		s.fail(w, r, fmt.Errorf("%w: sessionId does not match the request path", errBadRequest))
		return
	}
	if req.StepIndex == nil || *req.StepIndex < 0 {
		s.fail(w, r, &parser.ValidationError{Fields: map[string]string{"stepIndex": "must be a non-negative integer"}})
		return
	}

	var status session.StepStatus
	if req.Status != "" {
		var ok bool
		if status, ok = session.ParseStepStatus(req.Status); !ok {
			s.fail(w, r, &parser.ValidationError{Fields: map[string]string{"status": "must be one of submitted, confirmed, failed"}})
			return
		}
	}

	if req.Auth == nil {
		s.fail(w, r, sessionauth.ErrMalformedChallenge)
		return
	}

	sess, err := s.sessions.Poll(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.auth.VerifyProof(*req.Auth, bindingOf(sess), requestHost(r)); err != nil {
		s.logger.Info("session proof rejected",
			zap.String("session_id", id),
			zap.String("reason", string(sessionauth.ReasonOf(err))))
		s.fail(w, r, err)
		return
	}

	if status == "" {
		tx, err := s.sessions.PrepareStep(r.Context(), id, *req.StepIndex)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, StepResponse{SessionID: id, StepIndex: *req.StepIndex, TxRequest: types.TxEnvelope{Request: tx}})
		return
	}

	updated, err := s.sessions.Report(r.Context(), session.ReportRequest{
		SessionID: id,
		StepIndex: *req.StepIndex,
		Status:    status,
		TxRef:     strings.TrimSpace(req.TxRef),
		Message:   req.ErrorMessage,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated.View())
}

func bindingOf(sess *session.Session) sessionauth.Binding {
	return sessionauth.Binding{
		SessionID:     sess.ID,
		SourceAddress: sess.SourceAddress,
		SolanaAddress: sess.SolanaAddress,
		Provider:      sess.Provider,
		RouteID:       sess.RouteID,
	}
}

// requestHost is the host of the calling page, if the browser sent one
func requestHost(r *http.Request) string {
	origin := r.Header.Get("Origin")
	if origin == "" || origin == "null" {
		return ""
	}
	u, err := url.Parse(origin)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		return fmt.Errorf("%w: invalid JSON body: %v", errBadRequest, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: unexpected data after JSON body", errBadRequest)
	}
	return nil
}

var _ Quoter = (*aggregator.Aggregator)(nil)
