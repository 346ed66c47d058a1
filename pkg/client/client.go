// Package client talks to a running solbridge server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"solbridge/pkg/aggregator"
	"solbridge/pkg/api"
	"solbridge/pkg/session"
	"solbridge/pkg/sessionauth"
	"solbridge/pkg/types"
)

// DefaultTimeout bounds one API call. Quotes wait on every provider, so it
// sits above the server's provider timeout.
const DefaultTimeout = 30 * time.Second

// APIError is a non-2xx answer from the server
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    any
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("API returned status code %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("API error %s (status %d): %s", e.Code, e.StatusCode, e.Message)
}

// Client is a solbridge API client
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the server at baseURL
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

// Quote asks the server for signed routes
func (c *Client) Quote(ctx context.Context, intent types.TransferIntent) (*aggregator.Result, error) {
	var out aggregator.Result
	if err := c.do(ctx, http.MethodPost, "/api/quote", intent, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateSession starts executing a quoted route
func (c *Client) CreateSession(ctx context.Context, route types.SignedRoute, intent types.TransferIntent) (*session.View, error) {
	var out session.View
	req := api.CreateSessionRequest{Route: route, Intent: intent}
	if err := c.do(ctx, http.MethodPost, "/api/sessions", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Status returns the current state of a session
func (c *Client) Status(ctx context.Context, sessionID string) (*session.View, error) {
	var out session.View
	if err := c.do(ctx, http.MethodGet, "/api/sessions/"+url.PathEscape(sessionID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Challenge requests a message for the source wallet to sign
func (c *Client) Challenge(ctx context.Context, sessionID string) (*sessionauth.Challenge, error) {
	var out sessionauth.Challenge
	if err := c.do(ctx, http.MethodPost, "/api/sessions/"+url.PathEscape(sessionID)+"/challenge", struct{}{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PrepareStep returns the transaction to sign for a step
func (c *Client) PrepareStep(ctx context.Context, sessionID string, index int, proof sessionauth.Proof) (types.TxRequest, error) {
	var out struct {
		TxRequest types.TxEnvelope `json:"txRequest"`
	}
	req := api.StepRequest{StepIndex: &index, Auth: &proof}
	if err := c.do(ctx, http.MethodPost, "/api/sessions/"+url.PathEscape(sessionID)+"/step", req, &out); err != nil {
		return nil, err
	}
	return out.TxRequest.Request, nil
}

// ReportStep reports a step as submitted, confirmed or failed
func (c *Client) ReportStep(ctx context.Context, sessionID string, index int, status session.StepStatus, txRef, errMsg string, proof sessionauth.Proof) (*session.View, error) {
	var out session.View
	req := api.StepRequest{
		StepIndex:    &index,
		Status:       string(status),
		TxRef:        txRef,
		ErrorMessage: errMsg,
		Auth:         &proof,
	}
	if err := c.do(ctx, http.MethodPost, "/api/sessions/"+url.PathEscape(sessionID)+"/step", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &APIError{StatusCode: resp.StatusCode}

	var parsed api.ErrorResponse
	if err := json.Unmarshal(raw, &parsed); err == nil && parsed.Error != "" {
		apiErr.Code = parsed.Code
		apiErr.Message = parsed.Error
		apiErr.Details = parsed.Details
	} else {
		apiErr.Message = strings.TrimSpace(string(raw))
	}

	if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
		apiErr.RetryAfter = time.Duration(secs) * time.Second
	}
	return apiErr
}
