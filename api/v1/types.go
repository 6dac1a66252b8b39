// Package v1 provides API v1 data types and handlers.
package v1

import (
	"time"

	"mindrian/internal/gateway/handlers"
)

// Error codes for API responses.
const (
	ErrCodeInvalidRequest     = handlers.ErrCodeInvalidRequest
	ErrCodeNotFound           = handlers.ErrCodeNotFound
	ErrCodeConflict           = handlers.ErrCodeConflict
	ErrCodeInternalError      = handlers.ErrCodeInternalError
	ErrCodeServiceUnavailable = handlers.ErrCodeServiceUnavailable
	ErrCodeStreamUnsupported  = "STREAM_UNSUPPORTED"
)

// =============================================================================
// Run API Models
// =============================================================================

// RunRequest starts a run. It is accepted as JSON or as form fields.
type RunRequest struct {
	Message     string `json:"message"`
	Stream      *bool  `json:"stream,omitempty"` // defaults to true; false is rejected
	SessionID   string `json:"session_id"`
	UserID      string `json:"user_id,omitempty"`
	WorkspaceID string `json:"workspace_id,omitempty"`
}

// ToolDecision is one verdict in a continue request.
type ToolDecision struct {
	ToolCallID string `json:"tool_call_id"`
	Confirmed  bool   `json:"confirmed"`
}

// ContinueRequest carries decisions for paused tool calls. In form
// encoding tool_decisions is a JSON-encoded list.
type ContinueRequest struct {
	SessionID     string         `json:"session_id"`
	ToolDecisions []ToolDecision `json:"tool_decisions"`
}

// CancelRequest cancels a run.
type CancelRequest struct {
	SessionID string `json:"session_id,omitempty"`
}

// CancelResponse is returned by the cancel endpoint.
type CancelResponse struct {
	Status string `json:"status"`
	RunID  string `json:"run_id"`
}

// RunResponse describes a recorded run.
type RunResponse struct {
	ID        string     `json:"id"`
	SessionID string     `json:"session_id"`
	Status    string     `json:"status"`
	Error     string     `json:"error,omitempty"`
	Active    bool       `json:"active"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// =============================================================================
// Session API Models
// =============================================================================

// SessionResponse is the public view of a session.
type SessionResponse struct {
	SessionID      string         `json:"session_id"`
	UserID         string         `json:"user_id,omitempty"`
	WorkspaceID    string         `json:"workspace_id,omitempty"`
	HasResumeToken bool           `json:"has_resume_token"`
	ActiveRunID    string         `json:"active_run_id,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	Exchanges      map[string]int `json:"exchanges"`
}

// =============================================================================
// Confirmation API Models
// =============================================================================

// ConfirmationInfo is one pending confirmation.
type ConfirmationInfo struct {
	ToolCallID string    `json:"tool_call_id"`
	SessionID  string    `json:"session_id"`
	RunID      string    `json:"run_id,omitempty"`
	ToolName   string    `json:"tool_name"`
	ToolArgs   any       `json:"tool_args,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// ConfirmationsResponse lists pending confirmations.
type ConfirmationsResponse struct {
	Confirmations []ConfirmationInfo `json:"confirmations"`
	Count         int                `json:"count"`
}

// =============================================================================
// Tools API Models
// =============================================================================

// ToolInfo describes a registered tool.
type ToolInfo struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	Confirmable bool           `json:"confirmable"`
}

// ToolsResponse lists registered tools.
type ToolsResponse struct {
	Tools []ToolInfo `json:"tools"`
	Count int        `json:"count"`
}
