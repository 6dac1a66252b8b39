// Package confirm gates tool invocations on human approval. Each pending
// confirmation is keyed by the backend's own tool-call id, raises a
// RunPaused event on the owning session's queue and resolves exactly once:
// by decision, by timeout (denied) or by cancellation.
package confirm

import (
	"encoding/json"
	"errors"
	"time"
)

// DeniedReason is the tool failure text for a rejected or timed-out confirmation.
const DeniedReason = "User rejected the operation"

var (
	// ErrMaxPending is returned when too many confirmations are outstanding.
	ErrMaxPending = errors.New("too many pending confirmations")
	// ErrDuplicate is returned when the tool-call id already has a pending confirmation.
	ErrDuplicate = errors.New("confirmation already pending for tool call")
	// ErrPauseUndelivered is returned when the session queue is full and
	// RunPaused could not be raised.
	ErrPauseUndelivered = errors.New("pause event could not be delivered")
	// ErrNoToolCallID is returned by a Binding whose context carries no tool-call id.
	ErrNoToolCallID = errors.New("no tool call id in context")
)

// Decision is how a confirmation was resolved.
type Decision string

const (
	DecisionApproved  Decision = "approved"
	DecisionDenied    Decision = "denied"
	DecisionTimeout   Decision = "timeout"
	DecisionCancelled Decision = "cancelled"
)

// Request is a pending confirmation.
type Request struct {
	ToolCallID string          `json:"tool_call_id"`
	SessionID  string          `json:"session_id"`
	RunID      string          `json:"run_id"`
	ToolName   string          `json:"tool_name"`
	ToolArgs   json.RawMessage `json:"tool_args"`
	CreatedAt  time.Time       `json:"created_at"`
	ExpiresAt  time.Time       `json:"expires_at"`
}

// Result is the outcome of a confirmation.
type Result struct {
	Approved  bool      `json:"approved"`
	Decision  Decision  `json:"decision"`
	DecidedAt time.Time `json:"decided_at"`
}

// Notifier pushes confirmation lifecycle to interested clients.
type Notifier interface {
	NotifyRequest(req *Request) error
	NotifyResolved(req *Request, result *Result) error
}

// AuditLog records confirmation requests and decisions.
type AuditLog interface {
	LogRequest(req *Request)
	LogDecision(req *Request, result *Result)
}
