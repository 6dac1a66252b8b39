package confirm

import (
	"fmt"
	"time"
)

// WebSocket message types.
const (
	MessageRequest  = "confirmation_request"
	MessageResolved = "confirmation_resolved"
)

// Broadcaster sends a typed message to every connected client.
type Broadcaster interface {
	BroadcastTyped(messageType string, data any) error
}

// ResolvedPayload is the data of a confirmation_resolved message.
type ResolvedPayload struct {
	ToolCallID string    `json:"tool_call_id"`
	SessionID  string    `json:"session_id"`
	Approved   bool      `json:"approved"`
	Decision   Decision  `json:"decision"`
	DecidedAt  time.Time `json:"decided_at"`
}

// BroadcastNotifier implements Notifier over a Broadcaster.
type BroadcastNotifier struct {
	broadcaster Broadcaster
}

// NewBroadcastNotifier creates a notifier.
func NewBroadcastNotifier(b Broadcaster) *BroadcastNotifier {
	return &BroadcastNotifier{broadcaster: b}
}

// NotifyRequest broadcasts a new confirmation request.
func (n *BroadcastNotifier) NotifyRequest(req *Request) error {
	if n.broadcaster == nil {
		return nil
	}
	if err := n.broadcaster.BroadcastTyped(MessageRequest, req); err != nil {
		return fmt.Errorf("broadcast confirmation request: %w", err)
	}
	return nil
}

// NotifyResolved broadcasts the resolution.
func (n *BroadcastNotifier) NotifyResolved(req *Request, result *Result) error {
	if n.broadcaster == nil {
		return nil
	}
	payload := ResolvedPayload{
		ToolCallID: req.ToolCallID,
		SessionID:  req.SessionID,
		Approved:   result.Approved,
		Decision:   result.Decision,
		DecidedAt:  result.DecidedAt,
	}
	if err := n.broadcaster.BroadcastTyped(MessageResolved, payload); err != nil {
		return fmt.Errorf("broadcast confirmation resolution: %w", err)
	}
	return nil
}
