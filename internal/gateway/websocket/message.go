// Package websocket pushes confirmation lifecycle notifications to
// connected clients and accepts their decisions.
package websocket

// WSMessage is the envelope of every client-originated message and of the
// hub's own replies.
type WSMessage struct {
	Type    string `json:"type"`
	Session string `json:"session,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`

	// confirmation_response
	ToolCallID string `json:"tool_call_id,omitempty"`
	Approved   *bool  `json:"approved,omitempty"`
}

// BroadcastMessage wraps a message with its target session. An empty
// session targets every client.
type BroadcastMessage struct {
	Session string
	Data    []byte
}

// Message types.
const (
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
	TypePing        = "ping"
	TypePong        = "pong"
	TypeError       = "error"
	TypeAck         = "ack"

	TypeConfirmationRequest  = "confirmation_request"
	TypeConfirmationResolved = "confirmation_resolved"
	TypeConfirmationResponse = "confirmation_response"
)
