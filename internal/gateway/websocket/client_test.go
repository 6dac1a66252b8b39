package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestNewClient(t *testing.T) {
	hub := NewHub()
	client := NewClient(hub, nil)

	if client.hub != hub {
		t.Error("client.hub != hub")
	}
	if client.sessions == nil || client.send == nil {
		t.Error("client maps not initialised")
	}
	if client.id == "" {
		t.Error("client.id is empty")
	}
	if client.connectedAt.IsZero() {
		t.Error("client.connectedAt is zero")
	}
}

func decode(t *testing.T, data []byte) WSMessage {
	t.Helper()
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	return msg
}

func TestClientHandleMessage(t *testing.T) {
	hub := startHub(t)
	client := newTestClient(hub, "test-client")
	attach(hub, client)

	var decisions []string
	hub.SetConfirmationHandler(func(id string, approved bool) bool {
		if id == "unknown" {
			return false
		}
		if approved {
			decisions = append(decisions, id+":approved")
		} else {
			decisions = append(decisions, id+":denied")
		}
		return true
	})

	t.Run("subscribe message", func(t *testing.T) {
		client.handleMessage([]byte(`{"type":"subscribe","session":"s1"}`))
		if !client.sessions["s1"] {
			t.Error("client not subscribed to s1")
		}
	})

	t.Run("ping message", func(t *testing.T) {
		client.handleMessage([]byte(`{"type":"ping"}`))
		if msg := decode(t, receive(t, client)); msg.Type != TypePong {
			t.Errorf("response type = %s, want %s", msg.Type, TypePong)
		}
	})

	t.Run("unsubscribe message", func(t *testing.T) {
		client.handleMessage([]byte(`{"type":"unsubscribe","session":"s1"}`))
		if client.sessions["s1"] {
			t.Error("client still subscribed to s1")
		}
	})

	t.Run("confirmation response", func(t *testing.T) {
		client.handleMessage([]byte(`{"type":"confirmation_response","tool_call_id":"tc1","approved":false}`))
		msg := decode(t, receive(t, client))
		if msg.Type != TypeAck || msg.ToolCallID != "tc1" {
			t.Errorf("response = %+v", msg)
		}
		if len(decisions) != 1 || decisions[0] != "tc1:denied" {
			t.Errorf("decisions = %v", decisions)
		}
	})

	t.Run("confirmation response without decision", func(t *testing.T) {
		client.handleMessage([]byte(`{"type":"confirmation_response","tool_call_id":"tc2"}`))
		if msg := decode(t, receive(t, client)); msg.Type != TypeError || msg.Code != "INVALID_REQUEST" {
			t.Errorf("response = %+v", msg)
		}
	})

	t.Run("confirmation response for unknown id", func(t *testing.T) {
		client.handleMessage([]byte(`{"type":"confirmation_response","tool_call_id":"unknown","approved":true}`))
		if msg := decode(t, receive(t, client)); msg.Type != TypeError || msg.Code != "NOT_FOUND" {
			t.Errorf("response = %+v", msg)
		}
	})

	t.Run("invalid message", func(t *testing.T) {
		client.handleMessage([]byte("invalid json"))
		if msg := decode(t, receive(t, client)); msg.Type != TypeError {
			t.Errorf("response type = %s, want %s", msg.Type, TypeError)
		}
	})
}

func TestServeWs(t *testing.T) {
	hub := startHub(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, w, r)
	}))
	defer server.Close()

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer ws.Close()

	if err := ws.WriteJSON(WSMessage{Type: TypePing}); err != nil {
		t.Fatalf("failed to send ping: %v", err)
	}
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var pong WSMessage
	if err := ws.ReadJSON(&pong); err != nil {
		t.Fatalf("failed to read pong: %v", err)
	}
	if pong.Type != TypePong {
		t.Errorf("response type = %s, want %s", pong.Type, TypePong)
	}
	if hub.ClientCount() != 1 {
		t.Errorf("ClientCount = %d, want 1", hub.ClientCount())
	}

	if err := hub.BroadcastTyped(TypeConfirmationResolved, map[string]any{"tool_call_id": "tc9", "approved": true}); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	var resolved struct {
		Type string         `json:"type"`
		Data map[string]any `json:"data"`
	}
	if err := ws.ReadJSON(&resolved); err != nil {
		t.Fatalf("failed to read broadcast: %v", err)
	}
	if resolved.Type != TypeConfirmationResolved || resolved.Data["tool_call_id"] != "tc9" {
		t.Errorf("broadcast = %+v", resolved)
	}
}
