package websocket

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"mindrian/pkg/logger"
)

// ErrNoConfirmationHandler is returned when a decision arrives before the
// hub was wired to the coordinator.
var ErrNoConfirmationHandler = errors.New("no confirmation handler configured")

// ConfirmationHandler applies a decision received from a client. It reports
// whether a pending confirmation matched.
type ConfirmationHandler func(toolCallID string, approved bool) bool

// Hub maintains the set of active clients and broadcasts messages.
type Hub struct {
	clients  map[*Client]bool
	sessions map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *BroadcastMessage
	stop       chan struct{}
	stopOnce   sync.Once

	mu sync.RWMutex

	confirmationHandler ConfirmationHandler
	log                 zerolog.Logger
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		sessions:   make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage, 256),
		stop:       make(chan struct{}),
		log:        logger.Component("websocket"),
	}
}

// SetConfirmationHandler sets the callback for client decisions.
func (h *Hub) SetConfirmationHandler(handler ConfirmationHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.confirmationHandler = handler
}

// HandleConfirmation forwards a client decision to the handler.
func (h *Hub) HandleConfirmation(toolCallID string, approved bool) (bool, error) {
	h.mu.RLock()
	handler := h.confirmationHandler
	h.mu.RUnlock()

	if handler == nil {
		h.log.Warn().Str("tool_call_id", toolCallID).Msg("Confirmation response received but no handler configured")
		return false, ErrNoConfirmationHandler
	}
	return handler(toolCallID, approved), nil
}

// Run is the hub's main loop. It returns after Stop, closing every client.
func (h *Hub) Run() {
	for {
		select {
		case <-h.stop:
			h.mu.Lock()
			for client := range h.clients {
				h.removeLocked(client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.log.Info().Str("client_id", client.id).Msg("WebSocket client connected")

		case client := <-h.unregister:
			h.mu.Lock()
			h.removeLocked(client)
			h.mu.Unlock()
			h.log.Info().Str("client_id", client.id).Msg("WebSocket client disconnected")

		case msg := <-h.broadcast:
			h.mu.RLock()
			targets := h.clients
			if msg.Session != "" {
				targets = h.sessions[msg.Session]
			}
			for client := range targets {
				select {
				case client.send <- msg.Data:
				default:
					h.log.Warn().Str("client_id", client.id).Msg("Client buffer full, dropping message")
				}
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) removeLocked(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)
	for session := range client.sessions {
		if clients, ok := h.sessions[session]; ok {
			delete(clients, client)
			if len(clients) == 0 {
				delete(h.sessions, session)
			}
		}
	}
}

// Stop ends Run. It is safe to call more than once.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.stop:
	}
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.stop:
	}
}

// Subscribe adds a client to a session's subscriber list.
func (h *Hub) Subscribe(client *Client, session string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client.sessions[session] = true
	if h.sessions[session] == nil {
		h.sessions[session] = make(map[*Client]bool)
	}
	h.sessions[session][client] = true

	h.log.Debug().Str("client_id", client.id).Str("session", session).Msg("Client subscribed to session")
}

// Unsubscribe removes a client from a session's subscriber list.
func (h *Hub) Unsubscribe(client *Client, session string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(client.sessions, session)
	if clients, ok := h.sessions[session]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.sessions, session)
		}
	}

	h.log.Debug().Str("client_id", client.id).Str("session", session).Msg("Client unsubscribed from session")
}

func (h *Hub) enqueue(msg *BroadcastMessage) {
	select {
	case h.broadcast <- msg:
	case <-h.stop:
	}
}

// Broadcast sends data to the subscribers of session.
func (h *Hub) Broadcast(session string, data []byte) {
	h.enqueue(&BroadcastMessage{Session: session, Data: data})
}

// BroadcastAll sends data to every connected client.
func (h *Hub) BroadcastAll(data []byte) {
	h.enqueue(&BroadcastMessage{Data: data})
}

// BroadcastTyped sends {"type": messageType, "data": payload} to every
// connected client.
func (h *Hub) BroadcastTyped(messageType string, payload any) error {
	data, err := json.Marshal(struct {
		Type string `json:"type"`
		Data any    `json:"data"`
	}{Type: messageType, Data: payload})
	if err != nil {
		h.log.Error().Err(err).Str("type", messageType).Msg("Failed to marshal broadcast message")
		return err
	}
	h.BroadcastAll(data)
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
