package confirm

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"mindrian/internal/backend"
)

type toolCallIDKey struct{}

// WithToolCallID returns ctx carrying the backend tool-call id.
func WithToolCallID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, toolCallIDKey{}, id)
}

// ToolCallIDFrom extracts the tool-call id set by WithToolCallID.
func ToolCallIDFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(toolCallIDKey{}).(string)
	return id, ok && id != ""
}

// Confirmer is the capability handed to whatever needs to raise a pause.
type Confirmer interface {
	RequestConfirmation(ctx context.Context, toolName string, args json.RawMessage) (bool, error)
}

// Binding is a Confirmer scoped to one session.
type Binding struct {
	c         *Coordinator
	sessionID string
}

// Binding returns the session-scoped confirmation capability.
func (c *Coordinator) Binding(sessionID string) Binding {
	return Binding{c: c, sessionID: sessionID}
}

// RequestConfirmation asks for approval of the tool call identified by ctx.
func (b Binding) RequestConfirmation(ctx context.Context, toolName string, args json.RawMessage) (bool, error) {
	id, ok := ToolCallIDFrom(ctx)
	if !ok {
		return false, ErrNoToolCallID
	}
	return b.c.Request(ctx, b.sessionID, id, toolName, args)
}

// Gate returns a pre-tool-use hook that denies the call unless a human
// approves it. A cancelled context aborts with the context error.
func (c *Coordinator) Gate(sessionID string) backend.PreToolUseHook {
	var confirmer Confirmer = c.Binding(sessionID)
	return func(ctx context.Context, call backend.ToolCall) (backend.HookResult, error) {
		approved, err := confirmer.RequestConfirmation(WithToolCallID(ctx, call.ID), call.Name, call.Input)
		if err != nil {
			if ctx.Err() != nil {
				return backend.HookResult{}, err
			}
			c.log.Warn().Err(err).Str("tool_call_id", call.ID).Msg("Confirmation unavailable, denying tool")
			return backend.HookResult{Decision: backend.Deny, Reason: fmt.Sprintf("%s: %v", DeniedReason, err)}, nil
		}
		if !approved {
			return backend.HookResult{Decision: backend.Deny, Reason: DeniedReason}, nil
		}
		return backend.HookResult{Decision: backend.Allow}, nil
	}
}

// ToolSet is the mutable set of confirmable tool names.
type ToolSet struct {
	mu    sync.RWMutex
	names map[string]struct{}
}

// NewToolSet creates a set from names.
func NewToolSet(names ...string) *ToolSet {
	s := &ToolSet{}
	s.Replace(names)
	return s
}

// Contains reports whether name needs confirmation.
func (s *ToolSet) Contains(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.names[name]
	return ok
}

// Replace swaps the whole set, e.g. on config reload.
func (s *ToolSet) Replace(names []string) {
	m := make(map[string]struct{}, len(names))
	for _, n := range names {
		m[n] = struct{}{}
	}
	s.mu.Lock()
	s.names = m
	s.mu.Unlock()
}

// Names returns the set sorted.
func (s *ToolSet) Names() []string {
	s.mu.RLock()
	out := make([]string, 0, len(s.names))
	for n := range s.names {
		out = append(out, n)
	}
	s.mu.RUnlock()
	sort.Strings(out)
	return out
}
