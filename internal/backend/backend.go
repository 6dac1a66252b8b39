// Package backend defines the contract between the run orchestrator and a
// reasoning backend: a per-run connection that accepts a query and streams
// a closed set of message variants back.
package backend

import (
	"context"
	"encoding/json"
	"fmt"
)

// DelegateTool is the tool name through which the assistant dispatches a
// delegate agent. Its input carries subagent_type and prompt.
const DelegateTool = "Task"

// Message is one item of a backend stream. The variants below are the
// complete set; consumers switch on the concrete type.
type Message interface {
	isMessage()
}

// SystemInit opens the stream.
type SystemInit struct {
	SessionID string
}

// TextDelta is a streamed fragment of assistant text.
type TextDelta struct {
	Text string
}

// BlockStop ends the current content block.
type BlockStop struct{}

// ToolUse is a tool invocation requested by the assistant.
type ToolUse struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// AssistantTurn carries the tool invocations of one assistant message.
type AssistantTurn struct {
	ToolUses []ToolUse
}

// ToolResult is the outcome of one tool invocation. Content is the raw JSON
// value: a string, or a list of {"type":"text","text":...} items.
type ToolResult struct {
	ToolUseID string
	Content   json.RawMessage
	IsError   bool
}

// ToolResultTurn carries tool results fed back to the assistant.
type ToolResultTurn struct {
	Results []ToolResult
}

// Result terminates the stream. ResumeToken is set on success.
type Result struct {
	IsError     bool
	Reason      string
	ResumeToken string
}

func (SystemInit) isMessage()     {}
func (TextDelta) isMessage()      {}
func (BlockStop) isMessage()      {}
func (AssistantTurn) isMessage()  {}
func (ToolResultTurn) isMessage() {}
func (Result) isMessage()         {}

// Decision is a pre-tool-use hook verdict.
type Decision string

const (
	Allow Decision = "allow"
	Deny  Decision = "deny"
)

// ToolCall is what a pre-tool-use hook sees.
type ToolCall struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// HookResult is returned by a pre-tool-use hook. A non-empty UpdatedInput
// replaces the tool input for later hooks and for execution.
type HookResult struct {
	Decision     Decision
	Reason       string
	UpdatedInput json.RawMessage
}

// PreToolUseHook runs before a tool executes and may deny or rewrite it.
type PreToolUseHook func(ctx context.Context, call ToolCall) (HookResult, error)

// HookMatcher binds hooks to a tool name. "*" matches every tool.
type HookMatcher struct {
	Tool  string
	Hooks []PreToolUseHook
}

// Options configures one connection.
type Options struct {
	SessionID   string
	ResumeToken string
	UserID      string
	WorkspaceID string
	Hooks       []HookMatcher
}

// Backend opens connections. A fresh connection is made per run.
type Backend interface {
	Connect(ctx context.Context, opts Options) (Conn, error)
}

// Conn is a live connection to the backend.
type Conn interface {
	// Query dispatches the prompt. Messages start flowing afterwards.
	Query(ctx context.Context, prompt string) error
	// Messages is closed after Result or on failure.
	Messages() <-chan Message
	// Err reports the failure that closed Messages early, if any.
	Err() error
	Disconnect() error
}

// Error wraps a backend failure with the operation that produced it.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("backend %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// RunHooks applies matching hooks in order. The first deny wins; an
// UpdatedInput is visible to later hooks and returned in the final call.
func RunHooks(ctx context.Context, matchers []HookMatcher, call ToolCall) (HookResult, ToolCall, error) {
	for _, m := range matchers {
		if m.Tool != "*" && m.Tool != call.Name {
			continue
		}
		for _, hook := range m.Hooks {
			res, err := hook(ctx, call)
			if err != nil {
				return HookResult{}, call, err
			}
			if res.Decision == Deny {
				return res, call, nil
			}
			if len(res.UpdatedInput) > 0 {
				call.Input = res.UpdatedInput
			}
		}
	}
	return HookResult{Decision: Allow}, call, nil
}
