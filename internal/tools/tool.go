// Package tools defines the Tool interface the reasoning backend executes
// locally and a registry to look tools up by name.
package tools

import (
	"context"
)

type contextKey string

const callContextKey contextKey = "call_context"

// CallContext identifies who a tool call runs for.
type CallContext struct {
	SessionID   string
	UserID      string
	WorkspaceID string
	ToolCallID  string
}

// WithCallContext attaches cc to ctx.
func WithCallContext(ctx context.Context, cc CallContext) context.Context {
	return context.WithValue(ctx, callContextKey, cc)
}

// CallContextFrom returns the CallContext attached to ctx, if any.
func CallContextFrom(ctx context.Context) (CallContext, bool) {
	cc, ok := ctx.Value(callContextKey).(CallContext)
	return cc, ok
}

// Tool defines the interface that all tools must implement.
type Tool interface {
	// Name returns the unique identifier for this tool.
	Name() string

	// Description returns a human-readable description of what this tool does.
	Description() string

	// Parameters returns the JSON Schema for the tool's input.
	Parameters() map[string]any

	// Execute runs the tool. A returned error is an infrastructure failure;
	// a failed operation is reported as a Result with IsError set.
	Execute(ctx context.Context, args map[string]any) (Result, error)
}

// Result represents the result of a tool execution.
type Result struct {
	Content string `json:"content"`
	IsError bool   `json:"is_error"`
}

// NewSuccessResult creates a successful tool result with the given content.
func NewSuccessResult(content string) Result {
	return Result{Content: content}
}

// NewErrorResult creates an error tool result with the given error message.
func NewErrorResult(errMsg string) Result {
	return Result{Content: errMsg, IsError: true}
}

// String returns a string representation of the Result.
func (r Result) String() string {
	if r.IsError {
		return "[error] " + r.Content
	}
	return r.Content
}

// BaseTool provides Name, Description and Parameters for embedding.
type BaseTool struct {
	ToolName        string
	ToolDescription string
	ToolParameters  map[string]any
}

// Name returns the tool name.
func (t *BaseTool) Name() string {
	return t.ToolName
}

// Description returns the tool description.
func (t *BaseTool) Description() string {
	return t.ToolDescription
}

// Parameters returns the tool parameters schema.
func (t *BaseTool) Parameters() map[string]any {
	if t.ToolParameters == nil {
		return map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		}
	}
	return t.ToolParameters
}
