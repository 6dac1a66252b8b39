// Package event defines the canonical run lifecycle events streamed to
// clients and their server-sent-events encoding.
package event

import (
	"encoding/json"
	"fmt"
	"io"
)

// Kind names a lifecycle event. The string value is the SSE event name.
type Kind string

const (
	KindRunStarted    Kind = "RunStarted"
	KindTextChunk     Kind = "TextChunk"
	KindTextEnd       Kind = "TextEnd"
	KindToolStarted   Kind = "ToolStarted"
	KindToolCompleted Kind = "ToolCompleted"
	KindToolFailed    Kind = "ToolFailed"
	KindRunPaused     Kind = "RunPaused"
	KindRunContinued  Kind = "RunContinued"
	KindRunCompleted  Kind = "RunCompleted"
	KindRunError      Kind = "RunError"
	KindRunCancelled  Kind = "RunCancelled"
)

// Terminal reports whether k ends a run.
func (k Kind) Terminal() bool {
	return k == KindRunCompleted || k == KindRunError || k == KindRunCancelled
}

// Event is one canonical lifecycle event.
type Event struct {
	Kind Kind `json:"event"`
	Data any  `json:"data"`
}

// ToolCall identifies a tool invocation as the backend reported it.
type ToolCall struct {
	ToolCallID string          `json:"tool_call_id"`
	ToolName   string          `json:"tool_name"`
	ToolArgs   json.RawMessage `json:"tool_args"`
}

type (
	RunStartedData struct {
		RunID string `json:"run_id"`
	}
	TextChunkData struct {
		Content string `json:"content"`
	}
	ToolCompletedData struct {
		ToolCallID string `json:"tool_call_id"`
		Result     any    `json:"result"`
	}
	ToolFailedData struct {
		ToolCallID string `json:"tool_call_id"`
		Error      string `json:"error"`
	}
	RunPausedData struct {
		RunID string     `json:"run_id"`
		Tools []ToolCall `json:"tools"`
	}
	RunErrorData struct {
		Content string `json:"content"`
	}
	emptyData struct{}
)

func RunStarted(runID string) Event {
	return Event{Kind: KindRunStarted, Data: RunStartedData{RunID: runID}}
}

func TextChunk(content string) Event {
	return Event{Kind: KindTextChunk, Data: TextChunkData{Content: content}}
}

func TextEnd() Event { return Event{Kind: KindTextEnd, Data: emptyData{}} }

func ToolStarted(call ToolCall) Event {
	return Event{Kind: KindToolStarted, Data: normalize(call)}
}

func ToolCompleted(toolCallID string, result any) Event {
	return Event{Kind: KindToolCompleted, Data: ToolCompletedData{ToolCallID: toolCallID, Result: result}}
}

func ToolFailed(toolCallID, errMsg string) Event {
	return Event{Kind: KindToolFailed, Data: ToolFailedData{ToolCallID: toolCallID, Error: errMsg}}
}

// RunPaused announces tools awaiting a human decision.
func RunPaused(runID string, tools ...ToolCall) Event {
	calls := make([]ToolCall, len(tools))
	for i, t := range tools {
		calls[i] = normalize(t)
	}
	return Event{Kind: KindRunPaused, Data: RunPausedData{RunID: runID, Tools: calls}}
}

func RunContinued() Event { return Event{Kind: KindRunContinued, Data: emptyData{}} }

func RunCompleted() Event { return Event{Kind: KindRunCompleted, Data: emptyData{}} }

func RunError(content string) Event {
	return Event{Kind: KindRunError, Data: RunErrorData{Content: content}}
}

func RunCancelled() Event { return Event{Kind: KindRunCancelled, Data: emptyData{}} }

func normalize(call ToolCall) ToolCall {
	if len(call.ToolArgs) == 0 {
		call.ToolArgs = json.RawMessage("{}")
	}
	return call
}

// Encode writes e in SSE framing: "event: <kind>\ndata: <json>\n\n".
func Encode(w io.Writer, e Event) error {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("marshal %s data: %w", e.Kind, err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Kind, data)
	return err
}
