package orchestrator

import (
	"encoding/json"
	"strings"

	"github.com/rs/zerolog"

	"mindrian/internal/backend"
	"mindrian/internal/event"
	"mindrian/internal/history"
)

// ResumeTokens records the token a finished run returned.
type ResumeTokens interface {
	SetResumeToken(sessionID, token string) error
}

// Capturer appends delegate results to their history track.
type Capturer interface {
	AfterDelegate(sessionID, kind, userInput string, result any) bool
}

// Confirmables reports which tools are gated on approval.
type Confirmables interface {
	Contains(name string) bool
}

type pendingDelegate struct {
	kind      string
	userInput string
}

// Translator maps backend messages of one run to lifecycle events. Besides
// the text-span flag threaded by the caller, its only state is the set of
// delegate calls awaiting history capture.
type Translator struct {
	runID       string
	sessionID   string
	tokens      ResumeTokens
	capture     Capturer
	confirmable Confirmables
	pending     map[string]pendingDelegate
	log         zerolog.Logger
}

// NewTranslator creates a translator for one run. capture and confirmable
// may be nil.
func NewTranslator(runID, sessionID string, tokens ResumeTokens, capture Capturer, confirmable Confirmables, log zerolog.Logger) *Translator {
	return &Translator{
		runID:       runID,
		sessionID:   sessionID,
		tokens:      tokens,
		capture:     capture,
		confirmable: confirmable,
		pending:     make(map[string]pendingDelegate),
		log:         log,
	}
}

// Translate returns the events for msg and the updated text-span flag.
func (t *Translator) Translate(msg backend.Message, textOpen bool) ([]event.Event, bool) {
	var out []event.Event
	closeText := func() {
		if textOpen {
			out = append(out, event.TextEnd())
			textOpen = false
		}
	}

	switch m := msg.(type) {
	case backend.SystemInit:
		out = append(out, event.RunStarted(t.runID))

	case backend.TextDelta:
		if m.Text != "" {
			out = append(out, event.TextChunk(m.Text))
			textOpen = true
		}

	case backend.BlockStop:
		closeText()

	case backend.AssistantTurn:
		closeText()
		for _, use := range m.ToolUses {
			t.trackDelegate(use)
			if t.confirmable != nil && t.confirmable.Contains(use.Name) {
				continue
			}
			out = append(out, event.ToolStarted(event.ToolCall{
				ToolCallID: use.ID,
				ToolName:   use.Name,
				ToolArgs:   use.Input,
			}))
		}

	case backend.ToolResultTurn:
		for _, r := range m.Results {
			pd, isDelegate := t.pending[r.ToolUseID]
			delete(t.pending, r.ToolUseID)

			if r.IsError {
				out = append(out, event.ToolFailed(r.ToolUseID, contentText(r.Content)))
				continue
			}
			result := unwrapResult(r.Content)
			if isDelegate && t.capture != nil {
				t.capture.AfterDelegate(t.sessionID, pd.kind, pd.userInput, result)
			}
			out = append(out, event.ToolCompleted(r.ToolUseID, result))
		}

	case backend.Result:
		if m.ResumeToken != "" && t.tokens != nil {
			if err := t.tokens.SetResumeToken(t.sessionID, m.ResumeToken); err != nil {
				t.log.Warn().Err(err).Str("session_id", t.sessionID).Msg("Failed to store resume token")
			}
		}
		closeText()
		if m.IsError {
			reason := m.Reason
			if reason == "" {
				reason = "Unknown error"
			}
			out = append(out, event.RunError(reason))
		} else {
			out = append(out, event.RunCompleted())
		}
	}
	return out, textOpen
}

func (t *Translator) trackDelegate(use backend.ToolUse) {
	if use.Name != backend.DelegateTool {
		return
	}
	var in struct {
		SubagentType string `json:"subagent_type"`
		Prompt       string `json:"prompt"`
	}
	if err := json.Unmarshal(use.Input, &in); err != nil || !history.IsDelegate(in.SubagentType) {
		return
	}
	t.pending[use.ID] = pendingDelegate{kind: in.SubagentType, userInput: in.Prompt}
	t.log.Debug().Str("tool_call_id", use.ID).Str("delegate", in.SubagentType).Msg("Tracking delegate call")
}

type textItem struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// unwrapResult extracts the payload of a successful tool result. A list
// whose first item is text is decoded as JSON when possible, taking its
// "result" field if present; otherwise the text itself is the result.
func unwrapResult(raw json.RawMessage) any {
	var items []textItem
	if err := json.Unmarshal(raw, &items); err == nil && len(items) > 0 && items[0].Type == "text" {
		var parsed any
		if err := json.Unmarshal([]byte(items[0].Text), &parsed); err != nil {
			return items[0].Text
		}
		if obj, ok := parsed.(map[string]any); ok {
			if inner, ok := obj["result"]; ok {
				return inner
			}
		}
		return parsed
	}

	var v any
	if err := json.Unmarshal(raw, &v); err == nil {
		return v
	}
	return string(raw)
}

// contentText renders error content as plain text.
func contentText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var items []textItem
	if err := json.Unmarshal(raw, &items); err == nil && len(items) > 0 {
		texts := make([]string, 0, len(items))
		for _, it := range items {
			if it.Type == "text" {
				texts = append(texts, it.Text)
			}
		}
		if len(texts) > 0 {
			return strings.Join(texts, "\n")
		}
	}
	return string(raw)
}
