package anthropic

import (
	"encoding/json"
	"sort"

	sdk "github.com/anthropics/anthropic-sdk-go"

	"mindrian/internal/backend"
)

const (
	roleUser      = "user"
	roleAssistant = "assistant"
)

// block is the stored form of one content block.
type block struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

// turn is one message of the stored transcript.
type turn struct {
	Role   string  `json:"role"`
	Blocks []block `json:"blocks"`
}

func userText(text string) turn {
	return turn{Role: roleUser, Blocks: []block{{Type: "text", Text: text}}}
}

func (t turn) param() sdk.MessageParam {
	blocks := make([]sdk.ContentBlockParamUnion, 0, len(t.Blocks))
	for _, b := range t.Blocks {
		switch b.Type {
		case "text":
			blocks = append(blocks, sdk.NewTextBlock(b.Text))
		case "tool_use":
			blocks = append(blocks, sdk.NewToolUseBlock(b.ID, b.Input, b.Name))
		case "tool_result":
			blocks = append(blocks, sdk.NewToolResultBlock(b.ToolUseID, b.Content, b.IsError))
		}
	}
	if t.Role == roleAssistant {
		return sdk.NewAssistantMessage(blocks...)
	}
	return sdk.NewUserMessage(blocks...)
}

func toParams(history []turn) []sdk.MessageParam {
	out := make([]sdk.MessageParam, 0, len(history))
	for _, t := range history {
		if len(t.Blocks) == 0 {
			continue
		}
		out = append(out, t.param())
	}
	return out
}

func (t turn) toolUses() []backend.ToolUse {
	var uses []backend.ToolUse
	for _, b := range t.Blocks {
		if b.Type == "tool_use" {
			uses = append(uses, backend.ToolUse{ID: b.ID, Name: b.Name, Input: b.Input})
		}
	}
	return uses
}

// accumulator assembles an assistant turn from stream events.
type accumulator struct {
	blocks map[int]*block
}

func newAccumulator() *accumulator {
	return &accumulator{blocks: make(map[int]*block)}
}

func (a *accumulator) start(idx int, cb any) {
	switch v := cb.(type) {
	case sdk.ToolUseBlock:
		a.blocks[idx] = &block{Type: "tool_use", ID: v.ID, Name: v.Name}
	case sdk.TextBlock:
		a.blocks[idx] = &block{Type: "text", Text: v.Text}
	}
}

func (a *accumulator) text(idx int, s string) {
	b := a.blocks[idx]
	if b == nil {
		b = &block{Type: "text"}
		a.blocks[idx] = b
	}
	b.Text += s
}

func (a *accumulator) input(idx int, partial string) {
	if b := a.blocks[idx]; b != nil && b.Type == "tool_use" {
		b.Input = append(b.Input, partial...)
	}
}

func (a *accumulator) turn() turn {
	idxs := make([]int, 0, len(a.blocks))
	for i := range a.blocks {
		idxs = append(idxs, i)
	}
	sort.Ints(idxs)

	t := turn{Role: roleAssistant}
	for _, i := range idxs {
		b := *a.blocks[i]
		switch b.Type {
		case "text":
			if b.Text == "" {
				continue
			}
		case "tool_use":
			if len(b.Input) == 0 || !json.Valid(b.Input) {
				b.Input = json.RawMessage(`{}`)
			}
		}
		t.Blocks = append(t.Blocks, b)
	}
	return t
}

// textContent wraps s the way tool results are delivered: a list holding
// one text item.
func textContent(s string) json.RawMessage {
	data, _ := json.Marshal([]map[string]string{{"type": "text", "text": s}})
	return data
}
