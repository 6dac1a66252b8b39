package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
)

type taskArgs struct {
	SubagentType string `json:"subagent_type"`
	Description  string `json:"description"`
	Prompt       string `json:"prompt"`
}

func delegateDescription(delegates map[string]Delegate, kinds []string) string {
	var b strings.Builder
	b.WriteString("Launch a specialized agent for a single turn. Available agents:")
	for _, k := range kinds {
		b.WriteString("\n- " + k)
		if d := delegates[k].Description; d != "" {
			b.WriteString(": " + d)
		}
	}
	return b.String()
}

func (b *Backend) delegateSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"subagent_type": map[string]any{
				"type":        "string",
				"description": "The agent to launch",
				"enum":        b.delegateKinds(),
			},
			"description": map[string]any{
				"type":        "string",
				"description": "A short description of the task",
			},
			"prompt": map[string]any{
				"type":        "string",
				"description": "The task for the agent to perform",
			},
		},
		"required": []string{"subagent_type", "prompt"},
	}
}

// delegate runs a Task call as one nested Messages request. The agent sees
// only the prompt it is given.
func (c *conn) delegate(ctx context.Context, input json.RawMessage) (string, bool, error) {
	var args taskArgs
	if err := json.Unmarshal(input, &args); err != nil {
		return "Error: invalid Task input: " + err.Error(), true, nil
	}
	d, ok := c.b.cfg.Delegates[args.SubagentType]
	if !ok {
		return fmt.Sprintf("Unknown agent type: %s", args.SubagentType), true, nil
	}

	model := d.Model
	if model == "" {
		model = c.b.cfg.Model
	}
	maxTokens := d.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.b.cfg.MaxTokens
	}
	params := sdk.MessageNewParams{
		Model:     sdk.Model(model),
		MaxTokens: int64(maxTokens),
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(args.Prompt))},
	}
	if d.SystemPrompt != "" {
		params.System = []sdk.TextBlockParam{{Text: d.SystemPrompt}}
	}

	msg, err := c.b.msg.New(ctx, params)
	if err != nil {
		if ctx.Err() != nil {
			return "", false, ctx.Err()
		}
		c.b.log.Warn().Err(err).Str("delegate", args.SubagentType).Msg("Delegate call failed")
		return fmt.Sprintf("Agent %s failed: %v", args.SubagentType, err), true, nil
	}

	var out strings.Builder
	for _, cb := range msg.Content {
		if cb.Type == "text" {
			out.WriteString(cb.Text)
		}
	}
	return out.String(), false, nil
}
