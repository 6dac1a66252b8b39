package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/google/uuid"

	"mindrian/internal/backend"
	"mindrian/internal/tools"
)

var errAlreadyQueried = errors.New("anthropic: query already dispatched on this connection")

type conn struct {
	b       *Backend
	opts    backend.Options
	history []turn
	msgs    chan backend.Message
	done    chan struct{}

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	err     error
}

func (c *conn) Query(ctx context.Context, prompt string) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return errAlreadyQueried
	}
	c.started = true
	ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()

	go c.run(ctx, prompt)
	return nil
}

func (c *conn) Messages() <-chan backend.Message {
	return c.msgs
}

func (c *conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Disconnect stops the run and waits for its goroutine to exit.
func (c *conn) Disconnect() error {
	c.mu.Lock()
	started, cancel := c.started, c.cancel
	c.mu.Unlock()
	if !started {
		return nil
	}
	cancel()
	<-c.done
	return nil
}

func (c *conn) fail(op string, err error) {
	c.mu.Lock()
	if c.err == nil {
		c.err = &backend.Error{Op: op, Err: err}
	}
	c.mu.Unlock()
}

func (c *conn) send(ctx context.Context, m backend.Message) bool {
	select {
	case c.msgs <- m:
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *conn) run(ctx context.Context, prompt string) {
	defer close(c.done)
	defer close(c.msgs)

	if !c.send(ctx, backend.SystemInit{SessionID: c.opts.SessionID}) {
		c.fail("init", ctx.Err())
		return
	}
	c.history = append(c.history, userText(prompt))

	for n := 0; ; n++ {
		if n >= c.b.cfg.MaxTurns {
			c.send(ctx, backend.Result{IsError: true, Reason: fmt.Sprintf("exceeded %d tool turns", c.b.cfg.MaxTurns)})
			return
		}

		assistant, err := c.stream(ctx)
		if err != nil {
			c.fail("stream", err)
			return
		}
		c.history = append(c.history, assistant)

		uses := assistant.toolUses()
		if len(uses) == 0 {
			break
		}
		if !c.send(ctx, backend.AssistantTurn{ToolUses: uses}) {
			c.fail("stream", ctx.Err())
			return
		}

		results := make([]backend.ToolResult, 0, len(uses))
		reply := turn{Role: roleUser}
		for _, use := range uses {
			text, isError, err := c.execute(ctx, use)
			if err != nil {
				c.fail("tool "+use.Name, err)
				return
			}
			results = append(results, backend.ToolResult{ToolUseID: use.ID, Content: textContent(text), IsError: isError})
			reply.Blocks = append(reply.Blocks, block{Type: "tool_result", ToolUseID: use.ID, Content: text, IsError: isError})
		}
		if !c.send(ctx, backend.ToolResultTurn{Results: results}) {
			c.fail("stream", ctx.Err())
			return
		}
		c.history = append(c.history, reply)
	}

	token := uuid.NewString()
	if err := c.b.saveTranscript(token, c.history); err != nil {
		c.fail("save transcript", err)
		return
	}
	c.send(ctx, backend.Result{ResumeToken: token})
}

// stream runs one Messages call, forwarding text as it arrives.
func (c *conn) stream(ctx context.Context) (turn, error) {
	cfg := c.b.cfg
	params := sdk.MessageNewParams{
		Model:     sdk.Model(cfg.Model),
		MaxTokens: int64(cfg.MaxTokens),
		Messages:  toParams(c.history),
	}
	if cfg.SystemPrompt != "" {
		params.System = []sdk.TextBlockParam{{Text: cfg.SystemPrompt}}
	}
	if tp := c.b.toolParams(); len(tp) > 0 {
		params.Tools = tp
	}

	stream := c.b.msg.NewStreaming(ctx, params)
	defer stream.Close()

	acc := newAccumulator()
	for stream.Next() {
		switch ev := stream.Current().AsAny().(type) {
		case sdk.ContentBlockStartEvent:
			acc.start(int(ev.Index), ev.ContentBlock.AsAny())
		case sdk.ContentBlockDeltaEvent:
			switch delta := ev.Delta.AsAny().(type) {
			case sdk.TextDelta:
				if delta.Text == "" {
					continue
				}
				acc.text(int(ev.Index), delta.Text)
				if !c.send(ctx, backend.TextDelta{Text: delta.Text}) {
					return turn{}, ctx.Err()
				}
			case sdk.InputJSONDelta:
				acc.input(int(ev.Index), delta.PartialJSON)
			}
		case sdk.ContentBlockStopEvent:
			if !c.send(ctx, backend.BlockStop{}) {
				return turn{}, ctx.Err()
			}
		}
	}
	if err := stream.Err(); err != nil {
		return turn{}, err
	}
	return acc.turn(), nil
}

// execute runs one tool call after its hooks. Only cancellation is
// returned as an error; everything else becomes an error result.
func (c *conn) execute(ctx context.Context, use backend.ToolUse) (string, bool, error) {
	hr, call, err := backend.RunHooks(ctx, c.opts.Hooks, backend.ToolCall{ID: use.ID, Name: use.Name, Input: use.Input})
	if err != nil {
		if ctx.Err() != nil {
			return "", false, ctx.Err()
		}
		return "Error: " + err.Error(), true, nil
	}
	if hr.Decision == backend.Deny {
		c.b.log.Info().Str("tool_call_id", use.ID).Str("tool", use.Name).Str("reason", hr.Reason).Msg("Tool denied by hook")
		return hr.Reason, true, nil
	}

	if call.Name == backend.DelegateTool {
		return c.delegate(ctx, call.Input)
	}

	args := map[string]any{}
	if len(call.Input) > 0 {
		if err := json.Unmarshal(call.Input, &args); err != nil {
			return tools.NewInvalidArgsError(call.Name, "input is not a JSON object", err).Error(), true, nil
		}
	}

	tctx := tools.WithCallContext(ctx, tools.CallContext{
		SessionID:   c.opts.SessionID,
		UserID:      c.opts.UserID,
		WorkspaceID: c.opts.WorkspaceID,
		ToolCallID:  call.ID,
	})
	res, err := c.b.cfg.Tools.Execute(tctx, call.Name, args)
	if err != nil {
		if ctx.Err() != nil {
			return "", false, ctx.Err()
		}
		return err.Error(), true, nil
	}
	return res.Content, res.IsError, nil
}
