// Package backendtest provides a scripted backend.Backend for tests. Each
// Connect consumes the next Run; tool steps run the connection's
// pre-tool-use hooks the way a real backend would.
package backendtest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"mindrian/internal/backend"
)

// ErrNoScript is returned by Connect when every Run has been consumed.
var ErrNoScript = errors.New("backendtest: no scripted run left")

// Step is one scripted action. Exactly one field is set.
type Step struct {
	Message backend.Message
	Tool    *ToolStep
	Fail    error
	Hang    bool
}

// ToolStep emits an AssistantTurn for Use, runs hooks, then emits the
// ToolResultTurn. A denied call yields an error result carrying the reason.
type ToolStep struct {
	Use     backend.ToolUse
	Content json.RawMessage
	IsError bool
}

// Run is the script for one connection.
type Run struct {
	ConnectErr error
	Steps      []Step
}

// Backend replays Runs in order.
type Backend struct {
	mu       sync.Mutex
	runs     []Run
	connects []backend.Options
	prompts  []string
	executed []backend.ToolCall
}

// New creates a Backend that serves runs in order.
func New(runs ...Run) *Backend {
	return &Backend{runs: runs}
}

// Connect implements backend.Backend.
func (b *Backend) Connect(_ context.Context, opts backend.Options) (backend.Conn, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connects = append(b.connects, opts)
	if len(b.runs) == 0 {
		return nil, ErrNoScript
	}
	run := b.runs[0]
	b.runs = b.runs[1:]
	if run.ConnectErr != nil {
		return nil, run.ConnectErr
	}
	return &conn{b: b, opts: opts, steps: run.Steps, msgs: make(chan backend.Message), done: make(chan struct{})}, nil
}

// Connects returns the options of every Connect call.
func (b *Backend) Connects() []backend.Options {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]backend.Options(nil), b.connects...)
}

// Prompts returns every queried prompt.
func (b *Backend) Prompts() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.prompts...)
}

// Executed returns the tool calls the hooks allowed, with rewritten input.
func (b *Backend) Executed() []backend.ToolCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]backend.ToolCall(nil), b.executed...)
}

type conn struct {
	b     *Backend
	opts  backend.Options
	steps []Step
	msgs  chan backend.Message
	done  chan struct{}

	mu     sync.Mutex
	cancel context.CancelFunc
	err    error
}

func (c *conn) Query(ctx context.Context, prompt string) error {
	c.b.mu.Lock()
	c.b.prompts = append(c.b.prompts, prompt)
	c.b.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()
	go c.play(ctx)
	return nil
}

func (c *conn) Messages() <-chan backend.Message { return c.msgs }

func (c *conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *conn) Disconnect() error {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-c.done
	return nil
}

func (c *conn) setErr(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
}

func (c *conn) send(ctx context.Context, m backend.Message) bool {
	select {
	case c.msgs <- m:
		return true
	case <-ctx.Done():
		c.setErr(ctx.Err())
		return false
	}
}

func (c *conn) play(ctx context.Context) {
	defer close(c.done)
	defer close(c.msgs)

	for _, step := range c.steps {
		switch {
		case step.Message != nil:
			if !c.send(ctx, step.Message) {
				return
			}
		case step.Tool != nil:
			if !c.tool(ctx, step.Tool) {
				return
			}
		case step.Fail != nil:
			c.setErr(&backend.Error{Op: "stream", Err: step.Fail})
			return
		case step.Hang:
			<-ctx.Done()
			c.setErr(ctx.Err())
			return
		}
	}
}

func (c *conn) tool(ctx context.Context, ts *ToolStep) bool {
	use := ts.Use
	if len(use.Input) == 0 {
		use.Input = json.RawMessage(`{}`)
	}
	if !c.send(ctx, backend.AssistantTurn{ToolUses: []backend.ToolUse{use}}) {
		return false
	}

	hr, call, err := backend.RunHooks(ctx, c.opts.Hooks, backend.ToolCall{ID: use.ID, Name: use.Name, Input: use.Input})
	if err != nil {
		c.setErr(&backend.Error{Op: "hook", Err: err})
		return false
	}

	result := backend.ToolResult{ToolUseID: use.ID, Content: ts.Content, IsError: ts.IsError}
	if hr.Decision == backend.Deny {
		result = backend.ToolResult{ToolUseID: use.ID, Content: TextContent(hr.Reason), IsError: true}
	} else {
		c.b.mu.Lock()
		c.b.executed = append(c.b.executed, call)
		c.b.mu.Unlock()
	}
	return c.send(ctx, backend.ToolResultTurn{Results: []backend.ToolResult{result}})
}

// TextContent wraps s as a list holding one text item.
func TextContent(s string) json.RawMessage {
	data, _ := json.Marshal([]map[string]string{{"type": "text", "text": s}})
	return data
}

// Msg returns a step sending m.
func Msg(m backend.Message) Step { return Step{Message: m} }

// Text returns the steps streaming s as one text block.
func Text(s string) []Step {
	return []Step{Msg(backend.TextDelta{Text: s}), Msg(backend.BlockStop{})}
}

// Tool returns a tool step whose allowed result is content wrapped as text.
func Tool(id, name, input, content string) Step {
	return Step{Tool: &ToolStep{
		Use:     backend.ToolUse{ID: id, Name: name, Input: json.RawMessage(input)},
		Content: TextContent(content),
	}}
}

// Done returns a successful terminal step.
func Done(token string) Step { return Msg(backend.Result{ResumeToken: token}) }

// Steps flattens steps and step groups into one script.
func Steps(parts ...any) []Step {
	var out []Step
	for _, p := range parts {
		switch v := p.(type) {
		case Step:
			out = append(out, v)
		case []Step:
			out = append(out, v...)
		}
	}
	return out
}
