package confirm

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"mindrian/internal/event"
	"mindrian/internal/session"
	"mindrian/pkg/logger"
)

const (
	defaultTimeout    = 5 * time.Minute
	defaultMaxPending = 100
)

// Sessions is the part of the session registry the coordinator uses.
type Sessions interface {
	Get(sessionID string) (session.Session, error)
	Queue(sessionID string) (*session.Queue, error)
}

type pendingRequest struct {
	request *Request
	done    chan *Result
	timer   *time.Timer
}

// Config configures a Coordinator.
type Config struct {
	Timeout    time.Duration
	MaxPending int
	Notifier   Notifier
	Audit      AuditLog
}

// Coordinator owns the pending-confirmation registry.
type Coordinator struct {
	mu         sync.Mutex
	pending    map[string]*pendingRequest
	sessions   Sessions
	notifier   Notifier
	audit      AuditLog
	timeout    time.Duration
	maxPending int
	log        zerolog.Logger
	now        func() time.Time
}

// NewCoordinator creates a coordinator that raises pauses on sessions' queues.
func NewCoordinator(sessions Sessions, cfg *Config) *Coordinator {
	c := &Coordinator{
		pending:    make(map[string]*pendingRequest),
		sessions:   sessions,
		timeout:    defaultTimeout,
		maxPending: defaultMaxPending,
		log:        logger.Component("confirm"),
		now:        time.Now,
	}
	if cfg != nil {
		if cfg.Timeout > 0 {
			c.timeout = cfg.Timeout
		}
		if cfg.MaxPending > 0 {
			c.maxPending = cfg.MaxPending
		}
		c.notifier = cfg.Notifier
		c.audit = cfg.Audit
	}
	return c
}

// SetNotifier sets the notifier.
func (c *Coordinator) SetNotifier(n Notifier) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notifier = n
}

// Request registers a confirmation for toolCallID, raises RunPaused on the
// session queue and blocks until a decision, the timeout or ctx ends it.
// Approval also raises ToolStarted for the tool on the same queue.
func (c *Coordinator) Request(ctx context.Context, sessionID, toolCallID, toolName string, args json.RawMessage) (bool, error) {
	sess, err := c.sessions.Get(sessionID)
	if err != nil {
		return false, err
	}
	queue, err := c.sessions.Queue(sessionID)
	if err != nil {
		return false, err
	}
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}

	c.mu.Lock()
	if _, dup := c.pending[toolCallID]; dup {
		c.mu.Unlock()
		return false, ErrDuplicate
	}
	if len(c.pending) >= c.maxPending {
		c.mu.Unlock()
		return false, ErrMaxPending
	}
	now := c.now()
	req := &Request{
		ToolCallID: toolCallID,
		SessionID:  sessionID,
		RunID:      sess.ActiveRunID,
		ToolName:   toolName,
		ToolArgs:   args,
		CreatedAt:  now,
		ExpiresAt:  now.Add(c.timeout),
	}
	pr := &pendingRequest{request: req, done: make(chan *Result, 1)}
	pr.timer = time.AfterFunc(c.timeout, func() { c.finish(toolCallID, DecisionTimeout) })
	c.pending[toolCallID] = pr
	notifier, audit := c.notifier, c.audit
	c.mu.Unlock()

	call := event.ToolCall{ToolCallID: toolCallID, ToolName: toolName, ToolArgs: args}
	if !queue.Emit(event.RunPaused(req.RunID, call)) {
		c.discard(toolCallID)
		c.log.Warn().
			Str("session_id", sessionID).
			Str("tool_call_id", toolCallID).
			Msg("Pause not delivered, denying without waiting")
		return false, ErrPauseUndelivered
	}

	c.log.Info().
		Str("session_id", sessionID).
		Str("tool_call_id", toolCallID).
		Str("tool", toolName).
		Msg("Confirmation requested")

	if audit != nil {
		audit.LogRequest(req)
	}
	if notifier != nil {
		if err := notifier.NotifyRequest(req); err != nil {
			c.log.Warn().Err(err).Str("tool_call_id", toolCallID).Msg("Failed to send confirmation notification")
		}
	}

	select {
	case result := <-pr.done:
		if result.Approved {
			queue.Emit(event.ToolStarted(call))
		}
		return result.Approved, nil
	case <-ctx.Done():
		c.finish(toolCallID, DecisionCancelled)
		return false, ctx.Err()
	}
}

// Resolve applies a decision. It reports false when nothing is pending for
// the id, e.g. it already timed out or belongs to a finished run.
func (c *Coordinator) Resolve(toolCallID string, approved bool) bool {
	decision := DecisionDenied
	if approved {
		decision = DecisionApproved
	}
	if !c.finish(toolCallID, decision) {
		c.log.Warn().Str("tool_call_id", toolCallID).Bool("approved", approved).Msg("No pending confirmation for decision")
		return false
	}
	return true
}

// finish removes the pending entry and delivers the result. Only the first
// caller for an id wins.
func (c *Coordinator) finish(toolCallID string, decision Decision) bool {
	c.mu.Lock()
	pr, ok := c.pending[toolCallID]
	if !ok {
		c.mu.Unlock()
		return false
	}
	delete(c.pending, toolCallID)
	pr.timer.Stop()
	notifier, audit := c.notifier, c.audit
	c.mu.Unlock()

	result := &Result{
		Approved:  decision == DecisionApproved,
		Decision:  decision,
		DecidedAt: c.now(),
	}

	ev := c.log.Info()
	if decision == DecisionTimeout {
		ev = c.log.Warn()
	}
	ev.Str("tool_call_id", toolCallID).
		Str("tool", pr.request.ToolName).
		Str("decision", string(decision)).
		Msg("Confirmation resolved")

	if audit != nil {
		audit.LogDecision(pr.request, result)
	}
	if notifier != nil {
		if err := notifier.NotifyResolved(pr.request, result); err != nil {
			c.log.Warn().Err(err).Str("tool_call_id", toolCallID).Msg("Failed to send resolution notification")
		}
	}

	pr.done <- result
	return true
}

// discard drops a pending entry that no client was ever told about.
func (c *Coordinator) discard(toolCallID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if pr, ok := c.pending[toolCallID]; ok {
		pr.timer.Stop()
		delete(c.pending, toolCallID)
	}
}

// Pending returns outstanding confirmations, oldest first.
func (c *Coordinator) Pending() []Request {
	c.mu.Lock()
	out := make([]Request, 0, len(c.pending))
	for _, pr := range c.pending {
		out = append(out, *pr.request)
	}
	c.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// PendingCount returns the number of outstanding confirmations.
func (c *Coordinator) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Close denies everything still pending.
func (c *Coordinator) Close() {
	c.mu.Lock()
	ids := make([]string, 0, len(c.pending))
	for id := range c.pending {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	for _, id := range ids {
		c.finish(id, DecisionCancelled)
	}
}
