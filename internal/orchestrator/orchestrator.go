// Package orchestrator drives runs against the reasoning backend. It merges
// the backend's message stream with the session's out-of-band queue into
// one ordered event stream and routes confirmation decisions back to the
// coordinator.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"mindrian/internal/backend"
	"mindrian/internal/confirm"
	"mindrian/internal/event"
	"mindrian/internal/history"
	"mindrian/internal/session"
	"mindrian/internal/storage"
	"mindrian/pkg/logger"
)

// Errors.
var (
	ErrMissingSession = errors.New("session_id is required")
	ErrMissingMessage = errors.New("message is required")
)

const (
	eventBuffer = 64
	// terminalGrace bounds how long a cancelled run waits for a stalled
	// consumer to take its terminal event.
	terminalGrace = 2 * time.Second
)

// RunRecorder persists run lifecycle records. *storage.DB satisfies it.
type RunRecorder interface {
	StartRun(id, sessionID string) error
	FinishRun(id, status, errMsg string) error
}

// Config wires an Orchestrator.
type Config struct {
	Sessions    *session.Store
	Backend     backend.Backend
	Coordinator *confirm.Coordinator
	History     *history.Injector
	Confirmable *confirm.ToolSet
	Runs        RunRecorder
}

// Orchestrator is the run entry point.
type Orchestrator struct {
	sessions    *session.Store
	backend     backend.Backend
	coord       *confirm.Coordinator
	history     *history.Injector
	confirmable *confirm.ToolSet
	runs        RunRecorder

	mu     sync.Mutex
	active map[string]*activeRun

	newID         func() string
	terminalGrace time.Duration
	log           zerolog.Logger
}

type activeRun struct {
	sessionID string
	cancel    context.CancelFunc
	done      chan struct{}
}

// New creates an Orchestrator. Sessions, Backend and Coordinator are required.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Sessions == nil || cfg.Backend == nil || cfg.Coordinator == nil {
		return nil, errors.New("orchestrator: sessions, backend and coordinator are required")
	}
	if cfg.Confirmable == nil {
		cfg.Confirmable = confirm.NewToolSet()
	}
	return &Orchestrator{
		sessions:    cfg.Sessions,
		backend:     cfg.Backend,
		coord:       cfg.Coordinator,
		history:     cfg.History,
		confirmable: cfg.Confirmable,
		runs:        cfg.Runs,
		active:      make(map[string]*activeRun),
		newID:         uuid.NewString,
		terminalGrace: terminalGrace,
		log:           logger.Component("orchestrator"),
	}, nil
}

// StartRequest is the input of StartRun.
type StartRequest struct {
	Message     string
	SessionID   string
	UserID      string
	WorkspaceID string
}

// Decision is a human verdict on one paused tool call.
type Decision struct {
	ToolCallID string
	Approved   bool
}

// StartRun begins a run and returns its id and event stream. The stream
// ends with exactly one terminal event and is then closed; callers must
// drain it. Cancelling ctx cancels the run.
func (o *Orchestrator) StartRun(ctx context.Context, req StartRequest) (string, <-chan event.Event, error) {
	if req.SessionID == "" {
		return "", nil, ErrMissingSession
	}
	if req.Message == "" {
		return "", nil, ErrMissingMessage
	}

	sess, err := o.sessions.GetOrCreate(req.SessionID, req.UserID, req.WorkspaceID)
	if err != nil {
		return "", nil, fmt.Errorf("open session: %w", err)
	}
	queue, err := o.sessions.Queue(req.SessionID)
	if err != nil {
		return "", nil, fmt.Errorf("open session queue: %w", err)
	}

	runID := o.newID()
	if err := o.sessions.SetActiveRun(req.SessionID, runID); err != nil {
		return "", nil, fmt.Errorf("mark active run: %w", err)
	}
	if o.runs != nil {
		if err := o.runs.StartRun(runID, req.SessionID); err != nil {
			o.log.Warn().Err(err).Str("run_id", runID).Msg("Failed to record run start")
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	run := &activeRun{sessionID: req.SessionID, cancel: cancel, done: make(chan struct{})}
	o.mu.Lock()
	o.active[runID] = run
	o.mu.Unlock()

	out := make(chan event.Event, eventBuffer)
	opts := backend.Options{
		SessionID:   sess.ID,
		ResumeToken: sess.ResumeToken,
		UserID:      sess.UserID,
		WorkspaceID: sess.WorkspaceID,
		Hooks:       o.hooks(req.SessionID),
	}

	o.log.Info().
		Str("session_id", req.SessionID).
		Str("run_id", runID).
		Bool("resume", sess.ResumeToken != "").
		Msg("Starting run")

	go o.execute(runCtx, runID, run, opts, req.Message, queue, out)
	return runID, out, nil
}

// hooks gates confirmable tools and injects delegate history.
func (o *Orchestrator) hooks(sessionID string) []backend.HookMatcher {
	gate := o.coord.Gate(sessionID)
	confirmable := o.confirmable
	matchers := []backend.HookMatcher{{
		Tool: "*",
		Hooks: []backend.PreToolUseHook{func(ctx context.Context, call backend.ToolCall) (backend.HookResult, error) {
			if !confirmable.Contains(call.Name) {
				return backend.HookResult{Decision: backend.Allow}, nil
			}
			return gate(ctx, call)
		}},
	}}
	if o.history != nil {
		matchers = append(matchers, backend.HookMatcher{
			Tool:  backend.DelegateTool,
			Hooks: []backend.PreToolUseHook{o.history.Hook(sessionID)},
		})
	}
	return matchers
}

// SubmitDecisions resolves paused tool calls and returns the acknowledgement
// event. Decisions for ids that are no longer pending are ignored.
func (o *Orchestrator) SubmitDecisions(runID, sessionID string, decisions []Decision) event.Event {
	for _, d := range decisions {
		if !o.coord.Resolve(d.ToolCallID, d.Approved) {
			continue
		}
		o.log.Info().
			Str("run_id", runID).
			Str("session_id", sessionID).
			Str("tool_call_id", d.ToolCallID).
			Bool("approved", d.Approved).
			Msg("Applied tool decision")
	}
	return event.RunContinued()
}

// CancelRun stops the run if it is still active and discards the session's
// queued events unless a newer run owns the session. It is idempotent and
// reports whether a run was stopped.
func (o *Orchestrator) CancelRun(runID, sessionID string) bool {
	o.mu.Lock()
	run, ok := o.active[runID]
	o.mu.Unlock()

	if ok {
		run.cancel()
		<-run.done
		sessionID = run.sessionID
	}
	if sessionID != "" {
		if sess, err := o.sessions.Get(sessionID); err == nil && (sess.ActiveRunID == "" || sess.ActiveRunID == runID) {
			o.sessions.DrainQueue(sessionID)
		}
	}
	o.log.Info().Str("run_id", runID).Str("session_id", sessionID).Bool("was_active", ok).Msg("Run cancelled")
	return ok
}

// IsActive reports whether runID is still in flight.
func (o *Orchestrator) IsActive(runID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.active[runID]
	return ok
}

// ActiveRuns returns the number of runs in flight.
func (o *Orchestrator) ActiveRuns() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.active)
}

// Shutdown cancels every active run and waits for them to finish.
func (o *Orchestrator) Shutdown() {
	o.mu.Lock()
	runs := make([]*activeRun, 0, len(o.active))
	for _, r := range o.active {
		runs = append(runs, r)
	}
	o.mu.Unlock()

	for _, r := range runs {
		r.cancel()
		<-r.done
	}
}

func (o *Orchestrator) execute(ctx context.Context, runID string, run *activeRun, opts backend.Options, prompt string, queue *session.Queue, out chan<- event.Event) {
	var terminal *event.Event
	defer func() {
		if rec := recover(); rec != nil {
			o.log.Error().Interface("panic", rec).Str("run_id", runID).Msg("Run panicked")
			if terminal == nil {
				terminal = o.emitTerminal(ctx, out, event.RunError(fmt.Sprintf("internal error: %v", rec)))
			}
		}
		o.finish(runID, run, terminal)
		close(out)
	}()

	log := logger.ForRun(o.log, runID, opts.SessionID)

	conn, err := o.backend.Connect(ctx, opts)
	if err != nil {
		terminal = o.fail(ctx, out, fmt.Errorf("connect: %w", err))
		return
	}
	defer func() {
		if err := conn.Disconnect(); err != nil {
			log.Warn().Err(err).Msg("Backend disconnect failed")
		}
	}()

	if err := conn.Query(ctx, prompt); err != nil {
		terminal = o.fail(ctx, out, fmt.Errorf("query: %w", err))
		return
	}

	tr := NewTranslator(runID, opts.SessionID, o.sessions, o.historyCapturer(), o.confirmable, log)
	terminal = o.merge(ctx, conn, queue, tr, out)
}

func (o *Orchestrator) historyCapturer() Capturer {
	if o.history == nil {
		return nil
	}
	return o.history
}

// merge races the backend stream against the session queue. Queued events
// are yielded as soon as they arrive; before each backend message, anything
// already queued is flushed so gated ToolStarted precedes the tool's result.
// Every send also watches ctx, so cancellation stops a run whose consumer
// has stalled.
func (o *Orchestrator) merge(ctx context.Context, conn backend.Conn, queue *session.Queue, tr *Translator, out chan<- event.Event) *event.Event {
	msgs := conn.Messages()
	textOpen := false

	flush := func() bool {
		for {
			select {
			case e := <-queue.C():
				if !emit(ctx, out, e) {
					return false
				}
			default:
				return true
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			return o.cancelled(ctx, out)

		case e := <-queue.C():
			if !emit(ctx, out, e) {
				return o.cancelled(ctx, out)
			}

		case m, ok := <-msgs:
			if !ok {
				if ctx.Err() != nil || !flush() {
					return o.cancelled(ctx, out)
				}
				err := conn.Err()
				if err == nil {
					err = errors.New("backend stream ended without a result")
				}
				return o.fail(ctx, out, err)
			}

			if !flush() {
				return o.cancelled(ctx, out)
			}
			var events []event.Event
			events, textOpen = tr.Translate(m, textOpen)
			for _, e := range events {
				if e.Kind.Terminal() {
					if !flush() {
						return o.cancelled(ctx, out)
					}
					return o.emitTerminal(ctx, out, e)
				}
				if !emit(ctx, out, e) {
					return o.cancelled(ctx, out)
				}
			}
		}
	}
}

// emit sends e unless ctx ends first.
func emit(ctx context.Context, out chan<- event.Event, e event.Event) bool {
	select {
	case out <- e:
		return true
	case <-ctx.Done():
		return false
	}
}

// emitTerminal delivers e and returns it as the run's outcome. Once ctx has
// ended the consumer gets at most terminalGrace to take it.
func (o *Orchestrator) emitTerminal(ctx context.Context, out chan<- event.Event, e event.Event) *event.Event {
	select {
	case out <- e:
		return &e
	case <-ctx.Done():
	}

	t := time.NewTimer(o.terminalGrace)
	defer t.Stop()
	select {
	case out <- e:
	case <-t.C:
		o.log.Warn().Str("event", string(e.Kind)).Msg("Consumer stalled, terminal event dropped")
	}
	return &e
}

func (o *Orchestrator) cancelled(ctx context.Context, out chan<- event.Event) *event.Event {
	return o.emitTerminal(ctx, out, event.RunCancelled())
}

// fail emits RunError, or RunCancelled when the failure stems from ctx.
func (o *Orchestrator) fail(ctx context.Context, out chan<- event.Event, err error) *event.Event {
	if ctx.Err() != nil {
		return o.cancelled(ctx, out)
	}
	o.log.Error().Err(err).Msg("Run failed")
	return o.emitTerminal(ctx, out, event.RunError(err.Error()))
}

func (o *Orchestrator) finish(runID string, run *activeRun, terminal *event.Event) {
	o.mu.Lock()
	delete(o.active, runID)
	o.mu.Unlock()
	run.cancel()

	o.sessions.ClearActiveRun(run.sessionID, runID)

	status, errMsg := storage.RunError, "run ended without a terminal event"
	if terminal != nil {
		switch terminal.Kind {
		case event.KindRunCompleted:
			status, errMsg = storage.RunCompleted, ""
		case event.KindRunCancelled:
			status, errMsg = storage.RunCancelled, ""
		case event.KindRunError:
			if d, ok := terminal.Data.(event.RunErrorData); ok {
				errMsg = d.Content
			}
		}
	}
	if o.runs != nil {
		if err := o.runs.FinishRun(runID, status, errMsg); err != nil {
			o.log.Warn().Err(err).Str("run_id", runID).Msg("Failed to record run end")
		}
	}
	o.log.Info().Str("run_id", runID).Str("status", status).Msg("Run finished")
	close(run.done)
}
