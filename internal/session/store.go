// Package session holds per-session run state: the backend resume token,
// the active run, delegate exchange history and the out-of-band event queue.
//
// A session processes at most one active run at a time. The store does not
// serialize overlapping runs for the same session; callers must.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"mindrian/internal/storage"
	"mindrian/pkg/logger"
)

// ErrNotFound is returned for operations on an unknown session.
var ErrNotFound = errors.New("session not found")

// Exchange is one completed delegate turn.
type Exchange struct {
	DelegateOutput string   `json:"delegate_output"`
	UserInput      string   `json:"user_input"`
	ResearchNotes  []string `json:"research_notes"`
}

// Session is a snapshot of session state.
type Session struct {
	ID          string                `json:"session_id"`
	UserID      string                `json:"user_id"`
	WorkspaceID string                `json:"workspace_id"`
	ResumeToken string                `json:"resume_token,omitempty"`
	ActiveRunID string                `json:"active_run_id,omitempty"`
	CreatedAt   time.Time             `json:"created_at"`
	Exchanges   map[string][]Exchange `json:"exchanges,omitempty"`
}

// Persister is the durable backing for the store. *storage.DB implements it.
type Persister interface {
	UpsertSession(id, userID, workspaceID string) error
	GetSession(id string) (*storage.SessionRecord, error)
	SetSessionResumeToken(id, token string) error
	SetSessionActiveRun(id, runID string) error
	AppendExchange(rec storage.ExchangeRecord) error
	ListExchanges(sessionID string) ([]storage.ExchangeRecord, error)
	DeleteSession(id string) error
}

type entry struct {
	sess   Session
	queue  *Queue
	tracks map[string][]Exchange
}

// Store is the session registry.
type Store struct {
	mu        sync.Mutex
	sessions  map[string]*entry
	queueSize int
	persister Persister
	log       zerolog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithPersister writes session state through to p and rehydrates from it.
func WithPersister(p Persister) Option {
	return func(s *Store) { s.persister = p }
}

// WithQueueSize sets the per-session queue capacity.
func WithQueueSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.queueSize = n
		}
	}
}

// NewStore creates an empty registry.
func NewStore(opts ...Option) *Store {
	s := &Store{
		sessions:  make(map[string]*entry),
		queueSize: DefaultQueueSize,
		log:       logger.Component("session"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetOrCreate returns the session, creating it on first use. Re-entry
// discards any events left in the queue by an earlier run.
func (s *Store) GetOrCreate(sessionID, userID, workspaceID string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[sessionID]
	if ok {
		if n := e.queue.Drain(); n > 0 {
			s.log.Debug().Str("session_id", sessionID).Int("dropped", n).Msg("Drained stale queued events")
		}
		if userID != "" {
			e.sess.UserID = userID
		}
		if workspaceID != "" {
			e.sess.WorkspaceID = workspaceID
		}
	} else {
		e = &entry{
			sess: Session{
				ID:          sessionID,
				UserID:      userID,
				WorkspaceID: workspaceID,
				CreatedAt:   time.Now(),
			},
			queue:  newQueue(sessionID, s.queueSize, s.log),
			tracks: make(map[string][]Exchange),
		}
		if err := s.rehydrate(e); err != nil {
			return Session{}, err
		}
		s.sessions[sessionID] = e
		s.log.Info().Str("session_id", sessionID).Msg("Session created")
	}

	if s.persister != nil {
		if err := s.persister.UpsertSession(sessionID, e.sess.UserID, e.sess.WorkspaceID); err != nil {
			return Session{}, fmt.Errorf("persist session: %w", err)
		}
	}
	return e.snapshot(), nil
}

// rehydrate restores a session known to the persister from a previous process.
func (s *Store) rehydrate(e *entry) error {
	if s.persister == nil {
		return nil
	}
	rec, err := s.persister.GetSession(e.sess.ID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	e.sess.ResumeToken = rec.ResumeToken
	e.sess.CreatedAt = rec.CreatedAt
	if e.sess.UserID == "" {
		e.sess.UserID = rec.UserID
	}
	if e.sess.WorkspaceID == "" {
		e.sess.WorkspaceID = rec.WorkspaceID
	}

	exchanges, err := s.persister.ListExchanges(e.sess.ID)
	if err != nil {
		return fmt.Errorf("load exchanges: %w", err)
	}
	for _, x := range exchanges {
		e.tracks[x.DelegateKind] = append(e.tracks[x.DelegateKind], Exchange{
			DelegateOutput: x.DelegateOutput,
			UserInput:      x.UserInput,
			ResearchNotes:  x.ResearchNotes,
		})
	}
	s.log.Info().Str("session_id", e.sess.ID).Int("exchanges", len(exchanges)).Msg("Session rehydrated")
	return nil
}

// Get returns a snapshot of the session.
func (s *Store) Get(sessionID string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[sessionID]
	if !ok {
		return Session{}, ErrNotFound
	}
	return e.snapshot(), nil
}

// SetResumeToken records the token the backend returned for the session.
func (s *Store) SetResumeToken(sessionID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	e.sess.ResumeToken = token
	if s.persister != nil {
		if err := s.persister.SetSessionResumeToken(sessionID, token); err != nil {
			return fmt.Errorf("persist resume token: %w", err)
		}
	}
	return nil
}

// SetActiveRun stamps the session with the run currently streaming.
func (s *Store) SetActiveRun(sessionID, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	e.sess.ActiveRunID = runID
	s.persistActiveRun(sessionID, runID)
	return nil
}

// ClearActiveRun clears the active run if it is still runID.
func (s *Store) ClearActiveRun(sessionID, runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[sessionID]
	if !ok || e.sess.ActiveRunID != runID {
		return
	}
	e.sess.ActiveRunID = ""
	s.persistActiveRun(sessionID, "")
}

func (s *Store) persistActiveRun(sessionID, runID string) {
	if s.persister == nil {
		return
	}
	if err := s.persister.SetSessionActiveRun(sessionID, runID); err != nil {
		s.log.Warn().Err(err).Str("session_id", sessionID).Msg("Failed to persist active run")
	}
}

// Queue returns the session's out-of-band event queue.
func (s *Store) Queue(sessionID string) (*Queue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return e.queue, nil
}

// DrainQueue discards queued events for the session. Unknown sessions are a no-op.
func (s *Store) DrainQueue(sessionID string) int {
	s.mu.Lock()
	e, ok := s.sessions[sessionID]
	s.mu.Unlock()
	if !ok {
		return 0
	}
	return e.queue.Drain()
}

// AppendExchange extends the history of the (session, kind) track.
func (s *Store) AppendExchange(sessionID, kind string, x Exchange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	if x.ResearchNotes == nil {
		x.ResearchNotes = []string{}
	}
	e.tracks[kind] = append(e.tracks[kind], x)

	if s.persister != nil {
		err := s.persister.AppendExchange(storage.ExchangeRecord{
			SessionID:      sessionID,
			DelegateKind:   kind,
			DelegateOutput: x.DelegateOutput,
			UserInput:      x.UserInput,
			ResearchNotes:  x.ResearchNotes,
		})
		if err != nil {
			s.log.Warn().Err(err).Str("session_id", sessionID).Str("delegate", kind).Msg("Failed to persist exchange")
		}
	}
	return nil
}

// Exchanges returns a copy of the (session, kind) track.
func (s *Store) Exchanges(sessionID, kind string) []Exchange {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	return cloneTrack(e.tracks[kind])
}

// Context returns the identifiers tool calls run under.
func (s *Store) Context(sessionID string) (userID, workspaceID string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[sessionID]
	if !ok {
		return "", "", false
	}
	return e.sess.UserID, e.sess.WorkspaceID, true
}

// Destroy tears down the session: queue, history and persisted rows.
func (s *Store) Destroy(sessionID string) error {
	s.mu.Lock()
	e, ok := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	if ok {
		e.queue.Drain()
	}

	if s.persister != nil {
		err := s.persister.DeleteSession(sessionID)
		if err == nil {
			ok = true
		} else if !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("delete session: %w", err)
		}
	}
	if !ok {
		return ErrNotFound
	}
	s.log.Info().Str("session_id", sessionID).Msg("Session destroyed")
	return nil
}

// Len returns the number of sessions held in memory.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (e *entry) snapshot() Session {
	out := e.sess
	if len(e.tracks) > 0 {
		out.Exchanges = make(map[string][]Exchange, len(e.tracks))
		for k, v := range e.tracks {
			out.Exchanges[k] = cloneTrack(v)
		}
	}
	return out
}

func cloneTrack(track []Exchange) []Exchange {
	if track == nil {
		return nil
	}
	out := make([]Exchange, len(track))
	for i, x := range track {
		notes := make([]string, len(x.ResearchNotes))
		copy(notes, x.ResearchNotes)
		out[i] = x
		out[i].ResearchNotes = notes
	}
	return out
}
