// Package retention periodically prunes finished runs, decided
// confirmations and expired transcripts from storage.
package retention

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"mindrian/pkg/logger"
)

const (
	DefaultSchedule = "@hourly"
	DefaultMaxAge   = 720 * time.Hour
)

// ErrAlreadyRunning is returned by Start on a started janitor.
var ErrAlreadyRunning = errors.New("retention: janitor already running")

// Store is the storage surface the janitor prunes. *storage.DB implements it.
type Store interface {
	PruneRuns(before time.Time) (int64, error)
	PruneConfirmations(before time.Time) (int64, error)
	KVCleanExpired() (int64, error)
}

// Config configures a Janitor.
type Config struct {
	// Schedule is a standard five-field cron expression or a descriptor.
	Schedule string
	// MaxAge is how long finished records are kept.
	MaxAge time.Duration
}

// Report describes one sweep.
type Report struct {
	StartedAt     time.Time     `json:"started_at"`
	Duration      time.Duration `json:"duration"`
	Cutoff        time.Time     `json:"cutoff"`
	Runs          int64         `json:"runs"`
	Confirmations int64         `json:"confirmations"`
	Transcripts   int64         `json:"transcripts"`
	Error         string        `json:"error,omitempty"`
}

// Janitor runs sweeps on a cron schedule.
type Janitor struct {
	store    Store
	schedule string
	maxAge   time.Duration
	cron     *cron.Cron
	entry    cron.EntryID

	mu      sync.Mutex
	running bool
	last    *Report

	sweepMu sync.Mutex
	now     func() time.Time
	log     zerolog.Logger
}

// New validates cfg and creates a stopped Janitor.
func New(store Store, cfg Config) (*Janitor, error) {
	if store == nil {
		return nil, errors.New("retention: store is required")
	}
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
		return nil, fmt.Errorf("retention: invalid schedule %q: %w", cfg.Schedule, err)
	}

	return &Janitor{
		store:    store,
		schedule: cfg.Schedule,
		maxAge:   cfg.MaxAge,
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		now:      time.Now,
		log:      logger.Component("retention"),
	}, nil
}

// Start schedules the sweep.
func (j *Janitor) Start() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.running {
		return ErrAlreadyRunning
	}

	id, err := j.cron.AddFunc(j.schedule, func() {
		if _, err := j.Sweep(context.Background()); err != nil {
			j.log.Warn().Err(err).Msg("Retention sweep failed")
		}
	})
	if err != nil {
		return fmt.Errorf("retention: schedule sweep: %w", err)
	}
	j.entry = id
	j.cron.Start()
	j.running = true

	j.log.Info().Str("schedule", j.schedule).Dur("max_age", j.maxAge).Msg("Retention janitor started")
	return nil
}

// Stop unschedules the sweep. The returned context is done once a sweep in
// progress has finished.
func (j *Janitor) Stop() context.Context {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.running {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	j.running = false
	j.cron.Remove(j.entry)
	j.log.Info().Msg("Retention janitor stopped")
	return j.cron.Stop()
}

// Sweep prunes once. Every step runs even if an earlier one fails; the
// first error is returned and recorded in the report.
func (j *Janitor) Sweep(ctx context.Context) (Report, error) {
	j.sweepMu.Lock()
	defer j.sweepMu.Unlock()

	start := j.now()
	rep := Report{StartedAt: start, Cutoff: start.Add(-j.maxAge)}

	var errs []error
	if err := ctx.Err(); err != nil {
		return rep, err
	}
	n, err := j.store.PruneRuns(rep.Cutoff)
	if err != nil {
		errs = append(errs, fmt.Errorf("prune runs: %w", err))
	}
	rep.Runs = n

	n, err = j.store.PruneConfirmations(rep.Cutoff)
	if err != nil {
		errs = append(errs, fmt.Errorf("prune confirmations: %w", err))
	}
	rep.Confirmations = n

	n, err = j.store.KVCleanExpired()
	if err != nil {
		errs = append(errs, fmt.Errorf("clean transcripts: %w", err))
	}
	rep.Transcripts = n

	rep.Duration = j.now().Sub(start)
	err = errors.Join(errs...)
	if err != nil {
		rep.Error = err.Error()
	}

	j.mu.Lock()
	j.last = &rep
	j.mu.Unlock()

	j.log.Info().
		Int64("runs", rep.Runs).
		Int64("confirmations", rep.Confirmations).
		Int64("transcripts", rep.Transcripts).
		Dur("duration", rep.Duration).
		Msg("Retention sweep finished")
	return rep, err
}

// Last returns the most recent sweep report.
func (j *Janitor) Last() (Report, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.last == nil {
		return Report{}, false
	}
	return *j.last, true
}

// Next returns the next scheduled sweep time, or zero when stopped.
func (j *Janitor) Next() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.running {
		return time.Time{}
	}
	return j.cron.Entry(j.entry).Next
}

// Schedule returns the cron expression.
func (j *Janitor) Schedule() string { return j.schedule }
