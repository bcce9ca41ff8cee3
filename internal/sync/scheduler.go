package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rajlabs/tallybridge/internal/backend"
	"github.com/rajlabs/tallybridge/internal/record"
	"github.com/rajlabs/tallybridge/internal/snapshot"
	"github.com/rajlabs/tallybridge/internal/tally"
)

// ErrAlreadyRunning is returned by Start when the loop is already Running.
var ErrAlreadyRunning = errors.New("sync: already running")

// Fetcher produces the current record set for one company.
type Fetcher func(ctx context.Context) ([]record.Record, error)

// Enricher transforms records before detection, e.g. geocoding. It must
// not fail the pass: records it cannot enrich pass through untouched.
type Enricher func(ctx context.Context, records []record.Record) []record.Record

// Events receives notifications about completed work. Implemented by the
// dashboard handler; a nil Events is valid and drops everything.
type Events interface {
	// PassCompleted fires after every pass attempt, failed ones included.
	PassCompleted(run snapshot.Run)
	// PollCompleted fires after every poller tick that had pending items.
	PollCompleted(processed, failed int)
}

// nopEvents is the default sink.
type nopEvents struct{}

func (nopEvents) PassCompleted(snapshot.Run) {}
func (nopEvents) PollCompleted(int, int)     {}

// SchedulerConfig wires a Scheduler.
type SchedulerConfig struct {
	// Fetch produces the raw records (required).
	Fetch Fetcher
	// Groups restricts records to these parent groups (empty = all).
	Groups []string
	// Enrich optionally geocodes records before detection.
	Enrich Enricher
	// Uploader pushes the delta to the backend (required).
	Uploader *Uploader
	// Store persists fingerprints and run history (required).
	Store *snapshot.Store
	// Interval between passes. Defaults to 5 minutes.
	Interval time.Duration
	// Events receives pass notifications (optional).
	Events Events
	// Logger defaults to a stderr logger.
	Logger *log.Logger
}

// Scheduler runs the fetch→detect→upload pass on a fixed interval.
//
// Lifecycle is Stopped→Running→Stopped: Start launches the loop (first pass
// fires immediately), Stop cancels it and waits for the in-flight pass to
// finish. Passes are strictly sequential; a pass failure is recorded in
// stats and the loop keeps ticking.
type Scheduler struct {
	cfg      SchedulerConfig
	interval atomic.Int64 // nanoseconds, mutable at runtime
	logger   *log.Logger
	events   Events

	mu      sync.Mutex // guards running/cancel
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	passMu sync.Mutex // one pass at a time, shared by loop and RunOnce

	statsMu sync.Mutex
	stats   Stats
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[autosync] ", log.LstdFlags)
	}
	if cfg.Events == nil {
		cfg.Events = nopEvents{}
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}

	s := &Scheduler{
		cfg:    cfg,
		logger: cfg.Logger,
		events: cfg.Events,
	}
	s.interval.Store(int64(cfg.Interval))
	return s
}

// Start transitions Stopped→Running. The first pass executes immediately.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.running = true

	s.wg.Add(1)
	go s.loop(ctx)

	s.logger.Printf("Auto-sync started (interval %s)", s.Interval())
	return nil
}

// Stop transitions Running→Stopped. Blocks until the in-flight pass (if
// any) finishes; cancellation propagates into its network calls, so
// shutdown latency is bounded by call timeouts, not the interval.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Printf("Auto-sync stopped")
}

// Running reports whether the loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Interval returns the current tick interval.
func (s *Scheduler) Interval() time.Duration {
	return time.Duration(s.interval.Load())
}

// SetInterval changes the tick interval. Takes effect after the current
// sleep; used by config live-reload.
func (s *Scheduler) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	s.interval.Store(int64(d))
}

// Stats returns a copy of the latest pass outcome.
func (s *Scheduler) Stats() Stats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.stats
}

// loop is the periodic pass driver. Each tick runs one pass; errors are
// recorded and never kill the loop.
func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	for {
		if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.Printf("Sync pass failed: %v", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.Interval()):
		}
	}
}

// RunOnce executes one full sync pass: fetch, filter, enrich, detect,
// upload the delta, and — only on success — replace the snapshot. The run
// outcome is recorded in the store and in Stats either way.
func (s *Scheduler) RunOnce(ctx context.Context) (snapshot.Run, error) {
	s.passMu.Lock()
	defer s.passMu.Unlock()

	run := snapshot.Run{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
	}

	err := s.pass(ctx, &run)
	run.FinishedAt = time.Now()
	if err != nil {
		run.Error = err.Error()
	}

	if recErr := s.cfg.Store.RecordRun(ctx, run); recErr != nil {
		s.logger.Printf("Warning: failed to record run: %v", recErr)
	}
	s.recordStats(run, err)
	s.events.PassCompleted(run)

	return run, err
}

// pass is the body of one sync cycle.
func (s *Scheduler) pass(ctx context.Context, run *snapshot.Run) error {
	records, err := s.cfg.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("fetch failed: %w", err)
	}

	records = record.FilterByParents(records, s.cfg.Groups)
	if s.cfg.Enrich != nil {
		records = s.cfg.Enrich(ctx, records)
	}

	previous, err := s.cfg.Store.Fingerprints(ctx)
	if err != nil {
		return fmt.Errorf("failed to load snapshot: %w", err)
	}

	delta := Detect(records, previous, s.logger)
	run.New = len(delta.New)
	run.Changed = len(delta.Changed)
	run.Unchanged = delta.Unchanged

	if delta.Empty() {
		s.logger.Printf("No changes (%d records unchanged)", delta.Unchanged)
		return nil
	}

	// Upload order: new records first, then changed.
	upload := make([]record.Record, 0, len(delta.New)+len(delta.Changed))
	upload = append(upload, delta.New...)
	upload = append(upload, delta.Changed...)

	summary, err := s.cfg.Uploader.Upload(ctx, upload)
	if err != nil {
		return err
	}
	run.Uploaded = summary.New + summary.Updated
	run.Failed = summary.Failed

	// The snapshot is replaced only after the whole upload succeeded, so a
	// failed pass retries the identical delta next tick.
	if err := s.cfg.Store.ReplaceFingerprints(ctx, delta.Fingerprints); err != nil {
		return fmt.Errorf("failed to persist snapshot: %w", err)
	}

	s.logger.Printf("Pass complete: %d new, %d changed, %d unchanged, uploaded=%d failed=%d",
		run.New, run.Changed, run.Unchanged, run.Uploaded, run.Failed)
	return nil
}

// recordStats folds a finished run into the latest-stats snapshot.
func (s *Scheduler) recordStats(run snapshot.Run, err error) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()

	s.stats.Passes++
	s.stats.LastRun = run.FinishedAt
	s.stats.New = run.New
	s.stats.Changed = run.Changed
	s.stats.Unchanged = run.Unchanged
	s.stats.Uploaded = run.Uploaded
	s.stats.Failed = run.Failed
	s.stats.LastError = run.Error
	s.stats.NeedsCredentials = errors.Is(err, tally.ErrAuth) ||
		errors.Is(err, backend.ErrUnauthorized)
}
