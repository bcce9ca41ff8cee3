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

	"github.com/rajlabs/tallybridge/internal/backend"
	"github.com/rajlabs/tallybridge/internal/tally"
)

// Queue is the slice of the backend client the poller needs.
type Queue interface {
	FetchPending(ctx context.Context, companyID string, limit int) ([]backend.PendingItem, error)
	CompleteItem(ctx context.Context, itemID string, completion backend.Completion) error
}

// Applier writes one inbound change into the source system.
type Applier interface {
	ReplaceAddress(ctx context.Context, guid, newAddress string) tally.UpdateResult
}

// PollerConfig wires a Poller.
type PollerConfig struct {
	// Queue fetches and acknowledges pending items (required).
	Queue Queue
	// Applier writes the updates into Tally (required).
	Applier Applier
	// CompanyID scopes the pending queue.
	CompanyID string
	// Limit caps items fetched per tick. Defaults to 50.
	Limit int
	// Interval between polls. Defaults to 2 minutes.
	Interval time.Duration
	// Events receives poll notifications (optional).
	Events Events
	// Logger defaults to a stderr logger.
	Logger *log.Logger
}

// Poller drains the backend's pending-update queue and applies each item to
// Tally. Items are processed one at a time, and strictly isolated: a failed
// item is reported back as a failed completion and the tick moves on.
type Poller struct {
	cfg      PollerConfig
	interval atomic.Int64
	logger   *log.Logger
	events   Events

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewPoller creates a stopped poller.
func NewPoller(cfg PollerConfig) *Poller {
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[poller] ", log.LstdFlags)
	}
	if cfg.Events == nil {
		cfg.Events = nopEvents{}
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Minute
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 50
	}

	p := &Poller{
		cfg:    cfg,
		logger: cfg.Logger,
		events: cfg.Events,
	}
	p.interval.Store(int64(cfg.Interval))
	return p
}

// Start launches the poll loop. The first poll fires immediately.
func (p *Poller) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.running = true

	p.wg.Add(1)
	go p.loop(ctx)

	p.logger.Printf("Update poller started (interval %s)", p.Interval())
	return nil
}

// Stop cancels the loop and waits for the in-flight poll to finish.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.cancel()
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Printf("Update poller stopped")
}

// Running reports whether the loop is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Interval returns the current poll interval.
func (p *Poller) Interval() time.Duration {
	return time.Duration(p.interval.Load())
}

// SetInterval changes the poll interval. Takes effect after the current
// sleep; used by config live-reload.
func (p *Poller) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	p.interval.Store(int64(d))
}

func (p *Poller) loop(ctx context.Context) {
	defer p.wg.Done()

	for {
		if err := p.PollOnce(ctx); err != nil && ctx.Err() == nil {
			p.logger.Printf("Poll failed: %v", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(p.Interval()):
		}
	}
}

// PollOnce fetches pending items and processes each one. A fetch failure
// aborts the tick; per-item failures do not.
func (p *Poller) PollOnce(ctx context.Context) error {
	items, err := p.cfg.Queue.FetchPending(ctx, p.cfg.CompanyID, p.cfg.Limit)
	if err != nil {
		if errors.Is(err, backend.ErrUnauthorized) {
			return fmt.Errorf("pending queue rejected token: %w", err)
		}
		return fmt.Errorf("failed to fetch pending updates: %w", err)
	}
	if len(items) == 0 {
		return nil
	}

	p.logger.Printf("Processing %d pending updates", len(items))

	processed, failed := 0, 0
	for i := range items {
		if ctx.Err() != nil {
			break
		}
		if p.processItem(ctx, &items[i]) {
			processed++
		} else {
			failed++
		}
	}

	p.logger.Printf("Poll complete: %d applied, %d failed", processed, failed)
	p.events.PollCompleted(processed, failed)
	return nil
}

// processItem applies one pending item and reports its completion back to
// the backend. Returns whether the item was applied successfully. The
// completion call is best-effort: if it fails the backend will re-deliver
// the item next tick, and the re-apply is idempotent.
func (p *Poller) processItem(ctx context.Context, item *backend.PendingItem) bool {
	result := p.apply(ctx, item)

	completion := backend.Completion{Success: result.Success}
	if result.Success {
		if result.RawResponse != "" {
			resp := result.RawResponse
			completion.TallyResponse = &resp
		}
	} else {
		msg := result.Err
		completion.Error = &msg
		p.logger.Printf("Update %s (%s) failed: %s", item.ID, item.ClientName, msg)
	}

	if err := p.cfg.Queue.CompleteItem(ctx, item.ID, completion); err != nil {
		p.logger.Printf("Warning: failed to report completion for %s: %v", item.ID, err)
	}
	return result.Success
}

// apply dispatches one item on its operation type.
func (p *Poller) apply(ctx context.Context, item *backend.PendingItem) tally.UpdateResult {
	switch item.Operation {
	case "update_address":
		address, ok := item.NewData["address"]
		if !ok || address == "" {
			return tally.UpdateResult{Err: "update_address item has no address in new_data"}
		}
		if item.TallyGUID == "" {
			return tally.UpdateResult{Err: "update_address item has no tally_guid"}
		}
		return p.cfg.Applier.ReplaceAddress(ctx, item.TallyGUID, address)
	default:
		return tally.UpdateResult{Err: fmt.Sprintf("unsupported operation %q", item.Operation)}
	}
}
