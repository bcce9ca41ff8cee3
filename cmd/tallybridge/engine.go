package main

import (
	"context"
	"fmt"

	"github.com/rajlabs/tallybridge/internal/backend"
	"github.com/rajlabs/tallybridge/internal/config"
	"github.com/rajlabs/tallybridge/internal/geocode"
	"github.com/rajlabs/tallybridge/internal/record"
	"github.com/rajlabs/tallybridge/internal/snapshot"
	"github.com/rajlabs/tallybridge/internal/sync"
	"github.com/rajlabs/tallybridge/internal/tally"
)

// engine bundles the wired sync components for the sync and run commands.
type engine struct {
	tally     *tally.Client
	backend   *backend.Client
	store     *snapshot.Store
	scheduler *sync.Scheduler
	poller    *sync.Poller
}

// buildEngine wires clients, store, scheduler, and poller from the
// configuration. The caller must call close() when done.
func buildEngine(cfg *config.Config, events sync.Events) (*engine, func(), error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	tallyLogger := newLogger("tally", cfg.LogFile)
	backendLogger := newLogger("backend", cfg.LogFile)

	tallyClient := tally.NewClient(cfg.TallyURL, tallyLogger)
	backendClient := backend.NewClient(cfg.BackendURL, cfg.Token, backendLogger)

	store, err := snapshot.Open(snapshot.PathFor(cfg.DataDir, cfg.CompanyID))
	if err != nil {
		return nil, nil, err
	}

	fetch := func(ctx context.Context) ([]record.Record, error) {
		return tallyClient.FetchLedgers(ctx, cfg.CompanyName,
			cfg.TallyUsername, cfg.TallyPassword)
	}

	var enrich sync.Enricher
	if cfg.GeocodeEnabled {
		if cfg.GeocodeAPIKey == "" {
			return nil, nil, fmt.Errorf("geocode_enabled is set but geocode_api_key is empty")
		}
		geocoder := geocode.New(cfg.GeocodeAPIKey, 0, newLogger("geocode", cfg.LogFile))
		enrich = geocoder.Enrich
	}

	uploader := sync.NewUploader(backendClient, cfg.CompanyID, cfg.BatchSize,
		newLogger("upload", cfg.LogFile))

	scheduler := sync.NewScheduler(sync.SchedulerConfig{
		Fetch:    fetch,
		Groups:   cfg.Groups,
		Enrich:   enrich,
		Uploader: uploader,
		Store:    store,
		Interval: cfg.SyncInterval,
		Events:   events,
		Logger:   newLogger("autosync", cfg.LogFile),
	})

	updater := tally.NewUpdater(tallyClient, cfg.CompanyName,
		cfg.TallyUsername, cfg.TallyPassword)

	poller := sync.NewPoller(sync.PollerConfig{
		Queue:     backendClient,
		Applier:   updater,
		CompanyID: cfg.CompanyID,
		Limit:     cfg.PollLimit,
		Interval:  cfg.PollInterval,
		Events:    events,
		Logger:    newLogger("poller", cfg.LogFile),
	})

	e := &engine{
		tally:     tallyClient,
		backend:   backendClient,
		store:     store,
		scheduler: scheduler,
		poller:    poller,
	}
	cleanup := func() { _ = store.Close() }
	return e, cleanup, nil
}
