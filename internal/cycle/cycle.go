// Package cycle drives the fetch, sync, select, announce and mark sequence.
package cycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/blackwell-systems/cratebot/internal/logger"
	"github.com/blackwell-systems/cratebot/internal/registry"
	"github.com/blackwell-systems/cratebot/internal/selector"
	"github.com/blackwell-systems/cratebot/internal/store"
)

//go:generate mockgen -destination=mocks/mock_cycle.go -package=mocks -source=cycle.go CatalogFetcher,Store,Chooser,Announcer

// CatalogFetcher walks the remote catalog from a starting page.
type CatalogFetcher interface {
	FetchCatalog(ctx context.Context, startingPage int) ([]registry.Crate, error)
}

// Store is the persisted set of known crates.
type Store interface {
	Count() (int, error)
	Sync(names []string) (store.SyncResult, error)
	UnvisitedNames() ([]string, error)
	MarkVisited(name string, at time.Time) error
}

// Chooser picks one name from a pool.
type Chooser interface {
	ChooseOne(names []string) (string, error)
}

// Announcer publishes a post about a crate and returns its name.
type Announcer interface {
	Announce(ctx context.Context, name string) (string, error)
}

// Result describes one completed cycle.
type Result struct {
	ResumePage int
	Fetched    int
	Inserted   int
	Unvisited  int
	Announced  string
	At         time.Time
}

// Runner performs single cycles.
type Runner struct {
	catalog   CatalogFetcher
	store     Store
	chooser   Chooser
	announcer Announcer
	log       logger.Logger
	now       func() time.Time
}

// NewRunner wires a Runner from its collaborators.
func NewRunner(catalog CatalogFetcher, st Store, chooser Chooser, announcer Announcer, log logger.Logger) *Runner {
	if log == nil {
		log = logger.NewNop()
	}
	return &Runner{
		catalog:   catalog,
		store:     st,
		chooser:   chooser,
		announcer: announcer,
		log:       log,
		now:       time.Now,
	}
}

// RunOnce performs one cycle. Each step completes before the next begins and
// any error aborts the cycle. The chosen crate is marked visited only after
// it has been announced.
func (r *Runner) RunOnce(ctx context.Context) (*Result, error) {
	count, err := r.store.Count()
	if err != nil {
		return nil, fmt.Errorf("failed to count crates: %w", err)
	}

	res := &Result{ResumePage: registry.ResumePage(count, registry.PageSize)}
	r.log.Info("fetching catalog",
		logger.Int("known", count),
		logger.Int("page", res.ResumePage))

	crates, err := r.catalog.FetchCatalog(ctx, res.ResumePage)
	if err != nil {
		return nil, err
	}
	res.Fetched = len(crates)

	synced, err := r.store.Sync(registry.Names(crates))
	if err != nil {
		return nil, fmt.Errorf("failed to sync catalog: %w", err)
	}
	res.Inserted = synced.Inserted
	if synced.UpToDate() {
		r.log.Info("already up to date", logger.Int("fetched", res.Fetched))
	} else {
		r.log.Info("synced catalog",
			logger.Int("fetched", res.Fetched),
			logger.Int("inserted", synced.Inserted))
	}

	unvisited, err := r.store.UnvisitedNames()
	if err != nil {
		return nil, fmt.Errorf("failed to list unvisited crates: %w", err)
	}
	res.Unvisited = len(unvisited)

	name, err := r.chooser.ChooseOne(unvisited)
	if err != nil {
		return nil, err
	}

	announced, err := r.announcer.Announce(ctx, name)
	if err != nil {
		return nil, err
	}

	res.At = r.now().UTC()
	if err := r.store.MarkVisited(announced, res.At); err != nil {
		return nil, fmt.Errorf("failed to mark %s visited: %w", announced, err)
	}
	res.Announced = announced

	return res, nil
}

// Scheduler repeats cycles at a fixed interval.
type Scheduler struct {
	runner   *Runner
	interval time.Duration
	log      logger.Logger
	stopCh   chan struct{}
	stopOnce sync.Once

	// OnCycle, if set, is called after every cycle with its outcome.
	OnCycle func(*Result, error)
}

// NewScheduler creates a Scheduler that runs runner every interval.
func NewScheduler(runner *Runner, interval time.Duration, log logger.Logger) *Scheduler {
	if log == nil {
		log = logger.NewNop()
	}
	return &Scheduler{
		runner:   runner,
		interval: interval,
		log:      log,
		stopCh:   make(chan struct{}),
	}
}

// Run performs a cycle immediately and then waits a full interval after each
// cycle completes before starting the next, until ctx is cancelled or Stop is
// called. A failed cycle is logged and does not stop the loop. Cycles run on
// the calling goroutine, so they never overlap.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", s.interval)
	}

	s.log.Info("starting scheduler", logger.Duration("interval", s.interval))
	s.tick(ctx)

	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			s.tick(ctx)
			timer.Reset(s.interval)
		case <-s.stopCh:
			s.log.Info("scheduler stopped")
			return nil
		case <-ctx.Done():
			s.log.Info("scheduler stopped", logger.Error(ctx.Err()))
			return nil
		}
	}
}

// Stop ends Run after the current cycle. It is safe to call more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
}

func (s *Scheduler) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	start := time.Now()
	res, err := s.runner.RunOnce(ctx)
	switch {
	case errors.Is(err, selector.ErrEmptyPool):
		s.log.Info("caught up: every known crate has been announced")
	case err != nil:
		s.log.Error("cycle failed", logger.Error(err))
	default:
		s.log.Info("cycle complete",
			logger.String("name", res.Announced),
			logger.Int("inserted", res.Inserted),
			logger.Duration("took", time.Since(start)))
	}

	if s.OnCycle != nil {
		s.OnCycle(res, err)
	}
}
