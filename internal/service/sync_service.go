// Package service runs reconciliation across all configured pairings.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bcnelson/ipsync/internal/collector"
	"github.com/bcnelson/ipsync/internal/converge"
	"github.com/bcnelson/ipsync/internal/domain"
	"github.com/bcnelson/ipsync/internal/metrics"
	"github.com/bcnelson/ipsync/internal/provider"
	"github.com/bcnelson/ipsync/internal/ratelimit"
	"github.com/bcnelson/ipsync/internal/reconcile"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Pairing failure stages.
const (
	StageResolve       = "resolve"
	StageCollectSource = "collect_source"
	StageCollectTarget = "collect_target"
)

// DefaultPairingConcurrency bounds how many pairings reconcile at once.
const DefaultPairingConcurrency = 2

// Endpoint names a registered provider and one of its collections.
type Endpoint struct {
	Provider   string `json:"provider"`
	Collection string `json:"collection,omitempty"`
}

// Pairing is a resolved source-to-target binding.
type Pairing struct {
	Name    string        `json:"name"`
	Sources []Endpoint    `json:"sources"`
	Target  Endpoint      `json:"target"`
	Mode    converge.Mode `json:"mode"`
}

// Options configures a SyncService.
type Options struct {
	Registry *provider.Registry
	Pairings []Pairing
	Client   *ratelimit.Client

	// Concurrency bounds in-flight mutations per pairing.
	Concurrency        int
	PairingConcurrency int
	Debounce           time.Duration
	DryRun             bool

	// MaxAddresses fails a pairing whose source or target inventory would
	// exceed it. Zero means no limit.
	MaxAddresses int

	Metrics *metrics.Metrics
	Logger  zerolog.Logger
}

// SyncService reconciles every pairing and keeps the last report.
type SyncService struct {
	registry           *provider.Registry
	pairings           []Pairing
	client             *ratelimit.Client
	collector          *collector.Collector
	applier            *converge.Applier
	pairingConcurrency int
	debounce           time.Duration
	dryRun             bool
	metrics            *metrics.Metrics
	logger             zerolog.Logger
	now                func() time.Time

	mu          sync.Mutex
	running     bool
	last        *domain.SyncReport
	syncTimer   *time.Timer
	syncPending bool
}

// NewSyncService creates a new SyncService.
func NewSyncService(opts Options) *SyncService {
	if opts.Client == nil {
		opts.Client = ratelimit.New(ratelimit.WithLogger(opts.Logger), ratelimit.WithMetrics(opts.Metrics))
	}
	if opts.PairingConcurrency <= 0 {
		opts.PairingConcurrency = DefaultPairingConcurrency
	}
	return &SyncService{
		registry:           opts.Registry,
		pairings:           opts.Pairings,
		client:             opts.Client,
		collector:          collector.New(opts.Logger, collector.WithMaxAddresses(opts.MaxAddresses)),
		applier:            converge.New(opts.Client, opts.Concurrency, opts.Logger, opts.Metrics),
		pairingConcurrency: opts.PairingConcurrency,
		debounce:           opts.Debounce,
		dryRun:             opts.DryRun,
		metrics:            opts.Metrics,
		logger:             opts.Logger,
		now:                time.Now,
	}
}

// Pairings returns the configured pairings.
func (s *SyncService) Pairings() []Pairing {
	return append([]Pairing(nil), s.pairings...)
}

// DryRun reports whether runs default to dry-run.
func (s *SyncService) DryRun() bool {
	return s.dryRun
}

// LastReport returns the report of the most recent completed run.
func (s *SyncService) LastReport() (*domain.SyncReport, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.last != nil
}

// Run reconciles every pairing once. Overlapping runs are rejected with
// domain.ErrSyncInProgress. Failures of individual pairings or addresses are
// part of the report, not the returned error.
func (s *SyncService) Run(ctx context.Context, dryRun bool) (*domain.SyncReport, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil, domain.ErrSyncInProgress
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	report := &domain.SyncReport{
		RunID:     uuid.New().String(),
		StartedAt: s.now().UTC(),
	}
	log := s.logger.With().Str("run_id", report.RunID).Logger()
	log.Info().Int("pairings", len(s.pairings)).Bool("dry_run", dryRun).Msg("Starting synchronization")

	// Each pairing writes only its own slot; reports merge in config order.
	results := make([]*domain.SyncReport, len(s.pairings))
	g := new(errgroup.Group)
	g.SetLimit(s.pairingConcurrency)
	for i, p := range s.pairings {
		g.Go(func() error {
			results[i] = s.reconcile(ctx, p, dryRun)
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		report.Merge(r)
	}
	report.FinishedAt = s.now().UTC()
	s.metrics.ObserveRun(report.FinishedAt.Sub(report.StartedAt))

	log.Info().
		Int("successes", report.Successes).
		Int("failures", report.Failures).
		Msgf("Synchronization completed with %d successes and %d failures", report.Successes, report.Failures)

	s.mu.Lock()
	s.last = report
	s.mu.Unlock()

	return report, nil
}

// Plan computes the change set of one pairing without applying it.
func (s *SyncService) Plan(ctx context.Context, name string) (*domain.SyncReport, error) {
	for _, p := range s.pairings {
		if p.Name == name {
			report := s.reconcile(ctx, p, true)
			return report, nil
		}
	}
	return nil, fmt.Errorf("pairing %q: %w", name, domain.ErrNotFound)
}

// TriggerSync triggers a debounced run.
// Multiple triggers within the debounce period will result in a single run.
func (s *SyncService) TriggerSync() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.syncTimer != nil {
		s.syncTimer.Stop()
	}

	s.syncPending = true
	s.syncTimer = time.AfterFunc(s.debounce, func() {
		s.mu.Lock()
		s.syncPending = false
		s.mu.Unlock()

		if _, err := s.Run(context.Background(), s.dryRun); err != nil {
			s.logger.Warn().Err(err).Msg("Triggered sync skipped")
		}
	})
}

// Pending reports whether a triggered run is waiting for its debounce.
func (s *SyncService) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncPending
}

// Stop cancels a pending triggered run.
func (s *SyncService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.syncTimer != nil {
		s.syncTimer.Stop()
	}
	s.syncPending = false
}

// Start runs every interval until ctx is done. A non-positive interval only
// waits for ctx.
func (s *SyncService) Start(ctx context.Context, interval time.Duration) {
	defer s.Stop()
	if interval <= 0 {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Run(ctx, s.dryRun); err != nil {
				s.logger.Warn().Err(err).Msg("Scheduled sync skipped")
			}
		}
	}
}

// reconcile collects every source and the target of p, diffs them and
// converges the target. Any collection failure aborts the pairing before a
// single mutation is issued.
func (s *SyncService) reconcile(ctx context.Context, p Pairing, dryRun bool) *domain.SyncReport {
	report := &domain.SyncReport{}
	log := s.logger.With().Str("pairing", p.Name).Logger()

	fail := func(stage string, err error) *domain.SyncReport {
		s.metrics.PairingFailure(stage)
		log.Error().Str("stage", stage).Err(err).Msg("Pairing aborted")
		report.RecordPairingFailure(domain.PairingFailure{Pairing: p.Name, Stage: stage, Err: err})
		return report
	}

	target, err := s.registry.Get(p.Target.Provider)
	if err != nil {
		return fail(StageResolve, fmt.Errorf("target %s: %w", p.Target.Provider, err))
	}

	desired := domain.NewInventory()
	for _, src := range p.Sources {
		lister, err := s.registry.Get(src.Provider)
		if err != nil {
			return fail(StageResolve, fmt.Errorf("source %s: %w", src.Provider, err))
		}
		res, err := s.collect(ctx, lister, src.Collection)
		if err != nil {
			return fail(StageCollectSource, err)
		}
		s.recordRejected(report, p, lister.Name(), res.Rejected)
		desired.Union(res.Inventory)
	}

	current, err := s.collect(ctx, target, p.Target.Collection)
	if err != nil {
		return fail(StageCollectTarget, err)
	}
	s.recordRejected(report, p, target.Name(), current.Rejected)

	changes := reconcile.Diff(desired, current.Inventory)
	log.Info().
		Int("desired", desired.Len()).
		Int("current", current.Inventory.Len()).
		Int("additions", changes.Additions.Len()).
		Int("removals", changes.Removals.Len()).
		Msg("Computed change set")

	report.Merge(s.applier.Apply(ctx, converge.Request{
		Pairing:    p.Name,
		Target:     target,
		Collection: p.Target.Collection,
		Changes:    changes,
		Desired:    desired,
		Mode:       p.Mode,
		DryRun:     dryRun,
	}))
	return report
}

// collect walks the full listing of collection, each page through the retrying client.
func (s *SyncService) collect(ctx context.Context, lister provider.Lister, collection string) (*collector.Result, error) {
	name := fmt.Sprintf("list %s:%s", lister.Name(), collection)
	fetch := func(ctx context.Context, cursor string) (domain.Page, error) {
		var page domain.Page
		_, err := s.client.Call(ctx, name, func(ctx context.Context) (*domain.Response, error) {
			p, resp, err := lister.FetchPage(ctx, collection, cursor)
			if err == nil && resp != nil && resp.Status == domain.ResponseSuccess {
				page = p
			}
			return resp, err
		})
		return page, err
	}
	return s.collector.Collect(ctx, lister.Name(), collection, lister.StartCursor(collection), fetch)
}

// recordRejected turns unexpandable specs into error outcomes.
func (s *SyncService) recordRejected(report *domain.SyncReport, p Pairing, providerName string, rejected []collector.Rejected) {
	for _, r := range rejected {
		s.metrics.Outcome(string(domain.OpExpand), string(domain.StatusError))
		report.Record(domain.Outcome{
			Pairing:   p.Name,
			Target:    providerName,
			Address:   domain.Address(r.Spec),
			Operation: domain.OpExpand,
			Status:    domain.StatusError,
			Message:   r.Err.Error(),
			Err:       r.Err,
		})
	}
}
