// Package converge applies a change set to a target provider and reports one
// outcome per address.
package converge

import (
	"context"
	"fmt"

	"github.com/bcnelson/ipsync/internal/domain"
	"github.com/bcnelson/ipsync/internal/metrics"
	"github.com/bcnelson/ipsync/internal/provider"
	"github.com/bcnelson/ipsync/internal/ratelimit"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Mode selects how a change set reaches the target.
type Mode string

const (
	// ModeAuto prefers incremental mutations and falls back to replace.
	ModeAuto        Mode = "auto"
	ModeIncremental Mode = "incremental"
	ModeReplace     Mode = "replace"
)

// ParseMode validates a mode name. An empty name is ModeAuto.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeAuto:
		return ModeAuto, nil
	case ModeIncremental, ModeReplace:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("mode %q: %w", s, domain.ErrInvalidInput)
	}
}

// DefaultConcurrency bounds in-flight mutations per pairing.
const DefaultConcurrency = 4

// Request describes one convergence.
type Request struct {
	Pairing    string
	Target     provider.Lister
	Collection string
	Changes    domain.ChangeSet
	// Desired is the full source inventory, sent as-is in replace mode.
	Desired domain.Inventory
	Mode    Mode
	DryRun  bool
}

// Applier issues mutations through the retrying client.
type Applier struct {
	client      *ratelimit.Client
	concurrency int
	logger      zerolog.Logger
	metrics     *metrics.Metrics
}

// New creates an Applier. A non-positive concurrency uses DefaultConcurrency.
func New(client *ratelimit.Client, concurrency int, logger zerolog.Logger, m *metrics.Metrics) *Applier {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Applier{client: client, concurrency: concurrency, logger: logger, metrics: m}
}

// ResolveMode picks the concrete mode for target. It fails when the target
// lacks the capability the mode needs.
func ResolveMode(target provider.Lister, mode Mode) (Mode, error) {
	mutate, replace := provider.Capabilities(target)
	switch mode {
	case ModeIncremental:
		if !mutate {
			return "", fmt.Errorf("provider %s does not support incremental mutation: %w", target.Name(), domain.ErrUnsupported)
		}
		return ModeIncremental, nil
	case ModeReplace:
		if !replace {
			return "", fmt.Errorf("provider %s does not support replace: %w", target.Name(), domain.ErrUnsupported)
		}
		return ModeReplace, nil
	default:
		switch {
		case mutate:
			return ModeIncremental, nil
		case replace:
			return ModeReplace, nil
		default:
			return "", fmt.Errorf("provider %s is read-only: %w", target.Name(), domain.ErrUnsupported)
		}
	}
}

// Apply converges the target. It never returns early on an address failure:
// every address in the change set (or the desired set in replace mode) yields
// exactly one outcome. Dry runs only record the plan.
func (a *Applier) Apply(ctx context.Context, req Request) *domain.SyncReport {
	report := &domain.SyncReport{}
	additions := req.Changes.Additions.Sorted()
	removals := req.Changes.Removals.Sorted()

	mode, modeErr := ResolveMode(req.Target, req.Mode)
	plan := domain.Plan{
		Pairing:    req.Pairing,
		Target:     req.Target.Name(),
		Collection: req.Collection,
		Mode:       string(mode),
		Additions:  additions,
		Removals:   removals,
	}

	if req.DryRun {
		report.Plans = append(report.Plans, plan)
		return report
	}

	if modeErr != nil {
		a.logger.Error().Str("pairing", req.Pairing).Err(modeErr).Msg("Cannot apply change set")
		for _, addr := range additions {
			a.record(report, req, addr, domain.OpAdd, nil, modeErr)
		}
		for _, addr := range removals {
			a.record(report, req, addr, domain.OpRemove, nil, modeErr)
		}
		report.Plans = append(report.Plans, plan)
		return report
	}

	if req.Changes.IsEmpty() {
		a.logger.Info().Str("pairing", req.Pairing).Str("target", req.Target.Name()).Msg("Target already converged")
		report.Plans = append(report.Plans, plan)
		return report
	}

	plan.Applied = true
	report.Plans = append(report.Plans, plan)

	if mode == ModeReplace {
		a.replace(ctx, report, req)
		return report
	}
	a.incremental(ctx, report, req, additions, removals)
	return report
}

type job struct {
	addr domain.Address
	op   domain.Operation
}

type result struct {
	resp *domain.Response
	err  error
}

func (a *Applier) incremental(ctx context.Context, report *domain.SyncReport, req Request, additions, removals []domain.Address) {
	mutator := req.Target.(provider.Mutator)

	jobs := make([]job, 0, len(additions)+len(removals))
	for _, addr := range additions {
		jobs = append(jobs, job{addr: addr, op: domain.OpAdd})
	}
	for _, addr := range removals {
		jobs = append(jobs, job{addr: addr, op: domain.OpRemove})
	}

	// Each worker writes only its own slot.
	results := make([]result, len(jobs))
	var g errgroup.Group
	g.SetLimit(a.concurrency)
	for i, j := range jobs {
		g.Go(func() error {
			name := fmt.Sprintf("%s %s %s", j.op, j.addr, req.Target.Name())
			resp, err := a.client.Call(ctx, name, func(ctx context.Context) (*domain.Response, error) {
				return mutator.Mutate(ctx, req.Collection, j.addr, j.op)
			})
			results[i] = result{resp: resp, err: err}
			return nil
		})
	}
	_ = g.Wait()

	for i, j := range jobs {
		a.record(report, req, j.addr, j.op, results[i].resp, results[i].err)
	}
}

func (a *Applier) replace(ctx context.Context, report *domain.SyncReport, req Request) {
	replacer := req.Target.(provider.Replacer)
	desired := req.Desired.Sorted()

	name := fmt.Sprintf("replace %s %s (%d addresses)", req.Target.Name(), req.Collection, len(desired))
	resp, err := a.client.Call(ctx, name, func(ctx context.Context) (*domain.Response, error) {
		return replacer.ReplaceAll(ctx, req.Collection, desired)
	})

	for _, addr := range desired {
		a.record(report, req, addr, domain.OpReplace, resp, err)
	}
	// Emptying the collection has no desired addresses to report on, so the
	// outcome belongs to each address it removes.
	if len(desired) == 0 {
		for _, addr := range req.Changes.Removals.Sorted() {
			a.record(report, req, addr, domain.OpRemove, resp, err)
		}
	}
}

func (a *Applier) record(report *domain.SyncReport, req Request, addr domain.Address, op domain.Operation, resp *domain.Response, err error) {
	o := domain.Outcome{
		Pairing:   req.Pairing,
		Target:    req.Target.Name(),
		Address:   addr,
		Operation: op,
		Status:    domain.StatusSuccess,
	}
	if resp != nil {
		o.HTTPStatus = resp.HTTPStatus
	}
	if err != nil {
		o.Status = domain.StatusError
		o.Message = err.Error()
		o.Err = err
	}
	report.Record(o)
	a.metrics.Outcome(string(op), string(o.Status))

	event := a.logger.Debug()
	if o.Status == domain.StatusError {
		event = a.logger.Warn().Err(err)
	}
	event.
		Str("pairing", req.Pairing).
		Str("address", string(addr)).
		Str("target", req.Target.Name()).
		Str("operation", string(op)).
		Str("status", string(o.Status)).
		Msg("Address processed")
}
