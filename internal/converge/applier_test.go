package converge_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bcnelson/ipsync/internal/converge"
	"github.com/bcnelson/ipsync/internal/domain"
	"github.com/bcnelson/ipsync/internal/metrics"
	"github.com/bcnelson/ipsync/internal/provider"
	"github.com/bcnelson/ipsync/internal/provider/memory"
	"github.com/bcnelson/ipsync/internal/ratelimit"
	"github.com/bcnelson/ipsync/internal/reconcile"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noSleep(context.Context, time.Duration) error { return nil }

func newApplier(concurrency int) *converge.Applier {
	client := ratelimit.New(ratelimit.WithSleeper(noSleep))
	return converge.New(client, concurrency, zerolog.Nop(), metrics.New())
}

// bulkTarget exposes only the listing and replace capabilities.
type bulkTarget struct {
	inner *memory.Provider
}

func (b bulkTarget) Name() string { return b.inner.Name() }
func (b bulkTarget) StartCursor(c string) string { return b.inner.StartCursor(c) }
func (b bulkTarget) FetchPage(ctx context.Context, c, cur string) (domain.Page, *domain.Response, error) {
	return b.inner.FetchPage(ctx, c, cur)
}
func (b bulkTarget) ReplaceAll(ctx context.Context, c string, addrs []domain.Address) (*domain.Response, error) {
	return b.inner.ReplaceAll(ctx, c, addrs)
}

// readOnly exposes only the listing capability.
type readOnly struct {
	inner *memory.Provider
}

func (r readOnly) Name() string { return r.inner.Name() }
func (r readOnly) StartCursor(c string) string { return r.inner.StartCursor(c) }
func (r readOnly) FetchPage(ctx context.Context, c, cur string) (domain.Page, *domain.Response, error) {
	return r.inner.FetchPage(ctx, c, cur)
}

func TestApply_Incremental(t *testing.T) {
	target := memory.New("target").Seed("site", "10.0.0.3")
	source := domain.NewInventory("10.0.0.1", "10.0.0.2")
	changes := reconcile.Diff(source, domain.NewInventory("10.0.0.3"))

	report := newApplier(2).Apply(context.Background(), converge.Request{
		Pairing:    "p",
		Target:     target,
		Collection: "site",
		Changes:    changes,
		Desired:    source,
	})

	assert.Equal(t, 3, report.Successes)
	assert.Equal(t, 0, report.Failures)
	require.Len(t, report.Outcomes, 3)
	assert.Equal(t, domain.Outcome{Pairing: "p", Target: "target", Address: "10.0.0.1", Operation: domain.OpAdd, Status: domain.StatusSuccess, HTTPStatus: http.StatusCreated}, report.Outcomes[0])
	assert.Equal(t, domain.OpRemove, report.Outcomes[2].Operation)
	assert.ElementsMatch(t, []string{"10.0.0.1", "10.0.0.2"}, target.Specs("site"))

	require.Len(t, report.Plans, 1)
	assert.True(t, report.Plans[0].Applied)
	assert.Equal(t, string(converge.ModeIncremental), report.Plans[0].Mode)
}

func TestApply_PartialFailureDoesNotBlockOthers(t *testing.T) {
	target := memory.New("target")
	target.Intercept(func(_ string, addr domain.Address, _ domain.Operation) (*domain.Response, error) {
		if addr == "10.0.0.2" {
			return &domain.Response{Status: domain.ResponseError, HTTPStatus: http.StatusBadRequest, Message: "rejected"}, nil
		}
		return nil, nil
	})
	source := domain.NewInventory("10.0.0.1", "10.0.0.2", "10.0.0.3")

	report := newApplier(3).Apply(context.Background(), converge.Request{
		Pairing: "p", Target: target, Collection: "site",
		Changes: reconcile.Diff(source, domain.NewInventory()),
		Desired: source,
	})

	assert.Equal(t, 2, report.Successes)
	assert.Equal(t, 1, report.Failures)
	require.Len(t, report.Outcomes, 3)
	failed := report.Outcomes[1]
	assert.Equal(t, domain.Address("10.0.0.2"), failed.Address)
	assert.Equal(t, domain.StatusError, failed.Status)
	assert.Equal(t, http.StatusBadRequest, failed.HTTPStatus)
	assert.Contains(t, failed.Message, "rejected")
	assert.True(t, errors.Is(failed.Err, domain.ErrMutationFailure))
}

func TestApply_RateLimitExhaustionIsPerAddress(t *testing.T) {
	target := memory.New("target")
	target.Intercept(func(_ string, addr domain.Address, _ domain.Operation) (*domain.Response, error) {
		if addr == "10.0.0.1" {
			return &domain.Response{Status: domain.ResponseRateLimited, HTTPStatus: http.StatusTooManyRequests}, nil
		}
		return nil, nil
	})
	source := domain.NewInventory("10.0.0.1", "10.0.0.2")

	report := newApplier(1).Apply(context.Background(), converge.Request{
		Pairing: "p", Target: target, Collection: "site",
		Changes: reconcile.Diff(source, domain.NewInventory()),
		Desired: source,
	})

	assert.Equal(t, 1, report.Successes)
	assert.Equal(t, 1, report.Failures)
	assert.True(t, errors.Is(report.Outcomes[0].Err, domain.ErrRetryExhausted))
	assert.Equal(t, []string{"10.0.0.2"}, target.Specs("site"))
}

func TestApply_ConcurrencyIsBounded(t *testing.T) {
	var inFlight, peak int32
	var mu sync.Mutex
	release := make(chan struct{})
	target := memory.New("target")
	target.Intercept(func(string, domain.Address, domain.Operation) (*domain.Response, error) {
		n := atomic.AddInt32(&inFlight, 1)
		mu.Lock()
		if n > peak {
			peak = n
		}
		mu.Unlock()
		<-release
		atomic.AddInt32(&inFlight, -1)
		return domain.OK(http.StatusCreated), nil
	})

	source := domain.NewInventory()
	for _, a := range []domain.Address{"10.0.0.1", "10.0.0.2", "10.0.0.3", "10.0.0.4", "10.0.0.5", "10.0.0.6"} {
		source.Add(a)
	}

	done := make(chan *domain.SyncReport)
	go func() {
		done <- newApplier(2).Apply(context.Background(), converge.Request{
			Pairing: "p", Target: target, Collection: "site",
			Changes: reconcile.Diff(source, domain.NewInventory()),
			Desired: source,
		})
	}()
	close(release)
	report := <-done

	assert.Equal(t, 6, report.Successes)
	assert.LessOrEqual(t, peak, int32(2))
}

func TestApply_ReplaceMode(t *testing.T) {
	inner := memory.New("bulk").Seed("alert", "10.0.0.9")
	target := bulkTarget{inner: inner}
	mutate, replace := provider.Capabilities(target)
	require.False(t, mutate)
	require.True(t, replace)

	source := domain.NewInventory("10.0.0.2", "10.0.0.1")
	report := newApplier(2).Apply(context.Background(), converge.Request{
		Pairing: "p", Target: target, Collection: "alert",
		Changes: reconcile.Diff(source, domain.NewInventory("10.0.0.9")),
		Desired: source,
	})

	require.Len(t, inner.Calls(), 1)
	assert.Equal(t, domain.OpReplace, inner.Calls()[0].Operation)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, inner.Specs("alert"))
	require.Len(t, report.Outcomes, 2)
	for _, o := range report.Outcomes {
		assert.Equal(t, domain.OpReplace, o.Operation)
		assert.Equal(t, domain.StatusSuccess, o.Status)
	}
	assert.Equal(t, string(converge.ModeReplace), report.Plans[0].Mode)
}

func TestApply_ReplaceFailureIsSharedByAllAddresses(t *testing.T) {
	inner := memory.New("bulk")
	inner.Intercept(func(string, domain.Address, domain.Operation) (*domain.Response, error) {
		return &domain.Response{Status: domain.ResponseError, HTTPStatus: http.StatusInternalServerError, Message: "boom"}, nil
	})
	source := domain.NewInventory("10.0.0.1", "10.0.0.2", "10.0.0.3")

	report := newApplier(1).Apply(context.Background(), converge.Request{
		Pairing: "p", Target: inner, Collection: "alert",
		Changes: reconcile.Diff(source, domain.NewInventory()),
		Desired: source,
		Mode:    converge.ModeReplace,
	})

	assert.Equal(t, 0, report.Successes)
	assert.Equal(t, 3, report.Failures)
	for _, o := range report.Outcomes {
		assert.Equal(t, http.StatusInternalServerError, o.HTTPStatus)
	}
}

func TestApply_ReplaceWithEmptyDesiredReportsRemovals(t *testing.T) {
	inner := memory.New("bulk").Seed("alert", "10.0.0.9")
	inner.Intercept(func(string, domain.Address, domain.Operation) (*domain.Response, error) {
		return &domain.Response{Status: domain.ResponseError, HTTPStatus: http.StatusInternalServerError, Message: "boom"}, nil
	})
	desired := domain.NewInventory()

	report := newApplier(1).Apply(context.Background(), converge.Request{
		Pairing: "p", Target: bulkTarget{inner: inner}, Collection: "alert",
		Changes: reconcile.Diff(desired, domain.NewInventory("10.0.0.9")),
		Desired: desired,
	})

	assert.Equal(t, 0, report.Successes)
	assert.Equal(t, 1, report.Failures)
	assert.True(t, report.HasFailures())
	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, domain.Address("10.0.0.9"), report.Outcomes[0].Address)
	assert.Equal(t, domain.OpRemove, report.Outcomes[0].Operation)
	assert.Equal(t, domain.StatusError, report.Outcomes[0].Status)
	assert.Equal(t, []string{"10.0.0.9"}, inner.Specs("alert"))
}

func TestApply_EmptyChangeSetIssuesNoCalls(t *testing.T) {
	for _, mode := range []converge.Mode{converge.ModeIncremental, converge.ModeReplace} {
		t.Run(string(mode), func(t *testing.T) {
			target := memory.New("target").Seed("site", "10.0.0.1")
			desired := domain.NewInventory("10.0.0.1")

			report := newApplier(1).Apply(context.Background(), converge.Request{
				Pairing: "p", Target: target, Collection: "site",
				Changes: reconcile.Diff(desired, desired),
				Desired: desired,
				Mode:    mode,
			})

			assert.Empty(t, target.Calls())
			assert.Empty(t, report.Outcomes)
			assert.False(t, report.HasFailures())
			require.Len(t, report.Plans, 1)
			assert.False(t, report.Plans[0].Applied)
		})
	}
}

func TestApply_DryRun(t *testing.T) {
	target := memory.New("target")
	source := domain.NewInventory("10.0.0.1")

	report := newApplier(1).Apply(context.Background(), converge.Request{
		Pairing: "p", Target: target, Collection: "site",
		Changes: reconcile.Diff(source, domain.NewInventory()),
		Desired: source,
		DryRun:  true,
	})

	assert.Empty(t, target.Calls())
	assert.Empty(t, report.Outcomes)
	require.Len(t, report.Plans, 1)
	assert.Equal(t, []domain.Address{"10.0.0.1"}, report.Plans[0].Additions)
	assert.False(t, report.Plans[0].Applied)
}

func TestApply_ReadOnlyTargetFailsEveryAddress(t *testing.T) {
	source := domain.NewInventory("10.0.0.1", "10.0.0.2")

	report := newApplier(1).Apply(context.Background(), converge.Request{
		Pairing: "p", Target: readOnly{inner: memory.New("ro")}, Collection: "site",
		Changes: reconcile.Diff(source, domain.NewInventory("10.0.0.3")),
		Desired: source,
	})

	assert.Equal(t, 3, report.Failures)
	for _, o := range report.Outcomes {
		assert.ErrorIs(t, o.Err, domain.ErrUnsupported)
	}
}

func TestResolveMode(t *testing.T) {
	full := memory.New("full")
	bulk := bulkTarget{inner: memory.New("bulk")}

	tests := []struct {
		name    string
		target  provider.Lister
		mode    converge.Mode
		want    converge.Mode
		wantErr bool
	}{
		{"auto prefers incremental", full, converge.ModeAuto, converge.ModeIncremental, false},
		{"auto falls back to replace", bulk, converge.ModeAuto, converge.ModeReplace, false},
		{"forced replace", full, converge.ModeReplace, converge.ModeReplace, false},
		{"incremental unsupported", bulk, converge.ModeIncremental, "", true},
		{"read only", readOnly{inner: memory.New("ro")}, converge.ModeAuto, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := converge.ResolveMode(tt.target, tt.mode)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrUnsupported)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseMode(t *testing.T) {
	m, err := converge.ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, converge.ModeAuto, m)

	_, err = converge.ParseMode("sideways")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
