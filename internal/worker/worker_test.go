package worker_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tunecast/internal/adapters"
	"tunecast/internal/distribution"
	"tunecast/internal/distribution/metrics"
	"tunecast/internal/queue"
	"tunecast/internal/worker"
	id "tunecast/pkg/domain"
)

// brokenAdapter fails every call, standing in for an unreachable platform.
type brokenAdapter struct {
	platform distribution.Platform
}

func (b brokenAdapter) Platform() distribution.Platform { return b.platform }

func (b brokenAdapter) Submit(context.Context, *distribution.Distribution) (adapters.Result, error) {
	return adapters.Result{}, errors.New("connection refused")
}

func (b brokenAdapter) Remove(context.Context, *distribution.Distribution) error {
	return errors.New("connection refused")
}

type fixture struct {
	worker *worker.Worker
	store  *distribution.InMemoryStore
	jobs   *queue.Memory
}

func newFixture(t *testing.T, platformAdapters ...adapters.Adapter) *fixture {
	t.Helper()
	if len(platformAdapters) == 0 {
		platformAdapters = []adapters.Adapter{adapters.NewSandbox(distribution.PlatformSpotify)}
	}
	store := distribution.NewInMemoryStore()
	jobs := queue.NewMemory(16)
	w := worker.New(
		store,
		adapters.NewRegistry(platformAdapters...),
		jobs,
		metrics.NewWith(prometheus.NewRegistry()),
		slog.New(slog.DiscardHandler),
		2,
		time.Second,
	)
	return &fixture{worker: w, store: store, jobs: jobs}
}

func (f *fixture) seed(t *testing.T, status distribution.Status) *distribution.Distribution {
	t.Helper()
	d := &distribution.Distribution{
		ID:                   id.NewDistributionID(),
		ReleaseID:            id.NewReleaseID(),
		Platform:             distribution.PlatformSpotify,
		Status:               status,
		ISRC:                 "US-AB1-26-00042",
		Territories:          []string{"worldwide"},
		DistributionMetadata: map[string]string{},
		CreatedAt:            time.Now().UTC(),
		UpdatedAt:            time.Now().UTC(),
	}
	require.NoError(t, f.store.Create(context.Background(), d))
	return d
}

func (f *fixture) reload(t *testing.T, distID id.DistributionID) *distribution.Distribution {
	t.Helper()
	d, err := f.store.Get(context.Background(), distID)
	require.NoError(t, err)
	return d
}

func TestHandleSubmit_Accepted(t *testing.T) {
	f := newFixture(t)
	d := f.seed(t, distribution.StatusPending)

	require.NoError(t, f.worker.Handle(context.Background(), queue.NewSubmitJob(d.ID, 0)))

	got := f.reload(t, d.ID)
	assert.Equal(t, distribution.StatusProcessing, got.Status, "live only arrives via webhook")
	assert.NotEmpty(t, got.PlatformSubmissionID)

	events, err := f.store.Events(context.Background(), d.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "submission started", events[0].Message)
	assert.Equal(t, "accepted by platform, awaiting confirmation", events[1].Message)
}

func TestHandleSubmit_Rejected(t *testing.T) {
	f := newFixture(t)
	d := f.seed(t, distribution.StatusPending)
	d.DistributionMetadata["sandbox"] = "reject"
	require.NoError(t, f.store.Update(context.Background(), d))

	require.NoError(t, f.worker.Handle(context.Background(), queue.NewSubmitJob(d.ID, 0)))

	got := f.reload(t, d.ID)
	assert.Equal(t, distribution.StatusFailed, got.Status)
	assert.Equal(t, "rejected by platform: rejected by sandbox", got.ErrorMessage)
}

func TestHandleSubmit_AdapterErrorMarksFailed(t *testing.T) {
	f := newFixture(t, brokenAdapter{platform: distribution.PlatformSpotify})
	d := f.seed(t, distribution.StatusPending)

	require.NoError(t, f.worker.Handle(context.Background(), queue.NewSubmitJob(d.ID, 0)))

	got := f.reload(t, d.ID)
	assert.Equal(t, distribution.StatusFailed, got.Status)
	assert.Contains(t, got.ErrorMessage, "connection refused")
}

func TestHandleSubmit_NoAdapterMarksFailed(t *testing.T) {
	f := newFixture(t)
	d := f.seed(t, distribution.StatusPending)
	d.Platform = distribution.PlatformDeezer
	require.NoError(t, f.store.Update(context.Background(), d))

	require.NoError(t, f.worker.Handle(context.Background(), queue.NewSubmitJob(d.ID, 0)))

	got := f.reload(t, d.ID)
	assert.Equal(t, distribution.StatusFailed, got.Status)
	assert.Contains(t, got.ErrorMessage, "no adapter registered")
}

func TestHandleSubmit_RedeliveryIsNoOp(t *testing.T) {
	f := newFixture(t)
	d := f.seed(t, distribution.StatusLive)

	require.NoError(t, f.worker.Handle(context.Background(), queue.NewSubmitJob(d.ID, 0)))

	got := f.reload(t, d.ID)
	assert.Equal(t, distribution.StatusLive, got.Status)
	assert.Empty(t, got.PlatformSubmissionID)
}

func TestHandleSubmit_UnknownDistributionDropped(t *testing.T) {
	f := newFixture(t)
	assert.NoError(t, f.worker.Handle(context.Background(), queue.NewSubmitJob(id.NewDistributionID(), 0)))
}

func TestHandleRemove(t *testing.T) {
	f := newFixture(t)
	d := f.seed(t, distribution.StatusRemovalRequested)
	d.PlatformSubmissionID = "sp-123"
	require.NoError(t, f.store.Update(context.Background(), d))

	require.NoError(t, f.worker.Handle(context.Background(), queue.NewRemoveJob(d.ID)))
	assert.Equal(t, distribution.StatusRemoved, f.reload(t, d.ID).Status)
}

func TestHandleRemove_NotRequestedIsNoOp(t *testing.T) {
	f := newFixture(t)
	d := f.seed(t, distribution.StatusLive)

	require.NoError(t, f.worker.Handle(context.Background(), queue.NewRemoveJob(d.ID)))
	assert.Equal(t, distribution.StatusLive, f.reload(t, d.ID).Status)
}

func TestHandleRemove_AdapterErrorKeepsStatus(t *testing.T) {
	f := newFixture(t, brokenAdapter{platform: distribution.PlatformSpotify})
	d := f.seed(t, distribution.StatusRemovalRequested)

	err := f.worker.Handle(context.Background(), queue.NewRemoveJob(d.ID))
	assert.Error(t, err)
	assert.Equal(t, distribution.StatusRemovalRequested, f.reload(t, d.ID).Status)
}

func TestRun_DrainsQueue(t *testing.T) {
	f := newFixture(t)
	first := f.seed(t, distribution.StatusPending)
	second := f.seed(t, distribution.StatusPending)

	require.NoError(t, f.jobs.Enqueue(context.Background(), queue.NewSubmitJob(first.ID, 0)))
	require.NoError(t, f.jobs.Enqueue(context.Background(), queue.NewSubmitJob(second.ID, 0)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.worker.Run(ctx) }()

	require.Eventually(t, func() bool {
		return f.reload(t, first.ID).Status == distribution.StatusProcessing &&
			f.reload(t, second.ID).Status == distribution.StatusProcessing
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}
