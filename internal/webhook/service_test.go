package webhook_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tunecast/internal/distribution"
	"tunecast/internal/distribution/metrics"
	"tunecast/internal/webhook"
	id "tunecast/pkg/domain"
	dErrors "tunecast/pkg/domain-errors"
)

const masterSecret = "test-master-secret"

type fixture struct {
	service   *webhook.Service
	signer    *webhook.Signer
	store     *distribution.InMemoryStore
	reconcile *webhook.InMemoryReconcileStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	signer, err := webhook.NewSigner(masterSecret)
	require.NoError(t, err)

	store := distribution.NewInMemoryStore()
	reconcile := webhook.NewInMemoryReconcileStore()
	service := webhook.New(
		signer,
		webhook.NewMemoryDeduper(),
		store,
		reconcile,
		metrics.NewWith(prometheus.NewRegistry()),
		slog.New(slog.DiscardHandler),
		webhook.WithClock(func() time.Time { return time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC) }),
	)
	return &fixture{service: service, signer: signer, store: store, reconcile: reconcile}
}

func (f *fixture) seed(t *testing.T, status distribution.Status, submissionID string) *distribution.Distribution {
	t.Helper()
	d := &distribution.Distribution{
		ID:                   id.NewDistributionID(),
		ReleaseID:            id.NewReleaseID(),
		Platform:             distribution.PlatformSpotify,
		Status:               status,
		ISRC:                 "US-AB1-26-00042",
		PlatformSubmissionID: submissionID,
		CreatedAt:            time.Now().UTC(),
		UpdatedAt:            time.Now().UTC(),
	}
	require.NoError(t, f.store.Create(context.Background(), d))
	return d
}

func (f *fixture) deliver(t *testing.T, payload webhook.Payload) (webhook.Outcome, error) {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	signature, err := f.signer.Sign(distribution.PlatformSpotify, body)
	require.NoError(t, err)
	return f.service.Process(context.Background(), distribution.PlatformSpotify, body, signature)
}

func TestSigner_PerPlatformKeys(t *testing.T) {
	signer, err := webhook.NewSigner(masterSecret)
	require.NoError(t, err)

	payload := []byte(`{"event":"live"}`)
	spotify, err := signer.Sign(distribution.PlatformSpotify, payload)
	require.NoError(t, err)
	tidal, err := signer.Sign(distribution.PlatformTidal, payload)
	require.NoError(t, err)
	assert.NotEqual(t, spotify, tidal, "platforms must not share signing keys")

	assert.NoError(t, signer.Verify(distribution.PlatformSpotify, payload, spotify))
	err = signer.Verify(distribution.PlatformSpotify, payload, tidal)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))

	_, err = webhook.NewSigner("")
	assert.Error(t, err)
}

func TestProcess_RejectsBadSignature(t *testing.T) {
	f := newFixture(t)
	body := []byte(`{"event":"live","submission_id":"sp-1"}`)

	_, err := f.service.Process(context.Background(), distribution.PlatformSpotify, body, "deadbeef")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestProcess_UnknownPlatform(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.Process(context.Background(), distribution.Platform("myspace"), []byte(`{}`), "sig")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestProcess_MalformedPayload(t *testing.T) {
	f := newFixture(t)
	body := []byte(`{"event":`)
	signature, err := f.signer.Sign(distribution.PlatformSpotify, body)
	require.NoError(t, err)

	_, err = f.service.Process(context.Background(), distribution.PlatformSpotify, body, signature)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func TestProcess_LiveConfirmation(t *testing.T) {
	f := newFixture(t)
	d := f.seed(t, distribution.StatusProcessing, "sp-1")

	outcome, err := f.deliver(t, webhook.Payload{
		DeliveryID:   "dl-1",
		Event:        webhook.EventLive,
		SubmissionID: "sp-1",
		TrackURL:     "https://open.spotify.com/track/abc",
		LiveDate:     "2026-03-02T08:30:00Z",
	})
	require.NoError(t, err)
	assert.Equal(t, webhook.OutcomeApplied, outcome)

	got, err := f.store.Get(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, distribution.StatusLive, got.Status)
	assert.Equal(t, "https://open.spotify.com/track/abc", got.PlatformURL)
	require.NotNil(t, got.LiveDate)
	assert.Equal(t, time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC), got.LiveDate.UTC())

	events, err := f.store.Events(context.Background(), d.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "went live", events[0].Message)
}

func TestProcess_RedeliveredDeliveryIDIsDeduped(t *testing.T) {
	f := newFixture(t)
	f.seed(t, distribution.StatusProcessing, "sp-1")

	payload := webhook.Payload{DeliveryID: "dl-1", Event: webhook.EventLive, SubmissionID: "sp-1"}
	_, err := f.deliver(t, payload)
	require.NoError(t, err)

	outcome, err := f.deliver(t, payload)
	require.NoError(t, err)
	assert.Equal(t, webhook.OutcomeDuplicate, outcome)
}

func TestProcess_DuplicateLiveIsNoOp(t *testing.T) {
	f := newFixture(t)
	d := f.seed(t, distribution.StatusLive, "sp-1")
	url := "https://open.spotify.com/track/original"
	d.PlatformURL = url
	require.NoError(t, f.store.Update(context.Background(), d))

	outcome, err := f.deliver(t, webhook.Payload{
		DeliveryID:   "dl-2",
		Event:        webhook.EventLive,
		SubmissionID: "sp-1",
		TrackURL:     "https://open.spotify.com/track/other",
	})
	require.NoError(t, err)
	assert.Equal(t, webhook.OutcomeDuplicate, outcome)

	got, err := f.store.Get(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, url, got.PlatformURL, "duplicate must not overwrite")
}

func TestProcess_LiveAfterRemovalIsStale(t *testing.T) {
	f := newFixture(t)
	d := f.seed(t, distribution.StatusRemoved, "sp-1")

	outcome, err := f.deliver(t, webhook.Payload{DeliveryID: "dl-3", Event: webhook.EventLive, SubmissionID: "sp-1"})
	require.NoError(t, err)
	assert.Equal(t, webhook.OutcomeStale, outcome)

	got, err := f.store.Get(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, distribution.StatusRemoved, got.Status)
}

func TestProcess_LiveBeforeProcessingIsIgnored(t *testing.T) {
	f := newFixture(t)
	d := f.seed(t, distribution.StatusPending, "sp-1")

	outcome, err := f.deliver(t, webhook.Payload{DeliveryID: "dl-4", Event: webhook.EventLive, SubmissionID: "sp-1"})
	require.NoError(t, err)
	assert.Equal(t, webhook.OutcomeStale, outcome)

	got, err := f.store.Get(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, distribution.StatusPending, got.Status, "out-of-order confirmation must not touch the row")
}

func TestProcess_RemovedBeforeLiveIsIgnored(t *testing.T) {
	f := newFixture(t)
	d := f.seed(t, distribution.StatusProcessing, "sp-1")

	outcome, err := f.deliver(t, webhook.Payload{DeliveryID: "dl-9", Event: webhook.EventRemoved, SubmissionID: "sp-1"})
	require.NoError(t, err)
	assert.Equal(t, webhook.OutcomeStale, outcome)

	got, err := f.store.Get(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, distribution.StatusProcessing, got.Status)
}

func TestProcess_RemovedConfirmation(t *testing.T) {
	for _, status := range []distribution.Status{distribution.StatusLive, distribution.StatusRemovalRequested} {
		t.Run(string(status), func(t *testing.T) {
			f := newFixture(t)
			d := f.seed(t, status, "sp-1")

			outcome, err := f.deliver(t, webhook.Payload{DeliveryID: "dl-5", Event: webhook.EventRemoved, SubmissionID: "sp-1"})
			require.NoError(t, err)
			assert.Equal(t, webhook.OutcomeApplied, outcome)

			got, err := f.store.Get(context.Background(), d.ID)
			require.NoError(t, err)
			assert.Equal(t, distribution.StatusRemoved, got.Status)
		})
	}
}

func TestProcess_FailureReport(t *testing.T) {
	f := newFixture(t)
	d := f.seed(t, distribution.StatusProcessing, "sp-1")

	outcome, err := f.deliver(t, webhook.Payload{
		DeliveryID:   "dl-6",
		Event:        webhook.EventFailed,
		SubmissionID: "sp-1",
		Reason:       "content flagged",
	})
	require.NoError(t, err)
	assert.Equal(t, webhook.OutcomeApplied, outcome)

	got, err := f.store.Get(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, distribution.StatusFailed, got.Status)
	assert.Equal(t, "content flagged", got.ErrorMessage)
}

func TestProcess_UnknownSubmissionIsRecordedForReconciliation(t *testing.T) {
	f := newFixture(t)

	_, err := f.deliver(t, webhook.Payload{DeliveryID: "dl-7", Event: webhook.EventLive, SubmissionID: "sp-ghost"})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))

	orphans, err := f.reconcile.Orphans(context.Background(), distribution.PlatformSpotify)
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	assert.Equal(t, "sp-ghost", orphans[0].SubmissionID)
	assert.Equal(t, webhook.EventLive, orphans[0].Event)
}

// unstableStore fails a set number of updates before behaving normally.
type unstableStore struct {
	*distribution.InMemoryStore
	failures int
}

func (s *unstableStore) Update(ctx context.Context, d *distribution.Distribution) error {
	if s.failures > 0 {
		s.failures--
		return dErrors.New(dErrors.CodeInternal, "connection reset")
	}
	return s.InMemoryStore.Update(ctx, d)
}

func TestProcess_FailedApplicationStaysDeliverable(t *testing.T) {
	signer, err := webhook.NewSigner(masterSecret)
	require.NoError(t, err)
	store := &unstableStore{InMemoryStore: distribution.NewInMemoryStore(), failures: 1}
	service := webhook.New(
		signer,
		webhook.NewMemoryDeduper(),
		store,
		webhook.NewInMemoryReconcileStore(),
		metrics.NewWith(prometheus.NewRegistry()),
		slog.New(slog.DiscardHandler),
	)

	d := &distribution.Distribution{
		ID:                   id.NewDistributionID(),
		ReleaseID:            id.NewReleaseID(),
		Platform:             distribution.PlatformSpotify,
		Status:               distribution.StatusProcessing,
		PlatformSubmissionID: "sp-1",
	}
	require.NoError(t, store.Create(context.Background(), d))

	body, err := json.Marshal(webhook.Payload{DeliveryID: "dl-8", Event: webhook.EventLive, SubmissionID: "sp-1"})
	require.NoError(t, err)
	signature, err := signer.Sign(distribution.PlatformSpotify, body)
	require.NoError(t, err)

	_, err = service.Process(context.Background(), distribution.PlatformSpotify, body, signature)
	require.Error(t, err)

	// The platform retries the same delivery ID; the transient failure must
	// not have burned it.
	outcome, err := service.Process(context.Background(), distribution.PlatformSpotify, body, signature)
	require.NoError(t, err)
	assert.Equal(t, webhook.OutcomeApplied, outcome)

	got, err := store.Get(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, distribution.StatusLive, got.Status)
}

func TestMemoryDeduper(t *testing.T) {
	deduper := webhook.NewMemoryDeduper()

	seen, err := deduper.Seen(context.Background(), "dl-1")
	require.NoError(t, err)
	assert.False(t, seen, "checking must not mark")

	seen, err = deduper.Seen(context.Background(), "dl-1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, deduper.Mark(context.Background(), "dl-1"))

	seen, err = deduper.Seen(context.Background(), "dl-1")
	require.NoError(t, err)
	assert.True(t, seen)
}
