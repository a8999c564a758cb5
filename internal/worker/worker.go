// Package worker consumes submission and removal jobs and drives them
// against the platform adapters. Every status change goes through the
// lifecycle state machine inside a transaction, so a redelivered job finds
// the row already moved on and becomes a no-op.
package worker

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"tunecast/internal/adapters"
	"tunecast/internal/distribution"
	"tunecast/internal/distribution/metrics"
	"tunecast/internal/distribution/statemachine"
	"tunecast/internal/queue"
	id "tunecast/pkg/domain"
	dErrors "tunecast/pkg/domain-errors"
)

// Worker is the job-processing pool.
type Worker struct {
	store          distribution.Store
	registry       *adapters.Registry
	consumer       queue.Consumer
	metrics        *metrics.Metrics
	logger         *slog.Logger
	tracer         trace.Tracer
	concurrency    int
	adapterTimeout time.Duration
	now            func() time.Time
}

type Option func(*Worker)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(w *Worker) { w.now = now }
}

func New(store distribution.Store, registry *adapters.Registry, consumer queue.Consumer, m *metrics.Metrics, logger *slog.Logger, concurrency int, adapterTimeout time.Duration, opts ...Option) *Worker {
	if concurrency <= 0 {
		concurrency = 1
	}
	if adapterTimeout <= 0 {
		adapterTimeout = 30 * time.Second
	}
	w := &Worker{
		store:          store,
		registry:       registry,
		consumer:       consumer,
		metrics:        m,
		logger:         logger,
		tracer:         otel.Tracer("tunecast/worker"),
		concurrency:    concurrency,
		adapterTimeout: adapterTimeout,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run blocks, consuming jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < w.concurrency; i++ {
		g.Go(func() error {
			err := w.consumer.Consume(ctx, w.Handle)
			if err != nil && ctx.Err() != nil {
				return nil
			}
			return err
		})
	}
	return g.Wait()
}

// Handle processes one job. It is exported so tests and single-process
// deployments can drive jobs without the pool.
func (w *Worker) Handle(ctx context.Context, job queue.Job) error {
	ctx, span := w.tracer.Start(ctx, "worker.handle", trace.WithAttributes(
		attribute.String("job.kind", string(job.Kind)),
		attribute.String("distribution.id", job.DistributionID.String()),
	))
	defer span.End()

	switch job.Kind {
	case queue.KindSubmit:
		return w.handleSubmit(ctx, job)
	case queue.KindRemove:
		return w.handleRemove(ctx, job)
	default:
		w.logger.WarnContext(ctx, "dropping job of unknown kind", "kind", string(job.Kind))
		return nil
	}
}

func (w *Worker) handleSubmit(ctx context.Context, job queue.Job) error {
	// Claim the row first. A redelivered or stale job finds the row past
	// pending and stops here.
	var claimed *distribution.Distribution
	err := w.store.WithinTx(ctx, func(txCtx context.Context) error {
		d, err := w.store.GetForUpdate(txCtx, job.DistributionID)
		if err != nil {
			return err
		}
		if d.Status != distribution.StatusPending {
			w.logger.InfoContext(ctx, "skipping job for non-pending distribution",
				"distribution_id", d.ID.String(),
				"status", string(d.Status),
			)
			return nil
		}
		next, err := statemachine.Transition(d.Status, statemachine.EventSubmissionStarted)
		if err != nil {
			return err
		}
		d.Status = next
		if err := w.store.Update(txCtx, d); err != nil {
			return err
		}
		if err := w.store.AppendEvent(txCtx, distribution.Event{
			DistributionID: d.ID,
			Status:         next,
			Message:        "submission started",
			OccurredAt:     w.now().UTC(),
		}); err != nil {
			return err
		}
		claimed = d
		return nil
	})
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			w.logger.WarnContext(ctx, "dropping job for unknown distribution", "distribution_id", job.DistributionID.String())
			return nil
		}
		return err
	}
	if claimed == nil {
		return nil
	}
	w.metrics.StatusTransitions.WithLabelValues(string(distribution.StatusProcessing)).Inc()

	adapter, err := w.registry.Lookup(claimed.Platform)
	if err != nil {
		return w.markFailed(ctx, claimed.ID, err.Error())
	}

	callCtx, cancel := context.WithTimeout(ctx, w.adapterTimeout)
	defer cancel()

	started := w.now()
	result, callErr := adapter.Submit(callCtx, claimed)
	w.metrics.ObserveAdapterCall(string(claimed.Platform), w.now().Sub(started))

	switch {
	case callErr != nil:
		// Timeouts and transport failures count against the retry budget
		// like any other failure.
		w.logger.ErrorContext(ctx, "platform submission failed",
			"distribution_id", claimed.ID.String(),
			"platform", string(claimed.Platform),
			"error", callErr,
		)
		return w.markFailed(ctx, claimed.ID, callErr.Error())
	case !result.Accepted:
		w.logger.InfoContext(ctx, "platform rejected submission",
			"distribution_id", claimed.ID.String(),
			"platform", string(claimed.Platform),
			"reason", result.Reason,
		)
		return w.markFailed(ctx, claimed.ID, "rejected by platform: "+result.Reason)
	default:
		return w.recordAccepted(ctx, claimed.ID, result.SubmissionID)
	}
}

// recordAccepted stores the platform's submission handle. The row stays in
// processing until the platform's webhook confirms it went live.
func (w *Worker) recordAccepted(ctx context.Context, distID id.DistributionID, submissionID string) error {
	return w.store.WithinTx(ctx, func(txCtx context.Context) error {
		d, err := w.store.GetForUpdate(txCtx, distID)
		if err != nil {
			return err
		}
		d.PlatformSubmissionID = submissionID
		if err := w.store.Update(txCtx, d); err != nil {
			return err
		}
		return w.store.AppendEvent(txCtx, distribution.Event{
			DistributionID: d.ID,
			Status:         d.Status,
			Message:        "accepted by platform, awaiting confirmation",
			OccurredAt:     w.now().UTC(),
		})
	})
}

func (w *Worker) markFailed(ctx context.Context, distID id.DistributionID, reason string) error {
	err := w.store.WithinTx(ctx, func(txCtx context.Context) error {
		d, err := w.store.GetForUpdate(txCtx, distID)
		if err != nil {
			return err
		}
		next, err := statemachine.Transition(d.Status, statemachine.EventSubmissionFailed)
		if err != nil {
			return err
		}
		d.Status = next
		d.ErrorMessage = reason
		if err := w.store.Update(txCtx, d); err != nil {
			return err
		}
		return w.store.AppendEvent(txCtx, distribution.Event{
			DistributionID: d.ID,
			Status:         next,
			Message:        reason,
			OccurredAt:     w.now().UTC(),
		})
	})
	if err != nil {
		return err
	}
	w.metrics.StatusTransitions.WithLabelValues(string(distribution.StatusFailed)).Inc()
	return nil
}

func (w *Worker) handleRemove(ctx context.Context, job queue.Job) error {
	d, err := w.store.Get(ctx, job.DistributionID)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return nil
		}
		return err
	}
	if d.Status != distribution.StatusRemovalRequested {
		w.logger.InfoContext(ctx, "skipping removal job, distribution not awaiting removal",
			"distribution_id", d.ID.String(),
			"status", string(d.Status),
		)
		return nil
	}

	adapter, err := w.registry.Lookup(d.Platform)
	if err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, w.adapterTimeout)
	defer cancel()

	started := w.now()
	removeErr := adapter.Remove(callCtx, d)
	w.metrics.ObserveAdapterCall(string(d.Platform), w.now().Sub(started))
	if removeErr != nil {
		// The row stays in removal_requested; reconciliation or a
		// re-enqueued removal picks it up.
		w.logger.ErrorContext(ctx, "platform removal failed",
			"distribution_id", d.ID.String(),
			"platform", string(d.Platform),
			"error", removeErr,
		)
		return removeErr
	}

	err = w.store.WithinTx(ctx, func(txCtx context.Context) error {
		d, err := w.store.GetForUpdate(txCtx, job.DistributionID)
		if err != nil {
			return err
		}
		next, err := statemachine.Transition(d.Status, statemachine.EventRemoved)
		if err != nil {
			return err
		}
		d.Status = next
		if err := w.store.Update(txCtx, d); err != nil {
			return err
		}
		return w.store.AppendEvent(txCtx, distribution.Event{
			DistributionID: d.ID,
			Status:         next,
			Message:        "removed from platform",
			OccurredAt:     w.now().UTC(),
		})
	})
	if err != nil {
		return err
	}
	w.metrics.StatusTransitions.WithLabelValues(string(distribution.StatusRemoved)).Inc()
	return nil
}
