// Package retry gates re-submission of failed distributions behind a
// bounded budget. The budget counts retries, not attempts: a budget of 3
// allows four submissions in total.
package retry

import (
	"context"
	"log/slog"
	"time"

	"tunecast/internal/distribution"
	"tunecast/internal/distribution/metrics"
	"tunecast/internal/distribution/statemachine"
	"tunecast/internal/queue"
	id "tunecast/pkg/domain"
	dErrors "tunecast/pkg/domain-errors"
)

// Manager accepts or refuses retry requests.
type Manager struct {
	store   distribution.Store
	jobs    queue.Queue
	metrics *metrics.Metrics
	logger  *slog.Logger
	budget  int
	now     func() time.Time
}

type Option func(*Manager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func New(store distribution.Store, jobs queue.Queue, m *metrics.Metrics, logger *slog.Logger, budget int, opts ...Option) *Manager {
	mgr := &Manager{
		store:   store,
		jobs:    jobs,
		metrics: m,
		logger:  logger,
		budget:  budget,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(mgr)
	}
	return mgr
}

// Retry moves a failed distribution back to pending and re-enqueues it,
// provided budget remains. Only failed rows are retryable; the original
// error message is preserved until the next attempt overwrites it.
func (m *Manager) Retry(ctx context.Context, distID id.DistributionID) (*distribution.Distribution, error) {
	var updated *distribution.Distribution
	err := m.store.WithinTx(ctx, func(txCtx context.Context) error {
		d, err := m.store.GetForUpdate(txCtx, distID)
		if err != nil {
			return err
		}
		if d.Status != distribution.StatusFailed {
			return dErrors.Newf(dErrors.CodeBadRequest, "only failed distributions can be retried, status is %s", string(d.Status))
		}
		if d.RetryCount >= m.budget {
			m.metrics.RetriesExhausted.Inc()
			return dErrors.Newf(dErrors.CodeRetryExhausted, "retry budget of %d exhausted", m.budget)
		}

		next, err := statemachine.Transition(d.Status, statemachine.EventRetryRequested)
		if err != nil {
			return err
		}
		d.Status = next
		d.RetryCount++
		if err := m.store.Update(txCtx, d); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update distribution")
		}
		if err := m.store.AppendEvent(txCtx, distribution.Event{
			DistributionID: d.ID,
			Status:         next,
			Message:        "retry requested",
			OccurredAt:     m.now().UTC(),
		}); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record timeline event")
		}
		if err := m.jobs.Enqueue(txCtx, queue.NewSubmitJob(d.ID, d.RetryCount)); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to enqueue submission job")
		}
		updated = d
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.metrics.RetriesTotal.Inc()
	m.metrics.StatusTransitions.WithLabelValues(string(distribution.StatusPending)).Inc()
	m.logger.InfoContext(ctx, "retry accepted",
		"distribution_id", distID.String(),
		"retry_count", updated.RetryCount,
		"budget", m.budget,
	)
	return updated, nil
}

// Remaining reports how many retries a distribution has left.
func (m *Manager) Remaining(d *distribution.Distribution) int {
	remaining := m.budget - d.RetryCount
	if remaining < 0 {
		return 0
	}
	return remaining
}
