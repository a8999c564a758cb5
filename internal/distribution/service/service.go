// Package service orchestrates distribution submissions: it validates,
// authorizes, creates one row per (release, platform), and enqueues the
// asynchronous submission jobs — all inside one transaction boundary.
package service

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"tunecast/internal/catalog"
	"tunecast/internal/distribution"
	"tunecast/internal/distribution/metrics"
	"tunecast/internal/distribution/statemachine"
	"tunecast/internal/eligibility"
	"tunecast/internal/isrc"
	"tunecast/internal/queue"
	id "tunecast/pkg/domain"
	dErrors "tunecast/pkg/domain-errors"
)

// Validator is the eligibility surface the orchestrator depends on.
type Validator interface {
	CheckEligible(ctx context.Context, release *catalog.Release) (*isrc.Code, error)
	ValidateParams(params *eligibility.SubmissionParams) error
}

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks

// Service is the distribution orchestrator.
type Service struct {
	catalog   catalog.Catalog
	validator Validator
	store     distribution.Store
	jobs      queue.Queue
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(cat catalog.Catalog, validator Validator, store distribution.Store, jobs queue.Queue, m *metrics.Metrics, logger *slog.Logger, opts ...Option) *Service {
	svc := &Service{
		catalog:   cat,
		validator: validator,
		store:     store,
		jobs:      jobs,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Submit creates one pending distribution per requested platform and
// enqueues a submission job for each. Any validation failure aborts the
// whole submission; an enqueue failure rolls back every created row.
func (s *Service) Submit(ctx context.Context, userID id.UserID, releaseID id.ReleaseID, params eligibility.SubmissionParams) ([]*distribution.Distribution, error) {
	if err := s.validator.ValidateParams(&params); err != nil {
		return nil, err
	}

	release, code, err := s.authorizeAndCheck(ctx, userID, releaseID)
	if err != nil {
		return nil, err
	}

	var created []*distribution.Distribution
	err = s.store.WithinTx(ctx, func(txCtx context.Context) error {
		rows, err := s.createRows(txCtx, release, code, nil, params)
		if err != nil {
			return err
		}
		created = rows
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, d := range created {
		s.metrics.DistributionsCreated.WithLabelValues(string(d.Platform)).Inc()
	}
	s.logger.InfoContext(ctx, "submission accepted",
		"release_id", releaseID.String(),
		"platforms", len(created),
	)
	return created, nil
}

// SubmitBulk applies Submit across many releases under one batch. Every
// release must pass eligibility before a single row is created; the check
// phase fans out in parallel and the first failure aborts the whole batch.
func (s *Service) SubmitBulk(ctx context.Context, userID id.UserID, releaseIDs []id.ReleaseID, params eligibility.SubmissionParams) (*distribution.BulkBatch, int, error) {
	if len(releaseIDs) == 0 {
		return nil, 0, dErrors.New(dErrors.CodeValidation, "song_ids must not be empty")
	}
	if err := s.validator.ValidateParams(&params); err != nil {
		return nil, 0, err
	}

	type checked struct {
		release *catalog.Release
		code    *isrc.Code
	}
	results := make([]checked, len(releaseIDs))

	g, checkCtx := errgroup.WithContext(ctx)
	for i, releaseID := range releaseIDs {
		g.Go(func() error {
			release, code, err := s.authorizeAndCheck(checkCtx, userID, releaseID)
			if err != nil {
				return err
			}
			results[i] = checked{release: release, code: code}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	batch := &distribution.BulkBatch{
		ID:        id.NewBatchID(),
		CreatedBy: userID,
		Releases:  releaseIDs,
		Platforms: params.Platforms,
		CreatedAt: s.now().UTC(),
	}

	total := 0
	err := s.store.WithinTx(ctx, func(txCtx context.Context) error {
		if err := s.store.CreateBatch(txCtx, batch); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create batch")
		}
		for _, res := range results {
			rows, err := s.createRows(txCtx, res.release, res.code, &batch.ID, params)
			if err != nil {
				return err
			}
			total += len(rows)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	s.logger.InfoContext(ctx, "bulk submission accepted",
		"batch_id", batch.ID.String(),
		"releases", len(releaseIDs),
		"distributions", total,
	)
	return batch, total, nil
}

func (s *Service) authorizeAndCheck(ctx context.Context, userID id.UserID, releaseID id.ReleaseID) (*catalog.Release, *isrc.Code, error) {
	release, err := s.catalog.Release(ctx, releaseID)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return nil, nil, err
		}
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up release")
	}
	if !release.OwnedBy(userID) {
		return nil, nil, dErrors.New(dErrors.CodeForbidden, "release is not owned by caller")
	}
	code, err := s.validator.CheckEligible(ctx, release)
	if err != nil {
		return nil, nil, err
	}
	return release, code, nil
}

// createRows is the shared row-creation path for single and bulk submission.
// Rows, timeline events, and job enqueues share the caller's transaction.
func (s *Service) createRows(txCtx context.Context, release *catalog.Release, code *isrc.Code, batchID *id.BatchID, params eligibility.SubmissionParams) ([]*distribution.Distribution, error) {
	now := s.now().UTC()
	meta := map[string]string{}
	if !params.ReleaseDate.IsZero() {
		meta["release_date"] = params.ReleaseDate.UTC().Format(time.RFC3339)
	}
	if params.ContentAdvisory != "" {
		meta["content_advisory"] = params.ContentAdvisory
	} else if release.Explicit {
		meta["content_advisory"] = "explicit"
	}
	if params.PriceTier != "" {
		meta["price_tier"] = params.PriceTier
	}

	rows := make([]*distribution.Distribution, 0, len(params.Platforms))
	for _, platform := range params.Platforms {
		d := &distribution.Distribution{
			ID:                   id.NewDistributionID(),
			ReleaseID:            release.ID,
			BatchID:              batchID,
			Platform:             platform,
			Status:               distribution.StatusPending,
			ISRC:                 code.Code,
			Territories:          mergeTerritories(params.Territories, code.TerritorialRestrictions),
			DistributionMetadata: meta,
			PlatformMetadata:     map[string]string{},
			CreatedAt:            now,
			UpdatedAt:            now,
		}
		if err := s.store.Create(txCtx, d); err != nil {
			if dErrors.HasCode(err, dErrors.CodeConflict) {
				return nil, dErrors.Newf(dErrors.CodeConflict, "release already submitted to %s", string(platform))
			}
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create distribution")
		}
		if err := s.store.AppendEvent(txCtx, distribution.Event{
			DistributionID: d.ID,
			Status:         distribution.StatusPending,
			Message:        "submission accepted",
			OccurredAt:     now,
		}); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record timeline event")
		}
		if err := s.jobs.Enqueue(txCtx, queue.NewSubmitJob(d.ID, 0)); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to enqueue submission job")
		}
		rows = append(rows, d)
	}
	return rows, nil
}

// Status returns a distribution and its timeline, enforcing ownership.
func (s *Service) Status(ctx context.Context, userID id.UserID, distributionID id.DistributionID) (*distribution.Distribution, []distribution.Event, error) {
	d, err := s.authorizeDistribution(ctx, userID, distributionID)
	if err != nil {
		return nil, nil, err
	}
	events, err := s.store.Events(ctx, distributionID)
	if err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load timeline")
	}
	return d, events, nil
}

// BatchStatus computes batch progress by scanning member distributions.
func (s *Service) BatchStatus(ctx context.Context, userID id.UserID, batchID id.BatchID) (*distribution.BulkBatch, distribution.BatchProgress, error) {
	batch, err := s.store.Batch(ctx, batchID)
	if err != nil {
		return nil, distribution.BatchProgress{}, err
	}
	if batch.CreatedBy != userID {
		return nil, distribution.BatchProgress{}, dErrors.New(dErrors.CodeForbidden, "batch is not owned by caller")
	}

	members, err := s.store.BatchMembers(ctx, batchID)
	if err != nil {
		return nil, distribution.BatchProgress{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load batch members")
	}

	progress := distribution.BatchProgress{Total: len(members)}
	for _, member := range members {
		switch member.Status {
		case distribution.StatusPending:
			progress.Pending++
		case distribution.StatusProcessing:
			progress.Processing++
		case distribution.StatusLive:
			progress.Live++
		case distribution.StatusFailed:
			progress.Failed++
		case distribution.StatusRemovalRequested, distribution.StatusRemoved:
			progress.Removed++
		}
	}
	return batch, progress, nil
}

// RequestRemoval marks takedown intent and enqueues a removal job. It is
// cooperative: an in-flight submission is allowed to complete and will be
// removed on the next cycle if still live.
func (s *Service) RequestRemoval(ctx context.Context, userID id.UserID, distributionID id.DistributionID, reason string) (*distribution.Distribution, error) {
	if _, err := s.authorizeDistribution(ctx, userID, distributionID); err != nil {
		return nil, err
	}

	var updated *distribution.Distribution
	err := s.store.WithinTx(ctx, func(txCtx context.Context) error {
		d, err := s.store.GetForUpdate(txCtx, distributionID)
		if err != nil {
			return err
		}
		next, err := statemachine.Transition(d.Status, statemachine.EventRemovalRequested)
		if err != nil {
			return dErrors.Newf(dErrors.CodeBadRequest, "distribution in status %s cannot be removed", string(d.Status))
		}

		now := s.now().UTC()
		d.Status = next
		d.RemovalRequestedAt = &now
		if err := s.store.Update(txCtx, d); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update distribution")
		}
		if err := s.store.AppendEvent(txCtx, distribution.Event{
			DistributionID: d.ID,
			Status:         next,
			Message:        "removal requested: " + reason,
			OccurredAt:     now,
		}); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record timeline event")
		}
		if err := s.jobs.Enqueue(txCtx, queue.NewRemoveJob(d.ID)); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to enqueue removal job")
		}
		updated = d
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.StatusTransitions.WithLabelValues(string(updated.Status)).Inc()
	return updated, nil
}

func (s *Service) authorizeDistribution(ctx context.Context, userID id.UserID, distributionID id.DistributionID) (*distribution.Distribution, error) {
	d, err := s.store.Get(ctx, distributionID)
	if err != nil {
		return nil, err
	}
	release, err := s.catalog.Release(ctx, d.ReleaseID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up release")
	}
	if !release.OwnedBy(userID) {
		return nil, dErrors.New(dErrors.CodeForbidden, "distribution is not owned by caller")
	}
	return d, nil
}

func mergeTerritories(requested, restrictions []string) []string {
	seen := make(map[string]bool, len(requested)+len(restrictions))
	merged := make([]string, 0, len(requested)+len(restrictions))
	for _, t := range append(append([]string{}, requested...), restrictions...) {
		if !seen[t] {
			seen[t] = true
			merged = append(merged, t)
		}
	}
	return merged
}
