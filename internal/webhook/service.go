package webhook

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"tunecast/internal/distribution"
	"tunecast/internal/distribution/metrics"
	"tunecast/internal/distribution/statemachine"
	dErrors "tunecast/pkg/domain-errors"
)

// Payload is the callback body platforms POST to us.
type Payload struct {
	DeliveryID   string `json:"delivery_id"`
	Event        string `json:"event"`
	SubmissionID string `json:"submission_id"`
	TrackURL     string `json:"track_url,omitempty"`
	LiveDate     string `json:"live_date,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

// Platform event names.
const (
	EventLive    = "live"
	EventRemoved = "removed"
	EventFailed  = "failed"
)

// Outcome says what processing a webhook did.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeStale     Outcome = "stale"
)

// Service verifies, deduplicates, and applies platform callbacks.
type Service struct {
	signer    *Signer
	deduper   Deduper
	store     distribution.Store
	reconcile ReconcileStore
	metrics   *metrics.Metrics
	logger    *slog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(signer *Signer, deduper Deduper, store distribution.Store, reconcile ReconcileStore, m *metrics.Metrics, logger *slog.Logger, opts ...Option) *Service {
	svc := &Service{
		signer:    signer,
		deduper:   deduper,
		store:     store,
		reconcile: reconcile,
		metrics:   m,
		logger:    logger,
		tracer:    otel.Tracer("tunecast/webhook"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Process handles one raw callback. The signature covers the raw body, so
// verification happens before any parsing.
func (s *Service) Process(ctx context.Context, platform distribution.Platform, body []byte, signature string) (Outcome, error) {
	if !platform.Supported() {
		return "", dErrors.Newf(dErrors.CodeNotFound, "unknown platform %q", string(platform))
	}
	if err := s.signer.Verify(platform, body, signature); err != nil {
		s.metrics.WebhookEvents.WithLabelValues(string(platform), "rejected").Inc()
		return "", err
	}

	var payload Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeBadRequest, "malformed webhook payload")
	}
	if payload.SubmissionID == "" || payload.Event == "" {
		return "", dErrors.New(dErrors.CodeBadRequest, "webhook payload missing event or submission_id")
	}

	deliveryID := payload.DeliveryID
	if deliveryID == "" {
		// Platforms without delivery IDs still get dedupe per (submission, event).
		deliveryID = string(platform) + ":" + payload.SubmissionID + ":" + payload.Event
	}
	seen, err := s.deduper.Seen(ctx, deliveryID)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to deduplicate webhook")
	}
	if seen {
		s.logger.InfoContext(ctx, "dropping redelivered webhook",
			"platform", string(platform),
			"delivery_id", deliveryID,
		)
		s.metrics.WebhookEvents.WithLabelValues(string(platform), string(OutcomeDuplicate)).Inc()
		return OutcomeDuplicate, nil
	}

	outcome, err := s.apply(ctx, platform, payload, body)
	if err != nil {
		// Leave the delivery unmarked so the platform's retry of this
		// delivery ID gets another application attempt.
		s.metrics.WebhookEvents.WithLabelValues(string(platform), "error").Inc()
		return "", err
	}
	if err := s.deduper.Mark(ctx, deliveryID); err != nil {
		// The event is applied; an unmarked redelivery replays safely
		// through the state machine as a duplicate.
		s.logger.WarnContext(ctx, "failed to mark webhook delivery",
			"platform", string(platform),
			"delivery_id", deliveryID,
			"error", err.Error(),
		)
	}
	s.metrics.WebhookEvents.WithLabelValues(string(platform), string(outcome)).Inc()
	return outcome, nil
}

func (s *Service) apply(ctx context.Context, platform distribution.Platform, payload Payload, body []byte) (Outcome, error) {
	ctx, span := s.tracer.Start(ctx, "webhook.apply", trace.WithAttributes(
		attribute.String("platform", string(platform)),
		attribute.String("event", payload.Event),
	))
	defer span.End()

	var outcome Outcome
	err := s.store.WithinTx(ctx, func(txCtx context.Context) error {
		d, err := s.store.ByPlatformSubmission(txCtx, platform, payload.SubmissionID)
		if err != nil {
			if dErrors.HasCode(err, dErrors.CodeNotFound) {
				return s.recordOrphan(txCtx, platform, payload, body)
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve submission")
		}

		d, err = s.store.GetForUpdate(txCtx, d.ID)
		if err != nil {
			return err
		}

		switch payload.Event {
		case EventLive:
			return s.applyLive(txCtx, d, payload, &outcome)
		case EventRemoved:
			return s.applyRemoved(txCtx, d, &outcome)
		case EventFailed:
			return s.applyFailed(txCtx, d, payload, &outcome)
		default:
			return dErrors.Newf(dErrors.CodeBadRequest, "unknown webhook event %q", payload.Event)
		}
	})
	if err != nil {
		return "", err
	}
	return outcome, nil
}

func (s *Service) recordOrphan(ctx context.Context, platform distribution.Platform, payload Payload, body []byte) error {
	s.logger.WarnContext(ctx, "webhook references unknown submission",
		"platform", string(platform),
		"submission_id", payload.SubmissionID,
		"event", payload.Event,
	)
	if err := s.reconcile.RecordOrphan(ctx, OrphanEvent{
		Platform:     platform,
		SubmissionID: payload.SubmissionID,
		Event:        payload.Event,
		Payload:      body,
		ReceivedAt:   s.now().UTC(),
	}); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record orphan webhook")
	}
	return dErrors.Newf(dErrors.CodeNotFound, "no distribution for submission %q", payload.SubmissionID)
}

// applyLive confirms a processing distribution went live. A live event for
// an already-live row is a redelivery; one for a removed row is stale feed
// replay. Both are acknowledged without touching the row.
func (s *Service) applyLive(ctx context.Context, d *distribution.Distribution, payload Payload, outcome *Outcome) error {
	switch d.Status {
	case distribution.StatusLive:
		s.logger.InfoContext(ctx, "duplicate live confirmation", "distribution_id", d.ID.String())
		*outcome = OutcomeDuplicate
		return nil
	case distribution.StatusRemovalRequested, distribution.StatusRemoved:
		s.logger.WarnContext(ctx, "stale live confirmation for removed distribution",
			"distribution_id", d.ID.String(),
			"status", string(d.Status),
		)
		*outcome = OutcomeStale
		return nil
	}

	next, err := statemachine.Transition(d.Status, statemachine.EventWentLive)
	if err != nil {
		// Event ordering is not guaranteed; a confirmation for a submission
		// the worker never dispatched is ignored, not failed.
		s.logger.WarnContext(ctx, "live confirmation out of order",
			"distribution_id", d.ID.String(),
			"status", string(d.Status),
		)
		*outcome = OutcomeStale
		return nil
	}

	liveDate := s.now().UTC()
	if payload.LiveDate != "" {
		if parsed, err := time.Parse(time.RFC3339, payload.LiveDate); err == nil {
			liveDate = parsed.UTC()
		}
	}
	d.Status = next
	d.LiveDate = &liveDate
	d.PlatformURL = payload.TrackURL
	d.ErrorMessage = ""
	*outcome = OutcomeApplied
	return s.persist(ctx, d, "went live")
}

func (s *Service) applyRemoved(ctx context.Context, d *distribution.Distribution, outcome *Outcome) error {
	if d.Status == distribution.StatusRemoved {
		s.logger.InfoContext(ctx, "duplicate removal confirmation", "distribution_id", d.ID.String())
		*outcome = OutcomeDuplicate
		return nil
	}

	next, err := statemachine.Transition(d.Status, statemachine.EventRemoved)
	if err != nil {
		// A removal report before anything went live has nothing to remove.
		s.logger.WarnContext(ctx, "removal confirmation with nothing live",
			"distribution_id", d.ID.String(),
			"status", string(d.Status),
		)
		*outcome = OutcomeStale
		return nil
	}
	d.Status = next
	*outcome = OutcomeApplied
	return s.persist(ctx, d, "removed from platform")
}

func (s *Service) applyFailed(ctx context.Context, d *distribution.Distribution, payload Payload, outcome *Outcome) error {
	if d.Status == distribution.StatusFailed {
		*outcome = OutcomeDuplicate
		return nil
	}

	next, err := statemachine.Transition(d.Status, statemachine.EventSubmissionFailed)
	if err != nil {
		s.logger.WarnContext(ctx, "failure report out of order",
			"distribution_id", d.ID.String(),
			"status", string(d.Status),
		)
		*outcome = OutcomeStale
		return nil
	}
	d.Status = next
	if payload.Reason != "" {
		d.ErrorMessage = payload.Reason
	} else {
		d.ErrorMessage = "failed at platform"
	}
	*outcome = OutcomeApplied
	return s.persist(ctx, d, d.ErrorMessage)
}

func (s *Service) persist(ctx context.Context, d *distribution.Distribution, message string) error {
	if err := s.store.Update(ctx, d); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update distribution")
	}
	if err := s.store.AppendEvent(ctx, distribution.Event{
		DistributionID: d.ID,
		Status:         d.Status,
		Message:        message,
		OccurredAt:     s.now().UTC(),
	}); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record timeline event")
	}
	s.metrics.StatusTransitions.WithLabelValues(string(d.Status)).Inc()
	return nil
}
