// Package handler exposes the distribution API over HTTP.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"tunecast/internal/distribution"
	"tunecast/internal/distribution/service"
	"tunecast/internal/eligibility"
	"tunecast/internal/platform/middleware"
	"tunecast/internal/retry"
	"tunecast/internal/royalty"
	"tunecast/internal/transport/http/shared"
	id "tunecast/pkg/domain"
	dErrors "tunecast/pkg/domain-errors"
)

// estimatedDeliveryWindow is what we quote callers for platform review.
const estimatedDeliveryWindow = 48 * time.Hour

// Handler wires the orchestrator, retry manager, and royalty reporter to
// the authenticated API surface.
type Handler struct {
	service   *service.Service
	retries   *retry.Manager
	royalties *royalty.Service
	logger    *slog.Logger
	now       func() time.Time
}

type Option func(*Handler)

// WithClock overrides the time source used for delivery estimates.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

func New(svc *service.Service, retries *retry.Manager, royalties *royalty.Service, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		service:   svc,
		retries:   retries,
		royalties: royalties,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/distributions", func(r chi.Router) {
		r.Post("/", h.submit)
		r.Post("/bulk", h.submitBulk)
		r.Get("/batches/{batchID}", h.batchStatus)
		r.Route("/{distributionID}", func(r chi.Router) {
			r.Get("/status", h.status)
			r.Post("/retry", h.retry)
			r.Post("/removal", h.requestRemoval)
			r.Get("/royalty-report", h.royaltyReport)
			r.Post("/royalties", h.recordRoyalties)
		})
	})
}

type submitRequest struct {
	SongID          string   `json:"song_id"`
	Platforms       []string `json:"platforms"`
	ReleaseDate     string   `json:"release_date,omitempty"`
	Territories     []string `json:"territories,omitempty"`
	ContentAdvisory string   `json:"content_advisory,omitempty"`
	PriceTier       string   `json:"price_tier,omitempty"`
}

type distributionView struct {
	ID                 string            `json:"id"`
	SongID             string            `json:"song_id"`
	Platform           string            `json:"platform_code"`
	PlatformName       string            `json:"platform_name"`
	Status             string            `json:"status"`
	ISRC               string            `json:"isrc"`
	Territories        []string          `json:"territories"`
	Metadata           map[string]string `json:"metadata,omitempty"`
	RetryCount         int               `json:"retry_count"`
	ErrorMessage       string            `json:"error_message,omitempty"`
	PlatformSubmission string            `json:"platform_submission_id,omitempty"`
	PlatformURL        string            `json:"platform_url,omitempty"`
	LiveDate           *time.Time        `json:"live_date,omitempty"`
	RemovalRequestedAt *time.Time        `json:"removal_requested_at,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

func toView(d *distribution.Distribution) distributionView {
	return distributionView{
		ID:                 d.ID.String(),
		SongID:             d.ReleaseID.String(),
		Platform:           string(d.Platform),
		PlatformName:       d.Platform.Name(),
		Status:             string(d.Status),
		ISRC:               d.ISRC,
		Territories:        d.Territories,
		Metadata:           d.DistributionMetadata,
		RetryCount:         d.RetryCount,
		ErrorMessage:       d.ErrorMessage,
		PlatformSubmission: d.PlatformSubmissionID,
		PlatformURL:        d.PlatformURL,
		LiveDate:           d.LiveDate,
		RemovalRequestedAt: d.RemovalRequestedAt,
		CreatedAt:          d.CreatedAt,
		UpdatedAt:          d.UpdatedAt,
	}
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "malformed request body"))
		return
	}
	releaseID, err := id.ParseReleaseID(req.SongID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	params, err := toParams(req)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	created, err := h.service.Submit(r.Context(), userID, releaseID, params)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	views := make([]distributionView, 0, len(created))
	for _, d := range created {
		views = append(views, toView(d))
	}
	shared.WriteJSON(w, http.StatusCreated, map[string]any{
		"distributions":      views,
		"estimated_delivery": h.now().UTC().Add(estimatedDeliveryWindow),
	})
}

type bulkRequest struct {
	SongIDs         []string `json:"song_ids"`
	Platforms       []string `json:"platforms"`
	ReleaseDate     string   `json:"release_date,omitempty"`
	Territories     []string `json:"territories,omitempty"`
	ContentAdvisory string   `json:"content_advisory,omitempty"`
	PriceTier       string   `json:"price_tier,omitempty"`
}

func (h *Handler) submitBulk(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var req bulkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "malformed request body"))
		return
	}

	releaseIDs := make([]id.ReleaseID, 0, len(req.SongIDs))
	for _, raw := range req.SongIDs {
		releaseID, err := id.ParseReleaseID(raw)
		if err != nil {
			shared.WriteError(w, err)
			return
		}
		releaseIDs = append(releaseIDs, releaseID)
	}
	params, err := toParams(submitRequest{
		Platforms:       req.Platforms,
		ReleaseDate:     req.ReleaseDate,
		Territories:     req.Territories,
		ContentAdvisory: req.ContentAdvisory,
		PriceTier:       req.PriceTier,
	})
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	batch, total, err := h.service.SubmitBulk(r.Context(), userID, releaseIDs, params)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusCreated, map[string]any{
		"bulk_distribution_id":        batch.ID.String(),
		"total_distributions_created": total,
		"estimated_completion":        h.now().UTC().Add(estimatedDeliveryWindow),
	})
}

func (h *Handler) batchStatus(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	batchID, err := id.ParseBatchID(chi.URLParam(r, "batchID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	batch, progress, err := h.service.BatchStatus(r.Context(), userID, batchID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, map[string]any{
		"batch_id":   batch.ID.String(),
		"created_at": batch.CreatedAt,
		"progress":   progress,
		"completed":  progress.Completed(),
	})
}

type timelineEntry struct {
	Status     string    `json:"status"`
	Message    string    `json:"message"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	userID, distID, err := callerAndDistribution(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	d, events, err := h.service.Status(r.Context(), userID, distID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	timeline := make([]timelineEntry, 0, len(events))
	for _, event := range events {
		timeline = append(timeline, timelineEntry{
			Status:     string(event.Status),
			Message:    event.Message,
			OccurredAt: event.OccurredAt,
		})
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{
		"distribution": toView(d),
		"timeline":     timeline,
	})
}

func (h *Handler) retry(w http.ResponseWriter, r *http.Request) {
	userID, distID, err := callerAndDistribution(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	// Ownership check runs through the same path as status reads.
	if _, _, err := h.service.Status(r.Context(), userID, distID); err != nil {
		shared.WriteError(w, err)
		return
	}

	updated, err := h.retries.Retry(r.Context(), distID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, map[string]any{
		"distribution":      toView(updated),
		"retry_count":       updated.RetryCount,
		"retries_remaining": h.retries.Remaining(updated),
	})
}

type removalRequest struct {
	Reason    string `json:"reason"`
	Immediate bool   `json:"immediate,omitempty"`
}

func (h *Handler) requestRemoval(w http.ResponseWriter, r *http.Request) {
	userID, distID, err := callerAndDistribution(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var req removalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "malformed request body"))
		return
	}
	if req.Reason == "" {
		req.Reason = "unspecified"
	}
	// Removal is always cooperative; "immediate" only marks urgency on the
	// timeline for the platform relations team.
	if req.Immediate {
		req.Reason += " (immediate)"
	}

	updated, err := h.service.RequestRemoval(r.Context(), userID, distID, req.Reason)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{
		"distribution": toView(updated),
	})
}

func (h *Handler) royaltyReport(w http.ResponseWriter, r *http.Request) {
	userID, distID, err := callerAndDistribution(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	d, _, err := h.service.Status(r.Context(), userID, distID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	report, err := h.royalties.Report(r.Context(), d, r.URL.Query().Get("period"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{
		"distribution": toView(d),
		"revenue_data": report,
		"payment_details": map[string]any{
			"platform_fee_percent": h.royalties.Fees().PlatformFeePercent,
			"service_fee_percent":  h.royalties.Fees().ServiceFeePercent,
		},
	})
}

type royaltiesRequest struct {
	Period   string  `json:"period"`
	Streams  int64   `json:"streams"`
	Revenue  float64 `json:"revenue"`
	Currency string  `json:"currency,omitempty"`
}

func (h *Handler) recordRoyalties(w http.ResponseWriter, r *http.Request) {
	userID, distID, err := callerAndDistribution(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	if _, _, err := h.service.Status(r.Context(), userID, distID); err != nil {
		shared.WriteError(w, err)
		return
	}

	var req royaltiesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "malformed request body"))
		return
	}

	err = h.royalties.RecordRevenue(r.Context(), royalty.RevenueRecord{
		DistributionID: distID,
		Period:         req.Period,
		Streams:        req.Streams,
		Revenue:        req.Revenue,
		Currency:       req.Currency,
	})
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

func callerID(r *http.Request) (id.UserID, error) {
	raw := middleware.GetUserID(r.Context())
	if raw == "" {
		return id.UserID{}, dErrors.New(dErrors.CodeUnauthorized, "missing authenticated user")
	}
	return id.ParseUserID(raw)
}

func callerAndDistribution(r *http.Request) (id.UserID, id.DistributionID, error) {
	userID, err := callerID(r)
	if err != nil {
		return id.UserID{}, id.DistributionID{}, err
	}
	distID, err := id.ParseDistributionID(chi.URLParam(r, "distributionID"))
	if err != nil {
		return id.UserID{}, id.DistributionID{}, err
	}
	return userID, distID, nil
}

func toParams(req submitRequest) (eligibility.SubmissionParams, error) {
	params := eligibility.SubmissionParams{
		Territories:     req.Territories,
		ContentAdvisory: req.ContentAdvisory,
		PriceTier:       req.PriceTier,
	}
	for _, raw := range req.Platforms {
		params.Platforms = append(params.Platforms, distribution.Platform(raw))
	}
	if req.ReleaseDate != "" {
		parsed, err := time.Parse("2006-01-02", req.ReleaseDate)
		if err != nil {
			return params, dErrors.Wrap(err, dErrors.CodeValidation, "release_date must be YYYY-MM-DD")
		}
		params.ReleaseDate = parsed
	}
	return params, nil
}
