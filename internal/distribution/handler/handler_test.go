package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tunecast/internal/catalog"
	"tunecast/internal/distribution"
	"tunecast/internal/distribution/handler"
	"tunecast/internal/distribution/metrics"
	"tunecast/internal/distribution/service"
	"tunecast/internal/eligibility"
	"tunecast/internal/isrc"
	"tunecast/internal/platform/middleware"
	"tunecast/internal/queue"
	"tunecast/internal/retry"
	"tunecast/internal/royalty"
	id "tunecast/pkg/domain"
	dErrors "tunecast/pkg/domain-errors"
)

// stubRegistry hands out a cleared code for every release it knows.
type stubRegistry struct {
	codes map[id.ReleaseID]*isrc.Code
}

func (s *stubRegistry) ActiveCodeForRelease(_ context.Context, release *catalog.Release) (*isrc.Code, error) {
	if code, ok := s.codes[release.ID]; ok {
		return code, nil
	}
	return nil, dErrors.New(dErrors.CodeNotFound, "no active code for release")
}

type fixture struct {
	router   chi.Router
	catalog  *catalog.InMemoryCatalog
	registry *stubRegistry
	store    *distribution.InMemoryStore
	jobs     *queue.Memory
	userID   id.UserID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	m := metrics.NewWith(prometheus.NewRegistry())

	f := &fixture{
		catalog:  catalog.NewInMemoryCatalog(),
		registry: &stubRegistry{codes: make(map[id.ReleaseID]*isrc.Code)},
		store:    distribution.NewInMemoryStore(),
		jobs:     queue.NewMemory(64),
		userID:   id.NewUserID(),
	}

	validator := eligibility.NewValidator(f.registry)
	orchestrator := service.New(f.catalog, validator, f.store, f.jobs, m, logger)
	retries := retry.New(f.store, f.jobs, m, logger, 3)
	royalties := royalty.New(royalty.NewInMemoryStore(), f.store, royalty.FeeSchedule{PlatformFeePercent: 15, ServiceFeePercent: 10}, logger)

	h := handler.New(orchestrator, retries, royalties, logger)
	router := chi.NewRouter()
	// Stand-in for RequireAuth: inject the fixture's user directly.
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(middleware.WithUserID(r.Context(), f.userID.String())))
		})
	})
	h.Register(router)
	f.router = router
	return f
}

func (f *fixture) seedRelease(t *testing.T) *catalog.Release {
	t.Helper()
	release := catalog.Release{
		ID:              id.NewReleaseID(),
		ArtistID:        f.userID,
		Title:           "Night Drive",
		Status:          catalog.StatusPublished,
		Active:          true,
		DurationSeconds: 180,
		FileSizeBytes:   4 << 20,
	}
	f.catalog.Put(release)
	f.registry.codes[release.ID] = &isrc.Code{
		Code:                   "US-AB1-26-00042",
		ReleaseID:              release.ID,
		Status:                 isrc.StatusActive,
		ClearedForDistribution: true,
	}
	return &release
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&reader).Encode(body))
	}
	req := httptest.NewRequest(method, path, &reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestSubmitEndpoint(t *testing.T) {
	f := newFixture(t)
	release := f.seedRelease(t)

	rec := f.do(t, http.MethodPost, "/distributions", map[string]any{
		"song_id":   release.ID.String(),
		"platforms": []string{"spotify", "tidal"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	resp := decode(t, rec)
	distributions := resp["distributions"].([]any)
	assert.Len(t, distributions, 2)
	assert.NotEmpty(t, resp["estimated_delivery"])

	first := distributions[0].(map[string]any)
	assert.Equal(t, "pending", first["status"])
	assert.Equal(t, "US-AB1-26-00042", first["isrc"])
	assert.Equal(t, 2, f.jobs.Len())
}

func TestSubmitEndpoint_ValidationErrors(t *testing.T) {
	f := newFixture(t)
	release := f.seedRelease(t)

	t.Run("unknown platform is 422", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/distributions", map[string]any{
			"song_id":   release.ID.String(),
			"platforms": []string{"myspace"},
		})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("bad song id is 422", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/distributions", map[string]any{
			"song_id":   "not-a-uuid",
			"platforms": []string{"spotify"},
		})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("unknown release is 404", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/distributions", map[string]any{
			"song_id":   id.NewReleaseID().String(),
			"platforms": []string{"spotify"},
		})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("duplicate submission is 409", func(t *testing.T) {
		body := map[string]any{
			"song_id":   release.ID.String(),
			"platforms": []string{"spotify"},
		}
		require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/distributions", body).Code)
		assert.Equal(t, http.StatusConflict, f.do(t, http.MethodPost, "/distributions", body).Code)
	})
}

func TestBulkEndpoint(t *testing.T) {
	f := newFixture(t)
	first := f.seedRelease(t)
	second := f.seedRelease(t)

	rec := f.do(t, http.MethodPost, "/distributions/bulk", map[string]any{
		"song_ids":  []string{first.ID.String(), second.ID.String()},
		"platforms": []string{"spotify"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	resp := decode(t, rec)
	assert.Equal(t, float64(2), resp["total_distributions_created"])
	assert.Contains(t, resp, "estimated_completion")
	batchID := resp["bulk_distribution_id"].(string)

	status := f.do(t, http.MethodGet, "/distributions/batches/"+batchID, nil)
	require.Equal(t, http.StatusOK, status.Code)
	progress := decode(t, status)["progress"].(map[string]any)
	assert.Equal(t, float64(2), progress["total"])
	assert.Equal(t, float64(2), progress["pending"])
}

func TestStatusEndpoint(t *testing.T) {
	f := newFixture(t)
	release := f.seedRelease(t)

	rec := f.do(t, http.MethodPost, "/distributions", map[string]any{
		"song_id":   release.ID.String(),
		"platforms": []string{"spotify"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	distID := decode(t, rec)["distributions"].([]any)[0].(map[string]any)["id"].(string)

	status := f.do(t, http.MethodGet, "/distributions/"+distID+"/status", nil)
	require.Equal(t, http.StatusOK, status.Code)

	resp := decode(t, status)
	assert.Equal(t, "pending", resp["distribution"].(map[string]any)["status"])
	timeline := resp["timeline"].([]any)
	require.Len(t, timeline, 1)
	assert.Equal(t, "submission accepted", timeline[0].(map[string]any)["message"])
}

func TestRetryEndpoint(t *testing.T) {
	f := newFixture(t)
	release := f.seedRelease(t)

	rec := f.do(t, http.MethodPost, "/distributions", map[string]any{
		"song_id":   release.ID.String(),
		"platforms": []string{"spotify"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	rawID := decode(t, rec)["distributions"].([]any)[0].(map[string]any)["id"].(string)

	t.Run("pending is not retryable", func(t *testing.T) {
		res := f.do(t, http.MethodPost, "/distributions/"+rawID+"/retry", nil)
		assert.Equal(t, http.StatusBadRequest, res.Code)
	})

	distID, err := id.ParseDistributionID(rawID)
	require.NoError(t, err)
	d, err := f.store.Get(context.Background(), distID)
	require.NoError(t, err)
	d.Status = distribution.StatusFailed
	require.NoError(t, f.store.Update(context.Background(), d))

	t.Run("failed is retryable", func(t *testing.T) {
		res := f.do(t, http.MethodPost, "/distributions/"+rawID+"/retry", nil)
		require.Equal(t, http.StatusOK, res.Code)
		resp := decode(t, res)
		assert.Equal(t, float64(1), resp["retry_count"])
		assert.Equal(t, float64(2), resp["retries_remaining"])
	})
}

func TestRemovalAndRoyaltyEndpoints(t *testing.T) {
	f := newFixture(t)
	release := f.seedRelease(t)

	rec := f.do(t, http.MethodPost, "/distributions", map[string]any{
		"song_id":   release.ID.String(),
		"platforms": []string{"spotify"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	rawID := decode(t, rec)["distributions"].([]any)[0].(map[string]any)["id"].(string)

	distID, err := id.ParseDistributionID(rawID)
	require.NoError(t, err)
	d, err := f.store.Get(context.Background(), distID)
	require.NoError(t, err)
	d.Status = distribution.StatusLive
	now := time.Now().UTC()
	d.LiveDate = &now
	require.NoError(t, f.store.Update(context.Background(), d))

	t.Run("record royalties", func(t *testing.T) {
		res := f.do(t, http.MethodPost, "/distributions/"+rawID+"/royalties", map[string]any{
			"period":  "2026-03",
			"streams": 1000,
			"revenue": 100.0,
		})
		require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	})

	t.Run("royalty report", func(t *testing.T) {
		res := f.do(t, http.MethodGet, "/distributions/"+rawID+"/royalty-report", nil)
		require.Equal(t, http.StatusOK, res.Code)
		resp := decode(t, res)
		assert.Equal(t, "live", resp["distribution"].(map[string]any)["status"])
		revenue := resp["revenue_data"].(map[string]any)
		lines := revenue["lines"].([]any)
		require.Len(t, lines, 1)
		line := lines[0].(map[string]any)
		assert.Equal(t, float64(75), line["artist_earnings"])
		fees := resp["payment_details"].(map[string]any)
		assert.Equal(t, float64(15), fees["platform_fee_percent"])
	})

	t.Run("royalty report filtered to an empty period", func(t *testing.T) {
		res := f.do(t, http.MethodGet, "/distributions/"+rawID+"/royalty-report?period=2026-04", nil)
		require.Equal(t, http.StatusOK, res.Code)
		revenue := decode(t, res)["revenue_data"].(map[string]any)
		assert.Equal(t, float64(0), revenue["total_streams"])
	})

	t.Run("request removal", func(t *testing.T) {
		res := f.do(t, http.MethodPost, "/distributions/"+rawID+"/removal", map[string]any{
			"reason":    "rights dispute",
			"immediate": true,
		})
		require.Equal(t, http.StatusOK, res.Code)
		resp := decode(t, res)
		assert.Equal(t, "removal_requested", resp["distribution"].(map[string]any)["status"])

		status := f.do(t, http.MethodGet, "/distributions/"+rawID+"/status", nil)
		require.Equal(t, http.StatusOK, status.Code)
		timeline := decode(t, status)["timeline"].([]any)
		last := timeline[len(timeline)-1].(map[string]any)
		assert.Equal(t, "removal requested: rights dispute (immediate)", last["message"])
	})
}
