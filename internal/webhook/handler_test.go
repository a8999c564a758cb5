package webhook_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tunecast/internal/distribution"
	"tunecast/internal/webhook"
)

func TestHandler_Receive(t *testing.T) {
	f := newFixture(t)
	handler := webhook.NewHandler(f.service)
	router := chi.NewRouter()
	handler.Register(router)

	d := f.seed(t, distribution.StatusProcessing, "sp-1")

	body, err := json.Marshal(webhook.Payload{
		DeliveryID:   "dl-1",
		Event:        webhook.EventLive,
		SubmissionID: "sp-1",
		TrackURL:     "https://open.spotify.com/track/abc",
	})
	require.NoError(t, err)
	signature, err := f.signer.Sign(distribution.PlatformSpotify, body)
	require.NoError(t, err)

	t.Run("processed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/spotify", bytes.NewReader(body))
		req.Header.Set(webhook.SignatureHeader, signature)
		rec := httptest.NewRecorder()

		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "processed", resp["status"])
		assert.Equal(t, string(webhook.OutcomeApplied), resp["outcome"])

		got, err := f.store.Get(context.Background(), d.ID)
		require.NoError(t, err)
		assert.Equal(t, distribution.StatusLive, got.Status)
	})

	t.Run("missing signature is unauthorized", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/spotify", bytes.NewReader(body))
		rec := httptest.NewRecorder()

		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("unknown platform is not found", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/myspace", bytes.NewReader(body))
		req.Header.Set(webhook.SignatureHeader, signature)
		rec := httptest.NewRecorder()

		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
