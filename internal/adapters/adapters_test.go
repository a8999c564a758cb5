package adapters_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tunecast/internal/adapters"
	"tunecast/internal/distribution"
	id "tunecast/pkg/domain"
)

func testDistribution() *distribution.Distribution {
	return &distribution.Distribution{
		ID:                   id.NewDistributionID(),
		ReleaseID:            id.NewReleaseID(),
		Platform:             distribution.PlatformSpotify,
		Status:               distribution.StatusPending,
		ISRC:                 "US-AB1-26-00042",
		Territories:          []string{"worldwide"},
		DistributionMetadata: map[string]string{"content_advisory": "explicit"},
	}
}

func TestHTTPAdapter_SubmitAccepted(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/tracks", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(map[string]any{
			"submission_id": "sp-123",
			"accepted":      true,
		})
	}))
	defer server.Close()

	adapter := adapters.NewHTTP(distribution.PlatformSpotify, server.URL, "secret-key", time.Second)
	d := testDistribution()

	result, err := adapter.Submit(context.Background(), d)
	require.NoError(t, err)
	assert.True(t, result.Accepted)
	assert.Equal(t, "sp-123", result.SubmissionID)
	assert.Equal(t, "Bearer secret-key", gotAuth)
	assert.Equal(t, "US-AB1-26-00042", gotBody["isrc"])
	assert.Equal(t, d.ID.String(), gotBody["idempotency_key"])
	assert.Equal(t, "/api/v1/webhooks/spotify", gotBody["callback_path"])
}

func TestHTTPAdapter_SubmitRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"accepted": false,
			"reason":   "invalid audio bitrate",
		})
	}))
	defer server.Close()

	adapter := adapters.NewHTTP(distribution.PlatformSpotify, server.URL, "k", time.Second)
	result, err := adapter.Submit(context.Background(), testDistribution())
	require.NoError(t, err, "a rejection is not a transport error")
	assert.False(t, result.Accepted)
	assert.Equal(t, "invalid audio bitrate", result.Reason)
}

func TestHTTPAdapter_ServerErrorIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	adapter := adapters.NewHTTP(distribution.PlatformSpotify, server.URL, "k", time.Second)
	_, err := adapter.Submit(context.Background(), testDistribution())
	assert.ErrorContains(t, err, "unexpected status 503")
}

func TestHTTPAdapter_TimeoutIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	adapter := adapters.NewHTTP(distribution.PlatformSpotify, server.URL, "k", 20*time.Millisecond)
	_, err := adapter.Submit(context.Background(), testDistribution())
	assert.Error(t, err)
}

func TestHTTPAdapter_Remove(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		gotPath = r.URL.Path
	}))
	defer server.Close()

	adapter := adapters.NewHTTP(distribution.PlatformSpotify, server.URL, "k", time.Second)

	d := testDistribution()
	err := adapter.Remove(context.Background(), d)
	assert.ErrorContains(t, err, "no platform submission id")

	d.PlatformSubmissionID = "sp-123"
	require.NoError(t, adapter.Remove(context.Background(), d))
	assert.Equal(t, "/v1/tracks/sp-123", gotPath)
}

func TestRegistry_Lookup(t *testing.T) {
	registry := adapters.NewRegistry(
		adapters.NewSandbox(distribution.PlatformSpotify),
		adapters.NewSandbox(distribution.PlatformTidal),
	)

	a, err := registry.Lookup(distribution.PlatformSpotify)
	require.NoError(t, err)
	assert.Equal(t, distribution.PlatformSpotify, a.Platform())

	_, err = registry.Lookup(distribution.PlatformDeezer)
	assert.ErrorContains(t, err, "no adapter registered")
}

func TestSandbox(t *testing.T) {
	sandbox := adapters.NewSandbox(distribution.PlatformSpotify)
	d := testDistribution()

	result, err := sandbox.Submit(context.Background(), d)
	require.NoError(t, err)
	assert.True(t, result.Accepted)
	assert.True(t, sandbox.Submitted(result.SubmissionID))

	d.PlatformSubmissionID = result.SubmissionID
	require.NoError(t, sandbox.Remove(context.Background(), d))
	assert.False(t, sandbox.Submitted(result.SubmissionID))

	d.DistributionMetadata["sandbox"] = "reject"
	result, err = sandbox.Submit(context.Background(), d)
	require.NoError(t, err)
	assert.False(t, result.Accepted)
	assert.Equal(t, "rejected by sandbox", result.Reason)
}
